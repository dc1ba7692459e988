package postgres

// queryListTables has one %s placeholder for the schema filter clause.
const queryListTables = `
	SELECT
		t.table_schema,
		t.table_name,
		COALESCE(pg_catalog.obj_description(
			(quote_ident(t.table_schema) || '.' || quote_ident(t.table_name))::regclass, 'pg_class'
		), '') AS comment
	FROM information_schema.tables t
	WHERE %s
		AND t.table_type IN ('BASE TABLE', 'VIEW')
	ORDER BY t.table_schema, t.table_name`

// queryColumns lists a table's columns in ordinal order.
// $1 = schema, $2 = table_name.
const queryColumns = `
	SELECT
		c.column_name,
		COALESCE(pg_catalog.col_description(
			(quote_ident(c.table_schema) || '.' || quote_ident(c.table_name))::regclass,
			c.ordinal_position
		), '')
	FROM information_schema.columns c
	WHERE c.table_schema = $1 AND c.table_name = $2
	ORDER BY c.ordinal_position`

// querySampleValues has two %s placeholders (column, qualified table) and
// takes the limit as $1.
const querySampleValues = `
	SELECT v FROM (
		SELECT DISTINCT %[1]s::text AS v FROM %[2]s WHERE %[1]s IS NOT NULL
	) AS _d
	ORDER BY v
	LIMIT $1`

// queryCount has two %s placeholders (qualified table, where clause).
const queryCount = `SELECT count(*) FROM %s WHERE %s`

// querySelect has three %s placeholders (qualified table, where clause,
// order/limit suffix).
const querySelect = `SELECT * FROM %s WHERE %s%s`
