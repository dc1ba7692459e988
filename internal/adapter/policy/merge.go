package policy

import (
	"github.com/guillermoBallester/tabula/internal/core/domain"
	"github.com/guillermoBallester/tabula/internal/core/port"
)

// MergeDatasets fills empty dataset descriptions from the policy. A
// description the source already provides wins.
func MergeDatasets(datasets []port.Dataset, ctx ContextConfig) {
	for i, d := range datasets {
		if dc, ok := ctx.Datasets[d.ID]; ok && d.Description == "" && dc.Description != "" {
			datasets[i].Description = dc.Description
		}
	}
}

// MergeColumns fills empty column descriptions from the dataset context.
func MergeColumns(cols []domain.Column, dc DatasetContext) {
	for i, c := range cols {
		if cc, ok := dc.Columns[c.Name]; ok && c.Description == "" && cc.Description != "" {
			cols[i].Description = cc.Description
		}
	}
}

// Masks extracts the column-name → mask map of a dataset.
func (dc DatasetContext) Masks() map[string]domain.MaskType {
	masks := make(map[string]domain.MaskType)
	for col, cc := range dc.Columns {
		if cc.Mask != "" {
			masks[col] = cc.Mask
		}
	}
	return masks
}
