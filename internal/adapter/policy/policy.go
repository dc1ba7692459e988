package policy

import (
	"fmt"

	"github.com/guillermoBallester/tabula/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Policy holds operator-controlled display configuration loaded from a YAML
// file: dataset and column descriptions plus column masks.
type Policy struct {
	Context ContextConfig `yaml:"context"`
}

// ContextConfig maps dataset ids to their display context.
type ContextConfig struct {
	Datasets map[string]DatasetContext `yaml:"datasets"`
}

// DatasetContext describes a dataset and its columns.
type DatasetContext struct {
	Description string                   `yaml:"description"`
	Columns     map[string]ColumnContext `yaml:"columns"`
}

// ColumnContext holds a column's description and optional mask.
type ColumnContext struct {
	Description string          `yaml:"description"`
	Mask        domain.MaskType `yaml:"mask,omitempty"`
}

// UnmarshalYAML accepts either a plain description string or a mapping.
//
//	columns:
//	  region: "Sales region"
//	  email:
//	    description: "Buyer email"
//	    mask: "hash"
func (cc *ColumnContext) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		cc.Description = value.Value
		return nil
	}
	type alias ColumnContext
	var a alias
	if err := value.Decode(&a); err != nil {
		return fmt.Errorf("decoding column context: %w", err)
	}
	*cc = ColumnContext(a)
	return nil
}

// Lookup returns the context of a dataset, if any.
func (p *Policy) Lookup(datasetID string) (DatasetContext, bool) {
	if p == nil {
		return DatasetContext{}, false
	}
	dc, ok := p.Context.Datasets[datasetID]
	return dc, ok
}
