package policy

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads the policy at path. See Load.
func LoadFromFile(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	defer func() { _ = f.Close() }()

	pol, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pol, nil
}

// Load decodes a YAML policy. Unknown keys are rejected and every invalid
// entry is reported, not just the first. An empty document is an empty
// policy.
func Load(r io.Reader) (*Policy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var pol Policy
	if err := dec.Decode(&pol); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}
	if err := validate(&pol); err != nil {
		return nil, fmt.Errorf("validating policy: %w", err)
	}
	return &pol, nil
}

func validate(pol *Policy) error {
	var errs []error
	for _, id := range sortedKeys(pol.Context.Datasets) {
		if id == "" {
			errs = append(errs, errors.New("context.datasets contains an empty key"))
			continue
		}
		dc := pol.Context.Datasets[id]
		for _, col := range sortedKeys(dc.Columns) {
			if col == "" {
				errs = append(errs, fmt.Errorf("context.datasets[%q].columns contains an empty key", id))
				continue
			}
			if mask := dc.Columns[col].Mask; !mask.Valid() {
				errs = append(errs, fmt.Errorf("context.datasets[%q].columns[%q].mask: invalid value %q (allowed: redact, hash, partial, null)", id, col, mask))
			}
		}
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
