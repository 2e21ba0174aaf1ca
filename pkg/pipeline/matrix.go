package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Matrix declares the axes whose cross-product fans a job out into
// parallel cells. Exclude entries filter cells by subset match; include
// entries add extra cells (or extend matching ones with new variables).
type Matrix struct {
	// Axes maps axis names to their values, e.g. os: [ubuntu, windows].
	// Scalar values are coerced to strings, so python: [3.9, "3.10"]
	// produces "3.9" and "3.10".
	Axes map[string][]string

	// Include adds cells or augments existing cells with extra variables
	Include []map[string]string

	// Exclude removes cells whose variables are a superset of the entry
	Exclude []map[string]string
}

// UnmarshalYAML implements yaml.Unmarshaler. Every mapping key except
// include and exclude is an axis.
func (m *Matrix) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("matrix must be a mapping, got %s", value.Tag)
	}

	m.Axes = make(map[string][]string)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		node := value.Content[i+1]

		switch key {
		case "include":
			if err := decodeCellList(node, &m.Include); err != nil {
				return fmt.Errorf("include: %w", err)
			}
		case "exclude":
			if err := decodeCellList(node, &m.Exclude); err != nil {
				return fmt.Errorf("exclude: %w", err)
			}
		default:
			if node.Kind != yaml.SequenceNode {
				return fmt.Errorf("axis %s must be a list", key)
			}
			values := make([]string, 0, len(node.Content))
			for _, item := range node.Content {
				values = append(values, item.Value)
			}
			m.Axes[key] = values
		}
	}
	return nil
}

// decodeCellList decodes a list of flat string maps, coercing scalar
// values to strings.
func decodeCellList(node *yaml.Node, out *[]map[string]string) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("must be a list of mappings")
	}
	for _, item := range node.Content {
		if item.Kind != yaml.MappingNode {
			return fmt.Errorf("entries must be mappings")
		}
		cell := make(map[string]string)
		for i := 0; i+1 < len(item.Content); i += 2 {
			cell[item.Content[i].Value] = item.Content[i+1].Value
		}
		*out = append(*out, cell)
	}
	return nil
}

// Validate checks the matrix declaration.
func (m *Matrix) Validate() error {
	if len(m.Axes) == 0 && len(m.Include) == 0 {
		return fmt.Errorf("matrix requires at least one axis or include entry")
	}
	for name, values := range m.Axes {
		if len(values) == 0 {
			return fmt.Errorf("axis %s has no values", name)
		}
	}
	for _, entry := range m.Exclude {
		for key := range entry {
			if _, ok := m.Axes[key]; !ok {
				return fmt.Errorf("exclude references undeclared axis: %s", key)
			}
		}
	}
	return nil
}

// AxisNames returns the axis names in sorted order.
func (m *Matrix) AxisNames() []string {
	names := make([]string, 0, len(m.Axes))
	for name := range m.Axes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cell is one combination of matrix variables.
type Cell map[string]string

// Key renders the cell as a stable identifier like "os=ubuntu,python=3.9".
// An empty cell (job without a matrix) renders as the empty string.
func (c Cell) Key() string {
	if len(c) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+c[k])
	}
	return strings.Join(parts, ",")
}

// DisplayName renders the cell for progress output: "(ubuntu, 3.9)",
// values in sorted axis order. Empty for cell-less jobs.
func (c Cell) DisplayName() string {
	if len(c) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, c[k])
	}
	return "(" + strings.Join(values, ", ") + ")"
}

// Expand computes the matrix cells: cross-product of axes in sorted
// axis order, minus exclude matches, plus include entries. An include
// entry whose axis variables all match an existing cell augments that
// cell instead of adding a new one. A nil matrix expands to a single
// empty cell.
func (m *Matrix) Expand() []Cell {
	if m == nil {
		return []Cell{{}}
	}

	names := m.AxisNames()
	cells := []Cell{{}}
	for _, name := range names {
		next := make([]Cell, 0, len(cells)*len(m.Axes[name]))
		for _, cell := range cells {
			for _, value := range m.Axes[name] {
				grown := make(Cell, len(cell)+1)
				for k, v := range cell {
					grown[k] = v
				}
				grown[name] = value
				next = append(next, grown)
			}
		}
		cells = next
	}

	// Drop the single empty cell when the matrix is include-only.
	if len(m.Axes) == 0 {
		cells = nil
	}

	filtered := cells[:0]
	for _, cell := range cells {
		if !m.excluded(cell) {
			filtered = append(filtered, cell)
		}
	}
	cells = filtered

	for _, entry := range m.Include {
		if augmented := augmentMatching(cells, entry, m.Axes); augmented {
			continue
		}
		extra := make(Cell, len(entry))
		for k, v := range entry {
			extra[k] = v
		}
		cells = append(cells, extra)
	}

	return cells
}

// excluded reports whether a cell matches any exclude entry (subset match).
func (m *Matrix) excluded(cell Cell) bool {
	for _, entry := range m.Exclude {
		match := true
		for k, v := range entry {
			if cell[k] != v {
				match = false
				break
			}
		}
		if match && len(entry) > 0 {
			return true
		}
	}
	return false
}

// augmentMatching merges an include entry's non-axis variables into every
// cell matching its axis variables. Returns false when the entry matched
// no cell and should be appended as a standalone cell.
func augmentMatching(cells []Cell, entry map[string]string, axes map[string][]string) bool {
	axisVars := make(map[string]string)
	extraVars := make(map[string]string)
	for k, v := range entry {
		if _, ok := axes[k]; ok {
			axisVars[k] = v
		} else {
			extraVars[k] = v
		}
	}
	if len(axisVars) == 0 {
		return false
	}

	matched := false
	for _, cell := range cells {
		ok := true
		for k, v := range axisVars {
			if cell[k] != v {
				ok = false
				break
			}
		}
		if ok {
			for k, v := range extraVars {
				cell[k] = v
			}
			matched = true
		}
	}
	return matched
}
