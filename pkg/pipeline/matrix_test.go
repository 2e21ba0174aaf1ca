package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMatrixExpand(t *testing.T) {
	m := &Matrix{
		Axes: map[string][]string{
			"os":     {"ubuntu-latest", "windows-latest"},
			"python": {"3.9", "3.10", "3.11"},
		},
	}

	cells := m.Expand()
	require.Len(t, cells, 6)

	// Cross-product in sorted axis order: os varies slowest.
	assert.Equal(t, "os=ubuntu-latest,python=3.9", cells[0].Key())
	assert.Equal(t, "os=ubuntu-latest,python=3.10", cells[1].Key())
	assert.Equal(t, "os=ubuntu-latest,python=3.11", cells[2].Key())
	assert.Equal(t, "os=windows-latest,python=3.9", cells[3].Key())
}

func TestMatrixExpandNil(t *testing.T) {
	var m *Matrix
	cells := m.Expand()
	require.Len(t, cells, 1)
	assert.Empty(t, cells[0])
	assert.Equal(t, "", cells[0].Key())
}

func TestMatrixExpandExclude(t *testing.T) {
	m := &Matrix{
		Axes: map[string][]string{
			"os":     {"ubuntu-latest", "windows-latest"},
			"python": {"3.9", "3.10"},
		},
		Exclude: []map[string]string{
			{"os": "windows-latest", "python": "3.9"},
		},
	}

	cells := m.Expand()
	require.Len(t, cells, 3)
	for _, cell := range cells {
		assert.NotEqual(t, "os=windows-latest,python=3.9", cell.Key())
	}
}

func TestMatrixExpandExcludeWholeAxis(t *testing.T) {
	m := &Matrix{
		Axes: map[string][]string{
			"os":     {"ubuntu-latest", "windows-latest"},
			"python": {"3.9", "3.10"},
		},
		Exclude: []map[string]string{
			{"os": "windows-latest"},
		},
	}

	cells := m.Expand()
	require.Len(t, cells, 2)
	for _, cell := range cells {
		assert.Equal(t, "ubuntu-latest", cell["os"])
	}
}

func TestMatrixExpandIncludeAugments(t *testing.T) {
	m := &Matrix{
		Axes: map[string][]string{
			"python": {"3.9", "3.10"},
		},
		Include: []map[string]string{
			{"python": "3.10", "experimental": "true"},
		},
	}

	cells := m.Expand()
	require.Len(t, cells, 2)
	assert.Equal(t, "", cells[0]["experimental"])
	assert.Equal(t, "true", cells[1]["experimental"])
}

func TestMatrixExpandIncludeAppends(t *testing.T) {
	m := &Matrix{
		Axes: map[string][]string{
			"python": {"3.9"},
		},
		Include: []map[string]string{
			{"python": "3.12"},
		},
	}

	cells := m.Expand()
	require.Len(t, cells, 2)
	assert.Equal(t, "python=3.12", cells[1].Key())
}

func TestMatrixUnmarshalYAML(t *testing.T) {
	data := []byte(`
os: [ubuntu-latest]
python: [3.9, "3.10"]
exclude:
  - os: ubuntu-latest
    python: 3.9
include:
  - python: "3.11"
`)

	var m Matrix
	require.NoError(t, yaml.Unmarshal(data, &m))

	// Scalars coerce to strings: 3.9 stays "3.9", not 3.9 the float.
	assert.Equal(t, []string{"3.9", "3.10"}, m.Axes["python"])
	require.Len(t, m.Exclude, 1)
	assert.Equal(t, "3.9", m.Exclude[0]["python"])
	require.Len(t, m.Include, 1)

	cells := m.Expand()
	require.Len(t, cells, 2)
	assert.Equal(t, "os=ubuntu-latest,python=3.10", cells[0].Key())
	assert.Equal(t, "python=3.11", cells[1].Key())
}

func TestMatrixValidate(t *testing.T) {
	tests := []struct {
		name    string
		matrix  *Matrix
		wantErr string
	}{
		{
			name:    "empty matrix",
			matrix:  &Matrix{},
			wantErr: "at least one axis",
		},
		{
			name:    "empty axis",
			matrix:  &Matrix{Axes: map[string][]string{"os": {}}},
			wantErr: "has no values",
		},
		{
			name: "exclude references unknown axis",
			matrix: &Matrix{
				Axes:    map[string][]string{"os": {"linux"}},
				Exclude: []map[string]string{{"arch": "arm64"}},
			},
			wantErr: "undeclared axis",
		},
		{
			name:   "include-only matrix",
			matrix: &Matrix{Include: []map[string]string{{"os": "linux"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.matrix.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestCellDisplayName(t *testing.T) {
	assert.Equal(t, "", Cell{}.DisplayName())
	assert.Equal(t, "(ubuntu-latest, 3.9)", Cell{"os": "ubuntu-latest", "python": "3.9"}.DisplayName())
}
