package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobsWithNeeds(needs map[string][]string) map[string]*Job {
	jobs := make(map[string]*Job, len(needs))
	for id, n := range needs {
		jobs[id] = &Job{Needs: n, Steps: []*Step{{ID: "run_1", Run: "true"}}}
	}
	return jobs
}

func TestTopoSort(t *testing.T) {
	tests := []struct {
		name  string
		needs map[string][]string
		want  []string
	}{
		{
			name:  "single job",
			needs: map[string][]string{"a": nil},
			want:  []string{"a"},
		},
		{
			name: "linear chain",
			needs: map[string][]string{
				"build":  nil,
				"test":   {"build"},
				"report": {"test"},
			},
			want: []string{"build", "test", "report"},
		},
		{
			name: "diamond with alphabetical ties",
			needs: map[string][]string{
				"build":   nil,
				"docs":    {"build"},
				"analyze": {"build"},
				"publish": {"docs", "analyze"},
			},
			want: []string{"build", "analyze", "docs", "publish"},
		},
		{
			name: "independent roots sort alphabetically",
			needs: map[string][]string{
				"zeta":  nil,
				"alpha": nil,
				"mid":   {"zeta"},
			},
			want: []string{"alpha", "zeta", "mid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := TopoSort(jobsWithNeeds(tt.needs))
			require.NoError(t, err)
			assert.Equal(t, tt.want, order)
		})
	}
}

func TestTopoSortCycle(t *testing.T) {
	jobs := jobsWithNeeds(map[string][]string{
		"a": {"c"},
		"b": {"a"},
		"c": {"b"},
		"d": nil,
	})

	_, err := TopoSort(jobs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
	assert.Contains(t, err.Error(), "a, b, c")
}

func TestTopoSortDeterministic(t *testing.T) {
	jobs := jobsWithNeeds(map[string][]string{
		"e": nil, "d": nil, "c": nil, "b": nil, "a": nil,
	})

	first, err := TopoSort(jobs)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := TopoSort(jobs)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestLayers(t *testing.T) {
	jobs := jobsWithNeeds(map[string][]string{
		"build":          nil,
		"sdk_tests":      {"build"},
		"cli_tests":      {"build"},
		"azure_tests":    {"build"},
		"publish_report": {"sdk_tests", "cli_tests", "azure_tests"},
	})

	layers, err := Layers(jobs)
	require.NoError(t, err)
	require.Len(t, layers, 3)
	assert.Equal(t, []string{"build"}, layers[0])
	assert.Equal(t, []string{"azure_tests", "cli_tests", "sdk_tests"}, layers[1])
	assert.Equal(t, []string{"publish_report"}, layers[2])
}

func TestReachableFrom(t *testing.T) {
	jobs := jobsWithNeeds(map[string][]string{
		"build":  nil,
		"test":   {"build"},
		"report": {"test"},
		"other":  nil,
	})

	upstream := ReachableFrom(jobs, "report")
	assert.True(t, upstream["test"])
	assert.True(t, upstream["build"])
	assert.False(t, upstream["other"])
	assert.False(t, upstream["report"])

	assert.Empty(t, ReachableFrom(jobs, "build"))
}
