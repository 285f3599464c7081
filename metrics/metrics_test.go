package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmaffy/viral-ngs-dx/platform"
	"github.com/gmaffy/viral-ngs-dx/platform/platformtest"
)

func TestClassify(t *testing.T) {
	ids := Classify([]string{"project-1", "job-2", "analysis-3", "file-4", "job-5"})
	assert.Equal(t, []string{"project-1"}, ids.Projects)
	assert.Equal(t, []string{"analysis-3"}, ids.Analyses)
	assert.Equal(t, []string{"job-2", "job-5"}, ids.Jobs)
}

func TestValidateStates(t *testing.T) {
	assert.NoError(t, ValidateStates([]string{"done", "runnable"}))
	assert.Error(t, ValidateStates([]string{"done", "idle"}))
}

func TestCreated(t *testing.T) {
	assert.Equal(t, "2016-03-07T09:05:04", Created(1457341504000))
	assert.Equal(t, "2016-03-07T09:05:04.123000", Created(1457341504123))
}

func fixture() *platformtest.Fake {
	f := platformtest.New()
	parent := "analysis-1"
	f.AddExecution(platform.Execution{ID: "analysis-1", Project: "project-1", State: "done", ExecutableName: "viral-ngs-assembly_Ebola", Created: 1457341504000,
		Output: map[string]any{"stage-1.alignment_base_count": json.Number("1135543"), "stage-1.mean_coverage_depth": json.Number("12.5")}})
	f.AddExecution(platform.Execution{ID: "job-1", Project: "project-1", State: "done", ExecutableName: "viral-ngs-trinity", ParentAnalysis: &parent, Created: 1457341504000,
		Output: map[string]any{"subsampled_base_count": json.Number("729174")}})
	f.AddExecution(platform.Execution{ID: "job-2", Project: "project-1", State: "failed", ExecutableName: "viral-ngs-filter", Created: 1457341504000})
	f.AddExecution(platform.Execution{ID: "job-3", Project: "project-2", State: "done", ExecutableName: "viral-ngs-filter", Created: 1457341504000})
	return f
}

func TestCollectExpandsProjects(t *testing.T) {
	f := fixture()
	var out bytes.Buffer
	descs, err := Collect(context.Background(), f, []string{"project-1", "job-1", "job-3"}, Options{States: []string{"done"}, Workers: 2}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Reading 3 total executions...\n", out.String())
	var ids []string
	for _, d := range descs {
		ids = append(ids, d.ID)
	}
	assert.ElementsMatch(t, []string{"analysis-1", "job-1", "job-3"}, ids)

	descs, err = Collect(context.Background(), f, []string{"project-1"}, Options{}, &out)
	require.NoError(t, err)
	assert.Len(t, descs, 3)
}

func TestDescribeFailsOnUnknownID(t *testing.T) {
	_, err := Describe(context.Background(), fixture(), []string{"job-1", "job-404"}, 4)
	assert.Error(t, err)
}

func TestFlatten(t *testing.T) {
	f := fixture()
	descs, err := Describe(context.Background(), f, []string{"analysis-1", "job-1", "job-2"}, 3)
	require.NoError(t, err)

	rows := Flatten(descs, Options{})
	require.Len(t, rows, 3)
	assert.Equal(t, "1135543", rows[0]["alignment_base_count"])
	assert.NotContains(t, rows[0], "mean_coverage_depth")
	assert.Equal(t, "", rows[0]["parentAnalysis"])
	assert.Equal(t, "analysis-1", rows[1]["parentAnalysis"])
	assert.Equal(t, "2016-03-07T09:05:04", rows[1]["created"])

	rows = Flatten(descs, Options{NoDescendants: true})
	assert.Len(t, rows, 2)

	rows = Flatten(descs, Options{ExecutableNames: []string{"viral-ngs-filter"}})
	require.Len(t, rows, 1)
	assert.Equal(t, "job-2", rows[0]["id"])
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []Row{
		{"id": "job-1", "state": "done", "reads": "10"},
		{"id": "job-2", "state": "failed"},
	}))
	assert.Equal(t, "id,reads,state\njob-1,10,done\njob-2,,failed\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "\n", buf.String())
}
