package testruns

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmaffy/viral-ngs-dx/catalog"
	"github.com/gmaffy/viral-ngs-dx/platform"
	"github.com/gmaffy/viral-ngs-dx/platform/platformtest"
	"github.com/gmaffy/viral-ngs-dx/workflow"
)

const assembly = ">contig1 spades\nACGTACGT\nNNACGT\n>contig2\nTTTT\n"

func assemblyWorkflow() *workflow.Built {
	return &workflow.Built{
		ID:   "workflow-ebola",
		Spec: workflow.Spec{Name: "viral-ngs-assembly_Ebola"},
		Stages: map[string]string{
			"deplete":  "stage-deplete",
			"filter":   "stage-filter",
			"trinity":  "stage-trinity",
			"scaffold": "stage-scaffold",
			"refine1":  "stage-refine1",
			"refine2":  "stage-refine2",
			"analysis": "stage-analysis",
		},
	}
}

func newRunner(f *platformtest.Fake, out *bytes.Buffer) *Runner {
	return &Runner{
		Client:            f,
		Project:           "project-1",
		Folder:            "/2025-06/18-test",
		Revision:          "v1",
		Muscle:            "applet-muscle",
		GATK:              "file-gatk",
		KrakenDB:          "file-kraken",
		Out:               out,
		PollInterval:      time.Millisecond,
		KeepAliveInterval: time.Hour,
	}
}

func TestAssemblySHA256IgnoresHeaders(t *testing.T) {
	a, err := AssemblySHA256(strings.NewReader(assembly))
	require.NoError(t, err)
	b, err := AssemblySHA256(strings.NewReader(">x\nACGTACGT\nNNACGT\n>y\nTTTT\n"))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := AssemblySHA256(strings.NewReader("ACGTACGT\nNNACGT\nTTTT\n"))
	require.NoError(t, err)
	assert.Equal(t, a, c)

	d, err := AssemblySHA256(strings.NewReader(">x\nACGTACGA\nNNACGT\n>y\nTTTT\n"))
	require.NoError(t, err)
	assert.NotEqual(t, a, d)

	unterminated, err := AssemblySHA256(strings.NewReader(">c1\nACGT\nTTGA"))
	require.NoError(t, err)
	terminated, err := AssemblySHA256(strings.NewReader("ACGT\nTTGA\n"))
	require.NoError(t, err)
	assert.Equal(t, terminated, unterminated)
	assert.Equal(t, "687cbf0e", unterminated[:8])
}

func TestLaunchAssembliesSkipsUnbuiltSpecies(t *testing.T) {
	f := platformtest.New()
	var out bytes.Buffer
	r := newRunner(f, &out)
	r.Novocraft = "file-novo"

	tests := map[string]catalog.AssemblyTest{
		"SRR1": {Species: "Ebola", Reads: "file-r1", Reads2: "file-r2"},
		"G1":   {Species: "Lassa", Reads: "file-g"},
	}
	runs, err := r.LaunchAssemblies(context.Background(), tests, map[string]*workflow.Built{"Ebola": assemblyWorkflow()})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "SRR1", runs[0].Sample)

	require.Len(t, f.Runs, 1)
	run := f.Runs[0]
	assert.Equal(t, "workflow-ebola", run.Executable)
	assert.Equal(t, "v1 SRR1-Assembly", run.Options.Name)
	assert.Equal(t, "/2025-06/18-test/SRR1", run.Options.Folder)
	assert.Equal(t, map[string]any{
		"stage-deplete.file":               platform.Link("file-r1"),
		"stage-deplete.paired_fastq":       platform.Link("file-r2"),
		"stage-deplete.skip_depletion":     true,
		"stage-scaffold.gatk_tarball":      platform.Link("file-gatk"),
		"stage-scaffold.novocraft_license": platform.Link("file-novo"),
	}, run.Options.Input)
	assert.ElementsMatch(t, []string{"/2025-06/18-test/G1", "/2025-06/18-test/SRR1"}, f.Folders["project-1"])
}

func TestLaunchDemuxPlus(t *testing.T) {
	f := platformtest.New()
	var out bytes.Buffer
	r := newRunner(f, &out)
	wf := &workflow.Built{ID: "workflow-demux", Stages: map[string]string{
		"demux": "stage-demux", "deplete": "stage-deplete", "metagenomics": "stage-meta",
	}}

	runs, err := r.LaunchDemuxPlus(context.Background(), map[string]catalog.DemuxTest{
		"run.1":     {UploadSentinelRecord: "record-1"},
		"tar.run.1": {RunTarballs: []string{"file-t1", "file-t2"}},
	}, wf)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run.1", runs[0].Run)

	assert.Equal(t, "v1 run.1-Demux-plus", f.Runs[0].Options.Name)
	assert.Equal(t, platform.Link("record-1"), f.Runs[0].Options.Input["stage-demux.upload_sentinel_record"])
	assert.Equal(t, platform.Link("file-kraken"), f.Runs[0].Options.Input["stage-meta.kraken_db"])
	assert.Equal(t, true, f.Runs[0].Options.Input["stage-deplete.skip_depletion"])
	assert.Equal(t, []any{platform.Link("file-t1"), platform.Link("file-t2")}, f.Runs[1].Options.Input["stage-demux.run_tarballs"])

	_, err = r.LaunchDemuxPlus(context.Background(), map[string]catalog.DemuxTest{"empty": {}}, wf)
	assert.Error(t, err)
}

func TestWaitLaunchesMuscle(t *testing.T) {
	f := platformtest.New()
	var out bytes.Buffer
	r := newRunner(f, &out)
	wf := assemblyWorkflow()

	runs, err := r.LaunchAssemblies(context.Background(), map[string]catalog.AssemblyTest{
		"SRR1": {Species: "Ebola", Reads: "file-r1", BroadAssembly: "file-broad"},
	}, map[string]*workflow.Built{"Ebola": wf})
	require.NoError(t, err)
	f.States[runs[0].AnalysisID] = []string{platform.StateInProgress}

	require.NoError(t, r.Wait(context.Background(), runs, nil))
	require.Len(t, f.Runs, 2)
	muscle := f.Runs[1]
	assert.Equal(t, "applet-muscle", muscle.Executable)
	assert.Equal(t, "mem1_ssd1_x4", muscle.Options.InstanceType)
	assert.Equal(t, "SRR1_test_alignment", muscle.Options.Input["output_name"])
	fasta := muscle.Options.Input["fasta"].([]any)
	require.Len(t, fasta, 5)
	assert.Equal(t, platform.OutputRef(runs[0].AnalysisID, "stage-scaffold", "intermediate_scaffold"), fasta[0])
	assert.Equal(t, platform.OutputRef(runs[0].AnalysisID, "stage-refine2", "refined_assembly"), fasta[3])
	assert.Equal(t, platform.Link("file-broad"), fasta[4])
}

func TestWaitFailsOnFailedAnalysis(t *testing.T) {
	f := platformtest.New()
	var out bytes.Buffer
	r := newRunner(f, &out)
	f.AddExecution(platform.Execution{ID: "analysis-1", State: platform.StateFailed})

	err := r.Wait(context.Background(), nil, []DemuxRun{{Run: "run.1", AnalysisID: "analysis-1"}})
	assert.True(t, errors.Is(err, platform.ErrExecutionFailed))
}

func TestCheck(t *testing.T) {
	f := platformtest.New()
	var out bytes.Buffer
	r := newRunner(f, &out)
	wf := assemblyWorkflow()
	fileID := f.AddFile("project-1", "/", "final.fasta", []byte(assembly))
	sum, err := AssemblySHA256(strings.NewReader(assembly))
	require.NoError(t, err)

	f.AddExecution(platform.Execution{ID: "analysis-1", State: platform.StateDone, Output: map[string]any{
		"stage-trinity.subsampled_base_count": int64(100),
		"stage-analysis.final_assembly":       platform.Link(fileID),
		"stage-analysis.alignment_base_count": int64(5000),
		"stage-analysis.mean_coverage_depth":  12.5,
	}})
	run := AssemblyRun{Sample: "SRR1", Workflow: wf, AnalysisID: "analysis-1", Test: catalog.AssemblyTest{
		ExpectedAssemblySHA256:      sum,
		ExpectedSubsampledBaseCount: 99,
		ExpectedAlignmentBaseCount:  5000,
	}}

	require.NoError(t, r.Check(context.Background(), []AssemblyRun{run}))
	assert.Contains(t, out.String(), "SRR1\tsubsampled_base_count\t99\t100\n")
	assert.Contains(t, out.String(), "SRR1\tsha256sum\t"+sum+"\t"+sum+"\n")
	assert.Contains(t, out.String(), "Success")

	run.Test.ExpectedAlignmentBaseCount = 4999
	err = r.Check(context.Background(), []AssemblyRun{run})
	assert.True(t, errors.Is(err, ErrFigureOfMerit))
	assert.Contains(t, err.Error(), "SRR1 alignment_base_count")
}

func TestMonitorPollsWhileInProgress(t *testing.T) {
	f := platformtest.New()
	var out bytes.Buffer
	r := newRunner(f, &out)
	f.AddExecution(platform.Execution{ID: "analysis-1", State: platform.StateDone, Output: map[string]any{"x": "y"}})
	f.States["analysis-1"] = []string{platform.StateInProgress, platform.StateInProgress}

	e, err := r.Monitor(context.Background(), "analysis-1")
	require.NoError(t, err)
	assert.Equal(t, platform.StateDone, e.State)
	assert.Equal(t, 3, f.Describes)
	assert.Equal(t, 3, strings.Count(out.String(), `{"x":"y"}`))
}

func TestKeepAlive(t *testing.T) {
	var buf safeBuffer
	stop := KeepAlive(&buf, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	stop()
	stop()
	assert.NotEmpty(t, buf.String())
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
