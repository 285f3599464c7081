// Package testruns launches the known test samples through freshly built
// workflows and checks their figures of merit.
package testruns

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/gmaffy/viral-ngs-dx/catalog"
	"github.com/gmaffy/viral-ngs-dx/platform"
	"github.com/gmaffy/viral-ngs-dx/workflow"
)

var ErrFigureOfMerit = errors.New("figure of merit differs from the expected value")

const muscleInstanceType = "mem1_ssd1_x4"

type Runner struct {
	Client   platform.Client
	Project  string
	Folder   string
	Revision string

	Muscle    string
	GATK      string
	Novocraft string
	KrakenDB  string

	Out    io.Writer
	Logger *slog.Logger

	PollInterval      time.Duration
	KeepAliveInterval time.Duration
}

type AssemblyRun struct {
	Sample     string
	Test       catalog.AssemblyTest
	Workflow   *workflow.Built
	AnalysisID string
}

type DemuxRun struct {
	Run        string
	AnalysisID string
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) pollInterval() time.Duration {
	if r.PollInterval == 0 {
		return 30 * time.Second
	}
	return r.PollInterval
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// LaunchAssemblies runs the species workflow of every test sample.
// Samples whose species workflow was not built are skipped.
func (r *Runner) LaunchAssemblies(ctx context.Context, tests map[string]catalog.AssemblyTest, workflows map[string]*workflow.Built) ([]AssemblyRun, error) {
	var runs []AssemblyRun
	for _, sample := range sortedNames(tests) {
		test := tests[sample]
		folder := r.Folder + "/" + sample
		if err := r.Client.NewFolder(ctx, r.Project, folder, true); err != nil {
			return nil, errors.Wrapf(err, "creating %s", folder)
		}
		wf, ok := workflows[test.Species]
		if !ok {
			r.logger().Warn("TEST RUNS", "PROGRAM", "assembly", "SAMPLE", sample, "STATUS", "SKIPPED", "reason", "no workflow for "+test.Species)
			continue
		}

		input := map[string]any{
			"deplete.file":           workflow.File(test.Reads),
			"deplete.skip_depletion": true,
			"scaffold.gatk_tarball":  workflow.File(r.GATK),
		}
		if r.Novocraft != "" {
			input["scaffold.novocraft_license"] = workflow.File(r.Novocraft)
		}
		if test.Reads2 != "" {
			input["deplete.paired_fastq"] = workflow.File(test.Reads2)
		}

		id, err := wf.Run(ctx, r.Client, input, platform.RunOptions{
			Project: r.Project,
			Folder:  folder,
			Name:    r.Revision + " " + sample + "-Assembly",
		})
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(r.Out, "Launched %s for %s\n", id, sample)
		runs = append(runs, AssemblyRun{Sample: sample, Test: test, Workflow: wf, AnalysisID: id})
	}
	return runs, nil
}

// LaunchDemuxPlus runs the demux-plus workflow on every test run upload,
// skipping depletion and using the small kraken database.
func (r *Runner) LaunchDemuxPlus(ctx context.Context, tests map[string]catalog.DemuxTest, wf *workflow.Built) ([]DemuxRun, error) {
	var runs []DemuxRun
	for _, name := range sortedNames(tests) {
		test := tests[name]
		folder := r.Folder + "/" + name
		if err := r.Client.NewFolder(ctx, r.Project, folder, true); err != nil {
			return nil, errors.Wrapf(err, "creating %s", folder)
		}

		input := map[string]any{
			"deplete.skip_depletion": true,
			"metagenomics.kraken_db": workflow.File(r.KrakenDB),
		}
		switch {
		case test.UploadSentinelRecord != "":
			input["demux.upload_sentinel_record"] = workflow.File(test.UploadSentinelRecord)
		case len(test.RunTarballs) > 0:
			tarballs := make([]any, len(test.RunTarballs))
			for i, t := range test.RunTarballs {
				tarballs[i] = workflow.File(t)
			}
			input["demux.run_tarballs"] = tarballs
		default:
			return nil, errors.Errorf("demux test run %s has neither a sentinel record nor run tarballs", name)
		}

		id, err := wf.Run(ctx, r.Client, input, platform.RunOptions{
			Project: r.Project,
			Folder:  folder,
			Name:    r.Revision + " " + name + "-Demux-plus",
		})
		if err != nil {
			return nil, err
		}
		runs = append(runs, DemuxRun{Run: name, AnalysisID: id})
	}
	return runs, nil
}

// KeepAlive writes the time to w every interval until stop is called, so
// that CI consoles watching for output do not time out.
func KeepAlive(w io.Writer, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case t := <-ticker.C:
				fmt.Fprintln(w, t.Format(time.UnixDate))
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// Wait blocks until every analysis is done. Once an assembly finishes a
// MUSCLE alignment of its intermediate and final assemblies against the
// reference assembly is launched for inspection.
func (r *Runner) Wait(ctx context.Context, assemblies []AssemblyRun, demux []DemuxRun) error {
	fmt.Fprintln(r.Out, "Waiting for analyses to finish...")
	interval := r.KeepAliveInterval
	if interval == 0 {
		interval = time.Minute
	}
	stop := KeepAlive(r.Out, interval)
	defer stop()

	for _, run := range assemblies {
		if _, err := platform.WaitOnDone(ctx, r.Client, run.AnalysisID, r.pollInterval()); err != nil {
			return errors.Wrapf(err, "assembly of %s", run.Sample)
		}
		if err := r.launchMuscle(ctx, run); err != nil {
			return err
		}
	}
	for _, run := range demux {
		if _, err := platform.WaitOnDone(ctx, r.Client, run.AnalysisID, r.pollInterval()); err != nil {
			return errors.Wrapf(err, "demux-plus of %s", run.Run)
		}
	}
	return nil
}

func (r *Runner) launchMuscle(ctx context.Context, run AssemblyRun) error {
	var fasta []any
	for _, out := range [][2]string{
		{"scaffold", "intermediate_scaffold"},
		{"scaffold", "modified_scaffold"},
		{"refine1", "refined_assembly"},
		{"refine2", "refined_assembly"},
	} {
		ref, err := run.Workflow.OutputRef(run.AnalysisID, out[0], out[1])
		if err != nil {
			return err
		}
		fasta = append(fasta, ref)
	}
	fasta = append(fasta, platform.Link(run.Test.BroadAssembly))

	_, err := r.Client.RunApplet(ctx, r.Muscle, platform.RunOptions{
		Project: r.Project,
		Folder:  r.Folder + "/" + run.Sample,
		Name:    r.Revision + " " + run.Sample + " MUSCLE",
		Input: map[string]any{
			"fasta":            fasta,
			"output_format":    "html",
			"output_name":      run.Sample + "_test_alignment",
			"advanced_options": "-maxiters 2",
		},
		InstanceType: muscleInstanceType,
	})
	return errors.Wrapf(err, "launching MUSCLE for %s", run.Sample)
}

// AssemblySHA256 hashes a FASTA file with its header lines removed, so
// that contig naming does not affect the checksum. Every kept line is
// hashed newline terminated, including a last line without one.
func AssemblySHA256(in io.Reader) (string, error) {
	h := sha256.New()
	br := bufio.NewReader(in)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 && !bytes.Contains(line, []byte(">")) {
			h.Write(line)
			if line[len(line)-1] != '\n' {
				h.Write([]byte{'\n'})
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (r *Runner) intOutput(e platform.Execution, b *workflow.Built, stage, field string) (int64, error) {
	key, err := b.OutputKey(stage, field)
	if err != nil {
		return 0, err
	}
	n, ok := platform.Int(e.Output[key])
	if !ok {
		return 0, errors.Errorf("%s has no integer output %s", e.ID, key)
	}
	return n, nil
}

// Check compares the figures of merit of finished assemblies with the
// expected values. The subsampled base count drifts between releases and
// is only reported.
func (r *Runner) Check(ctx context.Context, assemblies []AssemblyRun) error {
	var failures []string
	for _, run := range assemblies {
		e, err := r.Client.DescribeExecution(ctx, run.AnalysisID)
		if err != nil {
			return errors.Wrapf(err, "describing %s", run.AnalysisID)
		}

		subsampled, err := r.intOutput(e, run.Workflow, "trinity", "subsampled_base_count")
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Out, "%s\t%s\t%d\t%d\n", run.Sample, "subsampled_base_count", run.Test.ExpectedSubsampledBaseCount, subsampled)

		key, err := run.Workflow.OutputKey("analysis", "final_assembly")
		if err != nil {
			return err
		}
		fileID, err := platform.LinkID(e.Output[key])
		if err != nil {
			return errors.Wrapf(err, "final assembly of %s", run.Sample)
		}
		var buf bytes.Buffer
		if err := r.Client.Download(ctx, fileID, &buf); err != nil {
			return err
		}
		sum, err := AssemblySHA256(&buf)
		if err != nil {
			return errors.Wrapf(err, "hashing %s", fileID)
		}
		fmt.Fprintf(r.Out, "%s\t%s\t%s\t%s\n", run.Sample, "sha256sum", run.Test.ExpectedAssemblySHA256, sum)

		aligned, err := r.intOutput(e, run.Workflow, "analysis", "alignment_base_count")
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Out, "%s\t%s\t%d\t%d\n", run.Sample, "alignment_base_count", run.Test.ExpectedAlignmentBaseCount, aligned)

		if sum != run.Test.ExpectedAssemblySHA256 {
			failures = append(failures, run.Sample+" sha256sum")
		}
		if aligned != run.Test.ExpectedAlignmentBaseCount {
			failures = append(failures, run.Sample+" alignment_base_count")
		}
	}
	if len(failures) > 0 {
		return errors.Wrap(ErrFigureOfMerit, strings.Join(failures, ", "))
	}
	fmt.Fprintln(r.Out, "Success")
	return nil
}

// Monitor prints the outputs of an analysis every poll interval while it
// is in progress, then once more at the end.
func (r *Runner) Monitor(ctx context.Context, analysisID string) (platform.Execution, error) {
	for {
		e, err := r.Client.DescribeExecution(ctx, analysisID)
		if err != nil {
			return platform.Execution{}, err
		}
		out, err := json.Marshal(e.Output)
		if err != nil {
			return e, err
		}
		fmt.Fprintln(r.Out, string(out))
		if e.State != platform.StateInProgress {
			return e, nil
		}
		select {
		case <-ctx.Done():
			return e, ctx.Err()
		case <-time.After(r.pollInterval()):
		}
	}
}

// LaunchLegacy runs the four stage assembly workflow on its fixed sample.
func (r *Runner) LaunchLegacy(ctx context.Context, wf *workflow.Built, name string, sample catalog.LegacySample) (string, error) {
	folder := r.Folder + "/" + name
	if err := r.Client.NewFolder(ctx, r.Project, folder, true); err != nil {
		return "", errors.Wrapf(err, "creating %s", folder)
	}
	id, err := wf.Run(ctx, r.Client, map[string]any{
		"trim.reads":           workflow.File(sample.Reads),
		"trim.reads2":          workflow.File(sample.Reads2),
		"filter.read_id_regex": sample.ReadIDRegex,
	}, platform.RunOptions{Project: r.Project, Folder: folder})
	if err != nil {
		return "", err
	}
	fmt.Fprintf(r.Out, "Launched %s on %s\n", id, name)
	return id, nil
}
