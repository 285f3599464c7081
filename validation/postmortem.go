package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gmaffy/viral-ngs-dx/platform"
)

// MUSCLE job states that are not final.
var muscleRunning = []string{"idle", "waiting_on_input", "runnable", "running", "waiting_on_output"}

// Result is a sample whose analysis and MUSCLE job are both done.
type Result struct {
	Sample   string
	Analysis platform.Execution
	Identity Identity
}

// outputString prints an analysis output the way the run reports always
// have: None when it is missing.
func outputString(e platform.Execution, suffix string) string {
	v, ok := e.OutputWithSuffix(suffix)
	if !ok || v == nil {
		return "None"
	}
	switch n := v.(type) {
	case json.Number:
		return n.String()
	case float64:
		return floatString(n)
	}
	return fmt.Sprint(v)
}

// floatString keeps the trailing .0 of whole numbers, as the reports
// always printed them.
func floatString(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}

func line(out io.Writer, fields ...string) {
	fmt.Fprintln(out, strings.Join(fields, "\t"))
}

// Postmortem reports the state of every sample of a validation run and
// compares the assemblies of the samples that finished.
func Postmortem(ctx context.Context, c platform.Client, recordID string, out io.Writer) ([]Result, error) {
	var details RunDetails
	if err := c.GetDetails(ctx, recordID, &details); err != nil {
		return nil, errors.Wrapf(err, "reading run record %s", recordID)
	}
	names := make([]string, 0, len(details.Samples))
	for name := range details.Samples {
		names = append(names, name)
	}
	sort.Strings(names)

	type finished struct {
		sample string
		muscle platform.Execution
	}
	var done []finished
	for _, sample := range names {
		s := details.Samples[sample]
		analysis, err := c.DescribeExecution(ctx, s.Analysis)
		if err != nil {
			return nil, errors.Wrapf(err, "describing %s", s.Analysis)
		}
		switch analysis.State {
		case platform.StateInProgress:
			line(out, "analysis_in_progress", sample, analysis.ID, analysis.State)
			continue
		case platform.StateDone:
		default:
			line(out, "analysis_failed", sample, analysis.ID, analysis.State,
				outputString(analysis, ".filtered_base_count"),
				outputString(analysis, ".subsampled_base_count"))
			continue
		}

		muscle, err := c.DescribeExecution(ctx, s.Muscle)
		if err != nil {
			return nil, errors.Wrapf(err, "describing %s", s.Muscle)
		}
		switch {
		case slices.Contains(muscleRunning, muscle.State):
			line(out, "muscle_in_progress", sample, muscle.ID, muscle.State)
		case muscle.State != platform.StateDone:
			line(out, "muscle_failed", sample, muscle.ID, muscle.State)
		default:
			done = append(done, finished{sample: sample, muscle: muscle})
		}
	}

	var results []Result
	for _, f := range done {
		fileID, err := platform.LinkID(f.muscle.Output["alignment"])
		if err != nil {
			return results, errors.Wrapf(err, "alignment of %s", f.sample)
		}
		var buf bytes.Buffer
		if err := c.Download(ctx, fileID, &buf); err != nil {
			return results, errors.Wrapf(err, "downloading %s", fileID)
		}
		id, err := ConsensusIdentity(&buf)
		if err != nil {
			return results, errors.Wrapf(err, "alignment of %s", f.sample)
		}

		// describe again for the final price
		analysis, err := c.DescribeExecution(ctx, details.Samples[f.sample].Analysis)
		if err != nil {
			return results, err
		}
		line(out, "validation_result", f.sample,
			outputString(analysis, ".filtered_base_count"),
			outputString(analysis, ".subsampled_base_count"),
			outputString(analysis, ".mean_coverage_depth"),
			strconv.Itoa(id.Length),
			strconv.Itoa(id.Identical),
			fmt.Sprintf("%.2f", id.Percent()),
			strconv.Itoa(id.Ambiguous),
			strconv.Itoa(id.Gap),
			strconv.Itoa(id.Other),
			floatString(analysis.TotalPrice))
		results = append(results, Result{Sample: f.sample, Analysis: analysis, Identity: id})
	}
	return results, nil
}
