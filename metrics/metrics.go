// Package metrics flattens job and analysis descriptions into a CSV of
// top level attributes and integer outputs.
package metrics

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"

	"github.com/gmaffy/viral-ngs-dx/platform"
)

// States accepted by the state filter. runnable means waiting to execute.
var States = []string{"done", "failed", "running", "terminated", "runnable"}

type Options struct {
	// States limits project expansion to executions in these states.
	States []string
	// ExecutableNames keeps only executions of these executables.
	ExecutableNames []string
	// NoDescendants drops executions that belong to a parent analysis.
	NoDescendants bool
	Workers       int
}

// IDs groups the ids given on the command line by kind; anything else is
// ignored.
type IDs struct {
	Projects []string
	Analyses []string
	Jobs     []string
}

func Classify(ids []string) IDs {
	var out IDs
	for _, id := range ids {
		switch {
		case strings.HasPrefix(id, "project-"):
			out.Projects = append(out.Projects, id)
		case strings.HasPrefix(id, "analysis-"):
			out.Analyses = append(out.Analyses, id)
		case strings.HasPrefix(id, "job-"):
			out.Jobs = append(out.Jobs, id)
		}
	}
	return out
}

// ValidateStates rejects states outside States.
func ValidateStates(states []string) error {
	for _, s := range states {
		if !slices.Contains(States, s) {
			return errors.Errorf("invalid state %q (choose from %s)", s, strings.Join(States, ", "))
		}
	}
	return nil
}

// Expand lists the executions of every project, per state when states are
// given, and returns them with the analyses and jobs without duplicates.
func Expand(ctx context.Context, c platform.Client, ids IDs, states []string) ([]string, error) {
	var fromProjects []string
	for _, project := range ids.Projects {
		if len(states) == 0 {
			found, err := c.FindExecutions(ctx, project, "")
			if err != nil {
				return nil, errors.Wrapf(err, "listing executions of %s", project)
			}
			fromProjects = append(fromProjects, found...)
			continue
		}
		for _, state := range states {
			found, err := c.FindExecutions(ctx, project, state)
			if err != nil {
				return nil, errors.Wrapf(err, "listing %s executions of %s", state, project)
			}
			fromProjects = append(fromProjects, found...)
		}
	}
	all := append(append(slices.Clone(ids.Analyses), fromProjects...), ids.Jobs...)
	return lo.Uniq(all), nil
}

// Describe fetches the descriptions of ids with at most workers requests
// in flight, keeping the order of ids.
func Describe(ctx context.Context, c platform.Client, ids []string, workers int) ([]platform.Execution, error) {
	if workers < 1 {
		workers = 1
	}
	descs := make([]platform.Execution, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			e, err := c.DescribeExecution(ctx, id)
			if err != nil {
				return errors.Wrapf(err, "describing %s", id)
			}
			descs[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return descs, nil
}

// Collect expands and describes the given ids.
func Collect(ctx context.Context, c platform.Client, ids []string, o Options, out io.Writer) ([]platform.Execution, error) {
	toDescribe, err := Expand(ctx, c, Classify(ids), o.States)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Reading %d total executions...\n", len(toDescribe))
	return Describe(ctx, c, toDescribe, o.Workers)
}

// Created formats a millisecond timestamp as UTC ISO-8601, with
// microseconds only when they are non-zero.
func Created(ms int64) string {
	t := time.UnixMilli(ms).UTC()
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format("2006-01-02T15:04:05.000000")
}

// Row is one execution's metrics by column name.
type Row map[string]string

// Flatten applies the filters and turns each description into a row.
// Integer outputs are keyed by the last dotted segment of their name, so
// a later stage output wins over an earlier one of the same name.
func Flatten(descs []platform.Execution, o Options) []Row {
	var rows []Row
	for _, e := range descs {
		if o.NoDescendants && e.ParentAnalysis != nil {
			continue
		}
		if len(o.ExecutableNames) > 0 && !slices.Contains(o.ExecutableNames, e.ExecutableName) {
			continue
		}
		row := Row{
			"id":             e.ID,
			"executableName": e.ExecutableName,
			"folder":         e.Folder,
			"name":           e.Name,
			"state":          e.State,
			"launchedBy":     e.LaunchedBy,
			"parentAnalysis": lo.FromPtr(e.ParentAnalysis),
			"created":        Created(e.Created),
		}
		for key, v := range e.Output {
			n, ok := platform.Int(v)
			if !ok {
				continue
			}
			field := key[strings.LastIndex(key, ".")+1:]
			row[field] = strconv.FormatInt(n, 10)
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV writes rows under a header of every column seen, sorted. Cells
// a row lacks are left empty.
func WriteCSV(w io.Writer, rows []Row) error {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	header := maps.Keys(seen)
	slices.Sort(header)
	if len(header) == 0 {
		_, err := io.WriteString(w, "\n")
		return err
	}

	columns := make([]series.Series, len(header))
	for i, name := range header {
		values := lo.Map(rows, func(row Row, _ int) string { return row[name] })
		columns[i] = series.New(values, series.String, name)
	}
	df := dataframe.New(columns...)
	if df.Err != nil {
		return errors.Wrap(df.Err, "building metrics table")
	}
	return df.WriteCSV(w)
}
