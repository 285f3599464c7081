// Package validation runs an assembly workflow over samples that were
// assembled before and compares the new assemblies with the old ones.
package validation

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/gmaffy/viral-ngs-dx/platform"
	"github.com/gmaffy/viral-ngs-dx/workflow"
)

const (
	inputBAMFolder  = "/data/01_per_sample"
	assemblyFolder  = "/data/02_assembly"
	inputBAMSuffix  = ".cleaned.bam"
	assemblySuffix  = ".fasta"
	muscleInstance  = "mem1_ssd1_x4"
	DefaultPriority = "normal"
	// InputStage is the id of the stage the validation inputs are bound to.
	InputStage = "validate"
)

type SampleRun struct {
	BIAssembly string `json:"bi_assembly"`
	InputBAM   string `json:"input_bam"`
	Analysis   string `json:"analysis,omitempty"`
	Muscle     string `json:"muscle,omitempty"`
}

// RunDetails is stored on the run record so that the run can be examined
// later.
type RunDetails struct {
	ID       string                `json:"id"`
	Workflow string                `json:"workflow"`
	Samples  map[string]*SampleRun `json:"samples"`
}

type LaunchOptions struct {
	Project     string
	Folder      string
	Workflow    string
	Novocraft   string
	GATK        string
	Muscle      string
	DataProject string
	Limit       int
	RunID       string
}

// RunID names a validation run after the launch time and the revision.
func RunID(now time.Time, revision string) string {
	return now.Format("2006-01-02-150405-") + revision
}

func StripEnd(text, suffix string) string {
	return strings.TrimSuffix(text, suffix)
}

func filesBySample(ctx context.Context, c platform.Client, project, folder, suffix string) (map[string]string, error) {
	objs, err := c.FindDataObjects(ctx, platform.Query{
		Class:    "file",
		NameGlob: "*" + suffix,
		Project:  project,
		Folder:   folder,
		Recurse:  true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s:%s", project, folder)
	}
	out := make(map[string]string, len(objs))
	for _, o := range objs {
		out[StripEnd(o.Name, suffix)] = o.ID
	}
	return out, nil
}

// Samples joins the previous assemblies of the data project with their
// input BAMs. Samples are taken in name order up to limit when limit is
// positive.
func Samples(ctx context.Context, c platform.Client, dataProject string, limit int, out io.Writer) (map[string]*SampleRun, error) {
	bams, err := filesBySample(ctx, c, dataProject, inputBAMFolder, inputBAMSuffix)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Found %d input BAMs\n", len(bams))
	assemblies, err := filesBySample(ctx, c, dataProject, assemblyFolder, assemblySuffix)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Found %d output assemblies\n", len(assemblies))

	names := make([]string, 0, len(assemblies))
	for name := range assemblies {
		names = append(names, name)
	}
	sort.Strings(names)

	samples := map[string]*SampleRun{}
	for _, name := range names {
		bam, ok := bams[name]
		if !ok {
			return nil, errors.Wrapf(platform.ErrNotFound, "input BAM for %s", name)
		}
		samples[name] = &SampleRun{BIAssembly: assemblies[name], InputBAM: bam}
		if limit > 0 && len(samples) >= limit {
			break
		}
	}
	return samples, nil
}

// Launch starts the workflow and a MUSCLE alignment of the new against the
// previous assembly for every sample, and records the run. It returns the
// run record id.
func Launch(ctx context.Context, c platform.Client, o LaunchOptions, out io.Writer) (string, RunDetails, error) {
	if o.Folder == "" {
		o.Folder = "/validation/" + o.RunID
	}
	wf, err := workflow.Attach(ctx, c, o.Workflow)
	if err != nil {
		return "", RunDetails{}, err
	}
	samples, err := Samples(ctx, c, o.DataProject, o.Limit, out)
	if err != nil {
		return "", RunDetails{}, err
	}
	details := RunDetails{ID: o.RunID, Workflow: o.Workflow, Samples: samples}
	fmt.Fprintf(out, "%s launching %d samples\n", o.RunID, len(samples))

	if err := c.NewFolder(ctx, o.Project, o.Folder, true); err != nil {
		return "", details, errors.Wrapf(err, "creating %s", o.Folder)
	}
	recordID, err := c.NewRecord(ctx, o.Project, o.Folder, o.RunID)
	if err != nil {
		return "", details, errors.Wrap(err, "creating run record")
	}

	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, sample := range names {
		s := samples[sample]
		folder := o.Folder + "/" + sample
		if err := c.NewFolder(ctx, o.Project, folder, true); err != nil {
			return "", details, errors.Wrapf(err, "creating %s", folder)
		}
		name := "viral-ngs-assembly validation " + o.RunID + " " + sample
		analysisID, err := c.RunWorkflow(ctx, wf.ID, platform.RunOptions{
			Project: o.Project,
			Folder:  folder,
			Name:    name,
			Input: map[string]any{
				InputStage + ".file":              platform.Link(s.InputBAM),
				InputStage + ".novocraft_tarball": platform.Link(o.Novocraft),
				InputStage + ".gatk_tarball":      platform.Link(o.GATK),
			},
			Priority: DefaultPriority,
		})
		if err != nil {
			return "", details, errors.Wrapf(err, "running %s on %s", o.Workflow, sample)
		}
		s.Analysis = analysisID
		fmt.Fprintf(out, "%s %s\n", analysisID, name)

		final, err := wf.OutputRef(analysisID, "analysis", "final_assembly")
		if err != nil {
			return "", details, err
		}
		muscleID, err := c.RunApplet(ctx, o.Muscle, platform.RunOptions{
			Project: o.Project,
			Folder:  folder,
			Name:    name + " MUSCLE",
			Input: map[string]any{
				"fasta":            []any{platform.Link(s.BIAssembly), final},
				"output_format":    "fasta",
				"output_name":      sample + "_validation_alignment",
				"advanced_options": "-maxiters 2",
			},
			InstanceType: muscleInstance,
			Priority:     DefaultPriority,
		})
		if err != nil {
			return "", details, errors.Wrapf(err, "launching MUSCLE for %s", sample)
		}
		s.Muscle = muscleID
		fmt.Fprintf(out, "%s %s MUSCLE\n", muscleID, name)
	}

	if err := c.SetDetails(ctx, recordID, details); err != nil {
		return "", details, errors.Wrapf(err, "recording run %s", o.RunID)
	}
	if err := c.CloseRecord(ctx, recordID); err != nil {
		return "", details, errors.Wrapf(err, "closing %s", recordID)
	}
	fmt.Fprintf(out, "%s %s\n", o.RunID, recordID)
	return recordID, details, nil
}
