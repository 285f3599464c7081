// Package resources builds the tarball of reference data and third party
// binaries that the viral-ngs applets unpack at start up.
package resources

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/gmaffy/viral-ngs-dx/applets"
	"github.com/gmaffy/viral-ngs-dx/platform"
)

const (
	BuilderApplet = "viral-ngs-builder"
	DefaultFolder = "/resources_tarball"
)

type Options struct {
	Project   string
	Folder    string
	GitRef    string
	Novocraft string
	GATK      string
	// SourceDir holds the builder applet source.
	SourceDir string
	// ReuseBuilder skips rebuilding the builder applet already in Folder.
	ReuseBuilder bool
	PollInterval time.Duration
}

// BuildTarball runs the builder applet for GitRef and returns the id of
// the resources tarball it produces.
func BuildTarball(ctx context.Context, c platform.Client, pk applets.Packager, o Options, out io.Writer) (string, error) {
	if o.Folder == "" {
		o.Folder = DefaultFolder
	}
	if o.PollInterval == 0 {
		o.PollInterval = 30 * time.Second
	}

	project, err := c.DescribeProject(ctx, o.Project)
	if err != nil {
		return "", errors.Wrapf(err, "describing %s", o.Project)
	}
	fmt.Fprintf(out, "project: %s (%s)\n", project.Name, o.Project)
	if err := c.NewFolder(ctx, o.Project, o.Folder, true); err != nil {
		return "", errors.Wrapf(err, "creating %s", o.Folder)
	}
	fmt.Fprintf(out, "folder: %s\n", o.Folder)

	if !o.ReuseBuilder {
		if _, err := pk.Build(ctx, o.Project+":"+o.Folder+"/", filepath.Join(o.SourceDir, BuilderApplet), true); err != nil {
			return "", err
		}
	}
	builder, err := platform.FindOne(ctx, c, platform.Query{
		Class:   "applet",
		Name:    BuilderApplet,
		Project: o.Project,
		Folder:  o.Folder,
	})
	if err != nil {
		return "", err
	}

	jobID, err := c.RunApplet(ctx, builder.ID, platform.RunOptions{
		Project: o.Project,
		Folder:  o.Folder,
		Name:    "viral-ngs-bulder " + o.GitRef,
		Input: map[string]any{
			"git_commit":        o.GitRef,
			"novocraft_tarball": platform.Link(o.Novocraft),
			"gatk_tarball":      platform.Link(o.GATK),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "running the builder")
	}
	fmt.Fprintf(out, "builder job: %s\n", jobID)

	job, err := platform.WaitOnDone(ctx, c, jobID, o.PollInterval)
	if err != nil {
		return "", err
	}
	id, err := platform.LinkID(job.Output["resources"])
	if err != nil {
		return "", errors.Wrapf(err, "resources output of %s", jobID)
	}
	fmt.Fprintln(out, id)
	return id, nil
}
