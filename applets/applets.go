package applets

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/gmaffy/viral-ngs-dx/platform"
	"github.com/gmaffy/viral-ngs-dx/utils"
)

// Source directories, relative to the applet tree, of the applets the
// assembly and demultiplexing workflows are made of.
var WorkflowApplets = []string{
	"assembly/viral-ngs-human-depletion",
	"demux/viral-ngs-human-depletion-multiplex",
	"assembly/viral-ngs-filter",
	"assembly/viral-ngs-trinity",
	"assembly/viral-ngs-assembly-scaffolding",
	"assembly/viral-ngs-assembly-refinement",
	"assembly/viral-ngs-assembly-analysis",
	"demux/viral-ngs-demux-wrapper",
	"demux/viral-ngs-demux",
	"demux/viral-ngs-classification",
	"demux/viral-ngs-bwa-count-hits",
	"demux/viral-ngs-count-hits-multiplex",
}

// ExposedApplets are run by users directly and live next to the workflows.
var ExposedApplets = []string{"util/viral-ngs-fasta-fetcher"}

// LegacyApplets make up the four stage assembly workflow.
var LegacyApplets = []string{"viral-ngs-trimmer", "viral-ngs-filter-lastal", "viral-ngs-assembly-finisher"}

const RevisionProperty = "git_revision"

// Packager turns an applet source directory into an applet.
type Packager interface {
	Build(ctx context.Context, destination, srcDir string, force bool) (string, error)
}

type Builder struct {
	Client    platform.Client
	Packager  Packager
	Project   string
	SourceDir string
	Revision  string
	Logger    *slog.Logger
	// LogPath is the JSON log consulted to skip applets already built for
	// Revision into the same folder.
	LogPath string
}

// Build builds each applet into folder, tags it with the git revision and
// returns the applet ids by source path.
func (b *Builder) Build(ctx context.Context, folder string, applets []string) (map[string]string, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var logged []utils.LogEntry
	if b.LogPath != "" {
		logged = utils.ParseLogFile(b.LogPath)
	}

	ids := make(map[string]string, len(applets))
	for _, applet := range applets {
		if id, done := utils.StageHasCompleted(logged, applet, b.Revision, folder); done {
			logger.Info("BUILD APPLETS", "PROGRAM", "dx build", "APPLET", applet, "REVISION", b.Revision, "FOLDER", folder, "STATUS", "SKIPPED", "ID", id)
			ids[applet] = id
			continue
		}

		logger.Info("BUILD APPLETS", "PROGRAM", "dx build", "APPLET", applet, "REVISION", b.Revision, "FOLDER", folder, "STATUS", utils.StatusStarted)
		id, err := b.Packager.Build(ctx, b.Project+":"+folder+"/", filepath.Join(b.SourceDir, applet), false)
		if err != nil {
			logger.Error("BUILD APPLETS", "PROGRAM", "dx build", "APPLET", applet, "REVISION", b.Revision, "FOLDER", folder, "STATUS", utils.StatusFailed, "error", err)
			return nil, errors.Wrapf(err, "building %s", applet)
		}
		if err := b.Client.SetProperties(ctx, id, b.Project, map[string]string{RevisionProperty: b.Revision}); err != nil {
			return nil, errors.Wrapf(err, "tagging %s", id)
		}
		logger.Info("BUILD APPLETS", "PROGRAM", "dx build", "APPLET", applet, "REVISION", b.Revision, "FOLDER", folder, "STATUS", utils.StatusCompleted, "ID", id)
		ids[applet] = id
	}
	return ids, nil
}

// Resolver finds applets by name in one folder of a project. Lookups must
// match exactly one applet.
type Resolver struct {
	Client  platform.Client
	Project string
	Folder  string

	mu      sync.Mutex
	ids     map[string]string
	applets map[string]platform.Applet
}

func NewResolver(c platform.Client, project, folder string) *Resolver {
	return &Resolver{
		Client:  c,
		Project: project,
		Folder:  folder,
		ids:     map[string]string{},
		applets: map[string]platform.Applet{},
	}
}

func (r *Resolver) AppletID(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	id, ok := r.ids[name]
	r.mu.Unlock()
	if ok {
		return id, nil
	}
	obj, err := platform.FindOne(ctx, r.Client, platform.Query{
		Class:   "applet",
		Name:    name,
		Project: r.Project,
		Folder:  r.Folder,
		Recurse: true,
	})
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.ids[name] = obj.ID
	r.mu.Unlock()
	return obj.ID, nil
}

func (r *Resolver) Applet(ctx context.Context, name string) (platform.Applet, error) {
	r.mu.Lock()
	a, ok := r.applets[name]
	r.mu.Unlock()
	if ok {
		return a, nil
	}
	id, err := r.AppletID(ctx, name)
	if err != nil {
		return platform.Applet{}, err
	}
	a, err = r.Client.DescribeApplet(ctx, id)
	if err != nil {
		return platform.Applet{}, errors.Wrapf(err, "describing %s", name)
	}
	r.mu.Lock()
	r.applets[name] = a
	r.mu.Unlock()
	return a, nil
}

// GitRevision describes the checkout containing dir.
func GitRevision(dir string) (string, error) {
	return utils.RunCmdOutput(dir, "git", "describe", "--always", "--dirty", "--tags")
}

// DefaultFolder is the timestamped folder a build goes to when none is given.
func DefaultFolder(now time.Time, revision string) string {
	return now.Format("/2006-01/02-150405-") + revision
}

// AppletsFolder is where the workflow applets of a build live.
func AppletsFolder(folder string) string {
	return folder + "/applets"
}
