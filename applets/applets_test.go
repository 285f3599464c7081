package applets

import (
	"context"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmaffy/viral-ngs-dx/platform"
	"github.com/gmaffy/viral-ngs-dx/platform/platformtest"
	"github.com/gmaffy/viral-ngs-dx/utils"
)

type fakePackager struct {
	fake    *platformtest.Fake
	project string
	built   []string
	fail    string
}

func (p *fakePackager) Build(_ context.Context, destination, srcDir string, _ bool) (string, error) {
	if filepath.Base(srcDir) == p.fail {
		return "", errors.New("dx build failed")
	}
	p.built = append(p.built, srcDir)
	folder := destination[len(p.project)+1 : len(destination)-1]
	return p.fake.AddApplet(p.project, folder, path.Base(srcDir)), nil
}

func TestBuilderBuildsAndTags(t *testing.T) {
	f := platformtest.New()
	pk := &fakePackager{fake: f, project: "project-1"}
	logPath := filepath.Join(t.TempDir(), "build.log")
	logger, closer, err := utils.NewLogger(logPath)
	require.NoError(t, err)
	defer closer.Close()

	b := &Builder{Client: f, Packager: pk, Project: "project-1", SourceDir: "/src", Revision: "v1-2-gabc", Logger: logger, LogPath: logPath}
	ids, err := b.Build(context.Background(), "/f/applets", LegacyApplets)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, []string{"/src/viral-ngs-trimmer", "/src/viral-ngs-filter-lastal", "/src/viral-ngs-assembly-finisher"}, pk.built)
	for _, id := range ids {
		assert.Equal(t, "v1-2-gabc", f.Properties[id][RevisionProperty])
	}

	// a second run into the same folder reuses the logged applets
	again, err := b.Build(context.Background(), "/f/applets", LegacyApplets)
	require.NoError(t, err)
	assert.Equal(t, ids, again)
	assert.Len(t, pk.built, 3)

	// a new revision rebuilds
	b.Revision = "v1-3-gdef"
	_, err = b.Build(context.Background(), "/f/applets", LegacyApplets[:1])
	require.NoError(t, err)
	assert.Len(t, pk.built, 4)
}

func TestBuilderStopsOnFailure(t *testing.T) {
	f := platformtest.New()
	pk := &fakePackager{fake: f, project: "project-1", fail: "viral-ngs-filter-lastal"}
	b := &Builder{Client: f, Packager: pk, Project: "project-1", SourceDir: "/src", Revision: "r", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	_, err := b.Build(context.Background(), "/f/applets", LegacyApplets)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "viral-ngs-filter-lastal")
	assert.Len(t, pk.built, 1)
}

func TestResolver(t *testing.T) {
	f := platformtest.New()
	id := f.AddApplet("project-1", "/f/applets", "viral-ngs-human-depletion",
		platform.InputParam{Name: "resources", Default: platform.Link("file-res")})
	f.AddApplet("project-1", "/g/applets", "viral-ngs-human-depletion")
	ctx := context.Background()

	r := NewResolver(f, "project-1", "/f/applets")
	got, err := r.AppletID(ctx, "viral-ngs-human-depletion")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	a, err := r.Applet(ctx, "viral-ngs-human-depletion")
	require.NoError(t, err)
	def, err := a.InputDefault("resources")
	require.NoError(t, err)
	assert.Equal(t, platform.Link("file-res"), def)

	_, err = r.AppletID(ctx, "viral-ngs-missing")
	assert.True(t, errors.Is(err, platform.ErrNotFound))

	wide := NewResolver(f, "project-1", "/")
	_, err = wide.AppletID(ctx, "viral-ngs-human-depletion")
	assert.True(t, errors.Is(err, platform.ErrNotUnique))
}

func TestDefaultFolder(t *testing.T) {
	now := time.Date(2016, 3, 7, 9, 5, 4, 0, time.UTC)
	assert.Equal(t, "/2016-03/07-090504-v1.2.0-4-g1a2b3c", DefaultFolder(now, "v1.2.0-4-g1a2b3c"))
	assert.Equal(t, "/x/applets", AppletsFolder("/x"))
}
