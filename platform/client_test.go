package platform_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmaffy/viral-ngs-dx/platform"
	"github.com/gmaffy/viral-ngs-dx/platform/platformtest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *platform.HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	c, err := platform.NewHTTPClient(platform.Settings{Protocol: "http", Host: u.Hostname(), Port: u.Port(), Token: "tok"})
	require.NoError(t, err)
	return c
}

func TestNewHTTPClientRequiresToken(t *testing.T) {
	_, err := platform.NewHTTPClient(platform.Settings{})
	assert.ErrorIs(t, err, platform.ErrNoToken)
}

func TestFindDataObjectsFollowsPagination(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/system/findDataObjects", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, map[string]any{"glob": "*.fasta"}, req["name"])
		calls++
		if calls == 1 {
			assert.Nil(t, req["starting"])
			_, _ = w.Write([]byte(`{"results":[{"project":"project-1","id":"file-1","describe":{"name":"a.fasta","folder":"/d"}}],"next":{"project":"project-1","id":"file-2"}}`))
			return
		}
		assert.NotNil(t, req["starting"])
		_, _ = w.Write([]byte(`{"results":[{"project":"project-1","id":"file-2","describe":{"name":"b.fasta","folder":"/d"}}],"next":null}`))
	})

	objs, err := c.FindDataObjects(context.Background(), platform.Query{Class: "file", NameGlob: "*.fasta", Project: "project-1", Folder: "/d"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, objs, 2)
	assert.Equal(t, "a.fasta", objs[0].Name)
	assert.Equal(t, "file-2", objs[1].ID)
}

func TestCallMapsResourceNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"type":"ResourceNotFound","message":"no such applet"}}`))
	})
	_, err := c.DescribeApplet(context.Background(), "applet-x")
	assert.ErrorIs(t, err, platform.ErrNotFound)
}

func TestAddStageSendsEditVersion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/workflow-1/describe":
			_, _ = w.Write([]byte(`{"id":"workflow-1","editVersion":3,"stages":[]}`))
		case "/workflow-1/addStage":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.EqualValues(t, 3, req["editVersion"])
			assert.Equal(t, "applet-9", req["executable"])
			assert.Equal(t, "trinity", req["name"])
			assert.Equal(t, map[string]any{"*": map[string]any{"instanceType": "mem2_ssd1_x2"}}, req["systemRequirements"])
			_, _ = w.Write([]byte(`{"stage":"stage-7","editVersion":4}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	id, err := c.AddStage(context.Background(), "workflow-1", platform.StageOptions{
		Name: "trinity", Executable: "applet-9", InstanceType: "mem2_ssd1_x2", Input: map[string]any{},
	})
	require.NoError(t, err)
	assert.Equal(t, "stage-7", id)
}

func TestDescribeExecutionKeepsIntegerOutputs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"analysis-1","state":"done","created":1450000000000,"output":{"stage-1.alignment_base_count":1135543,"stage-1.mean_coverage_depth":12.5}}`))
	})
	e, err := c.DescribeExecution(context.Background(), "analysis-1")
	require.NoError(t, err)
	n, ok := platform.Int(e.Output["stage-1.alignment_base_count"])
	assert.True(t, ok)
	assert.EqualValues(t, 1135543, n)
	_, ok = platform.Int(e.Output["stage-1.mean_coverage_depth"])
	assert.False(t, ok)
}

func TestFindOne(t *testing.T) {
	f := platformtest.New()
	f.AddApplet("project-1", "/a/applets", "viral-ngs-filter")
	f.AddApplet("project-1", "/a/applets", "viral-ngs-trinity")
	f.AddApplet("project-1", "/b/applets", "viral-ngs-trinity")
	ctx := context.Background()

	obj, err := platform.FindOne(ctx, f, platform.Query{Class: "applet", Name: "viral-ngs-filter", Project: "project-1", Folder: "/a/applets"})
	require.NoError(t, err)
	assert.Equal(t, "viral-ngs-filter", obj.Name)

	_, err = platform.FindOne(ctx, f, platform.Query{Class: "applet", Name: "viral-ngs-missing", Project: "project-1"})
	assert.True(t, errors.Is(err, platform.ErrNotFound))

	_, err = platform.FindOne(ctx, f, platform.Query{Class: "applet", Name: "viral-ngs-trinity", Project: "project-1", Folder: "/", Recurse: true})
	assert.True(t, errors.Is(err, platform.ErrNotUnique))
}

func TestLinkID(t *testing.T) {
	id, err := platform.LinkID(platform.Link("file-1"))
	require.NoError(t, err)
	assert.Equal(t, "file-1", id)

	id, err = platform.LinkID(map[string]any{"$dnanexus_link": map[string]any{"project": "project-1", "id": "file-2"}})
	require.NoError(t, err)
	assert.Equal(t, "file-2", id)

	id, err = platform.LinkID("file-3")
	require.NoError(t, err)
	assert.Equal(t, "file-3", id)

	_, err = platform.LinkID(42)
	assert.Error(t, err)
}

func TestWaitOnDone(t *testing.T) {
	f := platformtest.New()
	f.AddExecution(platform.Execution{ID: "job-1", State: platform.StateDone})
	f.States["job-1"] = []string{"runnable", "running"}
	e, err := platform.WaitOnDone(context.Background(), f, "job-1", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, platform.StateDone, e.State)
	assert.Equal(t, 3, f.Describes)

	f.AddExecution(platform.Execution{ID: "job-2", State: platform.StateFailed})
	_, err = platform.WaitOnDone(context.Background(), f, "job-2", time.Millisecond)
	assert.ErrorIs(t, err, platform.ErrExecutionFailed)

	f.AddExecution(platform.Execution{ID: "analysis-3", State: platform.StatePartiallyFailed})
	_, err = platform.WaitOnDone(context.Background(), f, "analysis-3", time.Millisecond)
	assert.ErrorIs(t, err, platform.ErrExecutionFailed)
}

func TestTerminal(t *testing.T) {
	for _, s := range []string{platform.StateDone, platform.StateFailed, platform.StateTerminated, platform.StatePartiallyFailed} {
		assert.True(t, platform.Terminal(s), s)
	}
	for _, s := range []string{platform.StateInProgress, "runnable", "running", "waiting_on_output"} {
		assert.False(t, platform.Terminal(s), s)
	}
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("DX_SECURITY_CONTEXT", `{"auth_token_type":"Bearer","auth_token":"abc"}`)
	t.Setenv("DX_APISERVER_HOST", "api.example.org")
	s := platform.Settings{Host: "explicit.example.org"}.Merge(platform.SettingsFromEnv())
	assert.Equal(t, "abc", s.Token)
	assert.Equal(t, "explicit.example.org", s.Host)
}
