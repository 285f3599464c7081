// Package mosaik installs the MOSAIK aligner from source at a pinned
// commit.
package mosaik

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"

	"github.com/gmaffy/viral-ngs-dx/utils"
)

const (
	CommitHash  = "5c25216d3522d6a33e53875cd76a6d65001e4e67"
	urlTemplate = "https://github.com/wanpinglee/MOSAIK/archive/%s.zip"
)

// BuildPlatform is the BLD_PLATFORM the MOSAIK makefile needs on macOS.
// It is empty elsewhere.
func BuildPlatform(goos, goarch string) string {
	if goos != "darwin" {
		return ""
	}
	if strings.HasSuffix(goarch, "64") {
		return "macosx64"
	}
	return "macosx"
}

type Tool struct {
	BuildDir string
	URL      string
	// BuildCmd is run in the source directory after unpacking.
	BuildCmd   string
	HTTPClient *http.Client
	Logger     *slog.Logger
	GOOS       string
	GOARCH     string
}

func New(buildDir string) *Tool {
	return &Tool{
		BuildDir:   buildDir,
		URL:        fmt.Sprintf(urlTemplate, CommitHash),
		BuildCmd:   "make -s",
		HTTPClient: http.DefaultClient,
		Logger:     slog.Default(),
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
	}
}

// Dir is the install directory.
func (t *Tool) Dir() string {
	return filepath.Join(t.BuildDir, "mosaik-"+CommitHash)
}

func (t *Tool) SourceDir() string {
	return filepath.Join(t.Dir(), "MOSAIK-"+CommitHash, "src")
}

func (t *Tool) Executable() string {
	return filepath.Join(t.Dir(), "bin", "MosaikAligner")
}

func (t *Tool) IsInstalled() bool {
	info, err := os.Stat(t.Executable())
	return err == nil && !info.IsDir()
}

// Install downloads, unpacks and builds MOSAIK unless it is installed.
func (t *Tool) Install(ctx context.Context) error {
	if t.IsInstalled() {
		t.Logger.Info("MOSAIK", "PROGRAM", "install", "STATUS", "SKIPPED", "path", t.Executable())
		return nil
	}
	t.Logger.Info("MOSAIK", "PROGRAM", "install", "STATUS", utils.StatusStarted, "url", t.URL)
	if err := t.Download(ctx); err != nil {
		t.Logger.Error("MOSAIK", "PROGRAM", "install", "STATUS", utils.StatusFailed, "error", err)
		return err
	}

	cmd := t.BuildCmd
	if p := BuildPlatform(t.GOOS, t.GOARCH); p != "" {
		cmd = "BLD_PLATFORM=" + p + " " + cmd
	}
	if err := utils.RunBashCmdVerbose(fmt.Sprintf("cd %q && %s", t.SourceDir(), cmd)); err != nil {
		t.Logger.Error("MOSAIK", "PROGRAM", "make", "STATUS", utils.StatusFailed, "error", err)
		return errors.Wrap(err, "building MOSAIK")
	}
	if !t.IsInstalled() {
		return errors.Errorf("MOSAIK build did not produce %s", t.Executable())
	}
	t.Logger.Info("MOSAIK", "PROGRAM", "install", "STATUS", utils.StatusCompleted, "path", t.Executable())
	return nil
}

// NetworkFile returns the directory of neural network files shipped with
// the source, downloading the source if needed.
func (t *Tool) NetworkFile(ctx context.Context) (string, error) {
	dir := filepath.Join(t.SourceDir(), "networkFile")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir, nil
	}
	if err := t.Download(ctx); err != nil {
		return "", err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", errors.Errorf("%s missing from the MOSAIK source", dir)
	}
	return dir, nil
}

// Download fetches the source archive and unpacks it into Dir.
func (t *Tool) Download(ctx context.Context) error {
	if err := os.MkdirAll(t.Dir(), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(t.BuildDir, "mosaik-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return err
	}
	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "downloading %s", t.URL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("downloading %s: %s", t.URL, resp.Status)
	}
	size, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return errors.Wrapf(err, "downloading %s", t.URL)
	}
	return unzip(tmp, size, t.Dir())
}

func unzip(r io.ReaderAt, size int64, dest string) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return errors.Wrap(err, "opening archive")
	}
	root := filepath.Clean(dest) + string(os.PathSeparator)
	for _, f := range zr.File {
		path := filepath.Join(dest, f.Name)
		if !strings.HasPrefix(path, root) {
			return errors.Errorf("archive entry %s escapes %s", f.Name, dest)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
			continue
		}
		if err := extract(f, path); err != nil {
			return errors.Wrapf(err, "extracting %s", f.Name)
		}
	}
	return nil
}

func extract(f *zip.File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
