package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// DX drives the local dx command line client, which is the only way to
// package an applet source directory.
type DX struct {
	Bin string
}

func (d DX) bin() string {
	if d.Bin == "" {
		return "dx"
	}
	return d.Bin
}

// Build runs `dx build` for srcDir into destination (project:folder/) and
// returns the new applet id.
func (d DX) Build(ctx context.Context, destination, srcDir string, force bool) (string, error) {
	args := []string{"build"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, "--destination", destination, srcDir)

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, d.bin(), args...)
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "dx build %s", srcDir)
	}
	id, err := parseBuildOutput(stdout.Bytes())
	if err != nil {
		return "", errors.Wrapf(err, "dx build %s", srcDir)
	}
	return id, nil
}

func parseBuildOutput(out []byte) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(out), &resp); err != nil {
		return "", errors.Wrap(err, "parsing build output")
	}
	if resp.ID == "" {
		return "", errors.New("build output has no id")
	}
	return resp.ID, nil
}
