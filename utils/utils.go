package utils

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

type Config struct {
	Project   string
	Folder    string
	GATK      string
	Novocraft string
	Resources string
	Muscle    string

	APIServerHost     string
	APIServerPort     string
	APIServerProtocol string
	AuthToken         string

	AppletsDir string
	BuildDir   string
	LogFile    string
	Threads    int
	States     []string
	Executable []string
}

func ReadConfig(configPath string) (Config, error) {
	configFile, err := os.Open(configPath)
	if err != nil {
		return Config{}, err
	}
	defer configFile.Close()
	var cfg Config

	scanner := bufio.NewScanner(configFile)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "project":
			cfg.Project = value
		case "folder":
			cfg.Folder = value
		case "gatk":
			cfg.GATK = value
		case "novocraft":
			cfg.Novocraft = value
		case "resources":
			cfg.Resources = value
		case "muscle":
			cfg.Muscle = value

		case "apiserver_host":
			cfg.APIServerHost = value
		case "apiserver_port":
			cfg.APIServerPort = value
		case "apiserver_protocol":
			cfg.APIServerProtocol = value
		case "auth_token":
			cfg.AuthToken = value

		case "applets_dir":
			cfg.AppletsDir = value
		case "build_dir":
			cfg.BuildDir = value
		case "log_file":
			cfg.LogFile = value
		case "threads":
			n, err := strconv.Atoi(value)
			if err != nil {
				return cfg, fmt.Errorf("threads: %w", err)
			}
			cfg.Threads = n
		case "state":
			cfg.States = append(cfg.States, value)
		case "executable":
			cfg.Executable = append(cfg.Executable, value)
		}
	}

	if err := scanner.Err(); err != nil {
		return cfg, err
	}

	return cfg, nil

}

// Or returns the first non-empty value.
func Or(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func RunBashCmdVerbose(cmdStr string) error {
	cmd := exec.Command("bash", "-c", cmdStr)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err != nil {
		return err
	}
	return nil
}

// RunCmdOutput runs name with args in dir and returns trimmed stdout.
func RunCmdOutput(dir string, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(out.String()), nil
}

// CheckDeps makes sure every executable is on PATH.
func CheckDeps(deps ...string) error {
	var missing []string
	for _, d := range deps {
		if _, err := exec.LookPath(d); err != nil {
			missing = append(missing, d)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("not found on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}
