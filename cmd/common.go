package cmd

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/gmaffy/viral-ngs-dx/catalog"
	"github.com/gmaffy/viral-ngs-dx/platform"
	"github.com/gmaffy/viral-ngs-dx/utils"
)

const defaultLogFile = "viral-ngs-dx.log.json"

// session is what every subcommand starts from.
type session struct {
	cfg     utils.Config
	cat     catalog.Catalog
	client  platform.Client
	logger  *slog.Logger
	logPath string
	closer  io.Closer
}

func (s *session) Close() {
	s.closer.Close()
}

func loadConfig() utils.Config {
	if cfgFile == "" {
		return utils.Config{}
	}
	cfg, err := utils.ReadConfig(cfgFile)
	if err != nil {
		log.Fatalf("Error reading config file %s: %v", cfgFile, err)
	}
	return cfg
}

// newSession reads the config, the catalog, opens the log and, when
// withClient is set, connects to the API server.
func newSession(withClient bool) *session {
	cfg := loadConfig()
	cat, err := catalog.Load()
	if err != nil {
		log.Fatalf("Error loading catalog: %v", err)
	}
	logPath := utils.Or(logFile, cfg.LogFile, defaultLogFile)
	logger, closer, err := utils.NewLogger(logPath)
	if err != nil {
		log.Fatalf("Error opening log file %s: %v", logPath, err)
	}
	slog.SetDefault(logger)

	s := &session{cfg: cfg, cat: cat, logger: logger, logPath: logPath, closer: closer}
	if withClient {
		settings := platform.Settings{
			Protocol: cfg.APIServerProtocol,
			Host:     cfg.APIServerHost,
			Port:     cfg.APIServerPort,
			Token:    cfg.AuthToken,
		}.Merge(platform.SettingsFromEnv())
		client, err := platform.NewHTTPClient(settings)
		if err != nil {
			log.Fatalf("Error connecting to DNAnexus (log in with dx login or set auth_token): %v", err)
		}
		s.client = client
	}
	return s
}

// project picks the --project flag, then the config, then def.
func (s *session) project(def string) string {
	return utils.Or(projectID, s.cfg.Project, def)
}

// stringFlag returns the flag when it was given, else the first non-empty
// fallback.
func stringFlag(cmd *cobra.Command, name string, fallbacks ...string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		log.Fatalf("Error getting %s flag: %v", name, err)
	}
	if cmd.Flags().Changed(name) {
		return v
	}
	return utils.Or(append(fallbacks, v)...)
}

func boolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		log.Fatalf("Error getting %s flag: %v", name, err)
	}
	return v
}

func intFlag(cmd *cobra.Command, name string) int {
	v, err := cmd.Flags().GetInt(name)
	if err != nil {
		log.Fatalf("Error getting %s flag: %v", name, err)
	}
	return v
}

func stringSliceFlag(cmd *cobra.Command, name string) []string {
	v, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		log.Fatalf("Error getting %s flag: %v", name, err)
	}
	return v
}

// signalContext is cancelled on interrupt so polling loops stop.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
