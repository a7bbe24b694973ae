package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/config"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/lexicon"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/logging"
	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/otel"
)

// env is the state every subcommand shares. It is filled in by the root
// command's pre-run hook and released by close.
type env struct {
	cfg    *config.Config
	events *otel.Logger
	lex    *lexicon.Lexicon

	out    io.Writer
	errOut io.Writer
}

// newRoot builds the command tree. Callers must close the env after
// Execute returns.
func newRoot() (*cobra.Command, *env) {
	var (
		configPath string
		dataDir    string
		logLevel   string
	)
	e := &env{out: os.Stdout, errOut: os.Stderr}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Counter-UAS OSINT correlation",
		Long: `cuas scores Telegram-style posts for sabotage-recruitment signals,
correlates them with reported drone incidents by place and time,
predicts incident windows for unmatched posts and ranks channels
for monitoring.

Data lives in ~/.cuas (override with --data-dir or CUAS_DATA_DIR).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e.out = cmd.OutOrStdout()
			e.errOut = cmd.ErrOrStderr()
			if cmd.Annotations["setup"] == "none" {
				return nil
			}
			return e.setup(configPath, dataDir, logLevel, cmd.Flags().Changed("log-level"), cmd.CommandPath())
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default <data-dir>/config.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.cuas)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		ingestCmd(e),
		importCmd(e),
		runCmd(e),
		reportCmd(e),
		serveCmd(e),
		eventsCmd(e),
		statsCmd(e),
		searchCmd(e),
		configCmd(e),
		&cobra.Command{
			Use:         "version",
			Short:       "Print version information",
			Annotations: map[string]string{"setup": "none"},
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd, e
}

// setup loads .env files and the config, then opens the log file and the
// event log under the data directory.
func (e *env) setup(configPath, dataDir, logLevel string, levelSet bool, command string) error {
	dir := dataDir
	if dir == "" {
		dir = config.GetEnv("CUAS_DATA_DIR", config.DefaultDataDir())
	}
	config.LoadEnv(dir)

	if configPath == "" {
		configPath = config.GetEnv("CUAS_CONFIG", filepath.Join(dir, "config.yaml"))
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if levelSet {
		cfg.LogLevel = logLevel
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if err := logging.InitFile(cfg.DataDir, cfg.LogLevel); err != nil {
		return err
	}

	events, err := otel.Open(cfg.Events())
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.events = events
	e.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStartup, Comp: "cli", Msg: command})
	logging.Info("cuas starting", "command", command, "config", configPath, "data_dir", cfg.DataDir)
	return nil
}

// lexicon loads the configured lexicon once.
func (e *env) lexicon() (*lexicon.Lexicon, error) {
	if e.lex != nil {
		return e.lex, nil
	}
	lex, err := lexicon.LoadOrDefault(e.cfg.LexiconPath)
	if err != nil {
		return nil, err
	}
	e.lex = lex
	return lex, nil
}

// close flushes the event log and closes the log file. Safe to call more
// than once and before setup.
func (e *env) close() {
	if e.events != nil {
		e.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindShutdown, Comp: "cli"})
		e.events.Close()
		e.events = nil
	}
	logging.Close()
}
