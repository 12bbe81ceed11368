package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/morozRed/unitsmith/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrReported is returned after a failed Result has been printed, so the
// caller only needs to set the exit status.
var ErrReported = errors.New("operation failed")

// app carries global flags and the process logger.
type app struct {
	version     string
	configPath  string
	storeDir    string
	allowedRoot string
	asJSON      bool
	verbose     bool
	noColor     bool

	cfg    *config.Config
	logger *zap.Logger
}

func NewRootCommand(version string) *cobra.Command {
	a := &app{version: version, logger: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:   "unitsmith",
		Short: "Safely inject, replace and remove units in MCP server sources",
		Long: `Unitsmith edits one named unit (a function, handler or class) inside a
source file. Every edit is spliced into a candidate buffer, checked by the
language's own parser or compiler, and backed up before the file is replaced.

Backups and checkpoints live in the store directory and can be listed,
diffed and restored at any time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", config.DefaultPath(), "Path to the YAML config file")
	flags.StringVar(&a.storeDir, "store-dir", "", "Directory holding backups, checkpoints and the build cache")
	flags.StringVar(&a.allowedRoot, "allowed-root", "", "Refuse to touch files outside this directory")
	flags.BoolVar(&a.asJSON, "json", false, "Print machine-readable results")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable coloured output")

	// Mutation Commands
	rootCmd.AddCommand(
		a.newInjectCommand("inject", false),
		a.newInjectCommand("dry-run", true),
		a.newRemoveCommand(),
		a.newReplaceCommand(),
	)

	// Inspect Commands
	rootCmd.AddCommand(
		a.newValidateCommand(),
		a.newUnitsCommand(),
		a.newShowCommand(),
		a.newProjectCommand(),
		a.newTargetsCommand(),
		a.newDoctorCommand(),
	)

	// Ledger Commands
	rootCmd.AddCommand(
		a.newBackupsCommand(),
		a.newCheckpointCommand(),
	)

	rootCmd.AddCommand(a.newBuildCommand())

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "unitsmith %s\n", version)
		},
	})

	return rootCmd
}

// init loads the configuration, applies global flag overrides and builds
// the logger.
func (a *app) init() error {
	if a.noColor {
		color.NoColor = true
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.storeDir != "" {
		cfg.StoreDir = a.storeDir
	}
	if a.allowedRoot != "" {
		cfg.AllowedRoot = a.allowedRoot
	}
	a.cfg = cfg

	logConfig := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Log.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}
	if a.verbose {
		level = zapcore.DebugLevel
	}
	logConfig.Level = zap.NewAtomicLevelAt(level)
	logger, err := logConfig.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger
	return nil
}
