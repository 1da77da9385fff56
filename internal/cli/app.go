// Package cli wires the looprelax command line: configuration, logging, model files and
// the job driver.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/askiada/go-looprelax/internal/config"
	"github.com/askiada/go-looprelax/pkg/pipeline/checkpoint"
)

// App holds what the commands share. Out receives results, Err receives logs.
type App struct {
	Out io.Writer
	Err io.Writer

	loader     *config.Loader
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

// NewApp creates an app writing to the given streams.
func NewApp(out, errOut io.Writer) *App {
	return &App{Out: out, Err: errOut, loader: config.NewLoader()}
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	app := NewApp(os.Stdout, os.Stderr)

	return app.Run(ctx, args)
}

// Run executes args and maps the outcome to an exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	root := a.NewRootCommand()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(a.Err, styleError.Render("Error: "+err.Error()))
	if code, ok := IsExitError(err); ok {
		return code
	}

	return ExitFatal
}

// NewRootCommand builds the command tree.
func (a *App) NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "looprelax",
		Short: "Staged loop remodelling and refinement of molecular models",
		Long: `looprelax rebuilds the flexible regions of a model, refines them at full atom
resolution and relaxes the whole model. Every stage can be resumed from checkpoints.

Configuration is read from --config, then LOOPRELAX_* environment variables, then flags.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.Out)
	root.SetErr(a.Err)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("checkpoint-dir", "", "keep checkpoints as files under this directory")
	flags.String("checkpoint-db", "", "keep checkpoints in this SQLite database")
	root.MarkFlagsMutuallyExclusive("checkpoint-dir", "checkpoint-db")
	a.bind(root, map[string]string{
		"log.level":            "log-level",
		"log.format":           "log-format",
		"checkpoints.dir":      "checkpoint-dir",
		"checkpoints.database": "checkpoint-db",
	})

	root.AddCommand(
		a.newRunCommand(),
		a.newCheckpointsCommand(),
		a.newTopologyCommand(),
	)

	return root
}

// bind maps configuration keys to the flags overriding them.
func (a *App) bind(cmd *cobra.Command, keys map[string]string) {
	v := a.loader.Viper()
	for key, name := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.PersistentFlags().Lookup(name)
		}
		if flag == nil {
			continue
		}
		_ = v.BindPFlag(key, flag)
	}
}

func (a *App) setup(cmd *cobra.Command, _ []string) error {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = a.loader.LoadFromFile(a.configPath)
	} else {
		cfg, err = a.loader.Load()
	}
	if err != nil {
		return NewExitError(ExitFatal, err)
	}

	logger, err := newLogger(a.Err, cfg.Log)
	if err != nil {
		return NewExitError(ExitFatal, err)
	}
	a.cfg = cfg
	a.logger = logger.With(slog.String("command", cmd.Name()))

	return nil
}

// openCheckpoints opens the configured checkpoint backend. A database wins over a directory
// and with neither the checkpoints live in memory. The returned closer is never nil.
func (a *App) openCheckpoints() (checkpoint.Backend, func(), error) {
	switch {
	case a.cfg.Checkpoints.Database != "":
		db, err := checkpoint.OpenSQLite(a.cfg.Checkpoints.Database)
		if err != nil {
			return nil, nil, err
		}
		return db, func() {
			err := db.Close()
			if err != nil {
				a.logger.Warn("unable to close checkpoint database", slog.String("error", err.Error()))
			}
		}, nil
	case a.cfg.Checkpoints.Dir != "":
		return checkpoint.NewFileBackend(a.cfg.Checkpoints.Dir), func() {}, nil
	default:
		return checkpoint.NewMemoryBackend(), func() {}, nil
	}
}

func (a *App) persistentCheckpoints() (checkpoint.Backend, func(), error) {
	if a.cfg.Checkpoints.Database == "" && a.cfg.Checkpoints.Dir == "" {
		return nil, nil, ErrNoCheckpointStore
	}

	return a.openCheckpoints()
}

func fatal(err error, msg string) error {
	return NewExitError(ExitFatal, errors.Wrap(err, msg))
}
