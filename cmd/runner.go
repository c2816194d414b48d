package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/regroup/internal/clock"
	"github.com/desertthunder/regroup/internal/repositories"
	"github.com/desertthunder/regroup/internal/services"
	"github.com/desertthunder/regroup/internal/shared"
	"github.com/desertthunder/regroup/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The store, messaging client and engine are built on first use so commands that only touch
// configuration never open the database.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer

	clock     clock.Clock
	kv        repositories.KV
	client    services.Client
	directory services.GroupDirectory

	db       *sql.DB
	engine   *tasks.Engine
	progress chan tasks.ProgressUpdate
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config // loaded from ConfigPath before the first command when nil
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Clock      clock.Clock
	KV         repositories.KV        // SQLite from the database config when nil
	Client     services.Client        // gateway client from the messaging config when nil
	Directory  services.GroupDirectory // Client when it implements GroupDirectory
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Directory == nil {
		if dir, ok := opts.Client.(services.GroupDirectory); ok {
			opts.Directory = dir
		}
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		clock:      opts.Clock,
		kv:         opts.KV,
		client:     opts.Client,
		directory:  opts.Directory,
		progress:   make(chan tasks.ProgressUpdate, 256),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, startCommand, excludeCommand, statusCommand, listCommand, inviteCommand,
		completeCommand, reportCommand, serveCommand, monitorCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before loads the configuration unless one was injected and applies the log level.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("debug") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	if r.config != nil {
		return ctx, nil
	}

	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	config, err := shared.LoadConfig(r.configPath)
	switch {
	case err == nil:
		r.config = config
	case errors.Is(err, shared.ErrMissingConfig):
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		config = shared.DefaultConfig()
		if err := shared.ApplyEnv(config); err != nil {
			return ctx, err
		}
		if err := config.Validate(); err != nil {
			return ctx, err
		}
		r.config = config
	default:
		return ctx, err
	}
	return ctx, nil
}

// SetLogger replaces the runner's logger, e.g. to keep log output away from the terminal UI.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// setupEngine opens the store and builds the engine once.
func (r *Runner) setupEngine(ctx context.Context) (*tasks.Engine, error) {
	if r.engine != nil {
		return r.engine, nil
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}

	if r.kv == nil {
		db, err := shared.OpenDatabase(ctx, r.config.Database)
		if err != nil {
			return nil, err
		}
		r.db = db
		r.kv = repositories.NewSQLiteKV(db)
	}

	if r.client == nil {
		gateway := services.NewGatewayClientFromConfig(r.config.Messaging)
		r.client = gateway
		if r.directory == nil {
			r.directory = gateway
		}
	}

	// zero in the config file means no pause between batches
	delay := r.config.Migration.BatchDelay
	if delay == 0 {
		delay = -1
	}

	r.engine = tasks.NewEngine(tasks.EngineOpts{
		Store:             repositories.NewStore(r.kv),
		Client:            r.client,
		Clock:             r.clock,
		Logger:            r.logger,
		Progress:          r.progress,
		MaxBatchSize:      r.config.Migration.MaxBatchSize,
		BatchDelay:        delay,
		RecentMessages:    r.config.Migration.RecentMessages,
		ParticipantDomain: r.config.Messaging.ParticipantDomain,
	})
	return r.engine, nil
}

// close stops the engine, waiting for running batches, then closes the database.
func (r *Runner) close() error {
	if r.engine != nil {
		r.engine.Close()
	}
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
