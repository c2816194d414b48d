package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/regroup/internal/shared"
	"github.com/desertthunder/regroup/internal/ui"
)

// Monitor launches the interactive terminal monitor, on one operation when an id is given.
func (r *Runner) Monitor(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.setupEngine(ctx)
	if err != nil {
		return err
	}

	return r.runMonitor(ctx, ui.Opts{
		Source:          engine,
		Interval:        cmd.Duration("interval"),
		IncludeArchived: cmd.Bool("archived"),
		OperationID:     cmd.StringArg("id"),
	})
}

func (r *Runner) runMonitor(ctx context.Context, opts ui.Opts) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/regroup-monitor.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	p := tea.NewProgram(ui.NewModel(ctx, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running monitor: %w", err)
	}
	return nil
}
