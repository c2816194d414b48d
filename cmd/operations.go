package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/regroup/internal/formatter"
	"github.com/desertthunder/regroup/internal/shared"
	"github.com/desertthunder/regroup/internal/tasks"
	"github.com/desertthunder/regroup/internal/ui"
)

// pollInterval bounds how long a dropped progress update can delay noticing the end of batching.
const pollInterval = 5 * time.Second

// StartOperation plans a new operation, creates the replacement group and follows the batches.
func (r *Runner) StartOperation(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.setupEngine(ctx)
	if err != nil {
		return err
	}

	req := tasks.StartRequest{
		SourceGroupID: cmd.String("source"),
		InitiatorID:   cmd.String("initiator"),
		BotID:         cmd.String("bot"),
		Name:          cmd.String("name"),
		Members:       cmd.StringSlice("member"),
		Admins:        cmd.StringSlice("admin"),
		Excludes:      cmd.StringSlice("exclude"),
	}
	if req.BotID == "" {
		req.BotID = r.config.Messaging.BotID
	}

	if len(req.Members) == 0 {
		if r.directory == nil {
			return fmt.Errorf("%w: --member is required without a group directory", shared.ErrMissingArgument)
		}
		info, err := r.directory.GroupInfo(ctx, req.SourceGroupID)
		if err != nil {
			return fmt.Errorf("failed to read source group: %w", err)
		}
		req.Members = info.Participants
		req.Admins = append(req.Admins, info.Admins...)
		if req.Name == "" {
			req.Name = info.Subject
		}
		r.logger.Info("read source group", "group", req.SourceGroupID, "members", len(info.Participants))
	}

	id, err := engine.StartOperation(ctx, req)
	if err != nil {
		var dup *shared.DuplicateOperationError
		if errors.As(err, &dup) {
			r.writePlain("Operation %s is already running for %s\n", dup.ExistingID, dup.SourceGroupID)
		}
		return err
	}
	r.writePlain("✓ Operation %s started\n", id)

	groupID, err := engine.CreateNewGroup(ctx, r.client, id)
	if err != nil {
		return err
	}
	r.writePlain("✓ Group created: %s\n", groupID)

	switch {
	case cmd.Bool("detach"):
		r.writePlain("Batches resume with 'regroup serve'\n")
		return nil
	case cmd.Bool("watch"):
		return r.runMonitor(ctx, ui.Opts{Source: engine, OperationID: id, Progress: r.progress})
	}

	if err := r.waitFor(ctx, id, batchingDone); err != nil {
		return err
	}
	return r.printStatus(ctx, id)
}

// Exclude records members to leave out of the next operation of a source group.
func (r *Runner) Exclude(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one participant", shared.ErrMissingArgument)
	}

	engine, err := r.setupEngine(ctx)
	if err != nil {
		return err
	}

	source := cmd.String("source")
	added, err := engine.AddExclusions(ctx, source, ids)
	if err != nil {
		return err
	}
	pending, err := engine.PendingExclusions(ctx, source)
	if err != nil {
		return err
	}

	r.writePlain("✓ %d new exclusions for %s\n", added, source)
	for _, id := range pending {
		r.writePlain("  %s\n", id)
	}
	return nil
}

// Status prints the snapshot of one operation.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	id, err := requireID(cmd)
	if err != nil {
		return err
	}
	engine, err := r.setupEngine(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		status, err := engine.GetOperationStatus(ctx, id)
		if err != nil {
			return err
		}
		return r.writeJSON(status, true)
	}
	return r.printStatus(ctx, id)
}

// List prints every operation, newest first.
func (r *Runner) List(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.setupEngine(ctx)
	if err != nil {
		return err
	}

	ops, err := engine.ListOperations(ctx, cmd.Bool("archived"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(ops, true)
	}
	return r.writePlain("%s", formatter.ExportListToText(ops))
}

// Invite sends the next batch of an operation, optionally requeueing rejected members first.
func (r *Runner) Invite(ctx context.Context, cmd *cli.Command) error {
	id, err := requireID(cmd)
	if err != nil {
		return err
	}
	engine, err := r.setupEngine(ctx)
	if err != nil {
		return err
	}

	all := cmd.Bool("all")
	if cmd.Bool("retry-rejected") {
		n, err := engine.RequeueRejected(ctx, id)
		if err != nil {
			return err
		}
		r.writePlain("✓ Requeued %d rejected members\n", n)

		// requeueing arms the next batch itself
		done := batchSent
		if all {
			done = batchingDone
		}
		if err := r.waitFor(ctx, id, done); err != nil {
			return err
		}
		return r.printStatus(ctx, id)
	}

	out, err := engine.ProcessBatch(ctx, r.client, id, "")
	if err != nil {
		if errors.Is(err, shared.ErrNothingPending) {
			r.writePlain("Nothing pending for %s\n", id)
			return nil
		}
		return err
	}
	r.printOutcome(out)

	if all && out.Remaining > 0 {
		if err := r.waitFor(ctx, id, batchingDone); err != nil {
			return err
		}
		return r.printStatus(ctx, id)
	}
	return nil
}

// Complete archives an operation as completed or failed.
func (r *Runner) Complete(ctx context.Context, cmd *cli.Command) error {
	id, err := requireID(cmd)
	if err != nil {
		return err
	}
	engine, err := r.setupEngine(ctx)
	if err != nil {
		return err
	}

	success := !cmd.Bool("failed")
	if err := engine.CompleteOperation(ctx, id, success, cmd.String("message")); err != nil {
		return err
	}

	status, err := engine.GetOperationStatus(ctx, id)
	if err != nil {
		return err
	}
	return r.writePlain("✓ %s\n", formatter.Summary(status))
}

// Report exports an operation to stdout or to files.
func (r *Runner) Report(ctx context.Context, cmd *cli.Command) error {
	id, err := requireID(cmd)
	if err != nil {
		return err
	}
	engine, err := r.setupEngine(ctx)
	if err != nil {
		return err
	}

	op, batches, err := engine.GetOperation(ctx, id)
	if err != nil {
		return err
	}
	output := cmd.String("output")

	switch format := strings.ToLower(cmd.String("format")); format {
	case "csv":
		if output == "" {
			data, err := formatter.ExportToCSV(op)
			if err != nil {
				return err
			}
			return r.writePlain("%s", data)
		}
		result, err := formatter.WriteCSVExport(op, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Members: %s\n", result.MembersFile)
		return r.writePlain("✓ Operation: %s\n", result.OperationFile)

	case "markdown", "md":
		if output == "" {
			data, err := formatter.ExportToMarkdown(op, batches)
			if err != nil {
				return err
			}
			return r.writePlain("%s", data)
		}
		path, err := formatter.WriteMarkdownExport(op, batches, output)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Report: %s\n", path)

	case "text", "txt":
		status, err := engine.GetOperationStatus(ctx, id)
		if err != nil {
			return err
		}
		if output == "" {
			data, err := formatter.ExportToText(status)
			if err != nil {
				return err
			}
			return r.writePlain("%s", data)
		}
		path, err := formatter.WriteTextExport(status, output)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Report: %s\n", path)

	case "json":
		return r.writeJSON(struct {
			Operation any `json:"operation"`
			Batches   any `json:"batches"`
		}{op, batches}, true)

	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

func requireID(cmd *cli.Command) (string, error) {
	id := cmd.StringArg("id")
	if id == "" {
		return "", fmt.Errorf("%w: operation id", shared.ErrMissingArgument)
	}
	return id, nil
}

func (r *Runner) printStatus(ctx context.Context, id string) error {
	status, err := r.engine.GetOperationStatus(ctx, id)
	if err != nil {
		return err
	}
	data, err := formatter.ExportToText(status)
	if err != nil {
		return err
	}
	r.writePlainHeader(formatter.Summary(status))
	return r.writePlain("%s", data)
}

func (r *Runner) printOutcome(out *tasks.BatchOutcome) {
	r.writePlain("Batch %s: %d of %d added, %d/%d invited (%d%%)\n",
		out.BatchID, len(out.Added), len(out.Members), out.Invited, out.Total, out.Progress)
	if out.Error != "" {
		r.writePlain("  error: %s\n", out.Error)
	}
	for member, reason := range out.Rejected {
		r.writePlain("  %s: %s\n", member, reason)
	}
}

func batchingDone(u tasks.ProgressUpdate) bool {
	return u.Phase == tasks.PhaseMonitoring || u.Phase == tasks.PhaseComplete
}

func batchSent(u tasks.ProgressUpdate) bool {
	return u.Phase == tasks.PhaseBatch || batchingDone(u)
}

// waitFor prints progress of operation id until done reports true, the operation stops batching or
// the user interrupts. An interrupt is not an error; the store keeps the state for 'regroup serve'.
func (r *Runner) waitFor(ctx context.Context, id string, done func(tasks.ProgressUpdate) bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			r.writePlain("Interrupted; batches resume with 'regroup serve'\n")
			return nil

		case update := <-r.progress:
			if update.OperationID != id {
				continue
			}
			r.writePlain("[%s] %s\n", update.Phase, update.Message)
			if update.Phase == tasks.PhaseError {
				return fmt.Errorf("operation %s: %s", id, update.Message)
			}
			if done(update) {
				return nil
			}

		case <-poll.C:
			status, err := r.engine.GetOperationStatus(ctx, id)
			if err != nil {
				return err
			}
			if !status.Status.IsBatching() {
				return nil
			}
		}
	}
}
