// package tasks implements the group migration orchestrator.
//
// The core abstraction is Engine, which owns the operation state machine and composes membership
// planning, group creation, batch processing and join reconciliation. Operations emit progress
// updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/regroup/internal/clock"
	"github.com/desertthunder/regroup/internal/models"
	"github.com/desertthunder/regroup/internal/repositories"
	"github.com/desertthunder/regroup/internal/services"
	"github.com/desertthunder/regroup/internal/shared"
)

const (
	DefaultMaxBatchSize   = 15
	DefaultBatchDelay     = 20 * time.Second
	DefaultRecentMessages = 10
)

// EngineOpts contains the dependencies and tuning of an [Engine].
type EngineOpts struct {
	Store             *repositories.Store
	Client            services.Client       // used by scheduled batches started from MarkBatchInvited and RequeueRejected
	Clock             clock.Clock           // defaults to clock.Real()
	Logger            *log.Logger           // defaults to shared.NewLogger(nil)
	Progress          chan<- ProgressUpdate // optional, never blocks
	MaxBatchSize      int                   // default 15
	BatchDelay        time.Duration         // default 20s; zero keeps the default, use a negative value for no delay
	RecentMessages    int                   // default 10
	ParticipantDomain string                // default models.DefaultParticipantDomain
}

// StartRequest describes a new operation.
type StartRequest struct {
	SourceGroupID string
	InitiatorID   string
	BotID         string
	Name          string
	Members       []string
	Admins        []string
	Excludes      []string
}

// Engine runs migration operations against a persisted [repositories.Store].
type Engine struct {
	store    *repositories.Store
	client   services.Client
	clock    clock.Clock
	logger   *log.Logger
	progress chan<- ProgressUpdate

	maxBatchSize   int
	batchDelay     time.Duration
	recentMessages int
	domain         string

	mu      sync.Mutex
	timers  map[string]clock.Timer // operation id → next batch
	running sync.WaitGroup         // scheduled batches in flight
	closed  bool
}

// NewEngine creates a new [Engine]. Store is required.
func NewEngine(opts EngineOpts) *Engine {
	e := &Engine{
		store:          opts.Store,
		client:         opts.Client,
		clock:          opts.Clock,
		logger:         opts.Logger,
		progress:       opts.Progress,
		maxBatchSize:   opts.MaxBatchSize,
		batchDelay:     opts.BatchDelay,
		recentMessages: opts.RecentMessages,
		domain:         opts.ParticipantDomain,
		timers:         make(map[string]clock.Timer),
	}

	if e.clock == nil {
		e.clock = clock.Real()
	}
	if e.logger == nil {
		e.logger = shared.NewLogger(nil)
	}
	if e.maxBatchSize <= 0 {
		e.maxBatchSize = DefaultMaxBatchSize
	}
	switch {
	case e.batchDelay == 0:
		e.batchDelay = DefaultBatchDelay
	case e.batchDelay < 0:
		e.batchDelay = 0
	}
	if e.recentMessages <= 0 {
		e.recentMessages = DefaultRecentMessages
	}
	if e.domain == "" {
		e.domain = models.DefaultParticipantDomain
	}
	return e
}

// sendProgress sends a progress update through the channel without blocking.
func (e *Engine) sendProgress(update ProgressUpdate) {
	if e.progress == nil {
		return
	}
	select {
	case e.progress <- update:
	default:
	}
}

func (e *Engine) opLogger(id string) *log.Logger {
	return shared.WithLogger(e.logger, "operation", id)
}

func (e *Engine) normalize(id string) string {
	return models.NormalizeParticipant(id, e.domain)
}

// StartOperation plans a new operation and persists it at init.
//
// If the source group already has an active operation the existing id is returned together with a
// [*shared.DuplicateOperationError].
func (e *Engine) StartOperation(ctx context.Context, req StartRequest) (string, error) {
	switch {
	case strings.TrimSpace(req.SourceGroupID) == "":
		return "", fmt.Errorf("%w: source group id", shared.ErrMissingArgument)
	case e.normalize(req.InitiatorID) == "":
		return "", fmt.Errorf("%w: initiator id", shared.ErrMissingArgument)
	case e.normalize(req.BotID) == "":
		return "", fmt.Errorf("%w: bot id", shared.ErrMissingArgument)
	}

	var created *models.Operation
	var existing string
	err := e.store.Update(ctx, func(st *repositories.State) error {
		if active, ok := st.ActiveFor(req.SourceGroupID); ok {
			existing = active.ID
			return &shared.DuplicateOperationError{SourceGroupID: req.SourceGroupID, ExistingID: active.ID}
		}

		excludes := append(append([]string(nil), req.Excludes...), st.TakeExclusions(req.SourceGroupID)...)
		plan := PlanMembers(PlanInput{
			Members:     req.Members,
			Admins:      req.Admins,
			Excludes:    excludes,
			BotID:       req.BotID,
			InitiatorID: req.InitiatorID,
			Domain:      e.domain,
		})

		now := e.clock.Now()
		op := &models.Operation{
			ID:              shared.GenerateID(),
			SourceGroupID:   req.SourceGroupID,
			InitiatorID:     e.normalize(req.InitiatorID),
			BotID:           e.normalize(req.BotID),
			RequestedName:   req.Name,
			Status:          models.StatusInit,
			StartTime:       now,
			ExcludedIDs:     models.NewParticipantSet(plan.Excluded...),
			MembersToInvite: plan.Members,
			InvitedMembers:  models.NewParticipantSet(),
			JoinedMembers:   models.NewParticipantSet(),
		}
		op.RecomputeProgress()
		op.Log(now, "Migration started: %d members to invite, %d excluded", len(op.MembersToInvite), len(op.ExcludedIDs))

		if err := st.AddOperation(op); err != nil {
			return err
		}
		created = op.Clone()
		return nil
	})
	if err != nil {
		if existing != "" {
			e.logger.Warn("operation already active", "source", req.SourceGroupID, "operation", existing)
			return existing, err
		}
		return "", err
	}

	e.opLogger(created.ID).Info("operation started", "source", created.SourceGroupID, "to_invite", len(created.MembersToInvite), "excluded", len(created.ExcludedIDs))
	e.sendProgress(startedUpdate(created))
	return created.ID, nil
}

// AddExclusions records ids to exclude from the next operation started for sourceID.
//
// Exclusions only apply before start: an active operation for the source yields [shared.ErrInvalidState].
// Returns how many new ids were recorded.
func (e *Engine) AddExclusions(ctx context.Context, sourceID string, ids []string) (int, error) {
	if strings.TrimSpace(sourceID) == "" {
		return 0, fmt.Errorf("%w: source group id", shared.ErrMissingArgument)
	}

	added := 0
	err := e.store.Update(ctx, func(st *repositories.State) error {
		if active, ok := st.ActiveFor(sourceID); ok {
			return fmt.Errorf("%w: operation %s already started for %s", shared.ErrInvalidState, active.ID, sourceID)
		}

		current := models.NewParticipantSet(st.PendingExclusions[sourceID]...)
		for _, id := range models.NormalizeParticipants(ids, e.domain) {
			if current.Add(id) {
				st.PendingExclusions[sourceID] = append(st.PendingExclusions[sourceID], id)
				added++
			}
		}
		if added == 0 {
			return repositories.ErrSkipSave
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.logger.Info("exclusions recorded", "source", sourceID, "added", added)
	return added, nil
}

// PendingExclusions returns the ids recorded for sourceID that the next start will apply.
func (e *Engine) PendingExclusions(ctx context.Context, sourceID string) ([]string, error) {
	var ids []string
	err := e.store.View(ctx, func(st *repositories.State) error {
		ids = append(ids, st.PendingExclusions[sourceID]...)
		return nil
	})
	return ids, err
}

// GetOperationStatus returns a snapshot of a live or archived operation.
func (e *Engine) GetOperationStatus(ctx context.Context, id string) (*models.OperationStatus, error) {
	var status *models.OperationStatus
	err := e.store.View(ctx, func(st *repositories.State) error {
		if op, ok := st.Operations[id]; ok {
			status = op.Snapshot(e.recentMessages, false)
			return nil
		}
		if op, ok := st.Archived(id); ok {
			status = op.Snapshot(e.recentMessages, true)
			return nil
		}
		return fmt.Errorf("%w: operation %s", shared.ErrNotFound, id)
	})
	return status, err
}

// GetOperation returns a copy of a live or archived operation with its batches.
func (e *Engine) GetOperation(ctx context.Context, id string) (*models.Operation, []*models.Batch, error) {
	var op *models.Operation
	var batches []*models.Batch
	err := e.store.View(ctx, func(st *repositories.State) error {
		found, ok := st.Operations[id]
		if !ok {
			found, ok = st.Archived(id)
		}
		if !ok {
			return fmt.Errorf("%w: operation %s", shared.ErrNotFound, id)
		}
		op = found.Clone()
		for _, b := range st.Batches(id) {
			c := *b
			c.Members = append([]string(nil), b.Members...)
			batches = append(batches, &c)
		}
		return nil
	})
	return op, batches, err
}

// ListOperations returns snapshots of live operations, and archived ones when includeArchived, newest first.
func (e *Engine) ListOperations(ctx context.Context, includeArchived bool) ([]*models.OperationStatus, error) {
	var out []*models.OperationStatus
	err := e.store.View(ctx, func(st *repositories.State) error {
		for _, op := range st.List(includeArchived) {
			_, live := st.Operations[op.ID]
			out = append(out, op.Snapshot(e.recentMessages, !live))
		}
		return nil
	})
	return out, err
}

// CompleteOperation closes a live operation as completed (success) or failed and archives it.
//
// A second call for the same id fails with [shared.ErrNotFound].
func (e *Engine) CompleteOperation(ctx context.Context, id string, success bool, message string) error {
	final := models.StatusFailed
	if success {
		final = models.StatusCompleted
	}

	err := e.store.Update(ctx, func(st *repositories.State) error {
		op, err := st.Operation(id)
		if err != nil {
			return err
		}

		now := e.clock.Now()
		op.Status = final
		if success {
			op.Log(now, "Migration completed: %s", orDefault(message, "closed by operator"))
		} else {
			op.Log(now, "Migration failed: %s", orDefault(message, "closed by operator"))
		}
		_, err = st.Archive(id, now)
		return err
	})
	if err != nil {
		return err
	}

	e.stopTimer(id)
	e.opLogger(id).Info("operation archived", "status", final)
	e.sendProgress(completedUpdate(id, final))
	return nil
}

// Resume re-arms batch processing for operations left in preparing or inviting, for example after a
// restart. Operations interrupted during group creation are moved to error.
//
// A batch that was sent but never recorded may or may not have reached the platform. Its members
// are marked rejected as interrupted so they are not invited twice; RequeueRejected sends them again.
//
// Returns the number of operations scheduled.
func (e *Engine) Resume(ctx context.Context, client services.Client) (int, error) {
	var resume []string
	err := e.store.Update(ctx, func(st *repositories.State) error {
		changed := false
		now := e.clock.Now()
		for _, op := range st.Operations {
			switch {
			case op.Status == models.StatusCreatingGroup:
				op.Status = models.StatusError
				op.Error = "interrupted during group creation"
				op.Log(now, "Group creation was interrupted; start a new operation")
				changed = true
			case op.Status.IsBatching() && op.TargetGroupID != "":
				if b, ok := st.InFlightBatch(op.ID); ok {
					label := services.UnknownStatus(rejectedInterrupt).String()
					for _, m := range b.Members {
						if !op.InvitedMembers.Has(m) {
							op.MarkRejected(m, label)
						}
					}
					b.RecordedAt = &now
					op.Log(now, "Batch %s was interrupted; its %d members need a requeue", b.ID, len(b.Members))
					changed = true
				}
				resume = append(resume, op.ID)
			}
		}
		if !changed {
			return repositories.ErrSkipSave
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, id := range resume {
		e.opLogger(id).Info("resuming batches")
		e.scheduleNextBatch(ctx, client, id, 0)
	}
	return len(resume), nil
}

// RequeueRejected makes members whose invite was rejected pending again and schedules the next batch.
//
// A monitoring operation goes back to inviting, which fails with a [*shared.DuplicateOperationError]
// when a newer operation is active for the same source. Returns how many members were requeued.
func (e *Engine) RequeueRejected(ctx context.Context, id string) (int, error) {
	n := 0
	err := e.store.Update(ctx, func(st *repositories.State) error {
		op, err := st.Operation(id)
		if err != nil {
			return err
		}
		if op.TargetGroupID == "" || !(op.Status.IsBatching() || op.Status == models.StatusMonitoring) {
			return fmt.Errorf("%w: operation %s is %s", shared.ErrInvalidState, id, op.Status)
		}

		n = len(op.RejectedMembers)
		if n == 0 {
			return fmt.Errorf("%w: operation %s has no rejected members", shared.ErrNothingPending, id)
		}

		if op.Status == models.StatusMonitoring {
			// back to inviting makes the operation active again
			if err := st.Claim(op.SourceGroupID, op.ID); err != nil {
				return err
			}
			op.Status = models.StatusInviting
		}
		op.RejectedMembers = nil
		op.Log(e.clock.Now(), "Requeued %d rejected members", n)
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.opLogger(id).Info("rejected members requeued", "count", n)
	e.scheduleNextBatch(ctx, e.client, id, 0)
	return n, nil
}

// Close stops every scheduled batch and waits for batches already running.
// The engine schedules nothing afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
	e.mu.Unlock()

	e.running.Wait()
}

// Scheduled returns the ids of operations with a batch timer armed and not yet fired.
func (e *Engine) Scheduled() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.timers))
	for id := range e.timers {
		ids = append(ids, id)
	}
	return ids
}

// scheduleNextBatch arms the timer that processes the operation's next batch after delay.
//
// The continuation keeps ctx values but not its cancellation.
func (e *Engine) scheduleNextBatch(ctx context.Context, client services.Client, id string, delay time.Duration) {
	if client == nil {
		e.opLogger(id).Warn("no messaging client, next batch not scheduled")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if t, ok := e.timers[id]; ok {
		t.Stop()
	}

	detached := context.WithoutCancel(ctx)
	var timer clock.Timer
	timer = e.clock.AfterFunc(delay, func() {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return
		}
		if e.timers[id] == timer {
			delete(e.timers, id)
		}
		e.running.Add(1)
		e.mu.Unlock()

		defer e.running.Done()
		e.runScheduledBatch(detached, client, id)
	})
	e.timers[id] = timer
}

func (e *Engine) stopTimer(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.timers[id]; ok {
		t.Stop()
		delete(e.timers, id)
	}
}

func (e *Engine) runScheduledBatch(ctx context.Context, client services.Client, id string) {
	logger := e.opLogger(id)

	out, err := e.ProcessBatch(ctx, client, id, "")
	switch {
	case err == nil:
		logger.Debug("scheduled batch processed", "batch", out.BatchID, "added", len(out.Added))
	case errors.Is(err, shared.ErrNothingPending):
		if err := e.finishInviting(ctx, id); err != nil && !errors.Is(err, shared.ErrNotFound) {
			logger.Error("failed to enter monitoring", "error", err)
		}
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrInvalidState):
		logger.Debug("scheduled batch skipped", "reason", err)
	case errors.Is(err, shared.ErrAlreadyProcessed):
		// the batch in flight schedules the next one once recorded
		logger.Debug("scheduled batch skipped", "reason", err)
	default:
		logger.Error("scheduled batch failed", "error", err)
		e.sendProgress(errorUpdate(id, err))
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
