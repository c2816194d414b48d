package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/regroup/internal/models"
	"github.com/desertthunder/regroup/internal/repositories"
	"github.com/desertthunder/regroup/internal/services"
	"github.com/desertthunder/regroup/internal/shared"
)

const (
	rejectedCallFailed = "call_failed"
	rejectedNoResult   = "no_result"
	rejectedNotAdded   = "not_added"
	rejectedInterrupt  = "interrupted"
)

// BatchOutcome is the result of processing one batch.
type BatchOutcome struct {
	BatchID     string            `json:"batchId"`
	OperationID string            `json:"operationId"`
	Members     []string          `json:"members"`
	Added       []string          `json:"added"`
	Rejected    map[string]string `json:"rejected,omitempty"` // participant → outcome label
	Error       string            `json:"error,omitempty"`    // bulk call failure, the batch counts zero successes
	Invited     int               `json:"invited"`
	Total       int               `json:"total"`
	Progress    int               `json:"progress"`
	Remaining   int               `json:"remaining"`
	Status      models.Status     `json:"status"`
}

// CreateInvitationBatch persists the next batch of up to MaxBatchSize pending members.
//
// If the operation already has an unsent batch that batch is returned. While a sent batch still
// waits for its outcome the result is [shared.ErrAlreadyProcessed], since its members are not yet
// invited or rejected. When nothing is pending the result is [shared.ErrNothingPending]. Neither
// error writes anything.
func (e *Engine) CreateInvitationBatch(ctx context.Context, id string) (*models.Batch, error) {
	var batch models.Batch
	err := e.store.Update(ctx, func(st *repositories.State) error {
		op, err := st.Operation(id)
		if err != nil {
			return err
		}
		if err := canBatch(op); err != nil {
			return err
		}
		if b, ok := st.InFlightBatch(id); ok {
			return fmt.Errorf("%w: batch %s of operation %s is still being sent", shared.ErrAlreadyProcessed, b.ID, id)
		}

		if b, ok := st.PendingBatch(id); ok {
			batch = *b
			return repositories.ErrSkipSave
		}

		pending := op.Pending()
		if len(pending) == 0 {
			return fmt.Errorf("%w: operation %s", shared.ErrNothingPending, id)
		}

		b := &models.Batch{
			ID:          shared.GenerateID(),
			OperationID: id,
			Members:     append([]string(nil), pending[:min(len(pending), e.maxBatchSize)]...),
			CreatedAt:   e.clock.Now(),
			Status:      models.BatchPending,
		}
		st.InvitationBatches[b.ID] = b
		batch = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// ProcessBatch sends one batch to the messaging platform. An empty batchID creates the next batch first.
//
// The batch is marked sent in the same write that checks it is pending, so the bulk call happens at
// most once per batch id; a sent batch yields [shared.ErrAlreadyProcessed]. A failing bulk call counts
// as zero successes and does not stop the operation.
func (e *Engine) ProcessBatch(ctx context.Context, client services.Client, id, batchID string) (*BatchOutcome, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: messaging client", shared.ErrServiceUnavailable)
	}

	if batchID == "" {
		b, err := e.CreateInvitationBatch(ctx, id)
		if err != nil {
			return nil, err
		}
		batchID = b.ID
	}

	var members []string
	var target string
	err := e.store.Update(ctx, func(st *repositories.State) error {
		b, ok := st.InvitationBatches[batchID]
		if !ok || b.OperationID != id {
			return fmt.Errorf("%w: batch %s", shared.ErrNotFound, batchID)
		}
		if b.Status == models.BatchSent {
			return fmt.Errorf("%w: batch %s", shared.ErrAlreadyProcessed, batchID)
		}

		op, err := st.Operation(id)
		if err != nil {
			return err
		}
		if err := canBatch(op); err != nil {
			return err
		}
		if other, ok := st.InFlightBatch(id); ok {
			return fmt.Errorf("%w: batch %s of operation %s is still being sent", shared.ErrAlreadyProcessed, other.ID, id)
		}

		now := e.clock.Now()
		b.Status = models.BatchSent
		b.SentAt = &now
		if op.Status == models.StatusPreparing {
			op.Status = models.StatusInviting
			op.Log(now, "Invitation phase started")
		}
		op.Log(now, "Sending batch of %d members", len(b.Members))

		members = append([]string(nil), b.Members...)
		target = op.TargetGroupID
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger := e.opLogger(id)
	logger.Info("sending batch", "batch", batchID, "members", len(members))

	labels := make(map[string]string, len(members))
	var added []string
	var callErr error

	results, err := client.UpdateParticipants(ctx, target, members, services.ActionAdd)
	if err != nil {
		callErr = fmt.Errorf("%w: add participants: %v", shared.ErrExternalCall, err)
		logger.Error("batch call failed", "batch", batchID, "error", err)
		for _, m := range members {
			labels[m] = services.UnknownStatus(rejectedCallFailed).String()
		}
	} else {
		byID := make(map[string]services.ParticipantStatus, len(results))
		for _, r := range results {
			byID[e.normalize(r.ParticipantID)] = r.Status
		}
		for _, m := range members {
			status, ok := byID[m]
			switch {
			case !ok:
				labels[m] = services.UnknownStatus(rejectedNoResult).String()
			case status.IsAdded():
				added = append(added, m)
			default:
				labels[m] = status.String()
			}
		}
	}

	out, err := e.markBatch(ctx, client, batchID, added, labels)
	if err != nil {
		return nil, err
	}
	if callErr != nil {
		out.Error = callErr.Error()
	}

	e.sendProgress(batchUpdate(out))
	return out, nil
}

// MarkBatchInvited records the successful members of a batch, recomputes progress and either
// schedules the next batch after the batch delay or moves the operation to monitoring.
//
// Batch members missing from successful are not drawn again. A batch is recorded once; a second
// call yields [shared.ErrAlreadyProcessed].
func (e *Engine) MarkBatchInvited(ctx context.Context, batchID string, successful []string) error {
	_, err := e.markBatch(ctx, e.client, batchID, successful, nil)
	return err
}

func (e *Engine) markBatch(ctx context.Context, client services.Client, batchID string, successful []string, labels map[string]string) (*BatchOutcome, error) {
	out := &BatchOutcome{BatchID: batchID, Rejected: map[string]string{}}
	monitoring := false

	err := e.store.Update(ctx, func(st *repositories.State) error {
		b, ok := st.InvitationBatches[batchID]
		if !ok {
			return fmt.Errorf("%w: batch %s", shared.ErrNotFound, batchID)
		}
		op, err := st.Operation(b.OperationID)
		if err != nil {
			return err
		}

		if b.RecordedAt != nil {
			return fmt.Errorf("%w: batch %s outcome already recorded", shared.ErrAlreadyProcessed, batchID)
		}

		now := e.clock.Now()
		if b.Status == models.BatchPending {
			b.Status = models.BatchSent
			b.SentAt = &now
		}
		b.RecordedAt = &now
		if op.Status == models.StatusPreparing {
			op.Status = models.StatusInviting
		}

		inBatch := models.NewParticipantSet(b.Members...)
		for _, id := range successful {
			id = e.normalize(id)
			if !inBatch.Has(id) || !op.IsPlanned(id) {
				continue
			}
			op.InvitedMembers.Add(id)
			delete(op.RejectedMembers, id)
			out.Added = append(out.Added, id)
		}
		for _, m := range b.Members {
			if op.InvitedMembers.Has(m) {
				continue
			}
			label := labels[m]
			if label == "" {
				label = rejectedNotAdded
			}
			op.MarkRejected(m, label)
			out.Rejected[m] = label
		}
		b.Added = len(out.Added)

		op.RecomputeProgress()
		remaining := len(op.Pending())
		op.Log(now, "Batch sent: %d of %d added, %d/%d invited (%d%%)",
			len(out.Added), len(b.Members), len(op.InvitedMembers), len(op.MembersToInvite), op.MigrationProgress)

		if remaining == 0 && op.Status == models.StatusInviting {
			op.Status = models.StatusMonitoring
			op.Log(now, "Invitation phase complete, monitoring joins")
			monitoring = true
		}

		out.OperationID = op.ID
		out.Members = append([]string(nil), b.Members...)
		out.Invited = len(op.InvitedMembers)
		out.Total = len(op.MembersToInvite)
		out.Progress = op.MigrationProgress
		out.Remaining = remaining
		out.Status = op.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger := e.opLogger(out.OperationID)
	logger.Info("batch recorded", "batch", batchID, "added", len(out.Added), "rejected", len(out.Rejected), "progress", out.Progress)

	switch {
	case monitoring:
		e.stopTimer(out.OperationID)
		logger.Info("invitation phase complete", "invited", out.Invited, "total", out.Total)
		e.sendProgress(monitoringUpdate(out.OperationID, out.Invited, out.Total))
	case out.Remaining > 0 && out.Status == models.StatusInviting:
		e.scheduleNextBatch(ctx, client, out.OperationID, e.batchDelay)
	}
	return out, nil
}

// finishInviting moves an inviting operation with nothing pending to monitoring.
func (e *Engine) finishInviting(ctx context.Context, id string) error {
	moved := false
	var invited, total int
	err := e.store.Update(ctx, func(st *repositories.State) error {
		op, err := st.Operation(id)
		if err != nil {
			return err
		}
		if len(op.Pending()) > 0 || !op.Status.IsBatching() {
			return repositories.ErrSkipSave
		}
		op.Status = models.StatusMonitoring
		op.Log(e.clock.Now(), "Invitation phase complete, monitoring joins")
		moved = true
		invited, total = len(op.InvitedMembers), len(op.MembersToInvite)
		return nil
	})
	if err != nil || !moved {
		return err
	}

	e.stopTimer(id)
	e.opLogger(id).Info("invitation phase complete", "invited", invited, "total", total)
	e.sendProgress(monitoringUpdate(id, invited, total))
	return nil
}

func canBatch(op *models.Operation) error {
	if op.TargetGroupID == "" {
		return fmt.Errorf("%w: operation %s has no target group", shared.ErrInvalidState, op.ID)
	}
	if !op.Status.IsBatching() && op.Status != models.StatusMonitoring {
		return fmt.Errorf("%w: operation %s is %s", shared.ErrInvalidState, op.ID, op.Status)
	}
	return nil
}
