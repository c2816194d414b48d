package tasks

import (
	"context"
	"fmt"
	"slices"

	"github.com/desertthunder/regroup/internal/models"
	"github.com/desertthunder/regroup/internal/repositories"
	"github.com/desertthunder/regroup/internal/services"
	"github.com/desertthunder/regroup/internal/shared"
)

// DefaultGroupName is used when an operation was started without a name.
const DefaultGroupName = "Migrated group"

// CreateNewGroup creates the target group for an operation in init and returns its id.
//
// On success the initiator and bot are promoted (best-effort) and the first batch is scheduled
// without delay; its outcome is not awaited. On failure the operation moves to error and the
// returned error wraps [shared.ErrExternalCall].
func (e *Engine) CreateNewGroup(ctx context.Context, client services.Client, id string) (string, error) {
	if client == nil {
		return "", fmt.Errorf("%w: messaging client", shared.ErrServiceUnavailable)
	}

	var name, bot, initiator string
	err := e.store.Update(ctx, func(st *repositories.State) error {
		op, err := st.Operation(id)
		if err != nil {
			return err
		}
		if op.Status != models.StatusInit {
			return fmt.Errorf("%w: operation %s is %s, expected %s", shared.ErrInvalidState, id, op.Status, models.StatusInit)
		}

		name = orDefault(op.RequestedName, DefaultGroupName)
		bot, initiator = op.BotID, op.InitiatorID
		op.Status = models.StatusCreatingGroup
		op.Log(e.clock.Now(), "Creating group %q", name)
		return nil
	})
	if err != nil {
		return "", err
	}

	logger := e.opLogger(id)
	logger.Info("creating group", "name", name)

	group, callErr := client.CreateGroup(ctx, name, uniq(bot, initiator))
	if callErr != nil {
		logger.Error("group creation failed", "error", callErr)
		err := e.store.Update(ctx, func(st *repositories.State) error {
			op, err := st.Operation(id)
			if err != nil {
				return err
			}
			op.Status = models.StatusError
			op.Error = callErr.Error()
			op.Log(e.clock.Now(), "Group creation failed: %v", callErr)
			return nil
		})
		if err != nil {
			logger.Error("failed to record group creation failure", "error", err)
		}

		wrapped := fmt.Errorf("%w: create group: %v", shared.ErrExternalCall, callErr)
		e.sendProgress(errorUpdate(id, wrapped))
		return "", wrapped
	}

	err = e.store.Update(ctx, func(st *repositories.State) error {
		op, err := st.Operation(id)
		if err != nil {
			return err
		}
		op.TargetGroupID = group.ID
		op.Status = models.StatusPreparing
		op.Log(e.clock.Now(), "Group created: %s", group.ID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("group %s created but not recorded: %w", group.ID, err)
	}

	logger.Info("group created", "group", group.ID)
	e.sendProgress(groupCreatedUpdate(id, group.ID))

	e.promoteAdmins(ctx, client, id, group.ID, uniq(initiator, bot))
	e.scheduleNextBatch(ctx, client, id, 0)
	return group.ID, nil
}

// promoteAdmins makes the initiator and bot admins of the new group. Failures are warnings.
func (e *Engine) promoteAdmins(ctx context.Context, client services.Client, id, groupID string, ids []string) {
	logger := e.opLogger(id)

	results, err := client.UpdateParticipants(ctx, groupID, ids, services.ActionPromote)
	if err == nil {
		for _, r := range results {
			if !r.Status.IsAdded() {
				err = fmt.Errorf("%s: %s", r.ParticipantID, r.Status)
				break
			}
		}
	}

	msg := "Initiator and bot promoted to admin"
	if err != nil {
		logger.Warn("admin promotion failed", "error", err)
		e.sendProgress(promoteFailedUpdate(id, err))
		msg = fmt.Sprintf("Could not promote admins: %v", err)
	}

	uerr := e.store.Update(ctx, func(st *repositories.State) error {
		op, err := st.Operation(id)
		if err != nil {
			return err
		}
		op.Log(e.clock.Now(), "%s", msg)
		return nil
	})
	if uerr != nil {
		logger.Warn("failed to log promotion", "error", uerr)
	}
}

func uniq(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
