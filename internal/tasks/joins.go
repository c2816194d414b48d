package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/regroup/internal/models"
	"github.com/desertthunder/regroup/internal/repositories"
	"github.com/desertthunder/regroup/internal/shared"
)

// JoinOutcome is the result of reconciling one join event.
type JoinOutcome struct {
	OperationID    string `json:"operationId"`
	MemberID       string `json:"memberId"`
	Duplicate      bool   `json:"duplicate"` // member had already joined, nothing changed
	Milestone      bool   `json:"milestone"` // a log entry was written
	Joined         int    `json:"joined"`
	Invited        int    `json:"invited"`
	JoinPercentage int    `json:"joinPercentage"`
}

// RecordMemberJoined reconciles a join event for the target group.
//
// The operation must be inviting or monitoring ([shared.ErrNoActiveOperation] otherwise) and the
// member must have been invited ([shared.ErrNotInvited] otherwise). Both are no-ops for the caller.
// Repeated events for one member change nothing. A milestone is logged on the first join and each
// time the join percentage crosses a multiple of 25.
func (e *Engine) RecordMemberJoined(ctx context.Context, targetGroupID, memberID string) (*JoinOutcome, error) {
	member := e.normalize(memberID)
	if member == "" {
		return nil, fmt.Errorf("%w: member id", shared.ErrMissingArgument)
	}

	out := &JoinOutcome{MemberID: member}
	err := e.store.Update(ctx, func(st *repositories.State) error {
		op, ok := st.ByTarget(targetGroupID)
		if !ok {
			return fmt.Errorf("%w: %s", shared.ErrNoActiveOperation, targetGroupID)
		}
		out.OperationID = op.ID
		if !op.InvitedMembers.Has(member) {
			return fmt.Errorf("%w: %s in operation %s", shared.ErrNotInvited, member, op.ID)
		}

		out.Invited = len(op.InvitedMembers)
		if !op.JoinedMembers.Add(member) {
			out.Duplicate = true
			out.Joined = len(op.JoinedMembers)
			out.JoinPercentage = op.JoinPercentage()
			return repositories.ErrSkipSave
		}

		now := e.clock.Now()
		prev := models.Percent(len(op.JoinedMembers)-1, len(op.InvitedMembers))
		pct := op.JoinPercentage()
		out.Joined = len(op.JoinedMembers)
		out.JoinPercentage = pct

		if len(op.JoinedMembers) == 1 || pct/25 > prev/25 {
			op.Log(now, "Members joined: %d/%d (%d%%)", len(op.JoinedMembers), len(op.InvitedMembers), pct)
			out.Milestone = true
		} else {
			op.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !out.Duplicate {
		e.opLogger(out.OperationID).Debug("member joined", "member", member, "joined", out.Joined, "percent", out.JoinPercentage)
		e.sendProgress(joinUpdate(out))
	}
	return out, nil
}
