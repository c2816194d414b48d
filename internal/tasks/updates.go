package tasks

import (
	"fmt"

	"github.com/desertthunder/regroup/internal/models"
)

// ProgressUpdate represents a progress event of a migration operation.
//
// Used to send real-time updates to the CLI, server or UI layer for display.
type ProgressUpdate struct {
	OperationID string // Operation the update belongs to
	Phase       Phase  // Lifecycle phase
	Step        int    // Current step number within phase
	Total       int    // Total steps in this phase
	Message     string // Human-readable message for display
	Data        any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	PhaseStart Phase = iota
	PhaseCreateGroup
	PhasePromote
	PhaseBatch
	PhaseMonitoring
	PhaseJoin
	PhaseComplete
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseCreateGroup:
		return "create_group"
	case PhasePromote:
		return "promote"
	case PhaseBatch:
		return "batch"
	case PhaseMonitoring:
		return "monitoring"
	case PhaseJoin:
		return "join"
	case PhaseComplete:
		return "complete"
	case PhaseError:
		return "error"
	default:
		return ""
	}
}

func startedUpdate(op *models.Operation) ProgressUpdate {
	return ProgressUpdate{
		OperationID: op.ID,
		Phase:       PhaseStart,
		Step:        0,
		Total:       len(op.MembersToInvite),
		Message:     fmt.Sprintf("Operation started for %s: %d members to invite", op.SourceGroupID, len(op.MembersToInvite)),
	}
}

func groupCreatedUpdate(opID, groupID string) ProgressUpdate {
	return ProgressUpdate{
		OperationID: opID,
		Phase:       PhaseCreateGroup,
		Step:        1,
		Total:       1,
		Message:     fmt.Sprintf("Group created: %s", groupID),
		Data:        groupID,
	}
}

func promoteFailedUpdate(opID string, err error) ProgressUpdate {
	return ProgressUpdate{
		OperationID: opID,
		Phase:       PhasePromote,
		Message:     fmt.Sprintf("Could not promote admins: %v", err),
	}
}

func batchUpdate(out *BatchOutcome) ProgressUpdate {
	return ProgressUpdate{
		OperationID: out.OperationID,
		Phase:       PhaseBatch,
		Step:        out.Invited,
		Total:       out.Total,
		Message:     fmt.Sprintf("Batch sent: %d of %d added (%d%%)", len(out.Added), len(out.Members), out.Progress),
		Data:        out,
	}
}

func monitoringUpdate(opID string, invited, total int) ProgressUpdate {
	return ProgressUpdate{
		OperationID: opID,
		Phase:       PhaseMonitoring,
		Step:        invited,
		Total:       total,
		Message:     "All invitations sent, monitoring joins",
	}
}

func joinUpdate(out *JoinOutcome) ProgressUpdate {
	return ProgressUpdate{
		OperationID: out.OperationID,
		Phase:       PhaseJoin,
		Step:        out.Joined,
		Total:       out.Invited,
		Message:     fmt.Sprintf("Member joined (%d%%)", out.JoinPercentage),
		Data:        out,
	}
}

func completedUpdate(opID string, status models.Status) ProgressUpdate {
	return ProgressUpdate{
		OperationID: opID,
		Phase:       PhaseComplete,
		Step:        1,
		Total:       1,
		Message:     fmt.Sprintf("Operation %s", status),
	}
}

func errorUpdate(opID string, err error) ProgressUpdate {
	return ProgressUpdate{
		OperationID: opID,
		Phase:       PhaseError,
		Message:     err.Error(),
	}
}
