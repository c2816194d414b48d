package repositories

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/regroup/internal/models"
	"github.com/desertthunder/regroup/internal/shared"
)

// State is the persisted orchestrator document.
type State struct {
	Operations        map[string]*models.Operation `json:"operations"`
	CompletedClones   []*models.Operation          `json:"completedClones"`
	InvitationBatches map[string]*models.Batch     `json:"invitationBatches"`
	ActiveBySource    map[string]string            `json:"activeBySource"`    // source group → operation id
	PendingExclusions map[string][]string          `json:"pendingExclusions"` // source group → ids excluded before start
}

// NewState returns an empty document.
func NewState() *State {
	s := &State{}
	s.ensure()
	return s
}

func (s *State) ensure() {
	if s.Operations == nil {
		s.Operations = make(map[string]*models.Operation)
	}
	if s.InvitationBatches == nil {
		s.InvitationBatches = make(map[string]*models.Batch)
	}
	if s.ActiveBySource == nil {
		s.ActiveBySource = make(map[string]string)
	}
	if s.PendingExclusions == nil {
		s.PendingExclusions = make(map[string][]string)
	}
	for _, op := range s.Operations {
		ensureSets(op)
	}
	for _, op := range s.CompletedClones {
		ensureSets(op)
	}
}

func ensureSets(op *models.Operation) {
	if op.ExcludedIDs == nil {
		op.ExcludedIDs = models.NewParticipantSet()
	}
	if op.InvitedMembers == nil {
		op.InvitedMembers = models.NewParticipantSet()
	}
	if op.JoinedMembers == nil {
		op.JoinedMembers = models.NewParticipantSet()
	}
}

// Operation returns the live (non-archived) operation with id.
func (s *State) Operation(id string) (*models.Operation, error) {
	op, ok := s.Operations[id]
	if !ok {
		return nil, fmt.Errorf("%w: operation %s", shared.ErrNotFound, id)
	}
	return op, nil
}

// Archived returns the most recent archived record with id.
func (s *State) Archived(id string) (*models.Operation, bool) {
	for i := len(s.CompletedClones) - 1; i >= 0; i-- {
		if s.CompletedClones[i].ID == id {
			return s.CompletedClones[i], true
		}
	}
	return nil, false
}

// ActiveFor returns the operation blocking a new start for sourceID, if any.
func (s *State) ActiveFor(sourceID string) (*models.Operation, bool) {
	id, ok := s.ActiveBySource[sourceID]
	if !ok {
		return nil, false
	}
	op, ok := s.Operations[id]
	if !ok || !op.Status.IsActive() {
		return nil, false
	}
	return op, true
}

// AddOperation inserts op and points the source index at it.
//
// An index entry for another operation that is still active is never replaced; the result is a
// [*shared.DuplicateOperationError] naming it.
func (s *State) AddOperation(op *models.Operation) error {
	if err := s.Claim(op.SourceGroupID, op.ID); err != nil {
		return err
	}
	s.Operations[op.ID] = op
	return nil
}

// Claim points the source index at operation id unless another active operation holds it.
func (s *State) Claim(sourceID, id string) error {
	if active, ok := s.ActiveFor(sourceID); ok && active.ID != id {
		return &shared.DuplicateOperationError{SourceGroupID: sourceID, ExistingID: active.ID}
	}
	s.ActiveBySource[sourceID] = id
	return nil
}

// ByTarget returns the operation accepting joins for targetID.
func (s *State) ByTarget(targetID string) (*models.Operation, bool) {
	var found *models.Operation
	for _, op := range s.Operations {
		if op.TargetGroupID != targetID || !op.Status.IsReconcilable() {
			continue
		}
		if found == nil || op.StartTime.After(found.StartTime) {
			found = op
		}
	}
	return found, found != nil
}

// PendingBatch returns the operation's unsent batch, if any.
func (s *State) PendingBatch(opID string) (*models.Batch, bool) {
	for _, b := range s.InvitationBatches {
		if b.OperationID == opID && b.Status == models.BatchPending {
			return b, true
		}
	}
	return nil, false
}

// InFlightBatch returns the operation's sent batch whose outcome is not recorded yet, if any.
func (s *State) InFlightBatch(opID string) (*models.Batch, bool) {
	for _, b := range s.InvitationBatches {
		if b.OperationID == opID && b.InFlight() {
			return b, true
		}
	}
	return nil, false
}

// Batches returns the operation's batches oldest first.
func (s *State) Batches(opID string) []*models.Batch {
	var out []*models.Batch
	for _, b := range s.InvitationBatches {
		if b.OperationID == opID {
			out = append(out, b)
		}
	}
	slices.SortStableFunc(out, func(a, b *models.Batch) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Archive moves the operation into CompletedClones, clears its index entry and drops its pending batches.
func (s *State) Archive(id string, at time.Time) (*models.Operation, error) {
	op, err := s.Operation(id)
	if err != nil {
		return nil, err
	}

	op.CompletedAt = &at
	delete(s.Operations, id)
	s.CompletedClones = append(s.CompletedClones, op)

	if s.ActiveBySource[op.SourceGroupID] == id {
		delete(s.ActiveBySource, op.SourceGroupID)
	}
	for bid, b := range s.InvitationBatches {
		if b.OperationID == id && b.Status == models.BatchPending {
			delete(s.InvitationBatches, bid)
		}
	}
	return op, nil
}

// TakeExclusions returns and clears the ids excluded for sourceID before start.
func (s *State) TakeExclusions(sourceID string) []string {
	ids := s.PendingExclusions[sourceID]
	delete(s.PendingExclusions, sourceID)
	return ids
}

// List returns live operations, plus archived ones when includeArchived, newest first.
func (s *State) List(includeArchived bool) []*models.Operation {
	out := make([]*models.Operation, 0, len(s.Operations))
	for _, op := range s.Operations {
		out = append(out, op)
	}
	if includeArchived {
		out = append(out, s.CompletedClones...)
	}
	slices.SortStableFunc(out, func(a, b *models.Operation) int {
		return b.StartTime.Compare(a.StartTime)
	})
	return out
}

// Validate checks every record and the source index.
func (s *State) Validate() error {
	for id, op := range s.Operations {
		if op.ID != id {
			return fmt.Errorf("%w: operation keyed %s has id %s", models.ErrInvariant, id, op.ID)
		}
		if err := op.Validate(); err != nil {
			return err
		}
	}
	for _, b := range s.InvitationBatches {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	for src, id := range s.ActiveBySource {
		op, ok := s.Operations[id]
		if !ok || op.SourceGroupID != src {
			return fmt.Errorf("%w: source index %s points at %s", models.ErrInvariant, src, id)
		}
	}
	for id, op := range s.Operations {
		if op.Status.IsActive() && s.ActiveBySource[op.SourceGroupID] != id {
			return fmt.Errorf("%w: active operation %s is not indexed for source %s", models.ErrInvariant, id, op.SourceGroupID)
		}
	}
	return nil
}
