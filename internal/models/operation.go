package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvariant is returned by Validate when a record breaks a set invariant.
var ErrInvariant = errors.New("invariant violated")

// LogEntry is one line of an operation's append-only log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Operation is one migration attempt from a source group to a target group.
type Operation struct {
	ID                string            `json:"id"`
	SourceGroupID     string            `json:"sourceGroupId"`
	TargetGroupID     string            `json:"targetGroupId,omitempty"` // empty until the group exists
	InitiatorID       string            `json:"initiatorId"`
	BotID             string            `json:"botId"`
	RequestedName     string            `json:"requestedName"`
	Status            Status            `json:"status"`
	StartTime         time.Time         `json:"startTime"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
	ExcludedIDs       ParticipantSet    `json:"excludedIds"`
	MembersToInvite   []string          `json:"membersToInvite"` // fixed after planning
	InvitedMembers    ParticipantSet    `json:"invitedMembers"`
	JoinedMembers     ParticipantSet    `json:"joinedMembers"`
	RejectedMembers   map[string]string `json:"rejectedMembers,omitempty"` // participant → outcome label
	MigrationProgress int               `json:"migrationProgress"`
	Error             string            `json:"error,omitempty"`
	Messages          []LogEntry        `json:"messages"`
}

// Log appends a timestamped message.
func (o *Operation) Log(at time.Time, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	o.Messages = append(o.Messages, LogEntry{Time: at, Message: msg})
	o.UpdatedAt = at
}

// Pending returns members still to be invited, in planning order.
//
// Members whose invite was attempted and rejected are not pending.
func (o *Operation) Pending() []string {
	var out []string
	for _, m := range o.MembersToInvite {
		if o.InvitedMembers.Has(m) {
			continue
		}
		if _, rejected := o.RejectedMembers[m]; rejected {
			continue
		}
		out = append(out, m)
	}
	return out
}

// IsPlanned reports whether id is one of the members to invite.
func (o *Operation) IsPlanned(id string) bool {
	for _, m := range o.MembersToInvite {
		if m == id {
			return true
		}
	}
	return false
}

// MarkRejected records that the invite for id did not add it.
func (o *Operation) MarkRejected(id, label string) {
	if o.RejectedMembers == nil {
		o.RejectedMembers = make(map[string]string)
	}
	o.RejectedMembers[id] = label
}

// RecomputeProgress sets MigrationProgress from the invited and planned counts.
func (o *Operation) RecomputeProgress() {
	o.MigrationProgress = Percent(len(o.InvitedMembers), len(o.MembersToInvite))
}

// JoinPercentage is the share of invited members that have joined.
func (o *Operation) JoinPercentage() int {
	if len(o.InvitedMembers) == 0 {
		return 0
	}
	return Percent(len(o.JoinedMembers), len(o.InvitedMembers))
}

// RecentMessages returns at most n of the newest log entries, oldest first.
func (o *Operation) RecentMessages(n int) []LogEntry {
	if n <= 0 || len(o.Messages) == 0 {
		return nil
	}
	start := max(len(o.Messages)-n, 0)
	out := make([]LogEntry, len(o.Messages)-start)
	copy(out, o.Messages[start:])
	return out
}

// Validate checks the subset invariants and the progress formula.
func (o *Operation) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: operation has no id", ErrInvariant)
	}
	if o.SourceGroupID == "" {
		return fmt.Errorf("%w: operation %s has no source group", ErrInvariant, o.ID)
	}

	planned := NewParticipantSet(o.MembersToInvite...)
	if !o.InvitedMembers.SubsetOf(planned) {
		return fmt.Errorf("%w: operation %s invited members outside the plan", ErrInvariant, o.ID)
	}
	if !o.JoinedMembers.SubsetOf(o.InvitedMembers) {
		return fmt.Errorf("%w: operation %s has joined members that were not invited", ErrInvariant, o.ID)
	}
	if want := Percent(len(o.InvitedMembers), len(o.MembersToInvite)); o.MigrationProgress != want {
		return fmt.Errorf("%w: operation %s progress %d, expected %d", ErrInvariant, o.ID, o.MigrationProgress, want)
	}
	return nil
}

// Clone returns a deep copy safe to hand outside the store lock.
func (o *Operation) Clone() *Operation {
	c := *o
	c.ExcludedIDs = o.ExcludedIDs.Clone()
	c.InvitedMembers = o.InvitedMembers.Clone()
	c.JoinedMembers = o.JoinedMembers.Clone()
	c.MembersToInvite = append([]string(nil), o.MembersToInvite...)
	c.Messages = append([]LogEntry(nil), o.Messages...)
	if o.RejectedMembers != nil {
		c.RejectedMembers = make(map[string]string, len(o.RejectedMembers))
		for k, v := range o.RejectedMembers {
			c.RejectedMembers[k] = v
		}
	}
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Snapshot builds the operator-facing status with the n most recent log entries.
func (o *Operation) Snapshot(n int, archived bool) *OperationStatus {
	return &OperationStatus{
		ID:                o.ID,
		SourceGroupID:     o.SourceGroupID,
		TargetGroupID:     o.TargetGroupID,
		InitiatorID:       o.InitiatorID,
		RequestedName:     o.RequestedName,
		Status:            o.Status,
		Archived:          archived,
		StartTime:         o.StartTime,
		UpdatedAt:         o.UpdatedAt,
		CompletedAt:       o.CompletedAt,
		TotalToInvite:     len(o.MembersToInvite),
		Invited:           len(o.InvitedMembers),
		Joined:            len(o.JoinedMembers),
		Rejected:          len(o.RejectedMembers),
		Pending:           len(o.Pending()),
		Excluded:          len(o.ExcludedIDs),
		MigrationProgress: o.MigrationProgress,
		JoinPercentage:    o.JoinPercentage(),
		Error:             o.Error,
		RecentMessages:    o.RecentMessages(n),
	}
}

// OperationStatus is a read-only snapshot of an [Operation].
type OperationStatus struct {
	ID                string     `json:"id"`
	SourceGroupID     string     `json:"sourceGroupId"`
	TargetGroupID     string     `json:"targetGroupId,omitempty"`
	InitiatorID       string     `json:"initiatorId"`
	RequestedName     string     `json:"requestedName"`
	Status            Status     `json:"status"`
	Archived          bool       `json:"archived"`
	StartTime         time.Time  `json:"startTime"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	TotalToInvite     int        `json:"totalToInvite"`
	Invited           int        `json:"invited"`
	Joined            int        `json:"joined"`
	Rejected          int        `json:"rejected"`
	Pending           int        `json:"pending"`
	Excluded          int        `json:"excluded"`
	MigrationProgress int        `json:"migrationProgress"`
	JoinPercentage    int        `json:"joinPercentage"`
	Error             string     `json:"error,omitempty"`
	RecentMessages    []LogEntry `json:"recentMessages"`
}

// Batch is a bounded, single-use subset of pending invitees.
type Batch struct {
	ID          string      `json:"id"`
	OperationID string      `json:"operationId"`
	Members     []string    `json:"members"`
	CreatedAt   time.Time   `json:"createdTime"`
	Status      BatchStatus `json:"status"`
	SentAt      *time.Time  `json:"sentAt,omitempty"`
	RecordedAt  *time.Time  `json:"recordedAt,omitempty"` // set once the outcome is applied to the operation
	Added       int         `json:"added"`
}

// InFlight reports whether the batch was claimed for sending and its outcome is not recorded yet.
// Its members are neither invited nor rejected until then.
func (b *Batch) InFlight() bool {
	return b.Status == BatchSent && b.RecordedAt == nil
}

// Validate checks that the batch is attached to an operation and not empty.
func (b *Batch) Validate() error {
	if b.ID == "" || b.OperationID == "" {
		return fmt.Errorf("%w: batch is missing its id or operation", ErrInvariant)
	}
	if len(b.Members) == 0 {
		return fmt.Errorf("%w: batch %s has no members", ErrInvariant, b.ID)
	}
	return nil
}

// Percent returns round(part/whole × 100), or 100 when whole is zero.
func Percent(part, whole int) int {
	if whole == 0 {
		return 100
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}
