// package services defines the messaging platform port and its HTTP adapter
package services

import (
	"context"
	"fmt"
)

// Action is a bulk participant update kind.
type Action string

const (
	ActionAdd     Action = "add"
	ActionPromote Action = "promote"
	ActionDemote  Action = "demote"
	ActionRemove  Action = "remove"
)

// Group is a created group.
type Group struct {
	ID           string
	Subject      string
	Participants []string
}

// StatusKind enumerates participant update outcomes.
type StatusKind int

const (
	Unknown StatusKind = iota
	Added
	PrivacyBlocked
	Declined
	AlreadyMember
)

// ParticipantStatus is the outcome of one participant in a bulk update. Code keeps the raw
// platform code for [Unknown].
type ParticipantStatus struct {
	Kind StatusKind
	Code string
}

// ParseParticipantStatus translates a platform status code.
func ParseParticipantStatus(code string) ParticipantStatus {
	switch code {
	case "200":
		return ParticipantStatus{Kind: Added, Code: code}
	case "403":
		return ParticipantStatus{Kind: PrivacyBlocked, Code: code}
	case "408":
		return ParticipantStatus{Kind: Declined, Code: code}
	case "409":
		return ParticipantStatus{Kind: AlreadyMember, Code: code}
	default:
		return ParticipantStatus{Kind: Unknown, Code: code}
	}
}

// UnknownStatus builds an [Unknown] status with a label in place of a platform code.
func UnknownStatus(label string) ParticipantStatus {
	return ParticipantStatus{Kind: Unknown, Code: label}
}

// IsAdded reports whether the participant was added.
func (s ParticipantStatus) IsAdded() bool { return s.Kind == Added }

// String returns a stable label suitable for persistence.
func (s ParticipantStatus) String() string {
	switch s.Kind {
	case Added:
		return "added"
	case PrivacyBlocked:
		return "privacy_blocked"
	case Declined:
		return "declined"
	case AlreadyMember:
		return "already_member"
	default:
		return fmt.Sprintf("unknown(%s)", s.Code)
	}
}

// ParticipantResult pairs a participant with its outcome.
type ParticipantResult struct {
	ParticipantID string
	Status        ParticipantStatus
}

// Client is the messaging platform capability set the orchestrator consumes.
type Client interface {
	// CreateGroup creates a group named name with the given initial participants.
	CreateGroup(ctx context.Context, name string, participants []string) (*Group, error)

	// UpdateParticipants applies action to participants of groupID and returns one result per participant.
	UpdateParticipants(ctx context.Context, groupID string, participants []string, action Action) ([]ParticipantResult, error)
}

// GroupInfo describes an existing group.
type GroupInfo struct {
	ID           string
	Subject      string
	Participants []string
	Admins       []string
}

// GroupDirectory reads group membership.
type GroupDirectory interface {
	GroupInfo(ctx context.Context, groupID string) (*GroupInfo, error)
}
