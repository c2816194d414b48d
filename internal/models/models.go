// package models defines the data model for the group migration orchestrator
package models

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an [Operation].
type Status string

const (
	StatusInit          Status = "init"
	StatusCreatingGroup Status = "creating_group"
	StatusPreparing     Status = "preparing"
	StatusInviting      Status = "inviting"
	StatusMonitoring    Status = "monitoring"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusError         Status = "error"
)

// Statuses lists every operation status in lifecycle order.
var Statuses = []Status{
	StatusInit, StatusCreatingGroup, StatusPreparing, StatusInviting,
	StatusMonitoring, StatusCompleted, StatusFailed, StatusError,
}

// IsActive reports whether the status blocks a second operation for the same source group.
// Group creation counts: the operation moves on to preparing once the platform answers.
func (s Status) IsActive() bool {
	switch s {
	case StatusInit, StatusCreatingGroup, StatusPreparing, StatusInviting:
		return true
	}
	return false
}

// IsArchived reports whether the status only appears on archived records.
func (s Status) IsArchived() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsReconcilable reports whether join events are accepted in this status.
func (s Status) IsReconcilable() bool {
	return s == StatusInviting || s == StatusMonitoring
}

// IsBatching reports whether invitation batches may run in this status.
func (s Status) IsBatching() bool {
	return s == StatusPreparing || s == StatusInviting
}

func (s Status) String() string { return string(s) }

// ParseStatus converts a string into a [Status].
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// BatchStatus is the processing state of a [Batch].
type BatchStatus string

const (
	BatchPending BatchStatus = "pending"
	BatchSent    BatchStatus = "sent"
)
