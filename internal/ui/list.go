package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/regroup/internal/models"
)

var (
	_ list.Item = operationItem{}
)

// operationItem wraps [models.OperationStatus] to implement [list.Item].
type operationItem struct {
	op *models.OperationStatus
}

func (i operationItem) FilterValue() string { return i.op.SourceGroupID + " " + i.op.RequestedName }

func (i operationItem) Title() string {
	name := i.op.RequestedName
	if name == "" {
		name = i.op.SourceGroupID
	}
	return fmt.Sprintf("%s [%s]", name, i.op.Status)
}

func (i operationItem) Description() string {
	desc := fmt.Sprintf("%d/%d invited (%d%%) • %d joined", i.op.Invited, i.op.TotalToInvite, i.op.MigrationProgress, i.op.Joined)
	if i.op.Archived {
		desc += " • archived"
	}
	return desc
}
