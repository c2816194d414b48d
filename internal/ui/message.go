package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/regroup/internal/models"
	"github.com/desertthunder/regroup/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgOperationsFetched MsgKind = iota
	MsgStatusFetched
	MsgProgressUpdate
	MsgProgressClosed
	MsgTick
	MsgCompleted
)

type operationsFetched struct {
	ops []*models.OperationStatus
	err error
}

type statusFetched struct {
	status *models.OperationStatus
	err    error
}

// operationsFetchedMsg is the constructor for [MsgOperationsFetched]
func operationsFetchedMsg(ops []*models.OperationStatus, err error) Msg {
	return Msg{kind: MsgOperationsFetched, data: operationsFetched{ops, err}}
}

// statusFetchedMsg is the constructor for [MsgStatusFetched]
func statusFetchedMsg(status *models.OperationStatus, err error) Msg {
	return Msg{kind: MsgStatusFetched, data: statusFetched{status, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

func progressClosedMsg() Msg {
	return Msg{kind: MsgProgressClosed}
}

func tickMsg() Msg {
	return Msg{kind: MsgTick}
}

// completedMsg is the constructor for [MsgCompleted]
func completedMsg(id string, err error) Msg {
	return Msg{kind: MsgCompleted, data: statusFetched{&models.OperationStatus{ID: id}, err}}
}
