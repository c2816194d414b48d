package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/desertthunder/regroup/internal/models"
	"github.com/desertthunder/regroup/internal/services"
	"github.com/desertthunder/regroup/internal/shared"
	"github.com/desertthunder/regroup/internal/tasks"
)

type startRequest struct {
	SourceGroupID string   `json:"sourceGroupId"`
	InitiatorID   string   `json:"initiatorId"`
	BotID         string   `json:"botId"`
	Name          string   `json:"name"`
	Members       []string `json:"members"`
	Admins        []string `json:"admins"`
	Excludes      []string `json:"excludes"`
	CreateGroup   *bool    `json:"createGroup"` // default true
}

type operationResponse struct {
	Operation *models.OperationStatus `json:"operation"`
}

type batchesResponse struct {
	OperationID string          `json:"operationId"`
	Batches     []*models.Batch `json:"batches"`
}

type inviteRequest struct {
	BatchID string `json:"batchId"`
}

type completeRequest struct {
	Success *bool  `json:"success"` // default true
	Message string `json:"message"`
}

type exclusionsRequest struct {
	IDs []string `json:"ids"`
}

type exclusionsResponse struct {
	SourceGroupID string   `json:"sourceGroupId"`
	Added         int      `json:"added"`
	Pending       []string `json:"pending"`
}

type joinEvent struct {
	GroupID      string   `json:"groupId"`
	Participant  string   `json:"participant"`
	Participants []string `json:"participants"`
}

type joinResult struct {
	Participant string `json:"participant"`
	Result      string `json:"result"` // joined, duplicate or ignored
	Reason      string `json:"reason,omitempty"`
}

type joinResponse struct {
	Results []joinResult `json:"results"`
}

// decode reads an optional JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	archived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))

	ops, err := s.engine.ListOperations(r.Context(), archived)
	if err != nil {
		writeEngineError(w, err, "")
		return
	}
	if ops == nil {
		ops = []*models.OperationStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
}

// handleStartOperation starts an operation and, unless createGroup is false, creates its target group.
//
// Without members the source group is looked up when the messaging client can list groups.
func (s *Server) handleStartOperation(w http.ResponseWriter, r *http.Request) {
	var p startRequest
	if err := decode(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid json payload")
		return
	}
	if p.SourceGroupID == "" || p.InitiatorID == "" || p.BotID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAM", "sourceGroupId, initiatorId and botId are required")
		return
	}

	ctx := r.Context()
	if len(p.Members) == 0 {
		dir, ok := s.client.(services.GroupDirectory)
		if !ok {
			writeError(w, http.StatusBadRequest, "MISSING_PARAM", "members are required")
			return
		}
		info, err := dir.GroupInfo(ctx, p.SourceGroupID)
		if err != nil {
			writeEngineError(w, err, "")
			return
		}
		p.Members = info.Participants
		p.Admins = append(p.Admins, info.Admins...)
		if p.Name == "" {
			p.Name = info.Subject
		}
	}

	id, err := s.engine.StartOperation(ctx, tasks.StartRequest{
		SourceGroupID: p.SourceGroupID,
		InitiatorID:   p.InitiatorID,
		BotID:         p.BotID,
		Name:          p.Name,
		Members:       p.Members,
		Admins:        p.Admins,
		Excludes:      p.Excludes,
	})
	if err != nil {
		writeEngineError(w, err, id)
		return
	}

	if p.CreateGroup == nil || *p.CreateGroup {
		if _, err := s.engine.CreateNewGroup(ctx, s.client, id); err != nil {
			writeEngineError(w, err, id)
			return
		}
	}

	s.writeStatus(w, r, id, http.StatusCreated)
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	s.writeStatus(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	_, batches, err := s.engine.GetOperation(r.Context(), id)
	if err != nil {
		writeEngineError(w, err, id)
		return
	}
	if batches == nil {
		batches = []*models.Batch{}
	}
	writeJSON(w, http.StatusOK, batchesResponse{OperationID: id, Batches: batches})
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.engine.CreateNewGroup(r.Context(), s.client, id); err != nil {
		writeEngineError(w, err, id)
		return
	}
	s.writeStatus(w, r, id, http.StatusOK)
}

// handleInvite sends the given batch, or the next one when no batch id is posted.
func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var p inviteRequest
	if err := decode(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid json payload")
		return
	}

	out, err := s.engine.ProcessBatch(r.Context(), s.client, id, p.BatchID)
	if err != nil {
		writeEngineError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	n, err := s.engine.RequeueRejected(r.Context(), id)
	if err != nil {
		writeEngineError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operationId": id, "requeued": n})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var p completeRequest
	if err := decode(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid json payload")
		return
	}
	success := p.Success == nil || *p.Success

	if err := s.engine.CompleteOperation(r.Context(), id, success, p.Message); err != nil {
		writeEngineError(w, err, id)
		return
	}
	s.writeStatus(w, r, id, http.StatusOK)
}

func (s *Server) handleListExclusions(w http.ResponseWriter, r *http.Request) {
	src := chi.URLParam(r, "id")

	ids, err := s.engine.PendingExclusions(r.Context(), src)
	if err != nil {
		writeEngineError(w, err, "")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, exclusionsResponse{SourceGroupID: src, Pending: ids})
}

func (s *Server) handleAddExclusions(w http.ResponseWriter, r *http.Request) {
	src := chi.URLParam(r, "id")

	var p exclusionsRequest
	if err := decode(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid json payload")
		return
	}
	if len(p.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "MISSING_PARAM", "ids are required")
		return
	}

	ctx := r.Context()
	added, err := s.engine.AddExclusions(ctx, src, p.IDs)
	if err != nil {
		writeEngineError(w, err, "")
		return
	}
	pending, err := s.engine.PendingExclusions(ctx, src)
	if err != nil {
		writeEngineError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, exclusionsResponse{SourceGroupID: src, Added: added, Pending: pending})
}

// handleJoinEvent reconciles the participants of a join event. Events for groups or members the
// engine does not track are acknowledged and ignored.
func (s *Server) handleJoinEvent(w http.ResponseWriter, r *http.Request) {
	var p joinEvent
	if err := decode(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid json payload")
		return
	}

	members := p.Participants
	if p.Participant != "" {
		members = append(members, p.Participant)
	}
	if p.GroupID == "" || len(members) == 0 {
		writeError(w, http.StatusBadRequest, "MISSING_PARAM", "groupId and participants are required")
		return
	}

	resp := joinResponse{Results: make([]joinResult, 0, len(members))}
	for _, m := range members {
		out, err := s.engine.RecordMemberJoined(r.Context(), p.GroupID, m)
		switch {
		case err == nil && out.Duplicate:
			resp.Results = append(resp.Results, joinResult{Participant: out.MemberID, Result: "duplicate"})
		case err == nil:
			resp.Results = append(resp.Results, joinResult{Participant: out.MemberID, Result: "joined"})
		case errors.Is(err, shared.ErrNoActiveOperation), errors.Is(err, shared.ErrNotInvited), errors.Is(err, shared.ErrMissingArgument):
			s.logger.Debug("join event ignored", "group", p.GroupID, "participant", m, "reason", err)
			resp.Results = append(resp.Results, joinResult{Participant: m, Result: "ignored", Reason: err.Error()})
		default:
			writeEngineError(w, err, "")
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeStatus(w http.ResponseWriter, r *http.Request, id string, status int) {
	op, err := s.engine.GetOperationStatus(r.Context(), id)
	if err != nil {
		writeEngineError(w, err, id)
		return
	}
	writeJSON(w, status, operationResponse{Operation: op})
}
