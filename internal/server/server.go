// package server exposes the migration engine over HTTP: join events from the messaging gateway and operator actions
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/desertthunder/regroup/internal/models"
	"github.com/desertthunder/regroup/internal/services"
	"github.com/desertthunder/regroup/internal/shared"
	"github.com/desertthunder/regroup/internal/tasks"
)

// SecretHeader carries the shared secret on join events.
const SecretHeader = "X-Regroup-Secret"

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Engine is the part of [tasks.Engine] the HTTP layer drives.
type Engine interface {
	StartOperation(ctx context.Context, req tasks.StartRequest) (string, error)
	CreateNewGroup(ctx context.Context, client services.Client, id string) (string, error)
	ProcessBatch(ctx context.Context, client services.Client, id, batchID string) (*tasks.BatchOutcome, error)
	RequeueRejected(ctx context.Context, id string) (int, error)
	CompleteOperation(ctx context.Context, id string, success bool, message string) error
	GetOperationStatus(ctx context.Context, id string) (*models.OperationStatus, error)
	GetOperation(ctx context.Context, id string) (*models.Operation, []*models.Batch, error)
	ListOperations(ctx context.Context, includeArchived bool) ([]*models.OperationStatus, error)
	AddExclusions(ctx context.Context, sourceID string, ids []string) (int, error)
	PendingExclusions(ctx context.Context, sourceID string) ([]string, error)
	RecordMemberJoined(ctx context.Context, targetGroupID, memberID string) (*tasks.JoinOutcome, error)
}

// Opts configures a [Server].
type Opts struct {
	Addr   string
	Secret string // required on join events when set
	Engine Engine
	Client services.Client // when it is also a services.GroupDirectory, starts may omit members
	Logger *log.Logger
}

// Server is the HTTP front of the engine.
type Server struct {
	Address string
	server  *http.Server
	router  *chi.Mux

	engine Engine
	client services.Client
	secret string
	logger *log.Logger
}

// New builds a chi based [Server] and registers every route.
func New(opts Opts) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	mux := chi.NewMux()
	s := &Server{
		Address: opts.Addr,
		router:  mux,
		engine:  opts.Engine,
		client:  opts.Client,
		secret:  opts.Secret,
		logger:  shared.WithLogger(logger, "component", "server"),
	}
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until the server is shut down. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("server starting", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting up to five seconds for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
