// Package api serves withdrawal proof parameters, portal status and the
// proving history over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/megabridge/withdrawal-prover/database/models"
	"github.com/megabridge/withdrawal-prover/metrics"
	"github.com/megabridge/withdrawal-prover/prover"
	"github.com/megabridge/withdrawal-prover/types"
)

type Pipeline interface {
	Run(ctx context.Context, txHash common.Hash, opts prover.RunOpts) (*types.ProveResult, error)
}

type StatusReader interface {
	WithdrawalStatus(ctx context.Context, withdrawalHash common.Hash, submitter common.Address) (*types.WithdrawalStatus, error)
}

type ProofStore interface {
	GetProofRecords(ctx context.Context, filter models.Filter, page, pageSize int64) (*models.PaginatedResult, error)
}

// API server
type Server struct {
	r    chi.Router
	log  *slog.Logger
	opts ServerOpts
}

type ServerOpts struct {
	Logger   *slog.Logger
	Port     string
	Pipeline Pipeline
	Status   StatusReader
	// Store and Metrics are optional. Without a store /v1/proofs is empty.
	Store          ProofStore
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
}

// Create API server
func NewServer(opts ServerOpts) (*Server, error) {
	if opts.Pipeline == nil || opts.Status == nil {
		return nil, errors.New("api server needs a pipeline and a status reader")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Port == "" {
		opts.Port = "8080"
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	s := &Server{
		log:  opts.Logger,
		opts: opts,
	}
	s.routes()
	return s, nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.opts.Port,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("📡 Server Started. API Server is now listening on http://localhost:" + s.opts.Port)
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("Shutting down API server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown: %w", err)
		}
		return nil
	}
}

// Turns server into http server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.r.ServeHTTP(w, r)
}

// Returns JSON response to the API user. HTTP status code
// and data must be provided
func JSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.WriteHeader(statusCode)
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		fmt.Fprintf(w, "%s", err.Error())
	}
}

// Returns an error to the API user
func ERROR(w http.ResponseWriter, statusCode int, err error) {
	w.WriteHeader(statusCode)
	err = json.NewEncoder(w).Encode(map[string]interface{}{"error": err.Error()})
	if err != nil {
		fmt.Fprintf(w, "%s", err.Error())
	}
}

// statusFor maps a pipeline or chain error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNoCoveringGame), errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrAlreadyProven):
		return http.StatusConflict
	case errors.Is(err, types.ErrIntegrity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, types.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, types.ErrTransport), errors.Is(err, types.ErrUnsupportedMethod),
		errors.Is(err, types.ErrStateUnavailable), errors.Is(err, types.ErrProofUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
