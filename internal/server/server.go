package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/visingers/visingers-sync/internal/utils"
	"github.com/visingers/visingers-sync/pkg/polling"
	"github.com/visingers/visingers-sync/pkg/storage"
)

// Store is what the status API reads from the directory.
type Store interface {
	GetStats(ctx context.Context) (storage.Stats, error)
	ListRecentChanges(ctx context.Context, limit int) ([]storage.Change, error)
}

// Scheduler reports the state of the background sync.
type Scheduler interface {
	Last() *polling.Status
	Running() bool
	Passes() int
}

type Server struct {
	DB        Store
	Scheduler Scheduler
	Username  string
	Password  string
}

func New(db Store, sched Scheduler, user, pass string) *Server {
	return &Server{
		DB:        db,
		Scheduler: sched,
		Username:  user,
		Password:  pass,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.basicAuth(s.handleStatus))
	mux.HandleFunc("GET /api/stats", s.basicAuth(s.handleStats))
	mux.HandleFunc("GET /api/changes", s.basicAuth(s.handleChanges))
	return mux
}

// Start serves the API on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Log.Infof("Starting status server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
