// The daemon package exposes the orchestrator's live status over HTTP
// while a cycling run is in progress.
package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	pducycle "github.com/bikeshack/pducycle/internal"
)

// RunServer serves GET /status with the current orchestrator snapshot.
// It blocks until the listener fails; the caller runs it in its own
// goroutine alongside the cycling loop.
func RunServer(endpoint string, board *pducycle.StatusBoard) error {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.StripSlashes,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(board.Snapshot()); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	err := http.ListenAndServe(endpoint, router)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
