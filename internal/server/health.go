package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// checkTimeout bounds each dependency check of GET /api/ready.
const checkTimeout = 5 * time.Second

// Pinger is a dependency that can report its own reachability. The vector
// stores implement it, and OllamaPinger covers Ollama-hosted models.
// Implementations must be safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is reachable.
	Ping(ctx context.Context) error
	// Name labels the dependency in readiness responses.
	Name() string
}

// indexStatter reports the collection behind the index. *index.Store
// satisfies it.
type indexStatter interface {
	Stats(ctx context.Context) (rag.Stats, error)
}

type readyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// collectionStatus is the index part of a readiness response. An empty
// collection is ready; questions are answered without context.
type collectionStatus struct {
	Name      string `json:"name"`
	Entries   int    `json:"entries"`
	Dimension int    `json:"dimension"`
	Error     string `json:"error,omitempty"`
}

type readyResponse struct {
	Ready      bool              `json:"ready"`
	Collection *collectionStatus `json:"collection,omitempty"`
	Checks     []readyCheck      `json:"checks"`
}

// handleReady handles GET /api/ready. The dependency checks run concurrently,
// each under checkTimeout, and the collection statistics are read alongside.
// Any failure turns the response into 503.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true, Checks: make([]readyCheck, len(s.pingers))}

	var wg sync.WaitGroup
	for i, p := range s.pingers {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			resp.Checks[i] = readyCheck{Name: p.Name(), OK: true}
			if err := p.Ping(ctx); err != nil {
				resp.Checks[i] = readyCheck{Name: p.Name(), Error: err.Error()}
			}
		})
	}
	if s.index != nil {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			resp.Collection = collectionReport(ctx, s.index)
		})
	}
	wg.Wait()

	for _, c := range resp.Checks {
		if !c.OK {
			resp.Ready = false
			log.Warn("readiness check failed", slog.String("dependency", c.Name), slog.String("error", c.Error))
		}
	}
	if resp.Collection != nil && resp.Collection.Error != "" {
		resp.Ready = false
		log.Warn("readiness: collection stats unavailable", slog.String("error", resp.Collection.Error))
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func collectionReport(ctx context.Context, idx indexStatter) *collectionStatus {
	st, err := idx.Stats(ctx)
	if err != nil {
		return &collectionStatus{Error: err.Error()}
	}
	return &collectionStatus{Name: st.Collection, Entries: st.Count, Dimension: st.Dimension}
}
