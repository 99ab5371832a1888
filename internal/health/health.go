// Package health serves a liveness endpoint: the last engine update as JSON,
// or 503 before the first update arrives.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/smarttherm/fglair-smart/internal/smart"
)

// Publisher is the engine's update feed.
type Publisher interface {
	Subscribe() chan smart.Update
	Unsubscribe(ch chan smart.Update)
}

type Health struct {
	Publisher
	logger  *slog.Logger
	update  smart.Update
	updated bool
	lock    sync.RWMutex
}

func New(publisher Publisher, logger *slog.Logger) *Health {
	return &Health{
		Publisher: publisher,
		logger:    logger,
	}
}

func (h *Health) Run(ctx context.Context) error {
	h.logger.Debug("started")
	defer h.logger.Debug("stopped")

	ch := h.Publisher.Subscribe()
	defer h.Publisher.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			h.lock.Lock()
			h.update = update
			h.updated = true
			h.lock.Unlock()
		}
	}
}

func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	if !h.updated {
		http.Error(w, "no update yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(h.update); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
