package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"moneytracker/internal/ledger"
	"moneytracker/internal/log"
)

type subscribeFunc[T any] func(ctx context.Context, userID string) (*ledger.Subscription[T], error)

// stream relays a subscription as server-sent events. Each emission is one
// data event carrying the full JSON array.
func stream[T any](s *Server, subscribe subscribeFunc[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
			return
		}

		ctx := r.Context()
		userID := currentUser(r)
		sub, err := subscribe(ctx, userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer sub.Close()

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		logger := log.FromContext(ctx)
		logger.InfoContext(ctx, "Stream opened", log.FieldUserID, userID, log.FieldPath, r.URL.Path)

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.InfoContext(ctx, "Stream closed", log.FieldUserID, userID, log.FieldPath, r.URL.Path)
				return
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case items, ok := <-sub.C():
				if !ok {
					return
				}
				data, err := json.Marshal(items)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to encode stream event", log.FieldError, err)
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}
