package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/stbuild/internal/model"
	"github.com/seantiz/stbuild/internal/store"
)

// eventHistoryResponse is the JSON response for GET /v1/runs/:id/events/history.
type eventHistoryResponse struct {
	RunID  string        `json:"run_id"`
	Events []model.Event `json:"events"`
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("get run for events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return nil, false
	}
	tagRun(r, run)
	return run, true
}

// handleStreamEvents replays the run's recorded transitions and then follows
// live ones until the run finishes or the client goes away.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	// Subscribe before reading history so no transition falls between the
	// two. Events already replayed are skipped by sequence number.
	ch, unsub := s.engine.Broker().Subscribe(run.ID)
	defer unsub()

	history, err := s.store.GetEvents(r.Context(), run.ID)
	if err != nil {
		s.logger.Error("get events for stream", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get events")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	eventStreams.Inc()
	defer eventStreams.Dec()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	last := -1
	for _, ev := range history {
		if err := writeStateEvent(w, ev); err != nil {
			return
		}
		last = ev.Seq
	}
	flush()

	// A finished run gets no further events. Its topic may not exist in this
	// process, so do not wait on it.
	if run.Status == model.StatusCompleted || run.Status == model.StatusFailed {
		_ = writeSSEEvent(w, "done", run.Status)
		flush()
		return
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "stream complete")
				flush()
				return
			}
			if ev.Seq <= last {
				continue
			}
			if err := writeStateEvent(w, ev); err != nil {
				return // Write failed (e.g. client gone).
			}
			last = ev.Seq
			flush()
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

func (s *Server) handleGetEventHistory(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	events, err := s.store.GetEvents(r.Context(), run.ID)
	if err != nil {
		s.logger.Error("get events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get events")
		return
	}

	s.writeJSON(w, http.StatusOK, eventHistoryResponse{
		RunID:  run.ID,
		Events: events,
	})
}

// writeStateEvent writes one transition as an SSE "state" event with a JSON
// payload and the sequence number as its id.
func writeStateEvent(w http.ResponseWriter, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: state\ndata: %s\n\n", ev.Seq, data)
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
