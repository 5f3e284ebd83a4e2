package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/starford/monteerly/internal/models"
	"github.com/starford/monteerly/internal/sse"
	"github.com/starford/monteerly/internal/syncengine"
)

const pingInterval = 15 * time.Second

// EventsHandler streams live views of the caller's records.
type EventsHandler struct {
	live   syncengine.Subscriber
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler reading from live.
func NewEventsHandler(live syncengine.Subscriber, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{live: live, logger: logger}
}

// snapshotEvent is the payload of a "snapshot" event.
type snapshotEvent struct {
	Records    []models.Record       `json:"records"`
	Aggregates syncengine.Aggregates `json:"aggregates"`
}

// Projects handles GET /api/projects/events.
func (h *EventsHandler) Projects(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, models.KindProject)
}

// Briefs handles GET /api/briefs/events.
func (h *EventsHandler) Briefs(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, models.KindBrief)
}

// stream owns one engine for the lifetime of the request. Each reconciled
// view becomes a "snapshot" event; unchanged views are not re-sent. A
// subscription failure ends the stream with an "error" event.
func (h *EventsHandler) stream(w http.ResponseWriter, r *http.Request, kind models.Kind) {
	identity, err := IdentityFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	engine := syncengine.New(h.live, kind, h.logger)

	// Latest view wins: the observer runs on the engine's pump and must
	// never block on a slow client.
	updates := make(chan syncengine.View, 1)
	engine.Observe(func(v syncengine.View) {
		select {
		case updates <- v:
		default:
			select {
			case <-updates:
			default:
			}
			updates <- v
		}
	})

	handle, err := engine.Open(r.Context(), identity.UserID, viewOptions(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer engine.Close(handle)

	stream, err := sse.Open(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case v := <-updates:
			if _, err := stream.SendChanged(sse.Event{
				Type: "snapshot",
				Data: snapshotEvent{Records: v.Visible, Aggregates: v.Aggregates},
			}); err != nil {
				return
			}

		case <-handle.Done():
			if err := handle.Err(); err != nil {
				h.logger.Warn("event stream ended",
					slog.String("kind", string(kind)),
					slog.String("owner", identity.UserID),
					slog.String("error", err.Error()))
				_ = stream.Send(sse.Event{Type: "error", Data: errorBody(err.Error())})
			}
			return

		case <-ticker.C:
			if err := stream.Ping(); err != nil {
				return
			}
		}
	}
}
