package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/meterthing/internal/bridge"
	"github.com/nerrad567/meterthing/internal/thing"
)

// handleThing serves the Thing description, or upgrades to the Thing's
// WebSocket when the request asks for it.
func (s *Server) handleThing(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWebSocket(w, r)
		return
	}

	desc := s.thing.Describe(baseURL(r))
	links, _ := desc["links"].([]map[string]string) //nolint:errcheck // always set by Describe
	desc["links"] = append(links, map[string]string{
		"rel":  "alternate",
		"href": wsURL(r),
	})
	writeJSON(w, http.StatusOK, desc)
}

// handleListProperties returns every property value from the same reading.
func (s *Server) handleListProperties(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.thing.Values())
}

// handleGetProperty returns {"<name>": value}.
func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, err := s.thing.FindProperty(name)
	if err != nil {
		writeNotFound(w, "property not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{name: p.Value().Interface()})
}

// handlePutProperty rejects every write. Meter registers are reported, not set.
func (s *Server) handlePutProperty(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, err := s.thing.FindProperty(name)
	if err != nil {
		writeNotFound(w, "property not found: "+name)
		return
	}
	if p.ReadOnly() {
		writeBadRequest(w, ErrCodeReadOnly, "read-only property")
		return
	}
	writeInternalError(w, "property is writable but no writer is configured")
}

// handleListActions returns the (always empty) action queue.
func (s *Server) handleListActions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []any{})
}

// handleListEvents returns the (always empty) event log.
func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, []any{})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status           string     `json:"status"`
	Version          string     `json:"version"`
	ThingID          string     `json:"thing_id"`
	LoopState        string     `json:"loop_state,omitempty"`
	Readings         uint64     `json:"readings"`
	PropertyUpdates  uint64     `json:"property_updates"`
	LastReading      *time.Time `json:"last_reading,omitempty"`
	WebSocketClients int        `json:"websocket_clients"`
	UptimeSeconds    int64      `json:"uptime_seconds"`

	// Checks maps each infrastructure connection to "ok" or its error.
	Checks map[string]string `json:"checks,omitempty"`
}

// healthCheckTimeout bounds each infrastructure check of /health.
const healthCheckTimeout = 2 * time.Second

// handleHealth reports 200 while the sync loop can still deliver readings
// and 503 once it has stopped. A failing infrastructure check makes the
// status "degraded" without failing the request: the Thing is still served.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:           "ok",
		Version:          s.version,
		ThingID:          s.thing.ID(),
		WebSocketClients: s.hub.ClientCount(),
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	}

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for name, checker := range s.checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := checker.HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	status := http.StatusOK
	if s.loop != nil {
		stats := s.loop.Stats()
		resp.LoopState = stats.State.String()
		resp.Readings = stats.Readings
		resp.PropertyUpdates = stats.PropertyUpdates
		if !stats.LastReading.IsZero() {
			last := stats.LastReading.UTC()
			resp.LastReading = &last
		}
		if stats.State == bridge.StateStopped {
			resp.Status = "stopped"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

// baseURL is the scheme and host the client used to reach us.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// wsURL is the WebSocket endpoint for the Thing.
func wsURL(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + "/"
}

// errPropertyReadOnly is reported to WebSocket clients that try to write.
var errPropertyReadOnly = errors.New("read-only property")

// checkWritable mirrors handlePutProperty for WebSocket setProperty.
func checkWritable(th *thing.Thing, name string) error {
	p, err := th.FindProperty(name)
	if err != nil {
		return err
	}
	if p.ReadOnly() {
		return errPropertyReadOnly
	}
	return nil
}
