package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	alarms "telemetry-alarms/internal/alarms/domain"
	masterdata "telemetry-alarms/internal/masterdata/domain"
)

const maxBody = 1 << 20

// AlarmService is the application surface used by the handler.
type AlarmService interface {
	GetRules() alarms.RuleSet
	SetRules(ctx context.Context, rules alarms.RuleSet) (alarms.RuleSet, error)
	GetTicket(number int64) (alarms.Ticket, error)
	FindTicket(deviceID, metric string) (alarms.Ticket, error)
	ListTickets() []alarms.Ticket
	Transition(ctx context.Context, number int64, action, comment string) (alarms.Ticket, error)
}

// DeviceLister exposes the device catalog.
type DeviceLister interface {
	Profiles() []masterdata.DeviceProfile
}

// Handler provides alarm administration endpoints.
type Handler struct {
	service AlarmService
	devices DeviceLister
	logger  zerolog.Logger
}

// NewHandler constructs a handler.
func NewHandler(service AlarmService, devices DeviceLister, logger zerolog.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alarms handler: nil service")
	}
	if devices == nil {
		return nil, errors.New("alarms handler: nil device catalog")
	}
	return &Handler{
		service: service,
		devices: devices,
		logger:  logger.With().Str("component", "alarms_http").Logger(),
	}, nil
}

// Register mounts the handler routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("/api/alarms", h)
	mux.Handle("/api/alarms/", h)
	mux.Handle("/api/rules", h)
	mux.Handle("/api/device-config", h)
	mux.Handle("/api/snooze", h)
	mux.Handle("/api/unsnooze", h)
	mux.Handle("/api/acknowledge", h)
}

// ServeHTTP handles /api/alarms, /api/rules, /api/device-config and the legacy action routes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch path := r.URL.Path; {
	case path == "/api/alarms":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		query := r.URL.Query()
		deviceID, metric := query.Get("deviceId"), query.Get("metric")
		if deviceID == "" && metric == "" {
			writeJSON(w, http.StatusOK, map[string]any{"alarms": h.service.ListTickets()})
			return
		}
		if deviceID == "" || metric == "" {
			http.Error(w, "deviceId and metric are required together", http.StatusBadRequest)
			return
		}
		ticket, err := h.service.FindTicket(deviceID, metric)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ticket)
	case strings.HasPrefix(path, "/api/alarms/"):
		h.handleTicket(w, r, strings.TrimPrefix(path, "/api/alarms/"))
	case path == "/api/rules":
		h.handleRules(w, r)
	case path == "/api/device-config":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, deviceConfig(h.devices.Profiles()))
	case path == "/api/snooze", path == "/api/unsnooze", path == "/api/acknowledge":
		h.handleLegacyAction(w, r, strings.TrimPrefix(path, "/api/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleTicket(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	if len(parts) > 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	number, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "invalid ticket number", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ticket, err := h.service.GetTicket(number)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ticket)
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := alarms.StatusForAction(parts[1]); !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var body struct {
		Comment string `json:"comment"`
	}
	if err := decodeOptional(r, &body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	ticket, err := h.service.Transition(r.Context(), number, parts[1], body.Comment)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleLegacyAction(w http.ResponseWriter, r *http.Request, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		TicketNumber json.Number `json:"ticket_number"`
		Comment      string      `json:"comment"`
	}
	if err := decodeOptional(r, &body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	number, err := body.TicketNumber.Int64()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "ticket_number is required"})
		return
	}
	ticket, err := h.service.Transition(r.Context(), number, action, body.Comment)
	if err != nil {
		if errors.Is(err, alarms.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "Alarm not found"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "alarm": ticket})
}

func (h *Handler) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.service.GetRules())
	case http.MethodPost, http.MethodPut:
		var rules alarms.RuleSet
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&rules); err != nil {
			http.Error(w, "invalid rules", http.StatusBadRequest)
			return
		}
		stored, err := h.service.SetRules(r.Context(), rules)
		if err != nil {
			h.logger.Error().Err(err).Msg("replace rules failed")
			http.Error(w, "rules not stored", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stored)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type deviceEntry struct {
	Metrics  []string `json:"metrics"`
	Site     string   `json:"site"`
	Assignee string   `json:"assignee"`
}

func deviceConfig(profiles []masterdata.DeviceProfile) map[string]deviceEntry {
	out := make(map[string]deviceEntry, len(profiles))
	for _, profile := range profiles {
		out[profile.ID] = deviceEntry{Metrics: profile.Metrics, Site: profile.Site, Assignee: profile.Assignee}
	}
	return out
}

// decodeOptional decodes a JSON body, accepting an empty one.
func decodeOptional(r *http.Request, out any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alarms.ErrNotFound):
		http.Error(w, "alarm not found", http.StatusNotFound)
	case errors.Is(err, alarms.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
