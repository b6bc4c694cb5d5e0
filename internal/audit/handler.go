package audit

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const defaultInvalidWindow = 24 * time.Hour

// EntrySource provides recent log entries.
type EntrySource interface {
	Entries() []Entry
	CountSince(status string, since time.Time) int
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Handler serves message log statistics and daily summary exports.
type Handler struct {
	source EntrySource
	clock  Clock
	logger zerolog.Logger
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithHandlerClock overrides the clock used for trailing windows.
func WithHandlerClock(clock Clock) HandlerOption {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHandler constructs a handler.
func NewHandler(source EntrySource, logger zerolog.Logger, opts ...HandlerOption) (*Handler, error) {
	if source == nil {
		return nil, errors.New("audit handler: nil source")
	}
	h := &Handler{
		source: source,
		clock:  systemClock{},
		logger: logger.With().Str("component", "audit_http").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the handler routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/invalid/count", h.handleInvalidCount)
	mux.HandleFunc("/api/reports/summary", h.handleSummary)
}

func (h *Handler) handleInvalidCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	window := defaultInvalidWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid window", http.StatusBadRequest)
			return
		}
		window = parsed
	}
	since := h.clock.Now().UTC().Add(-window)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"count":  h.source.CountSince(StatusInvalid, since),
		"window": window.String(),
		"since":  since.Format(time.RFC3339),
	})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	days := Summarize(h.source.Entries())

	var (
		body        []byte
		err         error
		contentType string
		filename    string
	)
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"days": days})
		return
	case "csv":
		body, err = BuildSummaryCSV(days)
		contentType, filename = "text/csv", "messages_summary.csv"
	case "xlsx":
		body, err = BuildSummaryXLSX(days)
		contentType, filename = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "messages_summary.xlsx"
	case "pdf":
		body, err = BuildSummaryPDF(days)
		contentType, filename = "application/pdf", "messages_summary.pdf"
	default:
		http.Error(w, "unsupported format", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("build summary export failed")
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(body)
}
