package admin

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"auditd/pkg/platform/audit"
	"auditd/pkg/platform/audit/filter"
	"auditd/pkg/platform/httputil"
	"auditd/pkg/platform/middleware/auth"
	"auditd/pkg/platform/middleware/metadata"
	liststr "auditd/pkg/platform/strings"
)

const (
	defaultRecordLimit = 50
	maxRecordLimit     = 1000
)

// Service defines the admin operations exposed over HTTP.
type Service interface {
	ListFilters() ([]FilterEntry, error)
	SetFilter(ctx context.Context, actor string, key filter.Key, enabled bool) error
	RecentRecords(ctx context.Context, limit int, topics ...audit.Topic) ([]audit.Record, error)
}

// Handler serves the audit admin API under /admin/audit.
type Handler struct {
	service   Service
	validator auth.TokenValidator
	access    func(http.Handler) http.Handler
	logger    *slog.Logger
}

// NewHandler creates the admin handler. access, when non-nil, wraps every
// admin route, typically with AccessAudit.
func NewHandler(service Service, validator auth.TokenValidator, access func(http.Handler) http.Handler, logger *slog.Logger) *Handler {
	return &Handler{service: service, validator: validator, access: access, logger: logger}
}

// Register mounts the admin routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin/audit", func(r chi.Router) {
		r.Use(chimw.Recoverer)
		if h.access != nil {
			r.Use(h.access)
		}
		r.Use(auth.RequireScope(h.validator, auth.ScopeAdmin, h.logger))
		r.Get("/filters", h.handleListFilters)
		r.Put("/filters", h.handleSetFilter)
		r.Get("/records", h.handleListRecords)
	})
}

func (h *Handler) handleListFilters(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListFilters()
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to list audit filters",
			"error", err,
			"request_id", metadata.RequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FiltersResponse{Filters: entries, Total: len(entries)})
}

func (h *Handler) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := metadata.RequestID(ctx)

	var req UpdateFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid filter update request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, httputil.BadRequest("invalid request body"))
		return
	}
	key, err := req.key()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.SetFilter(ctx, auth.Subject(ctx), key, *req.Enabled); err != nil {
		h.logger.ErrorContext(ctx, "failed to update audit filter",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toFilterEntry(key, *req.Enabled))
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultRecordLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecordLimit {
			httputil.WriteError(w, httputil.BadRequest("limit must be between 1 and "+strconv.Itoa(maxRecordLimit)))
			return
		}
		limit = n
	}

	var topics []audit.Topic
	for _, name := range liststr.SplitList(r.URL.Query().Get("topic")) {
		t := audit.Topic(name)
		if !t.Valid() {
			httputil.WriteError(w, httputil.BadRequest("unknown topic "+strconv.Quote(name)))
			return
		}
		topics = append(topics, t)
	}

	recs, err := h.service.RecentRecords(ctx, limit, topics...)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit records",
			"request_id", metadata.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	if recs == nil {
		recs = []audit.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, RecordsResponse{Records: recs, Total: len(recs)})
}

func (req UpdateFilterRequest) key() (filter.Key, error) {
	realm := strings.TrimSpace(req.Realm)
	if realm == "" {
		return filter.Key{}, httputil.BadRequest("realm is required")
	}
	if req.Enabled == nil {
		return filter.Key{}, httputil.BadRequest("enabled is required")
	}
	topic := audit.Topic(strings.TrimSpace(req.Topic))
	if !topic.Valid() {
		return filter.Key{}, httputil.BadRequest("unknown topic " + strconv.Quote(req.Topic))
	}
	return filter.Key{Realm: realm, Topic: topic}, nil
}
