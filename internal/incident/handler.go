package incident

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/opsdeck/helpdesk/internal/domain"
	"github.com/opsdeck/helpdesk/internal/pkg/ctxlog"
	"github.com/opsdeck/helpdesk/internal/pkg/httputil"
)

// ActorHeader carries the acting user's id. Authentication happens
// upstream; the caller is assumed already authorized.
const ActorHeader = "X-Actor-ID"

// Handler handles HTTP requests for incidents.
type Handler struct {
	engine    *Engine
	validator *validator.Validate
}

// NewHandler creates a new incident handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{
		engine:    engine,
		validator: validator.New(),
	}
}

// RegisterRoutes registers all incident routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/assign", h.Assign)
			r.Post("/status", h.Transition)
			r.Post("/reopen", h.Reopen)
			r.Get("/comments", h.ListComments)
			r.Post("/comments", h.AddComment)
			r.Get("/history", h.History)
			r.Get("/sla", h.SLAStatus)
			r.Post("/satisfaction", h.RateSatisfaction)
		})
	})
}

// CreateIncidentRequest is the request body for submitting an incident.
type CreateIncidentRequest struct {
	Title       string     `json:"title" validate:"required,min=1,max=200"`
	Description string     `json:"description" validate:"max=4000"`
	Priority    string     `json:"priority" validate:"required,oneof=low medium high critical"`
	Category    string     `json:"category" validate:"required,oneof=hardware software network security access service_request other"`
	ReporterID  string     `json:"reporter_id" validate:"required"`
	EquipmentID *string    `json:"equipment_id,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// Create handles POST /incidents.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	inc, err := h.engine.Create(r.Context(), CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    domain.Priority(req.Priority),
		Category:    domain.Category(req.Category),
		ReporterID:  req.ReporterID,
		EquipmentID: req.EquipmentID,
		DueDate:     req.DueDate,
	}, actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, inc)
}

// Get handles GET /incidents/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	inc, err := h.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, inc)
}

// List handles GET /incidents with the filter contract.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := Filter{Search: q.Get("search")}
	for _, s := range splitMulti(q["status"]) {
		f.Statuses = append(f.Statuses, domain.Status(s))
	}
	for _, p := range splitMulti(q["priority"]) {
		f.Priorities = append(f.Priorities, domain.Priority(p))
	}
	if v := q.Get("category"); v != "" {
		c := domain.Category(v)
		f.Category = &c
	}
	if v := q.Get("assignee_id"); v != "" {
		f.AssigneeID = &v
	}
	if v := q.Get("reporter_id"); v != "" {
		f.ReporterID = &v
	}
	if v := q.Get("equipment_id"); v != "" {
		f.EquipmentID = &v
	}
	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid date_from, expected RFC3339")
			return
		}
		f.DateFrom = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid date_to, expected RFC3339")
			return
		}
		f.DateTo = &t
	}

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := h.engine.Query(r.Context(), f, q.Get("sort"), q.Get("order"), page, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]any{
		"items": result.Items,
		"total": result.Total,
	})
}

// UpdateIncidentRequest is the request body for editing an incident.
type UpdateIncidentRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=4000"`
	Priority    *string `json:"priority,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Category    *string `json:"category,omitempty" validate:"omitempty,oneof=hardware software network security access service_request other"`
}

// Update handles PATCH /incidents/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateInput{Title: req.Title, Description: req.Description}
	if req.Priority != nil {
		p := domain.Priority(*req.Priority)
		input.Priority = &p
	}
	if req.Category != nil {
		c := domain.Category(*req.Category)
		input.Category = &c
	}

	inc, err := h.engine.Update(r.Context(), chi.URLParam(r, "id"), input, actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, inc)
}

// Delete handles DELETE /incidents/{id} (soft delete).
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.engine.Delete(r.Context(), chi.URLParam(r, "id"), actor); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AssignRequest is the request body for assigning an incident.
type AssignRequest struct {
	AssigneeID string `json:"assignee_id" validate:"required"`
}

// Assign handles POST /incidents/{id}/assign.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	inc, err := h.engine.Assign(r.Context(), chi.URLParam(r, "id"), req.AssigneeID, actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, inc)
}

// TransitionRequest is the request body for changing status.
type TransitionRequest struct {
	Status string `json:"status" validate:"required"`
}

// Transition handles POST /incidents/{id}/status.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	inc, err := h.engine.Transition(r.Context(), chi.URLParam(r, "id"), domain.Status(req.Status), actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, inc)
}

// ReopenRequest is the request body for reopening an incident.
type ReopenRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=2000"`
}

// Reopen handles POST /incidents/{id}/reopen.
func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req ReopenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	inc, err := h.engine.Reopen(r.Context(), chi.URLParam(r, "id"), req.Reason, actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, inc)
}

// AddCommentRequest is the request body for commenting.
type AddCommentRequest struct {
	Content    string `json:"content" validate:"required,min=1,max=2000"`
	IsInternal bool   `json:"is_internal"`
}

// AddComment handles POST /incidents/{id}/comments.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req AddCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	comment, err := h.engine.Comment(r.Context(), chi.URLParam(r, "id"), actor, req.Content, req.IsInternal)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusCreated, comment)
}

// ListComments handles GET /incidents/{id}/comments. Internal comments are
// excluded unless include_internal=true, the reporter-facing default.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	includeInternal := r.URL.Query().Get("include_internal") == "true"
	comments, err := h.engine.ListComments(r.Context(), chi.URLParam(r, "id"), includeInternal)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, comments)
}

// History handles GET /incidents/{id}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, entries)
}

// SLAStatus handles GET /incidents/{id}/sla: the persisted SLA state plus
// the derived remaining-minutes read.
func (h *Handler) SLAStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	inc, err := h.engine.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	remaining, err := h.engine.RemainingResolutionMinutes(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, map[string]any{
		"sla":                          inc.SLA,
		"remaining_resolution_minutes": remaining,
	})
}

// RateSatisfactionRequest is the request body for rating.
type RateSatisfactionRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// RateSatisfaction handles POST /incidents/{id}/satisfaction.
func (h *Handler) RateSatisfaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req RateSatisfactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	inc, err := h.engine.RateSatisfaction(r.Context(), chi.URLParam(r, "id"), req.Rating, req.Comment, actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.Success(w, http.StatusOK, inc)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := strings.TrimSpace(r.Header.Get(ActorHeader))
	if actor == "" {
		httputil.Error(w, http.StatusBadRequest, "missing "+ActorHeader+" header")
		return "", false
	}
	return actor, true
}

// respondError maps engine errors to HTTP responses. Transition errors
// additionally carry the allowed next states.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *ValidationError
		transitionErr *InvalidTransitionError
		stateErr      *InvalidStateError
		configErr     *ConfigError
	)

	switch {
	case errors.Is(err, ErrNotFound):
		httputil.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		httputil.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrDeleted):
		httputil.Error(w, http.StatusGone, err.Error())
	case errors.Is(err, ErrEmptyComment):
		httputil.Error(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &validationErr):
		httputil.Error(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &transitionErr):
		allowed := make([]string, len(transitionErr.Allowed))
		for i, s := range transitionErr.Allowed {
			allowed[i] = string(s)
		}
		httputil.ErrorWithDetails(w, http.StatusUnprocessableEntity, transitionErr.Error(), map[string]any{
			"current": string(transitionErr.Current),
			"target":  string(transitionErr.Target),
			"allowed": allowed,
		})
	case errors.As(err, &stateErr):
		httputil.Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &configErr):
		httputil.Error(w, http.StatusBadRequest, err.Error())
	default:
		ctxlog.FromContext(r.Context()).Error("internal error", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// splitMulti accepts both repeated params and comma-separated lists.
func splitMulti(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
