package equipment

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsdeck/helpdesk/internal/domain"
	"github.com/opsdeck/helpdesk/internal/pkg/httputil"
)

// Handler handles HTTP requests for equipment.
type Handler struct {
	repo Repository
}

// NewHandler creates a new equipment handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes registers the read-only equipment routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/equipment", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
	})
}

// Get handles GET /equipment/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
			{Error: ErrNotFound, Status: http.StatusNotFound},
		})
		return
	}
	httputil.Success(w, http.StatusOK, item)
}

// List handles GET /equipment.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := Filter{Search: q.Get("search")}
	if v := q.Get("type"); v != "" {
		f.Type = &v
	}
	if v := q.Get("location"); v != "" {
		f.Location = &v
	}
	if v := q.Get("status"); v != "" {
		s := domain.EquipmentStatus(v)
		f.Status = &s
	}

	items, err := h.repo.List(r.Context(), f)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, nil)
		return
	}
	httputil.Success(w, http.StatusOK, items)
}
