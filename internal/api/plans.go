package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/solarafrica/solarplanner/internal/auth"
	"github.com/solarafrica/solarplanner/internal/plans"
)

type plansHandler struct {
	svc *plans.Service
}

type DuplicateRequest struct {
	Name string `json:"name,omitempty"`
}

type ShareRequest struct {
	Email string `json:"email,omitempty"`
}

// Create saves a new plan
// @Summary Create plan
// @Tags plans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body plans.PlanInput true "Plan"
// @Success 201 {object} Envelope{data=plans.Plan}
// @Failure 400 {object} Envelope
// @Router /api/plans [post]
func (h *plansHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in plans.PlanInput
	if !decode(w, r, &in) {
		return
	}
	p, err := h.svc.Create(r.Context(), auth.UserID(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusCreated, "Solar plan created successfully", p)
}

// queryInt parses an optional integer query parameter. Absent means zero,
// which the service replaces with its default; an explicit zero is mapped
// to -1 so it fails range validation instead.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return -1, nil
	}
	return v, nil
}

// List pages through the caller's plans
// @Summary List plans
// @Tags plans
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page (default 1)"
// @Param limit query int false "Page size 1-100 (default 10)"
// @Param sortBy query string false "createdAt, updatedAt or name"
// @Param sortOrder query string false "asc or desc"
// @Success 200 {object} Envelope{data=plans.ListResult}
// @Failure 400 {object} Envelope
// @Router /api/plans [get]
func (h *plansHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perr := queryInt(r, "page")
	limit, lerr := queryInt(r, "limit")
	if perr != nil || lerr != nil {
		fail(w, r, http.StatusBadRequest, "Validation failed", "page and limit must be integers")
		return
	}
	q := r.URL.Query()
	res, err := h.svc.List(r.Context(), auth.UserID(r.Context()), plans.ListParams{
		Page:      page,
		Limit:     limit,
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, "Plans retrieved successfully", res)
}

// Get returns one plan
// @Summary Get plan
// @Description Owners see their plans; anyone may read a public plan
// @Tags plans
// @Produce json
// @Param id path string true "Plan ID"
// @Success 200 {object} Envelope{data=plans.Plan}
// @Failure 404 {object} Envelope
// @Router /api/plans/{id} [get]
func (h *plansHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, "Plan retrieved successfully", p)
}

// Update applies a partial update
// @Summary Update plan
// @Tags plans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Plan ID"
// @Param input body plans.PlanUpdate true "Fields to change"
// @Success 200 {object} Envelope{data=plans.Plan}
// @Failure 400 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /api/plans/{id} [put]
func (h *plansHandler) Update(w http.ResponseWriter, r *http.Request) {
	var u plans.PlanUpdate
	if !decode(w, r, &u) {
		return
	}
	p, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), auth.UserID(r.Context()), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, "Plan updated successfully", p)
}

// Delete removes a plan
// @Summary Delete plan
// @Tags plans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Plan ID"
// @Success 200 {object} Envelope
// @Failure 404 {object} Envelope
// @Router /api/plans/{id} [delete]
func (h *plansHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), auth.UserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, "Plan deleted successfully", nil)
}

// Duplicate copies a plan into the caller's account
// @Summary Duplicate plan
// @Tags plans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Plan ID"
// @Param input body DuplicateRequest false "New name"
// @Success 201 {object} Envelope{data=plans.Plan}
// @Failure 404 {object} Envelope
// @Router /api/plans/{id}/duplicate [post]
func (h *plansHandler) Duplicate(w http.ResponseWriter, r *http.Request) {
	var req DuplicateRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	p, err := h.svc.Duplicate(r.Context(), chi.URLParam(r, "id"), auth.UserID(r.Context()), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusCreated, "Plan duplicated successfully", p)
}

// Share publishes a plan under a share link
// @Summary Share plan
// @Tags plans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Plan ID"
// @Param input body ShareRequest false "Recipient to email"
// @Success 200 {object} Envelope{data=plans.ShareResult}
// @Failure 404 {object} Envelope
// @Router /api/plans/{id}/share [post]
func (h *plansHandler) Share(w http.ResponseWriter, r *http.Request) {
	var req ShareRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Share(r.Context(), chi.URLParam(r, "id"), auth.UserID(r.Context()), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, "Plan shared successfully", res)
}

// Shared returns a plan by its share token
// @Summary Shared plan
// @Tags plans
// @Produce json
// @Param token path string true "Share token"
// @Success 200 {object} Envelope{data=plans.Plan}
// @Failure 404 {object} Envelope
// @Router /api/plans/shared/{token} [get]
func (h *plansHandler) Shared(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetShared(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, "Shared plan retrieved successfully", p)
}
