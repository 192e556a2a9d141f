// AngelaMos | 2026
// handler.go

package ops

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/templates/storefront-billing/internal/billing"
	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
	"github.com/carterperez-dev/templates/storefront-billing/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/ops", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/health", h.GetHealth)
		r.Post("/recovery", h.RunRecovery)
	})
}

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	core.OK(w, h.service.Snapshot(r.Context(), identity(r)))
}

func (h *Handler) RunRecovery(w http.ResponseWriter, r *http.Request) {
	var req RecoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	res, err := h.service.Recover(r.Context(), identity(r), req.Action)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ToRecoveryResponse(res))
}

func identity(r *http.Request) billing.Identity {
	return billing.Identity{
		UserID: middleware.GetUserID(r.Context()),
		Email:  middleware.GetUserEmail(r.Context()),
	}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUnknownAction) {
		core.BadRequest(w, "action must be one of: ensure_scope sync_subscription")
		return
	}

	mapped := billing.AppErrorFor(err)
	if core.IsAppError(mapped) {
		core.JSONError(w, mapped)
		return
	}
	core.InternalServerError(w, err)
}
