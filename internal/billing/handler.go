// AngelaMos | 2026
// handler.go

package billing

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/templates/storefront-billing/internal/core"
	"github.com/carterperez-dev/templates/storefront-billing/internal/middleware"
)

type Handler struct {
	service   *Service
	webhook   http.Handler
	validator *validator.Validate
}

func NewHandler(service *Service, webhook http.Handler) *Handler {
	return &Handler{
		service:   service,
		webhook:   webhook,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/billing", func(r chi.Router) {
		r.Method(http.MethodPost, "/webhook", h.webhook)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)

			r.Post("/checkout", h.CreateCheckout)
			r.Post("/portal", h.CreatePortal)
			r.Get("/subscription", h.GetSubscription)
			r.Post("/events", h.TrackEvent)
		})
	})
}

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.CreateCheckout(r.Context(), identity(r), req.SuccessPath, req.CancelPath)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, CheckoutResponse{URL: res.URL, HotelID: res.HotelID})
}

func (h *Handler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	var req CreatePortalRequest
	if !h.decode(w, r, &req) {
		return
	}

	url, err := h.service.CreatePortal(r.Context(), identity(r), req.ReturnPath)
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, PortalResponse{URL: url})
}

func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Subscription(r.Context(), identity(r))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, ToSubscriptionResponse(sub))
}

func (h *Handler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	var req TrackEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.RecordUpgradeClick(r.Context(), identity(r), req.Placement); err != nil {
		writeError(w, err)
		return
	}

	core.NoContent(w)
}

// decode reads an optional JSON body. An empty body decodes to the zero
// request and is then validated.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		core.BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}
	return true
}

func identity(r *http.Request) Identity {
	return Identity{
		UserID: middleware.GetUserID(r.Context()),
		Email:  middleware.GetUserEmail(r.Context()),
	}
}

func writeError(w http.ResponseWriter, err error) {
	mapped := AppErrorFor(err)
	if core.IsAppError(mapped) {
		core.JSONError(w, mapped)
		return
	}
	core.InternalServerError(w, err)
}
