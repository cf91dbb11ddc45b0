package billing

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/desthealth/claims/internal/domain/claims"
	"github.com/desthealth/claims/internal/platform/auth"
	"github.com/desthealth/claims/internal/platform/processor"
	"github.com/desthealth/claims/internal/platform/webhook"
	"github.com/desthealth/claims/pkg/pagination"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives processor deliveries. It is mounted outside the
// authenticated API group; the signature is the only credential.
type WebhookHandler struct {
	verifier   *webhook.Verifier
	reconciler *Reconciler
	logger     zerolog.Logger
}

func NewWebhookHandler(verifier *webhook.Verifier, reconciler *Reconciler, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, reconciler: reconciler, logger: logger}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/stripe", h.Receive)
}

func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	if err := h.verifier.Verify(body, c.Request().Header.Get(webhook.HeaderName)); err != nil {
		h.logger.Warn().Err(err).Str("remote_ip", c.RealIP()).Msg("rejected webhook delivery")
		return echo.NewHTTPError(http.StatusBadRequest, webhook.ErrSignatureVerificationFailed.Error())
	}
	evt, err := processor.ParseEvent(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed event")
	}

	res, err := h.reconciler.Handle(c.Request().Context(), evt)
	switch {
	case errors.Is(err, ErrInvalidEvent):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "event processing failed")
	}
	return c.JSON(http.StatusOK, res)
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/billing/checkout", h.Checkout)
	api.GET("/billing/subscription", h.Subscription)
	api.GET("/billing/payments", h.Payments)
	api.GET("/billing/tiers", h.Tiers)
}

func (h *Handler) Checkout(c echo.Context) error {
	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	url, err := h.svc.Checkout(ctx, auth.UserIDFromContext(ctx), req)
	switch {
	case errors.Is(err, claims.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNothingDue):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrUnknownTier), errors.Is(err, ErrBadRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadGateway, "checkout unavailable")
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) Subscription(c echo.Context) error {
	ctx := c.Request().Context()
	s, err := h.svc.Subscription(ctx, auth.UserIDFromContext(ctx))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no subscription")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) Payments(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Payments(ctx, auth.UserIDFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Tiers(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"tiers": h.svc.Tiers()})
}
