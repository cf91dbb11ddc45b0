package estimate

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/desthealth/claims/internal/domain/benefits"
	"github.com/desthealth/claims/internal/platform/auth"
	"github.com/desthealth/claims/pkg/money"
)

type Handler struct {
	benefits *benefits.Service
	policy   Policy
	now      func() time.Time
}

func NewHandler(b *benefits.Service, policy Policy) *Handler {
	return &Handler{benefits: b, policy: policy, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/benefits/:id/estimate", h.Estimate)
}

// Request accepts either integer cents or a dollar string such as "5,000.00".
type Request struct {
	ServiceCostCents *money.Cents `json:"service_cost_cents,omitempty"`
	ServiceCost      string       `json:"service_cost,omitempty"`
}

func (r Request) cost() (money.Cents, error) {
	if r.ServiceCostCents != nil {
		return *r.ServiceCostCents, nil
	}
	if r.ServiceCost != "" {
		return money.ParseDollars(r.ServiceCost)
	}
	return 0, money.ErrInvalidAmount
}

func (h *Handler) Estimate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cost, err := req.cost()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	b, err := h.benefits.GetRaw(ctx, id)
	if errors.Is(err, benefits.ErrNotFound) || (err == nil && !auth.CanAccess(ctx, b.PatientID)) {
		return echo.NewHTTPError(http.StatusNotFound, benefits.ErrNotFound.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	res, err := Estimate(cost, b, h.policy, h.now())
	switch {
	case errors.Is(err, ErrBenefitsNotVerified):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, money.ErrInvalidAmount):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
