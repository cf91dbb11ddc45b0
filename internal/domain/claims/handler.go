package claims

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/desthealth/claims/internal/platform/auth"
	"github.com/desthealth/claims/pkg/money"
	"github.com/desthealth/claims/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/claims", h.Create)
	api.GET("/claims", h.List)
	api.GET("/claims/summary", h.Summary)
	api.GET("/claims/:id", h.Get)

	staff := api.Group("", auth.RequireRole(auth.RoleBilling))
	staff.POST("/claims/:id/line-items", h.AddLineItems)
	staff.PUT("/claims/:id/line-items/:item_id", h.Adjudicate)
	staff.POST("/claims/:id/status", h.Transition)
}

// filterFromRequest scopes patients to their own claims. Staff see every
// claim unless they pass ?patient_id=.
func filterFromRequest(c echo.Context) Filter {
	ctx := c.Request().Context()
	var f Filter
	if auth.IsStaff(ctx) {
		f.PatientID = c.QueryParam("patient_id")
	} else {
		f.PatientID = auth.UserIDFromContext(ctx)
	}
	if s := c.QueryParam("status"); s != "" {
		f.Statuses = strings.Split(s, ",")
	}
	return f
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	patientID := auth.UserIDFromContext(ctx)
	if auth.IsStaff(ctx) && req.PatientID != "" {
		patientID = req.PatientID
	}
	claim, err := h.svc.Create(ctx, patientID, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, claim)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), filterFromRequest(c), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Summary(c echo.Context) error {
	s, err := h.svc.Summary(c.Request().Context(), filterFromRequest(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.Detail(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if !auth.CanAccess(c.Request().Context(), d.PatientID) {
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	}
	return c.JSON(http.StatusOK, d)
}

type lineItemsRequest struct {
	LineItems []LineItem `json:"line_items"`
}

func (h *Handler) AddLineItems(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req lineItemsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.AddLineItems(c.Request().Context(), id, req.LineItems)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) Adjudicate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	itemID, err := uuid.Parse(c.Param("item_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item_id")
	}
	var adj Adjudication
	if err := c.Bind(&adj); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.Adjudicate(c.Request().Context(), id, itemID, adj)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req StatusChange
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	claim, err := h.svc.Transition(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, claim)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLineItemNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, money.ErrInvalidAmount):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
