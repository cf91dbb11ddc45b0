package dispute

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/desthealth/claims/internal/domain/claims"
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
	api.POST("/claims/:id/appeals", h.RecordAppeal)
	api.GET("/idr-cases/:id", h.Get)
	api.GET("/disputes/board", h.Board)

	staff := api.Group("", auth.RequireRole(auth.RoleBilling))
	staff.POST("/claims/:id/idr", h.Open)
	staff.POST("/idr-cases/:id/initiate", h.Initiate)
	staff.POST("/idr-cases/:id/entity", h.SelectEntity)
	staff.POST("/idr-cases/:id/offers", h.SubmitOffers)
	staff.POST("/idr-cases/:id/decision", h.RecordDecision)
	staff.POST("/idr-cases/:id/withdraw", h.Withdraw)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// RecordAppeal lets a patient appeal their own claim; staff may appeal any.
func (h *Handler) RecordAppeal(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req AppealRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	claim, err := h.svc.claims.Get(ctx, id)
	if err != nil {
		return httpError(err)
	}
	if !auth.CanAccess(ctx, claim.PatientID) {
		return echo.NewHTTPError(http.StatusNotFound, claims.ErrNotFound.Error())
	}
	claim, err = h.svc.RecordAppeal(ctx, id, req.Level)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, claim)
}

func (h *Handler) Open(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ic, err := h.svc.Open(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, ic)
}

type caseView struct {
	*Case
	Stage     Stage          `json:"stage"`
	Offers    OfferAnalysis  `json:"offers"`
	Deadlines []DeadlineFlag `json:"deadlines"`
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	ic, err := h.svc.Get(ctx, id)
	if err != nil {
		return httpError(err)
	}
	claim, err := h.svc.ClaimOf(ctx, ic)
	if err != nil {
		return httpError(err)
	}
	if !auth.CanAccess(ctx, claim.PatientID) {
		return echo.NewHTTPError(http.StatusNotFound, ErrCaseNotFound.Error())
	}

	d := h.svc.Deadlines()
	v := caseView{Case: ic, Stage: ClassifyStage(claim, ic), Offers: ic.Analyze(), Deadlines: []DeadlineFlag{}}
	for _, f := range []*DeadlineFlag{d.Flag("offers_due_date", ic.OffersDueDate), d.Flag("decision_due_date", ic.DecisionDueDate)} {
		if f != nil {
			v.Deadlines = append(v.Deadlines, *f)
		}
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Initiate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ic, err := h.svc.Initiate(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ic)
}

func (h *Handler) SelectEntity(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req EntityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ic, err := h.svc.SelectEntity(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ic)
}

func (h *Handler) SubmitOffers(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req OffersRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ic, err := h.svc.SubmitOffers(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ic)
}

func (h *Handler) RecordDecision(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ic, err := h.svc.RecordDecision(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ic)
}

func (h *Handler) Withdraw(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ic, err := h.svc.Withdraw(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ic)
}

// Board scopes patients to their own claims; staff see everything or one
// patient via ?patient_id=. Counts cover the whole board; entries are paged.
func (h *Handler) Board(c echo.Context) error {
	ctx := c.Request().Context()
	patientID := auth.UserIDFromContext(ctx)
	if auth.IsStaff(ctx) {
		patientID = c.QueryParam("patient_id")
	}
	b, err := h.svc.Board(ctx, patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	pg := pagination.FromContext(c)
	b.Total = len(b.Entries)
	b.Entries = pagination.Page(b.Entries, pg)
	return c.JSON(http.StatusOK, b)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrCaseNotFound), errors.Is(err, claims.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrCaseExists), errors.Is(err, ErrInvalidTransition), errors.Is(err, claims.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotEligible):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, claims.ErrInvalidRequest), errors.Is(err, money.ErrInvalidAmount):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}
