package http

import (
	"errors"
	"net/http"
	"time"

	"lendsmart-backend/internal/domain/ledger"
	domain "lendsmart-backend/internal/domain/loan"
	"lendsmart-backend/internal/usecase/loan"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type LoanHandler struct{ uc *loan.Usecase }

func NewLoanHandler(uc *loan.Usecase) *LoanHandler { return &LoanHandler{uc: uc} }

type applyReq struct {
	Principal        decimal.Decimal `json:"principal" validate:"money"`
	InterestRate     decimal.Decimal `json:"interest_rate"`
	TermUnits        int             `json:"term_units" validate:"required,gte=1,lte=360"`
	IsCollateralized bool            `json:"is_collateralized"`
	CollateralAmount decimal.Decimal `json:"collateral_amount"`
}

func (h *LoanHandler) Apply(c echo.Context) error {
	actorID, role, ok := actor(c)
	if !ok || role != domain.RoleBorrower {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid actor headers"})
	}
	var req applyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	dto, err := h.uc.Apply(c.Request().Context(), loan.ApplyInput{
		BorrowerID:       actorID,
		Principal:        req.Principal,
		InterestRate:     req.InterestRate,
		TermUnits:        req.TermUnits,
		IsCollateralized: req.IsCollateralized,
		CollateralAmount: req.CollateralAmount,
	})
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

// List serves every loan an actor participates in, either side.
func (h *LoanHandler) List(c echo.Context) error {
	actorID := c.Param("actor_id")
	if !reHex32.MatchString(actorID) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid actor id"})
	}
	dtos, err := h.uc.List(c.Request().Context(), actorID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"loans": dtos})
}

func (h *LoanHandler) Get(c echo.Context) error {
	dto, err := h.uc.Get(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

type fundReq struct {
	Amount decimal.Decimal `json:"amount" validate:"money"`
}

func (h *LoanHandler) Fund(c echo.Context) error {
	actorID, role, ok := actor(c)
	if !ok || role != domain.RoleLender {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid actor headers"})
	}
	var req fundReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	dto, err := h.uc.Fund(c.Request().Context(), c.Param("loan_id"), loan.FundInput{
		LenderID: actorID,
		Amount:   req.Amount,
	})
	return writeLoanResult(c, dto, err)
}

func (h *LoanHandler) Disburse(c echo.Context) error {
	actorID, role, ok := actor(c)
	if !ok || role == domain.RoleAssessor {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid actor headers"})
	}
	dto, err := h.uc.Disburse(c.Request().Context(), c.Param("loan_id"), actorID, role)
	return writeLoanResult(c, dto, err)
}

type repayReq struct {
	InstallmentNo int             `json:"installment_no" validate:"required,gte=1"`
	Amount        decimal.Decimal `json:"amount" validate:"money"`
	PaidAt        time.Time       `json:"paid_at"`
}

func (h *LoanHandler) Repay(c echo.Context) error {
	actorID, role, ok := actor(c)
	if !ok || role != domain.RoleBorrower {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid actor headers"})
	}
	var req repayReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	dto, err := h.uc.Repay(c.Request().Context(), c.Param("loan_id"), loan.RepayInput{
		BorrowerID:    actorID,
		InstallmentNo: req.InstallmentNo,
		Amount:        req.Amount,
		PaidAt:        req.PaidAt,
	})
	return writeLoanResult(c, dto, err)
}

type collateralReq struct {
	Amount decimal.Decimal `json:"amount" validate:"money"`
}

func (h *LoanHandler) DepositCollateral(c echo.Context) error {
	actorID, role, ok := actor(c)
	if !ok || role != domain.RoleBorrower {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid actor headers"})
	}
	var req collateralReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	dto, err := h.uc.DepositCollateral(c.Request().Context(), c.Param("loan_id"), actorID, req.Amount)
	return writeLoanResult(c, dto, err)
}

type riskScoreReq struct {
	Score  decimal.Decimal `json:"score" validate:"score01"`
	Reject bool            `json:"reject"`
}

func (h *LoanHandler) SetRiskScore(c echo.Context) error {
	actorID, role, ok := actor(c)
	if !ok || role != domain.RoleAssessor {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid actor headers"})
	}
	var req riskScoreReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
	}
	dto, err := h.uc.SetRiskScore(c.Request().Context(), c.Param("loan_id"), loan.RiskScoreInput{
		AssessorID: actorID,
		Score:      req.Score,
		Reject:     req.Reject,
	})
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) Cancel(c echo.Context) error {
	actorID, role, ok := actor(c)
	if !ok || role != domain.RoleBorrower {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid actor headers"})
	}
	dto, err := h.uc.Cancel(c.Request().Context(), c.Param("loan_id"), actorID)
	return writeLoanResult(c, dto, err)
}

func (h *LoanHandler) MarkDefaulted(c echo.Context) error {
	actorID, role, ok := actor(c)
	if !ok || role != domain.RoleLender {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing or invalid actor headers"})
	}
	dto, err := h.uc.MarkDefaulted(c.Request().Context(), c.Param("loan_id"), actorID)
	return writeLoanResult(c, dto, err)
}

// writeLoanResult: ambiguous ledger timeouts answer 202 Accepted with the
// pending loan body so clients know to poll; everything else maps through
// the taxonomy.
func writeLoanResult(c echo.Context, dto *loan.LoanDTO, err error) error {
	if err != nil {
		if errors.Is(err, ledger.ErrTimeout) && dto != nil {
			return c.JSON(http.StatusAccepted, dto)
		}
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}
