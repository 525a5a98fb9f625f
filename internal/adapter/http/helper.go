package http

import (
	"errors"
	"net/http"
	"strings"

	"lendsmart-backend/internal/domain/ledger"
	domain "lendsmart-backend/internal/domain/loan"
	"lendsmart-backend/internal/usecase/reconcile"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// actor identity headers, required on mutating routes
const (
	HeaderActorID   = "Ls-Actor-Id"
	HeaderActorRole = "Ls-Actor-Role"
)

func actor(c echo.Context) (string, domain.Role, bool) {
	id := strings.TrimSpace(c.Request().Header.Get(HeaderActorID))
	role := domain.Role(strings.ToLower(strings.TrimSpace(c.Request().Header.Get(HeaderActorRole))))
	if !reHex32.MatchString(id) {
		return "", "", false
	}
	switch role {
	case domain.RoleBorrower, domain.RoleLender, domain.RoleAssessor:
		return id, role, true
	}
	return "", "", false
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Validation
// errors are 422, conflicts and frozen loans 409, ledger rejection 502.
// An ambiguous ledger timeout is NOT an error response here; handlers
// answer 202 with the pending loan body before calling this.
func writeDomainError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, domain.ErrDiverged):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "frozen: manual review required"})
	case errors.Is(err, reconcile.ErrAlreadyInProgress),
		errors.Is(err, domain.ErrVersionConflict):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrRoleNotAllowed),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrSelfLending),
		errors.Is(err, domain.ErrInstallmentPaid),
		errors.Is(err, domain.ErrNoInstallment),
		errors.Is(err, domain.ErrRiskScoreSet),
		errors.Is(err, domain.ErrNotCollateral),
		errors.Is(err, domain.ErrTerminal):
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "rejected: " + err.Error()})
	case errors.Is(err, ledger.ErrSubmission):
		return c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}
