package http

import (
	"errors"
	"net/http"

	"lendsmart-backend/internal/usecase/reputation"

	"github.com/labstack/echo/v4"
)

type ReputationHandler struct{ uc *reputation.Usecase }

func NewReputationHandler(uc *reputation.Usecase) *ReputationHandler {
	return &ReputationHandler{uc: uc}
}

func (h *ReputationHandler) Score(c echo.Context) error {
	actorID := c.Param("actor_id")
	if !reHex32.MatchString(actorID) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid actor id"})
	}
	dto, err := h.uc.Score(c.Request().Context(), actorID)
	if err != nil {
		if errors.Is(err, reputation.ErrUnknownActor) {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "no loan history for actor"})
		}
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}
