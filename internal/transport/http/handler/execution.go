package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ErlanBelekov/homebase/internal/domain"
	"github.com/gin-gonic/gin"
)

type executionUsecaser interface {
	ListExecutions(ctx context.Context, definitionID string, limit int) ([]*domain.ExecutionResult, error)
	LatestWeather(ctx context.Context, limit int) ([]*domain.WeatherSnapshot, error)
}

type ExecutionHandler struct {
	uc     executionUsecaser
	logger *slog.Logger
}

func NewExecutionHandler(uc executionUsecaser, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{uc: uc, logger: logger.With("component", "execution_handler")}
}

func (h *ExecutionHandler) ListByDefinition(ctx *gin.Context) {
	id := ctx.Param("id")
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	results, err := h.uc.ListExecutions(ctx.Request.Context(), id, limit)
	if err != nil {
		if errors.Is(err, domain.ErrDefinitionNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errDefinitionNotFound})
			return
		}
		h.logger.ErrorContext(ctx.Request.Context(), "list executions", "definition_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"executions": results})
}

func (h *ExecutionHandler) LatestWeather(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	snaps, err := h.uc.LatestWeather(ctx.Request.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), "latest weather", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"snapshots": snaps})
}
