package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ErlanBelekov/homebase/internal/domain"
	"github.com/ErlanBelekov/homebase/internal/scheduler"
	"github.com/ErlanBelekov/homebase/internal/usecase"
	"github.com/gin-gonic/gin"
)

type scheduleUsecaser interface {
	CreateDefinition(ctx context.Context, input usecase.CreateDefinitionInput) (*domain.Definition, error)
	UpdateDefinition(ctx context.Context, id string, input usecase.UpdateDefinitionInput) (*domain.Definition, error)
	DeleteDefinition(ctx context.Context, id string) (bool, error)
	GetDefinition(ctx context.Context, id string) (*domain.Definition, error)
	ListDefinitions(ctx context.Context, input usecase.ListDefinitionsInput) (usecase.ListDefinitionsResult, error)
	ActiveJobs() []scheduler.ActiveJob
	IsActive(id string) bool
}

type ScheduleHandler struct {
	uc     scheduleUsecaser
	logger *slog.Logger
}

func NewScheduleHandler(uc scheduleUsecaser, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{uc: uc, logger: logger.With("component", "schedule_handler")}
}

// triggerFields accepts the tagged trigger or the legacy at/cron fields. cron may be a single
// expression, an array, or a string holding an array.
type triggerFields struct {
	Trigger *domain.Trigger `json:"trigger"`
	At      *time.Time      `json:"at"`
	Cron    json.RawMessage `json:"cron"`
}

var errConflictingTrigger = errors.New("conflicting trigger fields")

// resolve returns nil when no trigger field was sent.
func (f triggerFields) resolve() (*domain.Trigger, error) {
	set := 0
	for _, present := range []bool{f.Trigger != nil, f.At != nil, len(f.Cron) > 0 && string(f.Cron) != "null"} {
		if present {
			set++
		}
	}
	switch {
	case set > 1:
		return nil, errConflictingTrigger
	case f.Trigger != nil:
		return f.Trigger, nil
	case f.At != nil:
		t := domain.FixedTrigger(*f.At)
		return &t, nil
	case set == 1:
		exprs, err := domain.ParseCronField(f.Cron)
		if err != nil {
			return nil, err
		}
		t := domain.CronTrigger(exprs...)
		return &t, nil
	}
	return nil, nil
}

type createDefinitionRequest struct {
	triggerFields
	ID         string             `json:"id"         binding:"omitempty,max=128"`
	Kind       domain.Kind        `json:"kind"       binding:"omitempty,oneof=one_shot cron"`
	Payload    *domain.Payload    `json:"payload"    binding:"required"`
	Enabled    *bool              `json:"enabled"`
	Recurrence *domain.Recurrence `json:"recurrence"`
}

type updateDefinitionRequest struct {
	triggerFields
	Payload         *domain.Payload    `json:"payload"`
	Enabled         *bool              `json:"enabled"`
	Recurrence      *domain.Recurrence `json:"recurrence"`
	ClearRecurrence bool               `json:"clearRecurrence"`
	Status          *domain.Status     `json:"status" binding:"omitempty,oneof=pending sent"`
}

type definitionResponse struct {
	*domain.Definition
	Active bool `json:"active"`
}

func (h *ScheduleHandler) toResponse(d *domain.Definition) definitionResponse {
	return definitionResponse{Definition: d, Active: h.uc.IsActive(d.ID)}
}

func (h *ScheduleHandler) Create(ctx *gin.Context) {
	var req createDefinitionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	trigger, err := req.resolve()
	if err != nil {
		h.badTrigger(ctx, err)
		return
	}
	if trigger == nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "trigger is required"})
		return
	}

	d, err := h.uc.CreateDefinition(ctx.Request.Context(), usecase.CreateDefinitionInput{
		ID:         req.ID,
		Kind:       req.Kind,
		Trigger:    *trigger,
		Payload:    *req.Payload,
		Enabled:    req.Enabled,
		Recurrence: req.Recurrence,
	})
	if err != nil {
		h.writeError(ctx, "create definition", "", err)
		return
	}

	ctx.JSON(http.StatusCreated, h.toResponse(d))
}

func (h *ScheduleHandler) List(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	result, err := h.uc.ListDefinitions(ctx.Request.Context(), usecase.ListDefinitionsInput{
		Kind:   domain.Kind(ctx.Query("kind")),
		Status: domain.Status(ctx.Query("status")),
		Cursor: ctx.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		h.writeError(ctx, "list definitions", "", err)
		return
	}

	items := make([]definitionResponse, len(result.Definitions))
	for i, d := range result.Definitions {
		items[i] = h.toResponse(d)
	}
	ctx.JSON(http.StatusOK, gin.H{
		"schedules":   items,
		"next_cursor": result.NextCursor,
	})
}

func (h *ScheduleHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	d, err := h.uc.GetDefinition(ctx.Request.Context(), id)
	if err != nil {
		h.writeError(ctx, "get definition", id, err)
		return
	}

	ctx.JSON(http.StatusOK, h.toResponse(d))
}

func (h *ScheduleHandler) Update(ctx *gin.Context) {
	id := ctx.Param("id")

	var req updateDefinitionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	trigger, err := req.resolve()
	if err != nil {
		h.badTrigger(ctx, err)
		return
	}

	d, err := h.uc.UpdateDefinition(ctx.Request.Context(), id, usecase.UpdateDefinitionInput{
		Trigger:         trigger,
		Payload:         req.Payload,
		Enabled:         req.Enabled,
		Recurrence:      req.Recurrence,
		ClearRecurrence: req.ClearRecurrence,
		Status:          req.Status,
	})
	if err != nil {
		h.writeError(ctx, "update definition", id, err)
		return
	}

	ctx.JSON(http.StatusOK, h.toResponse(d))
}

func (h *ScheduleHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	deleted, err := h.uc.DeleteDefinition(ctx.Request.Context(), id)
	if err != nil {
		h.writeError(ctx, "delete definition", id, err)
		return
	}
	if !deleted {
		ctx.JSON(http.StatusNotFound, gin.H{"error": errDefinitionNotFound})
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) Active(ctx *gin.Context) {
	jobs := h.uc.ActiveJobs()
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.DefinitionID
	}
	ctx.JSON(http.StatusOK, gin.H{
		"ids":  ids,
		"jobs": jobs,
	})
}

func (h *ScheduleHandler) badTrigger(ctx *gin.Context, err error) {
	if errors.Is(err, errConflictingTrigger) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errTriggerConflict})
		return
	}
	ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// writeError maps domain errors to status codes. Validation errors carry their detail.
func (h *ScheduleHandler) writeError(ctx *gin.Context, op, id string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidCursor):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidCursor})
	case errors.Is(err, domain.ErrDefinitionNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": errDefinitionNotFound})
	case errors.Is(err, domain.ErrDefinitionExists):
		ctx.JSON(http.StatusConflict, gin.H{"error": errDefinitionExists})
	default:
		h.logger.ErrorContext(ctx.Request.Context(), op, "definition_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}
