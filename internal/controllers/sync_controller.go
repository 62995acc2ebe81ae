package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"identity-system/internal/entities"
	"identity-system/internal/services"
	apperrors "identity-system/pkg/errors"
	"identity-system/pkg/utils"
)

type SyncController struct {
	service services.SyncServiceInterface
	logger  *zap.Logger
}

func NewSyncController(service services.SyncServiceInterface, logger *zap.Logger) *SyncController {
	return &SyncController{service: service, logger: logger}
}

// Trigger запускает ручную синхронизацию источника. Возвращает 202 с
// task_id сразу: прогон идёт в фоне, статус смотрят по задаче.
func (c *SyncController) Trigger(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	resp, err := c.service.TriggerSync(ctx.Request().Context(), id, entities.SyncTriggerManual)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, resp, "Синхронизация запущена", http.StatusAccepted)
}

func (c *SyncController) GetTask(ctx echo.Context) error {
	task, err := c.service.GetTask(ctx.Request().Context(), ctx.Param("task_id"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, task, "Задача синхронизации", http.StatusOK)
}

func (c *SyncController) ListTasks(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	limit := uint64(20)
	if raw := ctx.QueryParam("limit"); raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	tasks, err := c.service.ListTasks(ctx.Request().Context(), id, limit)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, tasks, "Задачи синхронизации", http.StatusOK)
}

type testConnectionRequest struct {
	PluginType   string          `json:"plugin_type"`
	PluginConfig json.RawMessage `json:"plugin_config"`
}

// TestConnection проверяет конфигурацию плагина без сохранения источника.
func (c *SyncController) TestConnection(ctx echo.Context) error {
	var payload testConnectionRequest
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx, apperrors.ErrBadRequest, c.logger)
	}
	result, err := c.service.TestConnection(ctx.Request().Context(), payload.PluginType, payload.PluginConfig)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, result, "Проверка соединения выполнена", http.StatusOK)
}
