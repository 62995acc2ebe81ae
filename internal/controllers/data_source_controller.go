package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"identity-system/internal/dto"
	"identity-system/internal/services"
	apperrors "identity-system/pkg/errors"
	"identity-system/pkg/utils"
)

type DataSourceController struct {
	service services.DataSourceServiceInterface
	logger  *zap.Logger
}

func NewDataSourceController(service services.DataSourceServiceInterface, logger *zap.Logger) *DataSourceController {
	return &DataSourceController{service: service, logger: logger}
}

func (c *DataSourceController) List(ctx echo.Context) error {
	sources, err := c.service.ListDataSources(ctx.Request().Context())
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, sources, "Список источников данных", http.StatusOK)
}

func (c *DataSourceController) Find(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	ds, err := c.service.FindDataSource(ctx.Request().Context(), id)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, ds, "Источник данных", http.StatusOK)
}

func (c *DataSourceController) Create(ctx echo.Context) error {
	var payload dto.CreateDataSourceDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx, apperrors.ErrBadRequest, c.logger)
	}
	ds, err := c.service.CreateDataSource(ctx.Request().Context(), payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, ds, "Источник данных создан", http.StatusCreated)
}

func (c *DataSourceController) Update(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	var payload dto.UpdateDataSourceDTO
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx, apperrors.ErrBadRequest, c.logger)
	}
	ds, err := c.service.UpdateDataSource(ctx.Request().Context(), id, payload)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, ds, "Источник данных обновлён", http.StatusOK)
}

func (c *DataSourceController) Delete(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	if err := c.service.DeleteDataSource(ctx.Request().Context(), id); err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, struct{}{}, "Источник данных удалён", http.StatusOK)
}

func parseID(ctx echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return 0, apperrors.ErrBadRequest
	}
	return id, nil
}
