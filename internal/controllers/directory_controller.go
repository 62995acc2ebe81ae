package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"identity-system/internal/services"
	apperrors "identity-system/pkg/errors"
	"identity-system/pkg/utils"
)

type DirectoryController struct {
	service services.DirectoryServiceInterface
	logger  *zap.Logger
}

func NewDirectoryController(service services.DirectoryServiceInterface, logger *zap.Logger) *DirectoryController {
	return &DirectoryController{service: service, logger: logger}
}

func (c *DirectoryController) ListUsers(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	users, err := c.service.ListUsers(ctx.Request().Context(), id)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, users, "Пользователи источника", http.StatusOK)
}

func (c *DirectoryController) ListDepartments(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	departments, err := c.service.ListDepartments(ctx.Request().Context(), id)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, departments, "Подразделения источника", http.StatusOK)
}

func (c *DirectoryController) GetUser(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	user, err := c.service.GetUser(ctx.Request().Context(), id, ctx.Param("code"))
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, user, "Пользователь источника", http.StatusOK)
}

type updateUsernameRequest struct {
	Username string `json:"username"`
}

func (c *DirectoryController) UpdateUsername(ctx echo.Context) error {
	id, err := parseID(ctx)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	var payload updateUsernameRequest
	if err := ctx.Bind(&payload); err != nil {
		return utils.ErrorResponse(ctx, apperrors.ErrBadRequest, c.logger)
	}
	if payload.Username == "" {
		return utils.ErrorResponse(ctx, apperrors.NewInvalidInputError("username не может быть пустым"), c.logger)
	}
	user, err := c.service.UpdateUsername(ctx.Request().Context(), id, ctx.Param("code"), payload.Username)
	if err != nil {
		return utils.ErrorResponse(ctx, err, c.logger)
	}
	return utils.SuccessResponse(ctx, user, "Имя пользователя обновлено", http.StatusOK)
}
