package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"identity-system/internal/dto"
	"identity-system/internal/entities"
	"identity-system/internal/plugins"
	"identity-system/internal/repositories"
	apperrors "identity-system/pkg/errors"
)

type DataSourceServiceInterface interface {
	ListDataSources(ctx context.Context) ([]entities.DataSource, error)
	FindDataSource(ctx context.Context, id uint64) (*entities.DataSource, error)
	CreateDataSource(ctx context.Context, payload dto.CreateDataSourceDTO) (*entities.DataSource, error)
	UpdateDataSource(ctx context.Context, id uint64, payload dto.UpdateDataSourceDTO) (*entities.DataSource, error)
	DeleteDataSource(ctx context.Context, id uint64) error
}

type DataSourceService struct {
	repo     repositories.DataSourceRepositoryInterface
	validate *validator.Validate
	logger   *zap.Logger
}

func NewDataSourceService(repo repositories.DataSourceRepositoryInterface, logger *zap.Logger) DataSourceServiceInterface {
	return &DataSourceService{repo: repo, validate: validator.New(), logger: logger.Named("data_source_service")}
}

func (s *DataSourceService) ListDataSources(ctx context.Context) ([]entities.DataSource, error) {
	return s.repo.ListDataSources(ctx)
}

func (s *DataSourceService) FindDataSource(ctx context.Context, id uint64) (*entities.DataSource, error) {
	return s.repo.FindDataSource(ctx, id)
}

func (s *DataSourceService) CreateDataSource(ctx context.Context, payload dto.CreateDataSourceDTO) (*entities.DataSource, error) {
	if err := s.validate.Struct(payload); err != nil {
		return nil, apperrors.NewInvalidInputError("неверные данные источника: %v", err)
	}
	if !plugins.Known(payload.PluginType) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownPlugin, payload.PluginType)
	}
	for _, m := range payload.FieldMappings {
		if m.MappingOperation != dto.MappingOperationDirect && m.MappingOperation != dto.MappingOperationExpression {
			return nil, apperrors.NewInvalidInputError("неизвестная операция маппинга %q", m.MappingOperation)
		}
	}

	ds := entities.DataSource{
		TenantID:     payload.TenantID,
		Name:         payload.Name,
		PluginType:   payload.PluginType,
		PluginConfig: payload.PluginConfig,
		Enabled:      payload.Enabled,
		SyncInterval: time.Duration(payload.SyncIntervalSeconds) * time.Second,
	}
	created, err := s.repo.CreateDataSource(ctx, ds, payload.FieldMappings)
	if err != nil {
		return nil, err
	}
	s.logger.Info("источник данных создан",
		zap.Uint64("id", created.ID), zap.String("plugin_type", created.PluginType))
	return created, nil
}

func (s *DataSourceService) UpdateDataSource(ctx context.Context, id uint64, payload dto.UpdateDataSourceDTO) (*entities.DataSource, error) {
	if err := s.validate.Struct(payload); err != nil {
		return nil, apperrors.NewInvalidInputError("неверные данные источника: %v", err)
	}
	return s.repo.UpdateDataSource(ctx, id, payload)
}

func (s *DataSourceService) DeleteDataSource(ctx context.Context, id uint64) error {
	return s.repo.DeleteDataSource(ctx, id)
}
