package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"identity-system/internal/entities"
	"identity-system/internal/syncer"
	"identity-system/internal/tenant"
	apperrors "identity-system/pkg/errors"
)

type DirectoryServiceInterface interface {
	GetUser(ctx context.Context, dataSourceID uint64, code string) (*entities.DataSourceUser, error)
	ListUsers(ctx context.Context, dataSourceID uint64) ([]entities.DataSourceUser, error)
	ListDepartments(ctx context.Context, dataSourceID uint64) ([]entities.DataSourceDepartment, error)
	UpdateUsername(ctx context.Context, dataSourceID uint64, code, username string) (*entities.DataSourceUser, error)
}

// DirectoryService — чтение каталога и точечные ручные правки.
type DirectoryService struct {
	store      syncer.Store
	tenantRepo tenant.Repository
	logger     *zap.Logger
}

func NewDirectoryService(store syncer.Store, tenantRepo tenant.Repository, logger *zap.Logger) DirectoryServiceInterface {
	return &DirectoryService{store: store, tenantRepo: tenantRepo, logger: logger.Named("directory_service")}
}

func (s *DirectoryService) GetUser(ctx context.Context, dataSourceID uint64, code string) (*entities.DataSourceUser, error) {
	users, err := s.store.LoadUsers(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	user, ok := users[code]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &user, nil
}

func (s *DirectoryService) ListUsers(ctx context.Context, dataSourceID uint64) ([]entities.DataSourceUser, error) {
	users, err := s.store.LoadUsers(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	out := make([]entities.DataSourceUser, 0, len(users))
	for _, u := range users {
		out = append(out, u)
	}
	return out, nil
}

func (s *DirectoryService) ListDepartments(ctx context.Context, dataSourceID uint64) ([]entities.DataSourceDepartment, error) {
	departments, err := s.store.LoadDepartments(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	out := make([]entities.DataSourceDepartment, 0, len(departments))
	for _, d := range departments {
		out = append(out, d)
	}
	return out, nil
}

// UpdateUsername — ручное переименование. Отклоняется до любой записи,
// если активное правило генерации tenant ID завязано на username:
// переименование сломало бы стабильность уже выданных tenant user ID.
func (s *DirectoryService) UpdateUsername(ctx context.Context, dataSourceID uint64, code, username string) (*entities.DataSourceUser, error) {
	configs, err := s.tenantRepo.ListIDConfigs(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	if tenant.IsDataSourceUsernameFrozen(configs) {
		return nil, apperrors.ErrUsernameFrozen
	}

	users, err := s.store.LoadUsers(ctx, dataSourceID)
	if err != nil {
		return nil, err
	}
	user, ok := users[code]
	if !ok {
		return nil, apperrors.ErrNotFound
	}

	user.Username = username
	if err := s.store.UpdateUsers(ctx, dataSourceID, []entities.DataSourceUser{user}); err != nil {
		return nil, fmt.Errorf("переименование пользователя %s: %w", code, err)
	}
	return &user, nil
}
