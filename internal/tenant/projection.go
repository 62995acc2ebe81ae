package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"identity-system/internal/entities"
	"identity-system/internal/syncer"
)

// Repository — персистентная часть проекции.
type Repository interface {
	ListIDConfigs(ctx context.Context, dataSourceID uint64) ([]entities.TenantUserIDConfig, error)
	ListBindings(ctx context.Context, dataSourceID uint64) ([]entities.CollaborationBinding, error)

	ListUserCodes(ctx context.Context, dataSourceID uint64) (map[string]entities.DataSourceUser, error)
	ListDepartmentCodes(ctx context.Context, dataSourceID uint64) (map[string]entities.DataSourceDepartment, error)

	ListTenantUsers(ctx context.Context, tenantID string, dataSourceID uint64) (map[string]entities.TenantUser, error)
	CreateTenantUsers(ctx context.Context, users []entities.TenantUser) error
	DeleteTenantUsers(ctx context.Context, tenantID string, dataSourceID uint64, codes []string) error

	ListTenantDepartments(ctx context.Context, tenantID string, dataSourceID uint64) (map[string]entities.TenantDepartment, error)
	CreateTenantDepartments(ctx context.Context, departments []entities.TenantDepartment) ([]entities.TenantDepartment, error)
	DeleteTenantDepartments(ctx context.Context, tenantID string, dataSourceID uint64, codes []string) error
	RecordTenantDepartmentIDs(ctx context.Context, records []entities.TenantDepartmentIDRecord) error
}

// Projector отображает пользователей/подразделения источника в тенанты:
// владеющий тенант плюс тенанты с включёнными collaboration-биндингами.
// Проекция идемпотентна: существующие tenant ID не пересоздаются, каждая
// запись проецируется ровно один раз на тенант.
type Projector struct {
	repo   Repository
	logger *zap.Logger
}

func NewProjector(repo Repository, logger *zap.Logger) *Projector {
	return &Projector{repo: repo, logger: logger.Named("tenant_projector")}
}

// GenerateTenantUserID строит tenant user ID по активному правилу.
// Порядок приоритета правил фиксирован: домен, затем голый username,
// затем случайный UUID (правило по умолчанию).
func GenerateTenantUserID(cfg *entities.TenantUserIDConfig, user *entities.DataSourceUser) string {
	if cfg != nil && cfg.Enabled {
		switch cfg.Rule {
		case entities.TenantUserIDRuleUsernameWithDomain:
			return fmt.Sprintf("%s@%s", user.Username, cfg.Domain)
		case entities.TenantUserIDRuleUsername:
			return user.Username
		}
	}
	return uuid.NewString()
}

// IsDataSourceUsernameFrozen: любое активное правило, кроме uuid, завязано
// на username — переименование сломало бы стабильность tenant user ID,
// поэтому источник считается замороженным для правок username.
func IsDataSourceUsernameFrozen(configs []entities.TenantUserIDConfig) bool {
	for _, cfg := range configs {
		if cfg.Enabled && cfg.Rule != entities.TenantUserIDRuleUUID {
			return true
		}
	}
	return false
}

// ProjectDataSource — последний шаг прогона синхронизации.
func (p *Projector) ProjectDataSource(ctx context.Context, ds *entities.DataSource, tl *syncer.TaskLogger) error {
	configs, err := p.repo.ListIDConfigs(ctx, ds.ID)
	if err != nil {
		return fmt.Errorf("правила генерации tenant ID: %w", err)
	}
	bindings, err := p.repo.ListBindings(ctx, ds.ID)
	if err != nil {
		return fmt.Errorf("collaboration-биндинги: %w", err)
	}

	targets := []string{ds.TenantID}
	for _, b := range bindings {
		if b.Enabled && b.TargetTenantID != ds.TenantID {
			targets = append(targets, b.TargetTenantID)
		}
	}

	users, err := p.repo.ListUserCodes(ctx, ds.ID)
	if err != nil {
		return fmt.Errorf("пользователи источника: %w", err)
	}
	departments, err := p.repo.ListDepartmentCodes(ctx, ds.ID)
	if err != nil {
		return fmt.Errorf("подразделения источника: %w", err)
	}

	for _, tenantID := range targets {
		if err := p.projectTenant(ctx, ds, tenantID, configs, users, departments, tl); err != nil {
			return err
		}
	}
	return nil
}

func (p *Projector) projectTenant(
	ctx context.Context,
	ds *entities.DataSource,
	tenantID string,
	configs []entities.TenantUserIDConfig,
	users map[string]entities.DataSourceUser,
	departments map[string]entities.DataSourceDepartment,
	tl *syncer.TaskLogger,
) error {
	var activeCfg *entities.TenantUserIDConfig
	for i := range configs {
		if configs[i].TenantID == tenantID && configs[i].Enabled {
			activeCfg = &configs[i]
			break
		}
	}

	// --- Пользователи ---
	existing, err := p.repo.ListTenantUsers(ctx, tenantID, ds.ID)
	if err != nil {
		return fmt.Errorf("tenant-пользователи %s: %w", tenantID, err)
	}

	var created []entities.TenantUser
	for code, user := range users {
		if _, ok := existing[code]; ok {
			continue
		}
		u := user
		created = append(created, entities.TenantUser{
			ID:           GenerateTenantUserID(activeCfg, &u),
			TenantID:     tenantID,
			DataSourceID: ds.ID,
			Code:         code,
		})
	}
	var removed []string
	for code := range existing {
		if _, ok := users[code]; !ok {
			removed = append(removed, code)
		}
	}

	if len(created) > 0 {
		if err := p.repo.CreateTenantUsers(ctx, created); err != nil {
			return fmt.Errorf("создание tenant-пользователей %s: %w", tenantID, err)
		}
	}
	if len(removed) > 0 {
		if err := p.repo.DeleteTenantUsers(ctx, tenantID, ds.ID, removed); err != nil {
			return fmt.Errorf("удаление tenant-пользователей %s: %w", tenantID, err)
		}
	}

	// --- Подразделения ---
	existingDepts, err := p.repo.ListTenantDepartments(ctx, tenantID, ds.ID)
	if err != nil {
		return fmt.Errorf("tenant-подразделения %s: %w", tenantID, err)
	}

	var createdDepts []entities.TenantDepartment
	for code := range departments {
		if _, ok := existingDepts[code]; ok {
			continue
		}
		createdDepts = append(createdDepts, entities.TenantDepartment{
			TenantID:     tenantID,
			DataSourceID: ds.ID,
			Code:         code,
		})
	}
	var removedDepts []string
	for code := range existingDepts {
		if _, ok := departments[code]; !ok {
			removedDepts = append(removedDepts, code)
		}
	}

	if len(createdDepts) > 0 {
		withIDs, err := p.repo.CreateTenantDepartments(ctx, createdDepts)
		if err != nil {
			return fmt.Errorf("создание tenant-подразделений %s: %w", tenantID, err)
		}
		// Производный индекс стабильности tenant_department_id. Его потеря
		// не фатальна: восстанавливается офлайн из соединения таблиц.
		records := make([]entities.TenantDepartmentIDRecord, 0, len(withIDs))
		for _, d := range withIDs {
			records = append(records, entities.TenantDepartmentIDRecord{
				TenantDepartmentID: d.ID,
				TenantID:           d.TenantID,
				DataSourceID:       d.DataSourceID,
				Code:               d.Code,
			})
		}
		if err := p.repo.RecordTenantDepartmentIDs(ctx, records); err != nil {
			tl.Warningf("индекс tenant_department_id не обновлён: %v", err)
		}
	}
	if len(removedDepts) > 0 {
		if err := p.repo.DeleteTenantDepartments(ctx, tenantID, ds.ID, removedDepts); err != nil {
			return fmt.Errorf("удаление tenant-подразделений %s: %w", tenantID, err)
		}
	}

	tl.Infof("тенант %s: пользователей +%d/-%d, подразделений +%d/-%d",
		tenantID, len(created), len(removed), len(createdDepts), len(removedDepts))
	return nil
}
