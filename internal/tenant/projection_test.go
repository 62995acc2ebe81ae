package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"identity-system/internal/entities"
	"identity-system/internal/syncer"
)

func TestGenerateTenantUserID(t *testing.T) {
	user := &entities.DataSourceUser{Username: "ivanov"}

	t.Run("username с доменом", func(t *testing.T) {
		cfg := &entities.TenantUserIDConfig{Rule: entities.TenantUserIDRuleUsernameWithDomain, Domain: "corp.tj", Enabled: true}
		assert.Equal(t, "ivanov@corp.tj", GenerateTenantUserID(cfg, user))
	})

	t.Run("голый username", func(t *testing.T) {
		cfg := &entities.TenantUserIDConfig{Rule: entities.TenantUserIDRuleUsername, Enabled: true}
		assert.Equal(t, "ivanov", GenerateTenantUserID(cfg, user))
	})

	t.Run("uuid по умолчанию", func(t *testing.T) {
		id := GenerateTenantUserID(nil, user)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
	})

	t.Run("выключенное правило игнорируется", func(t *testing.T) {
		cfg := &entities.TenantUserIDConfig{Rule: entities.TenantUserIDRuleUsername, Enabled: false}
		id := GenerateTenantUserID(cfg, user)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
	})
}

func TestIsDataSourceUsernameFrozen(t *testing.T) {
	assert.False(t, IsDataSourceUsernameFrozen(nil))
	assert.False(t, IsDataSourceUsernameFrozen([]entities.TenantUserIDConfig{
		{Rule: entities.TenantUserIDRuleUUID, Enabled: true},
		{Rule: entities.TenantUserIDRuleUsername, Enabled: false},
	}))
	assert.True(t, IsDataSourceUsernameFrozen([]entities.TenantUserIDConfig{
		{Rule: entities.TenantUserIDRuleUUID, Enabled: true},
		{Rule: entities.TenantUserIDRuleUsernameWithDomain, Enabled: true},
	}))
}

// fakeTenantRepo — состояние проекции в памяти.
type fakeTenantRepo struct {
	configs     []entities.TenantUserIDConfig
	bindings    []entities.CollaborationBinding
	users       map[string]entities.DataSourceUser
	departments map[string]entities.DataSourceDepartment

	tenantUsers map[string]map[string]entities.TenantUser       // tenantID -> code -> row
	tenantDepts map[string]map[string]entities.TenantDepartment // tenantID -> code -> row
	records     []entities.TenantDepartmentIDRecord
	nextDeptID  int64
	recordErr   error
}

func newFakeTenantRepo() *fakeTenantRepo {
	return &fakeTenantRepo{
		users:       map[string]entities.DataSourceUser{},
		departments: map[string]entities.DataSourceDepartment{},
		tenantUsers: map[string]map[string]entities.TenantUser{},
		tenantDepts: map[string]map[string]entities.TenantDepartment{},
	}
}

func (r *fakeTenantRepo) ListIDConfigs(_ context.Context, _ uint64) ([]entities.TenantUserIDConfig, error) {
	return r.configs, nil
}

func (r *fakeTenantRepo) ListBindings(_ context.Context, _ uint64) ([]entities.CollaborationBinding, error) {
	return r.bindings, nil
}

func (r *fakeTenantRepo) ListUserCodes(_ context.Context, _ uint64) (map[string]entities.DataSourceUser, error) {
	return r.users, nil
}

func (r *fakeTenantRepo) ListDepartmentCodes(_ context.Context, _ uint64) (map[string]entities.DataSourceDepartment, error) {
	return r.departments, nil
}

func (r *fakeTenantRepo) ListTenantUsers(_ context.Context, tenantID string, _ uint64) (map[string]entities.TenantUser, error) {
	out := map[string]entities.TenantUser{}
	for code, u := range r.tenantUsers[tenantID] {
		out[code] = u
	}
	return out, nil
}

func (r *fakeTenantRepo) CreateTenantUsers(_ context.Context, users []entities.TenantUser) error {
	for _, u := range users {
		if r.tenantUsers[u.TenantID] == nil {
			r.tenantUsers[u.TenantID] = map[string]entities.TenantUser{}
		}
		r.tenantUsers[u.TenantID][u.Code] = u
	}
	return nil
}

func (r *fakeTenantRepo) DeleteTenantUsers(_ context.Context, tenantID string, _ uint64, codes []string) error {
	for _, code := range codes {
		delete(r.tenantUsers[tenantID], code)
	}
	return nil
}

func (r *fakeTenantRepo) ListTenantDepartments(_ context.Context, tenantID string, _ uint64) (map[string]entities.TenantDepartment, error) {
	out := map[string]entities.TenantDepartment{}
	for code, d := range r.tenantDepts[tenantID] {
		out[code] = d
	}
	return out, nil
}

func (r *fakeTenantRepo) CreateTenantDepartments(_ context.Context, departments []entities.TenantDepartment) ([]entities.TenantDepartment, error) {
	var created []entities.TenantDepartment
	for _, d := range departments {
		r.nextDeptID++
		d.ID = r.nextDeptID
		if r.tenantDepts[d.TenantID] == nil {
			r.tenantDepts[d.TenantID] = map[string]entities.TenantDepartment{}
		}
		r.tenantDepts[d.TenantID][d.Code] = d
		created = append(created, d)
	}
	return created, nil
}

func (r *fakeTenantRepo) DeleteTenantDepartments(_ context.Context, tenantID string, _ uint64, codes []string) error {
	for _, code := range codes {
		delete(r.tenantDepts[tenantID], code)
	}
	return nil
}

func (r *fakeTenantRepo) RecordTenantDepartmentIDs(_ context.Context, records []entities.TenantDepartmentIDRecord) error {
	if r.recordErr != nil {
		return r.recordErr
	}
	r.records = append(r.records, records...)
	return nil
}

func projectionDataSource() *entities.DataSource {
	return &entities.DataSource{ID: 1, TenantID: "owner", Name: "источник"}
}

func TestProjector_ProjectsOwnerTenant(t *testing.T) {
	repo := newFakeTenantRepo()
	repo.configs = []entities.TenantUserIDConfig{
		{TenantID: "owner", Rule: entities.TenantUserIDRuleUsernameWithDomain, Domain: "corp.tj", Enabled: true},
	}
	repo.users = map[string]entities.DataSourceUser{
		"u1": {Code: "u1", Username: "ivanov"},
	}
	repo.departments = map[string]entities.DataSourceDepartment{
		"d1": {Code: "d1", Name: "Отдел"},
	}

	p := NewProjector(repo, zap.NewNop())
	tl := syncer.NewTaskLogger()
	require.NoError(t, p.ProjectDataSource(context.Background(), projectionDataSource(), tl))

	require.Len(t, repo.tenantUsers["owner"], 1)
	assert.Equal(t, "ivanov@corp.tj", repo.tenantUsers["owner"]["u1"].ID)
	require.Len(t, repo.tenantDepts["owner"], 1)
	require.Len(t, repo.records, 1)
	assert.Equal(t, repo.tenantDepts["owner"]["d1"].ID, repo.records[0].TenantDepartmentID)
}

func TestProjector_BindingFanOut(t *testing.T) {
	repo := newFakeTenantRepo()
	repo.bindings = []entities.CollaborationBinding{
		{SourceTenantID: "owner", TargetTenantID: "partner", Enabled: true},
		{SourceTenantID: "owner", TargetTenantID: "выключенный", Enabled: false},
	}
	repo.users = map[string]entities.DataSourceUser{
		"u1": {Code: "u1", Username: "ivanov"},
	}

	p := NewProjector(repo, zap.NewNop())
	require.NoError(t, p.ProjectDataSource(context.Background(), projectionDataSource(), syncer.NewTaskLogger()))

	assert.Len(t, repo.tenantUsers["owner"], 1)
	assert.Len(t, repo.tenantUsers["partner"], 1)
	assert.Empty(t, repo.tenantUsers["выключенный"])
	// Правил нет — ID обоих тенантов случайные и независимые.
	assert.NotEqual(t, repo.tenantUsers["owner"]["u1"].ID, repo.tenantUsers["partner"]["u1"].ID)
}

func TestProjector_Idempotent(t *testing.T) {
	repo := newFakeTenantRepo()
	repo.users = map[string]entities.DataSourceUser{"u1": {Code: "u1", Username: "ivanov"}}

	p := NewProjector(repo, zap.NewNop())
	require.NoError(t, p.ProjectDataSource(context.Background(), projectionDataSource(), syncer.NewTaskLogger()))
	firstID := repo.tenantUsers["owner"]["u1"].ID

	// Повторная проекция не пересоздаёт существующие tenant ID.
	require.NoError(t, p.ProjectDataSource(context.Background(), projectionDataSource(), syncer.NewTaskLogger()))
	assert.Equal(t, firstID, repo.tenantUsers["owner"]["u1"].ID)
}

func TestProjector_RemovesGoneRecords(t *testing.T) {
	repo := newFakeTenantRepo()
	repo.tenantUsers["owner"] = map[string]entities.TenantUser{
		"ушедший": {ID: "x", TenantID: "owner", Code: "ушедший"},
	}

	p := NewProjector(repo, zap.NewNop())
	require.NoError(t, p.ProjectDataSource(context.Background(), projectionDataSource(), syncer.NewTaskLogger()))

	assert.Empty(t, repo.tenantUsers["owner"])
}

// Потеря производного индекса — предупреждение, не сбой проекции.
func TestProjector_RecordFailureOnlyWarns(t *testing.T) {
	repo := newFakeTenantRepo()
	repo.departments = map[string]entities.DataSourceDepartment{"d1": {Code: "d1"}}
	repo.recordErr = assert.AnError

	p := NewProjector(repo, zap.NewNop())
	tl := syncer.NewTaskLogger()
	require.NoError(t, p.ProjectDataSource(context.Background(), projectionDataSource(), tl))
	assert.True(t, tl.HasWarning())
}
