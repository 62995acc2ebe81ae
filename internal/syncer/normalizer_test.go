package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-system/internal/dto"
	"identity-system/internal/plugins"
	apperrors "identity-system/pkg/errors"
)

func TestNormalizeUsers_DirectMapping(t *testing.T) {
	n := NewNormalizer(plugins.TypeGeneral, []dto.FieldMappingDTO{
		{SourceField: "login", MappingOperation: dto.MappingOperationDirect, TargetField: "username"},
		{SourceField: "mail", MappingOperation: dto.MappingOperationDirect, TargetField: "email"},
	})

	users, err := n.NormalizeUsers([]dto.RawUser{
		{Code: "u1", Properties: map[string]string{"login": "ivanov", "mail": "ivanov@corp.tj", "city": "Душанбе"}},
	})
	require.NoError(t, err)
	require.Len(t, users, 1)

	assert.Equal(t, "ivanov", users[0].Properties["username"])
	assert.Equal(t, "ivanov@corp.tj", users[0].Properties["email"])
	// Незадействованные свойства проходят насквозь.
	assert.Equal(t, "Душанбе", users[0].Properties["city"])
	// Потреблённое исходное поле не дублируется.
	_, ok := users[0].Properties["login"]
	assert.False(t, ok)
}

func TestNormalizeUsers_ExpressionMapping(t *testing.T) {
	n := NewNormalizer(plugins.TypeGeneral, []dto.FieldMappingDTO{
		{MappingOperation: dto.MappingOperationExpression, TargetField: "full_name",
			Expression: "{{last_name}} {{first_name}}"},
	})

	users, err := n.NormalizeUsers([]dto.RawUser{
		{Code: "u1", Properties: map[string]string{"last_name": "Иванов", "first_name": "Иван"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Иванов Иван", users[0].Properties["full_name"])
}

func TestNormalizeUsers_ExpressionErrors(t *testing.T) {
	cases := []struct {
		name string
		expr string
	}{
		{"незакрытая ссылка", "{{last_name"},
		{"пустая ссылка", "{{ }}"},
		{"отсутствующее поле", "{{nope}}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := NewNormalizer(plugins.TypeGeneral, []dto.FieldMappingDTO{
				{MappingOperation: dto.MappingOperationExpression, TargetField: "full_name", Expression: tc.expr},
			})
			_, err := n.NormalizeUsers([]dto.RawUser{
				{Code: "u1", Properties: map[string]string{"last_name": "Иванов"}},
			})
			var mappingErr *apperrors.FieldMappingError
			require.ErrorAs(t, err, &mappingErr)
		})
	}
}

func TestNormalizeUsers_MissingDirectField(t *testing.T) {
	n := NewNormalizer(plugins.TypeGeneral, []dto.FieldMappingDTO{
		{SourceField: "login", MappingOperation: dto.MappingOperationDirect, TargetField: "username"},
	})
	_, err := n.NormalizeUsers([]dto.RawUser{
		{Code: "u1", Properties: map[string]string{"mail": "x@y.z"}},
	})

	var mappingErr *apperrors.FieldMappingError
	require.ErrorAs(t, err, &mappingErr)
	assert.Equal(t, "login", mappingErr.SourceField)
}

func TestNormalizeUsers_DuplicateCode(t *testing.T) {
	n := NewNormalizer(plugins.TypeGeneral, nil)
	_, err := n.NormalizeUsers([]dto.RawUser{
		{Code: "u1", Properties: map[string]string{}},
		{Code: "u1", Properties: map[string]string{}},
	})

	var dupErr *apperrors.DuplicateCodeError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "user", dupErr.EntityType)
	assert.Equal(t, "u1", dupErr.Code)
}

func TestNormalizeUsers_CodeFallbackToUsername(t *testing.T) {
	n := NewNormalizer(plugins.TypeLocal, nil)
	users, err := n.NormalizeUsers([]dto.RawUser{
		{Properties: map[string]string{"username": "petrov"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "petrov", users[0].Code)
}

func TestNormalizeUsers_LocalDepartmentPaths(t *testing.T) {
	n := NewNormalizer(plugins.TypeLocal, nil)
	users, err := n.NormalizeUsers([]dto.RawUser{
		{Code: "u1", Properties: map[string]string{}, Departments: []string{"公司/部门A"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{GenCode("公司/部门A")}, users[0].Departments)
}

func TestNormalizeDepartments_LocalDerivesCodes(t *testing.T) {
	n := NewNormalizer(plugins.TypeLocal, nil)
	departments, err := n.NormalizeDepartments([]dto.RawDepartment{
		{Name: "公司", Properties: map[string]string{"path": "公司"}},
		{Name: "部门A", Parent: "公司", Properties: map[string]string{"path": "公司/部门A"}},
	})
	require.NoError(t, err)
	require.Len(t, departments, 2)

	assert.Equal(t, GenCode("公司"), departments[0].Code)
	assert.Equal(t, "", departments[0].Parent)
	assert.Equal(t, GenCode("公司/部门A"), departments[1].Code)
	assert.Equal(t, GenCode("公司"), departments[1].Parent)
}

func TestNormalizeDepartments_DuplicateCode(t *testing.T) {
	n := NewNormalizer(plugins.TypeGeneral, nil)
	_, err := n.NormalizeDepartments([]dto.RawDepartment{
		{Code: "d1", Name: "A"},
		{Code: "d1", Name: "B"},
	})

	var dupErr *apperrors.DuplicateCodeError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "department", dupErr.EntityType)
}

func TestNormalizeDepartments_KeepsRemoteCodes(t *testing.T) {
	n := NewNormalizer(plugins.TypeLDAP, nil)
	departments, err := n.NormalizeDepartments([]dto.RawDepartment{
		{Code: "ou=it,dc=corp", Name: "it", Parent: "dc=corp"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ou=it,dc=corp", departments[0].Code)
	assert.Equal(t, "dc=corp", departments[0].Parent)
}
