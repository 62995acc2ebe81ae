package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-system/internal/dto"
	"identity-system/internal/entities"
	apperrors "identity-system/pkg/errors"
	"identity-system/pkg/utils"
)

func userRow(code, username, fullName string, extras map[string]string) entities.DataSourceUser {
	return entities.DataSourceUser{DataSourceID: 1, Code: code, Username: username, FullName: fullName, Extras: extras}
}

func rawUser(code string, props map[string]string) dto.RawUser {
	return dto.RawUser{Code: code, Properties: props}
}

func TestDiffUsers_CreateUpdateDelete(t *testing.T) {
	existing := map[string]entities.DataSourceUser{
		"stay":   userRow("stay", "stay", "Без изменений", map[string]string{}),
		"change": userRow("change", "change", "Старое имя", map[string]string{}),
		"gone":   userRow("gone", "gone", "Удаляемый", map[string]string{}),
	}
	incoming := []dto.RawUser{
		rawUser("stay", map[string]string{"username": "stay", "full_name": "Без изменений"}),
		rawUser("change", map[string]string{"username": "change", "full_name": "Новое имя"}),
		rawUser("new", map[string]string{"username": "new", "full_name": "Новый"}),
	}

	cs := DiffUsers(1, existing, incoming, nil)

	require.Len(t, cs.Created, 1)
	assert.Equal(t, "new", cs.Created[0].Code)
	require.Len(t, cs.Updated, 1)
	assert.Equal(t, "change", cs.Updated[0].Code)
	assert.Equal(t, "Новое имя", cs.Updated[0].FullName)
	assert.Equal(t, []string{"gone"}, cs.Deleted)
}

// Diff, прогнанный второй раз поверх применённого результата, обязан быть
// пустым — на этом держится восстановление после частичного применения.
func TestDiffUsers_Idempotent(t *testing.T) {
	incoming := []dto.RawUser{
		rawUser("u1", map[string]string{"username": "u1", "full_name": "Первый", "city": "Худжанд"}),
		rawUser("u2", map[string]string{"username": "u2"}),
	}

	first := DiffUsers(1, map[string]entities.DataSourceUser{}, incoming, nil)
	require.Len(t, first.Created, 2)

	applied := map[string]entities.DataSourceUser{}
	for _, u := range first.Created {
		applied[u.Code] = u
	}

	second := DiffUsers(1, applied, incoming, nil)
	assert.True(t, second.Empty())
}

func TestDiffUsers_ExcludedFields(t *testing.T) {
	existing := map[string]entities.DataSourceUser{
		"u1": userRow("u1", "старый_логин", "Иванов", map[string]string{}),
	}
	incoming := []dto.RawUser{
		rawUser("u1", map[string]string{"username": "новый_логин", "full_name": "Иванов"}),
	}

	cs := DiffUsers(1, existing, incoming, map[string]bool{"username": true})
	assert.True(t, cs.Empty())
}

// Отсутствие ключа в extras и пустая строка — разные значения.
func TestDiffUsers_NilVsEmptyExtras(t *testing.T) {
	existing := map[string]entities.DataSourceUser{
		"u1": userRow("u1", "u1", "", map[string]string{}),
	}
	incoming := []dto.RawUser{
		rawUser("u1", map[string]string{"username": "u1", "badge": ""}),
	}

	cs := DiffUsers(1, existing, incoming, nil)
	require.Len(t, cs.Updated, 1)
	assert.Equal(t, "", cs.Updated[0].Extras["badge"])
}

func TestDiffDepartments_PathNotInExtras(t *testing.T) {
	incoming := []dto.RawDepartment{
		{Code: "d1", Name: "Отдел", Properties: map[string]string{"path": "公司/Отдел", "floor": "3"}},
	}
	cs := DiffDepartments(1, map[string]entities.DataSourceDepartment{}, incoming, nil)

	require.Len(t, cs.Created, 1)
	assert.Equal(t, map[string]string{"floor": "3"}, cs.Created[0].Extras)
}

func TestDiffRelations(t *testing.T) {
	current := []RelationPair{{From: "a", To: "b"}, {From: "a", To: "c"}}
	desired := []RelationPair{{From: "a", To: "b"}, {From: "a", To: "d"}}

	cs := DiffRelations(current, desired)
	assert.Equal(t, []RelationPair{{From: "a", To: "d"}}, cs.Added)
	assert.Equal(t, []RelationPair{{From: "a", To: "c"}}, cs.Removed)

	assert.True(t, DiffRelations(desired, desired).Empty())
}

func TestDesiredUserRelations_SkipsDangling(t *testing.T) {
	tl := NewTaskLogger()
	users := []dto.RawUser{
		{Code: "u1", Leaders: []string{"u2", "нет_такого", "u1"}, Departments: []string{"d1", "нет_отдела"}},
		{Code: "u2"},
	}
	userCodes := map[string]bool{"u1": true, "u2": true}
	deptCodes := map[string]bool{"d1": true}

	leaders, memberships := DesiredUserRelations(users, userCodes, deptCodes, tl)

	assert.Equal(t, []RelationPair{{From: "u1", To: "u2"}}, leaders)
	assert.Equal(t, []RelationPair{{From: "u1", To: "d1"}}, memberships)
	// Пропуски — предупреждения, не ошибки.
	assert.True(t, tl.HasWarning())
}

func TestValidateDepartmentTree(t *testing.T) {
	t.Run("корректное дерево", func(t *testing.T) {
		err := ValidateDepartmentTree(1, []dto.RawDepartment{
			{Code: "root"},
			{Code: "child", Parent: "root"},
			{Code: "grandchild", Parent: "child"},
		})
		assert.NoError(t, err)
	})

	t.Run("висячий родитель", func(t *testing.T) {
		err := ValidateDepartmentTree(1, []dto.RawDepartment{
			{Code: "child", Parent: "призрак"},
		})
		var malformed *apperrors.MalformedDataError
		require.ErrorAs(t, err, &malformed)
	})

	t.Run("цикл", func(t *testing.T) {
		err := ValidateDepartmentTree(1, []dto.RawDepartment{
			{Code: "a", Parent: "b"},
			{Code: "b", Parent: "a"},
		})
		var malformed *apperrors.MalformedDataError
		require.ErrorAs(t, err, &malformed)
	})
}

func TestChunk(t *testing.T) {
	assert.Nil(t, Chunk([]int{}, 2))
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Chunk([]int{1, 2, 3, 4, 5}, 2))
	assert.Equal(t, [][]int{{1, 2, 3}}, Chunk([]int{1, 2, 3}, 10))
	assert.Equal(t, [][]int{{1, 2, 3}}, Chunk([]int{1, 2, 3}, 0))
}

func TestCurrentParentRelations(t *testing.T) {
	existing := map[string]entities.DataSourceDepartment{
		"root":  {Code: "root", ParentCode: utils.StringToPtr("")},
		"child": {Code: "child", ParentCode: utils.StringToPtr("root")},
		"flat":  {Code: "flat", ParentCode: utils.ToPtr("")},
	}
	pairs := CurrentParentRelations(existing)
	assert.Equal(t, []RelationPair{{From: "child", To: "root"}}, pairs)
}
