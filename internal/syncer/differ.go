package syncer

import (
	"fmt"

	"identity-system/internal/dto"
	"identity-system/internal/entities"
	apperrors "identity-system/pkg/errors"
)

// Diff-движок: сравнивает нормализованные записи прогона с тем, что уже
// лежит в базе по этому источнику, и выдаёт минимальные наборы
// create/update/delete для сущностей и insert/delete для связей.
// Дважды прогнанный на одном входе diff обязан быть пустым — на этой
// идемпотентности держится восстановление после частичного применения.

type RelationPair struct {
	From string
	To   string
}

type UserChangeSet struct {
	Created []entities.DataSourceUser
	Updated []entities.DataSourceUser
	Deleted []string // codes
}

func (c UserChangeSet) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

type DepartmentChangeSet struct {
	Created []entities.DataSourceDepartment // без parent: связи идут отдельной фазой
	Updated []entities.DataSourceDepartment
	Deleted []string // codes
}

func (c DepartmentChangeSet) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

type RelationChangeSet struct {
	Added   []RelationPair
	Removed []RelationPair
}

func (c RelationChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// Канонические поля пользователя; всё остальное из свойств — extras.
var canonicalUserFields = map[string]bool{
	"username":  true,
	"full_name": true,
	"email":     true,
	"phone":     true,
}

func BuildUserEntity(dataSourceID uint64, raw dto.RawUser) entities.DataSourceUser {
	extras := map[string]string{}
	for key, value := range raw.Properties {
		if !canonicalUserFields[key] {
			extras[key] = value
		}
	}
	return entities.DataSourceUser{
		DataSourceID: dataSourceID,
		Code:         raw.Code,
		Username:     raw.Properties["username"],
		FullName:     raw.Properties["full_name"],
		Email:        raw.Properties["email"],
		Phone:        raw.Properties["phone"],
		Extras:       extras,
	}
}

func BuildDepartmentEntity(dataSourceID uint64, raw dto.RawDepartment) entities.DataSourceDepartment {
	extras := map[string]string{}
	for key, value := range raw.Properties {
		if key == "path" {
			continue
		}
		extras[key] = value
	}
	return entities.DataSourceDepartment{
		DataSourceID: dataSourceID,
		Code:         raw.Code,
		Name:         raw.Name,
		Extras:       extras,
	}
}

// DiffUsers раскладывает входящих пользователей на created/updated и
// помечает на удаление коды, пропавшие из источника. Сравниваются только
// изменяемые поля, попавшие в excluded — пропускаются.
func DiffUsers(dataSourceID uint64, existing map[string]entities.DataSourceUser, incoming []dto.RawUser, excluded map[string]bool) UserChangeSet {
	var cs UserChangeSet
	seen := make(map[string]bool, len(incoming))

	for _, raw := range incoming {
		seen[raw.Code] = true
		next := BuildUserEntity(dataSourceID, raw)

		prev, ok := existing[raw.Code]
		if !ok {
			cs.Created = append(cs.Created, next)
			continue
		}
		if !usersEqual(prev, next, excluded) {
			next.ID = prev.ID
			cs.Updated = append(cs.Updated, next)
		}
	}

	for code := range existing {
		if !seen[code] {
			cs.Deleted = append(cs.Deleted, code)
		}
	}
	return cs
}

func DiffDepartments(dataSourceID uint64, existing map[string]entities.DataSourceDepartment, incoming []dto.RawDepartment, excluded map[string]bool) DepartmentChangeSet {
	var cs DepartmentChangeSet
	seen := make(map[string]bool, len(incoming))

	for _, raw := range incoming {
		seen[raw.Code] = true
		next := BuildDepartmentEntity(dataSourceID, raw)

		prev, ok := existing[raw.Code]
		if !ok {
			cs.Created = append(cs.Created, next)
			continue
		}
		if !departmentsEqual(prev, next, excluded) {
			next.ID = prev.ID
			cs.Updated = append(cs.Updated, next)
		}
	}

	for code := range existing {
		if !seen[code] {
			cs.Deleted = append(cs.Deleted, code)
		}
	}
	return cs
}

// DiffRelations — чистый insert/delete над парами (from, to); «обновления»
// пары не существует, это удаление старой и вставка новой.
func DiffRelations(current, desired []RelationPair) RelationChangeSet {
	var cs RelationChangeSet

	have := make(map[RelationPair]bool, len(current))
	for _, pair := range current {
		have[pair] = true
	}
	want := make(map[RelationPair]bool, len(desired))
	for _, pair := range desired {
		want[pair] = true
	}

	for _, pair := range desired {
		if !have[pair] {
			cs.Added = append(cs.Added, pair)
		}
	}
	for _, pair := range current {
		if !want[pair] {
			cs.Removed = append(cs.Removed, pair)
		}
	}
	return cs
}

// DesiredUserRelations собирает целевые пары связей из нормализованных
// пользователей. Пары, указывающие на отсутствующий code, отбрасываются
// с предупреждением: необязательная запись не валит прогон.
func DesiredUserRelations(users []dto.RawUser, userCodes, departmentCodes map[string]bool, tl *TaskLogger) (leaders, memberships []RelationPair) {
	for _, u := range users {
		for _, leaderCode := range u.Leaders {
			if leaderCode == u.Code {
				tl.Warningf("пользователь %s ссылается на себя как на руководителя, связь пропущена", u.Code)
				continue
			}
			if !userCodes[leaderCode] {
				tl.Warningf("руководитель %s пользователя %s отсутствует в источнике, связь пропущена", leaderCode, u.Code)
				continue
			}
			leaders = append(leaders, RelationPair{From: u.Code, To: leaderCode})
		}
		for _, deptCode := range u.Departments {
			if !departmentCodes[deptCode] {
				tl.Warningf("подразделение %s пользователя %s отсутствует в источнике, связь пропущена", deptCode, u.Code)
				continue
			}
			memberships = append(memberships, RelationPair{From: u.Code, To: deptCode})
		}
	}
	return leaders, memberships
}

// DesiredParentRelations — пары (подразделение, родитель).
func DesiredParentRelations(departments []dto.RawDepartment) []RelationPair {
	var pairs []RelationPair
	for _, d := range departments {
		if d.Parent != "" {
			pairs = append(pairs, RelationPair{From: d.Code, To: d.Parent})
		}
	}
	return pairs
}

// CurrentParentRelations извлекает пары из сохранённых строк.
func CurrentParentRelations(existing map[string]entities.DataSourceDepartment) []RelationPair {
	var pairs []RelationPair
	for code, d := range existing {
		if d.ParentCode != nil && *d.ParentCode != "" {
			pairs = append(pairs, RelationPair{From: code, To: *d.ParentCode})
		}
	}
	return pairs
}

// ValidateDepartmentTree ловит битое дерево до какого-либо коммита:
// родитель, которого нет во входе, и цикл (подразделение, указавшее
// потомка родителем). Проверка — обход цепочки предков с visited-set.
func ValidateDepartmentTree(dataSourceID uint64, departments []dto.RawDepartment) error {
	parents := make(map[string]string, len(departments))
	for _, d := range departments {
		parents[d.Code] = d.Parent
	}

	for _, d := range departments {
		if d.Parent == "" {
			continue
		}
		if _, ok := parents[d.Parent]; !ok {
			return apperrors.NewMalformedDataError(dataSourceID,
				fmt.Sprintf("подразделение %s ссылается на отсутствующего родителя %s", d.Code, d.Parent), nil)
		}

		visited := map[string]bool{d.Code: true}
		for cur := d.Parent; cur != ""; cur = parents[cur] {
			if visited[cur] {
				return apperrors.NewMalformedDataError(dataSourceID,
					fmt.Sprintf("цикл в дереве подразделений через %s", cur), nil)
			}
			visited[cur] = true
		}
	}
	return nil
}

// Chunk режет набор на пачки ограниченного размера: одна пачка — одна
// транзакция apply-фазы. Порядок пачек внутри набора значения не имеет.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		if len(items) == 0 {
			return nil
		}
		return [][]T{items}
	}
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func usersEqual(a, b entities.DataSourceUser, excluded map[string]bool) bool {
	if !excluded["username"] && a.Username != b.Username {
		return false
	}
	if !excluded["full_name"] && a.FullName != b.FullName {
		return false
	}
	if !excluded["email"] && a.Email != b.Email {
		return false
	}
	if !excluded["phone"] && a.Phone != b.Phone {
		return false
	}
	return extrasEqual(a.Extras, b.Extras, excluded)
}

func departmentsEqual(a, b entities.DataSourceDepartment, excluded map[string]bool) bool {
	if !excluded["name"] && a.Name != b.Name {
		return false
	}
	return extrasEqual(a.Extras, b.Extras, excluded)
}

/// extrasEqual — глубокое сравнение: отсутствие ключа и пустая строка
// считаются разными значениями.
func extrasEqual(a, b map[string]string, excluded map[string]bool) bool {
	for key, av := range a {
		if excluded[key] {
			continue
		}
		bv, ok := b[key]
		if !ok || av != bv {
			return false
		}
	}
	for key := range b {
		if excluded[key] {
			continue
		}
		if _, ok := a[key]; !ok {
			return false
		}
	}
	return true
}
