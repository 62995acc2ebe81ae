package errors

import "fmt"

// Типизированные ошибки конвейера синхронизации. Каждая несёт достаточно
// контекста (источник, шаг, код записи), чтобы разобрать инцидент по логу
// задачи без повторного запуска.

// ConnectionError — сеть/авторизация при обращении к внешнему источнику.
// Временная: оператор может дождаться следующего запуска по расписанию.
type ConnectionError struct {
	DataSourceID uint64
	Step         string
	Err          error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("источник %d, шаг %q: ошибка соединения: %v", e.DataSourceID, e.Step, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func NewConnectionError(dataSourceID uint64, step string, err error) *ConnectionError {
	return &ConnectionError{DataSourceID: dataSourceID, Step: step, Err: err}
}

// MalformedDataError — структурно некорректные данные источника
// (нечитаемый ответ, цикл в дереве подразделений). Не лечится повтором.
type MalformedDataError struct {
	DataSourceID uint64
	Reason       string
	Err          error
}

func (e *MalformedDataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("источник %d: некорректные данные: %s: %v", e.DataSourceID, e.Reason, e.Err)
	}
	return fmt.Sprintf("источник %d: некорректные данные: %s", e.DataSourceID, e.Reason)
}

func (e *MalformedDataError) Unwrap() error { return e.Err }

func NewMalformedDataError(dataSourceID uint64, reason string, err error) *MalformedDataError {
	return &MalformedDataError{DataSourceID: dataSourceID, Reason: reason, Err: err}
}

// DuplicateCodeError — две сырые записи делят один code в рамках прогона.
type DuplicateCodeError struct {
	EntityType string // "user" | "department"
	Code       string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("дубликат code %q среди записей типа %s", e.Code, e.EntityType)
}

func NewDuplicateCodeError(entityType, code string) *DuplicateCodeError {
	return &DuplicateCodeError{EntityType: entityType, Code: code}
}

// FieldMappingError — правило маппинга ссылается на отсутствующее поле
// источника или выражение не вычислилось.
type FieldMappingError struct {
	SourceField string
	TargetField string
	Reason      string
}

func (e *FieldMappingError) Error() string {
	return fmt.Sprintf("маппинг %q -> %q: %s", e.SourceField, e.TargetField, e.Reason)
}

func NewFieldMappingError(sourceField, targetField, reason string) *FieldMappingError {
	return &FieldMappingError{SourceField: sourceField, TargetField: targetField, Reason: reason}
}
