package dto

// Операции маппинга полей источника на канонические поля.
const (
	MappingOperationDirect     = "DIRECT"
	MappingOperationExpression = "EXPRESSION"
)

// FieldMappingDTO — одно правило из документа маппинга источника.
// DIRECT копирует значение поля как есть; EXPRESSION вычисляет шаблон
// вида "{{last_name}} {{first_name}}" над свойствами записи.
type FieldMappingDTO struct {
	SourceField      string `json:"source_field"`
	MappingOperation string `json:"mapping_operation" validate:"required,oneof=DIRECT EXPRESSION"`
	TargetField      string `json:"target_field" validate:"required"`
	Expression       string `json:"expression"`
}
