package plugins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"identity-system/internal/dto"
	apperrors "identity-system/pkg/errors"
)

// Типы плагинов. Реестр статический: новый источник — новая константа
// и фабрика здесь же, без какого-либо runtime-сканирования.
const (
	TypeLocal   = "local"
	TypeLDAP    = "ldap"
	TypeAD      = "ad"
	TypeWeCom   = "wecom"
	TypeGeneral = "general"
)

// Plugin — контракт источника данных. Fetch-методы обязаны быть
// идемпотентными и не менять состояние источника. TestConnection
// не бросает ошибок для ожидаемых сбоев — кладёт их в ErrorMessage.
type Plugin interface {
	FetchUsers(ctx context.Context) ([]dto.RawUser, error)
	FetchDepartments(ctx context.Context) ([]dto.RawDepartment, error)
	TestConnection(ctx context.Context) dto.TestConnectionResult
}

type Factory func(cfg json.RawMessage, logger *zap.Logger) (Plugin, error)

var validate = validator.New()

var registry = map[string]Factory{
	TypeLocal:   NewLocalPlugin,
	TypeLDAP:    NewLDAPPlugin,
	TypeAD:      NewADPlugin,
	TypeWeCom:   NewWeComPlugin,
	TypeGeneral: NewGeneralPlugin,
}

// New собирает плагин по типу. Конфигурация валидируется фабрикой,
// непрошедшая валидацию конфигурация не доходит до fetch-вызовов.
func New(pluginType string, cfg json.RawMessage, logger *zap.Logger) (Plugin, error) {
	factory, ok := registry[pluginType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownPlugin, pluginType)
	}
	return factory(cfg, logger)
}

// Known сообщает, зарегистрирован ли тип плагина.
func Known(pluginType string) bool {
	_, ok := registry[pluginType]
	return ok
}

func decodeConfig(raw json.RawMessage, target interface{}) error {
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("конфигурация плагина не распарсилась: %w", err)
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("конфигурация плагина не прошла валидацию: %w", err)
	}
	return nil
}
