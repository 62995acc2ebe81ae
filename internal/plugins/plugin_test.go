package plugins

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "identity-system/pkg/errors"
)

func TestRegistry_Known(t *testing.T) {
	for _, typ := range []string{TypeLocal, TypeLDAP, TypeAD, TypeWeCom, TypeGeneral} {
		assert.True(t, Known(typ), typ)
	}
	assert.False(t, Known("scim"))
}

func TestNew_UnknownPlugin(t *testing.T) {
	_, err := New("scim", json.RawMessage(`{}`), zap.NewNop())
	require.ErrorIs(t, err, apperrors.ErrUnknownPlugin)
}

func TestNew_ValidatesConfig(t *testing.T) {
	// Пустая конфигурация не проходит required-валидацию ни у одного типа.
	for _, typ := range []string{TypeLocal, TypeLDAP, TypeAD, TypeWeCom, TypeGeneral} {
		_, err := New(typ, json.RawMessage(`{}`), zap.NewNop())
		assert.Error(t, err, typ)
	}
}

func TestNew_BuildsLocalPlugin(t *testing.T) {
	p, err := New(TypeLocal, json.RawMessage(`{"workbook_path":"/tmp/users.xlsx"}`), zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &LocalPlugin{}, p)
	// Разделитель по умолчанию.
	assert.Equal(t, ",", p.(*LocalPlugin).cfg.ListSeparator)
}
