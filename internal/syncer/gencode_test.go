package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Зафиксированные вектора: смена формулы деривации осиротит все ранее
// синхронизированные подразделения локальных источников.
func TestGenCode_KnownVectors(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		GenCode(""))
	assert.Equal(t,
		"e06ff957ed48e868a41b7e7e4460ce371e398108db542cf1cd1d61795b83e647",
		GenCode("公司"))
}

func TestGenCode_Stable(t *testing.T) {
	path := "公司/部门A/中心AA"
	assert.Equal(t, GenCode(path), GenCode(path))
	assert.NotEqual(t, GenCode("公司/部门A"), GenCode(path))
	assert.Len(t, GenCode(path), 64)
}
