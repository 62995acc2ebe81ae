package syncer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskLogger_Format(t *testing.T) {
	tl := NewTaskLogger()
	tl.Info("a")
	tl.Warning("b")
	tl.Error("c")

	assert.Equal(t, "INFO a\n\nWARNING b\n\nERROR c\n\n", tl.Logs())
	assert.True(t, tl.HasWarning())
}

func TestTaskLogger_HasWarningSticky(t *testing.T) {
	tl := NewTaskLogger()
	require.False(t, tl.HasWarning())

	tl.Info("до предупреждения")
	require.False(t, tl.HasWarning())

	tl.Warningf("пропущена связь %d", 1)
	tl.Info("после предупреждения")
	tl.Error("ошибка не сбрасывает флаг")

	assert.True(t, tl.HasWarning())
}

func TestTaskLogger_LogsNonDestructive(t *testing.T) {
	tl := NewTaskLogger()
	tl.Info("x")

	first := tl.Logs()
	second := tl.Logs()
	assert.Equal(t, first, second)

	tl.Info("y")
	assert.Equal(t, "INFO x\n\nINFO y\n\n", tl.Logs())
}

func TestTaskLogger_Concurrent(t *testing.T) {
	tl := NewTaskLogger()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tl.Info("запись")
		}()
	}
	wg.Wait()

	assert.Len(t, tl.Logs(), 50*len("INFO запись\n\n"))
}
