package syncer

import (
	"fmt"
	"strings"
	"sync"
)

// TaskLogger копит структурированный лог одного прогона синхронизации
// в памяти; наружу он уходит одним текстовым блобом вместе с задачей.
// Warning взводит липкий флаг HasWarning, который в рамках прогона
// уже не сбрасывается.
type TaskLogger struct {
	mu         sync.Mutex
	buf        strings.Builder
	hasWarning bool
}

func NewTaskLogger() *TaskLogger {
	return &TaskLogger{}
}

func (l *TaskLogger) Info(msg string) {
	l.append("INFO", msg)
}

func (l *TaskLogger) Warning(msg string) {
	l.mu.Lock()
	l.hasWarning = true
	l.mu.Unlock()
	l.append("WARNING", msg)
}

func (l *TaskLogger) Error(msg string) {
	l.append("ERROR", msg)
}

func (l *TaskLogger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l *TaskLogger) Warningf(format string, args ...interface{}) {
	l.Warning(fmt.Sprintf(format, args...))
}

func (l *TaskLogger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// Logs — накопленный текст; чтение не разрушает буфер.
func (l *TaskLogger) Logs() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func (l *TaskLogger) HasWarning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasWarning
}

// Формат строки фиксирован: "<LEVEL> <message>\n\n". Пустая строка между
// записями — для читаемости в UI, парсеры на неё тоже завязаны.
func (l *TaskLogger) append(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.WriteString(level)
	l.buf.WriteString(" ")
	l.buf.WriteString(msg)
	l.buf.WriteString("\n\n")
}
