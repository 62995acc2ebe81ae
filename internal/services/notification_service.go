package services

import (
	"context"

	"go.uber.org/zap"
)

// Сцены уведомлений.
const (
	NotifySceneSyncFailed = "sync_failed"
)

// Notifier отправляет уведомление получателю указанным способом.
// Ошибка доставки не должна влиять на бизнес-операцию, которая её вызвала.
type Notifier interface {
	Notify(ctx context.Context, method, scene, recipient string, vars map[string]string) error
}

// LogNotifier пишет уведомления в журнал. Реальные каналы доставки
// (почта, мессенджеры) подключаются новой реализацией Notifier.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, method, scene, recipient string, vars map[string]string) error {
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("scene", scene),
		zap.String("recipient", recipient),
	}
	for k, v := range vars {
		fields = append(fields, zap.String("var_"+k, v))
	}
	n.logger.Info("уведомление отправлено", fields...)
	return nil
}
