package notification

import (
	"context"
	"log"
	"strings"
)

// Notifier - внешний сервис доставки уведомлений.
// Вызовы fire-and-forget: ошибка отправки логируется и не откатывает операцию.
type Notifier interface {
	Send(ctx context.Context, recipients []string, subject, body, htmlBody string) error
}

// LogNotifier пишет уведомления в лог вместо реальной доставки.
type LogNotifier struct {
	Logger *log.Logger
}

// NewLogNotifier создает новый экземпляр LogNotifier.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{Logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, recipients []string, subject, _, _ string) error {
	n.Logger.Printf("notification to [%s]: %s", strings.Join(recipients, ", "), subject)
	return nil
}
