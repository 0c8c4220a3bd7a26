package clock

import (
	"fmt"
	"time"
)

// Clock отдает текущее время в опорной таймзоне.
// Все сравнения дедлайнов в системе идут через один экземпляр,
// чтобы sweep и ленивые проверки на чтении совпадали.
type Clock interface {
	Now() time.Time
}

type systemClock struct {
	location *time.Location
}

// NewSystemClock создает часы в указанной таймзоне (например "Africa/Lusaka").
func NewSystemClock(timezone string) (Clock, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	return systemClock{location: location}, nil
}

func (c systemClock) Now() time.Time {
	return time.Now().In(c.location)
}
