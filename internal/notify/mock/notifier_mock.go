package mock

import (
	"context"
	"errors"
	"sync"

	"fault-dashboard/internal/models"
)

// Notification - записанный вызов NotifyFault.
type Notification struct {
	FaultID string
	Reasons []string
}

// NotifierMock запоминает оповещения вместо отправки.
type NotifierMock struct {
	mu   sync.Mutex
	sent []Notification

	// FailNextCall используется для тестирования сценариев с ошибками.
	FailNextCall bool
}

// NewNotifierMock создает новый экземпляр мока.
func NewNotifierMock() *NotifierMock {
	return &NotifierMock{}
}

func (m *NotifierMock) NotifyFault(ctx context.Context, fault *models.FaultReport, reasons []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNextCall {
		m.FailNextCall = false // Сбрасываем флаг после использования
		return errors.New("mock notifier failed")
	}
	m.sent = append(m.sent, Notification{FaultID: fault.ID, Reasons: append([]string(nil), reasons...)})
	return nil
}

// Sent возвращает копию отправленных оповещений.
func (m *NotifierMock) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification(nil), m.sent...)
}
