package models

import (
	"sync"
	"time"
)

// TimestampPrecision - точность, с которой хранятся метки времени.
// Оба хранилища сохраняют время без потерь именно с этой точностью.
const TimestampPrecision = time.Microsecond

// Timestamp приводит время к UTC и точности хранения.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(TimestampPrecision)
}

// NextUpdatedAt возвращает новое значение UpdatedAt, строго большее предыдущего,
// даже если часы не сдвинулись или ушли назад.
func NextUpdatedAt(prev, now time.Time) time.Time {
	now = Timestamp(now)
	if !now.After(prev) {
		return prev.Add(TimestampPrecision)
	}
	return now
}

// Clock выдает строго возрастающие метки времени в пределах процесса,
// чтобы записи, созданные в одну микросекунду, сохраняли порядок вставки.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewClock создает часы поверх now. nil означает time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next возвращает очередную метку времени.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = NextUpdatedAt(c.last, c.now())
	return c.last
}

// Now возвращает текущее время без сдвига последовательности.
func (c *Clock) Now() time.Time {
	return Timestamp(c.now())
}
