package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// EventType - тип события предохранителя, попадает в логи и метрики.
type EventType string

const (
	EventOpen     EventType = "open"
	EventClose    EventType = "close"
	EventHalfOpen EventType = "halfOpen"
	EventSuccess  EventType = "success"
	EventFailure  EventType = "failure"
	EventTimeout  EventType = "timeout"
	EventReject   EventType = "reject"
	EventFallback EventType = "fallback"
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeTimeout
	outcomeReject
	outcomeFallback
	numOutcomes
)

// Snapshot - суммарная статистика по скользящему окну.
type Snapshot struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Successes uint64 `json:"successes"`
	Failures  uint64 `json:"failures"`
	Timeouts  uint64 `json:"timeouts"`
	Rejects   uint64 `json:"rejects"`
	Fallbacks uint64 `json:"fallbacks"`
	// SuccessRate в процентах от завершенных вызовов; 100, если вызовов не было.
	SuccessRate float64 `json:"successRate"`
}

// MarshalLogObject позволяет писать снимок через zap.Object.
func (s Snapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("state", s.State)
	enc.AddUint64("successes", s.Successes)
	enc.AddUint64("failures", s.Failures)
	enc.AddUint64("timeouts", s.Timeouts)
	enc.AddUint64("rejects", s.Rejects)
	enc.AddUint64("fallbacks", s.Fallbacks)
	enc.AddFloat64("successRate", s.SuccessRate)
	return nil
}

type statsBucket struct {
	epoch  int64
	counts [numOutcomes]uint64
}

// rollingStats считает исходы вызовов в окне из фиксированного числа корзин.
// gobreaker.Counts не различает таймауты, отклонения и fallback, поэтому
// для логов и мониторинга ведется отдельный счетчик.
type rollingStats struct {
	mu         sync.Mutex
	bucketSize time.Duration
	buckets    []statsBucket
	now        func() time.Time
}

func newRollingStats(window time.Duration, buckets int, now func() time.Time) *rollingStats {
	if now == nil {
		now = time.Now
	}
	size := window / time.Duration(buckets)
	if size <= 0 {
		size = time.Nanosecond
	}
	rs := &rollingStats{
		bucketSize: size,
		buckets:    make([]statsBucket, buckets),
		now:        now,
	}
	for i := range rs.buckets {
		rs.buckets[i].epoch = -1
	}
	return rs
}

func (rs *rollingStats) epoch(t time.Time) int64 {
	return t.UnixNano() / int64(rs.bucketSize)
}

func (rs *rollingStats) add(o outcome) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	e := rs.epoch(rs.now())
	b := &rs.buckets[e%int64(len(rs.buckets))]
	if b.epoch != e {
		*b = statsBucket{epoch: e}
	}
	b.counts[o]++
}

func (rs *rollingStats) snapshot() Snapshot {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	current := rs.epoch(rs.now())
	n := int64(len(rs.buckets))
	var total [numOutcomes]uint64
	for _, b := range rs.buckets {
		if b.epoch < 0 || current-b.epoch >= n {
			continue
		}
		for i := range total {
			total[i] += b.counts[i]
		}
	}

	s := Snapshot{
		Successes: total[outcomeSuccess],
		Failures:  total[outcomeFailure],
		Timeouts:  total[outcomeTimeout],
		Rejects:   total[outcomeReject],
		Fallbacks: total[outcomeFallback],
	}
	completed := s.Successes + s.Failures + s.Timeouts
	if completed == 0 {
		s.SuccessRate = 100
	} else {
		s.SuccessRate = float64(s.Successes) / float64(completed) * 100
	}
	return s
}
