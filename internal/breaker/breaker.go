package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrOpen - вызов отклонен: предохранитель разомкнут или пробный вызов уже идет.
	ErrOpen = errors.New("circuit breaker is open")
	// ErrCapacity - вызов отклонен: достигнут предел одновременных вызовов.
	ErrCapacity = errors.New("circuit breaker concurrency limit reached")
	// ErrTimeout - вызов не уложился в Settings.Timeout и был брошен.
	ErrTimeout = errors.New("circuit breaker call timed out")
	// ErrPanic - защищаемая функция запаниковала.
	ErrPanic = errors.New("guarded call panicked")
	// ErrCallerDone - контекст вызывающего отменен или истек раньше таймаута
	// предохранителя. Такой вызов не учитывается в статистике.
	ErrCallerDone = errors.New("caller context done")
)

// Action - защищаемый вызов. Должен уважать отмену ctx.
type Action[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Fallback формирует результат вместо неудавшегося вызова. Не должен делать I/O.
type Fallback[Req, Resp any] func(ctx context.Context, req Req, cause error) Resp

// Result - итог Fire. Ошибка вызова наружу не возвращается: при неудаче
// Value получен из fallback, а причина лежит в Cause.
type Result[Resp any] struct {
	Value        Resp
	FromFallback bool
	Cause        error
	Event        EventType
}

// Breaker - предохранитель одного провайдера: скользящее окно отказов
// (gobreaker), ограничение параллелизма, таймаут вызова и fallback.
type Breaker[Req, Resp any] struct {
	settings Settings
	cb       *gobreaker.CircuitBreaker[Resp]
	sem      *semaphore.Weighted
	action   Action[Req, Resp]
	fallback Fallback[Req, Resp]
	stats    *rollingStats
	logger   *zap.Logger
}

// Option настраивает Breaker при создании.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock подменяет часы для статистики (тесты).
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New создает предохранитель вокруг action. fallback обязателен.
func New[Req, Resp any](settings Settings, action Action[Req, Resp], fallback Fallback[Req, Resp], logger *zap.Logger, opts ...Option) (*Breaker[Req, Resp], error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if action == nil {
		return nil, fmt.Errorf("breaker %q: action is required", settings.Name)
	}
	if fallback == nil {
		return nil, fmt.Errorf("breaker %q: fallback is required", settings.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Breaker[Req, Resp]{
		settings: settings,
		sem:      semaphore.NewWeighted(int64(settings.Capacity)),
		action:   action,
		fallback: fallback,
		stats:    newRollingStats(settings.RollingCountTimeout, settings.RollingCountBuckets, o.now),
		logger:   logger.Named("CircuitBreaker").With(zap.String("breaker", settings.Name)),
	}

	b.cb = gobreaker.NewCircuitBreaker[Resp](gobreaker.Settings{
		Name:         settings.Name,
		MaxRequests:  1, // один пробный вызов в HALF-OPEN
		Interval:     settings.RollingCountTimeout,
		BucketPeriod: settings.BucketPeriod(),
		Timeout:      settings.ResetTimeout,
		ReadyToTrip:  b.readyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			// Вызывается под мьютексом gobreaker: cb.State()/Counts() здесь недоступны.
			snap := b.stats.snapshot()
			snap.Name = name
			snap.State = to.String()
			event := transitionEvent(to)

			breakerState.WithLabelValues(name).Set(stateToFloat(to))
			breakerEvents.WithLabelValues(name, string(event)).Inc()

			fields := []zap.Field{
				zap.String("event", string(event)),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
				zap.Object("stats", snap),
			}
			if to == gobreaker.StateOpen {
				b.logger.Warn("Circuit breaker opened", fields...)
			} else {
				b.logger.Info("Circuit breaker state changed", fields...)
			}
		},
		IsExcluded: func(err error) bool {
			// Отмена или дедлайн клиента не говорят о здоровье провайдера.
			return errors.Is(err, ErrCallerDone)
		},
	})
	breakerState.WithLabelValues(settings.Name).Set(0)

	return b, nil
}

func (b *Breaker[Req, Resp]) readyToTrip(counts gobreaker.Counts) bool {
	completed := counts.TotalSuccesses + counts.TotalFailures
	if completed == 0 || completed < b.settings.VolumeThreshold {
		return false
	}
	failurePct := float64(counts.TotalFailures) / float64(completed) * 100
	return failurePct >= b.settings.ErrorThresholdPercentage
}

// Name возвращает имя предохранителя.
func (b *Breaker[Req, Resp]) Name() string {
	return b.settings.Name
}

// State возвращает текущее состояние: closed, half-open или open.
func (b *Breaker[Req, Resp]) State() string {
	return b.cb.State().String()
}

// Stats возвращает статистику скользящего окна.
func (b *Breaker[Req, Resp]) Stats() Snapshot {
	snap := b.stats.snapshot()
	snap.Name = b.settings.Name
	snap.State = b.State()
	return snap
}

// Fire выполняет защищенный вызов. Никогда не возвращает ошибку провайдера
// напрямую: при отказе, таймауте или отклонении вызывается fallback.
func (b *Breaker[Req, Resp]) Fire(ctx context.Context, req Req) Result[Resp] {
	if !b.sem.TryAcquire(1) {
		return b.reject(ctx, req, fmt.Errorf("%w (capacity %d)", ErrCapacity, b.settings.Capacity))
	}
	defer b.sem.Release(1)

	breakerInFlight.WithLabelValues(b.settings.Name).Inc()
	value, err := b.cb.Execute(func() (Resp, error) {
		v, err := b.call(ctx, req)
		// Исход попадает в окно до возврата в gobreaker: OnStateChange
		// вызывается внутри Execute и должен видеть вызов, разомкнувший цепь.
		if o, ok := classify(err); ok {
			b.stats.add(o)
		}
		return v, err
	})
	breakerInFlight.WithLabelValues(b.settings.Name).Dec()

	switch {
	case err == nil:
		b.report(EventSuccess, nil)
		return Result[Resp]{Value: value, Event: EventSuccess}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return b.reject(ctx, req, fmt.Errorf("%w: %w", ErrOpen, err))
	case errors.Is(err, ErrTimeout):
		b.report(EventTimeout, err)
		return b.runFallback(ctx, req, err, EventTimeout)
	case errors.Is(err, ErrCallerDone):
		b.logger.Debug("Guarded call abandoned by caller", zap.Error(err))
		return b.runFallback(ctx, req, err, EventFailure)
	default:
		b.report(EventFailure, err)
		return b.runFallback(ctx, req, err, EventFailure)
	}
}

// classify сопоставляет ошибку вызова с исходом для окна статистики.
// ok = false для вызовов, брошенных клиентом.
func classify(err error) (outcome, bool) {
	switch {
	case err == nil:
		return outcomeSuccess, true
	case errors.Is(err, ErrCallerDone):
		return 0, false
	case errors.Is(err, ErrTimeout):
		return outcomeTimeout, true
	default:
		return outcomeFailure, true
	}
}

type callResult[Resp any] struct {
	value Resp
	err   error
}

// call запускает action в отдельной горутине с таймаутом. По истечении
// таймаута вызов бросается, контекст action отменяется, слот освобождается.
func (b *Breaker[Req, Resp]) call(ctx context.Context, req Req) (Resp, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.settings.Timeout)
	defer cancel()

	done := make(chan callResult[Resp], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult[Resp]{err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
		}()
		v, err := b.action(callCtx, req)
		done <- callResult[Resp]{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return res.value, nil
		}
		if ctx.Err() != nil {
			return res.value, fmt.Errorf("%w: %w", ErrCallerDone, ctx.Err())
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return res.value, fmt.Errorf("%w after %s: %w", ErrTimeout, b.settings.Timeout, res.err)
		}
		return res.value, res.err
	case <-callCtx.Done():
		var zero Resp
		// Дедлайн родительского ctx мог истечь раньше Settings.Timeout.
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%w: %w", ErrCallerDone, ctx.Err())
		}
		return zero, fmt.Errorf("%w after %s", ErrTimeout, b.settings.Timeout)
	}
}

func (b *Breaker[Req, Resp]) reject(ctx context.Context, req Req, cause error) Result[Resp] {
	b.record(outcomeReject, EventReject, cause)
	return b.runFallback(ctx, req, cause, EventReject)
}

func (b *Breaker[Req, Resp]) runFallback(ctx context.Context, req Req, cause error, event EventType) Result[Resp] {
	value := b.fallback(ctx, req, cause)
	b.record(outcomeFallback, EventFallback, cause)
	return Result[Resp]{Value: value, FromFallback: true, Cause: cause, Event: event}
}

func (b *Breaker[Req, Resp]) record(o outcome, event EventType, cause error) {
	b.stats.add(o)
	b.report(event, cause)
}

// report пишет событие в метрики и лог. Исход уже учтен в окне.
func (b *Breaker[Req, Resp]) report(event EventType, cause error) {
	breakerEvents.WithLabelValues(b.settings.Name, string(event)).Inc()

	fields := []zap.Field{
		zap.String("event", string(event)),
		zap.Object("stats", b.Stats()),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}

	switch event {
	case EventFailure, EventTimeout, EventReject:
		b.logger.Warn("Circuit breaker event", fields...)
	default:
		b.logger.Info("Circuit breaker event", fields...)
	}
}
