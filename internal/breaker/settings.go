package breaker

import (
	"errors"
	"fmt"
	"time"
)

// Settings описывает пороги и таймауты предохранителя одного провайдера.
type Settings struct {
	Name string

	// Timeout ограничивает один вызов; превышение считается отказом.
	Timeout time.Duration
	// ErrorThresholdPercentage - доля отказов (в процентах) в скользящем окне,
	// при достижении которой предохранитель размыкается.
	ErrorThresholdPercentage float64
	// ResetTimeout - время в состоянии OPEN до пробного вызова (HALF-OPEN).
	ResetTimeout time.Duration
	// RollingCountTimeout - длина скользящего окна статистики.
	RollingCountTimeout time.Duration
	// RollingCountBuckets - число корзин, на которые делится окно.
	RollingCountBuckets int
	// Capacity - максимум одновременных вызовов; лишние отклоняются сразу.
	Capacity int
	// VolumeThreshold - минимум вызовов в окне, прежде чем порог начнет действовать.
	VolumeThreshold uint32
}

// DefaultSettings возвращает настройки по умолчанию:
// 45s на вызов, 50% отказов, 120s до пробного вызова, окно 60s из 10 корзин, 10 параллельных вызовов.
func DefaultSettings(name string) Settings {
	return Settings{
		Name:                     name,
		Timeout:                  45 * time.Second,
		ErrorThresholdPercentage: 50,
		ResetTimeout:             120 * time.Second,
		RollingCountTimeout:      60 * time.Second,
		RollingCountBuckets:      10,
		Capacity:                 10,
		VolumeThreshold:          0,
	}
}

// BucketPeriod - длина одной корзины скользящего окна.
func (s Settings) BucketPeriod() time.Duration {
	return s.RollingCountTimeout / time.Duration(s.RollingCountBuckets)
}

// Validate проверяет согласованность настроек.
func (s Settings) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if s.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", s.Timeout))
	}
	if s.ErrorThresholdPercentage <= 0 || s.ErrorThresholdPercentage > 100 {
		errs = append(errs, fmt.Errorf("error threshold must be in (0, 100], got %.1f", s.ErrorThresholdPercentage))
	}
	if s.ResetTimeout <= 0 {
		errs = append(errs, fmt.Errorf("reset timeout must be positive, got %s", s.ResetTimeout))
	}
	if s.RollingCountBuckets <= 0 {
		errs = append(errs, fmt.Errorf("rolling buckets must be positive, got %d", s.RollingCountBuckets))
	} else if s.RollingCountTimeout < time.Duration(s.RollingCountBuckets) {
		errs = append(errs, fmt.Errorf("rolling window %s is too short for %d buckets", s.RollingCountTimeout, s.RollingCountBuckets))
	}
	if s.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("capacity must be positive, got %d", s.Capacity))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid breaker settings %q: %w", s.Name, errors.Join(errs...))
	}
	return nil
}
