package runner

import (
	"sync"

	"go.uber.org/zap"
)

// FailureTracker считает подряд идущие неудачные циклы одного лупа.
// В strict-режиме по достижении порога вызывает stop.
type FailureTracker struct {
	name      string
	threshold int
	enabled   bool
	stop      func()
	log       *zap.Logger

	mu     sync.Mutex
	streak int
	fired  bool
}

func NewFailureTracker(name string, enabled bool, threshold int, stop func(), log *zap.Logger) *FailureTracker {
	return &FailureTracker{
		name:      name,
		threshold: threshold,
		enabled:   enabled,
		stop:      stop,
		log:       log,
	}
}

func (f *FailureTracker) Success() {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.streak = 0
	f.mu.Unlock()
}

// Fail возвращает true, если порог достигнут и остановка запрошена.
func (f *FailureTracker) Fail(err error) bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	f.streak++
	streak := f.streak
	trip := f.enabled && f.threshold > 0 && streak >= f.threshold && !f.fired
	if trip {
		f.fired = true
	}
	f.mu.Unlock()

	if trip {
		f.log.Error("[STRICT] consecutive failures limit reached, stopping",
			zap.String("loop", f.name), zap.Int("streak", streak), zap.Error(err))
		if f.stop != nil {
			f.stop()
		}
	}
	return trip
}

func (f *FailureTracker) Streak() int {
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streak
}
