package runner

import (
	"sync"
	"time"
)

// Reservations — символы, по которым ордер отправлен, но позиция ещё не видна.
// Учитываются вместе с позициями и в лимите, и в правиле "одна позиция на символ".
type Reservations struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	pending map[string]time.Time // symbol -> until
}

func NewReservations(ttl time.Duration) *Reservations {
	return &Reservations{
		ttl:     ttl,
		now:     time.Now,
		pending: make(map[string]time.Time),
	}
}

// Reserve возвращает false, если символ уже зарезервирован.
func (r *Reservations) Reserve(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireLocked()
	if _, ok := r.pending[symbol]; ok {
		return false
	}
	r.pending[symbol] = r.now().Add(r.ttl)
	return true
}

func (r *Reservations) Release(symbol string) {
	r.mu.Lock()
	delete(r.pending, symbol)
	r.mu.Unlock()
}

func (r *Reservations) Has(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireLocked()
	_, ok := r.pending[symbol]
	return ok
}

func (r *Reservations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireLocked()
	return len(r.pending)
}

// Symbols — копия текущих резервов.
func (r *Reservations) Symbols() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireLocked()
	out := make(map[string]struct{}, len(r.pending))
	for s := range r.pending {
		out[s] = struct{}{}
	}
	return out
}

// Settle снимает резервы с символов, которые уже появились в позициях.
func (r *Reservations) Settle(open map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for s := range open {
		delete(r.pending, s)
	}
}

func (r *Reservations) expireLocked() {
	now := r.now()
	for s, until := range r.pending {
		if !now.Before(until) {
			delete(r.pending, s)
		}
	}
}
