package keypool

import (
	"sync"

	"github.com/tra-cli/tra/internal/model"
)

// maxSlots is the spec.md §4.4 cap on concurrently configured credentials.
const maxSlots = 10

// tokensPerActiveSlot is the per-slot contribution to KeyPool.getCapacity's
// max, per spec.md §4.4 ("max: 5 × activeSlotCount").
const tokensPerActiveSlot = 5

// Capacity is the snapshot returned by Pool.GetCapacity.
type Capacity struct {
	Available int
	Max       int
}

// Pool owns an ordered collection of up to 10 Slots, exclusively: no
// caller outside this package mutates slot internals directly (spec.md
// §3 Ownership).
type Pool struct {
	mu    sync.Mutex
	slots []*Slot
}

// New builds an empty Pool. Slots are added with Add.
func New() *Pool {
	return &Pool{}
}

// Add registers a slot with the pool, up to maxSlots.
func (p *Pool) Add(s *Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.slots) >= maxSlots {
		return
	}
	p.slots = append(p.slots, s)
}

// GetSlot selects the available slot with the most tokens remaining,
// ties broken by least-recently-used, per spec.md §4.4.
func (p *Pool) GetSlot() (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *Slot
	for _, s := range p.slots {
		if !s.IsAvailable() {
			continue
		}
		if best == nil || betterCandidate(s, best) {
			best = s
		}
	}

	if best == nil {
		return nil, model.New(model.CodeNoAvailableSlots, "no available key slots")
	}
	return best, nil
}

func betterCandidate(candidate, current *Slot) bool {
	candTokens := candidate.GetAvailableTokens()
	curTokens := current.GetAvailableTokens()
	if candTokens != curTokens {
		return candTokens > curTokens
	}
	return candidate.GetMetrics().LastUsedEpochMs < current.GetMetrics().LastUsedEpochMs
}

// GetSlotByID returns the slot with the given credential id, or nil.
func (p *Pool) GetSlotByID(id string) *Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.slots {
		if s.ID() == id {
			return s
		}
	}
	return nil
}

// GetCapacity returns available (sum of tokens across ACTIVE/COOLDOWN
// slots) and max (5 × active slot count), per spec.md §4.4.
func (p *Pool) GetCapacity() Capacity {
	p.mu.Lock()
	defer p.mu.Unlock()

	var available int
	var activeCount int
	for _, s := range p.slots {
		if !s.IsAvailable() {
			continue
		}
		available += s.GetAvailableTokens()
		if s.GetMetrics().State == model.SlotActive {
			activeCount++
		}
	}

	return Capacity{Available: available, Max: activeCount * tokensPerActiveSlot}
}

// GetActiveSlotCount returns the number of slots currently ACTIVE.
func (p *Pool) GetActiveSlotCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, s := range p.slots {
		if s.GetMetrics().State == model.SlotActive {
			count++
		}
	}
	return count
}

// GetMetrics returns a snapshot of every slot's metrics.
func (p *Pool) GetMetrics() []model.SlotMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.SlotMetrics, len(p.slots))
	for i, s := range p.slots {
		out[i] = s.GetMetrics()
	}
	return out
}

// Reset restores every slot to ACTIVE with zero counters.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.slots {
		s.reset()
	}
}
