package scheduler

import "sync"

// SizeTarget is the adaptive chunk size in characters. It starts at the
// floor and grows by step after each successful synthesis, up to ceiling.
type SizeTarget struct {
	mu      sync.Mutex
	floor   int
	step    int
	ceiling int
	current int
}

// NewSizeTarget creates a target. A ceiling below the floor is raised to it.
func NewSizeTarget(floor, step, ceiling int) *SizeTarget {
	if floor < 1 {
		floor = 1
	}
	if ceiling < floor {
		ceiling = floor
	}
	if step < 0 {
		step = 0
	}
	return &SizeTarget{floor: floor, step: step, ceiling: ceiling, current: floor}
}

// Value returns the current target.
func (t *SizeTarget) Value() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Grow advances the target by one step.
func (t *SizeTarget) Grow() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = min(t.current+t.step, t.ceiling)
}

// Reset returns the target to the floor.
func (t *SizeTarget) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = t.floor
}

// Set forces the target, clamped to [1, ceiling]. It may go below the floor.
func (t *SizeTarget) Set(v int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = max(1, min(v, t.ceiling))
}
