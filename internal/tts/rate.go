package tts

import (
	"strconv"
	"sync"
)

// rateSteps are the speech-rate adjustments offered by Faster and Slower.
// The backend takes -1..1 where 0 is the voice's natural pace.
var rateSteps = []float64{-0.5, -0.25, 0, 0.25, 0.5, 0.75, 1.0}

// RateController steps the speech-rate adjustment.
type RateController struct {
	mu      sync.RWMutex
	current float64
}

// NewRateController creates a controller at rate.
func NewRateController(rate float64) (*RateController, error) {
	r := &RateController{}
	if err := r.Set(rate); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the current rate adjustment.
func (r *RateController) Get() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Set sets the rate adjustment (-1.0 to 1.0).
func (r *RateController) Set(rate float64) error {
	if rate < -1.0 || rate > 1.0 {
		return ErrRateOutOfRange
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = rate
	return nil
}

// Faster moves to the next higher step and returns the new rate.
func (r *RateController) Faster() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, step := range rateSteps {
		if step > r.current {
			r.current = step
			return r.current
		}
	}
	return r.current
}

// Slower moves to the next lower step and returns the new rate.
func (r *RateController) Slower() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(rateSteps) - 1; i >= 0; i-- {
		if rateSteps[i] < r.current {
			r.current = rateSteps[i]
			return r.current
		}
	}
	return r.current
}

// Display returns a human-readable rate such as "1.25x".
func (r *RateController) Display() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return strconv.FormatFloat(1+r.current, 'f', -1, 64) + "x"
}

// IsAtMinimum reports whether the rate is at the slowest step.
func (r *RateController) IsAtMinimum() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current <= rateSteps[0]
}

// IsAtMaximum reports whether the rate is at the fastest step.
func (r *RateController) IsAtMaximum() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current >= rateSteps[len(rateSteps)-1]
}
