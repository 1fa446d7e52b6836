package auction

import (
	"math/rand/v2"
	"sync"
	"time"
)

// endTimeSource draws auction durations uniformly, in whole seconds, from
// [min, max].
type endTimeSource struct {
	mu  sync.Mutex
	rng *rand.Rand
	min time.Duration
	max time.Duration
}

func newEndTimeSource(rng *rand.Rand, min, max time.Duration) *endTimeSource {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if max < min {
		min, max = max, min
	}
	return &endTimeSource{rng: rng, min: min, max: max}
}

// duration returns a random auction length
func (s *endTimeSource) duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	span := int64((s.max - s.min) / time.Second)
	if span <= 0 {
		return s.min
	}
	return s.min + time.Duration(s.rng.Int64N(span+1))*time.Second
}

// after returns a function yielding now plus a fresh random duration per call
func (s *endTimeSource) after(now time.Time) func() time.Time {
	return func() time.Time {
		return now.Add(s.duration())
	}
}
