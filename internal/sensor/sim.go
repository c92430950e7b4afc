package sensor

import (
	"context"
	"math/rand"
)

// SimSensor synthesizes raw readings as a random walk around a center
// value, for running the node without measurement hardware.
type SimSensor struct {
	center int
	jitter int
	rng    *rand.Rand
}

// NewSim creates a simulated sensor producing readings in
// [center-jitter, center+jitter]. A negative jitter is treated as zero.
func NewSim(center, jitter int, seed int64) *SimSensor {
	if jitter < 0 {
		jitter = 0
	}
	return &SimSensor{
		center: center,
		jitter: jitter,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Read implements [Sensor]. It never fails.
func (s *SimSensor) Read(ctx context.Context) (uint16, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	v := s.center
	if s.jitter > 0 {
		v += s.rng.Intn(2*s.jitter+1) - s.jitter
	}
	if v < 0 {
		v = 0
	}
	if v > 0xFFFF {
		v = 0xFFFF
	}
	return uint16(v), nil
}
