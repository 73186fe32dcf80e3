package stealth

import (
	"math/rand"
	"time"
)

// HumanDelay returns a sleep interval between min and max milliseconds plus
// triangular jitter of up to ±jitter milliseconds. Triangular noise (the sum
// of two uniforms) clusters around zero the way human pauses do. The result
// never drops below min.
func HumanDelay(minMs, maxMs, jitterMs int) time.Duration {
	if maxMs < minMs {
		maxMs = minMs
	}
	base := float64(minMs)
	if maxMs > minMs {
		base += rand.Float64() * float64(maxMs-minMs)
	}
	jitter := triangular(float64(jitterMs))
	total := base + jitter
	if total < float64(minMs) {
		total = float64(minMs)
	}
	return time.Duration(total) * time.Millisecond
}

// triangular samples from a triangular distribution on (-width, width).
func triangular(width float64) float64 {
	if width <= 0 {
		return 0
	}
	return (rand.Float64() + rand.Float64() - 1) * width
}
