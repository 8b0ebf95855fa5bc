package ui

import "strings"

// SparklineChars are the eight bar heights, lowest first.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps the most recent throughput samples and renders them as
// a row of block characters scaled to the largest sample held.
type Sparkline struct {
	capacity int
	samples  []float64 // oldest first, len <= capacity
}

// NewSparkline creates a sparkline holding up to capacity samples.
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{capacity: capacity, samples: make([]float64, 0, capacity)}
}

// Add appends a sample, dropping the oldest when full.
func (s *Sparkline) Add(value float64) {
	if value < 0 {
		value = 0
	}
	if len(s.samples) == s.capacity {
		copy(s.samples, s.samples[1:])
		s.samples = s.samples[:len(s.samples)-1]
	}
	s.samples = append(s.samples, value)
}

// Render draws the newest width samples, right-aligned and padded with
// spaces. width <= 0 uses the capacity.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = s.capacity
	}
	shown := s.samples
	if len(shown) > width {
		shown = shown[len(shown)-width:]
	}

	peak := s.Max()
	var sb strings.Builder
	sb.Grow(width * 3)
	sb.WriteString(strings.Repeat(" ", width-len(shown)))
	for _, v := range shown {
		sb.WriteRune(SparklineChars[level(v, peak)])
	}
	return sb.String()
}

func level(v, peak float64) int {
	if peak <= 0 {
		return 0
	}
	idx := int(v / peak * float64(len(SparklineChars)-1))
	return max(0, min(idx, len(SparklineChars)-1))
}

// Clear drops all samples.
func (s *Sparkline) Clear() {
	s.samples = s.samples[:0]
}

// Count returns the number of samples held.
func (s *Sparkline) Count() int {
	return len(s.samples)
}

// Max returns the largest sample held.
func (s *Sparkline) Max() float64 {
	peak := 0.0
	for _, v := range s.samples {
		peak = max(peak, v)
	}
	return peak
}
