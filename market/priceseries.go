package market

const (
	// priceSeriesSize is the maximum number of samples held by a price series.
	priceSeriesSize = 500
)

// PriceSeries represents a bounded trailing window of prices for a market.
type PriceSeries struct {
	data  []float64
	start int
	count int
	size  int
}

// NewPriceSeries initializes a new price series.
func NewPriceSeries() *PriceSeries {
	return &PriceSeries{
		data: make([]float64, priceSeriesSize),
		size: priceSeriesSize,
	}
}

// Update appends the provided price to the series.
func (s *PriceSeries) Update(price float64) {
	end := (s.start + s.count) % s.size
	s.data[end] = price

	if s.count == s.size {
		// Overwrite the oldest entry when the series is at capacity.
		s.start = (s.start + 1) % s.size
	} else {
		s.count++
	}
}

// LastN fetches the last n number of elements from the series.
func (s *PriceSeries) LastN(n int) []float64 {
	if n <= 0 {
		return nil
	}

	// Clamp the number of elements expected if it is greater than the series count.
	if n > s.count {
		n = s.count
	}

	set := make([]float64, n)
	start := (s.start + s.count - n + s.size) % s.size

	for i := range n {
		idx := (start + i) % s.size
		set[i] = s.data[idx]
	}

	return set
}

// Count returns the number of samples held by the series.
func (s *PriceSeries) Count() int {
	return s.count
}
