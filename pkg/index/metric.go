package index

import "math"

// MetricType is the vector distance function a Flat index is built
// with, chosen once at creation and fixed for its lifetime.
type MetricType int

const (
	MetricL2 MetricType = iota
	MetricInnerProduct
	MetricCosine
)

func (m MetricType) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricInnerProduct:
		return "InnerProduct"
	case MetricCosine:
		return "Cosine"
	default:
		return "Unknown"
	}
}

// distance returns a value where smaller always means closer,
// regardless of metric: L2 returns squared Euclidean distance
// directly; InnerProduct and Cosine return 1 minus their similarity
// score, so RangeSearch's radius comparison (distance <= radius) is
// the same "smaller is closer, smaller than radius passes" test for
// every metric instead of flipping direction per metric.
func distance(m MetricType, a, b []float32) float32 {
	switch m {
	case MetricInnerProduct:
		return 1 - innerProduct(a, b)
	case MetricCosine:
		return 1 - cosineSimilarity(a, b)
	default:
		return l2Squared(a, b)
	}
}

// score returns the ranking value Search sorts by: larger is better
// for every metric, so a single top-k heap (a min-heap over score, see
// resultHeap) works regardless of which metric the index was built with.
func score(m MetricType, a, b []float32) float32 {
	switch m {
	case MetricInnerProduct:
		return innerProduct(a, b)
	case MetricCosine:
		return cosineSimilarity(a, b)
	default:
		return -l2Squared(a, b)
	}
}

func l2Squared(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func innerProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func cosineSimilarity(a, b []float32) float32 {
	ip := innerProduct(a, b)
	na := float32(math.Sqrt(float64(innerProduct(a, a))))
	nb := float32(math.Sqrt(float64(innerProduct(b, b))))
	if na == 0 || nb == 0 {
		return 0
	}
	return ip / (na * nb)
}
