package metrics

import "math"

// Running keeps mean and variance of a stream of observations with Welford's
// online algorithm. The zero value is ready to use; it is not safe for
// concurrent use.
type Running struct {
	Count int
	Mean  float64
	M2    float64 // sum of squared distances from the mean
}

// ResumeRunning rebuilds a Running from previously persisted mean, stddev
// and count.
func ResumeRunning(mean, stddev float64, count int) Running {
	if count == 0 {
		return Running{}
	}
	return Running{
		Count: count,
		Mean:  mean,
		M2:    stddev * stddev * float64(count),
	}
}

// Add records one observation
func (r *Running) Add(x float64) {
	r.Count++
	delta := x - r.Mean
	r.Mean += delta / float64(r.Count)
	r.M2 += delta * (x - r.Mean)
}

// StdDev is the population standard deviation, 0 below two observations
func (r Running) StdDev() float64 {
	if r.Count < 2 {
		return 0
	}
	return math.Sqrt(r.M2 / float64(r.Count))
}

// Reset clears the accumulated state
func (r *Running) Reset() { *r = Running{} }
