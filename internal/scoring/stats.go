package scoring

import "math"

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

func variance(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	m := mean(samples)
	var sum float64
	for _, s := range samples {
		d := s - m
		sum += d * d
	}
	return sum / float64(len(samples)-1)
}

func stddev(samples []float64) float64 {
	return math.Sqrt(variance(samples))
}
