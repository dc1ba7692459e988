package domain

import "math"

// MaxTicks bounds the number of ticks ComputeTicks emits. Series anchored
// near zero stay well below it; series far from zero with a narrow range
// get a coarser step instead of millions of ticks.
const MaxTicks = 120

// AxisScale is a value axis anchored at zero.
type AxisScale struct {
	DomainMin float64   `json:"domain_min"`
	DomainMax float64   `json:"domain_max"`
	Step      float64   `json:"step"`
	Ticks     []float64 `json:"ticks"`
}

// ComputeTicks derives a round tick step from the order of magnitude of the
// value range and lays ticks from 0 up to max+step inclusive. Non-finite
// values are ignored; an empty input yields the [0, 1] axis.
func ComputeTicks(values []float64) AxisScale {
	lo, hi := math.Inf(1), math.Inf(-1)
	n := 0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		n++
	}
	if n == 0 {
		return AxisScale{DomainMin: 0, DomainMax: 1, Step: 1, Ticks: []float64{0, 1}}
	}

	step := tickStep(hi - lo)
	for {
		upper := hi + step
		if upper <= 0 {
			upper = step
		}
		count := int(math.Floor(upper/step+1e-9)) + 1
		if count <= MaxTicks {
			return AxisScale{
				DomainMin: 0,
				DomainMax: upper,
				Step:      step,
				Ticks:     layTicks(step, count),
			}
		}
		step *= 10
	}
}

// tickStep returns 10^(floor(log10(span))-1), falling back to 1 when the
// span is zero or the result is not a usable number.
func tickStep(span float64) float64 {
	step := math.Pow(10, math.Floor(math.Log10(span))-1)
	if span <= 0 || step == 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return 1
	}
	return step
}

func layTicks(step float64, count int) []float64 {
	decimals := 0
	if step < 1 {
		decimals = int(math.Ceil(-math.Log10(step) - 1e-9))
	}
	scale := math.Pow(10, float64(decimals))

	ticks := make([]float64, count)
	for i := range ticks {
		v := float64(i) * step
		if decimals > 0 {
			v = math.Round(v*scale) / scale
		}
		ticks[i] = v
	}
	return ticks
}
