package abtest

import "math"

// criticalValue maps a confidence level to its two-sided z critical
// value. Only 95% and 99% are supported; anything else falls back to the
// 95% threshold.
func criticalValue(confidence float64) float64 {
	switch confidence {
	case 0.99:
		return 2.576
	default:
		return 1.96
	}
}

// zScore computes the two-proportion z statistic for conversion rates
// under the pooled null hypothesis. Returns 0 when the standard error is
// zero (no information either way).
func zScore(control, treatment Metrics) float64 {
	n1 := float64(control.Impressions)
	n2 := float64(treatment.Impressions)
	if n1 == 0 || n2 == 0 {
		return 0
	}
	pooled := float64(control.Conversions+treatment.Conversions) / (n1 + n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))
	if se == 0 {
		return 0
	}
	return (treatment.ConversionRate - control.ConversionRate) / se
}

// normalCDF is the Abramowitz-Stegun rational approximation of the
// standard normal cumulative distribution function.
func normalCDF(x float64) float64 {
	t := 1 / (1 + 0.2316419*math.Abs(x))
	d := 0.3989423 * math.Exp(-x*x/2)
	p := d * t * (0.3193815 + t*(-0.3565638+t*(1.781478+t*(-1.821256+t*1.330274))))
	if x > 0 {
		return 1 - p
	}
	return p
}

// significance converts the z statistic for treatment vs control into an
// approximate confidence in [0,1] that the observed difference is real.
func significance(control, treatment Metrics) float64 {
	z := zScore(control, treatment)
	if z == 0 {
		return 0
	}
	pValue := 1 - normalCDF(math.Abs(z))
	return 1 - pValue
}

// upliftPercent is the relative conversion-rate change of variant vs
// control, as a percentage. Zero when the control has no conversions.
func upliftPercent(control, variant Metrics) float64 {
	if control.ConversionRate == 0 {
		return 0
	}
	return (variant.ConversionRate - control.ConversionRate) / control.ConversionRate * 100
}

// confidenceInterval is the Wald 95% interval for the variant's
// conversion rate, clamped to [0,1].
func confidenceInterval(m Metrics) [2]float64 {
	n := float64(m.Impressions)
	if n == 0 {
		return [2]float64{0, 0}
	}
	p := m.ConversionRate
	se := math.Sqrt(p * (1 - p) / n)
	return [2]float64{
		math.Max(0, p-1.96*se),
		math.Min(1, p+1.96*se),
	}
}
