package technical

import "math"

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA calculates the Simple Moving Average of the last period closes.
func CalculateSMA(closes []float64, period int) float64 {
	if len(closes) < period || period <= 0 {
		return 0
	}

	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}

	return sum / float64(period)
}

// CalculateStdDev calculates the population standard deviation of the last
// period closes.
func CalculateStdDev(closes []float64, period int) float64 {
	if len(closes) < period || period <= 0 {
		return 0
	}

	mean := CalculateSMA(closes, period)
	sumSq := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		diff := closes[i] - mean
		sumSq += diff * diff
	}

	return math.Sqrt(sumSq / float64(period))
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// CalculateRSI calculates the RSI using Wilder's smoothing over the full
// series, seeded with a simple average of the first period changes.
func CalculateRSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50.0 // Neutral RSI
	}

	gains := 0.0
	losses := 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	// Wilder smoothing over the remainder of the series.
	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// CalculateBollinger returns the upper, middle and lower Bollinger Bands
// (period SMA ± 2 standard deviations).
func CalculateBollinger(closes []float64, period int) (upper, middle, lower float64) {
	middle = CalculateSMA(closes, period)
	if middle == 0 {
		return 0, 0, 0
	}
	std := CalculateStdDev(closes, period)
	return middle + 2*std, middle, middle - 2*std
}

// ============================================================================
// VOLATILITY
// ============================================================================

// CalculateWeeklyVolatility estimates one-week return volatility from daily
// closes: stddev of daily log returns scaled by sqrt(5 trading days).
func CalculateWeeklyVolatility(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	sumSq := 0.0
	for _, r := range returns {
		diff := r - mean
		sumSq += diff * diff
	}
	daily := math.Sqrt(sumSq / float64(len(returns)-1))

	return daily * math.Sqrt(5)
}

// NormInv is the inverse standard normal CDF (Acklam's approximation),
// accurate to ~1e-9 over (0, 1).
func NormInv(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	a := []float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := []float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := []float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := []float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	const low = 0.02425
	const high = 1 - low

	switch {
	case p < low:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p > high:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}
