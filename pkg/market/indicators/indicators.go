// Package indicators computes technical indicator series over close prices.
// Every function returns slices aligned with the input; positions where the
// indicator is undefined (warmup, short input) hold math.NaN().
package indicators

import "math"

// SMA produces the simple rolling mean over the trailing period values.
func SMA(prices []float64, period int) []float64 {
	result := nanSlice(len(prices))
	if period <= 0 || len(prices) < period {
		return result
	}
	var sum float64
	for i, price := range prices {
		sum += price
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			result[i] = sum / float64(period)
		}
	}
	return result
}

// EMA produces the exponential moving average, seeded with the simple mean
// of the first full window.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) == 0 {
		return []float64{}
	}
	result := nanSlice(len(prices))
	if len(prices) < period {
		return result
	}
	multiplier := 2.0 / float64(period+1)

	start := -1
	var seed float64
	for i := period - 1; i < len(prices); i++ {
		windowValid := true
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(prices[j]) {
				windowValid = false
				break
			}
			sum += prices[j]
		}
		if windowValid {
			start = i
			seed = sum / float64(period)
			break
		}
	}
	if start == -1 {
		return result
	}
	result[start] = seed

	for i := start + 1; i < len(prices); i++ {
		if math.IsNaN(prices[i]) {
			result[i] = result[i-1]
			continue
		}
		prev := result[i-1]
		if math.IsNaN(prev) {
			prev = seed
		}
		result[i] = (prices[i]-prev)*multiplier + prev
	}
	return result
}

// MACD returns the MACD, signal, and histogram series (EMA12-EMA26,
// EMA9 of MACD, and their difference).
func MACD(prices []float64) ([]float64, []float64, []float64) {
	if len(prices) == 0 {
		return []float64{}, []float64{}, []float64{}
	}
	ema12 := EMA(prices, 12)
	ema26 := EMA(prices, 26)

	macd := make([]float64, len(prices))
	for i := range prices {
		if math.IsNaN(ema12[i]) || math.IsNaN(ema26[i]) {
			macd[i] = math.NaN()
		} else {
			macd[i] = ema12[i] - ema26[i]
		}
	}

	signal := EMA(macd, 9)
	hist := make([]float64, len(prices))
	for i := range hist {
		if math.IsNaN(macd[i]) || math.IsNaN(signal[i]) {
			hist[i] = math.NaN()
		} else {
			hist[i] = macd[i] - signal[i]
		}
	}
	return macd, signal, hist
}

// RSI computes the Relative Strength Index using simple rolling means of
// gains and losses over the trailing period deltas.
func RSI(prices []float64, period int) []float64 {
	result := nanSlice(len(prices))
	if period <= 0 || len(prices) <= period {
		return result
	}

	gains := make([]float64, len(prices))
	losses := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gains[i] = math.Max(change, 0)
		losses[i] = math.Max(-change, 0)
	}

	var gainSum, lossSum float64
	for i := 1; i < len(prices); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i >= period {
			avgGain := gainSum / float64(period)
			avgLoss := lossSum / float64(period)
			result[i] = boundedRSI(avgGain, avgLoss)
		}
	}
	return result
}

// KDJ computes the stochastic K, D, and J lines over the given window.
// K and D start from the conventional 50 seed; a flat window yields an
// RSV of 50 rather than a division by zero.
func KDJ(highs, lows, closes []float64, period int) ([]float64, []float64, []float64) {
	n := len(closes)
	k := nanSlice(n)
	d := nanSlice(n)
	j := nanSlice(n)
	if period <= 0 || n < period || len(highs) != n || len(lows) != n {
		return k, d, j
	}

	prevK, prevD := 50.0, 50.0
	for i := period - 1; i < n; i++ {
		highest := highs[i-period+1]
		lowest := lows[i-period+1]
		for m := i - period + 2; m <= i; m++ {
			highest = math.Max(highest, highs[m])
			lowest = math.Min(lowest, lows[m])
		}
		rsv := 50.0
		if highest > lowest {
			rsv = (closes[i] - lowest) / (highest - lowest) * 100
		}
		k[i] = prevK*2/3 + rsv/3
		d[i] = prevD*2/3 + k[i]/3
		j[i] = 3*k[i] - 2*d[i]
		prevK, prevD = k[i], d[i]
	}
	return k, d, j
}

// Bollinger returns the upper, middle, and lower bands: a rolling mean with
// symmetric bands at mult standard deviations.
func Bollinger(prices []float64, period int, mult float64) ([]float64, []float64, []float64) {
	n := len(prices)
	upper := nanSlice(n)
	middle := SMA(prices, period)
	lower := nanSlice(n)
	if period <= 0 || n < period {
		return upper, middle, lower
	}
	for i := period - 1; i < n; i++ {
		mean := middle[i]
		var variance float64
		for m := i - period + 1; m <= i; m++ {
			diff := prices[m] - mean
			variance += diff * diff
		}
		sigma := math.Sqrt(variance / float64(period))
		upper[i] = mean + mult*sigma
		lower[i] = mean - mult*sigma
	}
	return upper, middle, lower
}

// boundedRSI applies the flat-series conventions: no movement at all is
// neutral 50, a lossless window saturates at 100, a gainless one at 0.
func boundedRSI(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50.0
	case avgLoss == 0:
		return 100.0
	case avgGain == 0:
		return 0.0
	default:
		rs := avgGain / avgLoss
		return 100.0 - (100.0 / (1.0 + rs))
	}
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
