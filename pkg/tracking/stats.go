package tracking

// medianBins is the histogram resolution used for flow bias estimation.
const medianBins = 25

// HistogramMedian approximates the median of the values selected by mask
// using a bins-bucket histogram over [lo, hi). Values equal to hi fall
// outside the histogram. A nil mask selects every value.
//
// The result is the center of the first bucket at which the cumulative
// count reaches half the total. With no counted values it returns lo.
func HistogramMedian(values []float64, mask []bool, bins int, lo, hi float64) float64 {
	if bins <= 0 || hi <= lo {
		return lo
	}

	step := (hi - lo) / float64(bins)
	hist := make([]int, bins)
	total := 0
	for i, v := range values {
		if mask != nil && !mask[i] {
			continue
		}
		if v < lo || v >= hi {
			continue
		}
		b := int((v - lo) / step)
		if b >= bins {
			b = bins - 1
		}
		hist[b]++
		total++
	}
	if total == 0 {
		return lo
	}

	half := float64(total) / 2
	sum := 0
	median := lo
	for i, n := range hist {
		sum += n
		median = lo + float64(i)*step + step/2
		if float64(sum) >= half {
			break
		}
	}
	return median
}
