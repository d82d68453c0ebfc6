package compute

// Moving-average window sizes, in hourly samples.
const (
	longWindow  = 12
	shortWindow = 4
)

// Thresholds (µg/m³) above which a recent reading may be damped.
const (
	pm10DampThreshold = 70.0
	pm25DampThreshold = 30.0
)

// Ratio band (reading / C12) in which a reading above the threshold is
// weighted at dampFactor.
const (
	dampRatioLow  = 0.9
	dampRatioHigh = 1.7
	dampFactor    = 0.75
)

// MinHourlyReadings is the number of hourly particulate samples required by
// MovingAverage24h.
const MinHourlyReadings = longWindow

// MovingAverage24h blends a 12-hour mean (C12) with a weighted 4-hour mean
// (C4) of particulate readings, oldest first:
//
//	avg = (C12*12 + C4*12) / 24
//
// Readings older than the most recent 12 are ignored. Fewer than 12
// readings returns ErrInsufficientData.
func MovingAverage24h(readings []float64, isPM10 bool) (float64, error) {
	if len(readings) < longWindow {
		return 0, ErrInsufficientData
	}
	window := readings[len(readings)-longWindow:]

	threshold := pm25DampThreshold
	if isPM10 {
		threshold = pm10DampThreshold
	}

	var sum float64
	for _, v := range window {
		sum += v
	}
	c12 := sum / longWindow

	var c4 float64
	for _, v := range window[longWindow-shortWindow:] {
		weighted := v
		if v >= threshold {
			if ratio := v / c12; ratio >= dampRatioLow && ratio <= dampRatioHigh {
				weighted = v * dampFactor
			}
		}
		c4 += weighted / shortWindow
	}

	return (c12*longWindow + c4*longWindow) / 24, nil
}
