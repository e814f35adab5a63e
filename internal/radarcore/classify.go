package radarcore

import "math"

// DefaultStationarySigma is the default Mahalanobis threshold (n_sigma) used
// to classify a detection as stationary.
const DefaultStationarySigma = 3.0

// classifyStationarity computes the per-detection stationarity fields,
// independent of any track association. calib is the owning sensor's
// calibration; motion is the current ego motion state; nSigma is the
// classification threshold (DefaultStationarySigma if zero).
func classifyStationarity(d *EnhancedDetection, calib RadarCalibration, motion VehicleMotionState, nSigma float64) {
	if nSigma <= 0 {
		nSigma = DefaultStationarySigma
	}

	phi := -d.AzimuthRawRad*calib.Polarity + calib.ISO.OrientationRad
	yawTerm := motion.YawRateRps * (calib.ISO.LongitudinalM*math.Sin(phi) - calib.ISO.LateralM*math.Cos(phi))
	rrComp := d.RangeRateMs + yawTerm
	rrPred := -(motion.VLonMps*math.Cos(phi) + motion.VLatMps*math.Sin(phi))

	sigmaSq := math.Max(math.Pow(calib.RangeRateAccuracyMps/3, 2), 1e-4)
	m := math.Abs(rrComp-rrPred) / math.Sqrt(sigmaSq)

	d.IsStationary = m <= nSigma
	d.StationaryProbability = clamp01(1 - math.Erf(m/math.Sqrt2))
	d.IsStatic = d.IsStationary
	d.IsMoveable = false
	d.FusedTrackIndex = -1
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
