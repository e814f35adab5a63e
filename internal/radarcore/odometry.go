package radarcore

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// OdometrySettings tunes the RANSAC + least-squares velocity estimator.
type OdometrySettings struct {
	MaxIterations      int
	InlierThresholdMps float64
	MinInliers         int
	Seed               int64
}

// DefaultOdometrySettings returns the spec's documented defaults, with the
// §8 boundary coercions already applied (MaxIterations >= 1,
// InlierThresholdMps >= 0.05).
func DefaultOdometrySettings() OdometrySettings {
	return OdometrySettings{
		MaxIterations:      120,
		InlierThresholdMps: 0.35,
		MinInliers:         6,
		Seed:               42,
	}
}

// Sanitize coerces out-of-range settings to their documented floors.
func (s OdometrySettings) Sanitize() OdometrySettings {
	if s.MaxIterations < 1 {
		s.MaxIterations = 1
	}
	if s.InlierThresholdMps < 0.05 {
		s.InlierThresholdMps = 0.05
	}
	return s
}

// OdometryEstimator recovers the host vehicle's planar velocity from
// stationary detections' Doppler measurements via RANSAC + an unweighted
// least-squares refit. It carries its own seeded RNG for reproducibility.
type OdometryEstimator struct {
	settings OdometrySettings
	rng      *rand.Rand
	last     OdometryEstimate
}

// NewOdometryEstimator constructs an estimator with the given settings.
func NewOdometryEstimator(settings OdometrySettings) *OdometryEstimator {
	s := settings.Sanitize()
	return &OdometryEstimator{
		settings: s,
		rng:      rand.New(rand.NewSource(s.Seed)),
	}
}

// LatestEstimate returns the most recent estimate produced, or the zero
// value (Valid=false) if none has been computed yet.
func (o *OdometryEstimator) LatestEstimate() OdometryEstimate {
	return o.last
}

type dopplerSample struct {
	cosAlpha float64
	sinAlpha float64
	rangeRate float64
}

// Estimate collects Doppler samples from detections and runs RANSAC +
// refit. calib supplies polarity and ISO orientation for the azimuth
// transform.
func (o *OdometryEstimator) Estimate(detections []EnhancedDetection, calib RadarCalibration, timestampUs int64) OdometryEstimate {
	samples := make([]dopplerSample, 0, len(detections))
	for _, d := range detections {
		if !d.Flags.Any(FlagValid | FlagSuperResolution) {
			continue
		}
		if math.IsNaN(d.RangeRateMs) || math.IsInf(d.RangeRateMs, 0) {
			continue
		}
		alpha := -d.AzimuthRawRad*calib.Polarity + calib.ISO.OrientationRad
		samples = append(samples, dopplerSample{
			cosAlpha:  math.Cos(alpha),
			sinAlpha:  math.Sin(alpha),
			rangeRate: d.RangeRateMs,
		})
	}

	est := o.estimateFromSamples(samples, timestampUs)
	o.last = est
	return est
}

func (o *OdometryEstimator) estimateFromSamples(samples []dopplerSample, timestampUs int64) OdometryEstimate {
	n := len(samples)
	if n < 2 {
		return OdometryEstimate{TimestampUs: timestampUs, Covariance: [3]float64{1, 1, 1}, InlierCount: n, Valid: false}
	}

	bestInliers := -1
	var bestVLon, bestVLat float64
	var bestInlierIdx []int

	for iter := 0; iter < o.settings.MaxIterations; iter++ {
		i := o.rng.Intn(n)
		j := o.rng.Intn(n)
		if i == j {
			j = (j + 1) % n
		}
		vLon, vLat, ok := solvePair(samples[i], samples[j])
		if !ok {
			continue
		}

		inliers := make([]int, 0, n)
		for k, s := range samples {
			resid := math.Abs(residual(s, vLon, vLat))
			if resid <= o.settings.InlierThresholdMps {
				inliers = append(inliers, k)
			}
		}
		if len(inliers) > bestInliers {
			bestInliers = len(inliers)
			bestVLon, bestVLat = vLon, vLat
			bestInlierIdx = inliers
		}
	}

	if bestInliers < 0 {
		return OdometryEstimate{TimestampUs: timestampUs, Covariance: [3]float64{1, 1, 1}, InlierCount: 0, Valid: false}
	}

	if bestInliers < o.settings.MinInliers {
		return OdometryEstimate{
			TimestampUs: timestampUs,
			VLon:        bestVLon,
			VLat:        bestVLat,
			Covariance:  [3]float64{1, 1, 1},
			InlierCount: bestInliers,
			Valid:       false,
		}
	}

	vLon, vLat := refit(samples, bestInlierIdx)
	N := float64(len(bestInlierIdx))
	return OdometryEstimate{
		TimestampUs: timestampUs,
		VLon:        vLon,
		VLat:        vLat,
		YawRate:     0,
		Covariance:  [3]float64{1 / N, 1 / N, 1},
		InlierCount: len(bestInlierIdx),
		Valid:       true,
	}
}

func residual(s dopplerSample, vLon, vLat float64) float64 {
	pred := -(vLon*s.cosAlpha + vLat*s.sinAlpha)
	return s.rangeRate - pred
}

// solvePair solves the exact 2x2 system from two Doppler samples:
// [-cosA -sinA][vLon] = [rr]
// [-cosB -sinB][vLat]   [rr']
func solvePair(a, b dopplerSample) (vLon, vLat float64, ok bool) {
	det := (-a.cosAlpha)*(-b.sinAlpha) - (-a.sinAlpha)*(-b.cosAlpha)
	if math.Abs(det) < 1e-4 {
		return 0, 0, false
	}
	// Cramer's rule.
	vLon = (a.rangeRate*(-b.sinAlpha) - b.rangeRate*(-a.sinAlpha)) / det
	vLat = ((-a.cosAlpha)*b.rangeRate - (-b.cosAlpha)*a.rangeRate) / det
	return vLon, vLat, true
}

// refit solves the overdetermined least-squares system over the inlier set
// using gonum's Householder QR decomposition (mat.QR). The factorization
// does no column pivoting.
func refit(samples []dopplerSample, inlierIdx []int) (vLon, vLat float64) {
	n := len(inlierIdx)
	A := mat.NewDense(n, 2, nil)
	b := mat.NewVecDense(n, nil)
	for row, idx := range inlierIdx {
		s := samples[idx]
		A.Set(row, 0, -s.cosAlpha)
		A.Set(row, 1, -s.sinAlpha)
		b.SetVec(row, s.rangeRate)
	}

	var qr mat.QR
	qr.Factorize(A)

	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		// Degenerate rank — fall back to the mean of per-sample pairwise
		// solves rather than propagating a numerical failure into Valid=true.
		return meanPairSolve(samples, inlierIdx)
	}
	return x.AtVec(0), x.AtVec(1)
}

func meanPairSolve(samples []dopplerSample, inlierIdx []int) (vLon, vLat float64) {
	var sumLon, sumLat float64
	count := 0
	for i := 0; i+1 < len(inlierIdx); i += 2 {
		l, t, ok := solvePair(samples[inlierIdx[i]], samples[inlierIdx[i+1]])
		if !ok {
			continue
		}
		sumLon += l
		sumLat += t
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return sumLon / float64(count), sumLat / float64(count)
}
