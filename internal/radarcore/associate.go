package radarcore

import "math"

// DefaultBoundingBoxScale and DefaultRangeRateSigma are the association
// gate's default tuning values.
const (
	DefaultBoundingBoxScale = 1.1
	DefaultRangeRateSigma   = 3.0
)

// trackState is the pipeline's per-track carried state, updated wholesale on
// every track frame and read (never mutated structurally) by detection
// association.
type trackState struct {
	PositionLon float64
	PositionLat float64
	VelocityLon float64
	VelocityLat float64
	AccelLon    float64
	AccelLat    float64
	LengthM     float64
	WidthM      float64
	HeightM     float64
	HeadingRad  float64
	HeadingRate float64

	IsStationary bool
	IsMoveable   bool
	MovingVotes  float64
}

// orientedBox is an oriented rectangle in the VCS plane used for detection
// containment tests during association.
type orientedBox struct {
	CenterLon  float64
	CenterLat  float64
	HalfLength float64
	HalfWidth  float64
	Heading    float64
}

// predictedBox builds the oriented box for a track at observation time t_obs,
// dt seconds ahead of the track snapshot.
func predictedBox(ts trackState, dt, scale float64) orientedBox {
	if scale <= 0 {
		scale = DefaultBoundingBoxScale
	}
	lon := ts.PositionLon + ts.VelocityLon*dt + 0.5*ts.AccelLon*dt*dt
	lat := ts.PositionLat + ts.VelocityLat*dt + 0.5*ts.AccelLat*dt*dt
	heading := ts.HeadingRad + ts.HeadingRate*dt
	return orientedBox{
		CenterLon:  lon,
		CenterLat:  lat,
		HalfLength: 0.5 * math.Max(ts.LengthM, 0.1) * scale,
		HalfWidth:  0.5 * math.Max(ts.WidthM, 0.1) * scale,
		Heading:    heading,
	}
}

// contains reports whether point p (VCS) lies within the oriented box.
func (b orientedBox) contains(p Point2) bool {
	dx := p.X - b.CenterLon
	dy := p.Y - b.CenterLat
	c := math.Cos(-b.Heading)
	s := math.Sin(-b.Heading)
	localLon := dx*c - dy*s
	localLat := dx*s + dy*c
	return math.Abs(localLon) <= b.HalfLength && math.Abs(localLat) <= b.HalfWidth
}

// detectionVCSPosition recovers a detection's VCS position, per the §4.1
// fallback chain: offsets, else range+azimuth (VCS-relative), else
// range+azimuth-raw through the sensor's VCS mount pose.
func detectionVCSPosition(d EnhancedDetection, calib RadarCalibration) Point2 {
	lon, lat := d.LongitudinalOffsetM, d.LateralOffsetM
	if lon == 0 && lat == 0 {
		if d.RangeM != 0 {
			lon = d.RangeM * math.Cos(d.AzimuthRad)
			lat = d.RangeM * math.Sin(d.AzimuthRad)
		}
		if lon == 0 && lat == 0 && d.RangeM != 0 {
			phiVCS := -d.AzimuthRawRad*calib.Polarity + calib.VCS.OrientationRad
			lon = d.RangeM * math.Cos(phiVCS)
			lat = d.RangeM * math.Sin(phiVCS)
		}
	}
	return Point2{X: lon + calib.VCS.LongitudinalM, Y: lat + calib.VCS.LateralM}
}

// associateDetection attempts to associate one enhanced detection against
// the track snapshot, mutating the detection's FusedTrackIndex/IsMoveable/
// IsStatic fields and the matched track's MovingVotes/IsMoveable in place.
// boxes is the set of predicted oriented boxes, parallel to tracks.
func associateDetection(d *EnhancedDetection, calib RadarCalibration, motion VehicleMotionState, tracks []trackState, boxes []orientedBox, rangeRateSigma float64) {
	if !d.Flags.Any(FlagValid | FlagSuperResolution) {
		return
	}
	if rangeRateSigma <= 0 {
		rangeRateSigma = DefaultRangeRateSigma
	}

	pos := detectionVCSPosition(*d, calib)
	phi := -d.AzimuthRawRad*calib.Polarity + calib.VCS.OrientationRad

	best := -1
	bestM := math.Inf(1)
	for i, box := range boxes {
		if !box.contains(pos) {
			continue
		}
		vRelLon := motion.VLonMps - tracks[i].VelocityLon
		vRelLat := motion.VLatMps - tracks[i].VelocityLat
		predictedRR := vRelLon*(-math.Cos(phi)) + vRelLat*(-math.Sin(phi))
		sigmaSq := math.Max(math.Pow(calib.RangeRateAccuracyMps/3, 2), 1e-4)
		sigma := math.Sqrt(sigmaSq)
		m := math.Abs(d.RangeRateMs-predictedRR) / sigma
		if m > rangeRateSigma {
			continue
		}
		if m < bestM {
			bestM = m
			best = i
		}
	}
	if best < 0 {
		return
	}

	d.FusedTrackIndex = best
	ts := &tracks[best]
	if ts.IsMoveable {
		d.IsMoveable = true
	} else {
		vote := 1 - d.StationaryProbability
		if d.IsStationary {
			vote = -d.StationaryProbability
		}
		ts.MovingVotes = clampRange(ts.MovingVotes+vote, -100, 100)
		ts.IsMoveable = ts.MovingVotes > 0
		d.IsMoveable = ts.IsMoveable
	}
	d.IsStatic = d.IsStationary && !d.IsMoveable
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
