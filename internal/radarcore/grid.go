package radarcore

import "math"

// RadarModel selects the occupied-cell update rule.
type RadarModel int

const (
	ModelGaussian RadarModel = iota
	ModelHits
)

// CombinationMethod selects how the three plausibility sigmoids are
// combined into a single scalar.
type CombinationMethod int

const (
	CombineAverage CombinationMethod = iota
	CombineProduct
	CombineMinimum
	CombineCustom
)

// accuracyProfile is the (range, angle) accuracy pair used by the
// plausibility sigmoids, chosen by SRR/MRR sensor class.
type accuracyProfile struct {
	RangeAccuracyM     float64
	AngleAccuracyRad   float64
}

// GridSettings holds every tunable parameter of the occupancy grid mapper,
// shown with the spec's documented defaults.
type GridSettings struct {
	CellSizeM      float64 // 0.5
	MapRadiusM     float64 // 60
	HitIncrement   float64 // 0.5
	MissDecrement  float64 // 0.1
	MaxLogOdds     float64 // 5
	MinLogOdds     float64 // -5
	OccupiedThreshold float64 // 0.2

	RadarModel RadarModel // Gaussian

	EnableOccupied              bool // true
	EnableFreespace              bool // true
	AlwaysMapDynamicDetections   bool // false
	EnablePlausibilityScaling    bool // true

	MaxAdditiveProbability       float64 // 0.275
	MaxFreespaceRangeM           float64 // 100
	MinRangeM                    float64 // 1e-6
	MinPlausibility               float64 // 0.01
	FreespaceAngleAccuracyRad     float64 // 1 degree in rad
	FreespaceRangeSigmaFactor     float64 // 4

	ShortRangeAccuracy accuracyProfile // (0.01, 0.1deg)
	MidRangeAccuracy   accuracyProfile // (0.25, 0.5deg)

	RangeMidpointM       float64
	RangeBandwidthM      float64
	AzimuthMidpointDeg   float64
	AzimuthBandwidthDeg  float64
	AmplitudeMidpointDBsm float64
	AmplitudeBandwidthDBsm float64

	Combination                     CombinationMethod
	CustomCombinationRangeThresholdM float64 // 10
}

// DefaultGridSettings returns the spec's documented defaults.
func DefaultGridSettings() GridSettings {
	return GridSettings{
		CellSizeM:         0.5,
		MapRadiusM:        60,
		HitIncrement:      0.5,
		MissDecrement:     0.1,
		MaxLogOdds:        5,
		MinLogOdds:        -5,
		OccupiedThreshold: 0.2,

		RadarModel: ModelGaussian,

		EnableOccupied:             true,
		EnableFreespace:            true,
		AlwaysMapDynamicDetections: false,
		EnablePlausibilityScaling:  true,

		MaxAdditiveProbability:    0.275,
		MaxFreespaceRangeM:        100,
		MinRangeM:                 1e-6,
		MinPlausibility:            0.01,
		FreespaceAngleAccuracyRad:  1 * math.Pi / 180,
		FreespaceRangeSigmaFactor:  4,

		ShortRangeAccuracy: accuracyProfile{RangeAccuracyM: 0.01, AngleAccuracyRad: 0.1 * math.Pi / 180},
		MidRangeAccuracy:   accuracyProfile{RangeAccuracyM: 0.25, AngleAccuracyRad: 0.5 * math.Pi / 180},

		RangeMidpointM:         7.0,
		RangeBandwidthM:        10.5,
		AzimuthMidpointDeg:     65.0,
		AzimuthBandwidthDeg:    14.65,
		AmplitudeMidpointDBsm:  -22.0,
		AmplitudeBandwidthDBsm: 8.79,

		Combination:                      CombineCustom,
		CustomCombinationRangeThresholdM: 10,
	}
}

// GridPoint is one radar return, already classified and position-resolved,
// in the shape the occupancy grid and virtual ring consume. X is the VCS
// lateral coordinate and Y is the VCS longitudinal coordinate, matching the
// sensor-position convention below — use NewGridPoint to build one from an
// EnhancedDetection.
type GridPoint struct {
	Sensor        SensorIndex
	X, Y          float64
	RangeM        float64
	AzimuthRawRad float64
	AzimuthRad    float64
	AmplitudeDBsm float64
	MotionStatus  int
	Flags         DetectionFlags
	IsStationary  bool
	IsStatic      bool

	SensorLongitudinalM float64
	SensorLateralM      float64
	AzimuthPolarity     float64
	BoresightAngleRad   float64
}

// NewGridPoint resolves an enhanced detection's VCS position (offsets, or
// range+azimuth fallback) and reports ok=false for null slots or
// non-finite positions, mirroring the pipeline's own null-slot suppression.
func NewGridPoint(d EnhancedDetection, header RawDetectionsHeader, sensor SensorIndex) (GridPoint, bool) {
	if d.IsNullSlot() {
		return GridPoint{}, false
	}

	detAngle := d.AzimuthRad
	if detAngle == 0 && d.AzimuthRawRad != 0 {
		polarity := header.AzimuthPolarity
		if polarity == 0 {
			polarity = 1
		}
		detAngle = header.BoresightAngleRad + polarity*d.AzimuthRawRad
	}

	lateral := d.LateralOffsetM
	longitudinal := d.LongitudinalOffsetM
	if lateral == 0 && longitudinal == 0 && d.RangeM > 0 {
		lateral = d.RangeM * math.Sin(detAngle)
		longitudinal = d.RangeM * math.Cos(detAngle)
	}
	if math.IsNaN(lateral) || math.IsNaN(longitudinal) || math.IsInf(lateral, 0) || math.IsInf(longitudinal, 0) {
		return GridPoint{}, false
	}

	return GridPoint{
		Sensor:              sensor,
		X:                   lateral,
		Y:                   longitudinal,
		RangeM:              d.RangeM,
		AzimuthRawRad:       d.AzimuthRawRad,
		AzimuthRad:          d.AzimuthRad,
		AmplitudeDBsm:       d.AmplitudeDBsm,
		MotionStatus:        d.MotionStatus,
		Flags:               d.Flags,
		IsStationary:        d.IsStationary,
		IsStatic:            d.IsStatic,
		SensorLongitudinalM: header.SensorLongitudinalM,
		SensorLateralM:      header.SensorLateralM,
		AzimuthPolarity:     header.AzimuthPolarity,
		BoresightAngleRad:   header.BoresightAngleRad,
	}, true
}

// OccupancyGrid is a square log-odds grid centered on the ego vehicle.
type OccupancyGrid struct {
	settings GridSettings
	n        int
	center   float64
	cells    []float64 // row-major, size n*n
}

// NewOccupancyGrid constructs a grid with the given settings.
func NewOccupancyGrid(settings GridSettings) *OccupancyGrid {
	g := &OccupancyGrid{}
	g.ApplySettings(settings)
	return g
}

// ApplySettings replaces the settings and reinitializes the grid
// (reallocates and zeros).
func (g *OccupancyGrid) ApplySettings(settings GridSettings) {
	g.settings = settings
	n := int(math.Ceil(2 * settings.MapRadiusM / settings.CellSizeM))
	if n < 3 {
		n = 3
	}
	g.n = n
	g.center = (float64(n) - 1) / 2
	g.cells = make([]float64, n*n)
	diagf("grid settings applied: n=%d cell=%.3fm radius=%.1fm", n, settings.CellSizeM, settings.MapRadiusM)
}

// Reset zeros all log-odds cells without reallocating or changing settings.
func (g *OccupancyGrid) Reset() {
	for i := range g.cells {
		g.cells[i] = 0
	}
}

// Settings returns the grid's current settings.
func (g *OccupancyGrid) Settings() GridSettings {
	return g.settings
}

// worldToCell converts a world-frame (x, y) point to grid indices. ok is
// false if either component lies outside [0, n).
func (g *OccupancyGrid) worldToCell(x, y float64) (ix, iy int, ok bool) {
	ix = int(math.Floor(x/g.settings.CellSizeM + g.center))
	iy = int(math.Floor(y/g.settings.CellSizeM + g.center))
	return ix, iy, ix >= 0 && ix < g.n && iy >= 0 && iy < g.n
}

func (g *OccupancyGrid) cellCenter(ix, iy int) (x, y float64) {
	x = (float64(ix)-g.center)*g.settings.CellSizeM + g.settings.CellSizeM/2
	y = (float64(iy)-g.center)*g.settings.CellSizeM + g.settings.CellSizeM/2
	return
}

func (g *OccupancyGrid) at(ix, iy int) float64 {
	return g.cells[iy*g.n+ix]
}

func (g *OccupancyGrid) addLogOdds(ix, iy int, delta float64) {
	idx := iy*g.n + ix
	v := g.cells[idx] + delta
	if v > g.settings.MaxLogOdds {
		v = g.settings.MaxLogOdds
	}
	if v < g.settings.MinLogOdds {
		v = g.settings.MinLogOdds
	}
	g.cells[idx] = v
}

// OccupiedCells returns the world-frame centers of every cell whose
// log-odds value is positive and at or above OccupiedThreshold, scanned
// row-major. A cell at its initial zero value is never reported, so a
// freshly reset grid yields no cells for any threshold.
func (g *OccupancyGrid) OccupiedCells() []Point2 {
	var out []Point2
	for iy := 0; iy < g.n; iy++ {
		for ix := 0; ix < g.n; ix++ {
			if v := g.at(ix, iy); v > 0 && v >= g.settings.OccupiedThreshold {
				x, y := g.cellCenter(ix, iy)
				out = append(out, Point2{X: x, Y: y})
			}
		}
	}
	return out
}

func accuracyFor(s GridSettings, sensor SensorIndex) accuracyProfile {
	if sensor.IsMidRange() {
		return s.MidRangeAccuracy
	}
	return s.ShortRangeAccuracy
}

// Update applies the per-point occupied and free-space inverse-sensor-model
// updates for one frame's worth of radar returns.
func (g *OccupancyGrid) Update(points []GridPoint) {
	for _, p := range points {
		g.updateOne(p)
	}
}

func (g *OccupancyGrid) updateOne(p GridPoint) {
	if !p.Flags.Any(FlagValid | FlagSuperResolution) {
		return
	}

	sensorPos := Point2{X: p.SensorLateralM, Y: p.SensorLongitudinalM}
	detPos := Point2{X: p.X, Y: p.Y}
	relative := Point2{X: detPos.X - sensorPos.X, Y: detPos.Y - sensorPos.Y}
	relLen := math.Hypot(relative.X, relative.Y)

	rng := p.RangeM
	if rng <= 0 {
		rng = relLen
	}
	if rng <= g.settings.MinRangeM {
		return
	}

	var azimuth float64
	if relLen > 1e-3 {
		azimuth = math.Atan2(relative.X, relative.Y)
	} else {
		polarity := p.AzimuthPolarity
		if polarity == 0 {
			polarity = 1
		}
		azimuth = -p.AzimuthRawRad*polarity + p.BoresightAngleRad
	}

	acc := accuracyFor(g.settings, p.Sensor)
	plaus := plausibility(g.settings, rng, azimuth, p.AmplitudeDBsm)

	if g.settings.EnableOccupied && plaus >= g.settings.MinPlausibility {
		mappable := p.IsStationary || p.IsStatic || p.MotionStatus == 0 || g.settings.AlwaysMapDynamicDetections
		if mappable {
			if g.settings.RadarModel == ModelGaussian {
				g.addGaussian(detPos, relative, azimuth, rng, acc, plaus)
			} else {
				g.addHit(detPos, plaus)
			}
		}
	}

	if g.settings.EnableFreespace {
		g.addFreespaceCone(sensorPos, azimuth, rng, acc, p.AmplitudeDBsm)
	}
}

// plausibility computes the combined sigmoid gate for one return.
// Returns 1.0 when scaling is disabled.
func plausibility(s GridSettings, rng, azimuthRad, amplitudeDBsm float64) float64 {
	if !s.EnablePlausibilityScaling {
		return 1.0
	}
	sigRange := sigmoidGate(rng, s.RangeMidpointM, s.RangeBandwidthM, true)
	azDeg := math.Abs(wrapDegTo180(azimuthRad * 180 / math.Pi))
	sigAz := sigmoidGate(azDeg, s.AzimuthMidpointDeg, s.AzimuthBandwidthDeg, true)
	sigAmp := sigmoidGate(amplitudeDBsm, s.AmplitudeMidpointDBsm, s.AmplitudeBandwidthDBsm, false)

	var combined float64
	switch s.Combination {
	case CombineAverage:
		combined = (sigRange + sigAz + sigAmp) / 3
	case CombineProduct:
		combined = sigRange * sigAz * sigAmp
	case CombineMinimum:
		combined = math.Min(sigRange, math.Min(sigAz, sigAmp))
	default: // CombineCustom
		if rng > s.CustomCombinationRangeThresholdM {
			combined = math.Min(sigRange, sigAz) * sigAmp
		} else {
			combined = sigRange * sigAmp
		}
	}
	return clamp01(combined)
}

func sigmoidGate(value, midpoint, bandwidth float64, decreasing bool) float64 {
	var g float64
	if bandwidth > 0 {
		g = 4.39444915 / bandwidth
	}
	if decreasing {
		g = -g
	}
	return 1 / (1 + math.Exp(-g*(value-midpoint)))
}

func wrapDegTo180(deg float64) float64 {
	for deg > 180 {
		deg -= 360
	}
	for deg < -180 {
		deg += 360
	}
	return deg
}

// addGaussian applies the Gaussian occupied-cell update over the detection's
// local-frame footprint.
func (g *OccupancyGrid) addGaussian(detPos, relative Point2, azimuth, rng float64, acc accuracyProfile, plaus float64) {
	sigmaLat := math.Max(rng*math.Tan(acc.AngleAccuracyRad), g.settings.CellSizeM/2)
	sigmaLon := math.Max(acc.RangeAccuracyM, g.settings.CellSizeM/2)
	radius := math.Max(g.settings.CellSizeM, 3*math.Max(sigmaLat, sigmaLon))

	relLen := math.Hypot(relative.X, relative.Y)
	var forward Point2
	if relLen > 1e-9 {
		forward = Point2{X: relative.X / relLen, Y: relative.Y / relLen}
	} else {
		forward = Point2{X: math.Sin(azimuth), Y: math.Cos(azimuth)}
	}
	right := Point2{X: forward.Y, Y: -forward.X}

	minX, minY := detPos.X-radius, detPos.Y-radius
	maxX, maxY := detPos.X+radius, detPos.Y+radius
	ixMin, iyMin, _ := g.worldToCell(minX, minY)
	ixMax, iyMax, _ := g.worldToCell(maxX, maxY)
	if ixMin > ixMax {
		ixMin, ixMax = ixMax, ixMin
	}
	if iyMin > iyMax {
		iyMin, iyMax = iyMax, iyMin
	}
	ixMin = clampInt(ixMin, 0, g.n-1)
	ixMax = clampInt(ixMax, 0, g.n-1)
	iyMin = clampInt(iyMin, 0, g.n-1)
	iyMax = clampInt(iyMax, 0, g.n-1)

	for iy := iyMin; iy <= iyMax; iy++ {
		for ix := ixMin; ix <= ixMax; ix++ {
			cx, cy := g.cellCenter(ix, iy)
			dx := cx - detPos.X
			dy := cy - detPos.Y
			lon := dx*forward.X + dy*forward.Y
			lat := dx*right.X + dy*right.Y
			exponent := -0.5 * (lon*lon/(sigmaLon*sigmaLon) + lat*lat/(sigmaLat*sigmaLat))
			prob := 0.5 + g.settings.MaxAdditiveProbability*plaus*math.Exp(exponent)
			prob = clampRange(prob, 1e-3, 1-1e-3)
			g.addLogOdds(ix, iy, math.Log(prob/(1-prob)))
		}
	}
}

// addHit applies the single-cell hit-model occupied update.
func (g *OccupancyGrid) addHit(detPos Point2, plaus float64) {
	ix, iy, ok := g.worldToCell(detPos.X, detPos.Y)
	if !ok {
		return
	}
	g.addLogOdds(ix, iy, g.settings.HitIncrement*plaus)
}

// addFreespaceCone applies the negative log-odds update over the triangular
// free-space region between the sensor and the target, minus the range
// uncertainty margin.
func (g *OccupancyGrid) addFreespaceCone(sensorPos Point2, azimuth, rng float64, acc accuracyProfile, amplitudeDBsm float64) {
	if rng > g.settings.MaxFreespaceRangeM {
		return
	}
	fsRange := rng - g.settings.FreespaceRangeSigmaFactor*math.Max(0, acc.RangeAccuracyM)
	if fsRange <= 0 {
		return
	}
	fsPlaus := plausibility(g.settings, math.Min(fsRange, 15), azimuth, amplitudeDBsm)
	if fsPlaus < g.settings.MinPlausibility {
		return
	}

	left := Point2{
		X: sensorPos.X + fsRange*math.Sin(azimuth+g.settings.FreespaceAngleAccuracyRad),
		Y: sensorPos.Y + fsRange*math.Cos(azimuth+g.settings.FreespaceAngleAccuracyRad),
	}
	right := Point2{
		X: sensorPos.X + fsRange*math.Sin(azimuth-g.settings.FreespaceAngleAccuracyRad),
		Y: sensorPos.Y + fsRange*math.Cos(azimuth-g.settings.FreespaceAngleAccuracyRad),
	}

	delta := -math.Abs(g.settings.MissDecrement) * fsPlaus

	minX := min3(sensorPos.X, left.X, right.X)
	maxX := max3(sensorPos.X, left.X, right.X)
	minY := min3(sensorPos.Y, left.Y, right.Y)
	maxY := max3(sensorPos.Y, left.Y, right.Y)
	ixMin, iyMin, _ := g.worldToCell(minX, minY)
	ixMax, iyMax, _ := g.worldToCell(maxX, maxY)
	if ixMin > ixMax {
		ixMin, ixMax = ixMax, ixMin
	}
	if iyMin > iyMax {
		iyMin, iyMax = iyMax, iyMin
	}
	ixMin = clampInt(ixMin, 0, g.n-1)
	ixMax = clampInt(ixMax, 0, g.n-1)
	iyMin = clampInt(iyMin, 0, g.n-1)
	iyMax = clampInt(iyMax, 0, g.n-1)

	for iy := iyMin; iy <= iyMax; iy++ {
		for ix := ixMin; ix <= ixMax; ix++ {
			cx, cy := g.cellCenter(ix, iy)
			if pointInTriangle(Point2{X: cx, Y: cy}, sensorPos, left, right) {
				g.addLogOdds(ix, iy, delta)
			}
		}
	}
}

func pointInTriangle(p, a, b, c Point2) bool {
	d1 := cross2(b.X-a.X, b.Y-a.Y, p.X-a.X, p.Y-a.Y)
	d2 := cross2(c.X-b.X, c.Y-b.Y, p.X-b.X, p.Y-b.Y)
	d3 := cross2(a.X-c.X, a.Y-c.Y, p.X-c.X, p.Y-c.Y)
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}

func cross2(ax, ay, bx, by float64) float64 {
	return ax*by - ay*bx
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min3(a, b, c float64) float64 { return math.Min(a, math.Min(b, c)) }
func max3(a, b, c float64) float64 { return math.Max(a, math.Max(b, c)) }
