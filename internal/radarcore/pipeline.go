package radarcore

// sensorLiveness tracks the per-sensor monotonic-timestamp state used to
// gate "live" frame processing and the valid_odometry signal.
type sensorLiveness struct {
	initialized             bool
	lastTimestampUs         int64
	consecutiveInvalidCount int
}

// observe applies the §4.1 liveness rule and reports whether the incoming
// frame is live.
func (s *sensorLiveness) observe(timestampUs int64) bool {
	if !s.initialized {
		s.initialized = true
		s.lastTimestampUs = timestampUs
		s.consecutiveInvalidCount = 0
		return true
	}
	if timestampUs > s.lastTimestampUs {
		s.lastTimestampUs = timestampUs
		s.consecutiveInvalidCount = 0
		return true
	}
	s.consecutiveInvalidCount++
	return false
}

// Pipeline is the per-run mapping/classification/association engine. It owns
// per-sensor liveness state and the most recent track snapshot. One Pipeline
// instance is the unit of mutual exclusion; it is never shared across
// threads.
type Pipeline struct {
	initialized bool
	vehicle     VehicleParameters

	motion             VehicleMotionState
	usesExternalMotion bool

	liveness [SensorCount]sensorLiveness

	tracks            []trackState
	tracksTimestampUs int64

	odometry *OdometryEstimator

	stationarySigma float64
	boundingBoxScale float64
	rangeRateSigma   float64
}

// NewPipeline constructs an uninitialized pipeline. Call Initialize before
// processing any frame.
func NewPipeline() *Pipeline {
	return &Pipeline{
		odometry:         NewOdometryEstimator(DefaultOdometrySettings()),
		stationarySigma:  DefaultStationarySigma,
		boundingBoxScale: DefaultBoundingBoxScale,
		rangeRateSigma:   DefaultRangeRateSigma,
	}
}

// Initialize loads the immutable vehicle calibration bundle. Frames
// received before Initialize produce no output.
func (p *Pipeline) Initialize(vehicle VehicleParameters) {
	p.vehicle = vehicle
	p.initialized = true
	diagf("pipeline initialized with %d sensors, %d contour points", SensorCount, len(vehicle.Contour))
}

// Initialized reports whether Initialize has been called.
func (p *Pipeline) Initialized() bool {
	return p.initialized
}

// UpdateVehicleState supplies an externally computed motion state. Once
// called, the pipeline no longer feeds its own odometry estimate back into
// the motion state.
func (p *Pipeline) UpdateVehicleState(state VehicleMotionState) {
	p.motion = state
	p.usesExternalMotion = true
}

// MotionState returns the pipeline's current ego motion state.
func (p *Pipeline) MotionState() VehicleMotionState {
	return p.motion
}

// SetAssociationTuning overrides the stationarity sigma, bounding-box scale,
// and range-rate sigma used during classification and association. Zero
// values fall back to their package defaults.
func (p *Pipeline) SetAssociationTuning(stationarySigma, boundingBoxScale, rangeRateSigma float64) {
	p.stationarySigma = stationarySigma
	p.boundingBoxScale = boundingBoxScale
	p.rangeRateSigma = rangeRateSigma
}

// SetOdometryEstimator replaces the pipeline's internal odometry estimator,
// used by the feedback loop for corner/front-short frames.
func (p *Pipeline) SetOdometryEstimator(o *OdometryEstimator) {
	p.odometry = o
}

func hwDelayUs(seconds float64) int64 {
	us := int64(seconds * 1e6)
	if us < 0 {
		return 0
	}
	return us
}

func observationTimeUs(frameTimestampUs, hwDelaySeconds float64) int64 {
	t := int64(frameTimestampUs) - hwDelayUs(hwDelaySeconds)
	if t < 0 {
		return 0
	}
	return t
}

// mapEnhanced copies a raw return through to an enhanced detection and runs
// stationarity classification against the owning sensor's calibration.
func (p *Pipeline) mapEnhanced(raw RawReturn, calib RadarCalibration) EnhancedDetection {
	d := EnhancedDetection{RawReturn: raw}
	classifyStationarity(&d, calib, p.motion, p.stationarySigma)
	return d
}

func dropNullSlots(in []EnhancedDetection) []EnhancedDetection {
	out := in[:0]
	for _, d := range in {
		if d.IsNullSlot() {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ProcessCornerDetections maps, classifies, and associates one corner
// sensor's frame. It returns the enhanced detections (nil if the pipeline is
// not yet initialized) and the odometry estimate produced as feedback. The
// estimate is nil when an external motion state is in use or when the frame
// is not live; a non-live frame still feeds the estimator.
func (p *Pipeline) ProcessCornerDetections(sensor SensorIndex, raw RawCornerDetections) ([]EnhancedDetection, *OdometryEstimate) {
	if !p.initialized {
		return nil, nil
	}
	if !sensor.Valid() {
		return nil, nil
	}
	calib, _ := p.vehicle.Calibration(sensor)

	live := p.liveness[sensor].observe(raw.Header.TimestampUs)
	if !live {
		opsf("sensor %d: non-monotonic timestamp %d (last %d)", sensor, raw.Header.TimestampUs, p.liveness[sensor].lastTimestampUs)
	}

	enhanced := make([]EnhancedDetection, len(raw.Returns))
	for i, r := range raw.Returns {
		enhanced[i] = p.mapEnhanced(r, calib)
	}

	tObs := observationTimeUs(float64(raw.Header.TimestampUs), p.vehicle.CornerHwDelayS)
	p.associateAll(enhanced, calib, tObs)

	var est *OdometryEstimate
	if !p.usesExternalMotion {
		fed := p.feedOdometry(enhanced, calib, raw.Header.TimestampUs)
		if live {
			est = fed
		}
	}

	return dropNullSlots(enhanced), est
}

// ProcessFrontDetections maps the combined front mid-range frame (returns[0:64]
// short, returns[64:128] long — the caller is expected to have split the raw
// 128-return stream already) and associates both halves against the track
// snapshot. valid_odometry is gated on both short and long being live.
func (p *Pipeline) ProcessFrontDetections(timestampUs int64, short, long RawFrontDetections) (shortOut, longOut []EnhancedDetection, odometry *OdometryEstimate) {
	if !p.initialized {
		return nil, nil, nil
	}
	calibShort, _ := p.vehicle.Calibration(FrontShort)
	calibLong, _ := p.vehicle.Calibration(FrontLong)

	liveShort := p.liveness[FrontShort].observe(timestampUs)
	liveLong := p.liveness[FrontLong].observe(timestampUs)
	if !liveShort || !liveLong {
		opsf("front sensor: non-monotonic timestamp %d (short live=%v long live=%v)", timestampUs, liveShort, liveLong)
	}

	shortEnh := make([]EnhancedDetection, len(short.Returns))
	for i, r := range short.Returns {
		shortEnh[i] = p.mapEnhanced(r, calibShort)
	}
	longEnh := make([]EnhancedDetection, len(long.Returns))
	for i, r := range long.Returns {
		longEnh[i] = p.mapEnhanced(r, calibLong)
	}

	tObs := observationTimeUs(float64(timestampUs), p.vehicle.FrontCenterHwDelayS)
	p.associateAll(shortEnh, calibShort, tObs)
	p.associateAll(longEnh, calibLong, tObs)

	if !p.usesExternalMotion {
		est := p.feedOdometry(shortEnh, calibShort, timestampUs)
		if liveShort && liveLong {
			odometry = est
		}
	}

	return dropNullSlots(shortEnh), dropNullSlots(longEnh), odometry
}

// associateAll runs track association over a batch of enhanced detections
// if the pipeline holds a non-empty track snapshot.
func (p *Pipeline) associateAll(detections []EnhancedDetection, calib RadarCalibration, tObsUs int64) {
	if len(p.tracks) == 0 {
		return
	}
	dtSeconds := float64(tObsUs-p.tracksTimestampUs) / 1e6
	if dtSeconds < 0 {
		dtSeconds = 0
	}
	boxes := make([]orientedBox, len(p.tracks))
	for i, ts := range p.tracks {
		boxes[i] = predictedBox(ts, dtSeconds, p.boundingBoxScale)
	}
	for i := range detections {
		associateDetection(&detections[i], calib, p.motion, p.tracks, boxes, p.rangeRateSigma)
	}
}

func (p *Pipeline) feedOdometry(detections []EnhancedDetection, calib RadarCalibration, timestampUs int64) *OdometryEstimate {
	est := p.odometry.Estimate(detections, calib, timestampUs)
	if est.Valid {
		p.motion.VLonMps = est.VLon
		p.motion.VLatMps = est.VLat
		p.motion.YawRateRps = est.YawRate
	} else {
		opsf("odometry underdetermined at t=%d (inliers=%d)", timestampUs, est.InlierCount)
	}
	return &est
}

// ProcessTrackFusion replaces the cached track snapshot wholesale and
// returns the surviving (status != TrackInvalid) tracks as EnhancedTracks. A
// detection frame never mutates this snapshot.
func (p *Pipeline) ProcessTrackFusion(raw RawTrackFusion) []EnhancedTrack {
	tracks := make([]trackState, 0, len(raw.Tracks))
	out := make([]EnhancedTrack, 0, len(raw.Tracks))
	for _, rt := range raw.Tracks {
		if rt.Status == TrackInvalid {
			continue
		}
		et := newEnhancedTrack(rt)
		out = append(out, et)
		tracks = append(tracks, trackState{
			PositionLon:  et.LongitudinalM,
			PositionLat:  et.LateralM,
			VelocityLon:  et.VelocityLonMps,
			VelocityLat:  et.VelocityLatMps,
			AccelLon:     et.AccelLonMps2,
			AccelLat:     et.AccelLatMps2,
			LengthM:      et.LengthM,
			WidthM:       et.WidthM,
			HeightM:      et.HeightM,
			HeadingRad:   et.HeadingRad,
			HeadingRate:  et.HeadingRateRps,
			IsStationary: et.Stationary,
			IsMoveable:   et.Moveable,
		})
	}
	p.tracks = tracks
	p.tracksTimestampUs = raw.TimestampUs
	diagf("track snapshot replaced: %d live of %d reported", len(out), len(raw.Tracks))
	return out
}
