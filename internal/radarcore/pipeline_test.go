package radarcore

import "testing"

func testVehicleParams() VehicleParameters {
	var vp VehicleParameters
	for i := range vp.Calibrations {
		vp.Calibrations[i] = RadarCalibration{Polarity: 1, RangeRateAccuracyMps: 0.3}
	}
	vp.Contour = []Point2{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}
	return vp
}

func TestPipelineUninitializedProducesNoOutput(t *testing.T) {
	p := NewPipeline()
	out, est := p.ProcessCornerDetections(FrontLeft, RawCornerDetections{
		Header: RawDetectionsHeader{TimestampUs: 1000},
		Returns: []RawReturn{{Flags: FlagValid, RangeM: 1}},
	})
	if out != nil || est != nil {
		t.Fatalf("expected no output before Initialize, got detections=%v est=%v", out, est)
	}
}

func TestPipelineEmitsOneDetectionPerRawSlot(t *testing.T) {
	p := NewPipeline()
	p.Initialize(testVehicleParams())

	raw := RawCornerDetections{
		Sensor: FrontLeft,
		Header: RawDetectionsHeader{TimestampUs: 1000},
		Returns: []RawReturn{
			{Flags: FlagValid, RangeM: 1, LongitudinalOffsetM: 1},
			{Flags: FlagValid, RangeM: 2, LongitudinalOffsetM: 2},
		},
	}
	out, _ := p.ProcessCornerDetections(FrontLeft, raw)
	if len(out) != len(raw.Returns) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(raw.Returns))
	}
	for _, d := range out {
		if d.IsStatic != (d.IsStationary && !d.IsMoveable) {
			t.Errorf("IsStatic invariant violated: %+v", d)
		}
	}
}

func TestPipelineMonotonicTimestampDiscipline(t *testing.T) {
	// Scenario 6: feed t=1000 then t=900. The second frame must not advance
	// last_timestamp_us and must increment consecutive_invalid_count.
	p := NewPipeline()
	p.Initialize(testVehicleParams())

	frame := func(t int64) RawCornerDetections {
		return RawCornerDetections{
			Sensor:  FrontLeft,
			Header:  RawDetectionsHeader{TimestampUs: t},
			Returns: []RawReturn{{Flags: FlagValid, RangeM: 1}},
		}
	}

	p.ProcessCornerDetections(FrontLeft, frame(1000))
	if p.liveness[FrontLeft].lastTimestampUs != 1000 {
		t.Fatalf("lastTimestampUs = %d, want 1000", p.liveness[FrontLeft].lastTimestampUs)
	}

	p.ProcessCornerDetections(FrontLeft, frame(900))
	if p.liveness[FrontLeft].lastTimestampUs != 1000 {
		t.Errorf("lastTimestampUs changed to %d on a non-monotonic frame", p.liveness[FrontLeft].lastTimestampUs)
	}
	if p.liveness[FrontLeft].consecutiveInvalidCount != 1 {
		t.Errorf("consecutiveInvalidCount = %d, want 1", p.liveness[FrontLeft].consecutiveInvalidCount)
	}
}

// TestPipelineCornerOdometryFeedbackSurvivesNonMonotonicFrame exercises the
// same liveness/feedback split as the front path: a non-monotonic corner
// frame must still feed the estimator, even though the frame's own odometry
// result is suppressed from the caller-visible return value.
func TestPipelineCornerOdometryFeedbackSurvivesNonMonotonicFrame(t *testing.T) {
	p := NewPipeline()
	p.Initialize(testVehicleParams())

	frame := func(t int64) RawCornerDetections {
		return RawCornerDetections{
			Sensor:  FrontLeft,
			Header:  RawDetectionsHeader{TimestampUs: t},
			Returns: []RawReturn{{Flags: FlagValid, RangeM: 1, LongitudinalOffsetM: 1}},
		}
	}

	if _, est := p.ProcessCornerDetections(FrontLeft, frame(1000)); est == nil {
		t.Fatalf("expected a reported estimate on the first, live frame")
	}

	_, est := p.ProcessCornerDetections(FrontLeft, frame(900)) // non-monotonic
	if est != nil {
		t.Errorf("expected no reported estimate on a non-monotonic frame, got %+v", est)
	}
	if p.odometry.LatestEstimate().TimestampUs != 900 {
		t.Errorf("odometry estimator was not fed on the non-monotonic frame: LatestEstimate().TimestampUs = %d, want 900",
			p.odometry.LatestEstimate().TimestampUs)
	}
}

func TestPipelineTrackFusionDropsInvalid(t *testing.T) {
	p := NewPipeline()
	p.Initialize(testVehicleParams())

	out := p.ProcessTrackFusion(RawTrackFusion{
		TimestampUs: 500,
		Tracks: []RawTrack{
			{ID: 1, Status: TrackInvalid},
			{ID: 2, Status: TrackUpdated, LengthM: 0, WidthM: 0, ObjectClassification: ClassCar},
		},
	})
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].HeightM != 1.8 {
		t.Errorf("HeightM = %v, want 1.8 (imputed for ClassCar)", out[0].HeightM)
	}
	if out[0].LengthM != minTrackExtentM || out[0].WidthM != minTrackExtentM {
		t.Errorf("extents = (%v, %v), want clamped to %v", out[0].LengthM, out[0].WidthM, minTrackExtentM)
	}
}

func TestPipelineProcessFrontDetectionsSplitsShortAndLong(t *testing.T) {
	p := NewPipeline()
	p.Initialize(testVehicleParams())

	short := RawFrontDetections{
		Header:  RawDetectionsHeader{TimestampUs: 1000},
		Returns: []RawReturn{{Flags: FlagValid, RangeM: 1, LongitudinalOffsetM: 1}},
	}
	long := RawFrontDetections{
		Header:  RawDetectionsHeader{TimestampUs: 1000},
		Returns: []RawReturn{{Flags: FlagValid, RangeM: 2, LongitudinalOffsetM: 2}, {Flags: FlagValid, RangeM: 3, LongitudinalOffsetM: 3}},
	}
	shortOut, longOut, est := p.ProcessFrontDetections(1000, short, long)
	if len(shortOut) != len(short.Returns) {
		t.Fatalf("len(shortOut) = %d, want %d", len(shortOut), len(short.Returns))
	}
	if len(longOut) != len(long.Returns) {
		t.Fatalf("len(longOut) = %d, want %d", len(longOut), len(long.Returns))
	}
	if est == nil {
		t.Fatalf("expected a reported odometry estimate on the first, live frame")
	}
}

// TestPipelineFrontOdometryFeedbackSurvivesNonMonotonicFrame exercises the
// liveness/feedback split: a non-monotonic front frame must still feed the
// estimator (so subsequent classification keeps tracking real ego motion),
// even though the frame's own odometry result is suppressed from the
// caller-visible return value.
func TestPipelineFrontOdometryFeedbackSurvivesNonMonotonicFrame(t *testing.T) {
	p := NewPipeline()
	p.Initialize(testVehicleParams())

	front := func(t int64) (RawFrontDetections, RawFrontDetections) {
		h := RawDetectionsHeader{TimestampUs: t}
		return RawFrontDetections{Header: h, Returns: []RawReturn{{Flags: FlagValid, RangeM: 1, LongitudinalOffsetM: 1}}},
			RawFrontDetections{Header: h, Returns: []RawReturn{{Flags: FlagValid, RangeM: 2, LongitudinalOffsetM: 2}}}
	}

	s1, l1 := front(1000)
	if _, _, est := p.ProcessFrontDetections(1000, s1, l1); est == nil {
		t.Fatalf("expected a reported estimate on the first, live frame")
	}

	s2, l2 := front(900) // non-monotonic: both liveShort and liveLong go false
	_, _, est := p.ProcessFrontDetections(900, s2, l2)
	if est != nil {
		t.Errorf("expected no reported estimate on a non-monotonic frame, got %+v", est)
	}
	if p.odometry.LatestEstimate().TimestampUs != 900 {
		t.Errorf("odometry estimator was not fed on the non-monotonic frame: LatestEstimate().TimestampUs = %d, want 900",
			p.odometry.LatestEstimate().TimestampUs)
	}
}

func TestPipelineAssociationAfterTrackFusion(t *testing.T) {
	p := NewPipeline()
	p.Initialize(testVehicleParams())

	p.ProcessTrackFusion(RawTrackFusion{
		TimestampUs: 0,
		Tracks: []RawTrack{
			{ID: 0, LongitudinalM: 1, LateralM: 1, LengthM: 4, WidthM: 2, Status: TrackUpdated},
		},
	})

	out, _ := p.ProcessCornerDetections(FrontLeft, RawCornerDetections{
		Sensor: FrontLeft,
		Header: RawDetectionsHeader{TimestampUs: 1000},
		Returns: []RawReturn{
			{Flags: FlagValid, LongitudinalOffsetM: 1, LateralOffsetM: 1},
		},
	})
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].FusedTrackIndex != 0 {
		t.Errorf("FusedTrackIndex = %d, want 0", out[0].FusedTrackIndex)
	}
}
