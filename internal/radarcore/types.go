// Package radarcore implements the multi-sensor radar processing pipeline:
// raw detection mapping, stationarity classification, track association,
// ego-motion odometry, log-odds occupancy mapping, and the virtual ring
// boundary estimator. All types in this package describe per-frame values;
// none of it owns a background thread.
package radarcore

import "math"

// SensorIndex identifies one of the six radar mount positions. The numeric
// values are normative and appear on the wire in the detection text stream.
type SensorIndex int

const (
	FrontLeft  SensorIndex = 0
	FrontRight SensorIndex = 1
	RearLeft   SensorIndex = 2
	RearRight  SensorIndex = 3
	FrontShort SensorIndex = 4
	FrontLong  SensorIndex = 5

	// SensorCount is the number of defined sensor slots.
	SensorCount = 6
)

// IsMidRange reports whether the sensor is the front mid-range unit
// (FrontShort or FrontLong) as opposed to a short-range corner unit.
func (s SensorIndex) IsMidRange() bool {
	return s == FrontShort || s == FrontLong
}

// Valid reports whether s is a defined sensor slot.
func (s SensorIndex) Valid() bool {
	return s >= FrontLeft && s < SensorCount
}

// DetectionFlags packs the five per-return boolean flags into one bitset.
type DetectionFlags uint8

const (
	FlagValid              DetectionFlags = 1 << 0
	FlagSuperResolution    DetectionFlags = 1 << 1
	FlagNearTarget         DetectionFlags = 1 << 2
	FlagHostVehicleClutter DetectionFlags = 1 << 3
	FlagMultiBounce        DetectionFlags = 1 << 4
)

// Has reports whether all bits in mask are set in f.
func (f DetectionFlags) Has(mask DetectionFlags) bool {
	return f&mask == mask
}

// Any reports whether any bit in mask is set in f.
func (f DetectionFlags) Any(mask DetectionFlags) bool {
	return f&mask != 0
}

// TrackStatus mirrors the upstream fusion track lifecycle state.
type TrackStatus int

const (
	TrackInvalid TrackStatus = iota
	TrackMerged
	TrackNew
	TrackNewCoasted
	TrackNewUpdated
	TrackUpdated
	TrackCoasted
)

// TrackObjectClass is the upstream object classifier's output label.
type TrackObjectClass int

const (
	ClassUnknown    TrackObjectClass = 0
	ClassCar        TrackObjectClass = 1
	ClassMotorcycle TrackObjectClass = 2
	ClassTruck      TrackObjectClass = 3
	ClassBicycle    TrackObjectClass = 9
	ClassPedestrian TrackObjectClass = 10
	ClassAnimal     TrackObjectClass = 12
)

// Point2 is a plain 2-D point; the frame (VCS or ISO) is determined by context.
type Point2 struct {
	X float64
	Y float64
}

// RadarPose is one of the two (longitudinal, lateral, height, orientation)
// 4-tuples carried by a RadarCalibration.
type RadarPose struct {
	LongitudinalM  float64
	LateralM       float64
	HeightM        float64
	OrientationRad float64
}

// DeriveISOPose computes the ISO 8855 pose from a VCS pose, per the fixed
// vehicle geometry offset from rear axle to front bumper.
func DeriveISOPose(vcs RadarPose, distRearAxleToFrontBumperM float64) RadarPose {
	return RadarPose{
		LongitudinalM:  vcs.LongitudinalM + distRearAxleToFrontBumperM,
		LateralM:       -vcs.LateralM,
		HeightM:        vcs.HeightM,
		OrientationRad: -vcs.OrientationRad,
	}
}

// RadarCalibration is the fixed, per-sensor mounting and accuracy bundle.
type RadarCalibration struct {
	VCS                  RadarPose
	ISO                  RadarPose
	Polarity             float64 // -1 or +1
	RangeRateAccuracyMps float64
	AzimuthAccuracyRad   float64
	HorizontalFovRad     float64
}

// VehicleParameters is the immutable calibration bundle loaded once per run.
type VehicleParameters struct {
	DistRearAxleToFrontBumperM float64
	CornerHwDelayS             float64
	FrontCenterHwDelayS        float64
	Calibrations               [SensorCount]RadarCalibration
	// Contour is the ISO-frame vehicle outline polyline, ordered, >= 3 points.
	Contour []Point2
}

// Calibration returns the calibration bundle for sensor s, or the zero value
// with ok=false if s is out of range.
func (v *VehicleParameters) Calibration(s SensorIndex) (RadarCalibration, bool) {
	if !s.Valid() {
		return RadarCalibration{}, false
	}
	return v.Calibrations[s], true
}

// RawDetectionsHeader carries the per-frame fields common to every return in
// a corner or front detection frame.
type RawDetectionsHeader struct {
	TimestampUs         int64
	HorizontalFovRad    float64
	MaximumRangeM       float64
	AzimuthPolarity     float64
	BoresightAngleRad   float64
	SensorLongitudinalM float64
	SensorLateralM      float64
}

// RawReturn is one per-return radar measurement, shared by corner and front
// detection frames.
type RawReturn struct {
	RangeM               float64
	RangeRateMs          float64
	RangeRateRawMs       float64
	AzimuthRawRad        float64
	AzimuthRad           float64
	AmplitudeDBsm        float64
	LongitudinalOffsetM  float64
	LateralOffsetM       float64
	MotionStatus         int
	Flags                DetectionFlags
}

// RawCornerDetections is one short-range corner frame, nominally 64 returns.
type RawCornerDetections struct {
	Sensor  SensorIndex
	Header  RawDetectionsHeader
	Returns []RawReturn
}

// RawFrontDetections is the shared front mid-range frame, nominally 128
// returns split 64 short + 64 long by the caller before reaching the pipeline
// (see Pipeline.ProcessFrontDetections).
type RawFrontDetections struct {
	Header  RawDetectionsHeader
	Returns []RawReturn
}

// EnhancedDetection is a RawReturn augmented with classification and
// association results. A null slot (Flags==0 && RangeM==0 && both offsets==0)
// is never emitted downstream by the pipeline.
type EnhancedDetection struct {
	RawReturn

	FusedTrackIndex       int // -1 if unassociated, else [0, 95]
	IsStationary          bool
	IsMoveable            bool
	IsStatic              bool // IsStationary && !IsMoveable
	StationaryProbability float64
}

// IsNullSlot reports whether d represents an empty raw slot that should be
// dropped before emission.
func (d EnhancedDetection) IsNullSlot() bool {
	return d.Flags == 0 && d.RangeM == 0 && d.LongitudinalOffsetM == 0 && d.LateralOffsetM == 0
}

// RawTrackFusion is one frame of the upstream fused-track array, nominally 96
// slots.
type RawTrackFusion struct {
	TimestampUs int64
	Tracks      []RawTrack
}

// FrameTimestampUs satisfies streamsrc's TimestampedFrame so a track-fusion
// frame can be merged with detection frames in arrival order.
func (r RawTrackFusion) FrameTimestampUs() int64 { return r.TimestampUs }

// RawTrack is one upstream track slot.
type RawTrack struct {
	ID                 int
	LongitudinalM       float64
	LateralM            float64
	VelocityLonMps       float64
	VelocityLatMps       float64
	AccelLonMps2         float64
	AccelLatMps2         float64
	HeadingRad           float64
	HeadingRateRps       float64
	LengthM              float64
	WidthM               float64
	HeightM              float64
	ProbOfDetection      float64
	Moving               bool
	Stationary           bool
	Moveable             bool
	Vehicle              bool
	Status               TrackStatus
	ObjectClassification TrackObjectClass
	ClassConfidence      float64
}

// EnhancedTrack is one surviving (status != TrackInvalid) track record.
type EnhancedTrack struct {
	RawTrack
}

// imputedHeight fills in a class-typical height when the upstream value is
// zero, per the default-by-class table.
func imputedHeight(class TrackObjectClass, height float64) float64 {
	if height != 0 {
		return height
	}
	switch class {
	case ClassCar, ClassMotorcycle, ClassBicycle:
		return 1.8
	case ClassTruck:
		return 3.8
	default:
		return 0.05
	}
}

const minTrackExtentM = 0.25

func clampExtent(v float64) float64 {
	return math.Max(v, minTrackExtentM)
}

func newEnhancedTrack(raw RawTrack) EnhancedTrack {
	raw.HeightM = imputedHeight(raw.ObjectClassification, raw.HeightM)
	raw.LengthM = clampExtent(raw.LengthM)
	raw.WidthM = clampExtent(raw.WidthM)
	return EnhancedTrack{RawTrack: raw}
}

// VehicleMotionState is the ego vehicle's planar velocity and yaw rate,
// supplied externally or fed back from the odometry estimator.
type VehicleMotionState struct {
	VLonMps        float64
	VLatMps        float64
	YawRateRps     float64
	VarVLon        float64
	VarVLat        float64
	VarYawRate     float64
}

// OdometryEstimate is the odometry estimator's per-frame output.
type OdometryEstimate struct {
	TimestampUs int64
	VLon        float64
	VLat        float64
	YawRate     float64 // always 0 from this estimator
	Covariance  [3]float64 // diagonal only: var(vLon), var(vLat), var(yawRate)
	InlierCount int
	Valid       bool
}
