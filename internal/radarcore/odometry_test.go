package radarcore

import (
	"math"
	"testing"
)

func TestOdometryTwoSampleExactFit(t *testing.T) {
	calib := RadarCalibration{Polarity: 1, ISO: RadarPose{OrientationRad: 0}}
	detections := []EnhancedDetection{
		{RawReturn: RawReturn{AzimuthRawRad: 0, RangeRateMs: -5, Flags: FlagValid}},
		{RawReturn: RawReturn{AzimuthRawRad: math.Pi / 2, RangeRateMs: 2, Flags: FlagValid}},
	}
	settings := OdometrySettings{MaxIterations: 10, MinInliers: 2, InlierThresholdMps: 0.2, Seed: 42}
	est := NewOdometryEstimator(settings)

	result := est.Estimate(detections, calib, 1000)

	if !result.Valid {
		t.Fatalf("expected valid estimate, got %+v", result)
	}
	if math.Abs(result.VLon-5) >= 1e-2 {
		t.Errorf("vLon = %v, want ~5", result.VLon)
	}
	if math.Abs(math.Abs(result.VLat)-2) >= 1e-2 {
		t.Errorf("|vLat| = %v, want ~2", math.Abs(result.VLat))
	}
	if result.YawRate != 0 {
		t.Errorf("yawRate = %v, want 0", result.YawRate)
	}
}

func TestOdometryZeroDetectionsInvalid(t *testing.T) {
	est := NewOdometryEstimator(DefaultOdometrySettings())
	result := est.Estimate(nil, RadarCalibration{}, 0)
	if result.Valid {
		t.Fatalf("expected invalid estimate with zero detections, got %+v", result)
	}
	if est.LatestEstimate().Valid {
		t.Fatalf("LatestEstimate should also report invalid")
	}
}

func TestOdometrySettingsSanitize(t *testing.T) {
	s := OdometrySettings{MaxIterations: 0, InlierThresholdMps: 0.01}.Sanitize()
	if s.MaxIterations < 1 {
		t.Errorf("MaxIterations = %d, want >= 1", s.MaxIterations)
	}
	if s.InlierThresholdMps < 0.05 {
		t.Errorf("InlierThresholdMps = %v, want >= 0.05", s.InlierThresholdMps)
	}
}

func TestOdometryUnderdeterminedKeepsBestPair(t *testing.T) {
	calib := RadarCalibration{Polarity: 1}
	// Only two samples and a high min_inliers requirement: RANSAC cannot
	// reach min_inliers, so the estimate must report valid=false while still
	// carrying the best pair's inlier count.
	detections := []EnhancedDetection{
		{RawReturn: RawReturn{AzimuthRawRad: 0, RangeRateMs: -3, Flags: FlagValid}},
		{RawReturn: RawReturn{AzimuthRawRad: math.Pi / 2, RangeRateMs: 1, Flags: FlagValid}},
	}
	settings := OdometrySettings{MaxIterations: 10, MinInliers: 6, InlierThresholdMps: 0.2, Seed: 1}
	est := NewOdometryEstimator(settings)
	result := est.Estimate(detections, calib, 42)
	if result.Valid {
		t.Fatalf("expected valid=false when inliers < min_inliers, got %+v", result)
	}
	if result.InlierCount != 2 {
		t.Errorf("InlierCount = %d, want 2 (the best pair's inliers)", result.InlierCount)
	}
	if math.Abs(result.VLon-3) >= 1e-2 || math.Abs(result.VLat-1) >= 1e-2 {
		t.Errorf("(vLon, vLat) = (%v, %v), want the best pair's solve (~3, ~1)", result.VLon, result.VLat)
	}
}
