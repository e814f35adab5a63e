package radarcore

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func squareContour() []Point2 {
	return []Point2{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}
}

func TestRingFromDetection(t *testing.T) {
	ring := NewVirtualRing()
	ring.SetSegmentCount(8)
	ring.SetVehicleContour(squareContour())

	ring.Update([]Point2{{X: 5, Y: 0}}, nil)

	points := ring.Ring(10.0)
	if len(points) != 8 {
		t.Fatalf("len(points) = %d, want 8", len(points))
	}

	// The detection sits at angle 0; find the segment whose angular bin
	// contains it and check its ring point lands near range 5.
	idx := ring.segmentIndex(0)
	mag := math.Hypot(points[idx].X-ring.VehicleCenter().X, points[idx].Y-ring.VehicleCenter().Y)
	if math.Abs(mag-5.0) >= 0.1 {
		t.Errorf("segment %d magnitude = %v, want ~5.0", idx, mag)
	}
}

func TestRingEmptyBeforeContour(t *testing.T) {
	ring := NewVirtualRing()
	if points := ring.Ring(10); points != nil {
		t.Fatalf("expected nil ring before contour set, got %v", points)
	}
}

func TestRingSegmentCountClamp(t *testing.T) {
	ring := NewVirtualRing()
	ring.SetSegmentCount(1)
	if ring.SegmentCount() != 3 {
		t.Errorf("SegmentCount() = %d, want 3 for n<3", ring.SegmentCount())
	}
	ring.SetSegmentCount(12)
	if ring.SegmentCount() != 12 {
		t.Errorf("SegmentCount() = %d, want 12", ring.SegmentCount())
	}
}

func TestRingSetSegmentCountThenContourIdempotent(t *testing.T) {
	a := NewVirtualRing()
	a.SetSegmentCount(16)
	a.SetVehicleContour(squareContour())
	firstStart := append([]float64(nil), a.segmentStartDist...)

	a.SetSegmentCount(16)
	secondStart := a.segmentStartDist

	if len(firstStart) != len(secondStart) {
		t.Fatalf("length mismatch after re-applying segment count")
	}
	for i := range firstStart {
		if math.Abs(firstStart[i]-secondStart[i]) > 1e-9 {
			t.Errorf("segment_start_dist[%d] changed: %v -> %v", i, firstStart[i], secondStart[i])
		}
	}
}

func TestRingDetectionAtStartDistanceDoesNotShrinkEnd(t *testing.T) {
	ring := NewVirtualRing()
	ring.SetSegmentCount(8)
	ring.SetVehicleContour(squareContour())

	idx := ring.segmentIndex(0)
	startDist := ring.segmentStartDist[idx]
	dir := ring.segmentDirections[idx]

	// place a detection essentially on the contour boundary for that segment
	onBoundary := Point2{X: ring.vehicleCenter.X + dir.X*startDist, Y: ring.vehicleCenter.Y + dir.Y*startDist}
	ring.Update([]Point2{onBoundary}, nil)

	if !math.IsInf(ring.segmentEndDist[idx], 1) {
		t.Errorf("segment_end_dist[%d] = %v, want +Inf (untouched)", idx, ring.segmentEndDist[idx])
	}
}

func TestRingFootprintIntersection(t *testing.T) {
	ring := NewVirtualRing()
	ring.SetSegmentCount(8)
	ring.SetVehicleContour(squareContour())

	fp := Footprint{
		{X: 4, Y: -2}, {X: 6, Y: -2}, {X: 6, Y: 2}, {X: 4, Y: 2},
	}
	ring.Update(nil, []Footprint{fp})

	idx := ring.segmentIndex(0)
	if math.IsInf(ring.segmentEndDist[idx], 1) {
		t.Fatalf("expected segment %d to detect the footprint", idx)
	}
}

func TestRingDeterministicAcrossInstances(t *testing.T) {
	build := func() []Point2 {
		ring := NewVirtualRing()
		ring.SetSegmentCount(8)
		ring.SetVehicleContour(squareContour())
		ring.Update([]Point2{{X: 5, Y: 0}, {X: -3, Y: 2}}, nil)
		return ring.Ring(10.0)
	}

	a, b := build(), build()
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("ring output differs across identically-configured instances (-first +second):\n%s", diff)
	}
}
