// Package streamsrc tokenizes the whitespace-separated text streams that
// feed the radar pipeline and merges several such streams into one
// timestamp-ordered sequence. It never calls into radarcore directly beyond
// producing the plain Raw* records the pipeline already accepts; framing
// and numeric parsing are its entire job.
package streamsrc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rajiv-sit/RadarProcessor/internal/radarcore"
)

const (
	cornerReturnCount = 64
	frontReturnCount  = 128
	trackSlotCount    = 96
)

// CornerReturnCount and FrontReturnCount are the per-line return counts that
// distinguish a corner sensor's detection line from the combined front
// mid-range line (short+long, 64 returns each) in the text stream.
const (
	CornerReturnCount = cornerReturnCount
	FrontReturnCount  = frontReturnCount
)

const detectionHeaderFields = 9  // sensor_index t_out t_in hFov maxRange azPolarity boresight sensorLon sensorLat
const detectionReturnFields = 14 // range range_rate range_rate_raw az_raw az amp lonOff latOff motionStatus + 5 flag bits
const detectionTailFields = 3    // lookType scanType lookIndex

func parseFloats(tokens []string) ([]float64, error) {
	out := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("token %d %q: %w", i, tok, err)
		}
		out[i] = v
	}
	return out, nil
}

func flagsFromBits(radarValid, superRes, nearTarget, hostClutter, multibounce float64) radarcore.DetectionFlags {
	var f radarcore.DetectionFlags
	if radarValid != 0 {
		f |= radarcore.FlagValid
	}
	if superRes != 0 {
		f |= radarcore.FlagSuperResolution
	}
	if nearTarget != 0 {
		f |= radarcore.FlagNearTarget
	}
	if hostClutter != 0 {
		f |= radarcore.FlagHostVehicleClutter
	}
	if multibounce != 0 {
		f |= radarcore.FlagMultiBounce
	}
	return f
}

// DetectionFrame is one parsed line of the detection text stream, tagged
// with the sensor it came from so the caller can route it to
// ProcessCornerDetections or pair it for ProcessFrontDetections.
type DetectionFrame struct {
	Sensor  radarcore.SensorIndex
	Header  radarcore.RawDetectionsHeader
	Returns []radarcore.RawReturn
}

// FrameTimestampUs satisfies TimestampedFrame so a DetectionFrame can be
// driven through a MergeQueue alongside track-stream frames.
func (d DetectionFrame) FrameTimestampUs() int64 { return d.Header.TimestampUs }

// ParseDetectionLine tokenizes one detection-stream line. A line parses iff
// its whitespace-separated token count matches the corner (64 returns) or
// front (128 returns) layout, modulo a trailing per-return elevation tail.
func ParseDetectionLine(line string) (DetectionFrame, error) {
	tokens := strings.Fields(line)
	if len(tokens) < detectionHeaderFields+detectionTailFields {
		return DetectionFrame{}, fmt.Errorf("line too short: %d tokens", len(tokens))
	}

	headerToks := tokens[:detectionHeaderFields]
	rest := tokens[detectionHeaderFields:]

	for _, returnCount := range []int{cornerReturnCount, frontReturnCount} {
		body := returnCount * detectionReturnFields
		// Either exactly the tail, or the tail plus one elevation float per return.
		for _, tailLen := range []int{detectionTailFields, detectionTailFields + returnCount} {
			if len(rest) != body+tailLen {
				continue
			}
			frame, err := buildDetectionFrame(headerToks, rest[:body], tailLen > detectionTailFields, returnCount)
			if err != nil {
				return DetectionFrame{}, err
			}
			return frame, nil
		}
	}
	return DetectionFrame{}, fmt.Errorf("line does not match corner (%d) or front (%d) return layout: %d tokens after header",
		cornerReturnCount, frontReturnCount, len(rest))
}

func buildDetectionFrame(headerToks, returnToks []string, _ bool, returnCount int) (DetectionFrame, error) {
	h, err := parseFloats(headerToks)
	if err != nil {
		return DetectionFrame{}, fmt.Errorf("header: %w", err)
	}
	sensorIdx := radarcore.SensorIndex(int(h[0]))
	if !sensorIdx.Valid() {
		return DetectionFrame{}, fmt.Errorf("sensor_index %d out of range", int(h[0]))
	}

	header := radarcore.RawDetectionsHeader{
		TimestampUs:         int64(h[1]), // t_out drives ordering
		HorizontalFovRad:    h[3],
		MaximumRangeM:       h[4],
		AzimuthPolarity:     h[5],
		BoresightAngleRad:   h[6],
		SensorLongitudinalM: h[7],
		SensorLateralM:      h[8],
	}

	returns := make([]radarcore.RawReturn, returnCount)
	for i := 0; i < returnCount; i++ {
		slice := returnToks[i*detectionReturnFields : (i+1)*detectionReturnFields]
		v, err := parseFloats(slice)
		if err != nil {
			return DetectionFrame{}, fmt.Errorf("return %d: %w", i, err)
		}
		returns[i] = radarcore.RawReturn{
			RangeM:              v[0],
			RangeRateMs:         v[1],
			RangeRateRawMs:      v[2],
			AzimuthRawRad:       v[3],
			AzimuthRad:          v[4],
			AmplitudeDBsm:       v[5],
			LongitudinalOffsetM: v[6],
			LateralOffsetM:      v[7],
			MotionStatus:        int(v[8]),
			Flags:               flagsFromBits(v[9], v[10], v[11], v[12], v[13]),
		}
	}

	return DetectionFrame{Sensor: sensorIdx, Header: header, Returns: returns}, nil
}

const trackPrefixFields = 5 // currentTime visionTs fusionTs fusionIndex imageFrameIndex
const trackSlotFields = 35

// ParseTrackLine tokenizes one track-stream line into a RawTrackFusion.
func ParseTrackLine(line string) (radarcore.RawTrackFusion, error) {
	tokens := strings.Fields(line)
	want := trackPrefixFields + trackSlotCount*trackSlotFields
	if len(tokens) != want {
		return radarcore.RawTrackFusion{}, fmt.Errorf("expected %d tokens, got %d", want, len(tokens))
	}

	prefix, err := parseFloats(tokens[:trackPrefixFields])
	if err != nil {
		return radarcore.RawTrackFusion{}, fmt.Errorf("prefix: %w", err)
	}
	timestampUs := int64(prefix[0])

	tracks := make([]radarcore.RawTrack, trackSlotCount)
	body := tokens[trackPrefixFields:]
	for i := 0; i < trackSlotCount; i++ {
		slice := body[i*trackSlotFields : (i+1)*trackSlotFields]
		v, err := parseFloats(slice)
		if err != nil {
			return radarcore.RawTrackFusion{}, fmt.Errorf("track slot %d: %w", i, err)
		}
		tracks[i] = radarcore.RawTrack{
			LongitudinalM:        v[0], // lon
			LateralM:             v[1], // lat
			LengthM:              v[4],
			WidthM:               v[5],
			HeightM:              v[6],
			ProbOfDetection:      v[7],
			ID:                   int(v[8]),
			Moving:               v[17] != 0,
			Stationary:           v[18] != 0,
			Moveable:             v[19] != 0,
			Vehicle:              v[25] != 0,
			Status:               radarcore.TrackStatus(int(v[26])),
			ObjectClassification: radarcore.TrackObjectClass(int(v[27])),
			ClassConfidence:      v[28],
			VelocityLatMps:       v[29],
			VelocityLonMps:       v[30],
			AccelLatMps2:         v[31],
			AccelLonMps2:         v[32],
			HeadingRad:           v[33],
			HeadingRateRps:       v[34],
		}
	}

	return radarcore.RawTrackFusion{TimestampUs: timestampUs, Tracks: tracks}, nil
}

// DetectionReader scans a detection text stream line by line. A line that
// fails to parse is dropped and scanning continues; the reader exposes no
// error for dropped lines or for a failure of the underlying reader.
type DetectionReader struct {
	scanner *bufio.Scanner
	current DetectionFrame
}

// NewDetectionReader wraps r for line-oriented detection-stream scanning.
func NewDetectionReader(r io.Reader) *DetectionReader {
	return &DetectionReader{scanner: bufio.NewScanner(r)}
}

// Scan advances to the next successfully parsed line, skipping any line
// that fails to tokenize. Returns false at end of stream.
func (d *DetectionReader) Scan() bool {
	for d.scanner.Scan() {
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" {
			continue
		}
		frame, err := ParseDetectionLine(line)
		if err != nil {
			continue // parse-failure: dropped, stream continues
		}
		d.current = frame
		return true
	}
	return false
}

// Frame returns the most recently scanned frame.
func (d *DetectionReader) Frame() DetectionFrame { return d.current }

// TrackReader scans a track text stream line by line, dropping unparseable
// lines the same way DetectionReader does.
type TrackReader struct {
	scanner *bufio.Scanner
	current radarcore.RawTrackFusion
}

// NewTrackReader wraps r for line-oriented track-stream scanning.
func NewTrackReader(r io.Reader) *TrackReader {
	return &TrackReader{scanner: bufio.NewScanner(r)}
}

// Scan advances to the next successfully parsed line, skipping any line
// that fails to tokenize. Returns false at end of stream.
func (t *TrackReader) Scan() bool {
	for t.scanner.Scan() {
		line := strings.TrimSpace(t.scanner.Text())
		if line == "" {
			continue
		}
		fusion, err := ParseTrackLine(line)
		if err != nil {
			continue
		}
		t.current = fusion
		return true
	}
	return false
}

// Frame returns the most recently scanned track fusion frame.
func (t *TrackReader) Frame() radarcore.RawTrackFusion { return t.current }
