// Package vehicleconfig loads the line-oriented INI vehicle-parameter file
// into a radarcore.VehicleParameters bundle. It is the core's only
// collaborator for calibration data; the core never parses configuration
// itself.
package vehicleconfig

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rajiv-sit/RadarProcessor/internal/radarcore"
)

const maxContourPoints = 64

// iniDocument is a minimal case-insensitive section/key store, parsed once
// and queried by the section readers below.
type iniDocument struct {
	sections map[string]map[string]string
}

func parseINI(r *bufio.Scanner) (*iniDocument, error) {
	doc := &iniDocument{sections: make(map[string]map[string]string)}
	section := ""
	lineNo := 0
	for r.Scan() {
		lineNo++
		line := strings.TrimSpace(r.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, ";"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			if _, ok := doc.sections[section]; !ok {
				doc.sections[section] = make(map[string]string)
			}
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			return nil, fmt.Errorf("line %d: expected key = value, got %q", lineNo, line)
		}
		key := strings.ToLower(strings.TrimSpace(line[:eq]))
		value := strings.TrimSpace(line[eq+1:])
		if section == "" {
			return nil, fmt.Errorf("line %d: key %q outside any [section]", lineNo, key)
		}
		doc.sections[section][key] = value
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("scanning ini document: %w", err)
	}
	return doc, nil
}

func (d *iniDocument) readFloat(section, key string, current float64) float64 {
	sec, ok := d.sections[strings.ToLower(section)]
	if !ok {
		return current
	}
	raw, ok := sec[strings.ToLower(key)]
	if !ok {
		return current
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return current
	}
	return v
}

func (d *iniDocument) readVector(section, key string) (x, y float64, ok bool) {
	sec, found := d.sections[strings.ToLower(section)]
	if !found {
		return 0, 0, false
	}
	raw, found := sec[strings.ToLower(key)]
	if !found {
		return 0, 0, false
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	xv, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	yv, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return xv, yv, true
}

func degToRad(deg float64) float64 { return deg * math.Pi / 180 }
func radToDeg(rad float64) float64 { return rad * 180 / math.Pi }

func readRadarSection(doc *iniDocument, section string, distRearAxleToFrontBumperM float64) radarcore.RadarCalibration {
	var calib radarcore.RadarCalibration
	calib.Polarity = doc.readFloat(section, "polarityVCS", calib.Polarity)
	calib.RangeRateAccuracyMps = doc.readFloat(section, "rangeRateAccuracy", calib.RangeRateAccuracyMps)

	azDeg := radToDeg(calib.AzimuthAccuracyRad)
	azDeg = doc.readFloat(section, "azimuthAccuracy", azDeg)
	calib.AzimuthAccuracyRad = degToRad(azDeg)

	orientDeg := radToDeg(calib.VCS.OrientationRad)
	orientDeg = doc.readFloat(section, "orientationVCS", orientDeg)
	calib.VCS.OrientationRad = degToRad(orientDeg)

	calib.VCS.LongitudinalM = doc.readFloat(section, "lonPosVCS", calib.VCS.LongitudinalM)
	calib.VCS.LateralM = doc.readFloat(section, "latPosVCS", calib.VCS.LateralM)
	calib.VCS.HeightM = doc.readFloat(section, "heightAboveGround", calib.VCS.HeightM)

	fovDeg := radToDeg(calib.HorizontalFovRad)
	fovDeg = doc.readFloat(section, "horizontalFieldOfView", fovDeg)
	calib.HorizontalFovRad = degToRad(fovDeg)

	calib.ISO = radarcore.DeriveISOPose(calib.VCS, distRearAxleToFrontBumperM)
	return calib
}

func readDistRearAxle(doc *iniDocument) float64 {
	v := doc.readFloat("Geometry", "distRearAxle", 0)
	if v <= 0 {
		v = doc.readFloat("Vehicle", "distRearAxle", 0)
	}
	return v
}

func readContour(doc *iniDocument) []radarcore.Point2 {
	var contour []radarcore.Point2
	for i := 0; i < maxContourPoints; i++ {
		key := fmt.Sprintf("contourPt%d", i)
		lat, lon, ok := doc.readVector("Contour", key)
		if !ok {
			continue
		}
		if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
			continue
		}
		// Stored as (lat, lon) on disk; kept as (lon, lat) in ISO order.
		contour = append(contour, radarcore.Point2{X: lon, Y: lat})
	}
	return contour
}

// Load parses the vehicle-parameter INI file at path into a
// radarcore.VehicleParameters bundle.
func Load(path string) (radarcore.VehicleParameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return radarcore.VehicleParameters{}, fmt.Errorf("open vehicle config %q: %w", path, err)
	}
	defer f.Close()

	doc, err := parseINI(bufio.NewScanner(f))
	if err != nil {
		return radarcore.VehicleParameters{}, fmt.Errorf("parse vehicle config %q: %w", path, err)
	}

	var params radarcore.VehicleParameters
	params.DistRearAxleToFrontBumperM = readDistRearAxle(doc)
	params.CornerHwDelayS = doc.readFloat("Radar Common", "cornerHardwareTimeDelay", 0)
	params.FrontCenterHwDelayS = doc.readFloat("Radar Common", "frontCenterHardwareTimeDelay", 0)
	params.Contour = readContour(doc)

	params.Calibrations[radarcore.FrontLeft] = readRadarSection(doc, "SRR FWD LEFT", params.DistRearAxleToFrontBumperM)
	params.Calibrations[radarcore.FrontRight] = readRadarSection(doc, "SRR FWD RIGHT", params.DistRearAxleToFrontBumperM)
	params.Calibrations[radarcore.RearLeft] = readRadarSection(doc, "SRR REAR LEFT", params.DistRearAxleToFrontBumperM)
	params.Calibrations[radarcore.RearRight] = readRadarSection(doc, "SRR REAR RIGHT", params.DistRearAxleToFrontBumperM)

	mrr := readRadarSection(doc, "MRR FRONT", params.DistRearAxleToFrontBumperM)
	params.Calibrations[radarcore.FrontShort] = mrr
	params.Calibrations[radarcore.FrontLong] = mrr

	return params, nil
}
