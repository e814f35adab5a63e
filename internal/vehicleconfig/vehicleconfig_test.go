package vehicleconfig

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajiv-sit/RadarProcessor/internal/radarcore"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "vehicle.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadVehicleProfile(t *testing.T) {
	// Scenario 4: vehicle profile parsing.
	body := `
[Geometry]
distRearAxle = 1.5

[MRR FRONT]
lonPosVCS = 2.0
latPosVCS = -0.5
orientationVCS = 15.0

[Contour]
contourPt0 = 0,0
contourPt1 = 1,2
`
	path := writeTempConfig(t, body)

	params, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1.5, params.DistRearAxleToFrontBumperM)

	mrr, ok := params.Calibration(radarcore.FrontShort)
	require.True(t, ok, "expected FrontShort calibration present")
	assert.InDelta(t, 3.5, mrr.ISO.LongitudinalM, 1e-9)
	assert.InDelta(t, 0.5, mrr.ISO.LateralM, 1e-9)
	assert.InDelta(t, -mrr.VCS.OrientationRad, mrr.ISO.OrientationRad, 1e-9)

	wantOrientRad := -15.0 * math.Pi / 180
	assert.InDelta(t, wantOrientRad, mrr.ISO.OrientationRad, 1e-9)

	longCalib, ok := params.Calibration(radarcore.FrontLong)
	require.True(t, ok, "expected FrontLong calibration present")
	assert.Equal(t, mrr, longCalib, "FrontLong calibration should duplicate FrontShort's MRR FRONT reading")

	require.Len(t, params.Contour, 2)
	assert.Equal(t, radarcore.Point2{X: 0, Y: 0}, params.Contour[0])
	assert.Equal(t, radarcore.Point2{X: 2, Y: 1}, params.Contour[1])
}

func TestLoadDistRearAxleFallsBackToVehicleWhenGeometryNonPositive(t *testing.T) {
	body := `
[Geometry]
distRearAxle = 0

[Vehicle]
distRearAxle = 2.75
`
	path := writeTempConfig(t, body)

	params, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2.75, params.DistRearAxleToFrontBumperM, "Vehicle fallback")
}

func TestLoadDistRearAxlePrefersPositiveGeometryValue(t *testing.T) {
	body := `
[Geometry]
distRearAxle = 1.25

[Vehicle]
distRearAxle = 9.0
`
	path := writeTempConfig(t, body)

	params, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1.25, params.DistRearAxleToFrontBumperM, "Geometry wins")
}

func TestLoadCornerSectionsAreIndependent(t *testing.T) {
	body := `
[SRR FWD LEFT]
lonPosVCS = 1.0
latPosVCS = 0.8

[SRR FWD RIGHT]
lonPosVCS = 1.0
latPosVCS = -0.8
`
	path := writeTempConfig(t, body)

	params, err := Load(path)
	require.NoError(t, err)
	left, _ := params.Calibration(radarcore.FrontLeft)
	right, _ := params.Calibration(radarcore.FrontRight)
	assert.NotEqual(t, left.VCS.LateralM, right.VCS.LateralM)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.Error(t, err)
}
