// Command radar drives the radar processing pipeline against one or more
// recorded text-stream data files and prints a running summary of its
// output to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rajiv-sit/RadarProcessor/internal/config"
	"github.com/rajiv-sit/RadarProcessor/internal/radarcore"
	"github.com/rajiv-sit/RadarProcessor/internal/recorder"
	"github.com/rajiv-sit/RadarProcessor/internal/security"
	"github.com/rajiv-sit/RadarProcessor/internal/streamsrc"
	"github.com/rajiv-sit/RadarProcessor/internal/units"
	"github.com/rajiv-sit/RadarProcessor/internal/vehicleconfig"
	"github.com/rajiv-sit/RadarProcessor/internal/version"
)

var (
	dataDir       = flag.String("data-dir", "", "data root directory (default $CWD/data)")
	vehicleFile   = flag.String("vehicle-config", "vehicle.ini", "vehicle parameter INI file, resolved under -data-dir")
	tuningFile    = flag.String("tuning", "", "optional tuning JSON file overriding documented defaults")
	speedUnit     = flag.String("speed-unit", units.MPS, "display unit for odometry speed: "+units.GetValidUnitsString())
	recordDBPath  = flag.String("record-db", "", "optional sqlite path to persist pipeline output")
	migrationsDir = flag.String("migrations-dir", "internal/recorder/migrations", "migrations directory for -record-db")
	showVersion   = flag.Bool("version", false, "print version and exit")
)

const (
	defaultCornerFile = "fourCornersfusedRadarDetections.txt"
	defaultFrontFile  = "fusedFrontRadarsDetections.txt"
	defaultTrackFile  = "fusedRadarTracks.txt"
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("radar %s (%s, %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if !units.IsValid(*speedUnit) {
		log.Fatalf("invalid -speed-unit %q: must be one of %s", *speedUnit, units.GetValidUnitsString())
	}

	root := *dataDir
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatalf("getwd: %v", err)
		}
		root = filepath.Join(cwd, "data")
	}

	radarcore.SetLogWriters(os.Stderr, os.Stderr, nil)

	files := flag.Args()
	if len(files) == 0 {
		files = []string{defaultCornerFile, defaultFrontFile, defaultTrackFile}
	}
	resolved := make([]string, len(files))
	for i, f := range files {
		path := f
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, f)
		}
		if err := security.ValidatePathWithinDirectory(path, root); err != nil {
			log.Fatalf("rejecting data file %q: %v", f, err)
		}
		resolved[i] = path
	}

	tuning := config.EmptyTuningConfig()
	if *tuningFile != "" {
		loaded, err := config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("load tuning config: %v", err)
		}
		tuning = loaded
	}

	vehicleParams, err := vehicleconfig.Load(filepath.Join(root, *vehicleFile))
	if err != nil {
		log.Fatalf("load vehicle config: %v", err)
	}

	pipeline := radarcore.NewPipeline()
	pipeline.Initialize(vehicleParams)
	pipeline.SetAssociationTuning(tuning.GetStationarySigma(), tuning.GetBoundingBoxScale(), tuning.GetRangeRateSigma())
	pipeline.SetOdometryEstimator(radarcore.NewOdometryEstimator(tuning.GetOdometrySettings()))

	var rec *recorder.Recorder
	if *recordDBPath != "" {
		rec, err = recorder.Open(*recordDBPath, *migrationsDir)
		if err != nil {
			log.Fatalf("open recorder: %v", err)
		}
		defer rec.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run(ctx, pipeline, rec, resolved)
}

// run drives every input file through its own reader goroutine and merges
// the resulting frames by earliest pending timestamp, so a multi-file
// invocation (the CLI's own default) sees raw frames in arrival order
// rather than one file processed to completion before the next starts.
func run(ctx context.Context, pipeline *radarcore.Pipeline, rec *recorder.Recorder, files []string) {
	sources := make([]<-chan streamsrc.TimestampedFrame, 0, len(files))
	for _, path := range files {
		ch, err := streamFile(path)
		if err != nil {
			log.Printf("opening %s: %v", path, err)
			continue
		}
		sources = append(sources, ch)
	}

	queue := streamsrc.NewMergeQueue(sources...)
	for {
		if err := ctx.Err(); err != nil {
			return
		}
		frame, _, ok := queue.Next()
		if !ok {
			return
		}
		switch f := frame.(type) {
		case streamsrc.DetectionFrame:
			processDetectionFrame(pipeline, rec, f, *speedUnit)
		case radarcore.RawTrackFusion:
			processTrackFrame(pipeline, rec, f)
		}
	}
}

// streamFile opens path and starts a goroutine that scans it into a
// TimestampedFrame channel, closing the channel at end of file. The reader
// kind (detection vs. track) is chosen by filename, matching the CLI's
// documented default files.
func streamFile(path string) (<-chan streamsrc.TimestampedFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}

	out := make(chan streamsrc.TimestampedFrame)
	if filepath.Base(path) == defaultTrackFile {
		go func() {
			defer f.Close()
			defer close(out)
			reader := streamsrc.NewTrackReader(f)
			for reader.Scan() {
				out <- reader.Frame()
			}
		}()
		return out, nil
	}

	go func() {
		defer f.Close()
		defer close(out)
		reader := streamsrc.NewDetectionReader(f)
		for reader.Scan() {
			out <- reader.Frame()
		}
	}()
	return out, nil
}

// processDetectionFrame routes one parsed detection-stream line to
// ProcessCornerDetections, or splits it 64+64 into ProcessFrontDetections
// when the line carries the combined front mid-range return count.
func processDetectionFrame(pipeline *radarcore.Pipeline, rec *recorder.Recorder, frame streamsrc.DetectionFrame, speedDisplayUnit string) {
	var odometry *radarcore.OdometryEstimate

	switch len(frame.Returns) {
	case streamsrc.FrontReturnCount:
		shortOut, longOut, est := pipeline.ProcessFrontDetections(frame.Header.TimestampUs, radarcore.RawFrontDetections{
			Header:  frame.Header,
			Returns: frame.Returns[:streamsrc.FrontReturnCount/2],
		}, radarcore.RawFrontDetections{
			Header:  frame.Header,
			Returns: frame.Returns[streamsrc.FrontReturnCount/2:],
		})
		odometry = est
		if rec != nil {
			if err := rec.RecordDetections(radarcore.FrontShort, frame.Header.TimestampUs, shortOut); err != nil {
				log.Printf("record detections: %v", err)
			}
			if err := rec.RecordDetections(radarcore.FrontLong, frame.Header.TimestampUs, longOut); err != nil {
				log.Printf("record detections: %v", err)
			}
		}
	default:
		detections, est := pipeline.ProcessCornerDetections(frame.Sensor, radarcore.RawCornerDetections{
			Sensor:  frame.Sensor,
			Header:  frame.Header,
			Returns: frame.Returns,
		})
		odometry = est
		if rec != nil {
			if err := rec.RecordDetections(frame.Sensor, frame.Header.TimestampUs, detections); err != nil {
				log.Printf("record detections: %v", err)
			}
		}
	}

	if odometry != nil && odometry.Valid {
		log.Printf("odometry t=%dus vLon=%.2f%s", odometry.TimestampUs,
			units.ConvertSpeed(odometry.VLon, speedDisplayUnit), speedDisplayUnit)
	}
	if rec != nil && odometry != nil {
		if err := rec.RecordOdometry(*odometry); err != nil {
			log.Printf("record odometry: %v", err)
		}
	}
}

func processTrackFrame(pipeline *radarcore.Pipeline, rec *recorder.Recorder, fusion radarcore.RawTrackFusion) {
	tracks := pipeline.ProcessTrackFusion(fusion)
	if rec != nil {
		if err := rec.RecordTracks(fusion.TimestampUs, tracks); err != nil {
			log.Printf("record tracks: %v", err)
		}
	}
}
