// Command monuguard analyzes one video and prints the report as JSON on stdout.
//
//	monuguard [flags] <video>
//
// A directory argument is read as an image sequence. Everything but the
// report goes to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"monuguard/internal/config"
	"monuguard/internal/detection"
	"monuguard/internal/logger"
	"monuguard/internal/pipeline"
	"monuguard/internal/video"
	"monuguard/internal/video/capture"
)

// Exit codes
const (
	exitOK       = 0
	exitFailure  = 1
	exitBadUsage = 2
)

// deps are the collaborators run wires together
type deps struct {
	openFile    pipeline.SourceOpener
	newDetector func(detection.Config) (pipeline.Detector, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Keep stray writes to os.Stdout out of the report stream.
	stdout := os.Stdout
	os.Stdout = os.Stderr
	code := run(ctx, os.Args[1:], stdout, os.Stderr, deps{
		openFile:    capture.Open,
		newDetector: detection.New,
	})
	os.Stdout = stdout
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, d deps) int {
	fs := flag.NewFlagSet("monuguard", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		envF         = fs.String("env", "", "Env file to load (default .env when present)")
		modelF       = fs.String("model", "", "Model reference passed to the detector (default yolov8n.pt)")
		intervalF    = fs.Int("interval", 0, "Analyze every N-th frame (default 30)")
		confF        = fs.Float64("conf", -1, "Confidence threshold (default 0.45)")
		detectorF    = fs.String("detector", "", "Detector transport: http or grpc")
		endpointF    = fs.String("endpoint", "", "Detector endpoint")
		sequenceFPSF = fs.Float64("sequence-fps", 0, "Frame rate reported for image sequences (default 30)")
		logLevelF    = fs.String("log-level", "", "Log level: debug, info, warn, error, silent")
	)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: monuguard [flags] <video>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitBadUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitBadUsage
	}
	path := fs.Arg(0)

	var envFiles []string
	if *envF != "" {
		envFiles = append(envFiles, *envF)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitBadUsage
	}

	// Only flags that were actually given override the environment.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			cfg.Model = *modelF
		case "interval":
			cfg.Interval = *intervalF
		case "conf":
			cfg.Confidence = *confF
		case "detector":
			cfg.DetectorKind = *detectorF
		case "endpoint":
			cfg.DetectorEndpoint = *endpointF
		case "sequence-fps":
			cfg.SequenceFPS = *sequenceFPSF
		case "log-level":
			cfg.LogLevel = *logLevelF
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitBadUsage
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.Init(level, stderr)

	detector, err := d.newDetector(cfg.DetectorConfig())
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitBadUsage
	}
	defer detector.Close()

	analyzer := pipeline.NewAnalyzer(video.NewOpener(d.openFile, cfg.SequenceFPS), detector, nil)
	report, err := analyzer.Analyze(ctx, path, cfg.Options())
	if err != nil {
		logger.Error("CLI", "Analysis failed: %v", err)
		return exitFailure
	}

	out, err := json.Marshal(report)
	if err != nil {
		logger.Error("CLI", "Failed to encode report: %v", err)
		return exitFailure
	}
	fmt.Fprintln(stdout, string(out))
	return exitOK
}
