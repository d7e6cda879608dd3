package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/scandeck/cardscan/internal/capture"
	"github.com/scandeck/cardscan/internal/config"
	"github.com/scandeck/cardscan/internal/imaging"
	"github.com/scandeck/cardscan/internal/overlay"
	"github.com/scandeck/cardscan/internal/scan"
	"github.com/scandeck/cardscan/internal/upload"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("cardscan %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		}
	}

	var (
		framesDir  = flag.String("frames", "", "directory of still images to play as the scanning session (required)")
		configPath = flag.String("config", "", "path to a JSON config file (defaults used when omitted)")
		endpoint   = flag.String("endpoint", "", "upload collaborator URL (overrides config)")
		outDir     = flag.String("out", "", "directory to write the captured still into (optional)")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error (or CARDSCAN_LOG_LEVEL)")
	)
	flag.Parse()

	logger := newLogger(*logLevel)

	if *framesDir == "" {
		fmt.Fprintln(os.Stderr, "cardscan: -frames is required (see --help)")
		os.Exit(2)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("config load failed", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *endpoint != "" {
		cfg.UploadEndpoint = *endpoint
	}

	source, err := imaging.NewDirSource(*framesDir)
	if err != nil {
		logger.Error("frame source failed", "dir", *framesDir, "error", err)
		os.Exit(1)
	}
	logger.Info("playing frames", "dir", *framesDir, "count", source.Len())

	if err := run(logger, cfg, source, *outDir); err != nil {
		logger.Error("scan failed", "error", err)
		os.Exit(1)
	}
}

// run drives one session over the source and reports the outcome on stdout.
func run(logger *slog.Logger, cfg *config.Config, source imaging.FrameSource, outDir string) error {
	feedback := overlay.NewPublisher()
	feedback.Subscribe(func(fb overlay.Feedback) {
		logger.Debug("feedback", "stability", fmt.Sprintf("%.0f%%", fb.Stability),
			"guidance", fb.Guidance, "color", fb.Color)
	})

	var captured *capture.Still
	done := make(chan struct{})

	session := scan.NewSession(logger, cfg, source, scan.NewTickerScheduler(cfg.TickInterval()), scan.Callbacks{
		Feedback: feedback.Publish,
		Capture: func(still *capture.Still) {
			captured = still
			close(done)
		},
		Stopped: func(reason string) {
			select {
			case <-done:
			default:
				close(done)
			}
		},
	})

	if err := session.Start(); err != nil {
		return err
	}
	<-done
	if err := session.Close(); err != nil {
		logger.Warn("session close", "error", err)
	}

	if captured == nil {
		return fmt.Errorf("no capture: source ended before a stable document was found")
	}

	if outDir != "" {
		path := filepath.Join(outDir, captured.Filename)
		if err := os.WriteFile(path, captured.PNG, 0o644); err != nil {
			return fmt.Errorf("failed to write capture: %w", err)
		}
		logger.Info("capture written", "path", path)
	}

	outcome := map[string]any{
		"session":  captured.SessionID,
		"filename": captured.Filename,
		"rect":     captured.Rect,
	}

	if cfg.UploadEndpoint != "" {
		collaborator := upload.NewHTTPCollaborator(cfg.UploadEndpoint, logger)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		result, err := collaborator.Submit(ctx, upload.Submission{
			SessionID: captured.SessionID,
			Filename:  captured.Filename,
			PNG:       captured.PNG,
		})
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		outcome["result"] = result
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(outcome)
}

// newLogger builds a text slog.Logger on stderr; stdout carries the scan
// outcome only.
func newLogger(level string) *slog.Logger {
	if level == "" {
		level = os.Getenv("CARDSCAN_LOG_LEVEL")
	}
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func printHelp() {
	fmt.Println("cardscan - document-rectangle detector and auto-capture pipeline")
	fmt.Println()
	fmt.Println("Usage: cardscan -frames <dir> [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -frames <dir>     directory of still images played as the scan session")
	fmt.Println("  -config <path>    JSON config file (see internal/config for fields)")
	fmt.Println("  -endpoint <url>   upload collaborator URL")
	fmt.Println("  -out <dir>        write the captured still into this directory")
	fmt.Println("  -log-level <lvl>  debug, info, warn, error")
	fmt.Println("  --version, -v     print version information")
	fmt.Println("  --help, -h        print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  CARDSCAN_LOG_LEVEL=debug    enable debug logging")
	fmt.Println()
	fmt.Println("The scan outcome is printed as JSON on stdout; logs go to stderr.")
}
