// Command terralens submits one Earth-observation analysis job and follows it
// to completion: progress streams to the log, the result's statistics are
// printed, and the rendered map is exported in the requested formats.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	terralens "github.com/terralens/terralens-go"
	"github.com/terralens/terralens-go/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("terralens failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	var (
		region       = flag.String("region", "", "region name for the analysis")
		geometryPath = flag.String("geometry", "", "path to a GeoJSON geometry file")
		startDate    = flag.String("start", "", "analysis start date (YYYY-MM-DD)")
		endDate      = flag.String("end", "", "analysis end date (YYYY-MM-DD)")
		analysisType = flag.String("type", "anomaly", "analysis type: anomaly, percentage, absolute")
		exports      = flag.String("export", "png", "comma-separated export formats: png, pdf, svg, geotiff")
	)
	flag.Parse()

	geometry, err := loadGeometry(*geometryPath)
	if err != nil {
		return err
	}

	client, err := terralens.NewClient(terralens.Config{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan terralens.Job, 1)
	session := terralens.NewSession(terralens.SessionConfig{
		Client: client,
		Transport: terralens.NewTransport(terralens.TransportConfig{
			Client:       client,
			PollInterval: cfg.PollInterval,
			PollTimeout:  cfg.PollTimeout,
			Notify:       printNotification,
		}),
		OnChange: func(job terralens.Job) {
			slog.Info("job update", "job_id", job.ID, "state", job.State, "progress", job.Progress, "message", job.Message)
			if job.State.Terminal() {
				done <- job
			}
		},
		Notify: printNotification,
	})
	defer session.Close()

	req := terralens.AnalysisRequest{
		RegionName:   *region,
		Geometry:     geometry,
		StartDate:    *startDate,
		EndDate:      *endDate,
		AnalysisType: terralens.AnalysisType(*analysisType),
	}

	jobID, err := session.Submit(ctx, req)
	if err != nil {
		if verrs, ok := terralens.AsValidationErrors(err); ok {
			for field, msg := range verrs {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
			}
		}
		return err
	}
	slog.Info("job submitted", "job_id", jobID, "region", *region)

	var job terralens.Job
	select {
	case job = <-done:
	case <-ctx.Done():
		slog.Info("interrupted, cancelling job", "job_id", jobID)
		if err := session.Cancel(context.Background()); err != nil {
			slog.Warn("cancellation failed", "error", err)
		}
		return ctx.Err()
	}

	if job.State != terralens.StateCompleted {
		return fmt.Errorf("job %s ended %s: %s", job.ID, job.State, job.Message)
	}

	artifact, err := session.Artifact()
	if err != nil {
		return err
	}
	printStatistics(artifact.Statistics)

	formats, err := parseFormats(*exports)
	if err != nil {
		return err
	}
	paths, err := terralens.SaveExports(ctx, client, cfg.ExportDir, jobID, formats, &terralens.ExportOptions{
		Resolution:    cfg.ExportResolution,
		IncludeLegend: cfg.IncludeLegend,
		PaperSize:     cfg.PaperSize,
	}, *region, *startDate, *endDate)
	if err != nil {
		return err
	}
	for _, p := range paths {
		slog.Info("export written", "path", p)
	}
	return nil
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func loadGeometry(path string) (*terralens.Geometry, error) {
	if path == "" {
		return nil, fmt.Errorf("-geometry is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geometry: %w", err)
	}
	var g terralens.Geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parse geometry %s: %w", path, err)
	}
	return &g, nil
}

func parseFormats(s string) ([]terralens.ExportFormat, error) {
	var formats []terralens.ExportFormat
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch f := terralens.ExportFormat(part); f {
		case terralens.FormatPNG, terralens.FormatPDF, terralens.FormatSVG, terralens.FormatGeoTIFF:
			formats = append(formats, f)
		default:
			return nil, fmt.Errorf("unknown export format %q", part)
		}
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("no export formats given")
	}
	return formats, nil
}

func printNotification(n terralens.Notification) {
	fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Severity, n.Message)
}

func printStatistics(s terralens.Statistics) {
	fmt.Printf("Analysis statistics:\n")
	fmt.Printf("  mean anomaly:      %+.3f\n", s.MeanAnomaly)
	fmt.Printf("  percentage change: %+.2f%%\n", s.PercentageChange)
	fmt.Printf("  min anomaly:       %+.3f\n", s.MinAnomaly)
	fmt.Printf("  max anomaly:       %+.3f\n", s.MaxAnomaly)
	fmt.Printf("  std anomaly:       %.3f\n", s.StdAnomaly)
}
