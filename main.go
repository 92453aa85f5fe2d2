package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	"farmersaid/api"
	"farmersaid/config"
	"farmersaid/internal/logger"
	"farmersaid/internal/metrics"
	"farmersaid/internal/pipeline"
	"farmersaid/internal/report"
	"farmersaid/internal/server"
)

// Globals are flags shared by every command
type Globals struct {
	Config   string `help:"Path to TOML configuration file." default:"config.toml" type:"path"`
	LogLevel string `help:"Logging level (debug, info, warn, error). Overrides the config file."`
	EnvFile  string `help:"Environment file with API keys." default:".env" type:"path"`
}

// CLI is the command tree
type CLI struct {
	Globals

	Weather        WeatherCmd        `cmd:"" default:"1" help:"Print the merged weather table and summary."`
	Pollen         PollenCmd         `cmd:"" help:"Print the pollen table."`
	Report         ReportCmd         `cmd:"" help:"Generate the narrative agronomic report."`
	Ask            AskCmd            `cmd:"" help:"Ask for a custom statistic about your location."`
	Serve          ServeCmd          `cmd:"" help:"Serve the dashboard API over HTTP."`
	GenerateConfig GenerateConfigCmd `cmd:"" help:"Write a sample configuration file and exit."`
}

// app is what every data command needs once configuration is loaded
type app struct {
	cfg      *config.Config
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline
}

// load reads the env file and config, then starts logging
func (g *Globals) load() (*app, error) {
	if err := godotenv.Load(g.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to load %s: %v", g.EnvFile, err)
	}

	cfg, err := config.LoadConfig(g.Config)
	if err != nil {
		var notFound *config.ConfigNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w (run 'farmersaid generate-config' to create one)", err)
		}
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if g.LogLevel != "" {
		if _, err := logger.ParseLevel(g.LogLevel); err != nil {
			return nil, err
		}
		cfg.Logging.Level = g.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := logger.Initialize(logger.Config{
		Enabled:         cfg.Logging.Enabled,
		Directory:       cfg.Logging.Directory,
		FilenamePattern: cfg.Logging.FilenamePattern,
		Level:           cfg.Logging.Level,
		MaxFiles:        cfg.Logging.MaxFiles,
		MaxSizeMB:       cfg.Logging.MaxSizeMB,
		ConsoleOutput:   cfg.Logging.ConsoleOutput,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.Debug("Configuration loaded from %s", g.Config)

	m := metrics.New()
	return &app{
		cfg:      cfg,
		metrics:  m,
		pipeline: pipeline.FromConfig(cfg, m, clockwork.NewRealClock()),
	}, nil
}

// reporter builds the narrative reporter, failing when no LLM key is set
func (a *app) reporter() (*report.Reporter, error) {
	gen, err := api.NewGenerator(a.cfg)
	if err != nil {
		return nil, err
	}
	return report.New(gen, a.cfg.Report, a.metrics), nil
}

// WeatherCmd prints the merged weather table
type WeatherCmd struct{}

func (c *WeatherCmd) Run(g *Globals) error {
	a, err := g.load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	place := a.pipeline.ResolvePlace(ctx)
	result := a.pipeline.Weather(ctx, place)
	history, forecast := result.Table.Split(a.pipeline.Now().Format("2006-01-02"))

	fmt.Printf("Weather for %s, %s\n\n", place.City, place.Country)
	fmt.Printf("Current and historical data:\n%s\n\n", report.RenderTable(history))
	fmt.Printf("Forecasted data:\n%s\n\n", report.RenderTable(forecast))

	s := pipeline.Summarize(history)
	fmt.Printf("Average temperature: %s °C\n", formatMetric(s.AvgTemperatureC))
	fmt.Printf("Average humidity:    %s %%\n", formatMetric(s.AvgHumidityPct))
	fmt.Printf("Total precipitation: %.2f mm\n", s.TotalPrecipitationMM)
	if !result.Satellite {
		fmt.Println("Satellite precipitation unavailable; showing station values.")
	}
	return nil
}

// PollenCmd prints the pollen table and can refresh the backup dataset
type PollenCmd struct {
	RefreshBackup bool `help:"Store the live readings as the backup dataset."`
}

func (c *PollenCmd) Run(g *Globals) error {
	a, err := g.load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	place := a.pipeline.ResolvePlace(ctx).Query()
	result := a.pipeline.Pollen(ctx, place)

	fmt.Printf("Pollen for %s (source: %s)\n\n%s\n", place, result.Origin, report.RenderPollen(result.Table))

	if !c.RefreshBackup {
		return nil
	}
	if result.Origin != pipeline.PollenLive {
		return fmt.Errorf("backup not refreshed: live pollen data unavailable (source: %s)", result.Origin)
	}
	if err := pipeline.WriteBackup(a.cfg.Pollen.BackupFile, result.Table, place, a.pipeline.Now()); err != nil {
		return fmt.Errorf("failed to refresh backup: %w", err)
	}
	logger.Info("Backup pollen dataset refreshed at %s (%d rows)", a.cfg.Pollen.BackupFile, result.Table.Len())
	return nil
}

// ReportCmd prints the narrative report
type ReportCmd struct{}

func (c *ReportCmd) Run(g *Globals) error {
	a, err := g.load()
	if err != nil {
		return err
	}
	r, err := a.reporter()
	if err != nil {
		return err
	}

	ctx := context.Background()
	snap := a.pipeline.Run(ctx)
	history, forecast := snap.Tables()

	rep, err := r.Report(ctx, history, forecast)
	if err != nil {
		return err
	}
	fmt.Println(rep.Text)
	return nil
}

// AskCmd prints the answer to a custom statistic question
type AskCmd struct {
	Question string `arg:"" help:"What to compute, e.g. 'total rainfall this week'."`
}

func (c *AskCmd) Run(g *Globals) error {
	a, err := g.load()
	if err != nil {
		return err
	}
	r, err := a.reporter()
	if err != nil {
		return err
	}

	ctx := context.Background()
	snap := a.pipeline.Run(ctx)
	history, forecast := snap.Tables()

	rep, err := r.Ask(ctx, c.Question, snap.Place, history, forecast)
	if err != nil {
		return err
	}
	fmt.Println(rep.Text)
	return nil
}

// ServeCmd runs the HTTP API until interrupted
type ServeCmd struct {
	Addr string `help:"Listen address. Overrides [server] addr."`
}

func (c *ServeCmd) Run(g *Globals) error {
	a, err := g.load()
	if err != nil {
		return err
	}

	var narrator server.Narrator
	if r, err := a.reporter(); err != nil {
		logger.Warn("Report routes disabled: %v", err)
	} else {
		narrator = r
	}

	addr := a.cfg.Server.Addr
	if c.Addr != "" {
		addr = c.Addr
	}
	srv := server.New(addr, a.pipeline, narrator, a.metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// GenerateConfigCmd writes a sample configuration file
type GenerateConfigCmd struct{}

func (c *GenerateConfigCmd) Run(g *Globals) error {
	if err := config.GenerateSampleConfig(g.Config); err != nil {
		return fmt.Errorf("failed to generate sample config: %w", err)
	}
	logger.Info("Sample configuration file created at: %s", g.Config)
	logger.Info("Please edit the file to add your API keys, or set them in %s", g.EnvFile)
	return nil
}

func formatMetric(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("farmersaid"),
		kong.Description("Weather, precipitation and pollen dashboard with narrative reports."),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&cli.Globals); err != nil {
		logger.LogStructuredError(err, map[string]any{"command": ctx.Command()})
		os.Exit(1)
	}
}
