package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/basel-ax/imagestudio/internal/config"
	"github.com/basel-ax/imagestudio/internal/domain"
	"github.com/basel-ax/imagestudio/internal/infrastructure/backend"
	"github.com/basel-ax/imagestudio/internal/infrastructure/imagedata"
	"github.com/basel-ax/imagestudio/internal/notify"
	"github.com/basel-ax/imagestudio/internal/repository"
	"github.com/basel-ax/imagestudio/internal/service"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

func main() {
	// Parse command line flags
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	login := flag.Bool("login", false, "Log in with API_USERNAME/API_PASSWORD before running")
	prompt := flag.String("text", "", "Generate an image from this prompt")
	negative := flag.String("negative", "", "Negative prompt for text-to-image")
	steps := flag.Int("steps", 0, "Inference steps (1-100, default from config)")
	guidance := flag.Float64("guidance", 0, "Guidance scale (1-20, default from config)")
	source := flag.String("image", "", "Convert this image file; the prompt comes from -text")
	strength := flag.Float64("strength", -1, "Conversion strength (0-1, default from config)")
	out := flag.String("out", "output.png", "Where to write the resulting image")
	history := flag.Bool("history", false, "List previously generated images")
	refresh := flag.Bool("refresh", false, "Keep running and refresh the session on SESSION_REFRESH_SCHEDULE")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.AppEnv, cfg.LogLevel)
	if *verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}

	// Create context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := newTokenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize token store")
	}
	defer closeStore()

	client := backend.NewClient(backend.Options{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.HTTPTimeout,
		Tokens:  store,
		Logger:  &logger,
	})
	deps := service.Deps{
		Gateway:    client,
		Notifier:   notify.NewLogNotifier(logger),
		Translator: notify.NewTranslator(cfg.Locale),
		Logger:     &logger,
	}
	session := service.NewSessionService(deps, store)

	if *login {
		if err := session.Login(ctx, cfg.APIUsername, cfg.APIPassword); err != nil {
			os.Exit(1)
		}
	}

	failed := false
	switch {
	case *source != "":
		failed = !runImageToImage(ctx, deps, cfg, *source, *prompt, *strength, *out)
	case *prompt != "":
		failed = !runTextToImage(ctx, deps, cfg, *prompt, *negative, *steps, *guidance, *out)
	}

	if *history {
		if err := printHistory(ctx, deps); err != nil {
			logger.Error().Err(err).Msg("failed to load history")
			failed = true
		}
	}

	if *refresh {
		if cfg.SessionRefreshSchedule == "" {
			logger.Fatal().Msg("SESSION_REFRESH_SCHEDULE is required with -refresh")
		}
		stop, err := session.StartRefresh(ctx, cfg.SessionRefreshSchedule)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to schedule session refresh")
		}
		<-ctx.Done()
		stop()
		logger.Info().Msg("shutting down")
	}

	if failed {
		os.Exit(1)
	}
}

// newTokenStore returns the configured token store and a function releasing it.
func newTokenStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (repository.TokenStore, func(), error) {
	if cfg.TokenStore != config.TokenStorePostgres {
		return repository.NewMemoryTokenStore(), func() {}, nil
	}

	db, err := sqlx.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := repository.NewPostgresTokenStore(db, cfg.SessionName)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Debug().Str("session", cfg.SessionName).Msg("using postgres token store")
	return store, func() { db.Close() }, nil
}

func runTextToImage(ctx context.Context, deps service.Deps, cfg *config.Config, prompt, negative string, steps int, guidance float64, out string) bool {
	flow := service.NewTextToImageFlow(deps)
	flow.SetPrompt(prompt)
	flow.SetNegativePrompt(negative)
	flow.SetSteps(cfg.DefaultSteps)
	flow.SetGuidanceScale(cfg.DefaultGuidanceScale)
	if steps != 0 {
		flow.SetSteps(steps)
	}
	if guidance != 0 {
		flow.SetGuidanceScale(guidance)
	}

	return writeOutcome(flow.Generate(ctx), out)
}

func runImageToImage(ctx context.Context, deps service.Deps, cfg *config.Config, path, prompt string, strength float64, out string) bool {
	flow := service.NewImageToImageFlow(deps)
	flow.SetPrompt(prompt)
	flow.SetStrength(cfg.DefaultStrength)
	if strength >= 0 {
		flow.SetStrength(strength)
	}

	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", path, err)
		return false
	}
	defer file.Close()

	if _, err := flow.LoadImage(ctx, file); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
		return false
	}
	if info := flow.InputInfo(); info.Format != "" {
		fmt.Printf("Source: %s %dx%d\n", info.Format, info.Width, info.Height)
	}

	return writeOutcome(flow.Convert(ctx), out)
}

func writeOutcome(outcome domain.Outcome, out string) bool {
	if !outcome.IsSuccess() {
		return false
	}
	if err := os.WriteFile(out, outcome.Result.ImageBytes, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", out, err)
		return false
	}

	info, err := imagedata.Inspect(outcome.Result.ImageBytes)
	if err != nil {
		fmt.Printf("Wrote %s (%d bytes)\n", out, len(outcome.Result.ImageBytes))
		return true
	}
	fmt.Printf("Wrote %s (%s %dx%d)\n", out, info.Format, info.Width, info.Height)
	return true
}

func printHistory(ctx context.Context, deps service.Deps) error {
	entries, err := service.NewHistoryService(deps).List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "text"
		if e.IsVariation {
			kind = "variation"
		}
		fmt.Printf("%d\t%s\t%s\t%s\t%s\n", e.ID, e.CreatedAt.Format("2006-01-02 15:04"), kind, e.ImageURL, e.Prompt)
	}
	return nil
}
