package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fitness-planner/internal/auth"
	"fitness-planner/internal/config"
	"fitness-planner/internal/database"
	"fitness-planner/internal/generation"
	"fitness-planner/internal/history"
	"fitness-planner/internal/metrics"
	"fitness-planner/internal/planservice"
	"fitness-planner/internal/profile"
	"fitness-planner/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// App holds the application's dependencies.
type App struct {
	cfg *config.Config
	db  *database.DB

	Profiles *profile.Store
	Client   *planservice.Client
	Auth     *auth.Service
	Metrics  *metrics.Store
	Results  *generation.ResultRepository

	// Collector is set when the app was built WithPrometheus.
	Collector *metrics.Collector

	orchestrators map[planservice.Kind]*generation.Orchestrator
	histories     map[planservice.Kind]*history.Cache
}

// Option customises the wiring, mostly for tests.
type Option func(*options)

type options struct {
	generator generation.Generator
	fetcher   history.Fetcher
	registry  prometheus.Registerer
}

// WithGenerator replaces the plan service as the source of plans.
func WithGenerator(g generation.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithHistoryFetcher replaces the plan service as the source of history.
func WithHistoryFetcher(f history.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithPrometheus also exports generation metrics to reg.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// New opens local storage and wires one orchestrator per plan kind.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	kv, err := profileBackend(cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	profiles, err := profile.NewStore(ctx, kv)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	client := planservice.NewClient(cfg, auth.TokenSource(profiles))
	if o.generator == nil {
		o.generator = client
	}
	if o.fetcher == nil {
		o.fetcher = client
	}

	a := &App{
		cfg:           cfg,
		db:            db,
		Profiles:      profiles,
		Client:        client,
		Auth:          auth.NewService(client, profiles),
		Metrics:       metrics.NewStore(db.SQL),
		Results:       generation.NewResultRepository(db.SQL),
		orchestrators: make(map[planservice.Kind]*generation.Orchestrator),
		histories:     make(map[planservice.Kind]*history.Cache),
	}

	var recorder metrics.Recorder = a.Metrics
	if o.registry != nil {
		a.Collector = metrics.NewCollector("fitness_planner", o.registry)
		recorder = metrics.Tee(a.Metrics, a.Collector)
	}

	for _, kind := range planservice.Kinds {
		orchOpts := []generation.Option{
			generation.WithRecorder(recorder),
			generation.WithResults(a.Results),
		}
		if kind.HasHistory() {
			cache := history.NewCache(kind, o.fetcher)
			a.histories[kind] = cache
			orchOpts = append(orchOpts, generation.WithHistory(cache))
		}
		a.orchestrators[kind] = generation.New(kind, profiles, o.generator, orchOpts...)
	}

	log.WithFields(log.Fields{
		"database": cfg.DatabasePath,
		"profile":  cfg.ProfileBackend,
		"service":  cfg.PlanServiceURL,
	}).Debug("application initialised")

	return a, nil
}

func profileBackend(cfg *config.Config, db *database.DB) (profile.KV, error) {
	switch cfg.ProfileBackend {
	case config.ProfileBackendFile:
		kv, err := storage.NewFileKV(cfg.ProfileFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open profile file: %w", err)
		}
		return kv, nil
	case config.ProfileBackendSQLite, "":
		return profile.NewRepository(db.SQL), nil
	default:
		return nil, fmt.Errorf("unknown profile backend %q", cfg.ProfileBackend)
	}
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Orchestrator returns the orchestrator of kind.
func (a *App) Orchestrator(kind planservice.Kind) *generation.Orchestrator {
	return a.orchestrators[kind]
}

// History returns the history cache of kind, or nil when kind keeps no history.
func (a *App) History(kind planservice.Kind) *history.Cache {
	return a.histories[kind]
}

// RefreshHistories loads every history list for the stored email.
func (a *App) RefreshHistories(ctx context.Context) {
	email := a.Profiles.Get().Email
	if email == "" {
		log.Debug("no email stored, history disabled")
		return
	}
	for _, cache := range a.histories {
		cache.Refresh(ctx, email)
	}
}

// Report is the local usage and health summary.
type Report struct {
	Usage  []metrics.DailyUsage
	Health metrics.LocalHealth
}

// Stats summarises the generation metrics of the last days.
func (a *App) Stats(ctx context.Context, days int) (Report, error) {
	usage, err := a.Metrics.GetDailyUsage(ctx, days)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load usage: %w", err)
	}

	paths := []string{a.cfg.DatabasePath}
	if a.cfg.ProfileBackend == config.ProfileBackendFile {
		paths = append(paths, a.cfg.ProfileFilePath)
	}
	return Report{Usage: usage, Health: metrics.GetLocalHealth(paths...)}, nil
}

// Close detaches every orchestrator, waits for in-flight work and closes the database.
func (a *App) Close() error {
	for _, o := range a.orchestrators {
		o.Close()
	}
	for _, o := range a.orchestrators {
		o.Wait()
	}
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ErrNoEmail is returned by operations that need a signed-in user.
var ErrNoEmail = errors.New("no email stored, log in first")

// FetchHistory refreshes and returns the history of kind.
func (a *App) FetchHistory(ctx context.Context, kind planservice.Kind) ([]planservice.HistoryEntry, error) {
	cache := a.histories[kind]
	if cache == nil {
		return nil, fmt.Errorf("%s plans have no history", kind)
	}
	email := a.Profiles.Get().Email
	if email == "" {
		return nil, ErrNoEmail
	}
	cache.Refresh(ctx, email)
	if cache.Email() != strings.TrimSpace(email) {
		return nil, fmt.Errorf("failed to fetch %s history for %s", kind, email)
	}
	return cache.List(), nil
}

// Profile returns the stored profile.
func (a *App) Profile() profile.Profile {
	return a.Profiles.Get()
}

// LatestResult returns the most recent locally saved plan of kind for the
// current account.
func (a *App) LatestResult(ctx context.Context, kind planservice.Kind) (generation.StoredResult, error) {
	return a.Results.Latest(ctx, kind, a.Profiles.Get().Email)
}
