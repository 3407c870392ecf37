// Package app wires the client together: auth, cache, read and write
// paths, domain stores, and the generation watcher.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"grovli-client/internal/api"
	"grovli-client/internal/auth"
	"grovli-client/internal/cache"
	"grovli-client/internal/clip"
	"grovli-client/internal/config"
	"grovli-client/internal/events"
	"grovli-client/internal/localstore"
	"grovli-client/internal/metrics"
	"grovli-client/internal/mutate"
	"grovli-client/internal/notify"
	"grovli-client/internal/query"
	"grovli-client/internal/store"
)

// Read-path keys and the endpoints behind them.
var endpointPaths = map[string]string{
	"profile":       "/api/profile",
	"settings":      "/api/settings",
	"meal-plans":    "/api/meal-plans",
	"completions":   "/api/completions",
	"pantry":        "/api/pantry",
	"saved-recipes": "/api/saved-recipes",
}

// preloadKeys are warmed at startup, mirroring the data the main pages need
// first.
var preloadKeys = []string{"profile", "meal-plans", "completions", "settings", "saved-recipes"}

// QueueKindCompletion names the pending-write queue for completion toggles.
const QueueKindCompletion = "completion"

// App holds the client's dependencies.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	Tokens   *auth.TokenStore
	API      *api.Client
	Cache    *cache.Cache
	Queries  *query.Client
	Mutator  *mutate.Mutator
	Local    *localstore.Store
	Bus      *events.Bus
	Watcher  *notify.Watcher
	Clipper  *clip.Clipper
	Metrics  *metrics.Store
	Sessions *store.ChatSessionStore

	MealPlan    *store.MealPlanStore
	Completions *store.CompletionStore
	Calories    *store.CalorieStore
	Pantry      *store.PantryStore
}

// New builds the full client from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	local, err := localstore.Open(filepath.Join(cfg.DataDir, "grovli.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	tokens := auth.NewTokenStore(cfg.DataDir, logger)
	backend := api.NewClient(cfg.APIBaseURL, cfg.UserID, tokens, cfg.PublicPathPrefixes, cfg.RequestTimeout, logger)

	metricsStore := metrics.NewStore(local.DB())
	backend.SetRecorder(metricsStore)

	dataCache := cache.New(filepath.Join(cfg.DataDir, "cache"), cfg.CacheTTL, logger)

	queries := query.NewClient(dataCache, func(ctx context.Context, key string) (json.RawMessage, error) {
		path, ok := endpointPaths[key]
		if !ok {
			return nil, fmt.Errorf("unknown read key %q", key)
		}
		return backend.Get(ctx, path)
	}, query.Options{
		DedupeInterval: cfg.DedupeInterval,
		RetryCount:     cfg.RetryCount,
		RetryInterval:  cfg.RetryInterval,
	}, logger)

	mutator := mutate.NewMutator(backend, dataCache, queries, local, logger)

	bus := events.NewBus()
	watcher := notify.NewWatcher(notify.NewAPIStatusSource(backend), bus, local, notify.Options{
		PollInterval: cfg.PollInterval,
		MaxFailures:  cfg.PollMaxFailures,
	}, logger)

	return &App{
		cfg:         cfg,
		logger:      logger,
		Tokens:      tokens,
		API:         backend,
		Cache:       dataCache,
		Queries:     queries,
		Mutator:     mutator,
		Local:       local,
		Bus:         bus,
		Watcher:     watcher,
		Clipper:     clip.NewClipper(backend, logger),
		Metrics:     metricsStore,
		Sessions:    store.NewChatSessionStore(local.DB(), cfg.ChatSessionTTL),
		MealPlan:    store.NewMealPlanStore(),
		Completions: store.NewCompletionStore(),
		Calories:    store.NewCalorieStore(),
		Pantry:      store.NewPantryStore(),
	}, nil
}

// Close releases the local store.
func (a *App) Close() error {
	a.Watcher.Stop()
	return a.Local.Close()
}

// Preload warms the cache for the keys the main pages need, in parallel.
// Individual failures are logged, not fatal; the pages fall back to
// on-demand loads.
func (a *App) Preload(ctx context.Context) {
	var wg sync.WaitGroup
	for _, key := range preloadKeys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if _, err := a.Queries.Lookup(ctx, key); err != nil {
				a.logger.Warn("preload failed", "key", key, "error", err)
			}
		}(key)
	}
	wg.Wait()
}

// RestoreSession loads the persisted store snapshots and the generation
// state from the previous session. Restored data is stale by definition;
// callers revalidate against the backend afterward.
func (a *App) RestoreSession(ctx context.Context) error {
	restores := []struct {
		key string
		p   store.Persistable
	}{
		{store.KeyMealPlanSnapshot, a.MealPlan},
		{store.KeyCompletionSnapshot, a.Completions},
		{store.KeyCalorieSnapshot, a.Calories},
		{store.KeyPantrySnapshot, a.Pantry},
	}
	for _, r := range restores {
		if err := store.Load(ctx, a.Local, r.key, r.p); err != nil {
			a.logger.Warn("failed to restore snapshot", "key", r.key, "error", err)
		}
	}

	if _, err := a.Watcher.Restore(ctx); err != nil {
		a.logger.Warn("failed to restore generation state", "error", err)
	}
	a.RecalculateCalories()
	return nil
}

// SaveSession persists the store snapshots. Completions are merged with
// the persisted record rather than overwritten, since another process
// sharing the data dir may have toggled meals this one never saw.
func (a *App) SaveSession(ctx context.Context) error {
	saves := []struct {
		key string
		p   store.Persistable
	}{
		{store.KeyMealPlanSnapshot, a.MealPlan},
		{store.KeyCalorieSnapshot, a.Calories},
		{store.KeyPantrySnapshot, a.Pantry},
	}
	for _, s := range saves {
		if err := store.Save(ctx, a.Local, s.key, s.p); err != nil {
			return err
		}
	}
	return store.SaveMerged(ctx, a.Local, store.KeyCompletionSnapshot, a.Completions)
}

// LoadMealPlan fetches the meal plan through the read path and re-derives
// the plan store and calorie totals from it.
func (a *App) LoadMealPlan(ctx context.Context) error {
	payload, err := a.Queries.Lookup(ctx, "meal-plans")
	if err != nil {
		return err
	}
	if err := a.MealPlan.ApplyServerPlan(payload); err != nil {
		return err
	}
	a.RecalculateCalories()
	return nil
}

// LoadPantry fetches the pantry through the read path.
func (a *App) LoadPantry(ctx context.Context) error {
	payload, err := a.Queries.Lookup(ctx, "pantry")
	if err != nil {
		return err
	}
	return a.Pantry.ApplyServerItems(payload)
}

// generateResponse is the backend's answer to a generation request: either
// a finished plan inline, or a job handle for a background run.
type generateResponse struct {
	Status string          `json:"status"`
	JobID  string          `json:"jobId"`
	Plan   json.RawMessage `json:"plan"`
}

// GenerateRequest asks the backend for a new plan.
type GenerateRequest struct {
	Days        int      `json:"days,omitempty"`
	Preferences []string `json:"preferences,omitempty"`
	PantryItems []string `json:"pantryItems,omitempty"`
}

// GenerateMealPlan requests a new meal plan. Small requests come back
// inline and are applied immediately; larger ones run in the background and
// the watcher tracks them to completion. The returned job id is empty for
// inline results.
func (a *App) GenerateMealPlan(ctx context.Context, req GenerateRequest) (string, error) {
	payload, err := a.API.Post(ctx, "/api/meal-plans/generate", req)
	if err != nil {
		return "", fmt.Errorf("failed to start generation: %w", err)
	}

	var resp generateResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", fmt.Errorf("failed to decode generation response: %w", err)
	}

	if resp.Status == "processing" && resp.JobID != "" {
		a.Watcher.Start(ctx, resp.JobID)
		return resp.JobID, nil
	}

	if len(resp.Plan) > 0 {
		if err := a.MealPlan.ApplyServerPlan(resp.Plan); err != nil {
			return "", err
		}
	}
	a.Queries.Invalidate("meal-plans")
	a.RecalculateCalories()
	return "", nil
}

// completionBody is the wire shape of a completion toggle.
type completionBody struct {
	DateKey   string         `json:"dateKey"`
	MealType  store.MealType `json:"mealType"`
	Completed bool           `json:"completed"`
}

// ToggleCompletion flips a meal's completion optimistically, recomputes the
// calorie totals, and syncs the change. On failure the local value reverts
// and the totals are recomputed again. A write deferred while suspended
// returns mutate.ErrQueued with the optimistic state intact; ReplayPending
// sends it later.
func (a *App) ToggleCompletion(ctx context.Context, dateKey string, mealType store.MealType) (bool, error) {
	value := a.Completions.Toggle(dateKey, mealType)
	a.MealPlan.SetCompleted(dateKey, mealType, value)
	a.RecalculateCalories()
	a.Bus.Publish(events.TopicCompletionChanged, store.CompletionKey(dateKey, mealType))

	body := completionBody{DateKey: dateKey, MealType: mealType, Completed: value}
	_, err := a.Mutator.Put(ctx, "/api/completions", body, mutate.Request{
		Key:            "completions",
		InvalidateKeys: []string{"completions"},
		QueueKind:      QueueKindCompletion,
	})
	if err != nil {
		// A queued write is deferred, not failed: the toggle stays
		// applied and its pending record survives until the replay
		// confirms or rejects it.
		if errors.Is(err, mutate.ErrQueued) {
			return value, err
		}
		a.Completions.SetPendingStatus(dateKey, mealType, store.PendingStatusError)
		a.MealPlan.SetCompleted(dateKey, mealType, !value)
		a.RecalculateCalories()
		return !value, err
	}

	a.Completions.SetPendingStatus(dateKey, mealType, store.PendingStatusSynced)
	return value, nil
}

// RecalculateCalories re-derives the calorie totals from today's plan.
func (a *App) RecalculateCalories() store.Totals {
	today := store.FormatDateKey(time.Now())
	return a.Calories.CalculateFromMeals(a.MealPlan.Today(), a.Completions.ForDate(today))
}

// ReplayPending flushes writes queued while suspended.
func (a *App) ReplayPending(ctx context.Context) (int, error) {
	return a.Mutator.Flush(ctx, QueueKindCompletion)
}

// StartBackground launches the long-lived loops: periodic revalidation of
// the meal plan and the cross-process notification listener. It returns
// immediately; the loops stop when ctx is done.
func (a *App) StartBackground(ctx context.Context) {
	go a.Queries.AutoRefresh(ctx, "meal-plans", a.cfg.RefreshInterval)

	go func() {
		updates := a.Local.Watch(ctx, notify.KeyNotification, a.cfg.LocalStoreWatch)
		for data := range updates {
			var payload events.PlanReadyPayload
			if err := json.Unmarshal(data, &payload); err != nil {
				continue
			}
			// Our own watcher already published this result; only
			// notifications written by another process are re-published,
			// so local subscribers see each result exactly once.
			if _, resultID := a.Watcher.State(); resultID == payload.ResultID {
				continue
			}
			a.Bus.Publish(events.TopicPlanReady, payload)
			a.Queries.Invalidate("meal-plans")
		}
	}()

	if a.cfg.TelegramEnabled() {
		sink, err := notify.NewTelegramSink(a.cfg.TelegramBotToken, a.cfg.TelegramChatID, a.Bus, a.logger)
		if err != nil {
			a.logger.Warn("telegram sink disabled", "error", err)
			return
		}
		go sink.Run(ctx)
	}
}
