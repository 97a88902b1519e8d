package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fitness-planner/internal/app"
	"fitness-planner/internal/generation"
	"fitness-planner/internal/metrics"
	"fitness-planner/internal/planservice"
	"fitness-planner/internal/profile"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

// texts returns the text and parse mode of every message sent or edited.
func (f *fakeSender) texts() (texts, modes []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			texts = append(texts, m.Text)
			modes = append(modes, m.ParseMode)
		case tgbotapi.EditMessageTextConfig:
			texts = append(texts, m.Text)
			modes = append(modes, m.ParseMode)
		}
	}
	return texts, modes
}

type fixedGenerator struct {
	plan planservice.Plan
	err  error
}

func (g fixedGenerator) Generate(context.Context, planservice.Request) (planservice.Plan, error) {
	return g.plan, g.err
}

type fakeBackend struct {
	orchestrators map[planservice.Kind]*generation.Orchestrator
	history       []planservice.HistoryEntry
	historyErr    error
	profile       profile.Profile
	stored        generation.StoredResult
	storedErr     error
	report        app.Report
}

func (f *fakeBackend) Orchestrator(kind planservice.Kind) *generation.Orchestrator {
	return f.orchestrators[kind]
}

func (f *fakeBackend) FetchHistory(context.Context, planservice.Kind) ([]planservice.HistoryEntry, error) {
	return f.history, f.historyErr
}

func (f *fakeBackend) Profile() profile.Profile { return f.profile }

func (f *fakeBackend) LatestResult(context.Context, planservice.Kind) (generation.StoredResult, error) {
	return f.stored, f.storedErr
}

func (f *fakeBackend) Stats(context.Context, int) (app.Report, error) { return f.report, nil }

type staticProfile struct{}

func (staticProfile) Get() profile.Profile { return profile.Profile{Name: "Sunny"} }

func newTestBot(t *testing.T, backend *fakeBackend) (*Bot, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	return newBot(sender, backend, []int64{42}), sender
}

func command(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: text,
		From: &tgbotapi.User{ID: 42},
		Chat: &tgbotapi.Chat{ID: 7},
	}
}

func TestBot_PlanSuccess(t *testing.T) {
	plan := planservice.WeeklyPlan{Days: []planservice.DayPlan{{Day: "Monday", Workout: "Leg Day", Calories: 2400}}}
	orch := generation.New(planservice.KindWeekly, staticProfile{}, fixedGenerator{plan: plan})
	defer orch.Wait()

	bot, sender := newTestBot(t, &fakeBackend{
		orchestrators: map[planservice.Kind]*generation.Orchestrator{planservice.KindWeekly: orch},
	})
	bot.processMessage(command("/weekly"))

	texts, modes := sender.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Generating your weekly plan")
	assert.Contains(t, texts[1], "*Monday*: Leg Day (2400 kcal)")
	assert.Equal(t, tgbotapi.ModeMarkdown, modes[1])
}

func TestBot_PlanFreeTextIsSentPlain(t *testing.T) {
	plan := planservice.MealPlan{Text: "### Breakfast\n- Oats_with_honey"}
	orch := generation.New(planservice.KindMeal, staticProfile{}, fixedGenerator{plan: plan})
	defer orch.Wait()

	bot, sender := newTestBot(t, &fakeBackend{
		orchestrators: map[planservice.Kind]*generation.Orchestrator{planservice.KindMeal: orch},
	})
	bot.processMessage(command("/meal@FitnessBot"))

	texts, modes := sender.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "Oats_with_honey")
	assert.Empty(t, modes[1])
}

func TestBot_PlanServiceError(t *testing.T) {
	orch := generation.New(planservice.KindMeal, staticProfile{},
		fixedGenerator{err: &planservice.ServiceError{Message: "Invalid diet_type"}})
	defer orch.Wait()

	bot, sender := newTestBot(t, &fakeBackend{
		orchestrators: map[planservice.Kind]*generation.Orchestrator{planservice.KindMeal: orch},
	})
	bot.processMessage(command("/meal"))

	texts, _ := sender.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], `Invalid diet\_type`)
}

func TestBot_History(t *testing.T) {
	t.Run("without email", func(t *testing.T) {
		bot, sender := newTestBot(t, &fakeBackend{historyErr: app.ErrNoEmail})
		bot.processMessage(command("/history_meal"))

		texts, _ := sender.texts()
		require.Len(t, texts, 1)
		assert.Contains(t, texts[0], "History needs an account")
	})

	t.Run("entries", func(t *testing.T) {
		bot, sender := newTestBot(t, &fakeBackend{history: []planservice.HistoryEntry{
			{RequestSummary: map[string]any{"fitness_level": "Beginner"}},
		}})
		bot.processMessage(command("/history_workout"))

		texts, _ := sender.texts()
		require.Len(t, texts, 1)
		assert.Contains(t, texts[0], "*Workout history (1)*")
		assert.Contains(t, texts[0], "Beginner")
	})
}

func TestBot_Last(t *testing.T) {
	t.Run("nothing saved", func(t *testing.T) {
		bot, sender := newTestBot(t, &fakeBackend{storedErr: generation.ErrNoResult})
		bot.processMessage(command("/last weekly"))

		texts, _ := sender.texts()
		require.Len(t, texts, 1)
		assert.Equal(t, "No weekly plan saved yet.", texts[0])
	})

	t.Run("saved", func(t *testing.T) {
		bot, sender := newTestBot(t, &fakeBackend{stored: generation.StoredResult{
			Kind:      planservice.KindDaily,
			Plan:      planservice.DailyPlan{Workout: []string{"Pushups"}, RecommendedCalories: 2400},
			CreatedAt: time.Now(),
		}})
		bot.processMessage(command("/last daily"))

		texts, _ := sender.texts()
		require.Len(t, texts, 1)
		assert.Contains(t, texts[0], "Pushups")
	})

	t.Run("bad kind", func(t *testing.T) {
		bot, sender := newTestBot(t, &fakeBackend{})
		bot.processMessage(command("/last monthly"))

		texts, _ := sender.texts()
		require.Len(t, texts, 1)
		assert.Contains(t, texts[0], "Usage: /last")
	})
}

func TestBot_ProfileAndMetrics(t *testing.T) {
	bot, sender := newTestBot(t, &fakeBackend{
		profile: profile.Profile{Name: "Sunny", Goal: profile.GoalLoseFat},
		report: app.Report{
			Usage:  []metrics.DailyUsage{{Date: "2025-11-02", Kind: "meal", Total: 3, Failures: 1, AvgLatencyMS: 850}},
			Health: metrics.LocalHealth{AllocMB: 4, Goroutines: 9, Files: []metrics.FileUsage{{Path: "data/fitness.db", Size: "12.0 KB"}}},
		},
	})

	bot.processMessage(command("/profile"))
	bot.processMessage(command("/metrics"))
	bot.processMessage(command("hello"))

	texts, _ := sender.texts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[0], "Sunny")
	assert.Contains(t, texts[1], "• *2025-11-02* meal: 3 requests, 1 failed, avg 850ms")
	assert.Contains(t, texts[1], "• Goroutines: 9")
	assert.Contains(t, texts[2], "/history\\_meal")
}

func TestBot_IgnoresUnknownUsers(t *testing.T) {
	bot, sender := newTestBot(t, &fakeBackend{})
	msg := command("/profile")
	msg.From.ID = 99

	bot.handleUpdate(&tgbotapi.Update{Message: msg})
	bot.handleUpdate(&tgbotapi.Update{})

	texts, _ := sender.texts()
	assert.Empty(t, texts)
}

// gatedGenerator reports each call on started and blocks until release is closed.
type gatedGenerator struct {
	plan    planservice.Plan
	started chan struct{}
	release chan struct{}
}

func (g gatedGenerator) Generate(context.Context, planservice.Request) (planservice.Plan, error) {
	g.started <- struct{}{}
	<-g.release
	return g.plan, nil
}

func TestBot_ConcurrentPlanCommandsGenerateOnce(t *testing.T) {
	gen := gatedGenerator{
		plan:    planservice.WeeklyPlan{Days: []planservice.DayPlan{{Day: "Monday", Workout: "Rest"}}},
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	orch := generation.New(planservice.KindWeekly, staticProfile{}, gen)
	defer orch.Wait()

	bot, sender := newTestBot(t, &fakeBackend{
		orchestrators: map[planservice.Kind]*generation.Orchestrator{planservice.KindWeekly: orch},
	})

	// Claim the kind the way a first command does, before its submit reaches the orchestrator.
	require.True(t, bot.begin(planservice.KindWeekly))
	bot.processMessage(command("/weekly"))
	bot.finish(planservice.KindWeekly)

	texts, _ := sender.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "already being generated")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		bot.processMessage(command("/weekly"))
	}()
	<-gen.started
	bot.processMessage(command("/weekly"))
	close(gen.release)
	wg.Wait()

	texts, _ = sender.texts()
	require.Len(t, texts, 4)
	assert.Contains(t, texts[2], "already being generated")
	assert.Len(t, gen.started, 0, "the second command never reached the service")
}

func TestBot_RateLimitsPlanCommands(t *testing.T) {
	plan := planservice.WeeklyPlan{Days: []planservice.DayPlan{{Day: "Monday", Workout: "Rest"}}}
	orch := generation.New(planservice.KindWeekly, staticProfile{}, fixedGenerator{plan: plan})
	defer orch.Wait()

	limited := prometheus.NewCounter(prometheus.CounterOpts{Name: "limited"})
	sender := &fakeSender{}
	bot := newBot(sender, &fakeBackend{
		orchestrators: map[planservice.Kind]*generation.Orchestrator{planservice.KindWeekly: orch},
	}, []int64{42}, WithRateLimit(time.Hour, 1), WithRateLimitedCounter(limited))

	bot.processMessage(command("/weekly"))
	bot.processMessage(command("/weekly"))
	bot.processMessage(command("/help"))

	texts, _ := sender.texts()
	require.Len(t, texts, 4)
	assert.Contains(t, texts[2], "Too many plan requests")
	assert.Contains(t, texts[3], "Fitness Planner", "other commands are not limited")
	assert.Equal(t, float64(1), testutil.ToFloat64(limited))
}

func TestUserLimiter(t *testing.T) {
	assert.Nil(t, newUserLimiter(0, 3), "zero interval disables limiting")
	assert.True(t, (*userLimiter)(nil).Allow(1))

	l := newUserLimiter(time.Hour, 2)
	assert.True(t, l.Allow(1))
	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(1))
	assert.True(t, l.Allow(2), "buckets are per user")
}

func TestBot_Router(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "fitness_test_total"}))

	bot, sender := newTestBot(t, &fakeBackend{})
	router := bot.Router(reg)

	serve := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	rec := serve(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = serve(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fitness_test_total 0")

	update := `{"update_id": 1, "message": {"message_id": 1, "text": "/profile", "from": {"id": 99}, "chat": {"id": 7}}}`
	rec = serve(http.MethodPost, "/webhook", update)
	assert.Equal(t, http.StatusOK, rec.Code)
	texts, _ := sender.texts()
	assert.Empty(t, texts, "unknown users are ignored")

	assert.Equal(t, http.StatusBadRequest, serve(http.MethodPost, "/webhook", "{").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(http.MethodGet, "/webhook", "").Code)

	assert.Equal(t, http.StatusNotFound, httpCode(bot.Router(nil), "/metrics"))
}

func httpCode(h http.Handler, path string) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text, cmd, args string
	}{
		{"/weekly", "weekly", ""},
		{"/last@FitnessBot  meal ", "last", "meal"},
		{"/Daily", "daily", ""},
		{"plain text", "", "plain text"},
	}
	for _, tc := range cases {
		cmd, args := parseCommand(tc.text)
		assert.Equal(t, tc.cmd, cmd, tc.text)
		assert.Equal(t, tc.args, args, tc.text)
	}
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	parts := splitMessage("line one\nline two\nline three", 18)
	assert.Equal(t, []string{"line one\nline two", "line three"}, parts)

	long := strings.Repeat("é", 10)
	parts = splitMessage(long, 5)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 5)
		assert.True(t, strings.HasPrefix(p, "é"))
	}
	assert.Equal(t, long, strings.Join(parts, ""))
}
