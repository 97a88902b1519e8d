package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"fitness-planner/internal/app"
	"fitness-planner/internal/config"
	"fitness-planner/internal/generation"
	"fitness-planner/internal/planservice"
	"fitness-planner/internal/profile"
	"fitness-planner/internal/render"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// maxMessageLength is Telegram's limit for one text message.
const maxMessageLength = 4096

// Backend is the application layer the bot talks to.
type Backend interface {
	Orchestrator(kind planservice.Kind) *generation.Orchestrator
	FetchHistory(ctx context.Context, kind planservice.Kind) ([]planservice.HistoryEntry, error)
	Profile() profile.Profile
	LatestResult(ctx context.Context, kind planservice.Kind) (generation.StoredResult, error)
	Stats(ctx context.Context, days int) (app.Report, error)
}

// Sender delivers messages to Telegram.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot exposes the plan orchestrators as Telegram commands.
type Bot struct {
	sender      Sender
	backend     Backend
	allowed     map[int64]bool
	limiter     *userLimiter
	rateLimited prometheus.Counter

	mu       sync.Mutex
	inFlight map[planservice.Kind]bool
}

type Option func(*Bot)

// WithRateLimit allows each user burst plan commands, refilled one per every.
func WithRateLimit(every time.Duration, burst int) Option {
	return func(b *Bot) {
		b.limiter = newUserLimiter(every, burst)
	}
}

// WithRateLimitedCounter counts plan commands rejected by the rate limit.
func WithRateLimitedCounter(c prometheus.Counter) Option {
	return func(b *Bot) {
		b.rateLimited = c
	}
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, backend Backend, opts ...Option) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	log.WithField("account", api.Self.UserName).Info("telegram bot authorized")

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook for %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	log.WithField("response", resp.Description).Info("telegram webhook set")

	opts = append([]Option{WithRateLimit(cfg.PlanRateEvery, cfg.PlanRateBurst)}, opts...)
	return newBot(api, backend, cfg.TelegramAllowedUserIDs, opts...), nil
}

func newBot(sender Sender, backend Backend, allowedIDs []int64, opts ...Option) *Bot {
	allowed := make(map[int64]bool, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = true
	}
	b := &Bot{
		sender:   sender,
		backend:  backend,
		allowed:  allowed,
		inFlight: make(map[planservice.Kind]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Router serves the webhook and health endpoints, and /metrics from gatherer
// when it is not nil.
func (b *Bot) Router(gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/webhook", b.handleWebhook).Methods("POST").Name("webhook")
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET").Name("health")
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET").Name("metrics")
	}
	return r
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.WithError(err).Warn("failed to parse telegram update")
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}
	b.handleUpdate(&update)
}

func (b *Bot) handleUpdate(update *tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	if !b.allowed[msg.From.ID] {
		log.WithFields(log.Fields{
			"user_id":  msg.From.ID,
			"username": msg.From.UserName,
		}).Warn("unauthorized telegram access attempt")
		return
	}

	go b.processMessage(msg)
}

// parseCommand splits "/last@bot weekly" into "last" and "weekly".
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, args, _ := strings.Cut(text[1:], " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

var planCommands = map[string]planservice.Kind{
	"daily":   planservice.KindDaily,
	"weekly":  planservice.KindWeekly,
	"meal":    planservice.KindMeal,
	"workout": planservice.KindWorkout,
}

var historyCommands = map[string]planservice.Kind{
	"history_meal":    planservice.KindMeal,
	"history_workout": planservice.KindWorkout,
}

const helpText = `🏋️ *Fitness Planner*

/daily - today's workout and calories
/weekly - a seven day training plan
/meal - a meal plan for today
/workout - a detailed workout session
/history\_meal - previous meal plans
/history\_workout - previous workouts
/last <kind> - the last plan saved locally
/profile - your profile
/metrics - usage and health report`

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	ctx := context.Background()
	chatID := msg.Chat.ID
	cmd, args := parseCommand(msg.Text)

	if kind, ok := planCommands[cmd]; ok {
		if !b.limiter.Allow(msg.From.ID) {
			if b.rateLimited != nil {
				b.rateLimited.Inc()
			}
			log.WithFields(log.Fields{"user_id": msg.From.ID, "kind": kind}).Info("plan command rate limited")
			b.sendMarkdown(chatID, "🐢 Too many plan requests. Try again in a moment.")
			return
		}
		b.handlePlanRequest(ctx, chatID, kind)
		return
	}
	if kind, ok := historyCommands[cmd]; ok {
		b.handleHistoryRequest(ctx, chatID, kind)
		return
	}

	switch cmd {
	case "profile":
		b.sendMarkdown(chatID, render.Profile(b.backend.Profile(), render.Telegram))
	case "last":
		b.handleLastRequest(ctx, chatID, args)
	case "metrics":
		b.handleMetricsCommand(ctx, chatID)
	default:
		b.sendMarkdown(chatID, helpText)
	}
}

func (b *Bot) handlePlanRequest(ctx context.Context, chatID int64, kind planservice.Kind) {
	orch := b.backend.Orchestrator(kind)
	busy := fmt.Sprintf("⏳ A %s plan is already being generated.", kind)
	if !b.begin(kind) {
		b.sendMarkdown(chatID, busy)
		return
	}
	defer b.finish(kind)
	if orch.Current().Loading() {
		b.sendMarkdown(chatID, busy)
		return
	}

	status := tgbotapi.NewMessage(chatID, fmt.Sprintf("🧠 *Generating your %s plan...*", kind))
	status.ParseMode = tgbotapi.ModeMarkdown
	sent, err := b.sender.Send(status)
	if err != nil {
		log.WithError(err).Warn("failed to send status message")
		return
	}

	log.WithFields(log.Fields{"kind": kind, "chat_id": chatID}).Info("generating plan")
	st := orch.Generate(ctx, planservice.FormFor(kind))

	if st.Status != generation.StatusSuccess {
		text := "❌ *Could not generate your plan:*\n" + escape(st.ErrorMessage)
		edit := tgbotapi.NewEditMessageText(chatID, sent.MessageID, text)
		edit.ParseMode = tgbotapi.ModeMarkdown
		b.send(edit)
		return
	}

	text := render.Plan(st.Result, render.Telegram)
	parseMode := tgbotapi.ModeMarkdown
	if render.HasFreeText(st.Result) {
		parseMode = ""
	}

	parts := splitMessage(text, maxMessageLength)
	edit := tgbotapi.NewEditMessageText(chatID, sent.MessageID, parts[0])
	edit.ParseMode = parseMode
	b.send(edit)

	for _, part := range parts[1:] {
		next := tgbotapi.NewMessage(chatID, part)
		next.ParseMode = parseMode
		b.send(next)
	}
}

// begin claims kind for one plan command at a time.
func (b *Bot) begin(kind planservice.Kind) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight[kind] {
		return false
	}
	b.inFlight[kind] = true
	return true
}

func (b *Bot) finish(kind planservice.Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inFlight, kind)
}

func (b *Bot) handleHistoryRequest(ctx context.Context, chatID int64, kind planservice.Kind) {
	entries, err := b.backend.FetchHistory(ctx, kind)
	if errors.Is(err, app.ErrNoEmail) {
		b.sendMarkdown(chatID, "ℹ️ History needs an account. Log in with the CLI first.")
		return
	}
	if err != nil {
		log.WithError(err).WithField("kind", kind).Warn("failed to fetch history")
		b.sendMarkdown(chatID, "❌ Error fetching history.")
		return
	}
	b.sendMarkdown(chatID, render.History(kind, entries, render.Telegram))
}

func (b *Bot) handleLastRequest(ctx context.Context, chatID int64, args string) {
	kind, err := planservice.ParseKind(args)
	if err != nil {
		b.sendMarkdown(chatID, "Usage: /last daily|weekly|meal|workout")
		return
	}

	stored, err := b.backend.LatestResult(ctx, kind)
	if errors.Is(err, generation.ErrNoResult) {
		b.sendMarkdown(chatID, fmt.Sprintf("No %s plan saved yet.", kind))
		return
	}
	if err != nil {
		log.WithError(err).WithField("kind", kind).Warn("failed to load saved plan")
		b.sendMarkdown(chatID, "❌ Error loading the saved plan.")
		return
	}

	text := render.Stored(stored.Plan, stored.CreatedAt, render.Telegram)
	parseMode := tgbotapi.ModeMarkdown
	if render.HasFreeText(stored.Plan) {
		parseMode = ""
	}
	for _, part := range splitMessage(text, maxMessageLength) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = parseMode
		b.send(msg)
	}
}

func (b *Bot) handleMetricsCommand(ctx context.Context, chatID int64) {
	report, err := b.backend.Stats(ctx, 7)
	if err != nil {
		log.WithError(err).Warn("failed to load metrics")
		b.send(tgbotapi.NewMessage(chatID, "❌ Error fetching metrics."))
		return
	}
	b.sendMarkdown(chatID, formatReport(report))
}

func formatReport(report app.Report) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent Plan Requests*\n")
	if len(report.Usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range report.Usage {
		sb.WriteString(fmt.Sprintf("• *%s* %s: %d requests, %d failed, avg %dms\n",
			d.Date, d.Kind, d.Total, d.Failures, d.AvgLatencyMS))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc)\n", report.Health.AllocMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", report.Health.Goroutines))
	for _, f := range report.Health.Files {
		sb.WriteString(fmt.Sprintf("• %s: %s\n", escape(f.Path), f.Size))
	}
	return sb.String()
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	b.send(msg)
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.sender.Send(c); err != nil {
		log.WithError(err).Warn("failed to send telegram message")
	}
}

var markdownEscaper = strings.NewReplacer("*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`)

func escape(s string) string {
	return markdownEscaper.Replace(s)
}

// splitMessage cuts text into parts of at most limit bytes, preferring line
// breaks and never splitting a UTF-8 sequence.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var parts []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		parts = append(parts, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}
