package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"fitness-planner/internal/app"
	"fitness-planner/internal/config"
	"fitness-planner/internal/generation"
	"fitness-planner/internal/logging"
	"fitness-planner/internal/planservice"
	"fitness-planner/internal/profile"
	"fitness-planner/internal/render"
	"fitness-planner/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
)

func main() {
	ctx := context.Background()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.Setup(logging.SetupParams{
		LogFileName:   cfg.LogFile,
		LogLevel:      cfg.LogLevel,
		LogFormatJSON: cfg.LogJSON,
	})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := run(ctx, application, os.Args[1], os.Args[2:]); err != nil {
		application.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := application.Close(); err != nil {
		log.WithError(err).Error("failed to close application")
	}
}

func run(ctx context.Context, a *app.App, command string, args []string) error {
	switch command {
	case "onboard":
		return onboard(a)
	case "plan":
		return plan(ctx, a, args)
	case "history":
		return showHistory(ctx, a, args)
	case "plan-last":
		return planLast(ctx, a, args)
	case "login":
		return login(ctx, a, args)
	case "signup":
		return signup(ctx, a, args)
	case "logout":
		if err := a.Auth.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	case "profile":
		return printMarkdown(render.Profile(a.Profile(), render.CommonMark))
	case "stats":
		return stats(ctx, a, args)
	case "metrics-cleanup":
		cleanupCmd := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Keep records for the last N days")
		cleanupCmd.Parse(args)

		affected, err := a.Metrics.Cleanup(ctx, *days)
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		fmt.Printf("Successfully removed %d old metric records.\n", affected)
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func onboard(a *app.App) error {
	model := ui.NewWizardModel(a.Profiles, a.Config().OnboardingDelay)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("failed to run onboarding: %w", err)
	}
	if !model.Completed() {
		fmt.Println("Onboarding cancelled. Your answers so far are saved.")
		return nil
	}
	fmt.Println("Profile saved. Try `fitness-planner plan weekly`.")
	return nil
}

func plan(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: fitness-planner plan <daily|weekly|meal|workout> [flags]")
	}
	kind, err := planservice.ParseKind(args[0])
	if err != nil {
		return err
	}

	form, printOnly, err := parseForm(kind, args[1:])
	if err != nil {
		return err
	}

	a.RefreshHistories(ctx)
	orch := a.Orchestrator(kind)

	if !printOnly {
		var hist ui.HistorySource
		if cache := a.History(kind); cache != nil {
			hist = cache
		}
		model := ui.NewPlanModel(orch, form, hist)
		if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
			return fmt.Errorf("failed to run plan viewer: %w", err)
		}
		if st := model.State(); st.Result != nil {
			return printMarkdown(render.Plan(st.Result, render.CommonMark))
		}
		return nil
	}

	fmt.Fprintf(os.Stderr, "Generating your %s plan...\n", kind)
	st := orch.Generate(ctx, form)
	if st.Status != generation.StatusSuccess {
		return errors.New(st.ErrorMessage)
	}
	return printMarkdown(render.Plan(st.Result, render.CommonMark))
}

// parseForm reads the kind's form fields from flags. Unset flags keep the
// form's zero value, which falls back to the defaults and the profile.
func parseForm(kind planservice.Kind, args []string) (planservice.Form, bool, error) {
	fs := flag.NewFlagSet("plan "+string(kind), flag.ContinueOnError)
	printOnly := fs.Bool("print", false, "Print the plan instead of opening the viewer")
	goal := fs.String("goal", "", "Goal (defaults to the profile's)")

	var (
		calories, age, minutes             *int
		protein                            *float64
		dietType, dietPref, cuisine, level *string
		equipment, conditions              *string
	)
	switch kind {
	case planservice.KindMeal:
		calories = fs.Int("calories", planservice.DefaultCalories, "Daily calories")
		dietType = fs.String("diet-type", planservice.DefaultDietType, "One of "+strings.Join(planservice.DietTypes, ", "))
		protein = fs.Float64("protein", planservice.DefaultProtein, "Protein in grams")
		dietPref = fs.String("diet-preference", planservice.DefaultDietPreference, "Diet preference")
		cuisine = fs.String("cuisine", "", "Cuisine (defaults to the profile's)")
	case planservice.KindWorkout:
		minutes = fs.Int("time", planservice.DefaultAvailableTime, "Available time in minutes")
		level = fs.String("level", planservice.DefaultFitnessLevel, "One of "+strings.Join(planservice.FitnessLevels, ", "))
		age = fs.Int("age", planservice.DefaultAge, "Age in years")
		equipment = fs.String("equipment", "", "Comma separated equipment (defaults to the profile's)")
		conditions = fs.String("conditions", "", "Comma separated health conditions")
	}

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	switch kind {
	case planservice.KindMeal:
		return planservice.MealForm{
			Goal:           profile.Goal(*goal),
			Calories:       *calories,
			DietType:       *dietType,
			Cuisine:        *cuisine,
			Protein:        *protein,
			DietPreference: *dietPref,
		}, *printOnly, nil
	case planservice.KindWorkout:
		form := planservice.WorkoutForm{
			Goal:             profile.Goal(*goal),
			AvailableTime:    *minutes,
			FitnessLevel:     *level,
			Age:              *age,
			HealthConditions: splitList(*conditions),
		}
		if *equipment != "" {
			form.Equipment = splitList(*equipment)
		}
		return form, *printOnly, nil
	default:
		return planservice.FormFor(kind), *printOnly, nil
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func showHistory(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: fitness-planner history <meal|workout>")
	}
	kind, err := planservice.ParseKind(args[0])
	if err != nil {
		return err
	}

	entries, err := a.FetchHistory(ctx, kind)
	if err != nil {
		return err
	}
	return printMarkdown(render.History(kind, entries, render.CommonMark))
}

func planLast(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: fitness-planner plan-last <daily|weekly|meal|workout>")
	}
	kind, err := planservice.ParseKind(args[0])
	if err != nil {
		return err
	}

	stored, err := a.LatestResult(ctx, kind)
	if errors.Is(err, generation.ErrNoResult) {
		fmt.Printf("No %s plan saved yet.\n", kind)
		return nil
	}
	if err != nil {
		return err
	}
	return printMarkdown(render.Stored(stored.Plan, stored.CreatedAt, render.CommonMark))
}

func login(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Account email")
	password := fs.String("password", os.Getenv("FITNESS_PASSWORD"), "Account password (or FITNESS_PASSWORD)")
	fs.Parse(args)

	if *email == "" || *password == "" {
		return errors.New("usage: fitness-planner login -email <email> -password <password>")
	}

	session, err := a.Auth.Login(ctx, *email, *password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Printf("Welcome back, %s.\n", session.Name)
	a.RefreshHistories(ctx)
	return nil
}

func signup(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	name := fs.String("name", "", "Your name")
	email := fs.String("email", "", "Account email")
	password := fs.String("password", os.Getenv("FITNESS_PASSWORD"), "Account password (or FITNESS_PASSWORD)")
	fs.Parse(args)

	if *name == "" || *email == "" || *password == "" {
		return errors.New("usage: fitness-planner signup -name <name> -email <email> -password <password>")
	}

	session, err := a.Auth.Signup(ctx, *name, *email, *password)
	if err != nil {
		return fmt.Errorf("signup failed: %w", err)
	}
	fmt.Printf("Account created. Welcome, %s.\n", session.Name)
	return nil
}

func stats(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	days := fs.Int("days", 7, "Number of days to report")
	fs.Parse(args)

	report, err := a.Stats(ctx, *days)
	if err != nil {
		return err
	}

	fmt.Printf("=== PLAN REQUESTS (last %d days) ===\n", *days)
	if len(report.Usage) == 0 {
		fmt.Println("No data yet.")
	}
	for _, d := range report.Usage {
		fmt.Printf("%s  %-8s %3d requests  %3d failed  avg %dms\n", d.Date, d.Kind, d.Total, d.Failures, d.AvgLatencyMS)
	}

	fmt.Println("\n=== LOCAL HEALTH ===")
	fmt.Printf("RAM: %dMB  Goroutines: %d\n", report.Health.AllocMB, report.Health.Goroutines)
	for _, f := range report.Health.Files {
		fmt.Printf("%s: %s\n", f.Path, f.Size)
	}
	return nil
}

func printMarkdown(md string) error {
	out, err := render.Terminal(md, 0)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func printUsage() {
	fmt.Println("Usage: fitness-planner <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  onboard                       Set up your profile")
	fmt.Println("  plan <kind> [-print] [flags]  Generate a daily, weekly, meal or workout plan")
	fmt.Println("  history <meal|workout>        Show previous plans")
	fmt.Println("  plan-last <kind>              Show the last plan saved locally")
	fmt.Println("  login -email -password        Log in")
	fmt.Println("  signup -name -email -password Create an account")
	fmt.Println("  logout                        Forget the session")
	fmt.Println("  profile                       Show your profile")
	fmt.Println("  stats [-days N]               Show request metrics")
	fmt.Println("  metrics-cleanup [-days N]     Delete old metrics")
}
