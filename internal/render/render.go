package render

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"fitness-planner/internal/planservice"
	"fitness-planner/internal/profile"

	"github.com/charmbracelet/glamour"
)

// Style selects the markdown dialect.
type Style int

const (
	// CommonMark is rendered in the terminal through glamour.
	CommonMark Style = iota
	// Telegram is Telegram's legacy Markdown parse mode.
	Telegram
)

var escaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`)

type writer struct {
	style Style
	sb    strings.Builder
}

func (w *writer) heading(format string, args ...any) {
	text := escaper.Replace(fmt.Sprintf(format, args...))
	if w.style == Telegram {
		w.sb.WriteString("*" + text + "*\n\n")
		return
	}
	w.sb.WriteString("## " + text + "\n\n")
}

func (w *writer) subheading(format string, args ...any) {
	text := escaper.Replace(fmt.Sprintf(format, args...))
	if w.style == Telegram {
		w.sb.WriteString("\n*" + text + "*\n")
		return
	}
	w.sb.WriteString("\n### " + text + "\n\n")
}

func (w *writer) bullet(s string) {
	if w.style == Telegram {
		w.sb.WriteString("• " + s + "\n")
		return
	}
	w.sb.WriteString("- " + s + "\n")
}

func (w *writer) line(s string) {
	w.sb.WriteString(s + "\n")
}

func (w *writer) bold(s string) string {
	if w.style == Telegram {
		return "*" + escaper.Replace(s) + "*"
	}
	return "**" + escaper.Replace(s) + "**"
}

func (w *writer) italic(s string) string {
	return "_" + escaper.Replace(s) + "_"
}

func (w *writer) String() string {
	return strings.TrimRight(w.sb.String(), "\n") + "\n"
}

// HasFreeText reports whether the plan is free text written by the generator.
// Free text is already markdown and is passed through unchanged.
func HasFreeText(p planservice.Plan) bool {
	switch p := p.(type) {
	case planservice.MealPlan:
		return p.Text != ""
	case planservice.WorkoutPlan:
		return p.Text != ""
	}
	return false
}

// Plan renders a plan as markdown.
func Plan(p planservice.Plan, style Style) string {
	w := &writer{style: style}

	switch p := p.(type) {
	case planservice.DailyPlan:
		writeDaily(w, p)
	case planservice.WeeklyPlan:
		writeWeekly(w, p)
	case planservice.MealPlan:
		if p.Text != "" {
			return strings.TrimSpace(p.Text) + "\n"
		}
		writeMeal(w, p)
	case planservice.WorkoutPlan:
		if p.Text != "" {
			return strings.TrimSpace(p.Text) + "\n"
		}
		writeWorkout(w, p)
	case nil:
		return ""
	default:
		w.line(escaper.Replace(fmt.Sprintf("%v", p)))
	}
	return w.String()
}

func writeDaily(w *writer, p planservice.DailyPlan) {
	w.heading("Today's Plan")
	w.line(w.bold("Recommended calories:") + " " + number(p.RecommendedCalories) + " kcal")
	w.line(w.bold("Macros:") + " " + macros(p.Macros))

	w.subheading("Workout")
	for _, item := range p.Workout {
		w.bullet(escaper.Replace(item))
	}
}

func writeWeekly(w *writer, p planservice.WeeklyPlan) {
	w.heading("Weekly Plan")
	for _, d := range p.Days {
		w.bullet(fmt.Sprintf("%s: %s (%s kcal)", w.bold(d.Day), escaper.Replace(d.Workout), number(d.Calories)))
		w.line("  " + w.italic(macros(d.Macros)))
	}
}

func writeMeal(w *writer, p planservice.MealPlan) {
	w.heading("Meal Plan")
	for i, m := range p.Meals() {
		if i > 0 {
			w.line("")
		}
		w.line(w.bold(m.Label+": "+m.Meal.Dish))
		if m.Meal.Description != "" {
			w.line(w.italic(m.Meal.Description))
		}
		w.bullet(fmt.Sprintf("Protein %s · Carbs %s · Fats %s · %s",
			withUnit(m.Meal.Protein, "g"),
			withUnit(m.Meal.Carbs, "g"),
			withUnit(m.Meal.Fats, "g"),
			withUnit(m.Meal.Calories, "kcal")))
	}

	if s := p.Summary; s != nil {
		w.subheading("Daily Summary")
		w.bullet("Protein: " + withUnit(s.TotalProtein, "g"))
		w.bullet("Carbs: " + withUnit(s.TotalCarbs, "g"))
		w.bullet("Fats: " + withUnit(s.TotalFats, "g"))
		w.bullet("Calories: " + withUnit(s.TotalCalories, "kcal"))
		if s.Notes != "" {
			w.line("")
			w.line(w.italic(s.Notes))
		}
	}
}

func writeWorkout(w *writer, p planservice.WorkoutPlan) {
	w.heading("Workout Plan")

	section := ""
	for i, ex := range p.Exercises {
		if ex.Section != "" && ex.Section != section {
			section = ex.Section
			w.subheading("%s", section)
		}

		title := fmt.Sprintf("%d. %s", i+1, w.bold(ex.Exercise))
		if ex.Difficulty != "" {
			title += " (" + escaper.Replace(ex.Difficulty) + ")"
		}
		w.line(title)

		var details []string
		if ex.Muscles != "" {
			details = append(details, "Muscles: "+escaper.Replace(ex.Muscles.String()))
		}
		if ex.Duration != "" {
			details = append(details, "Duration: "+escaper.Replace(ex.Duration.String()))
		}
		if len(details) > 0 {
			w.line("   " + strings.Join(details, " · "))
		}
		if ex.Tip != "" {
			w.line("   " + w.italic("Tip: "+ex.Tip))
		}
	}
}

// History renders the entries of one history list.
func History(kind planservice.Kind, entries []planservice.HistoryEntry, style Style) string {
	w := &writer{style: style}
	title := string(kind)
	if title != "" {
		title = strings.ToUpper(title[:1]) + title[1:]
	}
	w.heading("%s history (%d)", title, len(entries))

	if len(entries) == 0 {
		w.line(w.italic("No previous plans yet."))
		return w.String()
	}

	for _, e := range entries {
		when := "unknown date"
		if !e.CreatedAt.IsZero() {
			when = e.CreatedAt.Local().Format("2006-01-02 15:04")
		}

		parts := []string{w.bold(when)}
		parts = append(parts, requestSummary(kind, e.RequestSummary)...)
		if s := planSummary(e.Plan); s != "" {
			parts = append(parts, s)
		}
		w.bullet(strings.Join(parts, " · "))
	}
	return w.String()
}

// historyFields lists the request fields shown per kind, in display order.
var historyFields = map[planservice.Kind][]struct{ key, suffix string }{
	planservice.KindMeal: {
		{"goal", ""}, {"diet_type", ""}, {"diet_preference", ""}, {"cuisine", ""},
	},
	planservice.KindWorkout: {
		{"goal", ""}, {"fitness_level", ""}, {"available_time", " min"}, {"age", " yrs"},
	},
}

func requestSummary(kind planservice.Kind, summary map[string]any) []string {
	var out []string
	fields, ok := historyFields[kind]
	if !ok {
		keys := make([]string, 0, len(summary))
		for k := range summary {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fields = append(fields, struct{ key, suffix string }{k, ""})
		}
	}

	for _, f := range fields {
		v, ok := summary[f.key]
		if !ok || v == nil {
			continue
		}
		text := fmt.Sprint(v)
		if n, ok := v.(float64); ok {
			text = number(n)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, escaper.Replace(text+f.suffix))
	}
	return out
}

func planSummary(p planservice.Plan) string {
	switch p := p.(type) {
	case planservice.MealPlan:
		if p.Summary != nil {
			return fmt.Sprintf("Protein %s · %s",
				withUnit(p.Summary.TotalProtein, "g"), withUnit(p.Summary.TotalCalories, "kcal"))
		}
		if n := len(p.Meals()); n > 0 {
			return fmt.Sprintf("%d meals", n)
		}
	case planservice.WorkoutPlan:
		if n := len(p.Exercises); n > 0 {
			return fmt.Sprintf("%d exercises", n)
		}
	}
	return ""
}

// Profile renders the stored profile.
func Profile(p profile.Profile, style Style) string {
	w := &writer{style: style}
	w.heading("Profile")

	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			value = "not set"
		}
		w.bullet(w.bold(label+":") + " " + escaper.Replace(value))
	}

	equipment := strings.Join(p.Equipment, ", ")
	if equipment == "" {
		equipment = profile.NoEquipment
	}

	field("Name", p.Name)
	field("Goal", string(p.Goal))
	field("Height", positive(p.HeightCm, "cm"))
	field("Weight", positive(p.WeightKg, "kg"))
	field("Equipment", equipment)
	field("Cuisine", p.Cuisine)
	field("Email", p.Email)
	return w.String()
}

// Stored renders a locally saved plan with the time it was generated.
func Stored(p planservice.Plan, at time.Time, style Style) string {
	w := &writer{style: style}
	w.line(w.italic("Generated " + at.Local().Format("Mon 2 Jan 2006 15:04")))
	w.line("")
	return w.String() + Plan(p, style)
}

// Terminal renders CommonMark for the terminal. A width of zero keeps glamour's default wrapping.
func Terminal(md string, width int) (string, error) {
	if width <= 0 {
		return glamour.Render(md, "dark")
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return r.Render(md)
}

func macros(m planservice.Macros) string {
	return fmt.Sprintf("Protein %s g · Carbs %s g · Fats %s g",
		number(m.ProteinG), number(m.CarbsG), number(m.FatsG))
}

func number(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func positive(f float64, unit string) string {
	if f <= 0 {
		return ""
	}
	return number(f) + " " + unit
}

// withUnit appends unit to bare numbers and keeps values that already carry text.
func withUnit(v planservice.Value, unit string) string {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return "-"
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return s + " " + unit
	}
	return escaper.Replace(s)
}
