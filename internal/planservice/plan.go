package planservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Plan is a generated plan of one kind. It is stored and displayed as returned.
type Plan interface {
	Kind() Kind
}

// Value is a loosely typed scalar as produced by the generator ("30 g", 30 or
// ["Chest", "Triceps"]). It is kept as display text.
type Value string

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
	case '[':
		var items []Value
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if item != "" {
				parts = append(parts, string(item))
			}
		}
		*v = Value(strings.Join(parts, ", "))
	case '{':
		return fmt.Errorf("expected a scalar value, got an object")
	default:
		*v = Value(data)
	}
	return nil
}

func (v Value) String() string {
	return string(v)
}

// Macros is the macronutrient split in grams.
type Macros struct {
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatsG    float64 `json:"fats_g"`
}

// DailyPlan is today's dashboard plan.
type DailyPlan struct {
	Workout             []string `json:"workout_plan"`
	RecommendedCalories float64  `json:"recommended_calories"`
	Macros              Macros   `json:"macros"`
}

func (DailyPlan) Kind() Kind { return KindDaily }

// DayPlan is one day of a weekly plan.
type DayPlan struct {
	Day      string  `json:"day"`
	Workout  string  `json:"workout"`
	Calories float64 `json:"calories"`
	Macros   Macros  `json:"macros"`
}

// WeeklyPlan is an ordered sequence of days, Monday first.
type WeeklyPlan struct {
	Days []DayPlan
}

func (WeeklyPlan) Kind() Kind { return KindWeekly }

func (p WeeklyPlan) MarshalJSON() ([]byte, error) {
	days := p.Days
	if days == nil {
		days = []DayPlan{}
	}
	return json.Marshal(days)
}

func (p *WeeklyPlan) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &p.Days)
}

// Meal is one meal of a meal plan.
type Meal struct {
	Dish        string `json:"dish"`
	Description string `json:"description"`
	Protein     Value  `json:"protein"`
	Carbs       Value  `json:"carbs"`
	Fats        Value  `json:"fats"`
	Calories    Value  `json:"calories"`
}

// MealSummary totals a meal plan.
type MealSummary struct {
	TotalProtein  Value  `json:"total_protein"`
	TotalCarbs    Value  `json:"total_carbs"`
	TotalFats     Value  `json:"total_fats"`
	TotalCalories Value  `json:"total_calories"`
	Notes         string `json:"notes,omitempty"`
}

// MealPlan is either structured (four meals plus a summary) or free text.
type MealPlan struct {
	Breakfast *Meal        `json:"breakfast,omitempty"`
	Lunch     *Meal        `json:"lunch,omitempty"`
	Snack     *Meal        `json:"snack,omitempty"`
	Dinner    *Meal        `json:"dinner,omitempty"`
	Summary   *MealSummary `json:"summary,omitempty"`

	// Text holds a free-text plan; the structured fields are then empty.
	Text string `json:"-"`
}

func (MealPlan) Kind() Kind { return KindMeal }

type mealPlanFields MealPlan

func (p MealPlan) MarshalJSON() ([]byte, error) {
	if p.Text != "" {
		return json.Marshal(p.Text)
	}
	return json.Marshal(mealPlanFields(p))
}

func (p *MealPlan) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		*p = MealPlan{}
		return json.Unmarshal(data, &p.Text)
	}
	var fields mealPlanFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*p = MealPlan(fields)
	return nil
}

// Meals returns the present meals in serving order with their labels.
func (p MealPlan) Meals() []NamedMeal {
	var out []NamedMeal
	for _, m := range []NamedMeal{
		{"Breakfast", p.Breakfast},
		{"Lunch", p.Lunch},
		{"Snack", p.Snack},
		{"Dinner", p.Dinner},
	} {
		if m.Meal != nil {
			out = append(out, m)
		}
	}
	return out
}

// NamedMeal pairs a meal with its slot label.
type NamedMeal struct {
	Label string
	Meal  *Meal
}

// Exercise is one entry of a workout plan.
type Exercise struct {
	Exercise   string `json:"exercise"`
	Section    string `json:"section,omitempty"`
	Muscles    Value  `json:"muscles,omitempty"`
	Duration   Value  `json:"duration,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	Tip        string `json:"tip,omitempty"`
}

// WorkoutPlan is either an ordered list of exercises or free text.
type WorkoutPlan struct {
	Exercises []Exercise
	Text      string
}

func (WorkoutPlan) Kind() Kind { return KindWorkout }

func (p WorkoutPlan) MarshalJSON() ([]byte, error) {
	if p.Text != "" {
		return json.Marshal(p.Text)
	}
	exercises := p.Exercises
	if exercises == nil {
		exercises = []Exercise{}
	}
	return json.Marshal(exercises)
}

func (p *WorkoutPlan) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*p = WorkoutPlan{}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &p.Text)
	}
	return json.Unmarshal(data, &p.Exercises)
}

// DecodePlan decodes and validates the plan payload of the given kind. A payload
// that is missing, malformed or carries no usable content yields an *EmptyResultError.
func DecodePlan(kind Kind, raw json.RawMessage) (Plan, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, &EmptyResultError{Kind: kind}
	}

	var (
		plan Plan
		err  error
	)
	switch kind {
	case KindDaily:
		var p DailyPlan
		if err = json.Unmarshal(raw, &p); err == nil && (len(p.Workout) > 0 || p.RecommendedCalories > 0) {
			plan = p
		}
	case KindWeekly:
		var p WeeklyPlan
		if err = json.Unmarshal(raw, &p); err == nil && len(p.Days) > 0 {
			plan = p
		}
	case KindMeal:
		var p MealPlan
		if err = json.Unmarshal(raw, &p); err == nil && (strings.TrimSpace(p.Text) != "" || len(p.Meals()) > 0) {
			plan = p
		}
	case KindWorkout:
		var p WorkoutPlan
		if err = json.Unmarshal(raw, &p); err == nil && (strings.TrimSpace(p.Text) != "" || len(p.Exercises) > 0) {
			plan = p
		}
	default:
		return nil, fmt.Errorf("unknown plan kind %q", kind)
	}

	if plan == nil {
		return nil, &EmptyResultError{Kind: kind, Err: err}
	}
	return plan, nil
}
