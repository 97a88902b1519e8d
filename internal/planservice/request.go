package planservice

import (
	"strings"

	"fitness-planner/internal/profile"
)

// Request is the body of one generation call. It is built fresh for every submit.
type Request interface {
	Kind() Kind
}

// ProfileBody is the profile subset sent to the daily and weekly endpoints.
type ProfileBody struct {
	Name      string   `json:"name"`
	Goal      string   `json:"goal"`
	Height    float64  `json:"height"`
	Weight    float64  `json:"weight"`
	Equipment []string `json:"equipment"`
	Cuisine   string   `json:"cuisine"`
}

type DailyRequest struct {
	ProfileBody
}

func (DailyRequest) Kind() Kind { return KindDaily }

type WeeklyRequest struct {
	ProfileBody
}

func (WeeklyRequest) Kind() Kind { return KindWeekly }

type MealRequest struct {
	Goal           string  `json:"goal"`
	Calories       int     `json:"calories"`
	DietType       string  `json:"diet_type"`
	Cuisine        string  `json:"cuisine"`
	Protein        float64 `json:"protein"`
	DietPreference string  `json:"diet_preference"`
	UserEmail      *string `json:"user_email"`
}

func (MealRequest) Kind() Kind { return KindMeal }

type WorkoutRequest struct {
	Goal             string   `json:"goal"`
	AvailableTime    int      `json:"available_time"`
	Equipment        []string `json:"equipment"`
	FitnessLevel     string   `json:"fitness_level"`
	Age              int      `json:"age"`
	HealthConditions []string `json:"health_conditions"`
	UserEmail        *string  `json:"user_email"`
}

func (WorkoutRequest) Kind() Kind { return KindWorkout }

// Form holds the kind-specific fields a user filled in before submitting.
// Build combines them with the current profile.
type Form interface {
	Kind() Kind
	Build(p profile.Profile) Request
}

// Form defaults, matching the values offered by the plan screens.
const (
	DefaultCalories       = 2400
	DefaultDietType       = "Veg"
	DefaultProtein        = 110
	DefaultDietPreference = "High Protein"
	DefaultAvailableTime  = 45
	DefaultFitnessLevel   = "Beginner"
	DefaultAge            = 20
)

var (
	DietTypes     = []string{"Veg", "Non-Veg", "Vegan"}
	FitnessLevels = []string{"Beginner", "Intermediate", "Advanced"}
)

// DailyForm has no fields of its own; the request is the profile.
type DailyForm struct{}

func (DailyForm) Kind() Kind { return KindDaily }

func (DailyForm) Build(p profile.Profile) Request {
	return DailyRequest{ProfileBody: profileBody(p)}
}

// WeeklyForm has no fields of its own; the request is the profile.
type WeeklyForm struct{}

func (WeeklyForm) Kind() Kind { return KindWeekly }

func (WeeklyForm) Build(p profile.Profile) Request {
	return WeeklyRequest{ProfileBody: profileBody(p)}
}

// MealForm collects the diet parameters. Zero fields take the defaults, or the
// profile's goal and cuisine.
type MealForm struct {
	Goal           profile.Goal
	Calories       int
	DietType       string
	Cuisine        string
	Protein        float64
	DietPreference string
}

func (MealForm) Kind() Kind { return KindMeal }

func (f MealForm) Build(p profile.Profile) Request {
	return MealRequest{
		Goal:           string(firstGoal(f.Goal, p.Goal)),
		Calories:       firstInt(f.Calories, DefaultCalories),
		DietType:       firstString(f.DietType, DefaultDietType),
		Cuisine:        firstString(f.Cuisine, p.Cuisine),
		Protein:        firstFloat(f.Protein, DefaultProtein),
		DietPreference: firstString(f.DietPreference, DefaultDietPreference),
		UserEmail:      emailOf(p),
	}
}

// WorkoutForm collects the session parameters. A nil Equipment uses the
// profile's equipment.
type WorkoutForm struct {
	Goal             profile.Goal
	AvailableTime    int
	Equipment        []string
	FitnessLevel     string
	Age              int
	HealthConditions []string
}

func (WorkoutForm) Kind() Kind { return KindWorkout }

func (f WorkoutForm) Build(p profile.Profile) Request {
	equipment := p.Equipment
	if f.Equipment != nil {
		equipment = f.Equipment
	}
	conditions := make([]string, 0, len(f.HealthConditions))
	for _, c := range f.HealthConditions {
		if c = strings.TrimSpace(c); c != "" {
			conditions = append(conditions, c)
		}
	}

	return WorkoutRequest{
		Goal:             string(firstGoal(f.Goal, p.Goal)),
		AvailableTime:    firstInt(f.AvailableTime, DefaultAvailableTime),
		Equipment:        profile.NormalizeEquipment(equipment),
		FitnessLevel:     firstString(f.FitnessLevel, DefaultFitnessLevel),
		Age:              firstInt(f.Age, DefaultAge),
		HealthConditions: conditions,
		UserEmail:        emailOf(p),
	}
}

// FormFor returns the zero form of kind k.
func FormFor(k Kind) Form {
	switch k {
	case KindWeekly:
		return WeeklyForm{}
	case KindMeal:
		return MealForm{}
	case KindWorkout:
		return WorkoutForm{}
	default:
		return DailyForm{}
	}
}

func profileBody(p profile.Profile) ProfileBody {
	return ProfileBody{
		Name:      p.Name,
		Goal:      string(p.Goal),
		Height:    p.HeightCm,
		Weight:    p.WeightKg,
		Equipment: profile.NormalizeEquipment(p.Equipment),
		Cuisine:   p.Cuisine,
	}
}

func emailOf(p profile.Profile) *string {
	if !p.HasEmail() {
		return nil
	}
	email := strings.TrimSpace(p.Email)
	return &email
}

func firstGoal(a, b profile.Goal) profile.Goal {
	if a != "" {
		return a
	}
	return b
}

func firstString(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func firstInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

func firstFloat(a, b float64) float64 {
	if a > 0 {
		return a
	}
	return b
}
