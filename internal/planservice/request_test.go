package planservice

import (
	"encoding/json"
	"testing"

	"fitness-planner/internal/profile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sunny = profile.Profile{
	Name:      "Sunny",
	Goal:      profile.GoalGainMuscle,
	HeightCm:  170,
	WeightKg:  60,
	Equipment: []string{"Dumbbells"},
	Cuisine:   "Indian",
}

func TestProfileForms(t *testing.T) {
	for _, form := range []Form{DailyForm{}, WeeklyForm{}} {
		req := form.Build(sunny)
		assert.Equal(t, form.Kind(), req.Kind())

		data, err := json.Marshal(req)
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Sunny","goal":"Gain Muscle","height":170,"weight":60,
			"equipment":["Dumbbells"],"cuisine":"Indian"}`, string(data))
	}
}

func TestProfileForms_NoEquipmentIsEmptyArray(t *testing.T) {
	p := sunny
	p.Equipment = nil

	data, err := json.Marshal(WeeklyForm{}.Build(p))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"equipment":[]`)
}

func TestMealForm(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		data, err := json.Marshal(MealForm{}.Build(sunny))
		require.NoError(t, err)
		assert.JSONEq(t, `{"goal":"Gain Muscle","calories":2400,"diet_type":"Veg","cuisine":"Indian",
			"protein":110,"diet_preference":"High Protein","user_email":null}`, string(data))
	})

	t.Run("Overrides", func(t *testing.T) {
		p := sunny
		p.Email = " sunny@example.com "

		req := MealForm{
			Goal:     profile.GoalLoseFat,
			Calories: 1800,
			DietType: "Vegan",
			Cuisine:  "Asian",
			Protein:  95.5,
		}.Build(p).(MealRequest)

		assert.Equal(t, "Lose Fat", req.Goal)
		assert.Equal(t, 1800, req.Calories)
		assert.Equal(t, "Vegan", req.DietType)
		assert.Equal(t, "Asian", req.Cuisine)
		assert.Equal(t, 95.5, req.Protein)
		assert.Equal(t, DefaultDietPreference, req.DietPreference)
		require.NotNil(t, req.UserEmail)
		assert.Equal(t, "sunny@example.com", *req.UserEmail)
	})
}

func TestWorkoutForm(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		data, err := json.Marshal(WorkoutForm{}.Build(sunny))
		require.NoError(t, err)
		assert.JSONEq(t, `{"goal":"Gain Muscle","available_time":45,"equipment":["Dumbbells"],
			"fitness_level":"Beginner","age":20,"health_conditions":[],"user_email":null}`, string(data))
	})

	t.Run("ExplicitEquipment", func(t *testing.T) {
		req := WorkoutForm{
			Equipment:        []string{},
			HealthConditions: []string{"knee pain", " "},
			Age:              34,
		}.Build(sunny).(WorkoutRequest)

		assert.Empty(t, req.Equipment)
		assert.NotNil(t, req.Equipment)
		assert.Equal(t, []string{"knee pain"}, req.HealthConditions)
		assert.Equal(t, 34, req.Age)
	})
}

func TestFormFor(t *testing.T) {
	for _, k := range Kinds {
		assert.Equal(t, k, FormFor(k).Kind())
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("meal")
	require.NoError(t, err)
	assert.Equal(t, KindMeal, k)
	assert.True(t, k.HasHistory())
	assert.False(t, KindWeekly.HasHistory())

	_, err = ParseKind("monthly")
	assert.Error(t, err)
}
