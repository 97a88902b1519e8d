package planservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fitness-planner/internal/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const weeklyBody = `{"weekly_plan": [
	{"day": "Monday", "workout": "Chest + Triceps", "calories": 2400, "macros": {"protein_g": 108, "carbs_g": 279, "fats_g": 124}},
	{"day": "Tuesday", "workout": "Back + Biceps", "calories": 2400, "macros": {"protein_g": 108, "carbs_g": 279, "fats_g": 124}},
	{"day": "Wednesday", "workout": "Leg Day", "calories": 2400, "macros": {"protein_g": 108, "carbs_g": 279, "fats_g": 124}},
	{"day": "Thursday", "workout": "Shoulders + Abs", "calories": 2400, "macros": {"protein_g": 108, "carbs_g": 279, "fats_g": 124}},
	{"day": "Friday", "workout": "Full Body Strength", "calories": 2400, "macros": {"protein_g": 108, "carbs_g": 279, "fats_g": 124}},
	{"day": "Saturday", "workout": "Glutes + Hamstrings", "calories": 2400, "macros": {"protein_g": 108, "carbs_g": 279, "fats_g": 124}},
	{"day": "Sunday", "workout": "Rest / Mobility", "calories": 2400, "macros": {"protein_g": 108, "carbs_g": 279, "fats_g": 124}}
]}`

func newTestClient(t *testing.T, handler http.HandlerFunc, token TokenSource) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		PlanServiceURL: server.URL,
		HTTPTimeout:    2 * time.Second,
	}
	return NewClient(cfg, token)
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("Weekly", func(t *testing.T) {
		var got map[string]any
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/generate-weekly-plan", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			_, err := uuid.Parse(r.Header.Get("X-Request-ID"))
			assert.NoError(t, err, "request id should be a uuid")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			fmt.Fprint(w, weeklyBody)
		}, nil)

		plan, err := client.Generate(ctx, WeeklyRequest{ProfileBody: ProfileBody{
			Name: "Sunny", Goal: "Gain Muscle", Height: 170, Weight: 60,
			Equipment: []string{"Dumbbells"}, Cuisine: "Indian",
		}})
		require.NoError(t, err)

		weekly, ok := plan.(WeeklyPlan)
		require.True(t, ok)
		require.Len(t, weekly.Days, 7)
		assert.Equal(t, "Monday", weekly.Days[0].Day)
		assert.Equal(t, 108.0, weekly.Days[0].Macros.ProteinG)

		assert.Equal(t, "Sunny", got["name"])
		assert.Equal(t, []any{"Dumbbells"}, got["equipment"])
	})

	t.Run("Daily", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/generate-plan", r.URL.Path)
			fmt.Fprint(w, `{"workout_plan": ["Pushups", "Squats", "Planks"], "recommended_calories": 2400,
				"macros": {"protein_g": 108.0, "carbs_g": 279.0, "fats_g": 124.0}}`)
		}, nil)

		plan, err := client.Generate(ctx, DailyRequest{})
		require.NoError(t, err)
		daily := plan.(DailyPlan)
		assert.Equal(t, []string{"Pushups", "Squats", "Planks"}, daily.Workout)
		assert.Equal(t, 2400.0, daily.RecommendedCalories)
	})

	t.Run("MealStructured", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/generate-meal-plan", r.URL.Path)
			fmt.Fprint(w, `{"meal_plan": {
				"breakfast": {"dish": "Paneer Paratha", "description": "Stuffed flatbread", "protein": 25, "carbs": "40 g", "fats": 12, "calories": 450},
				"dinner": {"dish": "Dal", "description": "Lentils", "protein": 20, "carbs": 50, "fats": 8, "calories": 400},
				"summary": {"total_protein": 45, "total_carbs": 90, "total_fats": 20, "total_calories": 850, "notes": "Hydrate"}
			}}`)
		}, nil)

		plan, err := client.Generate(ctx, MealRequest{})
		require.NoError(t, err)
		meal := plan.(MealPlan)
		require.NotNil(t, meal.Breakfast)
		assert.Equal(t, "Paneer Paratha", meal.Breakfast.Dish)
		assert.Equal(t, Value("25"), meal.Breakfast.Protein)
		assert.Equal(t, Value("40 g"), meal.Breakfast.Carbs)
		assert.Nil(t, meal.Lunch)
		assert.Len(t, meal.Meals(), 2)
		assert.Equal(t, "Hydrate", meal.Summary.Notes)
	})

	t.Run("MealFreeText", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"meal_plan": "### Breakfast\n- Oats"}`)
		}, nil)

		plan, err := client.Generate(ctx, MealRequest{})
		require.NoError(t, err)
		assert.Equal(t, "### Breakfast\n- Oats", plan.(MealPlan).Text)
	})

	t.Run("Workout", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/generate-workout-plan-ai", r.URL.Path)
			fmt.Fprint(w, `{"workout_plan": [
				{"exercise": "Jumping Jacks", "section": "Warm-up", "muscles": ["Legs", "Shoulders"], "duration": "5 min", "difficulty": "Easy", "tip": "Land softly"},
				{"exercise": "Goblet Squat", "section": "Main", "muscles": "Quads", "duration": "3x12", "difficulty": "OK"}
			]}`)
		}, nil)

		plan, err := client.Generate(ctx, WorkoutRequest{})
		require.NoError(t, err)
		workout := plan.(WorkoutPlan)
		require.Len(t, workout.Exercises, 2)
		assert.Equal(t, Value("Legs, Shoulders"), workout.Exercises[0].Muscles)
		assert.Equal(t, "Goblet Squat", workout.Exercises[1].Exercise)
	})

	t.Run("ServiceError", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"error": "Invalid diet_type"}`)
		}, nil)

		_, err := client.Generate(ctx, MealRequest{})
		var svcErr *ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "Invalid diet_type", svcErr.Message)
	})

	t.Run("ValidationDetail", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"detail": "calories must be an integer"}`)
		}, nil)

		_, err := client.Generate(ctx, MealRequest{})
		var svcErr *ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "calories must be an integer", svcErr.Message)
		assert.Equal(t, http.StatusUnprocessableEntity, svcErr.StatusCode)
	})

	t.Run("ServerErrorWithoutBody", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}, nil)

		_, err := client.Generate(ctx, WeeklyRequest{})
		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Equal(t, http.StatusInternalServerError, netErr.StatusCode)
		assert.False(t, errors.As(err, new(*ServiceError)))
	})

	t.Run("BadGatewayWithHTML", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("<html><body>502 Bad Gateway</body></html>"))
		}, nil)

		_, err := client.Generate(ctx, WorkoutRequest{})
		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Equal(t, http.StatusBadGateway, netErr.StatusCode)
		assert.Equal(t, "POST /generate-workout-plan-ai", netErr.Op)
	})

	t.Run("UnencodableRequest", func(t *testing.T) {
		var hits int
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			hits++
		}, nil)

		_, err := client.Generate(ctx, WeeklyRequest{ProfileBody: ProfileBody{Height: math.NaN()}})
		var reqErr *RequestError
		require.ErrorAs(t, err, &reqErr)
		assert.Zero(t, hits, "nothing is sent")
	})

	t.Run("EmptyPayloads", func(t *testing.T) {
		cases := []struct {
			name string
			req  Request
			body string
		}{
			{"missing weekly", WeeklyRequest{}, `{}`},
			{"empty weekly", WeeklyRequest{}, `{"weekly_plan": []}`},
			{"null meal", MealRequest{}, `{"meal_plan": null}`},
			{"blank meal text", MealRequest{}, `{"meal_plan": "  "}`},
			{"meal without meals", MealRequest{}, `{"meal_plan": {}}`},
			{"malformed workout", WorkoutRequest{}, `{"workout_plan": 42}`},
			{"empty daily", DailyRequest{}, `{"message": "ok"}`},
			{"not json", WeeklyRequest{}, `<html>oops</html>`},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
					fmt.Fprint(w, tc.body)
				}, nil)

				_, err := client.Generate(ctx, tc.req)
				var emptyErr *EmptyResultError
				require.ErrorAs(t, err, &emptyErr)
				assert.Equal(t, tc.req.Kind(), emptyErr.Kind)
			})
		}
	})

	t.Run("NetworkError", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		server.Close()

		client := NewClient(&config.Config{PlanServiceURL: server.URL, HTTPTimeout: time.Second}, nil)
		_, err := client.Generate(ctx, WorkoutRequest{})

		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
	})

	t.Run("Timeout", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer server.Close()
		defer close(release)

		client := NewClient(&config.Config{PlanServiceURL: server.URL, HTTPTimeout: 50 * time.Millisecond}, nil)
		_, err := client.Generate(ctx, WorkoutRequest{})

		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
	})

	t.Run("BearerToken", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
			fmt.Fprint(w, weeklyBody)
		}, func() string { return "abc" })

		_, err := client.Generate(ctx, WeeklyRequest{})
		require.NoError(t, err)
	})

	t.Run("NoTokenNoHeader", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			fmt.Fprint(w, weeklyBody)
		}, func() string { return "" })

		_, err := client.Generate(ctx, WeeklyRequest{})
		require.NoError(t, err)
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("Meal", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/meal-history", r.URL.Path)
			assert.Equal(t, "sunny+fit@example.com", r.URL.Query().Get("email"))
			fmt.Fprint(w, `[
				{"id": "b2", "goal": "Gain Muscle", "diet_type": "Veg", "created_at": "2025-11-02T09:30:00.123456",
				 "plan": {"breakfast": {"dish": "Oats"}, "summary": {"total_protein": 110, "total_calories": 2400}}},
				{"id": 7, "goal": "Lose Fat", "created_at": "2025-11-01T08:00:00Z", "plan": null}
			]`)
		}, nil)

		entries, err := client.History(ctx, KindMeal, "sunny+fit@example.com")
		require.NoError(t, err)
		require.Len(t, entries, 2)

		assert.Equal(t, "b2", entries[0].ID)
		assert.Equal(t, 2025, entries[0].CreatedAt.Year())
		assert.Equal(t, "Veg", entries[0].RequestSummary["diet_type"])
		require.NotNil(t, entries[0].Plan)
		assert.Equal(t, "Oats", entries[0].Plan.(MealPlan).Breakfast.Dish)

		assert.Equal(t, "7", entries[1].ID)
		assert.Nil(t, entries[1].Plan)
	})

	t.Run("Workout", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/workout-history", r.URL.Path)
			fmt.Fprint(w, `[{"id": "w1", "fitness_level": "Beginner", "plan": [{"exercise": "Plank"}]}]`)
		}, nil)

		entries, err := client.History(ctx, KindWorkout, "a@b.c")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Len(t, entries[0].Plan.(WorkoutPlan).Exercises, 1)
	})

	t.Run("UnsupportedKind", func(t *testing.T) {
		client := NewClient(&config.Config{PlanServiceURL: "http://unused"}, nil)
		_, err := client.History(ctx, KindWeekly, "a@b.c")
		assert.Error(t, err)
	})

	t.Run("ErrorBody", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"error": "unknown user"}`)
		}, nil)

		_, err := client.History(ctx, KindMeal, "a@b.c")
		var svcErr *ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "unknown user", svcErr.Message)
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("Login", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/login", r.URL.Path)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, map[string]string{"email": "sunny@example.com", "password": "pw"}, body)
			fmt.Fprint(w, `{"message": "Login successful", "token": "tok", "name": "Sunny"}`)
		}, nil)

		session, err := client.Login(ctx, "sunny@example.com", "pw")
		require.NoError(t, err)
		assert.Equal(t, Session{Token: "tok", Name: "Sunny", Message: "Login successful"}, session)
	})

	t.Run("SignupRejected", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/signup", r.URL.Path)
			fmt.Fprint(w, `{"error": "Email already exists"}`)
		}, nil)

		_, err := client.Signup(ctx, "Sunny", "sunny@example.com", "pw")
		var svcErr *ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, "Email already exists", svcErr.Message)
	})

	t.Run("MissingToken", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"message": "ok"}`)
		}, nil)

		_, err := client.Login(ctx, "a@b.c", "pw")
		assert.True(t, errors.As(err, new(*ServiceError)))
	})
}
