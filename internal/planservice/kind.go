package planservice

import "fmt"

// Kind identifies one family of generated plans.
type Kind string

const (
	KindDaily   Kind = "daily"
	KindWeekly  Kind = "weekly"
	KindMeal    Kind = "meal"
	KindWorkout Kind = "workout"
)

// Kinds lists every plan kind in display order.
var Kinds = []Kind{KindDaily, KindWeekly, KindMeal, KindWorkout}

// ParseKind converts a user supplied name into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown plan kind %q (expected one of %v)", s, Kinds)
}

// HasHistory reports whether the service keeps a per-user history for k.
func (k Kind) HasHistory() bool {
	_, ok := historyPaths[k]
	return ok
}

var generatePaths = map[Kind]string{
	KindDaily:   "/generate-plan",
	KindWeekly:  "/generate-weekly-plan",
	KindMeal:    "/generate-meal-plan",
	KindWorkout: "/generate-workout-plan-ai",
}

var historyPaths = map[Kind]string{
	KindMeal:    "/meal-history",
	KindWorkout: "/workout-history",
}
