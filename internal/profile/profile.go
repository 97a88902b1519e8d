package profile

import (
	"encoding/json"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Goal is the user's fitness goal as understood by the plan service.
type Goal string

const (
	GoalLoseFat     Goal = "Lose Fat"
	GoalGainMuscle  Goal = "Gain Muscle"
	GoalMaintenance Goal = "Maintenance"
)

// Goals lists the goals offered during onboarding, in display order.
var Goals = []Goal{GoalLoseFat, GoalGainMuscle, GoalMaintenance}

// Valid reports whether g is one of the known goals.
func (g Goal) Valid() bool {
	for _, known := range Goals {
		if g == known {
			return true
		}
	}
	return false
}

// Cuisines are the suggested cuisines; any non-blank value is accepted.
var Cuisines = []string{"Indian", "Asian", "Western"}

// NoEquipment is the explicit "nothing available" choice. It is stored as an empty set.
const NoEquipment = "None"

// EquipmentOptions are the choices offered during onboarding.
var EquipmentOptions = []string{NoEquipment, "Dumbbells", "Resistance Band", "Bench"}

// Persisted keys.
const (
	keyName      = "name"
	keyGoal      = "goal"
	keyHeight    = "height"
	keyWeight    = "weight"
	keyEquipment = "equipment"
	keyCuisine   = "cuisine"
	keyEmail     = "email"
	keyToken     = "token"
)

// Profile is the accumulated onboarding data plus the session identity.
type Profile struct {
	Name      string   `json:"name"`
	Goal      Goal     `json:"goal"`
	HeightCm  float64  `json:"height"`
	WeightKg  float64  `json:"weight"`
	Equipment []string `json:"equipment"`
	Cuisine   string   `json:"cuisine"`
	Email     string   `json:"email,omitempty"`
	Token     string   `json:"-"`
}

// HasEmail reports whether history lookups are possible for this profile.
func (p Profile) HasEmail() bool {
	return strings.TrimSpace(p.Email) != ""
}

func (p Profile) clone() Profile {
	c := p
	c.Equipment = append(make([]string, 0, len(p.Equipment)), p.Equipment...)
	return c
}

// Partial is an update to a Profile. Nil fields are left unchanged.
type Partial struct {
	Name      *string
	Goal      *Goal
	HeightCm  *float64
	WeightKg  *float64
	Equipment *[]string
	Cuisine   *string
	Email     *string
	Token     *string
}

// Full returns a Partial that overwrites every onboarding field of p.
// Email and Token are left out: they belong to the session, not the wizard.
func Full(p Profile) Partial {
	equipment := append([]string(nil), p.Equipment...)
	return Partial{
		Name:      &p.Name,
		Goal:      &p.Goal,
		HeightCm:  &p.HeightCm,
		WeightKg:  &p.WeightKg,
		Equipment: &equipment,
		Cuisine:   &p.Cuisine,
	}
}

// IsEmpty reports whether the update changes nothing.
func (u Partial) IsEmpty() bool {
	return u.Name == nil && u.Goal == nil && u.HeightCm == nil && u.WeightKg == nil &&
		u.Equipment == nil && u.Cuisine == nil && u.Email == nil && u.Token == nil
}

func (p Profile) apply(u Partial) Profile {
	next := p.clone()
	if u.Name != nil {
		next.Name = *u.Name
	}
	if u.Goal != nil {
		next.Goal = *u.Goal
	}
	if u.HeightCm != nil {
		next.HeightCm = *u.HeightCm
	}
	if u.WeightKg != nil {
		next.WeightKg = *u.WeightKg
	}
	if u.Equipment != nil {
		next.Equipment = NormalizeEquipment(*u.Equipment)
	}
	if u.Cuisine != nil {
		next.Cuisine = *u.Cuisine
	}
	if u.Email != nil {
		next.Email = *u.Email
	}
	if u.Token != nil {
		next.Token = *u.Token
	}
	return next
}

// NormalizeEquipment turns a selection into a set: blanks, duplicates and the
// "None" choice are dropped while the first-seen order is kept.
func NormalizeEquipment(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || strings.EqualFold(item, NoEquipment) {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// encode converts the set fields of u into persisted key/value pairs.
func encode(u Partial) (map[string]string, error) {
	values := make(map[string]string)
	if u.Name != nil {
		values[keyName] = *u.Name
	}
	if u.Goal != nil {
		values[keyGoal] = string(*u.Goal)
	}
	if u.HeightCm != nil {
		values[keyHeight] = strconv.FormatFloat(*u.HeightCm, 'f', -1, 64)
	}
	if u.WeightKg != nil {
		values[keyWeight] = strconv.FormatFloat(*u.WeightKg, 'f', -1, 64)
	}
	if u.Equipment != nil {
		data, err := json.Marshal(NormalizeEquipment(*u.Equipment))
		if err != nil {
			return nil, err
		}
		values[keyEquipment] = string(data)
	}
	if u.Cuisine != nil {
		values[keyCuisine] = *u.Cuisine
	}
	if u.Email != nil {
		values[keyEmail] = *u.Email
	}
	if u.Token != nil {
		values[keyToken] = *u.Token
	}
	return values, nil
}

// decode builds a Profile from persisted values. Unparseable values are logged and
// left at their zero value so a damaged entry never blocks start-up.
func decode(values map[string]string) Profile {
	p := Profile{
		Name:    values[keyName],
		Goal:    Goal(values[keyGoal]),
		Cuisine: values[keyCuisine],
		Email:   values[keyEmail],
		Token:   values[keyToken],
	}

	p.HeightCm = parseFloat(keyHeight, values[keyHeight])
	p.WeightKg = parseFloat(keyWeight, values[keyWeight])

	if raw := values[keyEquipment]; raw != "" {
		var items []string
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			log.WithError(err).WithField("key", keyEquipment).Warn("ignoring unreadable profile value")
		} else {
			p.Equipment = NormalizeEquipment(items)
		}
	}
	if p.Equipment == nil {
		p.Equipment = []string{}
	}

	return p
}

func parseFloat(key, raw string) float64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("ignoring unreadable profile value")
		return 0
	}
	return v
}
