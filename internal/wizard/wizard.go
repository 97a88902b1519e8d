package wizard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"fitness-planner/internal/profile"

	log "github.com/sirupsen/logrus"
)

// Step is one screen of the onboarding wizard.
type Step int

const (
	StepName Step = iota
	StepGoal
	StepBody
	StepEquipment
	StepCuisine
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepName:
		return "name"
	case StepGoal:
		return "goal"
	case StepBody:
		return "body"
	case StepEquipment:
		return "equipment"
	case StepCuisine:
		return "cuisine"
	case StepDone:
		return "done"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// DefaultDelay is the pause between finishing the wizard and signalling completion.
const DefaultDelay = 1500 * time.Millisecond

// ErrFinished is returned by Advance once the wizard is done.
var ErrFinished = errors.New("onboarding already finished")

// Store is the profile store the wizard reads and commits to.
type Store interface {
	Get() profile.Profile
	Set(ctx context.Context, u profile.Partial) error
}

// Draft holds the values being edited on the current step.
type Draft struct {
	Name      string
	Goal      profile.Goal
	HeightCm  float64
	WeightKg  float64
	Equipment []string
	Cuisine   string
}

func draftFrom(p profile.Profile) Draft {
	return Draft{
		Name:      p.Name,
		Goal:      p.Goal,
		HeightCm:  p.HeightCm,
		WeightKg:  p.WeightKg,
		Equipment: append([]string{}, p.Equipment...),
		Cuisine:   p.Cuisine,
	}
}

// ValidationError reports a step whose required fields are incomplete.
type ValidationError struct {
	Step    Step
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Step, e.Message)
}

// Option configures a Controller.
type Option func(*Controller)

// WithDelay sets the pause before completion is signalled.
func WithDelay(d time.Duration) Option {
	return func(c *Controller) { c.delay = d }
}

// OnComplete sets the function called once onboarding is complete.
func OnComplete(fn func()) Option {
	return func(c *Controller) { c.onComplete = fn }
}

// Controller walks the user through the onboarding steps. It only moves
// forward; each step is committed to the store before the next one starts.
type Controller struct {
	store      Store
	delay      time.Duration
	onComplete func()

	mu      sync.Mutex
	step    Step
	reached Step
	draft   Draft
	timer   *time.Timer
}

// New creates a Controller positioned on the first step, with the stored
// profile as the draft.
func New(store Store, opts ...Option) *Controller {
	c := &Controller{
		store: store,
		delay: DefaultDelay,
		step:  StepName,
		draft: draftFrom(store.Get()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Step returns the current step.
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Draft returns a copy of the current draft.
func (c *Controller) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.draft
	d.Equipment = append([]string{}, c.draft.Equipment...)
	return d
}

func (c *Controller) SetName(name string) {
	c.edit(func(d *Draft) { d.Name = name })
}

func (c *Controller) SetGoal(goal profile.Goal) {
	c.edit(func(d *Draft) { d.Goal = goal })
}

func (c *Controller) SetBody(heightCm, weightKg float64) {
	c.edit(func(d *Draft) {
		d.HeightCm = heightCm
		d.WeightKg = weightKg
	})
}

func (c *Controller) SetEquipment(items []string) {
	c.edit(func(d *Draft) { d.Equipment = profile.NormalizeEquipment(items) })
}

// ToggleEquipment adds or removes one item. Choosing "None" clears the selection.
func (c *Controller) ToggleEquipment(item string) {
	c.edit(func(d *Draft) {
		if strings.EqualFold(item, profile.NoEquipment) {
			d.Equipment = []string{}
			return
		}
		for i, have := range d.Equipment {
			if have == item {
				d.Equipment = append(d.Equipment[:i:i], d.Equipment[i+1:]...)
				return
			}
		}
		d.Equipment = profile.NormalizeEquipment(append(d.Equipment, item))
	})
}

func (c *Controller) SetCuisine(cuisine string) {
	c.edit(func(d *Draft) { d.Cuisine = cuisine })
}

func (c *Controller) edit(fn func(d *Draft)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.draft)
}

// CanAdvance reports whether the current step's required fields are valid.
func (c *Controller) CanAdvance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return validate(c.step, c.draft) == nil
}

// Advance commits the current step and moves to the next one. With an invalid
// draft it returns a *ValidationError and changes nothing. Reaching Done
// commits the full profile and schedules the completion signal.
func (c *Controller) Advance(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step == StepDone {
		return ErrFinished
	}
	if err := validate(c.step, c.draft); err != nil {
		return err
	}

	if err := c.store.Set(ctx, commitFor(c.step, c.draft)); err != nil {
		return fmt.Errorf("failed to save %s step: %w", c.step, err)
	}

	next := c.step + 1
	if next == StepDone {
		if err := c.finish(ctx); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{"from": c.step, "to": next}).Debug("wizard advanced")
	c.step = next
	if next > c.reached {
		c.reached = next
	}
	return nil
}

// Enter returns to a step already reached and reloads the draft from the store.
func (c *Controller) Enter(step Step) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if step < StepName || step > c.reached || step == StepDone {
		return fmt.Errorf("cannot enter %s step", step)
	}
	c.step = step
	c.draft = draftFrom(c.store.Get())
	return nil
}

// Stop cancels a pending completion signal.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *Controller) finish(ctx context.Context) error {
	p := c.store.Get()
	p.Name = strings.TrimSpace(c.draft.Name)
	p.Goal = c.draft.Goal
	p.HeightCm = c.draft.HeightCm
	p.WeightKg = c.draft.WeightKg
	p.Equipment = c.draft.Equipment
	p.Cuisine = strings.TrimSpace(c.draft.Cuisine)

	if err := c.store.Set(ctx, profile.Full(p)); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	log.WithField("name", p.Name).Info("onboarding finished")
	if c.onComplete != nil {
		c.timer = time.AfterFunc(c.delay, c.onComplete)
	}
	return nil
}

func validate(step Step, d Draft) error {
	invalid := func(msg string) error {
		return &ValidationError{Step: step, Message: msg}
	}

	switch step {
	case StepName:
		if strings.TrimSpace(d.Name) == "" {
			return invalid("name is required")
		}
	case StepGoal:
		if !d.Goal.Valid() {
			return invalid("choose one of the listed goals")
		}
	case StepBody:
		if !positive(d.HeightCm) || !positive(d.WeightKg) {
			return invalid("height and weight must be greater than zero")
		}
	case StepEquipment:
	case StepCuisine:
		if strings.TrimSpace(d.Cuisine) == "" {
			return invalid("cuisine is required")
		}
	case StepDone:
		return invalid("onboarding already finished")
	}
	return nil
}

// positive rejects NaN and infinities along with non-positive values.
func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 1)
}

func commitFor(step Step, d Draft) profile.Partial {
	switch step {
	case StepName:
		name := strings.TrimSpace(d.Name)
		return profile.Partial{Name: &name}
	case StepGoal:
		return profile.Partial{Goal: &d.Goal}
	case StepBody:
		return profile.Partial{HeightCm: &d.HeightCm, WeightKg: &d.WeightKg}
	case StepEquipment:
		equipment := append([]string{}, d.Equipment...)
		return profile.Partial{Equipment: &equipment}
	case StepCuisine:
		cuisine := strings.TrimSpace(d.Cuisine)
		return profile.Partial{Cuisine: &cuisine}
	}
	return profile.Partial{}
}
