package generation

import (
	"time"

	"fitness-planner/internal/planservice"
)

// Fixed user-facing messages.
const (
	MessageNoPlan  = "No plan returned. Please try again."
	MessageNetwork = "Network error. Please try again."
	MessageRequest = "Could not prepare the request. Check your profile and try again."
)

// Status is the lifecycle stage of the latest request of one plan kind.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of one orchestrator. Result is the last plan received and
// survives later submits and failures; it is nil only until the first success.
type State struct {
	Kind         planservice.Kind
	Status       Status
	Result       planservice.Plan
	ErrorMessage string
	UpdatedAt    time.Time
}

// Loading reports whether a request is in flight.
func (s State) Loading() bool {
	return s.Status == StatusLoading
}

type event int

const (
	eventSubmit event = iota
	eventSucceeded
	eventFailed
)

func (e event) String() string {
	switch e {
	case eventSubmit:
		return "submit"
	case eventSucceeded:
		return "succeeded"
	default:
		return "failed"
	}
}

type transitionKey struct {
	from  Status
	event event
}

// transitions lists every legal state change. Outcomes are accepted after
// Success or Error as well, because submits are not deduplicated and a second
// in-flight request may resolve after the first.
var transitions = map[transitionKey]Status{
	{StatusIdle, eventSubmit}:    StatusLoading,
	{StatusLoading, eventSubmit}: StatusLoading,
	{StatusSuccess, eventSubmit}: StatusLoading,
	{StatusError, eventSubmit}:   StatusLoading,

	{StatusLoading, eventSucceeded}: StatusSuccess,
	{StatusSuccess, eventSucceeded}: StatusSuccess,
	{StatusError, eventSucceeded}:   StatusSuccess,

	{StatusLoading, eventFailed}: StatusError,
	{StatusSuccess, eventFailed}: StatusError,
	{StatusError, eventFailed}:   StatusError,
}

type outcome struct {
	event   event
	plan    planservice.Plan
	message string
}

// transition applies o to s. The result is only ever replaced by a success.
func transition(s State, o outcome) (State, bool) {
	next, ok := transitions[transitionKey{s.Status, o.event}]
	if !ok {
		return s, false
	}

	s.Status = next
	switch o.event {
	case eventSubmit:
		s.ErrorMessage = ""
	case eventSucceeded:
		s.Result = o.plan
		s.ErrorMessage = ""
	case eventFailed:
		s.ErrorMessage = o.message
	}
	return s, true
}
