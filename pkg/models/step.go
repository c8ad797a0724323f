package models

import "time"

// StepKind tags the closed union of step variants.
type StepKind string

const (
	StepSendSMS     StepKind = "send_sms"
	StepSendEmail   StepKind = "send_email"
	StepAddTag      StepKind = "add_tag"
	StepRemoveTag   StepKind = "remove_tag"
	StepDelay       StepKind = "delay"
	StepConditional StepKind = "conditional"
)

// RemoveTagMode selects how many matching tags a remove_tag step strips.
type RemoveTagMode string

const (
	RemoveTagSingle RemoveTagMode = "single"
	RemoveTagAll    RemoveTagMode = "all"
)

// Step is one node of a workflow graph. Exactly one config pointer matching
// Kind must be set; ValidateConfig enforces this at save time so the
// executor never has to guess at an untyped payload.
//
// Non-conditional steps carry a single successor edge in Next ("" marks a
// terminal step). Conditional steps branch through their config's OnTrue and
// OnFalse edges instead.
type Step struct {
	ID   string   `json:"id"   validate:"required"`
	Kind StepKind `json:"kind" validate:"required"`
	Name string   `json:"name"`

	SendSMS     *SendSMSConfig     `json:"send_sms,omitempty"`
	SendEmail   *SendEmailConfig   `json:"send_email,omitempty"`
	AddTag      *AddTagConfig      `json:"add_tag,omitempty"`
	RemoveTag   *RemoveTagConfig   `json:"remove_tag,omitempty"`
	Delay       *DelayConfig       `json:"delay,omitempty"`
	Conditional *ConditionalConfig `json:"conditional,omitempty"`

	Next string `json:"next,omitempty"`
}

// SendSMSConfig renders Template against the enrollment context and sends
// the result to the client's primary phone.
type SendSMSConfig struct {
	Template string `json:"template" validate:"required"`
}

// SendEmailConfig renders Subject and Template and sends to the client's
// email address.
type SendEmailConfig struct {
	Subject  string `json:"subject"  validate:"required"`
	Template string `json:"template" validate:"required"`
}

type AddTagConfig struct {
	Tag string `json:"tag" validate:"required"`
}

type RemoveTagConfig struct {
	Tag  string        `json:"tag" validate:"required"`
	Mode RemoveTagMode `json:"mode,omitempty"`
}

// DelayConfig suspends the enrollment for Value Units. An unrecognized unit
// falls back to days.
type DelayConfig struct {
	Value int    `json:"value" validate:"gte=0"`
	Unit  string `json:"unit"`
}

// ConditionalConfig routes the enrollment down OnTrue or OnFalse depending
// on the condition result. Empty edges are terminal.
type ConditionalConfig struct {
	Condition Condition `json:"condition"`
	OnTrue    string    `json:"on_true,omitempty"`
	OnFalse   string    `json:"on_false,omitempty"`
}

// Duration converts the (value, unit) pair into a time offset. Months are
// treated as 30 days, matching how the offset is presented in the builder UI.
func (d *DelayConfig) Duration() time.Duration {
	v := time.Duration(d.Value)

	switch d.Unit {
	case "seconds":
		return v * time.Second
	case "minutes":
		return v * time.Minute
	case "hours":
		return v * time.Hour
	case "days":
		return v * 24 * time.Hour
	case "weeks":
		return v * 7 * 24 * time.Hour
	case "months":
		return v * 30 * 24 * time.Hour
	default:
		return v * 24 * time.Hour
	}
}

// ValidateConfig checks that the config payload matching Kind is present and
// that no payload for another kind is attached.
func (s *Step) ValidateConfig() error {
	var want any

	switch s.Kind {
	case StepSendSMS:
		want = s.SendSMS
	case StepSendEmail:
		want = s.SendEmail
	case StepAddTag:
		want = s.AddTag
	case StepRemoveTag:
		want = s.RemoveTag
	case StepDelay:
		want = s.Delay
	case StepConditional:
		want = s.Conditional
	default:
		return ErrUnknownStepKind
	}

	if isNilConfig(want) {
		return ErrMissingStepConfig
	}

	if s.configCount() != 1 {
		return ErrAmbiguousStepConfig
	}

	if s.Kind == StepConditional && s.Conditional.Condition.Field == "" {
		return ErrMissingStepConfig
	}

	return nil
}

func (s *Step) configCount() int {
	n := 0

	if s.SendSMS != nil {
		n++
	}

	if s.SendEmail != nil {
		n++
	}

	if s.AddTag != nil {
		n++
	}

	if s.RemoveTag != nil {
		n++
	}

	if s.Delay != nil {
		n++
	}

	if s.Conditional != nil {
		n++
	}

	return n
}

func isNilConfig(v any) bool {
	switch c := v.(type) {
	case *SendSMSConfig:
		return c == nil
	case *SendEmailConfig:
		return c == nil
	case *AddTagConfig:
		return c == nil
	case *RemoveTagConfig:
		return c == nil
	case *DelayConfig:
		return c == nil
	case *ConditionalConfig:
		return c == nil
	default:
		return true
	}
}
