package provisioning

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/panel-provisioner/internal/model"
	"github.com/thatsimonsguy/panel-provisioner/internal/pinmap"
)

var (
	// ErrValidation is wrapped by every rejected provisioning request.
	ErrValidation = errors.New("provisioning: validation failed")

	// ErrMalformedParameters is returned when the extra parameter does not fit the function.
	ErrMalformedParameters = fmt.Errorf("%w: malformed parameters for function", ErrValidation)

	// ErrFunctionNotPermitted is returned when the pin cannot perform the function.
	ErrFunctionNotPermitted = fmt.Errorf("%w: function not permitted on pin", ErrValidation)
)

// Store holds the provisioning state for every pin of one capability table.
// It is not safe for concurrent use.
type Store struct {
	table   *pinmap.Table
	entries []model.ProvisioningEntry
}

func NewStore(table *pinmap.Table) *Store {
	entries := make([]model.ProvisioningEntry, table.PinCount())
	for i := range entries {
		entries[i] = model.ProvisioningEntry{Function: model.FunctionNone, Extra: model.NoExtra()}
	}
	return &Store{table: table, entries: entries}
}

func (s *Store) Table() *pinmap.Table {
	return s.table
}

// Query returns the current assignment for a pin.
func (s *Store) Query(ordinal int) (model.PinFunction, model.Extra, error) {
	if err := s.checkRange(ordinal); err != nil {
		return model.FunctionNone, model.NoExtra(), err
	}
	e := s.entries[ordinal]
	return e.Function, e.Extra, nil
}

// Provision assigns fn and its parameter to a pin, or clears it when fn is none.
// On error the store is left unchanged.
func (s *Store) Provision(ordinal int, fn model.PinFunction, extra model.Extra) error {
	if err := s.checkRange(ordinal); err != nil {
		return err
	}
	if err := checkShape(fn, extra); err != nil {
		return fmt.Errorf("pin %d: %w", ordinal, err)
	}

	allowed, err := s.table.Allows(ordinal, fn)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("pin %d: %w: %s", ordinal, ErrFunctionNotPermitted, fn)
	}

	s.entries[ordinal] = model.ProvisioningEntry{Function: fn, Extra: extra}

	log.Info().
		Int("pin", ordinal).
		Str("function", string(fn)).
		Str("extra", extra.String()).
		Msg("Pin provisioned")
	return nil
}

// Snapshot returns a copy of every entry in ordinal order.
func (s *Store) Snapshot() []model.ProvisioningEntry {
	return append([]model.ProvisioningEntry(nil), s.entries...)
}

// Assigned counts pins with a function other than none.
func (s *Store) Assigned() int {
	n := 0
	for _, e := range s.entries {
		if e.Function != model.FunctionNone {
			n++
		}
	}
	return n
}

func (s *Store) checkRange(ordinal int) error {
	if ordinal < 0 || ordinal >= len(s.entries) {
		return fmt.Errorf("%w: %d (pin count %d)", pinmap.ErrPinOutOfRange, ordinal, len(s.entries))
	}
	return nil
}

func checkShape(fn model.PinFunction, extra model.Extra) error {
	switch fn {
	case model.FunctionNone, model.FunctionBinarySensor, model.FunctionOnewireSensor:
		if extra.Kind() != model.ExtraAbsent {
			return fmt.Errorf("%w: %s takes no poll interval or trigger value", ErrMalformedParameters, fn)
		}
	case model.FunctionDigitalSensor:
		if extra.Kind() != model.ExtraPollInterval {
			return fmt.Errorf("%w: %s requires a poll interval and no trigger value", ErrMalformedParameters, fn)
		}
	case model.FunctionAlarmActuator, model.FunctionTriggerActuator:
		if extra.Kind() != model.ExtraTriggerHigh {
			return fmt.Errorf("%w: %s requires a trigger value and no poll interval", ErrMalformedParameters, fn)
		}
	default:
		return fmt.Errorf("%w: unknown function %q", ErrMalformedParameters, fn)
	}
	return nil
}

// ExtraFromOptional builds the extra parameter from the optional fields used
// in config files and API requests. Supplying both fields is malformed.
func ExtraFromOptional(pollIntervalMinutes *int, triggerHigh *bool) (model.Extra, error) {
	switch {
	case pollIntervalMinutes != nil && triggerHigh != nil:
		return model.NoExtra(), fmt.Errorf("%w: poll interval and trigger value are mutually exclusive", ErrMalformedParameters)
	case pollIntervalMinutes != nil:
		return model.PollInterval(*pollIntervalMinutes), nil
	case triggerHigh != nil:
		return model.Trigger(*triggerHigh), nil
	default:
		return model.NoExtra(), nil
	}
}

// Request is a provisioning request addressed by designator rather than ordinal.
type Request struct {
	Pin      string
	Function model.PinFunction
	Extra    model.Extra
}

// Apply resolves and provisions each request in order, stopping at the first
// failure. Requests applied before the failure stay applied.
func (s *Store) Apply(reqs []Request) error {
	for _, r := range reqs {
		ordinal, err := s.table.Lookup(r.Pin)
		if err != nil {
			return err
		}
		if err := s.Provision(ordinal, r.Function, r.Extra); err != nil {
			return fmt.Errorf("pin %s: %w", r.Pin, err)
		}
	}
	return nil
}
