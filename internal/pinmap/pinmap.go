package pinmap

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/panel-provisioner/internal/model"
)

var (
	// ErrUnsupportedModel is returned when no capability profile exists for a panel model.
	ErrUnsupportedModel = errors.New("pinmap: unsupported panel model")

	// ErrPinOutOfRange is returned for an ordinal outside [0, PinCount).
	ErrPinOutOfRange = errors.New("pinmap: pin ordinal out of range")

	// ErrUnknownDesignator is returned by Lookup when no pin has the designator.
	ErrUnknownDesignator = errors.New("pinmap: unknown pin designator")
)

const ModelKonnectedPro = "Konnected Pro"

type profile struct {
	pins     []model.PinCapability
	useZones bool
}

var (
	triggerOrAnySensor = []model.PinFunction{
		model.FunctionTriggerActuator,
		model.FunctionBinarySensor,
		model.FunctionDigitalSensor,
		model.FunctionOnewireSensor,
	}
	binarySensorOnly    = []model.PinFunction{model.FunctionBinarySensor}
	alarmOrTrigger      = []model.PinFunction{model.FunctionAlarmActuator, model.FunctionTriggerActuator}
	alarmActuatorOnly   = []model.PinFunction{model.FunctionAlarmActuator}
	triggerActuatorOnly = []model.PinFunction{model.FunctionTriggerActuator}
)

func zone(n int, functions []model.PinFunction, selectable bool) model.PinCapability {
	return model.PinCapability{
		Designator:       model.ZoneNumber(n),
		Category:         model.CategoryZone,
		AllowedFunctions: functions,
		UserSelectable:   selectable,
		Label:            fmt.Sprintf("Zone %d", n),
	}
}

func output(name string, functions []model.PinFunction, label string) model.PinCapability {
	// Output functions are fixed by wiring or by the alarm/out switch on the board.
	return model.PinCapability{
		Designator:       model.OutputName(name),
		Category:         model.CategoryOutputOnly,
		AllowedFunctions: functions,
		UserSelectable:   false,
		Label:            label,
	}
}

var profiles = map[string]profile{
	ModelKonnectedPro: {
		useZones: true,
		pins: []model.PinCapability{
			zone(1, triggerOrAnySensor, true),
			zone(2, triggerOrAnySensor, true),
			zone(3, triggerOrAnySensor, true),
			zone(4, triggerOrAnySensor, true),
			zone(5, triggerOrAnySensor, true),
			zone(6, triggerOrAnySensor, true),
			zone(7, triggerOrAnySensor, true),
			zone(8, triggerOrAnySensor, true),
			zone(9, binarySensorOnly, false),
			zone(10, binarySensorOnly, false),
			zone(11, binarySensorOnly, false),
			zone(12, binarySensorOnly, false),
			output("alarm1", alarmActuatorOnly, "Alarm 1"),
			output("out1", triggerActuatorOnly, "Out 1"),
			output("alarm2_out2", alarmOrTrigger, "Alarm2/Out2"),
		},
	},
}

// Models returns the panel models that have a capability profile.
func Models() []string {
	return []string{ModelKonnectedPro}
}

// Table is the read-only pin capability list for one panel model, indexed by
// zero-based ordinal.
type Table struct {
	modelName string
	pins      []model.PinCapability
	useZones  bool
}

func New(modelName string) (*Table, error) {
	p, ok := profiles[modelName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelName)
	}

	log.Debug().Str("model", modelName).Int("pins", len(p.pins)).Msg("Initializing pin mapping")

	pins := make([]model.PinCapability, len(p.pins))
	for i, c := range p.pins {
		c.AllowedFunctions = append([]model.PinFunction(nil), c.AllowedFunctions...)
		pins[i] = c
	}

	return &Table{modelName: modelName, pins: pins, useZones: p.useZones}, nil
}

func (t *Table) ModelName() string {
	return t.modelName
}

func (t *Table) PinCount() int {
	return len(t.pins)
}

// DesignatorFieldName is the JSON key the firmware expects for a pin's designator.
func (t *Table) DesignatorFieldName() string {
	if t.useZones {
		return "zone"
	}
	return "pin"
}

func (t *Table) pin(ordinal int) (*model.PinCapability, error) {
	if ordinal < 0 || ordinal >= len(t.pins) {
		return nil, fmt.Errorf("%w: %d (pin count %d)", ErrPinOutOfRange, ordinal, len(t.pins))
	}
	return &t.pins[ordinal], nil
}

// Capability returns a copy of the pin's capability record.
func (t *Table) Capability(ordinal int) (model.PinCapability, error) {
	p, err := t.pin(ordinal)
	if err != nil {
		return model.PinCapability{}, err
	}
	c := *p
	c.AllowedFunctions = append([]model.PinFunction(nil), p.AllowedFunctions...)
	return c, nil
}

// AllowedFunctions returns the functions a pin can perform. Some of these may
// be chosen by a physical switch rather than by the user.
func (t *Table) AllowedFunctions(ordinal int) ([]model.PinFunction, error) {
	p, err := t.pin(ordinal)
	if err != nil {
		return nil, err
	}
	return append([]model.PinFunction(nil), p.AllowedFunctions...), nil
}

// IsUserSelectable is false when the function is fixed by hardware, either a
// single possible function or a switch on the panel.
func (t *Table) IsUserSelectable(ordinal int) (bool, error) {
	p, err := t.pin(ordinal)
	if err != nil {
		return false, err
	}
	return p.UserSelectable, nil
}

func (t *Table) Category(ordinal int) (model.PinCategory, error) {
	p, err := t.pin(ordinal)
	if err != nil {
		return "", err
	}
	return p.Category, nil
}

func (t *Table) Label(ordinal int) (string, error) {
	p, err := t.pin(ordinal)
	if err != nil {
		return "", err
	}
	return p.Label, nil
}

func (t *Table) Designator(ordinal int) (model.Designator, error) {
	p, err := t.pin(ordinal)
	if err != nil {
		return model.Designator{}, err
	}
	return p.Designator, nil
}

// Allows reports whether fn may be assigned to the pin. None is always allowed.
func (t *Table) Allows(ordinal int, fn model.PinFunction) (bool, error) {
	p, err := t.pin(ordinal)
	if err != nil {
		return false, err
	}
	if fn == model.FunctionNone {
		return true, nil
	}
	for _, allowed := range p.AllowedFunctions {
		if allowed == fn {
			return true, nil
		}
	}
	return false, nil
}

// Lookup resolves a designator as written in config files or URLs ("3", "out1")
// to its ordinal.
func (t *Table) Lookup(designator string) (int, error) {
	for i, p := range t.pins {
		if p.Designator.String() == designator {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownDesignator, designator)
}
