package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type PinFunction string

const (
	FunctionNone            PinFunction = "none"
	FunctionBinarySensor    PinFunction = "binary_sensor"
	FunctionDigitalSensor   PinFunction = "digital_sensor"
	FunctionOnewireSensor   PinFunction = "onewire_sensor"
	FunctionAlarmActuator   PinFunction = "alarm_actuator"
	FunctionTriggerActuator PinFunction = "trigger_actuator"
)

// AllPinFunctions lists every function in declaration order, none first.
func AllPinFunctions() []PinFunction {
	return []PinFunction{
		FunctionNone,
		FunctionBinarySensor,
		FunctionDigitalSensor,
		FunctionOnewireSensor,
		FunctionAlarmActuator,
		FunctionTriggerActuator,
	}
}

// ParsePinFunction maps config or API text onto a PinFunction. An empty string
// is treated as none.
func ParsePinFunction(s string) (PinFunction, error) {
	if s == "" {
		return FunctionNone, nil
	}
	for _, fn := range AllPinFunctions() {
		if string(fn) == s {
			return fn, nil
		}
	}
	return FunctionNone, fmt.Errorf("unknown pin function %q", s)
}

type PinCategory string

const (
	CategoryZone       PinCategory = "zone"
	CategoryOutputOnly PinCategory = "output_only"
)

// Designator is the identifier the panel firmware uses for a pin: a zone
// number for zone pins, a short name for output-only pins.
type Designator struct {
	number int
	name   string
}

func ZoneNumber(n int) Designator {
	return Designator{number: n}
}

func OutputName(name string) Designator {
	return Designator{name: name}
}

func (d Designator) IsNamed() bool {
	return d.name != ""
}

func (d Designator) String() string {
	if d.IsNamed() {
		return d.name
	}
	return strconv.Itoa(d.number)
}

// MarshalJSON writes zone numbers as JSON numbers and output names as strings,
// which is what the firmware expects.
func (d Designator) MarshalJSON() ([]byte, error) {
	if d.IsNamed() {
		return json.Marshal(d.name)
	}
	return json.Marshal(d.number)
}

type PinCapability struct {
	Designator       Designator
	Category         PinCategory
	AllowedFunctions []PinFunction
	UserSelectable   bool
	Label            string
}

type ExtraKind int

const (
	ExtraAbsent ExtraKind = iota
	ExtraPollInterval
	ExtraTriggerHigh
)

func (k ExtraKind) String() string {
	switch k {
	case ExtraPollInterval:
		return "poll_interval"
	case ExtraTriggerHigh:
		return "trigger_high"
	default:
		return "absent"
	}
}

// Extra is the function-specific parameter attached to a provisioned pin.
// Only one variant is ever populated; the zero value is absent.
type Extra struct {
	kind    ExtraKind
	minutes int
	high    bool
}

func NoExtra() Extra {
	return Extra{}
}

func PollInterval(minutes int) Extra {
	return Extra{kind: ExtraPollInterval, minutes: minutes}
}

func Trigger(high bool) Extra {
	return Extra{kind: ExtraTriggerHigh, high: high}
}

func (e Extra) Kind() ExtraKind {
	return e.kind
}

func (e Extra) PollIntervalMinutes() (int, bool) {
	return e.minutes, e.kind == ExtraPollInterval
}

func (e Extra) TriggerHigh() (bool, bool) {
	return e.high, e.kind == ExtraTriggerHigh
}

func (e Extra) String() string {
	switch e.kind {
	case ExtraPollInterval:
		return fmt.Sprintf("poll_interval=%dm", e.minutes)
	case ExtraTriggerHigh:
		return fmt.Sprintf("trigger_high=%t", e.high)
	default:
		return "none"
	}
}

type ProvisioningEntry struct {
	Function PinFunction
	Extra    Extra
}

// DiscoveredPanel is what discovery learns about a panel from its SSDP
// response and UPnP device description.
type DiscoveredPanel struct {
	FriendlyName     string `json:"friendly_name"`
	Manufacturer     string `json:"manufacturer"`
	ModelDescription string `json:"model_description"`
	ModelName        string `json:"model_name"`
	ModelNumber      string `json:"model_number"`
	SerialNumber     string `json:"serial_number"`
	ST               string `json:"st"`
	URLBase          string `json:"url_base"`
}
