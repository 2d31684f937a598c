package provisioning

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/thatsimonsguy/panel-provisioner/internal/model"
)

const EndpointTypeREST = "rest"

// Payload is the settings body the panel accepts. Empty pin groups are omitted.
type Payload struct {
	EndpointType   string      `json:"endpoint_type"`
	Endpoint       string      `json:"endpoint"`
	Token          string      `json:"token"`
	Sensors        []PinRecord `json:"sensors,omitempty"`
	DigitalSensors []PinRecord `json:"dht_sensors,omitempty"`
	Actuators      []PinRecord `json:"actuators,omitempty"`
}

// PinRecord is one pin entry in a payload group. The designator key is
// "zone" or "pin" depending on the panel model.
type PinRecord struct {
	Field        string
	Designator   model.Designator
	PollInterval *int
	Trigger      *int
}

func (r PinRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	key, err := json.Marshal(r.Field)
	if err != nil {
		return nil, err
	}
	value, err := json.Marshal(r.Designator)
	if err != nil {
		return nil, err
	}

	buf.WriteByte('{')
	buf.Write(key)
	buf.WriteByte(':')
	buf.Write(value)
	if r.PollInterval != nil {
		buf.WriteString(`,"poll_interval":`)
		buf.WriteString(strconv.Itoa(*r.PollInterval))
	}
	if r.Trigger != nil {
		buf.WriteString(`,"trigger":`)
		buf.WriteString(strconv.Itoa(*r.Trigger))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// BuildPayload renders the store into the panel settings payload. It does not
// validate; everything in the store was validated when it was provisioned.
func BuildPayload(s *Store, endpoint, token string) Payload {
	p := Payload{
		EndpointType: EndpointTypeREST,
		Endpoint:     endpoint,
		Token:        token,
	}
	field := s.table.DesignatorFieldName()

	for i, e := range s.entries {
		if e.Function == model.FunctionNone {
			continue
		}
		d, err := s.table.Designator(i)
		if err != nil {
			continue
		}
		rec := PinRecord{Field: field, Designator: d}

		switch e.Function {
		case model.FunctionBinarySensor, model.FunctionOnewireSensor:
			p.Sensors = append(p.Sensors, rec)
		case model.FunctionDigitalSensor:
			minutes, _ := e.Extra.PollIntervalMinutes()
			rec.PollInterval = &minutes
			p.DigitalSensors = append(p.DigitalSensors, rec)
		case model.FunctionAlarmActuator, model.FunctionTriggerActuator:
			trigger := 0
			if high, _ := e.Extra.TriggerHigh(); high {
				trigger = 1
			}
			rec.Trigger = &trigger
			p.Actuators = append(p.Actuators, rec)
		}
	}

	return p
}
