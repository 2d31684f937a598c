package provisioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/panel-provisioner/internal/model"
	"github.com/thatsimonsguy/panel-provisioner/internal/pinmap"
)

// Ordinals on the Konnected Pro table.
const (
	zone1      = 0
	zone9      = 8
	alarm1     = 12
	out1       = 13
	alarm2Out2 = 14
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	table, err := pinmap.New(pinmap.ModelKonnectedPro)
	require.NoError(t, err)
	return NewStore(table)
}

func intPtr(i int) *int    { return &i }
func boolPtr(b bool) *bool { return &b }

func TestNewStore_Defaults(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < s.Table().PinCount(); i++ {
		fn, extra, err := s.Query(i)
		require.NoError(t, err)
		assert.Equal(t, model.FunctionNone, fn)
		assert.Equal(t, model.NoExtra(), extra)
	}
	assert.Equal(t, 0, s.Assigned())
}

func TestQuery_OutOfRange(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Query(-1)
	assert.ErrorIs(t, err, pinmap.ErrPinOutOfRange)
	_, _, err = s.Query(s.Table().PinCount())
	assert.ErrorIs(t, err, pinmap.ErrPinOutOfRange)

	err = s.Provision(15, model.FunctionNone, model.NoExtra())
	assert.ErrorIs(t, err, pinmap.ErrPinOutOfRange)
}

func TestProvision_ParameterShape(t *testing.T) {
	tests := []struct {
		name    string
		ordinal int
		fn      model.PinFunction
		extra   model.Extra
		wantErr error
	}{
		{"none without extra", zone1, model.FunctionNone, model.NoExtra(), nil},
		{"none with poll interval", zone1, model.FunctionNone, model.PollInterval(5), ErrMalformedParameters},
		{"none with trigger", zone1, model.FunctionNone, model.Trigger(true), ErrMalformedParameters},

		{"binary sensor", zone1, model.FunctionBinarySensor, model.NoExtra(), nil},
		{"binary sensor with poll interval", zone1, model.FunctionBinarySensor, model.PollInterval(5), ErrMalformedParameters},
		{"binary sensor with trigger", zone1, model.FunctionBinarySensor, model.Trigger(false), ErrMalformedParameters},

		{"onewire sensor", zone1, model.FunctionOnewireSensor, model.NoExtra(), nil},
		{"onewire sensor with poll interval", zone1, model.FunctionOnewireSensor, model.PollInterval(1), ErrMalformedParameters},
		{"onewire sensor with trigger", zone1, model.FunctionOnewireSensor, model.Trigger(true), ErrMalformedParameters},

		{"digital sensor", zone1, model.FunctionDigitalSensor, model.PollInterval(5), nil},
		{"digital sensor without interval", zone1, model.FunctionDigitalSensor, model.NoExtra(), ErrMalformedParameters},
		{"digital sensor with trigger", zone1, model.FunctionDigitalSensor, model.Trigger(true), ErrMalformedParameters},
		{"digital sensor zero interval", zone1, model.FunctionDigitalSensor, model.PollInterval(0), nil},
		{"digital sensor negative interval", zone1, model.FunctionDigitalSensor, model.PollInterval(-5), nil},

		{"alarm actuator high", alarm1, model.FunctionAlarmActuator, model.Trigger(true), nil},
		{"alarm actuator low", alarm1, model.FunctionAlarmActuator, model.Trigger(false), nil},
		{"alarm actuator without trigger", alarm1, model.FunctionAlarmActuator, model.NoExtra(), ErrMalformedParameters},
		{"alarm actuator with poll interval", alarm1, model.FunctionAlarmActuator, model.PollInterval(3), ErrMalformedParameters},

		{"trigger actuator", out1, model.FunctionTriggerActuator, model.Trigger(true), nil},
		{"trigger actuator without trigger", out1, model.FunctionTriggerActuator, model.NoExtra(), ErrMalformedParameters},
		{"trigger actuator with poll interval", out1, model.FunctionTriggerActuator, model.PollInterval(3), ErrMalformedParameters},

		{"unknown function", zone1, model.PinFunction("siren"), model.NoExtra(), ErrMalformedParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			beforeFn, beforeExtra, err := s.Query(tt.ordinal)
			require.NoError(t, err)

			err = s.Provision(tt.ordinal, tt.fn, tt.extra)

			fn, extra, qerr := s.Query(tt.ordinal)
			require.NoError(t, qerr)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, ErrValidation)
				assert.Equal(t, beforeFn, fn)
				assert.Equal(t, beforeExtra, extra)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.fn, fn)
			assert.Equal(t, tt.extra, extra)
		})
	}
}

func TestProvision_Capability(t *testing.T) {
	s := newTestStore(t)
	table := s.Table()

	for ordinal := 0; ordinal < table.PinCount(); ordinal++ {
		allowed, err := table.AllowedFunctions(ordinal)
		require.NoError(t, err)

		for _, fn := range model.AllPinFunctions() {
			if fn == model.FunctionNone {
				continue
			}
			extra := model.NoExtra()
			switch fn {
			case model.FunctionDigitalSensor:
				extra = model.PollInterval(2)
			case model.FunctionAlarmActuator, model.FunctionTriggerActuator:
				extra = model.Trigger(true)
			}

			err := s.Provision(ordinal, fn, extra)
			if contains(allowed, fn) {
				assert.NoError(t, err, "pin %d function %s", ordinal, fn)
			} else {
				assert.ErrorIs(t, err, ErrFunctionNotPermitted, "pin %d function %s", ordinal, fn)
			}
		}
	}
}

func TestProvision_DigitalSensorOnBinaryOnlyPin(t *testing.T) {
	s := newTestStore(t)

	err := s.Provision(zone9, model.FunctionDigitalSensor, model.PollInterval(5))
	assert.ErrorIs(t, err, ErrFunctionNotPermitted)
	assert.ErrorIs(t, err, ErrValidation)

	fn, extra, err := s.Query(zone9)
	require.NoError(t, err)
	assert.Equal(t, model.FunctionNone, fn)
	assert.Equal(t, model.NoExtra(), extra)
}

func TestProvision_FailureKeepsPriorAssignment(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Provision(zone1, model.FunctionDigitalSensor, model.PollInterval(10)))

	err := s.Provision(zone1, model.FunctionAlarmActuator, model.Trigger(true))
	assert.ErrorIs(t, err, ErrFunctionNotPermitted)

	err = s.Provision(zone1, model.FunctionBinarySensor, model.PollInterval(10))
	assert.ErrorIs(t, err, ErrMalformedParameters)

	fn, extra, err := s.Query(zone1)
	require.NoError(t, err)
	assert.Equal(t, model.FunctionDigitalSensor, fn)
	assert.Equal(t, model.PollInterval(10), extra)
}

func TestProvision_Idempotent(t *testing.T) {
	once := newTestStore(t)
	twice := newTestStore(t)

	require.NoError(t, once.Provision(alarm2Out2, model.FunctionTriggerActuator, model.Trigger(false)))
	require.NoError(t, twice.Provision(alarm2Out2, model.FunctionTriggerActuator, model.Trigger(false)))
	require.NoError(t, twice.Provision(alarm2Out2, model.FunctionTriggerActuator, model.Trigger(false)))

	assert.Equal(t, once.Snapshot(), twice.Snapshot())
}

func TestProvision_DeprovisionAlwaysSucceeds(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Provision(zone1, model.FunctionDigitalSensor, model.PollInterval(5)))
	require.NoError(t, s.Provision(alarm1, model.FunctionAlarmActuator, model.Trigger(true)))
	assert.Equal(t, 2, s.Assigned())

	for ordinal := 0; ordinal < s.Table().PinCount(); ordinal++ {
		require.NoError(t, s.Provision(ordinal, model.FunctionNone, model.NoExtra()))

		fn, extra, err := s.Query(ordinal)
		require.NoError(t, err)
		assert.Equal(t, model.FunctionNone, fn)
		assert.Equal(t, model.ExtraAbsent, extra.Kind())
	}
	assert.Equal(t, 0, s.Assigned())
}

func TestSingleAssignmentPerPin(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Provision(alarm2Out2, model.FunctionAlarmActuator, model.Trigger(true)))
	require.NoError(t, s.Provision(alarm2Out2, model.FunctionTriggerActuator, model.Trigger(false)))

	fn, extra, err := s.Query(alarm2Out2)
	require.NoError(t, err)
	assert.Equal(t, model.FunctionTriggerActuator, fn)
	assert.Equal(t, model.Trigger(false), extra)
	assert.Equal(t, 1, s.Assigned())
}

func TestExtraFromOptional(t *testing.T) {
	extra, err := ExtraFromOptional(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.NoExtra(), extra)

	extra, err = ExtraFromOptional(intPtr(4), nil)
	require.NoError(t, err)
	assert.Equal(t, model.PollInterval(4), extra)

	extra, err = ExtraFromOptional(nil, boolPtr(true))
	require.NoError(t, err)
	assert.Equal(t, model.Trigger(true), extra)

	_, err = ExtraFromOptional(intPtr(4), boolPtr(true))
	assert.ErrorIs(t, err, ErrMalformedParameters)
}

func contains(list []model.PinFunction, fn model.PinFunction) bool {
	for _, f := range list {
		if f == fn {
			return true
		}
	}
	return false
}

func TestApply(t *testing.T) {
	s := newTestStore(t)

	err := s.Apply([]Request{
		{Pin: "1", Function: model.FunctionBinarySensor, Extra: model.NoExtra()},
		{Pin: "6", Function: model.FunctionDigitalSensor, Extra: model.PollInterval(2)},
		{Pin: "alarm1", Function: model.FunctionAlarmActuator, Extra: model.Trigger(true)},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Assigned())

	fn, extra, err := s.Query(5)
	require.NoError(t, err)
	assert.Equal(t, model.FunctionDigitalSensor, fn)
	assert.Equal(t, model.PollInterval(2), extra)
}

func TestApply_StopsAtFirstFailure(t *testing.T) {
	s := newTestStore(t)

	err := s.Apply([]Request{
		{Pin: "2", Function: model.FunctionBinarySensor, Extra: model.NoExtra()},
		{Pin: "10", Function: model.FunctionOnewireSensor, Extra: model.NoExtra()},
		{Pin: "3", Function: model.FunctionBinarySensor, Extra: model.NoExtra()},
	})
	assert.ErrorIs(t, err, ErrFunctionNotPermitted)
	assert.Equal(t, 1, s.Assigned())

	err = s.Apply([]Request{{Pin: "zone13", Function: model.FunctionNone}})
	assert.ErrorIs(t, err, pinmap.ErrUnknownDesignator)
}
