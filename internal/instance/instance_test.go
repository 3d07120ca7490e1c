package instance

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestNewDevice_DefaultRule(t *testing.T) {
	env, _, _, _ := newTestEnv()

	tests := []struct {
		name    string
		variant DeviceVariant
		def     any
		wantErr bool
		want    any
	}{
		{"numeric default", &levelDriver{}, 50, false, 50},
		{"numeric string coerced", &levelDriver{}, "75", false, 75},
		{"rule-typed rejects enabled", &levelDriver{}, "enabled", true, nil},
		{"rule-typed rejects disabled", &levelDriver{}, "Disabled", true, nil},
		{"rule-typed requires default", &levelDriver{}, nil, true, nil},
		{"out of range", &levelDriver{}, 150, true, nil},
		{"bool rejected", &levelDriver{}, true, true, nil},
		{"ruleless enabled", &relayDriver{}, "Enabled", false, "enabled"},
		{"ruleless missing defaults to enabled", &relayDriver{}, nil, false, "enabled"},
		{"ruleless rejects number", &relayDriver{}, 50, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDevice(Params{Name: "device1", Type: "test", DefaultRule: tt.def}, tt.variant, env)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDefaultRule) {
					t.Fatalf("NewDevice() error = %v, want ErrInvalidDefaultRule", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewDevice() error = %v", err)
			}
			if d.CurrentRule() != tt.want || d.DefaultRule() != tt.want || d.ScheduledRule() != tt.want {
				t.Errorf("rules = %v/%v/%v, want %v", d.CurrentRule(), d.ScheduledRule(), d.DefaultRule(), tt.want)
			}
			if !d.Enabled() {
				t.Error("new device should be enabled")
			}
		})
	}
}

func TestNewDevice_DisabledDefaultStartsDisabled(t *testing.T) {
	env, _, _, _ := newTestEnv()
	d := mustDevice(t, env, "device1", &relayDriver{}, "disabled")
	if d.Enabled() {
		t.Error("device with disabled default should start disabled")
	}
}

func TestSetRule_InvalidNeverMutates(t *testing.T) {
	invalid := []any{
		true,
		false,
		math.NaN(),
		math.Inf(1),
		"abc",
		101,
		-1,
		50.5,
		nil,
		map[string]any{"a": 1},
		[]int{1},
	}

	for _, enabled := range []bool{true, false} {
		for _, rule := range invalid {
			env, _, _, _ := newTestEnv()
			d := mustDevice(t, env, "device1", &levelDriver{}, 40)
			if !enabled {
				d.Disable()
			}

			err := d.SetRule(rule, true)
			if !errors.Is(err, ErrInvalidRule) {
				t.Errorf("SetRule(%v) error = %v, want ErrInvalidRule", rule, err)
			}
			if d.CurrentRule() != 40 || d.ScheduledRule() != 40 {
				t.Errorf("SetRule(%v) mutated rules to %v/%v", rule, d.CurrentRule(), d.ScheduledRule())
			}
			if d.Enabled() != enabled {
				t.Errorf("SetRule(%v) changed enabled to %v", rule, d.Enabled())
			}
		}
	}
}

func TestSetRule_ScheduledFlag(t *testing.T) {
	env, _, _, _ := newTestEnv()
	d := mustDevice(t, env, "device1", &levelDriver{}, 40)

	if err := d.SetRule(60, false); err != nil {
		t.Fatalf("SetRule() error = %v", err)
	}
	if d.CurrentRule() != 60 || d.ScheduledRule() != 40 {
		t.Errorf("unscheduled: current=%v scheduled=%v", d.CurrentRule(), d.ScheduledRule())
	}

	if err := d.SetRule("70", true); err != nil {
		t.Fatalf("SetRule() error = %v", err)
	}
	if d.CurrentRule() != 70 || d.ScheduledRule() != 70 {
		t.Errorf("scheduled: current=%v scheduled=%v", d.CurrentRule(), d.ScheduledRule())
	}
}

func TestSetRule_UniversalLiterals(t *testing.T) {
	env, _, _, _ := newTestEnv()
	d := mustDevice(t, env, "device1", &levelDriver{}, 40)

	if err := d.SetRule("DISABLED", false); err != nil {
		t.Fatalf("SetRule(DISABLED) error = %v", err)
	}
	if d.Enabled() || d.CurrentRule() != RuleDisabled {
		t.Fatalf("after DISABLED: enabled=%v current=%v", d.Enabled(), d.CurrentRule())
	}

	if err := d.SetRule("Enabled", false); err != nil {
		t.Fatalf("SetRule(Enabled) error = %v", err)
	}
	if !d.Enabled() {
		t.Error("Enabled literal did not enable")
	}
	if d.CurrentRule() != 40 {
		t.Errorf("current = %v, want usable rule 40", d.CurrentRule())
	}
}

func TestSetRule_ValueReenablesDisabledInstance(t *testing.T) {
	env, _, _, _ := newTestEnv()
	d := mustDevice(t, env, "device1", &levelDriver{}, 40)
	d.Disable()

	if err := d.SetRule(20, false); err != nil {
		t.Fatalf("SetRule() error = %v", err)
	}
	if !d.Enabled() {
		t.Error("setting a concrete rule should enable a disabled instance")
	}
}

func TestEnableDisableEnable_RestoresUsableRule(t *testing.T) {
	tests := []struct {
		name      string
		scheduled any
		want      any
	}{
		{"scheduled usable", 80, 80},
		{"scheduled disabled falls back to default", "disabled", 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, _, _, _ := newTestEnv()
			d := mustDevice(t, env, "device1", &levelDriver{}, 40)
			if err := d.SetRule(tt.scheduled, true); err != nil {
				t.Fatalf("SetRule() error = %v", err)
			}

			d.Enable()
			d.Disable()
			d.Enable()

			if !d.Enabled() {
				t.Fatal("instance not enabled")
			}
			if d.CurrentRule() != tt.want {
				t.Errorf("current = %v, want %v", d.CurrentRule(), tt.want)
			}
		})
	}
}

func TestEnable_RulelessPlaceholder(t *testing.T) {
	env, _, _, _ := newTestEnv()
	d := mustDevice(t, env, "device1", &relayDriver{}, "enabled")

	if err := d.SetRule("disabled", true); err != nil {
		t.Fatalf("SetRule() error = %v", err)
	}
	d.Enable()
	if !d.Enabled() || d.CurrentRule() != RuleEnabled {
		t.Errorf("enabled=%v current=%v, want enabled placeholder", d.Enabled(), d.CurrentRule())
	}
}

func TestEnable_NoUsableRuleStaysDisabled(t *testing.T) {
	env, _, _, _ := newTestEnv()
	d := mustDevice(t, env, "device1", &levelDriver{}, 40)
	d.ForceDisable()

	d.Enable()
	if d.Enabled() {
		t.Error("force-disabled rule-typed instance should not enable")
	}
}

func TestForceDisable(t *testing.T) {
	env, _, _, _ := newTestEnv()
	d := mustDevice(t, env, "device1", &levelDriver{}, 40)

	d.ForceDisable()
	if d.Enabled() {
		t.Error("still enabled")
	}
	for _, r := range []any{d.CurrentRule(), d.ScheduledRule(), d.DefaultRule()} {
		if r != RuleDisabled {
			t.Errorf("rule = %v, want disabled", r)
		}
	}
}

func TestNextRule_PopsQueue(t *testing.T) {
	env, _, _, _ := newTestEnv()
	d := mustDevice(t, env, "device1", &levelDriver{}, 40)
	d.SetRuleQueue([]any{10, "disabled", 30})

	if err := d.NextRule(); err != nil {
		t.Fatalf("NextRule() error = %v", err)
	}
	if d.CurrentRule() != 10 || d.ScheduledRule() != 10 {
		t.Errorf("after first pop current=%v scheduled=%v", d.CurrentRule(), d.ScheduledRule())
	}
	if q := d.RuleQueue(); len(q) != 2 {
		t.Errorf("queue = %v, want 2 left", q)
	}

	if err := d.NextRule(); err != nil {
		t.Fatalf("NextRule() error = %v", err)
	}
	if d.Enabled() {
		t.Error("scheduled disabled did not disable")
	}

	if err := d.NextRule(); err != nil {
		t.Fatalf("NextRule() error = %v", err)
	}
	if !d.Enabled() || d.CurrentRule() != 30 {
		t.Errorf("enabled=%v current=%v after third pop", d.Enabled(), d.CurrentRule())
	}
}

func TestResetRule(t *testing.T) {
	env, _, _, _ := newTestEnv()
	d := mustDevice(t, env, "device1", &levelDriver{}, 40)
	if err := d.SetRule(90, false); err != nil {
		t.Fatalf("SetRule() error = %v", err)
	}

	if err := d.ResetRule(); err != nil {
		t.Fatalf("ResetRule() error = %v", err)
	}
	if d.CurrentRule() != 40 {
		t.Errorf("current = %v, want scheduled 40", d.CurrentRule())
	}
}

func TestEnableIn_Supersedes(t *testing.T) {
	env, sched, clock, _ := newTestEnv()
	d := mustDevice(t, env, "device1", &levelDriver{}, 40)
	d.Disable()

	d.EnableIn(time.Minute)
	d.DisableIn(2 * time.Minute)
	if !sched.Has("device1") || sched.Len() != 1 {
		t.Fatalf("pending = %+v, want one device1 entry", sched.Pending())
	}

	d.Enable()
	clock.Advance(3 * time.Minute)
	sched.RunPending()
	if d.Enabled() {
		t.Error("DisableIn did not supersede EnableIn")
	}
}

func TestEvents(t *testing.T) {
	env, _, _, log := newTestEnv()
	d := mustDevice(t, env, "device1", &levelDriver{}, 40)

	if err := d.SetRule("disabled", false); err != nil {
		t.Fatalf("SetRule() error = %v", err)
	}
	d.Enable()

	kinds := log.kinds()
	want := []EventKind{EventRuleChanged, EventDisabled, EventEnabled}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
	if log.events[0].Instance != "device1" || !log.events[0].Time.Equal(testEpoch) {
		t.Errorf("event metadata = %+v", log.events[0])
	}
}

func TestAttributes_Serializable(t *testing.T) {
	env, _, _, _ := newTestEnv()
	g := NewGraph(env)
	d := mustDevice(t, env, "device1", &levelDriver{}, 40)
	s := mustSensor(t, env, "sensor1", &voteSensor{cond: None}, "device1")
	if err := g.AddDevice(d); err != nil {
		t.Fatal(err)
	}
	if err := g.AddSensor(s); err != nil {
		t.Fatal(err)
	}
	g.BuildGroups()

	for _, m := range g.Members() {
		data, err := json.Marshal(m.Attributes())
		if err != nil {
			t.Fatalf("Marshal(%s attributes) error = %v", m.Name(), err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatal(err)
		}
		if decoded["name"] != m.Name() {
			t.Errorf("name = %v", decoded["name"])
		}
	}

	attrs := s.Attributes()
	if attrs["group"] != "group1" {
		t.Errorf("group = %v, want group1", attrs["group"])
	}
}

func TestDeviceSend_DisabledIgnoresOn(t *testing.T) {
	env, _, _, _ := newTestEnv()
	drv := &levelDriver{}
	d := mustDevice(t, env, "device1", drv, 40)
	d.Disable()

	if err := d.Send(true); err != nil {
		t.Fatalf("Send(true) error = %v", err)
	}
	if len(drv.sends) != 0 {
		t.Errorf("driver received %v for disabled device", drv.sends)
	}

	if err := d.Send(false); err != nil {
		t.Fatalf("Send(false) error = %v", err)
	}
	if len(drv.sends) != 1 || d.State() != False {
		t.Errorf("sends=%v state=%v", drv.sends, d.State())
	}
}

func TestDeviceDisable_TurnsOff(t *testing.T) {
	env, _, _, _ := newTestEnv()
	drv := &levelDriver{}
	d := mustDevice(t, env, "device1", drv, 40)

	if err := d.Send(true); err != nil {
		t.Fatal(err)
	}
	d.Disable()
	if d.State() != False {
		t.Errorf("state = %v, want false after disable", d.State())
	}
	if len(drv.sends) != 2 || drv.sends[1] {
		t.Errorf("sends = %v, want [true false]", drv.sends)
	}
}

func TestDeviceSend_FailureKeepsState(t *testing.T) {
	env, _, _, _ := newTestEnv()
	drv := &levelDriver{err: errDriver}
	d := mustDevice(t, env, "device1", drv, 40)

	if err := d.Send(true); !errors.Is(err, errDriver) {
		t.Fatalf("Send() error = %v, want errDriver", err)
	}
	if d.State() != None {
		t.Errorf("state = %v, want none", d.State())
	}
}

func TestIncrementRule_NotSupported(t *testing.T) {
	env, _, _, _ := newTestEnv()
	d := mustDevice(t, env, "device1", &levelDriver{}, 40)
	if err := d.IncrementRule(5); !errors.Is(err, ErrNotSupported) {
		t.Errorf("IncrementRule() error = %v, want ErrNotSupported", err)
	}
}

func TestSensorTrigger_NotSupported(t *testing.T) {
	env, _, _, _ := newTestEnv()
	s := mustSensor(t, env, "sensor1", &voteSensor{})
	if err := s.Trigger(); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Trigger() error = %v, want ErrNotSupported", err)
	}
}
