package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/device"
	"github.com/nerrad567/gray-logic-node/internal/instance"
	"github.com/nerrad567/gray-logic-node/internal/sensor"
	"github.com/nerrad567/gray-logic-node/internal/timer"
)

type published struct {
	topic    string
	payload  string
	retained bool
}

// recorder is an in-memory MQTT publisher.
type recorder struct {
	mu   sync.Mutex
	msgs []published
}

func (r *recorder) Publish(topic string, payload []byte, _ byte, retained bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, published{topic: topic, payload: string(payload), retained: retained})
	return nil
}

func (r *recorder) last(topic string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].topic == topic {
			return r.msgs[i].payload, true
		}
	}
	return "", false
}

func (r *recorder) published(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.topic == topic {
			n++
		}
	}
	return n
}

// fickle is a numeric device whose validation can be switched off after
// construction.
type fickle struct{ reject *bool }

func (f fickle) ValidateRule(rule any) (any, error) {
	n, ok := instance.IntRule(rule)
	if *f.reject || !ok {
		return nil, instance.ErrInvalidRule
	}
	return n, nil
}

func (fickle) Send(*instance.Device, bool) error { return nil }

type fakeSun struct {
	kw  map[string]string
	err error
}

func (s *fakeSun) Keywords(time.Time) (map[string]string, error) {
	return s.kw, s.err
}

type engineFixture struct {
	clock  *timer.FakeClock
	sched  *timer.Scheduler
	pub    *recorder
	reject bool
	engine *Engine
}

func newEngineFixture(t *testing.T, now time.Time, data string, configure ...func(*Options)) *engineFixture {
	t.Helper()
	doc, err := ParseDocument([]byte(data))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}

	f := &engineFixture{clock: timer.NewFake(now), pub: &recorder{}}
	f.sched = timer.New(f.clock, timer.Options{})

	reg := instance.NewRegistry()
	device.Register(reg, device.Deps{MQTT: f.pub})
	sensor.Register(reg, sensor.Deps{})
	reg.RegisterDevice("fickle", func(instance.Params) (instance.DeviceVariant, error) {
		return fickle{reject: &f.reject}, nil
	})

	opts := Options{
		Registry:     reg,
		Scheduler:    f.sched,
		Location:     time.UTC,
		ReloadMinute: func() int { return 17 },
	}
	for _, fn := range configure {
		fn(&opts)
	}
	f.engine, err = NewEngine(doc, opts)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	f.engine.Start(context.Background())
	t.Cleanup(func() { f.engine.Stop() }) //nolint:errcheck // test cleanup
	return f
}

func (f *engineFixture) member(t *testing.T, name string) instance.Member {
	t.Helper()
	m, err := f.engine.Find(name)
	if err != nil {
		t.Fatalf("Find(%s) error = %v", name, err)
	}
	return m
}

// runAt moves the clock to now and fires everything due.
func (f *engineFixture) runAt(now time.Time) int {
	f.clock.Set(now)
	return f.sched.RunPending()
}

func (f *engineFixture) pendingAt(tag string) []time.Time {
	var out []time.Time
	for _, e := range f.sched.Pending() {
		if e.Tag == tag {
			out = append(out, e.Expiry.UTC())
		}
	}
	return out
}

func ints(t *testing.T, rules []any) []int {
	t.Helper()
	out := make([]int, 0, len(rules))
	for _, r := range rules {
		n, ok := instance.IntRule(r)
		if !ok {
			t.Fatalf("rule %v is not an integer", r)
		}
		out = append(out, n)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

const nightSchedule = `{
	"device1": {"_type": "dimmer", "topic": "hall/light", "default_rule": 100,
		"schedule": {"10:00": 50, "22:00": 0}}
}`

func TestEngine_LateEveningQueue(t *testing.T) {
	f := newEngineFixture(t, at(1, 23, 30), nightSchedule)

	d := f.member(t, "device1")
	if got, _ := instance.IntRule(d.CurrentRule()); got != 0 {
		t.Errorf("current rule = %v, want 0", d.CurrentRule())
	}
	if got := ints(t, d.Base().RuleQueue()); !equalInts(got, []int{50}) {
		t.Errorf("rule queue = %v, want [50]", got)
	}
	pending := f.pendingAt(timer.SchedulerTag)
	if len(pending) != 1 || !pending[0].Equal(at(2, 10, 0)) {
		t.Errorf("scheduler entries = %v, want one at %v", pending, at(2, 10, 0))
	}
}

func TestEngine_TransitionsAndRefill(t *testing.T) {
	f := newEngineFixture(t, at(1, 23, 30), nightSchedule)

	// The daily reload rebuilds the graph and lands on the same queue.
	f.runAt(at(2, 3, 30))
	d := f.member(t, "device1")
	if got := ints(t, d.Base().RuleQueue()); !equalInts(got, []int{50}) {
		t.Fatalf("queue after reload = %v, want [50]", got)
	}

	f.runAt(at(2, 10, 0))
	d = f.member(t, "device1")
	if got, _ := instance.IntRule(d.CurrentRule()); got != 50 {
		t.Errorf("current rule at 10:00 = %v, want 50", d.CurrentRule())
	}
	if got := ints(t, d.Base().RuleQueue()); !equalInts(got, []int{0}) {
		t.Errorf("queue after 10:00 = %v, want [0]", got)
	}
	if pending := f.pendingAt(timer.SchedulerTag); len(pending) != 1 || !pending[0].Equal(at(2, 22, 0)) {
		t.Errorf("scheduler entries = %v, want one at 22:00", pending)
	}

	f.runAt(at(2, 22, 0))
	if got, _ := instance.IntRule(d.CurrentRule()); got != 0 {
		t.Errorf("current rule at 22:00 = %v, want 0", d.CurrentRule())
	}
	if got := ints(t, d.Base().RuleQueue()); !equalInts(got, []int{50}) {
		t.Errorf("queue after 22:00 = %v, want [50]", got)
	}
}

func TestEngine_SingleEntryRecurs(t *testing.T) {
	f := newEngineFixture(t, at(1, 5, 0), `{
		"device1": {"_type": "dimmer", "topic": "t", "default_rule": 10, "schedule": {"07:00": 80}}
	}`)
	d := f.member(t, "device1")
	if err := d.SetRule(30, false); err != nil {
		t.Fatal(err)
	}
	if pending := f.pendingAt(timer.SchedulerTag); len(pending) != 1 || !pending[0].Equal(at(1, 7, 0)) {
		t.Fatalf("scheduler entries = %v, want today 07:00", pending)
	}

	f.runAt(at(1, 7, 0))
	if got, _ := instance.IntRule(d.CurrentRule()); got != 80 {
		t.Errorf("current rule = %v, want the scheduled 80", d.CurrentRule())
	}
	if pending := f.pendingAt(timer.SchedulerTag); len(pending) != 1 || !pending[0].Equal(at(2, 7, 0)) {
		t.Errorf("refilled entries = %v, want tomorrow 07:00", pending)
	}
}

func TestEngine_RuleFallback(t *testing.T) {
	f := newEngineFixture(t, at(1, 12, 0), `{
		"device1": {"_type": "dimmer", "topic": "t", "default_rule": 30, "schedule": {"07:00": 500}},
		"device2": {"_type": "fickle", "default_rule": 10, "schedule": {"07:00": 20}}
	}`)

	d1 := f.member(t, "device1")
	if got, _ := instance.IntRule(d1.CurrentRule()); got != 30 {
		t.Errorf("device1 current rule = %v, want default 30", d1.CurrentRule())
	}

	f.reject = true
	f.engine.BuildQueue()
	d2 := f.member(t, "device2")
	if d2.Enabled() {
		t.Error("device2 still enabled after every rule was rejected")
	}
	b := d2.Base()
	if b.CurrentRule() != instance.RuleDisabled || b.ScheduledRule() != instance.RuleDisabled || b.DefaultRule() != instance.RuleDisabled {
		t.Errorf("rules = %v/%v/%v, want all disabled", b.CurrentRule(), b.ScheduledRule(), b.DefaultRule())
	}
}

func TestEngine_BuildSkipsBadInstances(t *testing.T) {
	f := newEngineFixture(t, at(1, 12, 0), `{
		"device1": {"_type": "teleporter"},
		"device2": {"_type": "dimmer", "default_rule": 10},
		"device3": {"_type": "relay", "topic": "porch/relay"},
		"sensor1": {"nickname": "untyped"},
		"sensor2": {"_type": "dummy", "default_rule": "off", "targets": ["device3"],
			"schedule": {"07:00": "on", "19:00": "off"}},
		"sensor3": {"_type": "dummy", "default_rule": "off", "targets": ["device9"]}
	}`)

	g := f.engine.Graph()
	if len(g.Devices) != 1 || len(g.Sensors) != 1 || len(g.Groups) != 1 {
		t.Fatalf("graph = %d devices, %d sensors, %d groups; want 1, 1, 1", len(g.Devices), len(g.Sensors), len(g.Groups))
	}
	// The scheduled "on" vote is applied through the group right away.
	if got, ok := f.pub.last("porch/relay"); !ok || got != "ON" {
		t.Errorf("relay payload = %q, %v; want ON", got, ok)
	}
	if _, err := f.engine.Find("device1"); !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("Find(device1) error = %v, want ErrInstanceNotFound", err)
	}
}

func TestEngine_ReloadTimer(t *testing.T) {
	f := newEngineFixture(t, at(1, 23, 30), nightSchedule)

	want := at(2, 3, 17)
	if got := f.pendingAt(ReloadTag); len(got) != 1 || !got[0].Equal(want) {
		t.Fatalf("reload entries = %v, want %v", got, want)
	}
	if !f.engine.NextReload().Equal(want) {
		t.Errorf("NextReload() = %v, want %v", f.engine.NextReload(), want)
	}

	before := f.engine.Graph()
	f.runAt(want)
	if f.engine.Graph() == before {
		t.Error("reload did not rebuild the graph")
	}
	if got := f.pendingAt(ReloadTag); len(got) != 1 || !got[0].Equal(at(3, 3, 17)) {
		t.Errorf("reload re-armed at %v, want %v", got, at(3, 3, 17))
	}
}

func TestEngine_ReloadKeepsDeviceState(t *testing.T) {
	f := newEngineFixture(t, at(1, 12, 0), `{
		"device1": {"_type": "relay", "topic": "porch/relay"},
		"sensor1": {"_type": "dummy", "default_rule": "on", "targets": ["device1"]}
	}`)
	if got, _ := f.pub.last("porch/relay"); got != "ON" {
		t.Fatalf("relay payload = %q, want ON", got)
	}
	sent := f.pub.published("porch/relay")

	f.engine.ReloadScheduleRules()

	d, ok := f.member(t, "device1").(*instance.Device)
	if !ok {
		t.Fatal("device1 is not a device")
	}
	if d.State() != instance.True {
		t.Errorf("state after reload = %v, want true", d.State())
	}
	if got := f.pub.published("porch/relay"); got != sent {
		t.Errorf("reload re-sent the relay: %d publishes, want %d", got, sent)
	}
}

func TestNextReloadTime(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		minute int
		want   time.Time
	}{
		{"after midnight", at(1, 2, 0), 5, at(1, 3, 5)},
		{"evening", at(1, 23, 30), 59, at(2, 3, 59)},
		{"inside the hour", at(1, 3, 30), 10, at(2, 3, 10)},
		{"same minute", at(1, 3, 10), 10, at(2, 3, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextReloadTime(tt.now, tt.minute)
			if err != nil {
				t.Fatalf("NextReloadTime() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextReloadTime() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := NextReloadTime(at(1, 0, 0), 60); err == nil {
		t.Error("NextReloadTime(minute 60) succeeded")
	}
}

func TestEngine_ScheduleEditing(t *testing.T) {
	f := newEngineFixture(t, at(1, 12, 0), `{
		"device1": {"_type": "dimmer", "topic": "t", "default_rule": 10, "schedule": {"07:00": 80}}
	}`)

	if err := f.engine.AddScheduleRule("device1", "12:30", 40); err != nil {
		t.Fatalf("AddScheduleRule() error = %v", err)
	}
	d := f.member(t, "device1")
	if got := ints(t, d.Base().RuleQueue()); !equalInts(got, []int{40}) {
		t.Errorf("queue = %v, want [40]", got)
	}

	if err := f.engine.AddScheduleRule("device1", "7:05", "60"); err != nil {
		t.Fatalf("AddScheduleRule(7:05) error = %v", err)
	}
	schedule, err := f.engine.Schedule("device1")
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := schedule["07:05"]; !ok || got != 60 {
		t.Errorf("schedule[07:05] = %v, want normalised 60", got)
	}

	errTests := []struct {
		name    string
		inst    string
		key     string
		rule    any
		wantErr error
	}{
		{"unknown instance", "device7", "07:00", 10, ErrInstanceNotFound},
		{"bad time", "device1", "7pm", 10, ErrInvalidTime},
		{"bad rule", "device1", "08:00", 500, instance.ErrInvalidRule},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.engine.AddScheduleRule(tt.inst, tt.key, tt.rule); !errors.Is(err, tt.wantErr) {
				t.Errorf("AddScheduleRule() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := f.engine.RemoveScheduleRule("device1", "12:30"); err != nil {
		t.Fatalf("RemoveScheduleRule() error = %v", err)
	}
	if err := f.engine.RemoveScheduleRule("device1", "12:30"); !errors.Is(err, ErrScheduleRuleNotFound) {
		t.Errorf("second RemoveScheduleRule() error = %v, want ErrScheduleRuleNotFound", err)
	}
	// 07:05 is now the latest past entry.
	if got, _ := instance.IntRule(d.CurrentRule()); got != 60 {
		t.Errorf("current rule = %v, want 60", d.CurrentRule())
	}
}

func TestEngine_Keywords(t *testing.T) {
	sun := &fakeSun{kw: map[string]string{"sunrise": "05:00", "sunset": "21:00"}}
	f := newEngineFixture(t, at(1, 12, 0), `{
		"metadata": {"schedule_keywords": {"evening": "19:00"}},
		"device1": {"_type": "dimmer", "topic": "t", "default_rule": 10,
			"schedule": {"07:00": 80, "evening": 40}}
	}`, func(o *Options) { o.Sun = sun })

	kw := f.engine.Keywords()
	if kw["sunset"] != "21:00" || kw["evening"] != "19:00" {
		t.Fatalf("Keywords() = %v", kw)
	}

	if err := f.engine.AddKeyword("evening", "20:15"); err != nil {
		t.Fatalf("AddKeyword() error = %v", err)
	}
	want := at(1, 20, 15)
	if pending := f.pendingAt(timer.SchedulerTag); len(pending) == 0 || !pending[0].Equal(want) {
		t.Errorf("first transition = %v, want %v", pending, want)
	}

	errTests := []struct {
		name    string
		fn      func() error
		wantErr error
	}{
		{"edit sunset", func() error { return f.engine.AddKeyword("sunset", "20:00") }, ErrReservedKeyword},
		{"remove sunrise", func() error { return f.engine.RemoveKeyword("sunrise") }, ErrReservedKeyword},
		{"clock as name", func() error { return f.engine.AddKeyword("07:00", "08:00") }, ErrInvalidKeyword},
		{"empty name", func() error { return f.engine.AddKeyword(" ", "08:00") }, ErrInvalidKeyword},
		{"bad time", func() error { return f.engine.AddKeyword("late", "late") }, ErrInvalidTime},
		{"remove unknown", func() error { return f.engine.RemoveKeyword("brunch") }, ErrKeywordNotFound},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := f.engine.RemoveKeyword("evening"); err != nil {
		t.Fatalf("RemoveKeyword() error = %v", err)
	}
	if got := f.engine.KeywordNames(); len(got) != 2 || got[0] != "sunrise" || got[1] != "sunset" {
		t.Errorf("KeywordNames() = %v", got)
	}
}

func TestEngine_SunFailureKeepsKeywords(t *testing.T) {
	sun := &fakeSun{err: errors.New("polar night")}
	f := newEngineFixture(t, at(1, 12, 0), `{
		"metadata": {"schedule_keywords": {"sunset": "21:00"}}
	}`, func(o *Options) { o.Sun = sun })

	if got := f.engine.Keywords()["sunset"]; got != "21:00" {
		t.Errorf("sunset = %q, want the stored 21:00", got)
	}
}

func TestEngine_Status(t *testing.T) {
	f := newEngineFixture(t, at(1, 23, 30), `{
		"metadata": {"id": "hall"},
		"device1": {"_type": "relay", "topic": "a"},
		"sensor1": {"_type": "dummy", "default_rule": "on", "targets": ["device1"]}
	}`)

	st := f.engine.Status()
	if st.Metadata.ID != "hall" {
		t.Errorf("Metadata.ID = %q", st.Metadata.ID)
	}
	if len(st.Devices) != 1 || len(st.Sensors) != 1 || len(st.Groups) != 1 {
		t.Errorf("Status() = %d devices, %d sensors, %d groups", len(st.Devices), len(st.Sensors), len(st.Groups))
	}
	if st.Devices[0]["name"] != "device1" {
		t.Errorf("device attributes = %v", st.Devices[0])
	}
	if !st.NextReload.Equal(at(2, 3, 17)) {
		t.Errorf("NextReload = %v", st.NextReload)
	}
}

func TestEngine_Stop(t *testing.T) {
	f := newEngineFixture(t, at(1, 23, 30), nightSchedule)
	if err := f.engine.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if f.sched.Has(timer.SchedulerTag) || f.sched.Has(ReloadTag) {
		t.Errorf("entries left after Stop: %v", f.sched.Pending())
	}
}

func TestNewEngine_Required(t *testing.T) {
	if _, err := NewEngine(nil, Options{}); err == nil {
		t.Error("NewEngine() without registry succeeded")
	}
	if _, err := NewEngine(nil, Options{Registry: instance.NewRegistry()}); err == nil {
		t.Error("NewEngine() without scheduler succeeded")
	}
}
