package instance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Member is the API-facing view shared by devices and sensors.
type Member interface {
	Name() string
	Nickname() string
	Type() string
	Kind() Kind
	Enabled() bool
	Enable()
	Disable()
	EnableIn(d time.Duration)
	DisableIn(d time.Duration)
	SetRule(rule any, scheduled bool) error
	NextRule() error
	ResetRule() error
	CurrentRule() any
	Attributes() map[string]any
	Base() *Instance
}

// Graph is the arena holding one build of the instance graph. Relations
// between devices, sensors and groups are slot indices into its tables.
// A reload builds a fresh Graph; graphs are never rewired in place.
type Graph struct {
	Devices []*Device
	Sensors []*Sensor
	Groups  []*Group

	env    Env
	byName map[string]Member
}

// NewGraph returns an empty graph.
func NewGraph(env Env) *Graph {
	return &Graph{
		env:    env.withDefaults(),
		byName: make(map[string]Member),
	}
}

// AddDevice appends d to the device table.
func (g *Graph) AddDevice(d *Device) error {
	if _, exists := g.byName[d.name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, d.name)
	}
	d.index = len(g.Devices)
	d.graph = g
	g.Devices = append(g.Devices, d)
	g.byName[d.name] = d
	return nil
}

// AddSensor resolves the sensor's target names and appends it to the
// sensor table. Unknown targets are an error; add devices first.
func (g *Graph) AddSensor(s *Sensor) error {
	if _, exists := g.byName[s.name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, s.name)
	}
	targets := make([]int, 0, len(s.targetNames))
	for _, name := range s.targetNames {
		m, ok := g.byName[name]
		d, isDevice := m.(*Device)
		if !ok || !isDevice {
			return fmt.Errorf("%w: %s targets %s", ErrUnknownTarget, s.name, name)
		}
		if !slices.Contains(targets, d.index) {
			targets = append(targets, d.index)
		}
	}
	s.targets = targets
	s.index = len(g.Sensors)
	s.graph = g
	g.Sensors = append(g.Sensors, s)
	g.byName[s.name] = s
	return nil
}

// BuildGroups partitions sensors by order-independent target-set equality.
// Sensors without targets join no group. Groups that contain a sensor
// implementing PostActionRoutine register it.
func (g *Graph) BuildGroups() {
	g.Groups = nil
	byKey := make(map[string]*Group)

	for _, s := range g.Sensors {
		s.group = NoGroup
		if len(s.targets) == 0 {
			continue
		}
		key := targetKey(s.targets)
		grp, ok := byKey[key]
		if !ok {
			grp = &Group{
				name:    "group" + strconv.Itoa(len(g.Groups)+1),
				index:   len(g.Groups),
				graph:   g,
				targets: sortedCopy(s.targets),
			}
			byKey[key] = grp
			g.Groups = append(g.Groups, grp)
		}
		grp.triggers = append(grp.triggers, s.index)
		s.group = grp.index

		if pa, ok := s.variant.(PostActionRoutine); ok {
			sensor := s
			grp.AddPostActionRoutine(func() { pa.PostAction(sensor) })
		}
	}
}

func sortedCopy(idx []int) []int {
	out := append([]int(nil), idx...)
	slices.Sort(out)
	return out
}

func targetKey(idx []int) string {
	sorted := sortedCopy(idx)
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// Find returns the device or sensor with the given name.
func (g *Graph) Find(name string) (Member, bool) {
	m, ok := g.byName[name]
	return m, ok
}

// Members returns every device followed by every sensor.
func (g *Graph) Members() []Member {
	out := make([]Member, 0, len(g.Devices)+len(g.Sensors))
	for _, d := range g.Devices {
		out = append(out, d)
	}
	for _, s := range g.Sensors {
		out = append(out, s)
	}
	return out
}

// resetGroupsTargeting resets and refreshes every group containing the
// device at slot idx.
func (g *Graph) resetGroupsTargeting(idx int) {
	for _, grp := range g.Groups {
		if slices.Contains(grp.targets, idx) {
			grp.ResetState()
			grp.Refresh()
		}
	}
}

// Start starts every device and sensor lifecycle. An instance that fails
// to start is logged and skipped; the joined errors are returned.
func (g *Graph) Start(ctx context.Context) error {
	var errs []error
	for _, d := range g.Devices {
		if err := d.Start(ctx); err != nil {
			g.env.Logger.Error("device failed to start", "device", d.Name(), "type", d.Type(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
		}
	}
	for _, s := range g.Sensors {
		if err := s.Start(ctx); err != nil {
			g.env.Logger.Error("sensor failed to start", "sensor", s.Name(), "type", s.Type(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Stop releases every lifecycle and cancels timers owned by members.
func (g *Graph) Stop() error {
	var errs []error
	for _, s := range g.Sensors {
		if err := s.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
		g.cancelOwned(s.Name())
	}
	for _, d := range g.Devices {
		if err := d.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
		}
		g.cancelOwned(d.Name())
	}
	return errors.Join(errs...)
}

// InheritState copies the recorded on/off state of each device in prev
// to the device of the same name and type in g. Call it before Start so
// drivers can claim hardware at the level it already has.
func (g *Graph) InheritState(prev *Graph) {
	if prev == nil {
		return
	}
	for _, d := range g.Devices {
		old, ok := prev.byName[d.name].(*Device)
		if ok && old.typ == d.typ {
			d.state = old.state
		}
	}
}

// OwnedTagSuffixes are the scheduler tag suffixes instances use for their
// own timers.
var OwnedTagSuffixes = []string{"", "_fade", "_reset", "_refresh", "_event"}

func (g *Graph) cancelOwned(name string) {
	if g.env.Scheduler == nil {
		return
	}
	for _, suffix := range OwnedTagSuffixes {
		n := g.env.Scheduler.Cancel(name + suffix)
		if suffix == "" && n > 0 {
			g.env.Logger.Info("pending delayed enable/disable dropped", "instance", name)
		}
	}
}
