package automation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nerrad567/gray-logic-node/internal/instance"
	"github.com/nerrad567/gray-logic-node/internal/timer"
)

// ReloadTag owns the daily reload entry.
const ReloadTag = "reload_schedule_rules"

// Logger is the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Scheduler is the subset of *timer.Scheduler the engine needs.
type Scheduler interface {
	instance.Scheduler
	CreateAt(at time.Time, fn timer.Callback, tag string) int64
}

// SunResolver resolves sun-relative keywords for a date. location.Site
// satisfies it.
type SunResolver interface {
	Keywords(date time.Time) (map[string]string, error)
}

// Options configures an Engine. Registry and Scheduler are required.
type Options struct {
	Registry  *instance.Registry
	Scheduler Scheduler
	Observer  instance.Observer
	Logger    Logger

	// Location is the node time zone schedules are written in.
	Location *time.Location

	// Sun, when set, writes sunrise and sunset into the document's
	// keywords on every reload.
	Sun SunResolver

	// Store and DocumentID persist the document on SaveSchedules.
	Store      DocumentStore
	DocumentID string

	// ReloadMinute picks the minute past 03:00 of the daily reload.
	// The default is random so a fleet does not reload in lockstep.
	ReloadMinute func() int
}

// Engine compiles the node document into an instance graph and a queue of
// scheduled rule transitions.
//
// Thread Safety: not safe for concurrent use. Callers hold the command
// lock; the engine's own timers run as scheduler callbacks, which hold it.
type Engine struct {
	registry     *instance.Registry
	sched        Scheduler
	observer     instance.Observer
	logger       Logger
	loc          *time.Location
	sun          SunResolver
	store        DocumentStore
	docID        string
	reloadMinute func() int

	ctx        context.Context
	doc        *Document
	graph      *instance.Graph
	nextReload time.Time
}

// NewEngine creates an engine for doc. Nothing is built until Start.
func NewEngine(doc *Document, opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("automation: registry is required")
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("automation: scheduler is required")
	}
	if doc == nil {
		doc = NewDocument()
	}
	e := &Engine{
		registry:     opts.Registry,
		sched:        opts.Scheduler,
		observer:     opts.Observer,
		logger:       opts.Logger,
		loc:          opts.Location,
		sun:          opts.Sun,
		store:        opts.Store,
		docID:        opts.DocumentID,
		reloadMinute: opts.ReloadMinute,
		ctx:          context.Background(),
		doc:          doc,
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.reloadMinute == nil {
		e.reloadMinute = func() int { return rand.IntN(60) } //nolint:gosec // jitter, not security
	}
	return e, nil
}

// Start resolves the sun keywords, builds the graph, compiles the queue and
// arms the daily reload. ctx bounds the lifecycles of hardware monitors.
func (e *Engine) Start(ctx context.Context) {
	e.ctx = ctx
	e.resolveSun()
	e.build()
	e.BuildQueue()
	e.StartReloadTimer()
}

// Stop cancels the engine's timers and stops every monitor.
func (e *Engine) Stop() error {
	e.sched.Cancel(timer.SchedulerTag)
	e.sched.Cancel(ReloadTag)
	if e.graph == nil {
		return nil
	}
	return e.graph.Stop()
}

func (e *Engine) now() time.Time {
	return e.sched.Clock().Now().In(e.loc)
}

// build replaces the graph with a fresh one compiled from the document.
// Instances that cannot be constructed are logged and skipped.
func (e *Engine) build() {
	prev := e.graph
	if prev != nil {
		if err := prev.Stop(); err != nil {
			e.logger.Warn("stopping previous graph", "error", err)
		}
	}

	env := instance.Env{Scheduler: e.sched, Logger: e.logger, Observer: e.observer}
	g := instance.NewGraph(env)

	for _, name := range e.doc.Names(instance.KindDevice) {
		p, err := e.doc.Instances[name].Params(name)
		if err != nil {
			e.logger.Error("skipping device", "device", name, "error", err)
			continue
		}
		d, err := e.registry.NewDevice(p, env)
		if err == nil {
			err = g.AddDevice(d)
		}
		if err != nil {
			e.logger.Error("skipping device", "device", name, "type", p.Type, "error", err)
		}
	}
	for _, name := range e.doc.Names(instance.KindSensor) {
		p, err := e.doc.Instances[name].Params(name)
		if err != nil {
			e.logger.Error("skipping sensor", "sensor", name, "error", err)
			continue
		}
		s, err := e.registry.NewSensor(p, env)
		if err == nil {
			err = g.AddSensor(s)
		}
		if err != nil {
			e.logger.Error("skipping sensor", "sensor", name, "type", p.Type, "error", err)
		}
	}
	g.BuildGroups()
	g.InheritState(prev)

	//nolint:errcheck // each failure is logged by the graph; the instance stays addressable
	g.Start(e.ctx)

	e.graph = g
	e.logger.Info("instance graph built",
		"devices", len(g.Devices),
		"sensors", len(g.Sensors),
		"groups", len(g.Groups),
	)
}

// ConvertRules compiles schedule against the engine clock and keywords.
func (e *Engine) ConvertRules(schedule map[string]any) EpochRules {
	return ConvertRules(schedule, e.doc.Metadata.ScheduleKeywords, e.now(), e.logger)
}

// BuildQueue recompiles every schedule: it cancels all scheduled
// transitions, applies each instance's current rule and registers one
// timer per upcoming transition.
//
// The queue covers one daily cycle after the current rule; when it drains
// the instance recompiles the next cycle.
func (e *Engine) BuildQueue() {
	e.sched.Cancel(timer.SchedulerTag)
	if e.graph == nil {
		return
	}
	for _, m := range e.graph.Members() {
		base := m.Base()
		base.SetRuleQueue(nil)

		schedule := e.doc.Instances[m.Name()].Schedule()
		if len(schedule) == 0 {
			continue
		}
		rules := e.ConvertRules(schedule)
		times := rules.Times()
		if len(times) == 0 {
			continue
		}
		e.applyCurrent(base, rules[times[0]])
		e.arm(m, rules, times)
	}
	for _, g := range e.graph.Groups {
		g.Refresh()
	}
}

// applyCurrent applies the compiled current rule, falling back to the
// default rule and finally to forced disablement.
func (e *Engine) applyCurrent(base *instance.Instance, rule any) {
	err := base.SetRule(rule, true)
	if err == nil {
		return
	}
	e.logger.Warn("scheduled rule rejected, using default", "instance", base.Name(), "rule", rule, "error", err)

	if err := base.SetRule(base.DefaultRule(), true); err == nil {
		return
	}
	e.logger.Error("default rule rejected, disabling", "instance", base.Name(), "rule", base.DefaultRule(), "error", err)
	base.ForceDisable()
}

// arm registers the transitions after times[0] that fall within a day of
// it and stores their rules as the instance's queue. The first upcoming
// transition is always armed, so a single daily entry still recurs.
func (e *Engine) arm(m instance.Member, rules EpochRules, times []int64) {
	horizon := time.Unix(times[0], 0).In(e.loc).AddDate(0, 0, 1).Unix()

	var queue []any
	for i, ts := range times[1:] {
		if ts >= horizon && i > 0 {
			break
		}
		queue = append(queue, rules[ts])
		e.sched.CreateAt(time.Unix(ts, 0), func() { e.fire(m) }, timer.SchedulerTag)
	}
	m.Base().SetRuleQueue(queue)
}

// fire applies the next queued rule and refills a drained queue.
func (e *Engine) fire(m instance.Member) {
	base := m.Base()
	//nolint:errcheck // rejection is logged by NextRule; the next transition still runs
	base.NextRule()
	if len(base.RuleQueue()) > 0 {
		return
	}
	schedule := e.doc.Instances[m.Name()].Schedule()
	if len(schedule) == 0 {
		return
	}
	rules := e.ConvertRules(schedule)
	if times := rules.Times(); len(times) > 0 {
		e.arm(m, rules, times)
	}
}

// NextReloadTime returns the first "minute 3 * * *" time after now, in
// now's location.
func NextReloadTime(now time.Time, minute int) (time.Time, error) {
	if minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("reload minute %d out of range", minute)
	}
	spec, err := cron.ParseStandard(fmt.Sprintf("%d 3 * * *", minute))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing reload schedule: %w", err)
	}
	return spec.Next(now), nil
}

// StartReloadTimer arms the daily reload at a random minute between 03:00
// and 04:00 local time.
func (e *Engine) StartReloadTimer() {
	at, err := NextReloadTime(e.now(), e.reloadMinute())
	if err != nil {
		e.logger.Error("cannot arm schedule reload", "error", err)
		return
	}
	e.nextReload = at
	e.sched.CreateAt(at, e.ReloadScheduleRules, ReloadTag)
	e.logger.Info("schedule reload armed", "at", at.Format(time.RFC3339))
}

// NextReload returns when the daily reload fires.
func (e *Engine) NextReload() time.Time {
	return e.nextReload
}

// ReloadScheduleRules re-resolves sun keywords, rebuilds the graph from the
// document, recompiles the queue and re-arms the reload.
func (e *Engine) ReloadScheduleRules() {
	e.logger.Info("reloading schedule rules")
	e.resolveSun()
	e.build()
	e.BuildQueue()
	e.StartReloadTimer()
}

// Replace swaps in a new document, persists it when a store is configured
// and reloads.
func (e *Engine) Replace(ctx context.Context, doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	if e.store != nil {
		if err := e.store.SaveDocument(ctx, e.docID, doc); err != nil {
			return err
		}
	}
	e.doc = doc
	e.ReloadScheduleRules()
	return nil
}

// resolveSun writes sunrise and sunset into the document keywords. On
// failure the previous values stay in place.
func (e *Engine) resolveSun() {
	if e.sun == nil {
		return
	}
	kw, err := e.sun.Keywords(e.now())
	if err != nil {
		e.logger.Warn("sun keywords not resolved", "error", err)
		return
	}
	if e.doc.Metadata.ScheduleKeywords == nil {
		e.doc.Metadata.ScheduleKeywords = make(map[string]string, len(kw))
	}
	for k, v := range kw {
		e.doc.Metadata.ScheduleKeywords[k] = v
	}
}

// Graph returns the current instance graph.
func (e *Engine) Graph() *instance.Graph {
	return e.graph
}

// Document returns a copy of the live document.
func (e *Engine) Document() *Document {
	return e.doc.Clone()
}

// Find returns the device or sensor named name.
func (e *Engine) Find(name string) (instance.Member, error) {
	if e.graph != nil {
		if m, ok := e.graph.Find(name); ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, name)
}

// Status is the node snapshot served by the API.
type Status struct {
	Metadata   Metadata         `json:"metadata"`
	Devices    []map[string]any `json:"devices"`
	Sensors    []map[string]any `json:"sensors"`
	Groups     []map[string]any `json:"groups"`
	NextReload time.Time        `json:"next_reload"`
}

// Status reports metadata and the attributes of every instance and group.
func (e *Engine) Status() Status {
	st := Status{
		Metadata:   e.doc.Clone().Metadata,
		Devices:    []map[string]any{},
		Sensors:    []map[string]any{},
		Groups:     []map[string]any{},
		NextReload: e.nextReload,
	}
	if e.graph == nil {
		return st
	}
	for _, d := range e.graph.Devices {
		st.Devices = append(st.Devices, d.Attributes())
	}
	for _, s := range e.graph.Sensors {
		st.Sensors = append(st.Sensors, s.Attributes())
	}
	for _, g := range e.graph.Groups {
		st.Groups = append(st.Groups, g.Attributes())
	}
	return st
}

// Schedule returns a copy of an instance's live schedule.
func (e *Engine) Schedule(name string) (map[string]any, error) {
	entry, ok := e.doc.Instances[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, name)
	}
	out := make(map[string]any, len(entry.Schedule()))
	for k, v := range entry.Schedule() {
		out[k] = v
	}
	return out, nil
}

// normalizeTimeKey canonicalises HH:MM keys and checks keywords exist.
func (e *Engine) normalizeTimeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if h, m, ok := ParseClock(key); ok {
		return FormatClock(h, m), nil
	}
	if _, ok := e.doc.Metadata.ScheduleKeywords[key]; ok {
		return key, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTime, key)
}

// AddScheduleRule sets the rule at timeKey (HH:MM or a keyword) in an
// instance's schedule and rebuilds the queue. The rule must validate for
// the instance.
func (e *Engine) AddScheduleRule(name, timeKey string, rule any) error {
	m, err := e.Find(name)
	if err != nil {
		return err
	}
	key, err := e.normalizeTimeKey(timeKey)
	if err != nil {
		return err
	}
	valid, err := m.Base().ValidateRule(rule)
	if err != nil {
		return err
	}

	entry := e.doc.Instances[name]
	schedule := entry.Schedule()
	if schedule == nil {
		schedule = make(map[string]any)
		entry[keySchedule] = schedule
	}
	schedule[key] = valid
	e.logger.Info("schedule rule added", "instance", name, "time", key, "rule", valid)
	e.BuildQueue()
	return nil
}

// RemoveScheduleRule deletes the rule at timeKey and rebuilds the queue.
func (e *Engine) RemoveScheduleRule(name, timeKey string) error {
	if _, err := e.Find(name); err != nil {
		return err
	}
	key := strings.TrimSpace(timeKey)
	if h, m, ok := ParseClock(key); ok {
		key = FormatClock(h, m)
	}
	schedule := e.doc.Instances[name].Schedule()
	if _, ok := schedule[key]; !ok {
		return fmt.Errorf("%w: %s at %s", ErrScheduleRuleNotFound, name, key)
	}
	delete(schedule, key)
	e.logger.Info("schedule rule removed", "instance", name, "time", key)
	e.BuildQueue()
	return nil
}

// Keywords returns a copy of the schedule keywords, sun keywords included.
func (e *Engine) Keywords() map[string]string {
	out := make(map[string]string, len(e.doc.Metadata.ScheduleKeywords))
	for k, v := range e.doc.Metadata.ScheduleKeywords {
		out[k] = v
	}
	return out
}

// KeywordNames returns the keyword names sorted.
func (e *Engine) KeywordNames() []string {
	names := make([]string, 0, len(e.doc.Metadata.ScheduleKeywords))
	for k := range e.doc.Metadata.ScheduleKeywords {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) reserved(keyword string) bool {
	if e.sun == nil {
		return false
	}
	kw, err := e.sun.Keywords(e.now())
	if err != nil {
		return false
	}
	_, ok := kw[keyword]
	return ok
}

// AddKeyword defines or redefines a keyword as HH:MM and rebuilds the
// queue. Sun-resolved keywords cannot be edited.
func (e *Engine) AddKeyword(keyword, clock string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidKeyword)
	}
	if _, _, ok := ParseClock(keyword); ok {
		return fmt.Errorf("%w: %q looks like a time", ErrInvalidKeyword, keyword)
	}
	if e.reserved(keyword) {
		return fmt.Errorf("%w: %s", ErrReservedKeyword, keyword)
	}
	h, m, ok := ParseClock(clock)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidTime, clock)
	}
	if e.doc.Metadata.ScheduleKeywords == nil {
		e.doc.Metadata.ScheduleKeywords = make(map[string]string)
	}
	e.doc.Metadata.ScheduleKeywords[keyword] = FormatClock(h, m)
	e.logger.Info("keyword set", "keyword", keyword, "time", FormatClock(h, m))
	e.BuildQueue()
	return nil
}

// RemoveKeyword deletes a keyword and rebuilds the queue. Schedule rules
// still using it are skipped until it is defined again.
func (e *Engine) RemoveKeyword(keyword string) error {
	if e.reserved(keyword) {
		return fmt.Errorf("%w: %s", ErrReservedKeyword, keyword)
	}
	if _, ok := e.doc.Metadata.ScheduleKeywords[keyword]; !ok {
		return fmt.Errorf("%w: %s", ErrKeywordNotFound, keyword)
	}
	delete(e.doc.Metadata.ScheduleKeywords, keyword)
	e.logger.Info("keyword removed", "keyword", keyword)
	e.BuildQueue()
	return nil
}

// SaveSchedules persists the live document, schedules and keywords
// included.
func (e *Engine) SaveSchedules(ctx context.Context) error {
	if e.store == nil {
		return ErrNoDocumentStore
	}
	if err := e.store.SaveDocument(ctx, e.docID, e.doc.Clone()); err != nil {
		return fmt.Errorf("saving schedules: %w", err)
	}
	e.logger.Info("schedules saved", "document", e.docID)
	return nil
}
