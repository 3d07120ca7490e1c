package automation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/instance"
)

const (
	publishQueueSize = 256
	historyTimeout   = 2 * time.Second
)

// Publisher publishes MQTT messages. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Finder resolves an instance by name. *Engine satisfies it.
type Finder interface {
	Find(name string) (instance.Member, error)
}

type outbound struct {
	topic   string
	payload []byte
}

// StatePublisher mirrors instance attributes and group states to retained
// MQTT topics.
//
// Observe snapshots the attributes under the command lock and hands the
// message to Run, which does the blocking publish.
type StatePublisher struct {
	pub    Publisher
	nodeID string
	qos    byte
	finder Finder
	logger Logger
	topics mqtt.Topics
	queue  chan outbound
}

// NewStatePublisher creates a publisher for nodeID.
func NewStatePublisher(pub Publisher, nodeID string, qos byte, logger Logger) *StatePublisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &StatePublisher{
		pub:    pub,
		nodeID: nodeID,
		qos:    qos,
		logger: logger,
		queue:  make(chan outbound, publishQueueSize),
	}
}

// SetFinder sets where instance attributes are read from.
func (p *StatePublisher) SetFinder(f Finder) {
	p.finder = f
}

// Observe implements instance.Observer.
func (p *StatePublisher) Observe(ev instance.Event) {
	var (
		topic string
		body  any
	)
	switch ev.Kind {
	case instance.EventGroupApplied:
		topic = p.topics.GroupState(p.nodeID, ev.Instance)
		body = map[string]any{"state": ev.State, "time": ev.Time}
	default:
		if p.finder == nil {
			return
		}
		m, err := p.finder.Find(ev.Instance)
		if err != nil {
			return
		}
		topic = p.topics.InstanceState(p.nodeID, ev.Instance)
		body = m.Attributes()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		p.logger.Warn("cannot encode state", "topic", topic, "error", err)
		return
	}
	select {
	case p.queue <- outbound{topic: topic, payload: payload}:
	default:
		p.logger.Warn("state publish queue full, dropping", "topic", topic)
	}
}

// Run publishes queued messages until ctx is cancelled.
func (p *StatePublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			if err := p.pub.Publish(msg.topic, msg.payload, p.qos, true); err != nil {
				p.logger.Warn("state publish failed", "topic", msg.topic, "error", err)
			}
		}
	}
}

// TelemetryWriter records transitions. *influxdb.Client satisfies it and
// is safe to use when nil.
type TelemetryWriter interface {
	WriteRuleChange(instance, typ string, rule any, scheduled bool, ts time.Time)
	WriteGroupState(group string, on bool, ts time.Time)
}

// TelemetryObserver writes rule changes and group actions to InfluxDB.
type TelemetryObserver struct {
	w TelemetryWriter
}

// NewTelemetryObserver creates a telemetry observer.
func NewTelemetryObserver(w TelemetryWriter) *TelemetryObserver {
	return &TelemetryObserver{w: w}
}

// Observe implements instance.Observer.
func (o *TelemetryObserver) Observe(ev instance.Event) {
	switch ev.Kind {
	case instance.EventRuleChanged:
		o.w.WriteRuleChange(ev.Instance, ev.Type, ev.Rule, ev.Scheduled, ev.Time)
	case instance.EventGroupApplied:
		if on, ok := ev.State.Bool(); ok {
			o.w.WriteGroupState(ev.Instance, on, ev.Time)
		}
	}
}

// HistoryObserver records rule and enablement transitions. Fades are
// recorded by their start and completion, not per step.
type HistoryObserver struct {
	repo   RuleHistoryRepository
	logger Logger
}

// NewHistoryObserver creates a history observer.
func NewHistoryObserver(repo RuleHistoryRepository, logger Logger) *HistoryObserver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &HistoryObserver{repo: repo, logger: logger}
}

// Observe implements instance.Observer.
func (o *HistoryObserver) Observe(ev instance.Event) {
	switch ev.Kind {
	case instance.EventRuleChanged:
		if ev.Step {
			return
		}
	case instance.EventEnabled, instance.EventDisabled,
		instance.EventFadeStarted, instance.EventFadeCompleted:
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	err := o.repo.RecordRuleChange(ctx, RuleHistoryEntry{
		Instance:  ev.Instance,
		Event:     string(ev.Kind),
		Rule:      ev.Rule,
		Previous:  ev.Previous,
		Scheduled: ev.Scheduled,
		CreatedAt: ev.Time,
	})
	if err != nil {
		o.logger.Warn("recording rule history", "instance", ev.Instance, "error", err)
	}
}
