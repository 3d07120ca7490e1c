package automation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-node/internal/instance"
)

// Top-level document keys.
const (
	metadataKey  = "metadata"
	devicePrefix = "device"
	sensorPrefix = "sensor"
)

// Reserved entry keys. Everything else in an entry is a type parameter.
const (
	keyType        = "_type"
	keyNickname    = "nickname"
	keyDefaultRule = "default_rule"
	keySchedule    = "schedule"
	keyTargets     = "targets"
)

// Document is the declarative node configuration: a metadata object plus
// one object per instance keyed deviceN or sensorN.
//
// The document is authoritative. The Engine compiles schedules from it on
// every build and edits it in place; the compiled epoch rules are never
// written back.
type Document struct {
	Metadata  Metadata
	Instances map[string]Entry
}

// Metadata describes the node and holds user-defined schedule keywords.
type Metadata struct {
	ID               string            `json:"id,omitempty"`
	Floor            any               `json:"floor,omitempty"`
	Location         string            `json:"location,omitempty"`
	ScheduleKeywords map[string]string `json:"schedule_keywords,omitempty"`
}

// Entry is one instance object as decoded from JSON. Unknown keys are kept
// so a save round-trips type parameters untouched.
type Entry map[string]any

// Type returns the _type field.
func (e Entry) Type() string {
	s, _ := e[keyType].(string) //nolint:errcheck // absent or wrong type reads as ""
	return s
}

// Schedule returns the live schedule map, or nil.
func (e Entry) Schedule() map[string]any {
	s, _ := e[keySchedule].(map[string]any) //nolint:errcheck // absent means unscheduled
	return s
}

// Params converts the entry into constructor parameters.
func (e Entry) Params(name string) (instance.Params, error) {
	p := instance.Params{
		Name:        name,
		Type:        e.Type(),
		DefaultRule: e[keyDefaultRule],
		Extra:       make(map[string]any),
	}
	if p.Type == "" {
		return p, fmt.Errorf("%w: %s has no _type", instance.ErrInvalidParams, name)
	}
	if v, ok := e[keyNickname]; ok && v != nil {
		nick, ok := v.(string)
		if !ok {
			return p, fmt.Errorf("%w: %s nickname must be a string", instance.ErrInvalidParams, name)
		}
		p.Nickname = nick
	}
	if v, ok := e[keyTargets]; ok && v != nil {
		list, ok := v.([]any)
		if !ok {
			return p, fmt.Errorf("%w: %s targets must be a list", instance.ErrInvalidParams, name)
		}
		for _, t := range list {
			target, ok := t.(string)
			if !ok {
				return p, fmt.Errorf("%w: %s target %v is not a name", instance.ErrInvalidParams, name, t)
			}
			p.Targets = append(p.Targets, target)
		}
	}
	for k, v := range e {
		switch k {
		case keyType, keyNickname, keyDefaultRule, keySchedule, keyTargets:
		default:
			p.Extra[k] = v
		}
	}
	return p, nil
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Instances: make(map[string]Entry)}
}

// ParseDocument decodes a JSON document. Every top-level key other than
// metadata must be deviceN or sensorN holding an object.
func ParseDocument(data []byte) (*Document, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	doc := NewDocument()
	for key, value := range raw {
		if key == metadataKey {
			if err := json.Unmarshal(value, &doc.Metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidDocument, err)
			}
			continue
		}
		if _, ok := entryKind(key); !ok {
			return nil, fmt.Errorf("%w: unexpected key %q", ErrInvalidDocument, key)
		}
		var entry Entry
		if err := json.Unmarshal(value, &entry); err != nil || entry == nil {
			return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidDocument, key)
		}
		doc.Instances[key] = entry
	}
	return doc, nil
}

// MarshalJSON flattens the document back to its top-level key layout.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Instances)+1)
	out[metadataKey] = d.Metadata
	for name, entry := range d.Instances {
		out[name] = entry
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler via ParseDocument.
func (d *Document) UnmarshalJSON(data []byte) error {
	parsed, err := ParseDocument(data)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	data, err := d.MarshalJSON()
	if err != nil {
		// Every value came from a JSON decode.
		panic(fmt.Sprintf("automation: document not re-encodable: %v", err))
	}
	clone, err := ParseDocument(data)
	if err != nil {
		panic(fmt.Sprintf("automation: document not re-decodable: %v", err))
	}
	return clone
}

// Names returns the entry names of one kind in numeric order: device2
// before device10.
func (d *Document) Names(kind instance.Kind) []string {
	var names []string
	for name := range d.Instances {
		if k, _ := entryKind(name); k == kind {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return entryNumber(names[i]) < entryNumber(names[j])
	})
	return names
}

func entryKind(key string) (instance.Kind, bool) {
	for prefix, kind := range map[string]instance.Kind{
		devicePrefix: instance.KindDevice,
		sensorPrefix: instance.KindSensor,
	} {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			if n, err := strconv.Atoi(rest); err == nil && n > 0 && rest[0] != '0' {
				return kind, true
			}
		}
	}
	return "", false
}

func entryNumber(key string) int {
	key = strings.TrimPrefix(strings.TrimPrefix(key, devicePrefix), sensorPrefix)
	n, _ := strconv.Atoi(key) //nolint:errcheck // validated by entryKind
	return n
}

// LoadDocumentFile reads a document from a JSON, JSONC or YAML file,
// chosen by extension. JSON files may carry comments and trailing commas.
func LoadDocumentFile(path string) (*Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config
	if err != nil {
		return nil, fmt.Errorf("reading node document: %w", err)
	}
	doc, err := DecodeDocument(path, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// DecodeDocument parses data using the format implied by name.
func DecodeDocument(name string, data []byte) (*Document, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		j, err := json.Marshal(normalizeYAML(v))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		return ParseDocument(j)
	default:
		return ParseDocument(jsonc.ToJSON(data))
	}
}

// normalizeYAML turns non-string map keys into strings so the value can
// be re-encoded as JSON. yaml.v3 decodes integer-looking keys as ints.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[string]any:
		for k, v := range x {
			x[k] = normalizeYAML(v)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return x
	}
}
