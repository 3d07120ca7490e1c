package automation

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/nerrad567/gray-logic-node/internal/instance"
)

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(`{
		"metadata": {"id": "hall", "floor": 1, "schedule_keywords": {"evening": "19:30"}},
		"device1": {"_type": "dimmer", "nickname": "Hall", "default_rule": 40, "topic": "hall/light",
			"schedule": {"07:00": 80}},
		"sensor1": {"_type": "dummy", "targets": ["device1"]}
	}`))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	if doc.Metadata.ID != "hall" {
		t.Errorf("Metadata.ID = %q, want hall", doc.Metadata.ID)
	}
	if got := doc.Metadata.ScheduleKeywords["evening"]; got != "19:30" {
		t.Errorf("keyword evening = %q, want 19:30", got)
	}
	if len(doc.Instances) != 2 {
		t.Fatalf("len(Instances) = %d, want 2", len(doc.Instances))
	}

	dev := doc.Instances["device1"]
	if dev.Type() != "dimmer" {
		t.Errorf("Type() = %q, want dimmer", dev.Type())
	}
	if got := dev.Schedule()["07:00"]; got != float64(80) {
		t.Errorf("schedule 07:00 = %v, want 80", got)
	}
}

func TestParseDocument_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"unknown key", `{"lamp1": {}}`},
		{"zero index", `{"device0": {}}`},
		{"padded index", `{"device01": {}}`},
		{"entry not object", `{"device1": 5}`},
		{"bad metadata", `{"metadata": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.data))
			if !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("ParseDocument() error = %v, want ErrInvalidDocument", err)
			}
		})
	}
}

func TestEntryParams(t *testing.T) {
	entry := Entry{
		"_type":        "dimmer",
		"nickname":     "Desk",
		"default_rule": float64(30),
		"targets":      []any{"device1", "device2"},
		"schedule":     map[string]any{"07:00": float64(80)},
		"topic":        "desk/light",
	}
	p, err := entry.Params("device3")
	if err != nil {
		t.Fatalf("Params() error = %v", err)
	}
	if p.Name != "device3" || p.Type != "dimmer" || p.Nickname != "Desk" {
		t.Errorf("Params() = %+v", p)
	}
	if !reflect.DeepEqual(p.Targets, []string{"device1", "device2"}) {
		t.Errorf("Targets = %v", p.Targets)
	}
	if _, ok := p.Extra["schedule"]; ok {
		t.Error("schedule leaked into Extra")
	}
	if p.Extra["topic"] != "desk/light" {
		t.Errorf("Extra[topic] = %v", p.Extra["topic"])
	}

	bad := []Entry{
		{},
		{"_type": "dimmer", "nickname": 3},
		{"_type": "dimmer", "targets": "device1"},
		{"_type": "dimmer", "targets": []any{1}},
	}
	for i, e := range bad {
		if _, err := e.Params("device1"); !errors.Is(err, instance.ErrInvalidParams) {
			t.Errorf("case %d: error = %v, want ErrInvalidParams", i, err)
		}
	}
}

func TestDocumentNames(t *testing.T) {
	doc := NewDocument()
	for _, name := range []string{"device10", "device2", "sensor1", "device1"} {
		doc.Instances[name] = Entry{"_type": "x"}
	}
	if got := doc.Names(instance.KindDevice); !reflect.DeepEqual(got, []string{"device1", "device2", "device10"}) {
		t.Errorf("Names(device) = %v", got)
	}
	if got := doc.Names(instance.KindSensor); !reflect.DeepEqual(got, []string{"sensor1"}) {
		t.Errorf("Names(sensor) = %v", got)
	}
}

func TestDocumentClone(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"device1": {"_type": "relay", "schedule": {"07:00": "enabled"}}}`))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	clone := doc.Clone()
	clone.Instances["device1"].Schedule()["07:00"] = "disabled"
	if got := doc.Instances["device1"].Schedule()["07:00"]; got != "enabled" {
		t.Errorf("original mutated through clone: %v", got)
	}
}

func TestLoadDocumentFile(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"node.json": `{
			// comments and trailing commas are allowed
			"device1": {"_type": "relay", "topic": "a",},
		}`,
		"node.yaml": `
metadata:
  id: hall
device1:
  _type: relay
  topic: a
  schedule:
    "07:00": enabled
`,
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}
			doc, err := LoadDocumentFile(path)
			if err != nil {
				t.Fatalf("LoadDocumentFile() error = %v", err)
			}
			if doc.Instances["device1"].Type() != "relay" {
				t.Errorf("device1 = %v", doc.Instances["device1"])
			}
		})
	}

	if _, err := LoadDocumentFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("LoadDocumentFile(missing) succeeded")
	}
}
