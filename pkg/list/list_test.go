package list

import (
	"testing"

	docerr "github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/types"
)

func TestListCRUD(t *testing.T) {
	l := NewList("users", nil, false)

	rec := types.Record{"id": int64(1), "name": "ana"}
	if _, err := l.Set("1", rec); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := l.Get("1")
	if !ok || got["name"] != "ana" {
		t.Fatalf("Get: %v %v", got, ok)
	}

	if _, err := l.Update("1", types.Record{"id": int64(1), "name": "bia"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ = l.Get("1")
	if got["name"] != "bia" {
		t.Errorf("update not visible: %v", got)
	}

	removed, err := l.Delete("1")
	if err != nil || removed["name"] != "bia" {
		t.Fatalf("Delete: %v %v", removed, err)
	}
	if _, ok := l.Get("1"); ok {
		t.Error("record still visible after delete")
	}

	if _, err := l.Update("1", rec); err == nil {
		t.Error("update of missing record should fail")
	} else if _, ok := err.(*docerr.RecordNotFoundError); !ok {
		t.Errorf("wrong error type: %T", err)
	}
}

func TestListInsertionOrder(t *testing.T) {
	l := NewList("users", nil, false)
	for _, id := range []string{"c", "a", "b"} {
		l.Set(id, types.Record{"id": id})
	}

	var forward []string
	l.Forward(func(id string, _ types.Record) bool {
		forward = append(forward, id)
		return true
	})
	if forward[0] != "c" || forward[1] != "a" || forward[2] != "b" {
		t.Errorf("forward order should be insertion order: %v", forward)
	}

	var backward []string
	l.Backward(func(id string, _ types.Record) bool {
		backward = append(backward, id)
		return true
	})
	if backward[0] != "b" || backward[2] != "c" {
		t.Errorf("backward order: %v", backward)
	}
}

func TestListCounters(t *testing.T) {
	l := NewList("users", nil, false)
	if l.NextCounter() != 1 || l.NextCounter() != 2 {
		t.Error("counter must be monotonic")
	}
	if l.Counter() != 2 {
		t.Errorf("Counter: %d", l.Counter())
	}
}

func TestListPersistLoad(t *testing.T) {
	l := NewList("users", nil, false)
	l.NextCounter()
	l.Set("1", types.Record{"id": int64(1), "name": "ana"})
	l.Set("2", types.Record{"id": int64(2), "name": "bia"})

	blob, err := l.Persist()
	if err != nil {
		t.Fatal(err)
	}
	if blob.Counter != 1 || blob.Count != 2 || blob.Total != 2 {
		t.Errorf("blob counters: %+v", blob)
	}

	restored := NewList("users", nil, false)
	if err := restored.Load(blob); err != nil {
		t.Fatal(err)
	}
	if restored.Len() != 2 || restored.Counter() != 1 {
		t.Errorf("restored state: len=%d counter=%d", restored.Len(), restored.Counter())
	}
	got, ok := restored.Get("2")
	if !ok || got["name"] != "bia" {
		t.Errorf("restored record: %v", got)
	}

	var order []string
	restored.Forward(func(id string, _ types.Record) bool {
		order = append(order, id)
		return true
	})
	if order[0] != "1" || order[1] != "2" {
		t.Errorf("restored order: %v", order)
	}
}

func TestAuditEnvelopeHistory(t *testing.T) {
	l := NewList("users", nil, true)

	l.Set("1", types.Record{"id": int64(1), "name": "ana"})
	l.Update("1", types.Record{"id": int64(1), "name": "bia"})
	l.Update("1", types.Record{"id": int64(1), "name": "carla"})

	blob, _ := l.Persist()
	env, ok := envelopeFromStored(blob.Hash["1"])
	if !ok {
		t.Fatal("expected audit envelope in hash")
	}
	if env.Version != 3 || env.NextVersion != 4 {
		t.Errorf("versions: %d/%d", env.Version, env.NextVersion)
	}
	if len(env.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(env.History))
	}
	if env.History[0].Version != 1 || env.History[1].Version != 2 {
		t.Errorf("history versions: %+v", env.History)
	}
	if env.Data["name"] != "carla" {
		t.Errorf("payload: %v", env.Data)
	}
}

func TestAuditTombstone(t *testing.T) {
	l := NewList("users", nil, true)
	l.Set("1", types.Record{"id": int64(1)})

	if _, err := l.Delete("1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := l.Get("1"); ok {
		t.Error("tombstoned record must be invisible")
	}
	if l.Len() != 0 {
		t.Errorf("live count after tombstone: %d", l.Len())
	}

	// O envelope continua no hash para o histórico
	blob, _ := l.Persist()
	env, ok := envelopeFromStored(blob.Hash["1"])
	if !ok || env.Deleted == 0 {
		t.Error("tombstone envelope missing or unmarked")
	}
}

type rejectAll struct{}

func (rejectAll) Validate(types.Record) error {
	return &docerr.ValidationError{Collection: "users", Reason: "nope"}
}

func TestValidatorRejects(t *testing.T) {
	l := NewList("users", rejectAll{}, false)
	if _, err := l.Set("1", types.Record{"id": 1}); err == nil {
		t.Fatal("expected validation error")
	} else if _, ok := err.(*docerr.ValidationError); !ok {
		t.Fatalf("wrong error type: %T", err)
	}
	if l.Len() != 0 {
		t.Error("rejected write must not change state")
	}
}

func TestSchemaValidator(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"name"},
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
	}
	v, err := NewSchemaValidator("users", schema)
	if err != nil {
		t.Fatalf("NewSchemaValidator: %v", err)
	}

	if err := v.Validate(types.Record{"name": "ana"}); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}
	if err := v.Validate(types.Record{"age": 3}); err == nil {
		t.Error("missing required field accepted")
	}
}
