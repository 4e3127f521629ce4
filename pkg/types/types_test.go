package types

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestCompareKeys(t *testing.T) {
	if IntKey(1).Compare(IntKey(2)) != -1 {
		t.Error("int compare")
	}
	if VarcharKey("b").Compare(VarcharKey("a")) != 1 {
		t.Error("string compare")
	}
	if FloatKey(1.5).Compare(FloatKey(1.5)) != 0 {
		t.Error("float compare")
	}
	if BoolKey(false).Compare(BoolKey(true)) != -1 {
		t.Error("bool compare: false < true")
	}
}

func TestKeyFromValue(t *testing.T) {
	cases := []struct {
		in   any
		want Comparable
	}{
		{int(3), IntKey(3)},
		{int32(3), IntKey(3)},
		{int64(3), IntKey(3)},
		{"x", VarcharKey("x")},
		{true, BoolKey(true)},
		{2.5, FloatKey(2.5)},
	}
	for _, tc := range cases {
		got, err := KeyFromValue(tc.in)
		if err != nil {
			t.Fatalf("KeyFromValue(%v): %v", tc.in, err)
		}
		if got.Compare(tc.want) != 0 {
			t.Errorf("KeyFromValue(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if k, _ := KeyFromValue(nil); k != nil {
		t.Error("nil value should yield nil key")
	}

	// Instantes viram IntKey em milissegundos, como no codec
	dt := bson.NewDateTimeFromTime(time.UnixMilli(5000))
	k, err := KeyFromValue(dt)
	if err != nil {
		t.Fatal(err)
	}
	if k.Compare(IntKey(5000)) != 0 {
		t.Errorf("bson.DateTime conversion: %v", k)
	}
	k, err = KeyFromValue(time.UnixMilli(7000))
	if err != nil {
		t.Fatal(err)
	}
	if k.Compare(IntKey(7000)) != 0 {
		t.Errorf("time.Time conversion: %v", k)
	}
}

func TestCanonicalID(t *testing.T) {
	if CanonicalID(int64(10)) != "10" {
		t.Error("int canonical form")
	}
	if CanonicalID(10.0) != "10" {
		t.Error("integral float must collapse to the int form")
	}
	if CanonicalID(10.5) != "10.5" {
		t.Error("fractional float form")
	}
	if CanonicalID("abc") != "abc" {
		t.Error("string canonical form")
	}
}

func TestCloneRecordIsDeep(t *testing.T) {
	original := Record{
		"id":   int64(1),
		"tags": Record{"a": int64(1)},
	}

	clone, err := CloneRecord(original)
	if err != nil {
		t.Fatal(err)
	}

	tags, ok := AsRecord(clone["tags"])
	if !ok {
		t.Fatalf("nested map lost in clone: %T", clone["tags"])
	}
	tags["a"] = int64(99)

	origTags, _ := AsRecord(original["tags"])
	if origTags["a"] == int64(99) {
		t.Error("clone shares nested state with the original")
	}
}

func TestAsRecord(t *testing.T) {
	if _, ok := AsRecord(Record{"a": 1}); !ok {
		t.Error("Record form")
	}
	if _, ok := AsRecord(map[string]any{"a": 1}); !ok {
		t.Error("raw map form")
	}
	if rec, ok := AsRecord(bson.D{{Key: "a", Value: 1}}); !ok || rec["a"] != 1 {
		t.Error("bson.D form")
	}
	if _, ok := AsRecord("not a doc"); ok {
		t.Error("non-document accepted")
	}
}
