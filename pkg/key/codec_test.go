package key

import (
	"testing"
	"time"
)

func TestSerializeRoundTrip(t *testing.T) {
	cases := [][]any{
		{"a", "b", "c"},
		{"hello", int64(42), true},
		{"unicode: áçãো", "x"},
		{nil, "middle", nil},
		{"with\x00nul", "and\\backslash"},
	}

	for _, values := range cases {
		encoded := Serialize(values, DefaultSeparator)
		decoded := Deserialize(encoded, DefaultSeparator)
		if len(decoded) != len(values) {
			t.Fatalf("round-trip length mismatch: %v -> %v", values, decoded)
		}
		for i, v := range values {
			want := CoerceString(v)
			if v == nil {
				if decoded[i] != nil {
					t.Errorf("expected nil at %d, got %v", i, decoded[i])
				}
				continue
			}
			got, ok := decoded[i].(string)
			if !ok || got != want {
				t.Errorf("value %d: want %q, got %v", i, want, decoded[i])
			}
		}
	}
}

func TestSerializeEmptyTuple(t *testing.T) {
	if got := Serialize(nil, DefaultSeparator); got != "" {
		t.Errorf("empty tuple should serialize to empty string, got %q", got)
	}
	if got := Deserialize("", DefaultSeparator); len(got) != 0 {
		t.Errorf("empty string should deserialize to empty tuple, got %v", got)
	}
}

func TestSerializeCoercion(t *testing.T) {
	date := time.UnixMilli(1700000000000).UTC()
	encoded := Serialize([]any{int64(95000), 3.5, true, date}, DefaultSeparator)
	decoded := Deserialize(encoded, DefaultSeparator)

	want := []string{"95000", "3.5", "true", "1700000000000"}
	for i, w := range want {
		if decoded[i].(string) != w {
			t.Errorf("token %d: want %q, got %v", i, w, decoded[i])
		}
	}
}

func TestUndefinedFoldsToNull(t *testing.T) {
	encoded := Serialize([]any{"a", Undefined, "c"}, DefaultSeparator)
	decoded := Deserialize(encoded, DefaultSeparator)
	if decoded[1] != nil {
		t.Errorf("undefined should decode as nil, got %v", decoded[1])
	}
}

func TestCreatePartialKey(t *testing.T) {
	full := CreatePartialKey([]any{"Engineering", int64(95000), int64(3)}, DefaultSeparator)
	if full != "Engineering\x0095000\x003" {
		t.Errorf("unexpected full key: %q", full)
	}

	partial := CreatePartialKey([]any{"Engineering", Undefined, int64(3)}, DefaultSeparator)
	if partial != "Engineering" {
		t.Errorf("partial key should stop at undefined, got %q", partial)
	}

	withNull := CreatePartialKey([]any{"Engineering", nil, Undefined}, DefaultSeparator)
	if withNull != "Engineering\x00" {
		t.Errorf("nulls are retained in partial keys, got %q", withNull)
	}
}

func TestNormalizeFields(t *testing.T) {
	fields := NormalizeFields([]string{"a", "b:desc", "c.d.e"})
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}
	if fields[0].Key != "a" || fields[0].Order != OrderAsc {
		t.Errorf("field 0: %+v", fields[0])
	}
	if fields[1].Key != "b" || fields[1].Order != OrderDesc {
		t.Errorf("field 1: %+v", fields[1])
	}
	if fields[2].Key != "c.d.e" {
		t.Errorf("field 2: %+v", fields[2])
	}

	single := NormalizeFields(Field{Key: "x", Order: "desc"})
	if single[0].Order != OrderDesc {
		t.Errorf("single field order: %+v", single[0])
	}
}

func TestExtractValues(t *testing.T) {
	record := map[string]any{
		"name": "ana",
		"address": map[string]any{
			"city": map[string]any{"name": "Recife"},
		},
		"age": nil,
	}

	fields := NormalizeFields([]string{"name", "address.city.name", "age", "missing.path"})
	values := ExtractValues(record, fields)

	if values[0] != "ana" {
		t.Errorf("name: %v", values[0])
	}
	if values[1] != "Recife" {
		t.Errorf("nested path: %v", values[1])
	}
	if values[2] != nil {
		t.Errorf("null value: %v", values[2])
	}
	if !IsUndefined(values[3]) {
		t.Errorf("missing path should be undefined, got %v", values[3])
	}
}

func TestIndexName(t *testing.T) {
	fields := NormalizeFields([]string{"department", "salary:desc", "level"})
	if name := IndexName(fields); name != "department,salary:desc,level" {
		t.Errorf("unexpected index name: %q", name)
	}
}

func TestComparatorMixedOrders(t *testing.T) {
	fields := NormalizeFields([]string{"department", "salary:desc", "level"})
	cmp := CreateComparator(fields, DefaultSeparator)

	k1 := Serialize([]any{"Engineering", int64(95000), int64(3)}, DefaultSeparator)
	k2 := Serialize([]any{"Engineering", int64(85000), int64(2)}, DefaultSeparator)
	k3 := Serialize([]any{"Marketing", int64(75000), int64(3)}, DefaultSeparator)
	k4 := Serialize([]any{"Engineering", int64(95000), int64(3)}, DefaultSeparator)

	// salary desc: 95000 vem antes de 85000 dentro de Engineering
	if cmp(k1, k2) >= 0 {
		t.Errorf("expected %q < %q under desc salary", k1, k2)
	}
	// department asc: Engineering antes de Marketing
	if cmp(k2, k3) >= 0 {
		t.Errorf("expected Engineering < Marketing")
	}
	if cmp(k1, k4) != 0 {
		t.Errorf("equal tuples should compare equal")
	}
}

func TestComparatorNumericVsString(t *testing.T) {
	fields := NormalizeFields([]string{"v"})
	cmp := CreateComparator(fields, DefaultSeparator)

	// Comparação numérica quando ambos os tokens são números
	if cmp("9", "10") >= 0 {
		t.Errorf("numeric compare: 9 should sort before 10")
	}
	// String quando algum não é número
	if cmp("abc", "abd") >= 0 {
		t.Errorf("string compare failed")
	}
	// Null ordena baixo em asc
	if cmp("", "abc") >= 0 {
		t.Errorf("null should sort low under asc")
	}
}

func TestComparatorNullDesc(t *testing.T) {
	fields := []Field{{Key: "v", Order: OrderDesc}}
	cmp := CreateComparator(fields, DefaultSeparator)

	// Null ordena alto em desc
	if cmp("", "abc") <= 0 {
		t.Errorf("null should sort high under desc")
	}
	if cmp("10", "9") >= 0 {
		t.Errorf("desc negates numeric order")
	}
}

func TestEscapingSeparatorInsideValue(t *testing.T) {
	values := []any{"a\x00b", "c"}
	encoded := Serialize(values, DefaultSeparator)
	decoded := Deserialize(encoded, DefaultSeparator)
	if len(decoded) != 2 {
		t.Fatalf("separator inside value must be escaped, got %v", decoded)
	}
	if decoded[0].(string) != "a\x00b" || decoded[1].(string) != "c" {
		t.Errorf("unexpected decode: %v", decoded)
	}
}
