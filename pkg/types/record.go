package types

import (
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Record é um documento armazenado em uma coleção. Usamos bson.M como
// representação em memória: interopera com JSON estendido para persistência
// e com paths pontilhados para extração de chaves.
type Record = bson.M

// CloneRecord faz uma cópia profunda de um documento via round-trip BSON.
func CloneRecord(r Record) (Record, error) {
	if r == nil {
		return nil, nil
	}
	data, err := bson.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("clone marshal: %w", err)
	}
	var out Record
	if err := bson.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("clone unmarshal: %w", err)
	}
	return out, nil
}

// AsRecord normaliza as formas de documento que aparecem depois de
// round-trips BSON/JSON (bson.M, map cru ou bson.D) para Record.
func AsRecord(v any) (Record, bool) {
	switch doc := v.(type) {
	case Record:
		return doc, true
	case map[string]any:
		return Record(doc), true
	case bson.D:
		out := make(Record, len(doc))
		for _, e := range doc {
			out[e.Key] = e.Value
		}
		return out, true
	default:
		return nil, false
	}
}

// CanonicalID converte um valor de identidade para sua forma canônica de
// string. Inteiros e floats inteiros produzem a mesma forma decimal, então
// o id 10 e o id 10.0 apontam para o mesmo registro.
func CanonicalID(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return canonicalFloat(float64(val))
	case float64:
		return canonicalFloat(val)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return strconv.FormatInt(val.UnixMilli(), 10)
	case bson.DateTime:
		return strconv.FormatInt(int64(val), 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func canonicalFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
