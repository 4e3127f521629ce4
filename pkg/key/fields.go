package key

import (
	"strings"

	"github.com/bobboyms/docstore/pkg/types"
)

// Ordem de um campo dentro de um índice composto.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Field descreve um campo de índice: path pontilhado + ordem.
type Field struct {
	Key   string
	Order string
}

// NormalizeFields converte as formas curtas aceitas em definições de índice
// para a forma canônica []Field. Aceita:
//   - "campo" e "a.b.c" (paths pontilhados)
//   - Field{Key: "x", Order: "desc"}
//   - []string{"a", "b"}
//   - []Field{...}
//   - []any misturando strings e Fields
//
// A ordem default é asc.
func NormalizeFields(def any) []Field {
	switch d := def.(type) {
	case nil:
		return nil
	case string:
		return []Field{normalizeOne(d, "")}
	case Field:
		return []Field{normalizeField(d)}
	case []Field:
		out := make([]Field, 0, len(d))
		for _, f := range d {
			out = append(out, normalizeField(f))
		}
		return out
	case []string:
		out := make([]Field, 0, len(d))
		for _, s := range d {
			out = append(out, normalizeOne(s, ""))
		}
		return out
	case []any:
		out := make([]Field, 0, len(d))
		for _, item := range d {
			switch it := item.(type) {
			case string:
				out = append(out, normalizeOne(it, ""))
			case Field:
				out = append(out, normalizeField(it))
			}
		}
		return out
	default:
		return nil
	}
}

func normalizeField(f Field) Field {
	return normalizeOne(f.Key, f.Order)
}

func normalizeOne(k, order string) Field {
	// Forma "campo:desc" também é aceita em strings
	if idx := strings.LastIndex(k, ":"); idx >= 0 {
		suffix := k[idx+1:]
		if suffix == OrderAsc || suffix == OrderDesc {
			if order == "" {
				order = suffix
			}
			k = k[:idx]
		}
	}
	if order != OrderDesc {
		order = OrderAsc
	}
	return Field{Key: k, Order: order}
}

// ExtractValues extrai os valores dos campos de um documento usando lookup
// por path pontilhado. Paths ausentes produzem Undefined; valores nulos
// produzem nil.
func ExtractValues(record types.Record, fields []Field) []any {
	values := make([]any, len(fields))
	for i, f := range fields {
		values[i] = LookupPath(record, f.Key)
	}
	return values
}

// LookupPath resolve um path pontilhado ("a.b.c") dentro de um documento.
// Retorna Undefined quando qualquer segmento do caminho está ausente.
func LookupPath(record types.Record, path string) any {
	if record == nil {
		return Undefined
	}
	segments := strings.Split(path, ".")
	var current any = map[string]any(record)

	for _, seg := range segments {
		m, ok := asMap(current)
		if !ok {
			return Undefined
		}
		v, exists := m[seg]
		if !exists {
			return Undefined
		}
		current = v
	}
	return current
}

func asMap(v any) (map[string]any, bool) {
	rec, ok := types.AsRecord(v)
	if !ok {
		return nil, false
	}
	return rec, true
}

// IndexName gera o nome canônico de um índice a partir de seus campos:
// cada campo vira "campo" ou "campo:desc", unidos por vírgula.
func IndexName(fields []Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		if f.Order == OrderDesc {
			parts[i] = f.Key + ":" + OrderDesc
		} else {
			parts[i] = f.Key
		}
	}
	return strings.Join(parts, ",")
}
