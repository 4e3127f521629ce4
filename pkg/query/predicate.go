package query

import (
	"github.com/bobboyms/docstore/pkg/types"
)

// Predicate é o contrato que a Collection consome do motor de consultas
// externo: recebe um documento e decide se ele participa do resultado.
// O core não compila nem avalia expressões; isso fica fora da biblioteca.
type Predicate func(record types.Record) bool

// All aceita qualquer documento.
func All() Predicate {
	return func(types.Record) bool { return true }
}

// FieldEquals compara um campo de topo com um valor pela forma canônica.
func FieldEquals(field string, value any) Predicate {
	want := types.CanonicalID(value)
	return func(r types.Record) bool {
		v, ok := r[field]
		if !ok {
			return false
		}
		return types.CanonicalID(v) == want
	}
}

// And combina predicados por conjunção.
func And(preds ...Predicate) Predicate {
	return func(r types.Record) bool {
		for _, p := range preds {
			if !p(r) {
				return false
			}
		}
		return true
	}
}

// Or combina predicados por disjunção.
func Or(preds ...Predicate) Predicate {
	return func(r types.Record) bool {
		for _, p := range preds {
			if p(r) {
				return true
			}
		}
		return false
	}
}

// Not inverte um predicado.
func Not(p Predicate) Predicate {
	return func(r types.Record) bool { return !p(r) }
}
