package query

import (
	"github.com/bobboyms/docstore/pkg/types"
)

// CompareFunc define a ordem usada pelas condições. Deve ser o mesmo
// comparador do índice que vai executar o scan; nil usa a ordem natural.
type CompareFunc func(a, b types.Comparable) int

// Operadores de comparação para scans
type ScanOperator int

const (
	OpEqual          ScanOperator = iota // =
	OpNotEqual                           // !=
	OpGreaterThan                        // >
	OpGreaterOrEqual                     // >=
	OpLessThan                           // <
	OpLessOrEqual                        // <=
	OpBetween                            // BETWEEN x AND y
)

// Condição de scan sobre chaves de índice
type ScanCondition struct {
	Operator ScanOperator
	Value    types.Comparable // Para operadores unários (=, !=, >, <, >=, <=)
	ValueEnd types.Comparable // Para BETWEEN (range)
	Cmp      CompareFunc
}

// Construtores convenientes
func Equal(value types.Comparable) *ScanCondition {
	return &ScanCondition{Operator: OpEqual, Value: value}
}

func NotEqual(value types.Comparable) *ScanCondition {
	return &ScanCondition{Operator: OpNotEqual, Value: value}
}

func GreaterThan(value types.Comparable) *ScanCondition {
	return &ScanCondition{Operator: OpGreaterThan, Value: value}
}

func GreaterOrEqual(value types.Comparable) *ScanCondition {
	return &ScanCondition{Operator: OpGreaterOrEqual, Value: value}
}

func LessThan(value types.Comparable) *ScanCondition {
	return &ScanCondition{Operator: OpLessThan, Value: value}
}

func LessOrEqual(value types.Comparable) *ScanCondition {
	return &ScanCondition{Operator: OpLessOrEqual, Value: value}
}

func Between(start, end types.Comparable) *ScanCondition {
	return &ScanCondition{Operator: OpBetween, Value: start, ValueEnd: end}
}

// WithComparator injeta o comparador do índice alvo (composto/descendente).
func (sc *ScanCondition) WithComparator(cmp CompareFunc) *ScanCondition {
	sc.Cmp = cmp
	return sc
}

func (sc *ScanCondition) compare(a, b types.Comparable) int {
	if sc.Cmp != nil {
		return sc.Cmp(a, b)
	}
	return a.Compare(b)
}

// Matches verifica se uma chave satisfaz a condição
func (sc *ScanCondition) Matches(key types.Comparable) bool {
	switch sc.Operator {
	case OpEqual:
		return sc.compare(key, sc.Value) == 0
	case OpNotEqual:
		return sc.compare(key, sc.Value) != 0
	case OpGreaterThan:
		return sc.compare(key, sc.Value) > 0
	case OpGreaterOrEqual:
		return sc.compare(key, sc.Value) >= 0
	case OpLessThan:
		return sc.compare(key, sc.Value) < 0
	case OpLessOrEqual:
		return sc.compare(key, sc.Value) <= 0
	case OpBetween:
		return sc.compare(key, sc.Value) >= 0 && sc.compare(key, sc.ValueEnd) <= 0
	default:
		return false
	}
}

// GetStartKey retorna a chave inicial para otimizar o scan
func (sc *ScanCondition) GetStartKey() types.Comparable {
	switch sc.Operator {
	case OpEqual, OpGreaterThan, OpGreaterOrEqual, OpBetween:
		return sc.Value
	default:
		return nil // Full scan necessário
	}
}

// ShouldSeek indica se podemos usar seek para otimizar
func (sc *ScanCondition) ShouldSeek() bool {
	switch sc.Operator {
	case OpEqual, OpGreaterThan, OpGreaterOrEqual, OpBetween:
		return true
	default:
		return false // Operadores como != e < requerem full scan
	}
}

// ShouldContinue indica se devemos continuar o scan após encontrar uma chave
func (sc *ScanCondition) ShouldContinue(key types.Comparable) bool {
	switch sc.Operator {
	case OpEqual:
		return sc.compare(key, sc.Value) <= 0
	case OpLessThan:
		return sc.compare(key, sc.Value) < 0
	case OpLessOrEqual:
		return sc.compare(key, sc.Value) <= 0
	case OpBetween:
		return sc.compare(key, sc.ValueEnd) <= 0
	default:
		// Para >, >=, != precisamos continuar até o fim
		return true
	}
}
