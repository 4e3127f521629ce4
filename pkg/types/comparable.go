package types

import (
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Comparable é a interface que todas as chaves de índice devem implementar
type Comparable interface {
	Compare(other Comparable) int // Retorna -1 se <, 0 se ==, 1 se >
}

// === Implementações de Chave ===

// IntKey: Chave de Inteiro. Datas também viram IntKey: o codec serializa
// instantes como milissegundos Unix.
type IntKey int64

func (k IntKey) Compare(other Comparable) int {
	o := other.(IntKey)
	if k < o {
		return -1
	}
	if k > o {
		return 1
	}
	return 0
}

// VarcharKey: Chave de String
type VarcharKey string

func (k VarcharKey) Compare(other Comparable) int {
	o := other.(VarcharKey)
	if k < o {
		return -1
	}
	if k > o {
		return 1
	}
	return 0
}

// FloatKey: Chave de Float
type FloatKey float64

func (k FloatKey) Compare(other Comparable) int {
	o := other.(FloatKey)
	if k < o {
		return -1
	}
	if k > o {
		return 1
	}
	return 0
}

// BoolKey: Chave Booleana (false < true)
type BoolKey bool

func (k BoolKey) Compare(other Comparable) int {
	o := other.(BoolKey)
	if k == o {
		return 0
	}
	if !k && o {
		return -1
	}
	return 1
}

func (k IntKey) String() string     { return strconv.FormatInt(int64(k), 10) }
func (k VarcharKey) String() string { return string(k) }
func (k FloatKey) String() string   { return strconv.FormatFloat(float64(k), 'f', -1, 64) }
func (k BoolKey) String() string    { return strconv.FormatBool(bool(k)) }

// KeyFromValue converte um valor de documento para a chave Comparable
// correspondente. Valores nulos retornam nil; instantes viram IntKey em
// milissegundos, a mesma forma que o codec serializa.
func KeyFromValue(v any) (Comparable, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case int:
		return IntKey(val), nil
	case int32:
		return IntKey(val), nil
	case int64:
		return IntKey(val), nil
	case string:
		return VarcharKey(val), nil
	case bool:
		return BoolKey(val), nil
	case float32:
		return FloatKey(val), nil
	case float64:
		return FloatKey(val), nil
	case time.Time:
		return IntKey(val.UnixMilli()), nil
	case bson.DateTime:
		return IntKey(int64(val)), nil
	default:
		return VarcharKey(fmt.Sprintf("%v", val)), nil
	}
}
