package btree

import (
	"fmt"

	"github.com/bobboyms/docstore/pkg/types"
)

// PortableEntry é a forma serializável de um par (chave, ponteiros).
// Snapshots de coleção carregam a árvore como uma lista ordenada dessas
// entradas e a reconstroem por inserção em massa.
type PortableEntry struct {
	Key      any      `json:"key" bson:"key"`
	Pointers []string `json:"pointers" bson:"pointers"`
}

// Portable tira um dump ordenado da árvore.
func (b *BPlusTree) Portable() []PortableEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var entries []PortableEntry
	leaf, _ := b.Root.findLeafLowerBound(nil, b.cmp)
	for leaf != nil {
		for i := 0; i < leaf.N; i++ {
			ptrs := make([]string, len(leaf.Values[i]))
			copy(ptrs, leaf.Values[i])
			entries = append(entries, PortableEntry{
				Key:      portableKey(leaf.Keys[i]),
				Pointers: ptrs,
			})
		}
		leaf = leaf.Next
	}
	return entries
}

// FromPortable reconstrói uma árvore a partir de um dump.
func FromPortable(t int, cmp CompareFunc, unique bool, entries []PortableEntry) (*BPlusTree, error) {
	var tree *BPlusTree
	if unique {
		tree = NewUnique(t, cmp)
	} else {
		tree = New(t, cmp)
	}

	for _, e := range entries {
		k, err := KeyFromPortable(e.Key)
		if err != nil {
			return nil, err
		}
		for _, p := range e.Pointers {
			if err := tree.Insert(k, p); err != nil {
				return nil, err
			}
		}
	}
	return tree, nil
}

func portableKey(k types.Comparable) any {
	switch v := k.(type) {
	case types.IntKey:
		return int64(v)
	case types.FloatKey:
		return float64(v)
	case types.VarcharKey:
		return string(v)
	case types.BoolKey:
		return bool(v)
	default:
		return fmt.Sprintf("%v", k)
	}
}

// KeyFromPortable converte o valor cru de um dump de volta para a chave.
// Dumps passam por JSON, então inteiros podem chegar como float64; floats
// integrais voltam a ser IntKey antes de delegar para types.KeyFromValue.
func KeyFromPortable(v any) (types.Comparable, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("nil key in portable entry")
	case float64:
		if val == float64(int64(val)) {
			return types.IntKey(int64(val)), nil
		}
	case float32:
		return KeyFromPortable(float64(val))
	}
	return types.KeyFromValue(v)
}
