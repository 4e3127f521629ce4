package btree

import (
	"fmt"
	"sync"

	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/types"
)

// DefaultDegree é o grau mínimo usado quando o chamador não especifica.
const DefaultDegree = 32

// CompareFunc define a ordem das chaves. Para índices compostos e para
// índices descendentes o comparador é injetado na construção; nil usa a
// ordem natural de types.Comparable.
type CompareFunc func(a, b types.Comparable) int

// BPlusTree é um multi-map ordenado chave -> ponteiros. Um ponteiro é um
// identificador opaco dentro da List dona do índice. A ordem entre
// ponteiros de uma mesma chave não é especificada.
type BPlusTree struct {
	T         int
	Root      *Node
	UniqueKey bool // Se true, não permite chaves duplicadas
	cmp       CompareFunc
	size      int          // Total de ponteiros na árvore
	mu        sync.RWMutex // Protege Root e operações estruturais
}

func naturalCompare(a, b types.Comparable) int {
	return a.Compare(b)
}

// New cria uma árvore normal (permite múltiplos ponteiros por chave).
func New(t int, cmp CompareFunc) *BPlusTree {
	if t <= 1 {
		t = DefaultDegree
	}
	if cmp == nil {
		cmp = naturalCompare
	}
	return &BPlusTree{
		T:    t,
		Root: NewNode(t, true),
		cmp:  cmp,
	}
}

// NewUnique cria um índice único (rejeita chaves duplicadas).
func NewUnique(t int, cmp CompareFunc) *BPlusTree {
	tree := New(t, cmp)
	tree.UniqueKey = true
	return tree
}

// Insert adiciona (key, ptr). Em árvores únicas, chave repetida retorna
// errors.UniqueConstraintError sem modificar a árvore.
func (b *BPlusTree) Insert(key types.Comparable, ptr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.UniqueKey {
		if _, found := b.findLocked(key); found {
			return &errors.UniqueConstraintError{Key: fmt.Sprintf("%v", key)}
		}
	}

	root := b.Root
	if root.IsFull() {
		newRoot := NewNode(b.T, false)
		newRoot.Children = append(newRoot.Children, root)
		newRoot.SplitChild(0)
		b.Root = newRoot
		root = newRoot
	}

	b.insertNonFull(root, key, ptr)
	b.size++
	return nil
}

// insertNonFull desce a árvore dividindo nós cheios preventivamente.
func (b *BPlusTree) insertNonFull(curr *Node, key types.Comparable, ptr string) {
	for !curr.Leaf {
		i := curr.childIndex(key, b.cmp)
		child := curr.Children[i]

		if child.IsFull() {
			curr.SplitChild(i)
			if b.cmp(key, curr.Keys[i]) >= 0 {
				i++
			}
		}
		curr = curr.Children[i]
	}
	curr.insertLeaf(key, ptr, b.cmp)
}

// Find retorna todos os ponteiros da chave (cópia) na ordem de inserção.
func (b *BPlusTree) Find(key types.Comparable) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ptrs, found := b.findLocked(key)
	if !found {
		return nil
	}
	out := make([]string, len(ptrs))
	copy(out, ptrs)
	return out
}

// FindFirst retorna um dos ponteiros da chave (o primeiro armazenado).
func (b *BPlusTree) FindFirst(key types.Comparable) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ptrs, found := b.findLocked(key)
	if !found || len(ptrs) == 0 {
		return "", false
	}
	return ptrs[0], true
}

// FindLast retorna o último ponteiro armazenado para a chave.
func (b *BPlusTree) FindLast(key types.Comparable) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ptrs, found := b.findLocked(key)
	if !found || len(ptrs) == 0 {
		return "", false
	}
	return ptrs[len(ptrs)-1], true
}

func (b *BPlusTree) findLocked(key types.Comparable) ([]string, bool) {
	if b.Root == nil {
		return nil, false
	}
	leaf, idx := b.Root.findLeafLowerBound(key, b.cmp)
	if idx < leaf.N && b.cmp(leaf.Keys[idx], key) == 0 {
		return leaf.Values[idx], true
	}
	return nil, false
}

// Remove retira a chave inteira, devolvendo todos os ponteiros removidos.
func (b *BPlusTree) Remove(key types.Comparable) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(key)
}

func (b *BPlusTree) removeLocked(key types.Comparable) []string {
	removed, ok := b.Root.remove(key, b.cmp)
	if !ok {
		return nil
	}
	b.size -= len(removed)
	b.shrinkRoot()
	return removed
}

// RemoveSpecific retira apenas os ponteiros da chave que satisfazem pred.
// Se todos forem removidos, a chave sai da árvore.
func (b *BPlusTree) RemoveSpecific(key types.Comparable, pred func(ptr string) bool) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	leaf, idx := b.Root.findLeafLowerBound(key, b.cmp)
	if idx >= leaf.N || b.cmp(leaf.Keys[idx], key) != 0 {
		return nil
	}

	var kept []string
	var removed []string
	for _, p := range leaf.Values[idx] {
		if pred(p) {
			removed = append(removed, p)
		} else {
			kept = append(kept, p)
		}
	}

	if len(removed) == 0 {
		return nil
	}

	if len(kept) > 0 {
		leaf.Values[idx] = kept
		b.size -= len(removed)
		return removed
	}

	// Lista esvaziou: remove a chave com rebalanceamento
	return b.removeLocked(key)
}

func (b *BPlusTree) shrinkRoot() {
	for b.Root.N == 0 && !b.Root.Leaf {
		b.Root = b.Root.Children[0]
	}
}

// Each percorre todos os pares (chave, ponteiro) em ordem crescente.
// Retornar false interrompe a iteração.
func (b *BPlusTree) Each(fn func(key types.Comparable, ptr string) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	leaf, _ := b.Root.findLeafLowerBound(nil, b.cmp)
	for leaf != nil {
		for i := 0; i < leaf.N; i++ {
			for _, p := range leaf.Values[i] {
				if !fn(leaf.Keys[i], p) {
					return
				}
			}
		}
		leaf = leaf.Next
	}
}

// EachReverse percorre em ordem decrescente. As folhas são encadeadas só
// para frente, então a travessia reversa desce pela direita recursivamente.
func (b *BPlusTree) EachReverse(fn func(key types.Comparable, ptr string) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.eachReverseNode(b.Root, fn)
}

func (b *BPlusTree) eachReverseNode(n *Node, fn func(key types.Comparable, ptr string) bool) bool {
	if n == nil {
		return true
	}
	if n.Leaf {
		for i := n.N - 1; i >= 0; i-- {
			vals := n.Values[i]
			for j := len(vals) - 1; j >= 0; j-- {
				if !fn(n.Keys[i], vals[j]) {
					return false
				}
			}
		}
		return true
	}
	for i := len(n.Children) - 1; i >= 0; i-- {
		if !b.eachReverseNode(n.Children[i], fn) {
			return false
		}
	}
	return true
}

// Range retorna os ponteiros com lo <= chave <= hi, em ordem de chave.
// lo nil começa do mínimo; hi nil vai até o máximo.
func (b *BPlusTree) Range(lo, hi types.Comparable) []string {
	var out []string
	b.RangeEach(lo, hi, func(_ types.Comparable, ptr string) bool {
		out = append(out, ptr)
		return true
	})
	return out
}

// RangeEach é a forma callback de Range, para scans que não querem
// materializar o resultado inteiro.
func (b *BPlusTree) RangeEach(lo, hi types.Comparable, fn func(key types.Comparable, ptr string) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	leaf, idx := b.Root.findLeafLowerBound(lo, b.cmp)
	for leaf != nil {
		for ; idx < leaf.N; idx++ {
			if hi != nil && b.cmp(leaf.Keys[idx], hi) > 0 {
				return
			}
			for _, p := range leaf.Values[idx] {
				if !fn(leaf.Keys[idx], p) {
					return
				}
			}
		}
		leaf = leaf.Next
		idx = 0
	}
}

// Min retorna a menor chave e seus ponteiros.
func (b *BPlusTree) Min() (types.Comparable, []string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	leaf, _ := b.Root.findLeafLowerBound(nil, b.cmp)
	for leaf != nil && leaf.N == 0 {
		leaf = leaf.Next
	}
	if leaf == nil {
		return nil, nil, false
	}
	return leaf.Keys[0], leaf.Values[0], true
}

// Max retorna a maior chave e seus ponteiros.
func (b *BPlusTree) Max() (types.Comparable, []string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	curr := b.Root
	for !curr.Leaf {
		curr = curr.Children[len(curr.Children)-1]
	}
	if curr.N == 0 {
		return nil, nil, false
	}
	return curr.Keys[curr.N-1], curr.Values[curr.N-1], true
}

// Size retorna o total de ponteiros armazenados.
func (b *BPlusTree) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Reset esvazia a árvore.
func (b *BPlusTree) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Root = NewNode(b.T, true)
	b.size = 0
}
