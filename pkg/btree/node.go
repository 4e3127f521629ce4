package btree

import (
	"sort"

	"github.com/bobboyms/docstore/pkg/types"
)

type Node struct {
	T        int                // Grau mínimo
	Keys     []types.Comparable // Chaves
	Values   [][]string         // Ponteiros por chave (apenas em folhas; multi-map)
	Children []*Node            // Filhos (apenas em nós internos)
	Leaf     bool               // Se é folha
	N        int                // Número de chaves atual
	Next     *Node              // Ponteiro para a próxima folha (lista ligada)
}

func NewNode(t int, leaf bool) *Node {
	return &Node{
		T:        t,
		Leaf:     leaf,
		Keys:     make([]types.Comparable, 0, 2*t-1),
		Values:   make([][]string, 0, 2*t-1),
		Children: make([]*Node, 0, 2*t),
	}
}

func (n *Node) IsFull() bool {
	return n.N == 2*n.T-1
}

// lowerBound retorna o primeiro índice i com Keys[i] >= key segundo cmp.
func (n *Node) lowerBound(key types.Comparable, cmp CompareFunc) int {
	return sort.Search(n.N, func(i int) bool {
		return cmp(n.Keys[i], key) >= 0
	})
}

// childIndex retorna o índice do filho para descer buscando key.
// Em B+ Tree, se key >= Keys[i] descemos para Children[i+1] porque o
// separador é a menor chave da subárvore direita.
func (n *Node) childIndex(key types.Comparable, cmp CompareFunc) int {
	i := 0
	for i < n.N && cmp(key, n.Keys[i]) >= 0 {
		i++
	}
	return i
}

func (n *Node) findLeafLowerBound(key types.Comparable, cmp CompareFunc) (*Node, int) {
	if n.Leaf {
		if key == nil {
			return n, 0
		}
		return n, n.lowerBound(key, cmp)
	}
	if key == nil {
		return n.Children[0].findLeafLowerBound(key, cmp)
	}
	return n.Children[n.childIndex(key, cmp)].findLeafLowerBound(key, cmp)
}

// insertLeaf insere o ponteiro na folha, que é garantidamente não-cheia
// (split preventivo na descida). Chaves repetidas acumulam ponteiros.
func (n *Node) insertLeaf(key types.Comparable, ptr string, cmp CompareFunc) {
	idx := n.lowerBound(key, cmp)

	if idx < n.N && cmp(n.Keys[idx], key) == 0 {
		n.Values[idx] = append(n.Values[idx], ptr)
		return
	}

	// Abre espaço para a nova chave
	n.Keys = append(n.Keys, nil)
	n.Values = append(n.Values, nil)
	copy(n.Keys[idx+1:], n.Keys[idx:])
	copy(n.Values[idx+1:], n.Values[idx:])

	n.Keys[idx] = key
	n.Values[idx] = []string{ptr}
	n.N++
}

func (n *Node) SplitChild(i int) {
	t := n.T
	y := n.Children[i]
	z := NewNode(t, y.Leaf)

	// Se for folha, mantém a chave do meio na direita (propriedade B+ Tree)
	if y.Leaf {
		mid := t - 1
		z.N = y.N - mid
		z.Keys = append(z.Keys, y.Keys[mid:]...)
		z.Values = append(z.Values, y.Values[mid:]...)

		y.Keys = y.Keys[:mid]
		y.Values = y.Values[:mid]
		y.N = mid

		z.Next = y.Next
		y.Next = z

		// A primeira chave do novo nó z sobe para o pai
		n.Keys = append(n.Keys, nil)
		copy(n.Keys[i+1:], n.Keys[i:])
		n.Keys[i] = z.Keys[0]

		n.Children = append(n.Children, nil)
		copy(n.Children[i+2:], n.Children[i+1:])
		n.Children[i+1] = z
		n.N++
		return
	}

	// Nó interno: chave do meio sobe e sai do filho
	mid := t - 1
	z.N = t - 1
	z.Keys = append(z.Keys, y.Keys[mid+1:]...)
	z.Children = append(z.Children, y.Children[mid+1:]...)

	upKey := y.Keys[mid]

	y.Keys = y.Keys[:mid]
	y.Children = y.Children[:mid+1]
	y.N = mid

	n.Keys = append(n.Keys, nil)
	copy(n.Keys[i+1:], n.Keys[i:])
	n.Keys[i] = upKey

	n.Children = append(n.Children, nil)
	copy(n.Children[i+2:], n.Children[i+1:])
	n.Children[i+1] = z
	n.N++
}

func (n *Node) remove(key types.Comparable, cmp CompareFunc) ([]string, bool) {
	idx := n.lowerBound(key, cmp)

	if n.Leaf {
		if idx < n.N && cmp(n.Keys[idx], key) == 0 {
			removed := n.Values[idx]
			n.Keys = append(n.Keys[:idx], n.Keys[idx+1:]...)
			n.Values = append(n.Values[:idx], n.Values[idx+1:]...)
			n.N--
			return removed, true
		}
		return nil, false
	}

	// Se a chave estiver no nó interno (como separador), o valor real está
	// na folha à direita. Na B+ Tree, apenas descemos.
	childIdx := idx
	if idx < n.N && cmp(n.Keys[idx], key) == 0 {
		childIdx = idx + 1
	}

	child := n.Children[childIdx]
	if child.N < n.T {
		n.fill(childIdx)
	}

	// Após rebalancear, a chave pode ter mudado de filho
	return n.removeRecursive(key, cmp)
}

func (n *Node) removeRecursive(key types.Comparable, cmp CompareFunc) ([]string, bool) {
	idx := n.lowerBound(key, cmp)

	childIdx := idx
	if idx < n.N && cmp(n.Keys[idx], key) == 0 {
		childIdx = idx + 1
	}

	// Se o filho foi fundido, childIdx pode estar fora agora
	if childIdx > n.N {
		childIdx = n.N
	}

	removed, ok := n.Children[childIdx].remove(key, cmp)

	// Sincroniza separadores se necessário (após deleção na folha)
	if ok {
		n.fixSeparators()
	}

	return removed, ok
}

func (n *Node) fixSeparators() {
	if n.Leaf {
		return
	}
	for i := 0; i < n.N; i++ {
		// No B+ Tree, o separador i é a menor chave da subárvore Children[i+1]
		curr := n.Children[i+1]
		for !curr.Leaf {
			curr = curr.Children[0]
		}
		if curr.N > 0 {
			n.Keys[i] = curr.Keys[0]
		}
	}
}

func (n *Node) fill(i int) {
	if i != 0 && n.Children[i-1].N >= n.T {
		n.borrowFromPrev(i)
	} else if i != n.N && n.Children[i+1].N >= n.T {
		n.borrowFromNext(i)
	} else {
		if i != n.N {
			n.merge(i)
		} else {
			n.merge(i - 1)
		}
	}
}

func (n *Node) borrowFromPrev(i int) {
	child := n.Children[i]
	sibling := n.Children[i-1]

	if child.Leaf {
		child.Keys = append([]types.Comparable{nil}, child.Keys...)
		child.Values = append([][]string{nil}, child.Values...)
		child.Keys[0] = sibling.Keys[sibling.N-1]
		child.Values[0] = sibling.Values[sibling.N-1]
		child.N++

		sibling.Keys = sibling.Keys[:sibling.N-1]
		sibling.Values = sibling.Values[:sibling.N-1]
		sibling.N--

		n.Keys[i-1] = child.Keys[0]
	} else {
		child.Keys = append([]types.Comparable{nil}, child.Keys...)
		child.Children = append([]*Node{nil}, child.Children...)
		child.Keys[0] = n.Keys[i-1]
		child.Children[0] = sibling.Children[sibling.N]
		child.N++

		n.Keys[i-1] = sibling.Keys[sibling.N-1]
		sibling.Keys = sibling.Keys[:sibling.N-1]
		sibling.Children = sibling.Children[:sibling.N]
		sibling.N--
	}
}

func (n *Node) borrowFromNext(i int) {
	child := n.Children[i]
	sibling := n.Children[i+1]

	if child.Leaf {
		child.Keys = append(child.Keys, sibling.Keys[0])
		child.Values = append(child.Values, sibling.Values[0])
		child.N++

		sibling.Keys = append([]types.Comparable{}, sibling.Keys[1:]...)
		sibling.Values = append([][]string{}, sibling.Values[1:]...)
		sibling.N--

		n.Keys[i] = sibling.Keys[0]
	} else {
		child.Keys = append(child.Keys, n.Keys[i])
		child.Children = append(child.Children, sibling.Children[0])
		child.N++

		n.Keys[i] = sibling.Keys[0]
		sibling.Keys = append([]types.Comparable{}, sibling.Keys[1:]...)
		sibling.Children = append([]*Node{}, sibling.Children[1:]...)
		sibling.N--
	}
}

func (n *Node) merge(i int) {
	child := n.Children[i]
	sibling := n.Children[i+1]

	if child.Leaf {
		child.Keys = append(child.Keys, sibling.Keys...)
		child.Values = append(child.Values, sibling.Values...)
		child.Next = sibling.Next
		child.N = len(child.Keys)
	} else {
		child.Keys = append(child.Keys, n.Keys[i])
		child.Keys = append(child.Keys, sibling.Keys...)
		child.Children = append(child.Children, sibling.Children...)
		child.N = len(child.Keys)
	}

	n.Keys = append(n.Keys[:i], n.Keys[i+1:]...)
	n.Children = append(n.Children[:i+1], n.Children[i+2:]...)
	n.N--
}
