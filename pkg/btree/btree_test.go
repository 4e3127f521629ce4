package btree

import (
	"testing"

	"github.com/bobboyms/docstore/pkg/types"
)

func collect(tree *BPlusTree) []string {
	var out []string
	tree.Each(func(k types.Comparable, ptr string) bool {
		out = append(out, ptr)
		return true
	})
	return out
}

func TestInsertAndFind(t *testing.T) {
	tree := New(3, nil)

	for i := 0; i < 100; i++ {
		if err := tree.Insert(types.IntKey(i%10), string(rune('a'+i%26))); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	if tree.Size() != 100 {
		t.Errorf("expected size 100, got %d", tree.Size())
	}
	if got := len(tree.Find(types.IntKey(3))); got != 10 {
		t.Errorf("expected 10 pointers under key 3, got %d", got)
	}
	if got := tree.Find(types.IntKey(42)); got != nil {
		t.Errorf("expected nil for missing key, got %v", got)
	}
}

func TestMultiMapKeepsAllPointers(t *testing.T) {
	tree := New(3, nil)
	tree.Insert(types.VarcharKey("k"), "p1")
	tree.Insert(types.VarcharKey("k"), "p2")
	tree.Insert(types.VarcharKey("k"), "p3")

	ptrs := tree.Find(types.VarcharKey("k"))
	if len(ptrs) != 3 {
		t.Fatalf("expected 3 pointers, got %v", ptrs)
	}

	first, _ := tree.FindFirst(types.VarcharKey("k"))
	last, _ := tree.FindLast(types.VarcharKey("k"))
	if first == "" || last == "" || first == last {
		t.Errorf("first/last pointers: %q %q", first, last)
	}
}

func TestUniqueRejectsDuplicates(t *testing.T) {
	tree := NewUnique(3, nil)
	if err := tree.Insert(types.VarcharKey("k"), "p1"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := tree.Insert(types.VarcharKey("k"), "p2"); err == nil {
		t.Fatal("expected duplicate key error")
	}
	if tree.Size() != 1 {
		t.Errorf("failed insert must not change the tree, size=%d", tree.Size())
	}
}

func TestOrderedIteration(t *testing.T) {
	tree := New(3, nil)
	// Inserção fora de ordem
	for _, i := range []int{5, 1, 9, 3, 7, 2, 8, 4, 6, 0} {
		tree.Insert(types.IntKey(i), string(rune('a'+i)))
	}

	var keys []int
	tree.Each(func(k types.Comparable, _ string) bool {
		keys = append(keys, int(k.(types.IntKey)))
		return true
	})
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("iteration out of order: %v", keys)
		}
	}

	var reversed []int
	tree.EachReverse(func(k types.Comparable, _ string) bool {
		reversed = append(reversed, int(k.(types.IntKey)))
		return true
	})
	for i := 1; i < len(reversed); i++ {
		if reversed[i-1] < reversed[i] {
			t.Fatalf("reverse iteration out of order: %v", reversed)
		}
	}
}

func TestInjectedComparatorDescending(t *testing.T) {
	desc := func(a, b types.Comparable) int { return -a.Compare(b) }
	tree := New(3, desc)

	for i := 0; i < 20; i++ {
		tree.Insert(types.IntKey(i), "p")
	}

	var keys []int
	tree.Each(func(k types.Comparable, _ string) bool {
		keys = append(keys, int(k.(types.IntKey)))
		return true
	})
	for i := 1; i < len(keys); i++ {
		if keys[i-1] < keys[i] {
			t.Fatalf("descending comparator not honored: %v", keys)
		}
	}
}

func TestRemove(t *testing.T) {
	tree := New(3, nil)
	for i := 0; i < 50; i++ {
		tree.Insert(types.IntKey(i), "p")
	}

	removed := tree.Remove(types.IntKey(25))
	if len(removed) != 1 {
		t.Fatalf("expected 1 removed pointer, got %v", removed)
	}
	if tree.Find(types.IntKey(25)) != nil {
		t.Error("key still present after remove")
	}
	if tree.Size() != 49 {
		t.Errorf("size after remove: %d", tree.Size())
	}

	// Remove de chave inexistente é no-op
	if got := tree.Remove(types.IntKey(999)); got != nil {
		t.Errorf("removing missing key returned %v", got)
	}

	// Esvazia tudo para exercitar merge/borrow
	for i := 0; i < 50; i++ {
		tree.Remove(types.IntKey(i))
	}
	if tree.Size() != 0 {
		t.Errorf("tree should be empty, size=%d", tree.Size())
	}
}

func TestRemoveSpecific(t *testing.T) {
	tree := New(3, nil)
	tree.Insert(types.VarcharKey("k"), "p1")
	tree.Insert(types.VarcharKey("k"), "p2")
	tree.Insert(types.VarcharKey("k"), "p3")

	removed := tree.RemoveSpecific(types.VarcharKey("k"), func(p string) bool { return p == "p2" })
	if len(removed) != 1 || removed[0] != "p2" {
		t.Fatalf("expected [p2], got %v", removed)
	}

	left := tree.Find(types.VarcharKey("k"))
	if len(left) != 2 {
		t.Fatalf("expected 2 pointers left, got %v", left)
	}

	// Removendo o resto esvazia a chave
	tree.RemoveSpecific(types.VarcharKey("k"), func(string) bool { return true })
	if tree.Find(types.VarcharKey("k")) != nil {
		t.Error("key should be gone after removing every pointer")
	}
}

func TestRange(t *testing.T) {
	tree := New(3, nil)
	for i := 0; i < 10; i++ {
		tree.Insert(types.IntKey(i), string(rune('a'+i)))
	}

	got := tree.Range(types.IntKey(3), types.IntKey(6))
	if len(got) != 4 {
		t.Fatalf("range [3,6]: expected 4 results, got %v", got)
	}

	all := tree.Range(nil, nil)
	if len(all) != 10 {
		t.Errorf("open range: expected 10, got %d", len(all))
	}
}

func TestMinMax(t *testing.T) {
	tree := New(3, nil)

	if _, _, ok := tree.Min(); ok {
		t.Error("empty tree has no min")
	}

	for _, i := range []int{4, 2, 9, 7} {
		tree.Insert(types.IntKey(i), "p")
	}

	minK, _, _ := tree.Min()
	maxK, _, _ := tree.Max()
	if int(minK.(types.IntKey)) != 2 || int(maxK.(types.IntKey)) != 9 {
		t.Errorf("min=%v max=%v", minK, maxK)
	}
}

func TestPortableRoundTrip(t *testing.T) {
	tree := New(3, nil)
	for i := 0; i < 30; i++ {
		tree.Insert(types.IntKey(i%7), string(rune('a'+i)))
	}

	entries := tree.Portable()
	restored, err := FromPortable(3, nil, false, entries)
	if err != nil {
		t.Fatalf("FromPortable: %v", err)
	}

	if restored.Size() != tree.Size() {
		t.Fatalf("size mismatch: %d vs %d", restored.Size(), tree.Size())
	}

	orig := collect(tree)
	back := collect(restored)
	if len(orig) != len(back) {
		t.Fatalf("iteration mismatch: %d vs %d", len(orig), len(back))
	}
	for i := range orig {
		if orig[i] != back[i] {
			t.Fatalf("pointer %d differs: %q vs %q", i, orig[i], back[i])
		}
	}
}
