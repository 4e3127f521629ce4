package index

import (
	"github.com/bobboyms/docstore/pkg/btree"
	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/key"
	"github.com/bobboyms/docstore/pkg/query"
	"github.com/bobboyms/docstore/pkg/types"
)

// Manager é o índice ordenado de uma coleção: uma B+ Tree de chaves
// serializadas -> ponteiros de registro, com as semânticas unique, sparse,
// required e ignoreCase, mais os buffers transacionais e hooks de 2PC
// (em transactional.go).
//
// Todas as árvores usam chaves serializadas pelo codec composto e o
// comparador derivado dos campos, inclusive índices de campo único: o
// comparador compara numericamente quando os dois tokens são números, então
// a ordem de inteiros, floats e datas é preservada.
type Manager struct {
	name      string
	def       IndexDef
	fields    []key.Field
	separator string
	cmp       key.Comparator
	process   ProcessFunc
	tree      *btree.BPlusTree
	txState   *txState
}

// NewManager monta o índice a partir da definição.
func NewManager(name string, def IndexDef) (*Manager, error) {
	fields := def.Fields()
	if name == "" {
		name = def.Name()
	}
	sep := def.Separator
	if sep == "" {
		sep = key.DefaultSeparator
	}

	process, err := ResolveProcess(def.Process)
	if err != nil {
		return nil, err
	}
	if def.IgnoreCase && def.Process == "" {
		process, _ = ResolveProcess("lowercase")
	}

	cmp := key.CreateComparator(fields, sep)
	treeCmp := func(a, b types.Comparable) int {
		return cmp(string(a.(types.VarcharKey)), string(b.(types.VarcharKey)))
	}

	var tree *btree.BPlusTree
	if def.Unique {
		tree = btree.NewUnique(btree.DefaultDegree, treeCmp)
	} else {
		tree = btree.New(btree.DefaultDegree, treeCmp)
	}

	return &Manager{
		name:      name,
		def:       def,
		fields:    fields,
		separator: sep,
		cmp:       cmp,
		process:   process,
		tree:      tree,
		txState:   newTxState(),
	}, nil
}

func (m *Manager) Name() string        { return m.name }
func (m *Manager) Def() IndexDef       { return m.def }
func (m *Manager) Fields() []key.Field { return m.fields }
func (m *Manager) Separator() string   { return m.separator }

// treeComparator adapta o comparador do codec para as chaves da árvore.
func (m *Manager) treeComparator() btree.CompareFunc {
	return func(a, b types.Comparable) int {
		return m.cmp(string(a.(types.VarcharKey)), string(b.(types.VarcharKey)))
	}
}

// KeyFor extrai e serializa a chave do índice para um documento.
// isNull indica chave nula: campo único nulo/ausente, ou todos os campos
// nulos/ausentes em índices compostos.
func (m *Manager) KeyFor(record types.Record) (encoded string, isNull bool) {
	values := key.ExtractValues(record, m.fields)

	allNull := true
	for _, v := range values {
		if v != nil && !key.IsUndefined(v) {
			allNull = false
			break
		}
	}

	encoded = m.process(key.Serialize(values, m.separator))
	return encoded, allNull
}

// PartialKey serializa um prefixo de valores para range scans.
func (m *Manager) PartialKey(values []any) string {
	return m.process(key.CreatePartialKey(values, m.separator))
}

// EncodeValue serializa um único valor na forma de chave deste índice.
func (m *Manager) EncodeValue(v any) string {
	return m.process(key.Serialize([]any{v}, m.separator))
}

// checkConstraints valida required/sparse. skip=true significa que o
// registro fica fora do índice (sparse com chave nula).
func (m *Manager) checkConstraints(isNull bool) (skip bool, err error) {
	if !isNull {
		return false, nil
	}
	if m.def.Required {
		return false, &errors.RequiredFieldError{Index: m.name, Field: key.IndexName(m.fields)}
	}
	if m.def.Sparse {
		return true, nil
	}
	return false, nil
}

// Insert aplica o hook de inserção de um registro fora de transação.
func (m *Manager) Insert(record types.Record, ptr string) error {
	encoded, isNull := m.KeyFor(record)
	skip, err := m.checkConstraints(isNull)
	if err != nil || skip {
		return err
	}
	if err := m.tree.Insert(types.VarcharKey(encoded), ptr); err != nil {
		if _, isDup := err.(*errors.UniqueConstraintError); isDup {
			return &errors.UniqueConstraintError{Index: m.name, Key: encoded}
		}
		return err
	}
	return nil
}

// Remove aplica o hook de remoção de um registro.
func (m *Manager) Remove(record types.Record, ptr string) {
	encoded, isNull := m.KeyFor(record)
	if skip, err := m.checkConstraints(isNull); err == nil && skip {
		return
	}
	m.tree.RemoveSpecific(types.VarcharKey(encoded), func(p string) bool {
		return p == ptr
	})
}

// Update aplica o hook de atualização: reindexação só quando a chave muda.
func (m *Manager) Update(oldRec, newRec types.Record, ptr string) error {
	oldKey, oldNull := m.KeyFor(oldRec)
	newKey, newNull := m.KeyFor(newRec)

	oldSkip, _ := m.checkConstraints(oldNull)
	newSkip, err := m.checkConstraints(newNull)
	if err != nil {
		return err
	}

	if oldKey == newKey && oldSkip == newSkip {
		return nil
	}

	if !oldSkip {
		m.tree.RemoveSpecific(types.VarcharKey(oldKey), func(p string) bool {
			return p == ptr
		})
	}
	if !newSkip {
		if err := m.tree.Insert(types.VarcharKey(newKey), ptr); err != nil {
			// Restaura a entrada antiga antes de propagar
			if !oldSkip {
				m.tree.Insert(types.VarcharKey(oldKey), ptr)
			}
			if _, isDup := err.(*errors.UniqueConstraintError); isDup {
				return &errors.UniqueConstraintError{Index: m.name, Key: newKey}
			}
			return err
		}
	}
	return nil
}

// FindAll retorna os ponteiros da chave serializada.
func (m *Manager) FindAll(encoded string) []string {
	return m.tree.Find(types.VarcharKey(encoded))
}

// FindFirst retorna um ponteiro da chave.
func (m *Manager) FindFirst(encoded string) (string, bool) {
	return m.tree.FindFirst(types.VarcharKey(encoded))
}

// FindLast retorna o último ponteiro da chave.
func (m *Manager) FindLast(encoded string) (string, bool) {
	return m.tree.FindLast(types.VarcharKey(encoded))
}

// Min retorna a menor chave do índice com seus ponteiros.
func (m *Manager) Min() (string, []string, bool) {
	k, ptrs, ok := m.tree.Min()
	if !ok {
		return "", nil, false
	}
	return string(k.(types.VarcharKey)), ptrs, true
}

// Max retorna a maior chave do índice com seus ponteiros.
func (m *Manager) Max() (string, []string, bool) {
	k, ptrs, ok := m.tree.Max()
	if !ok {
		return "", nil, false
	}
	return string(k.(types.VarcharKey)), ptrs, true
}

// Scan percorre o índice guiado por uma condição, do jeito que o scan de
// tabela do engine usa as condições: seek para a chave inicial quando o
// operador permite, parada assim que ShouldContinue encerra o range e
// filtro por Matches. O comparador do índice é injetado na condição, então
// índices compostos e descendentes mantêm a ordem correta. cond nil
// percorre tudo.
func (m *Manager) Scan(cond *query.ScanCondition, fn func(encoded string, ptr string) bool) {
	if cond == nil {
		m.Each(fn)
		return
	}
	cond.WithComparator(query.CompareFunc(m.treeComparator()))

	var start types.Comparable
	if cond.ShouldSeek() {
		start = cond.GetStartKey()
	}

	m.tree.RangeEach(start, nil, func(k types.Comparable, ptr string) bool {
		if !cond.ShouldContinue(k) {
			return false
		}
		if !cond.Matches(k) {
			return true
		}
		return fn(string(k.(types.VarcharKey)), ptr)
	})
}

// Condition constrói uma condição de scan sobre um valor de documento,
// serializado na forma de chave deste índice.
func (m *Manager) Condition(build func(types.Comparable) *query.ScanCondition, value any) *query.ScanCondition {
	return build(types.VarcharKey(m.EncodeValue(value)))
}

// Range devolve os ponteiros com lo <= chave <= hi na ordem do índice.
// Strings vazias significam sem limite.
func (m *Manager) Range(lo, hi string) []string {
	var cond *query.ScanCondition
	switch {
	case lo != "" && hi != "":
		cond = query.Between(types.VarcharKey(lo), types.VarcharKey(hi))
	case lo != "":
		cond = query.GreaterOrEqual(types.VarcharKey(lo))
	case hi != "":
		cond = query.LessOrEqual(types.VarcharKey(hi))
	}

	var out []string
	m.Scan(cond, func(_ string, ptr string) bool {
		out = append(out, ptr)
		return true
	})
	return out
}

// Each percorre o índice em ordem.
func (m *Manager) Each(fn func(encoded string, ptr string) bool) {
	m.tree.Each(func(k types.Comparable, ptr string) bool {
		return fn(string(k.(types.VarcharKey)), ptr)
	})
}

// Size retorna o total de entradas do índice.
func (m *Manager) Size() int { return m.tree.Size() }

// Reset esvazia o índice.
func (m *Manager) Reset() { m.tree.Reset() }

// Rebuild reconstrói o índice a partir dos registros correntes.
func (m *Manager) Rebuild(each func(fn func(id string, record types.Record) bool)) error {
	m.tree.Reset()
	var rebuildErr error
	each(func(id string, record types.Record) bool {
		if err := m.Insert(record, id); err != nil {
			rebuildErr = err
			return false
		}
		return true
	})
	return rebuildErr
}

// Portable tira o dump serializável da árvore para snapshots.
func (m *Manager) Portable() []btree.PortableEntry {
	return m.tree.Portable()
}

// LoadPortable restaura a árvore de um dump.
func (m *Manager) LoadPortable(entries []btree.PortableEntry) error {
	unique := m.tree.UniqueKey
	tree, err := btree.FromPortable(btree.DefaultDegree, m.treeComparator(), unique, entries)
	if err != nil {
		return err
	}
	m.tree = tree
	return nil
}
