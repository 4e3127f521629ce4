package index

import (
	"sync"
	"time"

	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/types"
)

// ChangeType das operações bufferizadas por transação.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeRemove ChangeType = "remove"
)

// Change é uma operação pendente no buffer de uma transação.
type Change struct {
	Type      ChangeType
	Key       string // chave serializada
	Value     string // ponteiro de registro
	Timestamp int64
}

// txState guarda os buffers por transação e o conjunto de transações que
// passaram por Prepare.
type txState struct {
	mu       sync.Mutex
	changes  map[string][]Change
	prepared map[string]bool
}

func newTxState() *txState {
	return &txState{
		changes:  make(map[string][]Change),
		prepared: make(map[string]bool),
	}
}

// InsertInTransaction valida e bufferiza uma inserção. A validação de
// unicidade considera base + buffer, descontando removes bufferizados.
func (m *Manager) InsertInTransaction(txID string, record types.Record, ptr string) error {
	encoded, isNull := m.KeyFor(record)
	skip, err := m.checkConstraints(isNull)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}
	return m.InsertKeyInTransaction(txID, encoded, ptr)
}

// InsertKeyInTransaction bufferiza a inserção de uma chave já serializada.
func (m *Manager) InsertKeyInTransaction(txID, encoded, ptr string) error {
	if m.def.Unique {
		visible := m.visibleInTransaction(txID, encoded)
		if len(visible) > 0 {
			return &errors.UniqueConstraintError{Index: m.name, Key: encoded}
		}
	}

	m.txState.mu.Lock()
	defer m.txState.mu.Unlock()
	m.txState.changes[txID] = append(m.txState.changes[txID], Change{
		Type:      ChangeInsert,
		Key:       encoded,
		Value:     ptr,
		Timestamp: time.Now().UnixMilli(),
	})
	return nil
}

// RemoveInTransaction bufferiza remoções. Com ptr vazio, remove todas as
// entradas visíveis da chave (uma mudança por entrada, base + inserções
// bufferizadas); com ptr, remove só aquele par.
func (m *Manager) RemoveInTransaction(txID string, record types.Record, ptr string) {
	encoded, isNull := m.KeyFor(record)
	if skip, err := m.checkConstraints(isNull); err == nil && skip {
		return
	}
	m.RemoveKeyInTransaction(txID, encoded, ptr)
}

// RemoveKeyInTransaction bufferiza a remoção de uma chave já serializada.
func (m *Manager) RemoveKeyInTransaction(txID, encoded, ptr string) {
	var targets []string
	if ptr != "" {
		targets = []string{ptr}
	} else {
		targets = m.visibleInTransaction(txID, encoded)
	}

	m.txState.mu.Lock()
	defer m.txState.mu.Unlock()
	for _, target := range targets {
		m.txState.changes[txID] = append(m.txState.changes[txID], Change{
			Type:      ChangeRemove,
			Key:       encoded,
			Value:     target,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// GetAllInTransaction retorna a visão da transação para uma chave:
// entradas commitadas, menos removes bufferizados, mais inserts
// bufferizados.
func (m *Manager) GetAllInTransaction(txID, encoded string) []string {
	return m.visibleInTransaction(txID, encoded)
}

func (m *Manager) visibleInTransaction(txID, encoded string) []string {
	visible := m.FindAll(encoded)

	m.txState.mu.Lock()
	buffered := m.txState.changes[txID]
	m.txState.mu.Unlock()

	for _, c := range buffered {
		if c.Key != encoded {
			continue
		}
		switch c.Type {
		case ChangeInsert:
			visible = append(visible, c.Value)
		case ChangeRemove:
			for i, v := range visible {
				if v == c.Value {
					visible = append(visible[:i], visible[i+1:]...)
					break
				}
			}
		}
	}
	return visible
}

// Prepare revalida o buffer contra o índice base sob premissas otimistas.
// Qualquer violação limpa o buffer e retorna false sem erro.
func (m *Manager) Prepare(txID string) (bool, error) {
	m.txState.mu.Lock()
	buffered := append([]Change(nil), m.txState.changes[txID]...)
	m.txState.mu.Unlock()

	if m.def.Unique {
		// Reconta a visibilidade por chave aplicando o buffer em ordem
		counts := make(map[string]int)
		seen := make(map[string]bool)
		for _, c := range buffered {
			if !seen[c.Key] {
				counts[c.Key] = len(m.FindAll(c.Key))
				seen[c.Key] = true
			}
			switch c.Type {
			case ChangeInsert:
				if counts[c.Key] > 0 {
					m.txState.mu.Lock()
					delete(m.txState.changes, txID)
					m.txState.mu.Unlock()
					return false, nil
				}
				counts[c.Key]++
			case ChangeRemove:
				if counts[c.Key] > 0 {
					counts[c.Key]--
				}
			}
		}
	}

	m.txState.mu.Lock()
	m.txState.prepared[txID] = true
	m.txState.mu.Unlock()
	return true, nil
}

// Finalize aplica o buffer na árvore base. Exige Prepare anterior.
func (m *Manager) Finalize(txID string) error {
	m.txState.mu.Lock()
	if !m.txState.prepared[txID] {
		m.txState.mu.Unlock()
		return &errors.NotPreparedError{Resource: m.name + ".index", TxID: txID}
	}
	buffered := m.txState.changes[txID]
	delete(m.txState.changes, txID)
	delete(m.txState.prepared, txID)
	m.txState.mu.Unlock()

	for _, c := range buffered {
		switch c.Type {
		case ChangeInsert:
			if err := m.tree.Insert(types.VarcharKey(c.Key), c.Value); err != nil {
				return err
			}
		case ChangeRemove:
			target := c.Value
			m.tree.RemoveSpecific(types.VarcharKey(c.Key), func(p string) bool {
				return p == target
			})
		}
	}
	return nil
}

// Rollback descarta o buffer. Transação desconhecida é no-op.
func (m *Manager) Rollback(txID string) error {
	m.txState.mu.Lock()
	defer m.txState.mu.Unlock()
	delete(m.txState.changes, txID)
	delete(m.txState.prepared, txID)
	return nil
}

// SnapshotState captura o buffer para um savepoint.
func (m *Manager) SnapshotState(txID string) (any, error) {
	m.txState.mu.Lock()
	defer m.txState.mu.Unlock()
	snap := make([]Change, len(m.txState.changes[txID]))
	copy(snap, m.txState.changes[txID])
	return snap, nil
}

// RestoreState volta o buffer ao estado do savepoint.
func (m *Manager) RestoreState(txID string, snapshot any) error {
	snap, ok := snapshot.([]Change)
	if !ok {
		return &errors.TransactionStateError{TxID: txID, State: "ACTIVE", Reason: "invalid savepoint snapshot for index"}
	}
	m.txState.mu.Lock()
	defer m.txState.mu.Unlock()
	m.txState.changes[txID] = append([]Change(nil), snap...)
	return nil
}
