package list

import (
	"sync"
	"time"

	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/types"
)

// ChangeType das mutações bufferizadas por transação.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change é um registro de mudança pendente dentro de uma transação.
type Change struct {
	Type      ChangeType
	Key       string
	OldValue  types.Record
	NewValue  types.Record
	Timestamp int64
}

// TransactionalList decora um Storage com buffers por transação e os hooks
// de two-phase commit. Enquanto a transação está ativa, as mudanças vivem
// só no buffer; Finalize as aplica no backend base.
type TransactionalList struct {
	mu       sync.Mutex
	base     Storage
	name     string
	changes  map[string][]Change
	prepared map[string]bool
}

func NewTransactionalList(name string, base Storage) *TransactionalList {
	return &TransactionalList{
		base:     base,
		name:     name,
		changes:  make(map[string][]Change),
		prepared: make(map[string]bool),
	}
}

// Base expõe o backend para operações fora de transação.
func (t *TransactionalList) Base() Storage { return t.base }

// Name identifica o recurso nos erros de 2PC.
func (t *TransactionalList) Name() string { return t.name + ".list" }

// InsertInTransaction bufferiza a inserção de um registro.
func (t *TransactionalList) InsertInTransaction(txID, id string, record types.Record) {
	t.appendChange(txID, Change{
		Type:      ChangeInsert,
		Key:       id,
		NewValue:  record,
		Timestamp: time.Now().UnixMilli(),
	})
}

// UpdateInTransaction bufferiza a troca de payload de um registro.
func (t *TransactionalList) UpdateInTransaction(txID, id string, oldRec, newRec types.Record) {
	t.appendChange(txID, Change{
		Type:      ChangeUpdate,
		Key:       id,
		OldValue:  oldRec,
		NewValue:  newRec,
		Timestamp: time.Now().UnixMilli(),
	})
}

// RemoveInTransaction bufferiza a remoção de um registro.
func (t *TransactionalList) RemoveInTransaction(txID, id string, oldRec types.Record) {
	t.appendChange(txID, Change{
		Type:      ChangeDelete,
		Key:       id,
		OldValue:  oldRec,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (t *TransactionalList) appendChange(txID string, c Change) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changes[txID] = append(t.changes[txID], c)
}

// GetInTransaction retorna a visão da transação: base commitada coberta
// pelas mudanças bufferizadas, na ordem em que foram feitas.
func (t *TransactionalList) GetInTransaction(txID, id string) (types.Record, bool) {
	t.mu.Lock()
	buffered := t.changes[txID]
	t.mu.Unlock()

	rec, ok := t.base.Get(id)
	for _, c := range buffered {
		if c.Key != id {
			continue
		}
		switch c.Type {
		case ChangeInsert, ChangeUpdate:
			rec, ok = c.NewValue, true
		case ChangeDelete:
			rec, ok = nil, false
		}
	}
	return rec, ok
}

// Changes devolve uma cópia do buffer da transação.
func (t *TransactionalList) Changes(txID string) []Change {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Change, len(t.changes[txID]))
	copy(out, t.changes[txID])
	return out
}

// Prepare revalida o buffer contra o estado base. Retorna false (sem erro)
// quando alguma mudança ficou inválida; o buffer é descartado nesse caso.
func (t *TransactionalList) Prepare(txID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Visão incremental da existência de cada chave durante a validação
	exists := make(map[string]bool)
	lookup := func(id string) bool {
		if v, seen := exists[id]; seen {
			return v
		}
		_, ok := t.base.Get(id)
		exists[id] = ok
		return ok
	}

	for _, c := range t.changes[txID] {
		switch c.Type {
		case ChangeInsert:
			if lookup(c.Key) {
				delete(t.changes, txID)
				return false, nil
			}
			exists[c.Key] = true
		case ChangeUpdate, ChangeDelete:
			if !lookup(c.Key) {
				delete(t.changes, txID)
				return false, nil
			}
			if c.Type == ChangeDelete {
				exists[c.Key] = false
			}
		}
	}

	t.prepared[txID] = true
	return true, nil
}

// Finalize aplica o buffer no backend base. Exige Prepare anterior.
func (t *TransactionalList) Finalize(txID string) error {
	t.mu.Lock()
	if !t.prepared[txID] {
		t.mu.Unlock()
		return &errors.NotPreparedError{Resource: t.Name(), TxID: txID}
	}
	buffered := t.changes[txID]
	delete(t.changes, txID)
	delete(t.prepared, txID)
	t.mu.Unlock()

	for _, c := range buffered {
		var err error
		switch c.Type {
		case ChangeInsert:
			_, err = t.base.Set(c.Key, c.NewValue)
		case ChangeUpdate:
			_, err = t.base.Update(c.Key, c.NewValue)
		case ChangeDelete:
			_, err = t.base.Delete(c.Key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Rollback descarta o buffer. É idempotente: transação desconhecida é no-op.
func (t *TransactionalList) Rollback(txID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.changes, txID)
	delete(t.prepared, txID)
	return nil
}

// SnapshotState captura o buffer para um savepoint.
func (t *TransactionalList) SnapshotState(txID string) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := make([]Change, len(t.changes[txID]))
	copy(snap, t.changes[txID])
	return snap, nil
}

// RestoreState volta o buffer para o estado de um savepoint, descartando
// as mudanças feitas depois dele.
func (t *TransactionalList) RestoreState(txID string, snapshot any) error {
	snap, ok := snapshot.([]Change)
	if !ok {
		return &errors.TransactionStateError{TxID: txID, State: "ACTIVE", Reason: "invalid savepoint snapshot for list"}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changes[txID] = append([]Change(nil), snap...)
	return nil
}
