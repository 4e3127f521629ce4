package txn

import (
	"time"

	"github.com/google/uuid"

	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/wal"
)

// CreateSavepoint captura o estado bufferizado de cada recurso da
// transação e o tamanho do histórico de mudanças. Retorna o id do
// savepoint.
func (m *Manager) CreateSavepoint(txID, name string) (string, error) {
	tx, ok := m.Get(txID)
	if !ok {
		return "", &errors.TransactionStateError{TxID: txID, State: "NONE", Reason: "savepoint without active transaction"}
	}
	if tx.Status() != StatusActive {
		return "", &errors.TransactionStateError{TxID: txID, State: string(tx.Status()), Reason: "savepoint requires an active transaction"}
	}

	sp := &Savepoint{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
		snapshots: make(map[string]any),
	}

	for _, res := range tx.resourcesSnapshot() {
		capable, ok := res.(SavepointResource)
		if !ok {
			continue
		}
		snap, err := capable.SnapshotState(txID)
		if err != nil {
			return "", err
		}
		sp.snapshots[res.Name()] = snap
	}

	tx.mu.Lock()
	sp.changeLen = len(tx.changes)
	tx.savepoints = append(tx.savepoints, sp)
	tx.mu.Unlock()

	return sp.ID, nil
}

// RollbackToSavepoint restaura o estado capturado e descarta o savepoint e
// todos os criados depois dele. A transação permanece ACTIVE.
func (m *Manager) RollbackToSavepoint(txID, savepointID string) error {
	tx, ok := m.Get(txID)
	if !ok {
		return &errors.TransactionStateError{TxID: txID, State: "NONE", Reason: "savepoint rollback without active transaction"}
	}

	tx.mu.Lock()
	idx := -1
	for i, sp := range tx.savepoints {
		if sp.ID == savepointID {
			idx = i
			break
		}
	}
	if idx < 0 {
		tx.mu.Unlock()
		return &errors.TransactionStateError{TxID: txID, State: string(tx.status), Reason: "unknown savepoint " + savepointID}
	}
	sp := tx.savepoints[idx]
	resources := make([]TransactionalResource, len(tx.resources))
	copy(resources, tx.resources)
	tx.mu.Unlock()

	for _, res := range resources {
		capable, ok := res.(SavepointResource)
		if !ok {
			continue
		}
		snap, captured := sp.snapshots[res.Name()]
		if !captured {
			// Recurso enlistado depois do savepoint: buffer volta ao vazio
			snap = nil
		}
		if snap == nil {
			if err := res.Rollback(txID); err != nil {
				return err
			}
			continue
		}
		if err := capable.RestoreState(txID, snap); err != nil {
			return err
		}
	}

	tx.mu.Lock()
	var dropped []ChangeRecord
	if sp.changeLen <= len(tx.changes) {
		dropped = append(dropped, tx.changes[sp.changeLen:]...)
		tx.changes = tx.changes[:sp.changeLen]
	}
	// Descarta o savepoint alvo e os posteriores
	tx.savepoints = tx.savepoints[:idx]
	tx.mu.Unlock()

	// O log já carrega entradas DATA das mudanças descartadas; grava as
	// inversas, em ordem reversa, para que o replay de um commit posterior
	// reproduza o estado pós-savepoint.
	if m.wal != nil {
		for i := len(dropped) - 1; i >= 0; i-- {
			if err := m.WriteData(txID, compensatingEntry(dropped[i])); err != nil {
				return err
			}
		}
	}

	return nil
}

func compensatingEntry(c ChangeRecord) *wal.Entry {
	switch c.Type {
	case "insert":
		return &wal.Entry{
			CollectionName: c.Collection,
			Operation:      wal.OpDelete,
			Data:           wal.EntryPayload{Key: c.Key, OldValue: c.NewValue},
		}
	case "update":
		return &wal.Entry{
			CollectionName: c.Collection,
			Operation:      wal.OpUpdate,
			Data:           wal.EntryPayload{Key: c.Key, OldValue: c.NewValue, NewValue: c.OldValue},
		}
	default: // delete
		return &wal.Entry{
			CollectionName: c.Collection,
			Operation:      wal.OpInsert,
			Data:           wal.EntryPayload{Key: c.Key, NewValue: c.OldValue},
		}
	}
}

// ReleaseSavepoint descarta o snapshot sem restaurar nada.
func (m *Manager) ReleaseSavepoint(txID, savepointID string) error {
	tx, ok := m.Get(txID)
	if !ok {
		return &errors.TransactionStateError{TxID: txID, State: "NONE", Reason: "savepoint release without active transaction"}
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	for i, sp := range tx.savepoints {
		if sp.ID == savepointID {
			tx.savepoints = append(tx.savepoints[:i], tx.savepoints[i+1:]...)
			return nil
		}
	}
	return &errors.TransactionStateError{TxID: txID, State: string(tx.status), Reason: "unknown savepoint " + savepointID}
}

// ListSavepoints lista os nomes dos savepoints vivos, na ordem de criação.
func (m *Manager) ListSavepoints(txID string) []string {
	tx, ok := m.Get(txID)
	if !ok {
		return nil
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	names := make([]string, 0, len(tx.savepoints))
	for _, sp := range tx.savepoints {
		names = append(names, sp.Name)
	}
	return names
}
