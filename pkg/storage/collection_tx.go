package storage

import (
	"time"

	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/index"
	"github.com/bobboyms/docstore/pkg/txn"
	"github.com/bobboyms/docstore/pkg/types"
	"github.com/bobboyms/docstore/pkg/wal"
)

// indexResource adapta um índice ao contrato de recurso transacional,
// prefixando o nome com a coleção para unicidade entre recursos.
type indexResource struct {
	collection string
	idx        *index.Manager
}

func (r indexResource) Name() string { return r.collection + ".index." + r.idx.Name() }

func (r indexResource) Prepare(txID string) (bool, error) { return r.idx.Prepare(txID) }
func (r indexResource) Finalize(txID string) error        { return r.idx.Finalize(txID) }
func (r indexResource) Rollback(txID string) error        { return r.idx.Rollback(txID) }

func (r indexResource) SnapshotState(txID string) (any, error) {
	return r.idx.SnapshotState(txID)
}

func (r indexResource) RestoreState(txID string, snapshot any) error {
	return r.idx.RestoreState(txID, snapshot)
}

// enlist registra a lista e todos os índices como participantes da
// transação.
func (c *Collection) enlist(tx *txn.Transaction) {
	tx.Enlist(c.tlist)
	for _, mgr := range c.indexes {
		tx.Enlist(indexResource{collection: c.name, idx: mgr})
	}
}

func (c *Collection) activeTx(txID string) (*txn.Transaction, error) {
	if c.txman == nil {
		return nil, &errors.TransactionStateError{TxID: txID, State: "NONE", Reason: "transactions are not enabled"}
	}
	tx, ok := c.txman.Get(txID)
	if !ok {
		return nil, &errors.TransactionStateError{TxID: txID, State: "NONE", Reason: "no active transaction with this id"}
	}
	if tx.Status() != txn.StatusActive {
		return nil, &errors.TransactionStateError{TxID: txID, State: string(tx.Status()), Reason: "transaction is not active"}
	}
	return tx, nil
}

// snapshotResources captura os buffers de todos os participantes para
// restaurar em caso de falha no meio do fan-out (atomicidade por registro
// dentro da transação).
func (c *Collection) snapshotResources(txID string) (listSnap any, idxSnaps []any, err error) {
	listSnap, err = c.tlist.SnapshotState(txID)
	if err != nil {
		return nil, nil, err
	}
	for _, mgr := range c.indexes {
		snap, err := mgr.SnapshotState(txID)
		if err != nil {
			return nil, nil, err
		}
		idxSnaps = append(idxSnaps, snap)
	}
	return listSnap, idxSnaps, nil
}

func (c *Collection) restoreResources(txID string, listSnap any, idxSnaps []any) {
	c.tlist.RestoreState(txID, listSnap)
	for i, mgr := range c.indexes {
		if i < len(idxSnaps) {
			mgr.RestoreState(txID, idxSnaps[i])
		}
	}
}

// CreateTx bufferiza a inserção de um registro dentro da transação.
func (c *Collection) CreateTx(txID string, record types.Record) (types.Record, error) {
	tx, err := c.activeTx(txID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.ensureIdentity(record)
	if err != nil {
		return nil, err
	}
	c.stampTTL(record)

	if err := c.validate(record); err != nil {
		return nil, err
	}

	c.enlist(tx)
	c.queueWildcard(record)

	listSnap, idxSnaps, err := c.snapshotResources(txID)
	if err != nil {
		return nil, err
	}

	for _, mgr := range c.indexes {
		if err := mgr.InsertInTransaction(txID, record, id); err != nil {
			c.restoreResources(txID, listSnap, idxSnaps)
			return nil, err
		}
	}
	c.tlist.InsertInTransaction(txID, id, record)

	if err := c.txman.WriteData(txID, &wal.Entry{
		CollectionName: c.name,
		Operation:      wal.OpInsert,
		Data:           wal.EntryPayload{Key: id, NewValue: map[string]any(record)},
	}); err != nil {
		c.restoreResources(txID, listSnap, idxSnaps)
		return nil, err
	}

	tx.RecordChange(txn.ChangeRecord{
		Type:       "insert",
		Collection: c.name,
		Key:        id,
		NewValue:   map[string]any(record),
		Timestamp:  time.Now().UnixMilli(),
	})
	return record, nil
}

// UpdateTx bufferiza um patch dentro da transação, usando a visão
// transacional do registro.
func (c *Collection) UpdateTx(txID string, idValue any, patch types.Record, merge bool) (types.Record, error) {
	tx, err := c.activeTx(txID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := types.CanonicalID(idValue)
	cur, ok := c.tlist.GetInTransaction(txID, id)
	if !ok {
		return nil, &errors.RecordNotFoundError{Collection: c.name, ID: id}
	}

	oldRec, err := types.CloneRecord(cur)
	if err != nil {
		return nil, err
	}
	next, err := applyPatch(cur, patch, merge)
	if err != nil {
		return nil, err
	}
	next[c.config.Identity.Name] = oldRec[c.config.Identity.Name]

	if err := c.validate(next); err != nil {
		return nil, err
	}

	c.enlist(tx)
	c.queueWildcard(next)

	listSnap, idxSnaps, err := c.snapshotResources(txID)
	if err != nil {
		return nil, err
	}

	for _, mgr := range c.indexes {
		oldKey, oldNull := mgr.KeyFor(oldRec)
		newKey, newNull := mgr.KeyFor(next)
		if oldKey == newKey && oldNull == newNull {
			continue
		}
		if newNull && mgr.Def().Required {
			c.restoreResources(txID, listSnap, idxSnaps)
			return nil, &errors.RequiredFieldError{Index: mgr.Name(), Field: mgr.Name()}
		}
		if !oldNull || !mgr.Def().Sparse {
			mgr.RemoveKeyInTransaction(txID, oldKey, id)
		}
		if newNull && mgr.Def().Sparse {
			continue
		}
		if err := mgr.InsertKeyInTransaction(txID, newKey, id); err != nil {
			c.restoreResources(txID, listSnap, idxSnaps)
			return nil, err
		}
	}
	c.tlist.UpdateInTransaction(txID, id, oldRec, next)

	if err := c.txman.WriteData(txID, &wal.Entry{
		CollectionName: c.name,
		Operation:      wal.OpUpdate,
		Data: wal.EntryPayload{
			Key:      id,
			OldValue: map[string]any(oldRec),
			NewValue: map[string]any(next),
		},
	}); err != nil {
		c.restoreResources(txID, listSnap, idxSnaps)
		return nil, err
	}

	tx.RecordChange(txn.ChangeRecord{
		Type:       "update",
		Collection: c.name,
		Key:        id,
		OldValue:   map[string]any(oldRec),
		NewValue:   map[string]any(next),
		Timestamp:  time.Now().UnixMilli(),
	})
	return next, nil
}

// RemoveTx bufferiza a remoção de um registro dentro da transação.
func (c *Collection) RemoveTx(txID string, idValue any) (types.Record, error) {
	tx, err := c.activeTx(txID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := types.CanonicalID(idValue)
	cur, ok := c.tlist.GetInTransaction(txID, id)
	if !ok {
		return nil, &errors.RecordNotFoundError{Collection: c.name, ID: id}
	}

	c.enlist(tx)

	for _, mgr := range c.indexes {
		mgr.RemoveInTransaction(txID, cur, id)
	}
	c.tlist.RemoveInTransaction(txID, id, cur)

	if err := c.txman.WriteData(txID, &wal.Entry{
		CollectionName: c.name,
		Operation:      wal.OpDelete,
		Data:           wal.EntryPayload{Key: id, OldValue: map[string]any(cur)},
	}); err != nil {
		return nil, err
	}

	tx.RecordChange(txn.ChangeRecord{
		Type:       "delete",
		Collection: c.name,
		Key:        id,
		OldValue:   map[string]any(cur),
		Timestamp:  time.Now().UnixMilli(),
	})
	return cur, nil
}

// GetTx retorna a visão transacional de um registro.
func (c *Collection) GetTx(txID string, idValue any) (types.Record, bool) {
	return c.tlist.GetInTransaction(txID, types.CanonicalID(idValue))
}

// FindByTx retorna a visão transacional de um índice para um valor: os
// registros commitados, menos remoções bufferizadas, mais inserções da
// própria transação.
func (c *Collection) FindByTx(txID, indexName string, value any) ([]types.Record, error) {
	mgr, err := c.Index(indexName)
	if err != nil {
		return nil, err
	}
	ptrs := mgr.GetAllInTransaction(txID, mgr.EncodeValue(value))
	out := make([]types.Record, 0, len(ptrs))
	for _, ptr := range ptrs {
		if rec, ok := c.tlist.GetInTransaction(txID, ptr); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ApplyWALEntry aplica uma entrada DATA commitada durante o recovery,
// direto no backend base e nos índices.
func (c *Collection) ApplyWALEntry(e *wal.Entry) error {
	id := types.CanonicalID(e.Data.Key)

	switch e.Operation {
	case wal.OpInsert:
		rec, ok := types.AsRecord(e.Data.NewValue)
		if !ok {
			return nil
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, exists := c.backend.Get(id); exists {
			// Replay idempotente: entrada já aplicada num persist anterior
			for _, hook := range c.hooks {
				hook.update(cur, rec, id)
			}
			_, err := c.backend.Update(id, rec)
			return err
		}
		if _, err := c.backend.Set(id, rec); err != nil {
			return err
		}
		for _, hook := range c.hooks {
			if err := hook.insert(rec, id); err != nil {
				c.logger.Warn().Err(err).Str("collection", c.name).Str("id", id).
					Msg("index replay conflict")
			}
		}
		return nil

	case wal.OpUpdate:
		rec, ok := types.AsRecord(e.Data.NewValue)
		if !ok {
			return nil
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		cur, exists := c.backend.Get(id)
		if !exists {
			if _, err := c.backend.Set(id, rec); err != nil {
				return err
			}
			for _, hook := range c.hooks {
				hook.insert(rec, id)
			}
			return nil
		}
		for _, hook := range c.hooks {
			hook.update(cur, rec, id)
		}
		_, err := c.backend.Update(id, rec)
		return err

	case wal.OpDelete:
		c.mu.Lock()
		defer c.mu.Unlock()
		cur, exists := c.backend.Get(id)
		if !exists {
			return nil
		}
		for _, hook := range c.hooks {
			hook.remove(cur, id)
		}
		_, err := c.backend.Delete(id)
		return err
	}
	return nil
}
