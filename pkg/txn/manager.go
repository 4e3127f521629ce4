package txn

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/wal"
)

// ChangeListener recebe as mutações de transações COMMITADAS, depois do
// COMMIT no WAL e de todos os Finalize. Rollbacks e savepoints nunca
// notificam.
type ChangeListener func(changes []ChangeRecord)

// ListenerHandle identifica um listener registrado para remoção posterior.
type ListenerHandle int

// Manager coordena o ciclo de vida das transações e o two-phase commit
// entre os recursos enlistados, gravando os marcadores no WAL quando um
// está configurado.
type Manager struct {
	mu           sync.Mutex
	wal          wal.Manager // pode ser nil (transações sem WAL)
	logger       zerolog.Logger
	active       map[string]*Transaction
	listeners    map[ListenerHandle]ChangeListener
	nextListener ListenerHandle
}

func NewManager(walManager wal.Manager, logger zerolog.Logger) *Manager {
	return &Manager{
		wal:       walManager,
		logger:    logger,
		active:    make(map[string]*Transaction),
		listeners: make(map[ListenerHandle]ChangeListener),
	}
}

// Begin cria uma transação ACTIVE e grava o marcador BEGIN.
func (m *Manager) Begin(opts Options) (*Transaction, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	tx := newTransaction(id.String(), opts)

	if m.wal != nil {
		entry := &wal.Entry{
			TransactionID: tx.ID,
			Type:          wal.EntryBegin,
			Operation:     wal.OpBegin,
		}
		if _, err := m.wal.WriteEntry(entry); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.active[tx.ID] = tx
	m.mu.Unlock()

	m.logger.Debug().Str("tx", tx.ID).Msg("transaction started")
	return tx, nil
}

// Get retorna a transação ativa com o id dado.
func (m *Manager) Get(txID string) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.active[txID]
	return tx, ok
}

// ActiveCount retorna o número de transações ativas.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// ActiveIDs lista os ids das transações ativas (para checkpoints).
func (m *Manager) ActiveIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// WriteData grava uma entrada DATA da transação no WAL.
func (m *Manager) WriteData(txID string, e *wal.Entry) error {
	if m.wal == nil {
		return nil
	}
	e.TransactionID = txID
	e.Type = wal.EntryData
	_, err := m.wal.WriteEntry(e)
	return err
}

// Commit executa o two-phase commit: PREPARE em todos os recursos; se
// algum falhar, rollback de todos; senão COMMIT durável no WAL, Finalize
// em todos e notificação dos listeners.
func (m *Manager) Commit(txID string) error {
	m.mu.Lock()
	tx, ok := m.active[txID]
	m.mu.Unlock()
	if !ok {
		return &errors.TransactionStateError{TxID: txID, State: "NONE", Reason: "commit without active transaction"}
	}

	if tx.Status() != StatusActive {
		return &errors.TransactionStateError{TxID: txID, State: string(tx.Status()), Reason: "commit requires an active transaction"}
	}

	if tx.Expired() {
		m.rollbackTx(tx)
		return &errors.TimeoutError{TxID: txID, Elapsed: time.Since(tx.StartTime).String()}
	}

	tx.setStatus(StatusPreparing)
	resources := tx.resourcesSnapshot()

	// Fase 1: prepare
	for _, res := range resources {
		if m.wal != nil {
			entry := &wal.Entry{
				TransactionID: tx.ID,
				Type:          wal.EntryPrepare,
				Data:          wal.EntryPayload{IndexName: res.Name()},
			}
			if _, err := m.wal.WriteEntry(entry); err != nil {
				m.rollbackTx(tx)
				return err
			}
		}

		ok, err := res.Prepare(tx.ID)
		if err != nil || !ok {
			m.rollbackTx(tx)
			if err != nil {
				return fmt.Errorf("prepare failed on %s: %w", res.Name(), err)
			}
			return &errors.TransactionStateError{TxID: tx.ID, State: string(StatusAborted),
				Reason: fmt.Sprintf("resource %s refused to prepare", res.Name())}
		}
	}
	tx.setStatus(StatusPrepared)

	// Ponto de commit: durável antes de aplicar
	if m.wal != nil {
		entry := &wal.Entry{
			TransactionID: tx.ID,
			Type:          wal.EntryCommit,
			Operation:     wal.OpCommit,
		}
		if _, err := m.wal.WriteEntry(entry); err != nil {
			m.rollbackTx(tx)
			return err
		}
		if err := m.wal.Flush(); err != nil {
			m.rollbackTx(tx)
			return err
		}
	}

	// Fase 2: finalize
	for _, res := range resources {
		if err := res.Finalize(tx.ID); err != nil {
			// Commit parcial: derruba o que der e reporta aborto
			m.rollbackTx(tx)
			return fmt.Errorf("finalize failed on %s: %w", res.Name(), err)
		}
	}

	tx.setStatus(StatusCommitted)
	m.mu.Lock()
	delete(m.active, tx.ID)
	listeners := make([]ChangeListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	changes := tx.Changes()
	for _, l := range listeners {
		l(changes)
	}

	m.logger.Debug().Str("tx", tx.ID).Int("changes", len(changes)).Msg("transaction committed")
	return nil
}

// Rollback aborta a transação. Id desconhecido é no-op (idempotente).
func (m *Manager) Rollback(txID string) error {
	m.mu.Lock()
	tx, ok := m.active[txID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	m.rollbackTx(tx)
	return nil
}

func (m *Manager) rollbackTx(tx *Transaction) {
	if m.wal != nil {
		entry := &wal.Entry{
			TransactionID: tx.ID,
			Type:          wal.EntryRollback,
		}
		if _, err := m.wal.WriteEntry(entry); err != nil {
			m.logger.Error().Err(err).Str("tx", tx.ID).Msg("failed to write rollback entry")
		}
	}

	for _, res := range tx.resourcesSnapshot() {
		if err := res.Rollback(tx.ID); err != nil {
			m.logger.Error().Err(err).Str("tx", tx.ID).Str("resource", res.Name()).
				Msg("resource rollback failed")
		}
	}

	tx.setStatus(StatusAborted)
	m.mu.Lock()
	delete(m.active, tx.ID)
	m.mu.Unlock()

	m.logger.Debug().Str("tx", tx.ID).Msg("transaction rolled back")
}

// Cleanup varre transações expiradas e as aborta. Retorna quantas caíram.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	var expired []*Transaction
	for _, tx := range m.active {
		if tx.Expired() {
			expired = append(expired, tx)
		}
	}
	m.mu.Unlock()

	for _, tx := range expired {
		m.logger.Warn().Str("tx", tx.ID).Dur("timeout", tx.Options.Timeout).
			Msg("transaction expired, rolling back")
		m.rollbackTx(tx)
	}
	return len(expired)
}

// AddChangeListener registra um listener de commits.
func (m *Manager) AddChangeListener(l ChangeListener) ListenerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextListener++
	h := m.nextListener
	m.listeners[h] = l
	return h
}

// RemoveChangeListener remove um listener registrado.
func (m *Manager) RemoveChangeListener(h ListenerHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, h)
}
