package storage

import (
	"github.com/google/uuid"

	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/txn"
)

// StartSession abre uma sessão nova. Cada sessão hospeda no máximo uma
// transação ativa.
func (db *Database) StartSession() *Session {
	s := &Session{ID: uuid.NewString()}
	db.mu.Lock()
	db.sessions[s.ID] = s
	db.mu.Unlock()
	return s
}

// EndSession aborta a transação ativa da sessão (se houver) e a descarta.
func (db *Database) EndSession(sessionID string) error {
	db.mu.Lock()
	s, ok := db.sessions[sessionID]
	if ok {
		delete(db.sessions, sessionID)
	}
	db.mu.Unlock()

	if !ok || s.txID == "" || db.txman == nil {
		return nil
	}
	return db.txman.Rollback(s.txID)
}

func (db *Database) session(sessionID string) (*Session, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if sessionID == "" {
		return db.defaultSession, nil
	}
	s, ok := db.sessions[sessionID]
	if !ok {
		return nil, &errors.TransactionStateError{TxID: "", State: "NONE", Reason: "unknown session " + sessionID}
	}
	return s, nil
}

// StartTransaction abre uma transação na sessão default.
func (db *Database) StartTransaction(opts txn.Options) (string, error) {
	return db.StartTransactionIn("", opts)
}

// StartTransactionIn abre uma transação na sessão dada. Begin aninhado é
// rejeitado.
func (db *Database) StartTransactionIn(sessionID string, opts txn.Options) (string, error) {
	if db.txman == nil {
		return "", &errors.TransactionStateError{TxID: "", State: "NONE", Reason: "transactions are not enabled"}
	}
	s, err := db.session(sessionID)
	if err != nil {
		return "", err
	}

	db.mu.Lock()
	if s.txID != "" {
		if _, stillActive := db.txman.Get(s.txID); stillActive {
			db.mu.Unlock()
			return "", &errors.TransactionStateError{TxID: s.txID, State: "ACTIVE", Reason: "session already has an active transaction"}
		}
		s.txID = ""
	}
	db.mu.Unlock()

	tx, err := db.txman.Begin(opts)
	if err != nil {
		return "", err
	}

	db.mu.Lock()
	s.txID = tx.ID
	db.mu.Unlock()
	return tx.ID, nil
}

// CommitTransaction commita a transação da sessão default.
func (db *Database) CommitTransaction() error {
	return db.CommitTransactionIn("")
}

// CommitTransactionIn roda o two-phase commit da transação da sessão e
// expande índices wildcard adiados.
func (db *Database) CommitTransactionIn(sessionID string) error {
	if db.txman == nil {
		return &errors.TransactionStateError{TxID: "", State: "NONE", Reason: "transactions are not enabled"}
	}
	s, err := db.session(sessionID)
	if err != nil {
		return err
	}

	db.mu.Lock()
	txID := s.txID
	s.txID = ""
	db.mu.Unlock()

	if txID == "" {
		return &errors.TransactionStateError{TxID: "", State: "NONE", Reason: "commit without active transaction"}
	}

	if err := db.txman.Commit(txID); err != nil {
		return err
	}

	for _, name := range db.ListCollections() {
		if c, err := db.Collection(name); err == nil {
			c.FlushWildcard()
		}
	}
	return nil
}

// AbortTransaction aborta a transação da sessão default.
func (db *Database) AbortTransaction() error {
	return db.AbortTransactionIn("")
}

// AbortTransactionIn aborta a transação da sessão dada.
func (db *Database) AbortTransactionIn(sessionID string) error {
	if db.txman == nil {
		return &errors.TransactionStateError{TxID: "", State: "NONE", Reason: "transactions are not enabled"}
	}
	s, err := db.session(sessionID)
	if err != nil {
		return err
	}

	db.mu.Lock()
	txID := s.txID
	s.txID = ""
	db.mu.Unlock()

	if txID == "" {
		return nil
	}
	return db.txman.Rollback(txID)
}

// GetCurrentTransactionID retorna o id da transação ativa da sessão
// default, ou vazio.
func (db *Database) GetCurrentTransactionID() string {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.defaultSession == nil {
		return ""
	}
	return db.defaultSession.txID
}

// ActiveTransactionCount retorna o total de transações ativas.
func (db *Database) ActiveTransactionCount() int {
	if db.txman == nil {
		return 0
	}
	return db.txman.ActiveCount()
}

// CleanupTransactions aborta transações expiradas e limpa as sessões que
// apontavam para elas.
func (db *Database) CleanupTransactions() int {
	if db.txman == nil {
		return 0
	}
	n := db.txman.Cleanup()

	db.mu.Lock()
	for _, s := range db.sessions {
		if s.txID != "" {
			if _, ok := db.txman.Get(s.txID); !ok {
				s.txID = ""
			}
		}
	}
	db.mu.Unlock()
	return n
}

// CreateSavepoint cria um savepoint na transação da sessão default.
func (db *Database) CreateSavepoint(name string) (string, error) {
	txID := db.GetCurrentTransactionID()
	if txID == "" || db.txman == nil {
		return "", &errors.TransactionStateError{TxID: "", State: "NONE", Reason: "savepoint without active transaction"}
	}
	return db.txman.CreateSavepoint(txID, name)
}

// RollbackToSavepoint restaura o savepoint na transação da sessão default.
func (db *Database) RollbackToSavepoint(savepointID string) error {
	txID := db.GetCurrentTransactionID()
	if txID == "" || db.txman == nil {
		return &errors.TransactionStateError{TxID: "", State: "NONE", Reason: "savepoint rollback without active transaction"}
	}
	return db.txman.RollbackToSavepoint(txID, savepointID)
}

// ReleaseSavepoint descarta o savepoint na transação da sessão default.
func (db *Database) ReleaseSavepoint(savepointID string) error {
	txID := db.GetCurrentTransactionID()
	if txID == "" || db.txman == nil {
		return &errors.TransactionStateError{TxID: "", State: "NONE", Reason: "savepoint release without active transaction"}
	}
	return db.txman.ReleaseSavepoint(txID, savepointID)
}

// ListSavepoints lista os savepoints da transação da sessão default.
func (db *Database) ListSavepoints() []string {
	txID := db.GetCurrentTransactionID()
	if txID == "" || db.txman == nil {
		return nil
	}
	return db.txman.ListSavepoints(txID)
}

// AddChangeListener registra um listener de commits.
func (db *Database) AddChangeListener(l txn.ChangeListener) txn.ListenerHandle {
	if db.txman == nil {
		return 0
	}
	return db.txman.AddChangeListener(l)
}

// RemoveChangeListener remove um listener registrado.
func (db *Database) RemoveChangeListener(h txn.ListenerHandle) {
	if db.txman != nil {
		db.txman.RemoveChangeListener(h)
	}
}

// TransactionManager expõe o coordenador para usos avançados (testes,
// recursos custom).
func (db *Database) TransactionManager() *txn.Manager { return db.txman }
