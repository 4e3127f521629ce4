package txn

import (
	"sync"
	"time"
)

// IsolationLevel da transação. O modelo de executor único faz snapshot
// isolation degenerar em execução serial; READ_COMMITTED muda apenas a
// visibilidade de leituras entre statements.
type IsolationLevel string

const (
	ReadCommitted     IsolationLevel = "READ_COMMITTED"
	SnapshotIsolation IsolationLevel = "SNAPSHOT_ISOLATION"
)

// Status do ciclo de vida 2PC.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPreparing Status = "PREPARING"
	StatusPrepared  Status = "PREPARED"
	StatusCommitted Status = "COMMITTED"
	StatusAborted   Status = "ABORTED"
)

// Options de uma transação.
type Options struct {
	Timeout        time.Duration
	IsolationLevel IsolationLevel
}

// DefaultOptions: 30s de timeout, snapshot isolation.
func DefaultOptions() Options {
	return Options{
		Timeout:        30 * time.Second,
		IsolationLevel: SnapshotIsolation,
	}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.IsolationLevel == "" {
		o.IsolationLevel = SnapshotIsolation
	}
	return o
}

// ChangeRecord descreve uma mutação feita dentro da transação. Entregue
// aos change listeners quando (e somente quando) a transação commita.
type ChangeRecord struct {
	Type       string `json:"type"` // insert | update | delete
	Collection string `json:"collection"`
	Key        any    `json:"key"`
	OldValue   any    `json:"oldValue,omitempty"`
	NewValue   any    `json:"newValue,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// TransactionalResource é um participante do two-phase commit.
type TransactionalResource interface {
	Name() string
	Prepare(txID string) (bool, error)
	Finalize(txID string) error
	Rollback(txID string) error
}

// SavepointResource é um participante capaz de capturar e restaurar o
// estado bufferizado para savepoints.
type SavepointResource interface {
	SnapshotState(txID string) (any, error)
	RestoreState(txID string, snapshot any) error
}

// Savepoint marca um ponto dentro da transação para rollback parcial.
type Savepoint struct {
	ID        string
	Name      string
	CreatedAt time.Time

	snapshots map[string]any // por recurso
	changeLen int            // tamanho de changes no momento da captura
}

// Transaction é o estado de uma transação ativa.
type Transaction struct {
	ID        string
	StartTime time.Time
	Options   Options

	mu         sync.Mutex
	status     Status
	changes    []ChangeRecord
	resources  []TransactionalResource
	byName     map[string]TransactionalResource
	savepoints []*Savepoint
}

func newTransaction(id string, opts Options) *Transaction {
	return &Transaction{
		ID:        id,
		StartTime: time.Now(),
		Options:   opts.withDefaults(),
		status:    StatusActive,
		byName:    make(map[string]TransactionalResource),
	}
}

// Status retorna o estado atual.
func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Transaction) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// Enlist registra um recurso afetado (idempotente por nome).
func (t *Transaction) Enlist(res TransactionalResource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byName[res.Name()]; exists {
		return
	}
	t.byName[res.Name()] = res
	t.resources = append(t.resources, res)
}

// RecordChange anexa uma mutação ao histórico da transação.
func (t *Transaction) RecordChange(c ChangeRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.changes = append(t.changes, c)
}

// Changes devolve uma cópia das mutações registradas.
func (t *Transaction) Changes() []ChangeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ChangeRecord, len(t.changes))
	copy(out, t.changes)
	return out
}

// Expired reporta se a transação estourou o timeout.
func (t *Transaction) Expired() bool {
	return time.Since(t.StartTime) > t.Options.Timeout
}

func (t *Transaction) resourcesSnapshot() []TransactionalResource {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TransactionalResource, len(t.resources))
	copy(out, t.resources)
	return out
}
