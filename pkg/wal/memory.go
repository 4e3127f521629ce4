package wal

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MemoryWALManager mantém o log só em memória. Mesma semântica do arquivo,
// sem I/O: usado por bancos ":memory:" e por testes.
type MemoryWALManager struct {
	mu       sync.Mutex
	entries  []*Entry
	sequence uint64
	logger   zerolog.Logger
	appliers map[string]Applier
	closed   bool
}

func NewMemoryManager(logger zerolog.Logger) *MemoryWALManager {
	return &MemoryWALManager{
		logger:   logger,
		appliers: make(map[string]Applier),
	}
}

func (m *MemoryWALManager) WriteEntry(e *Entry) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequence++
	e.SequenceNumber = m.sequence
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}

	checksum, err := ComputeChecksum(e)
	if err != nil {
		return 0, err
	}
	e.Checksum = checksum

	m.entries = append(m.entries, e)
	return e.SequenceNumber, nil
}

func (m *MemoryWALManager) ReadEntries(fromSequence uint64) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Entry
	for _, e := range m.entries {
		if e.SequenceNumber >= fromSequence && ValidateChecksum(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryWALManager) Truncate(beforeSequence uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.SequenceNumber >= beforeSequence {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return nil
}

func (m *MemoryWALManager) Flush() error { return nil }

func (m *MemoryWALManager) CreateCheckpoint(activeTxIDs []string) (*Checkpoint, error) {
	cp := &Checkpoint{
		CheckpointID:         uuid.NewString(),
		Timestamp:            time.Now().UnixMilli(),
		SequenceNumber:       m.CurrentSequence(),
		ActiveTransactionIDs: activeTxIDs,
	}
	entry := &Entry{
		TransactionID: cp.CheckpointID,
		Type:          EntryData,
		Operation:     OpStore,
		Data:          EntryPayload{CheckpointID: cp.CheckpointID},
	}
	if _, err := m.WriteEntry(entry); err != nil {
		return nil, err
	}
	return cp, nil
}

func (m *MemoryWALManager) RegisterApplier(collection string, a Applier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appliers[collection] = a
}

func (m *MemoryWALManager) CurrentSequence() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sequence
}

func (m *MemoryWALManager) Recover() error {
	m.mu.Lock()
	entries := make([]*Entry, 0, len(m.entries))
	corrupt := 0
	for _, e := range m.entries {
		if !ValidateChecksum(e) {
			corrupt++
			break // prefixo commitado termina na primeira corrupção
		}
		entries = append(entries, e)
	}
	appliers := make(map[string]Applier, len(m.appliers))
	for k, v := range m.appliers {
		appliers[k] = v
	}
	logger := m.logger
	m.mu.Unlock()

	applied, discarded, err := replay(entries, appliers)
	if err != nil {
		return err
	}
	logger.Info().Int("applied", applied).Int("discarded", discarded).
		Int("corrupted", corrupt).Msg("wal recovery finished")
	return nil
}

func (m *MemoryWALManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
