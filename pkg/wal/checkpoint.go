package wal

import (
	"time"

	"github.com/google/uuid"
)

// Checkpoint marca um ponto consistente do log: tudo antes de
// SequenceNumber pertence a transações resolvidas, exceto as listadas em
// ActiveTransactionIDs. Após um checkpoint bem-sucedido o log pode ser
// truncado até ele.
type Checkpoint struct {
	CheckpointID         string   `json:"checkpointId"`
	Timestamp            int64    `json:"timestamp"`
	SequenceNumber       uint64   `json:"sequenceNumber"`
	ActiveTransactionIDs []string `json:"activeTransactionIds"`
}

// CreateCheckpoint captura a sequência atual e as transações ativas e
// grava uma entrada DATA referenciando o checkpoint.
func (m *FileWALManager) CreateCheckpoint(activeTxIDs []string) (*Checkpoint, error) {
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
	if err := m.Flush(); err != nil {
		return nil, err
	}
	return cp, nil
}
