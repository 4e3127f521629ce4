package list

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wI2L/jsondiff"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bobboyms/docstore/pkg/types"
)

// HistoryEntry registra uma mutação no envelope de auditoria. Delta é um
// patch RFC 6902 do payload anterior para o novo.
type HistoryEntry struct {
	Version int   `json:"version" bson:"version"`
	Delta   any   `json:"delta" bson:"delta"`
	Date    int64 `json:"date" bson:"date"`
}

// AuditEnvelope embrulha o payload quando a coleção liga auditoria.
// Deletes viram tombstones: o envelope fica no hash com Deleted marcado.
type AuditEnvelope struct {
	ID          any            `json:"id" bson:"id"`
	Version     int            `json:"version" bson:"version"`
	NextVersion int            `json:"next_version" bson:"next_version"`
	Created     int64          `json:"created" bson:"created"`
	Updated     int64          `json:"updated,omitempty" bson:"updated,omitempty"`
	Deleted     int64          `json:"deleted,omitempty" bson:"deleted,omitempty"`
	Data        types.Record   `json:"data" bson:"data"`
	History     []HistoryEntry `json:"history" bson:"history"`
}

// newEnvelope cria o envelope de um registro recém-inserido.
func newEnvelope(id any, record types.Record) *AuditEnvelope {
	return &AuditEnvelope{
		ID:          id,
		Version:     1,
		NextVersion: 2,
		Created:     time.Now().UnixMilli(),
		Data:        record,
	}
}

// applyUpdate acumula o diff da versão anterior e troca o payload.
func (e *AuditEnvelope) applyUpdate(record types.Record) error {
	delta, err := diffRecords(e.Data, record)
	if err != nil {
		return err
	}
	e.History = append(e.History, HistoryEntry{
		Version: e.Version,
		Delta:   delta,
		Date:    time.Now().UnixMilli(),
	})
	e.Version = e.NextVersion
	e.NextVersion++
	e.Updated = time.Now().UnixMilli()
	e.Data = record
	return nil
}

// markDeleted transforma o envelope em tombstone.
func (e *AuditEnvelope) markDeleted() {
	e.Deleted = time.Now().UnixMilli()
}

// diffRecords produz o patch RFC 6902 entre dois payloads.
func diffRecords(oldRec, newRec types.Record) (any, error) {
	patch, err := jsondiff.Compare(map[string]any(oldRec), map[string]any(newRec))
	if err != nil {
		return nil, fmt.Errorf("audit diff: %w", err)
	}
	if patch == nil {
		return []any{}, nil
	}
	// Normaliza para estruturas JSON simples, persistíveis no snapshot
	raw, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("audit diff marshal: %w", err)
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("audit diff unmarshal: %w", err)
	}
	return out, nil
}

// envelopeFromStored reidrata um envelope vindo de um Blob (que passou por
// JSON ou BSON e perdeu o tipo concreto).
func envelopeFromStored(v any) (*AuditEnvelope, bool) {
	switch stored := v.(type) {
	case *AuditEnvelope:
		return stored, true
	case AuditEnvelope:
		return &stored, true
	}
	if rec, ok := types.AsRecord(v); ok {
		return decodeEnvelopeMap(rec)
	}
	return nil, false
}

func decodeEnvelopeMap(m map[string]any) (*AuditEnvelope, bool) {
	if _, hasVersion := m["next_version"]; !hasVersion {
		return nil, false
	}
	raw, err := bson.Marshal(bson.M(m))
	if err != nil {
		return nil, false
	}
	var env AuditEnvelope
	if err := bson.Unmarshal(raw, &env); err != nil {
		return nil, false
	}
	return &env, true
}
