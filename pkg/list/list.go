package list

import (
	"sort"
	"sync"

	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/types"
)

// List é o backend em memória: mapa identidade -> registro com contador
// monotônico de inserção. Forward devolve os registros na ordem de
// inserção.
type List struct {
	mu        sync.RWMutex
	hash      map[string]any // payload cru ou *AuditEnvelope
	order     []string
	counter   uint64 // gerador de identidade (autoinc)
	total     uint64 // total de inserções já feitas
	count     int    // registros vivos
	audit     bool
	validator Validator
	name      string
}

// NewList cria uma lista vazia. validator pode ser nil; audit liga o
// envelope de versões.
func NewList(name string, validator Validator, audit bool) *List {
	return &List{
		hash:      make(map[string]any),
		validator: validator,
		audit:     audit,
		name:      name,
	}
}

func (l *List) validate(record types.Record) error {
	if l.validator == nil {
		return nil
	}
	return l.validator.Validate(record)
}

// Get retorna o payload vivo do registro.
func (l *List) Get(id string) (types.Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.getLocked(id)
}

func (l *List) getLocked(id string) (types.Record, bool) {
	v, ok := l.hash[id]
	if !ok {
		return nil, false
	}
	if env, isEnv := envelopeFromStored(v); isEnv {
		if env.Deleted != 0 {
			return nil, false
		}
		return env.Data, true
	}
	if rec, isRec := types.AsRecord(v); isRec {
		return rec, true
	}
	return nil, false
}

// Set insere (ou substitui) o registro sob a identidade dada.
func (l *List) Set(id string, record types.Record) (types.Record, error) {
	if err := l.validate(record); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, exists := l.hash[id]
	revived := false
	if exists {
		env, isEnv := envelopeFromStored(existing)
		revived = isEnv && env.Deleted != 0
		if isEnv && env.Deleted == 0 {
			// Substituição direta conta como update para o envelope
			if err := env.applyUpdate(record); err != nil {
				return nil, err
			}
			l.hash[id] = env
			return record, nil
		}
	}

	if l.audit {
		l.hash[id] = newEnvelope(record[idFieldOf(record)], record)
	} else {
		l.hash[id] = record
	}
	if !exists {
		l.order = append(l.order, id)
		l.total++
		l.count++
	} else if revived {
		// Reinserção sobre um tombstone volta a contar como registro vivo
		l.total++
		l.count++
	}
	return record, nil
}

// Update troca o payload de um registro existente.
func (l *List) Update(id string, record types.Record) (types.Record, error) {
	if err := l.validate(record); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.hash[id]
	if !ok {
		return nil, &errors.RecordNotFoundError{Collection: l.name, ID: id}
	}

	if env, isEnv := envelopeFromStored(v); isEnv {
		if env.Deleted != 0 {
			return nil, &errors.RecordNotFoundError{Collection: l.name, ID: id}
		}
		if err := env.applyUpdate(record); err != nil {
			return nil, err
		}
		l.hash[id] = env
		return record, nil
	}

	l.hash[id] = record
	return record, nil
}

// Delete remove o registro (tombstone quando auditoria está ligada) e
// retorna o payload removido.
func (l *List) Delete(id string) (types.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.hash[id]
	if !ok {
		return nil, &errors.RecordNotFoundError{Collection: l.name, ID: id}
	}

	if env, isEnv := envelopeFromStored(v); isEnv {
		if env.Deleted != 0 {
			return nil, &errors.RecordNotFoundError{Collection: l.name, ID: id}
		}
		removed := env.Data
		env.markDeleted()
		l.hash[id] = env
		l.count--
		return removed, nil
	}

	rec, _ := l.getLocked(id)
	delete(l.hash, id)
	l.removeFromOrder(id)
	l.count--
	return rec, nil
}

func (l *List) removeFromOrder(id string) {
	for i, existing := range l.order {
		if existing == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}

// Reset limpa registros e contadores.
func (l *List) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.hash = make(map[string]any)
	l.order = nil
	l.counter = 0
	l.total = 0
	l.count = 0
	return nil
}

// Forward itera na ordem de inserção.
func (l *List) Forward(fn func(id string, record types.Record) bool) {
	l.mu.RLock()
	ids := make([]string, len(l.order))
	copy(ids, l.order)
	l.mu.RUnlock()

	for _, id := range ids {
		rec, ok := l.Get(id)
		if !ok {
			continue // tombstone
		}
		if !fn(id, rec) {
			return
		}
	}
}

// Backward itera na ordem inversa de inserção.
func (l *List) Backward(fn func(id string, record types.Record) bool) {
	l.mu.RLock()
	ids := make([]string, len(l.order))
	copy(ids, l.order)
	l.mu.RUnlock()

	for i := len(ids) - 1; i >= 0; i-- {
		rec, ok := l.Get(ids[i])
		if !ok {
			continue
		}
		if !fn(ids[i], rec) {
			return
		}
	}
}

// Len retorna o número de registros vivos.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Counter retorna o valor atual do gerador de identidade.
func (l *List) Counter() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counter
}

// NextCounter avança e retorna o gerador monotônico de identidade.
func (l *List) NextCounter() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counter++
	return l.counter
}

// Persist tira o blob serializável da lista.
func (l *List) Persist() (*Blob, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	hash := make(map[string]any, len(l.hash))
	for id, v := range l.hash {
		hash[id] = v
	}
	order := make([]string, len(l.order))
	copy(order, l.order)

	return &Blob{
		Counter: l.counter,
		Count:   l.count,
		Total:   l.total,
		Hash:    hash,
		Order:   order,
	}, nil
}

// Load restaura a lista a partir de um blob.
func (l *List) Load(blob *Blob) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.hash = make(map[string]any, len(blob.Hash))
	for id, v := range blob.Hash {
		if env, isEnv := envelopeFromStored(v); isEnv {
			l.hash[id] = env
			continue
		}
		if rec, ok := types.AsRecord(v); ok {
			l.hash[id] = rec
		} else {
			l.hash[id] = v
		}
	}

	l.counter = blob.Counter
	l.total = blob.Total
	l.count = blob.Count

	if len(blob.Order) > 0 {
		l.order = append([]string(nil), blob.Order...)
	} else {
		// Blobs antigos sem ordem explícita: reconstrói por identidade
		l.order = make([]string, 0, len(l.hash))
		for id := range l.hash {
			l.order = append(l.order, id)
		}
		sort.Strings(l.order)
	}
	return nil
}

// idFieldOf devolve o nome do campo de identidade presente no payload
// ("id" ou "_id", nessa ordem), usado para gravar a identidade no envelope.
// Sem nenhum dos dois devolve "id", cujo valor no payload é nil.
func idFieldOf(record types.Record) string {
	for _, candidate := range []string{"id", "_id"} {
		if _, ok := record[candidate]; ok {
			return candidate
		}
	}
	return "id"
}
