package list

import (
	"github.com/bobboyms/docstore/pkg/types"
)

// Validator é consultado antes de toda escrita. Implementações retornam
// *errors.ValidationError quando o documento é rejeitado.
type Validator interface {
	Validate(record types.Record) error
}

// Blob é a forma persistível de um backend de armazenamento (§ layout em
// disco): counter é o gerador monotônico de identidade, _count o número de
// registros vivos, _counter o total de inserções já feitas e hash o mapa
// identidade -> registro (ou envelope de auditoria).
type Blob struct {
	Counter uint64         `json:"counter" bson:"counter"`
	Count   int            `json:"_count" bson:"_count"`
	Total   uint64         `json:"_counter" bson:"_counter"`
	Hash    map[string]any `json:"hash" bson:"hash"`
	Order   []string       `json:"order,omitempty" bson:"order,omitempty"`
}

// Storage é o contrato comum dos backends primários de registro.
// Get retorna o payload vivo (nunca um envelope); escrever valida e, com
// auditoria ligada, acumula um diff JSON por atualização.
type Storage interface {
	Get(id string) (types.Record, bool)
	Set(id string, record types.Record) (types.Record, error)
	Update(id string, record types.Record) (types.Record, error)
	Delete(id string) (types.Record, error)
	Reset() error

	// Forward itera na ordem do backend (inserção para List, identidade
	// para o armazenamento por arquivo). Retornar false interrompe.
	Forward(fn func(id string, record types.Record) bool)
	Backward(fn func(id string, record types.Record) bool)

	Len() int
	Counter() uint64
	NextCounter() uint64

	Persist() (*Blob, error)
	Load(blob *Blob) error
}
