package storage

import (
	"sync"
	"time"

	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/list"
)

// IDGenerator produz valores de identidade para registros novos. O backend
// é passado como contexto: o gerador canônico usa o contador monotônico da
// lista.
type IDGenerator func(backend list.Storage) any

// Nomes dos geradores canônicos, resolvíveis a partir de definições
// serializadas.
const (
	GenAutoInc   = "autoIncIdGen"
	GenTimestamp = "autoTimestamp"
)

var (
	genMu       sync.RWMutex
	genRegistry = map[string]IDGenerator{
		GenAutoInc: func(backend list.Storage) any {
			return int64(backend.NextCounter())
		},
		GenTimestamp: func(backend list.Storage) any {
			return time.Now().UnixMilli()
		},
	}
)

// RegisterIDGenerator adiciona um gerador ao registry do processo.
// Definições serializadas carregam apenas o nome.
func RegisterIDGenerator(name string, gen IDGenerator) {
	genMu.Lock()
	defer genMu.Unlock()
	genRegistry[name] = gen
}

// ResolveIDGenerator resolve um nome para a função registrada. Nomes
// desconhecidos são rejeitados, nunca interpretados.
func ResolveIDGenerator(name string) (IDGenerator, error) {
	if name == "" {
		name = GenAutoInc
	}
	genMu.RLock()
	defer genMu.RUnlock()
	gen, ok := genRegistry[name]
	if !ok {
		return nil, &errors.UnknownGeneratorError{Name: name}
	}
	return gen, nil
}
