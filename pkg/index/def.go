package index

import (
	"strings"
	"sync"

	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/key"
)

// IndexDef descreve um índice: campo único (Key) ou composto (Keys).
type IndexDef struct {
	Key        string
	Keys       []key.Field
	Order      string // asc|desc (campo único)
	Unique     bool
	Sparse     bool
	Required   bool
	IgnoreCase bool
	Auto       bool
	Separator  string
	Process    string // identity | lowercase | compositeKey | custom:<nome>
}

// Fields normaliza a definição para a lista canônica de campos.
func (d IndexDef) Fields() []key.Field {
	if len(d.Keys) > 0 {
		return key.NormalizeFields(d.Keys)
	}
	f := key.NormalizeFields(d.Key)
	if len(f) == 1 && d.Order == key.OrderDesc {
		f[0].Order = key.OrderDesc
	}
	return f
}

// Composite reporta se o índice tem mais de um campo.
func (d IndexDef) Composite() bool { return len(d.Keys) > 1 }

// Name retorna o nome canônico do índice derivado dos campos.
func (d IndexDef) Name() string { return key.IndexName(d.Fields()) }

// StoredIndexDef é a forma JSON persistida de uma definição (manifesto de
// schema e snapshots). Funções nunca são serializadas: gen e process
// carregam só nomes resolvidos em registries na desserialização.
type StoredIndexDef struct {
	Key        string           `json:"key,omitempty" bson:"key,omitempty"`
	Keys       []StoredField    `json:"keys,omitempty" bson:"keys,omitempty"`
	Composite  *StoredComposite `json:"composite,omitempty" bson:"composite,omitempty"`
	Order      string           `json:"order,omitempty" bson:"order,omitempty"`
	Auto       bool             `json:"auto,omitempty" bson:"auto,omitempty"`
	Unique     bool             `json:"unique,omitempty" bson:"unique,omitempty"`
	Sparse     bool             `json:"sparse,omitempty" bson:"sparse,omitempty"`
	Required   bool             `json:"required,omitempty" bson:"required,omitempty"`
	IgnoreCase bool             `json:"ignoreCase,omitempty" bson:"ignoreCase,omitempty"`
	Gen        string           `json:"gen,omitempty" bson:"gen,omitempty"`
	Process    string           `json:"process,omitempty" bson:"process,omitempty"`
}

type StoredField struct {
	Key   string `json:"key" bson:"key"`
	Order string `json:"order,omitempty" bson:"order,omitempty"`
}

type StoredComposite struct {
	Keys      []StoredField `json:"keys" bson:"keys"`
	Separator string        `json:"separator,omitempty" bson:"separator,omitempty"`
}

// ToStored converte a definição para a forma persistível.
func (d IndexDef) ToStored() StoredIndexDef {
	stored := StoredIndexDef{
		Key:        d.Key,
		Order:      d.Order,
		Auto:       d.Auto,
		Unique:     d.Unique,
		Sparse:     d.Sparse,
		Required:   d.Required,
		IgnoreCase: d.IgnoreCase,
		Process:    d.Process,
	}
	if d.Composite() {
		comp := &StoredComposite{Separator: d.Separator}
		for _, f := range d.Fields() {
			comp.Keys = append(comp.Keys, StoredField{Key: f.Key, Order: f.Order})
		}
		stored.Composite = comp
		stored.Key = ""
	}
	return stored
}

// FromStored reconstrói a definição a partir da forma persistida.
func FromStored(s StoredIndexDef) IndexDef {
	d := IndexDef{
		Key:        s.Key,
		Order:      s.Order,
		Auto:       s.Auto,
		Unique:     s.Unique,
		Sparse:     s.Sparse,
		Required:   s.Required,
		IgnoreCase: s.IgnoreCase,
		Process:    s.Process,
	}
	if s.Composite != nil {
		d.Separator = s.Composite.Separator
		for _, f := range s.Composite.Keys {
			d.Keys = append(d.Keys, key.Field{Key: f.Key, Order: f.Order})
		}
	} else if len(s.Keys) > 0 {
		for _, f := range s.Keys {
			d.Keys = append(d.Keys, key.Field{Key: f.Key, Order: f.Order})
		}
	}
	return d
}

// ProcessFunc transforma a chave serializada antes de entrar na árvore.
type ProcessFunc func(encoded string) string

var (
	processMu       sync.RWMutex
	processRegistry = map[string]ProcessFunc{}
)

// RegisterProcess registra uma transformação custom, referenciada em
// definições como "custom:<nome>".
func RegisterProcess(name string, fn ProcessFunc) {
	processMu.Lock()
	defer processMu.Unlock()
	processRegistry[name] = fn
}

// ResolveProcess resolve o nome de uma transformação para a função. A
// enumeração é fechada: nomes desconhecidos são rejeitados, nunca
// interpretados como código.
func ResolveProcess(name string) (ProcessFunc, error) {
	switch name {
	case "", "identity", "compositeKey":
		return func(s string) string { return s }, nil
	case "lowercase":
		return strings.ToLower, nil
	}

	if custom, ok := strings.CutPrefix(name, "custom:"); ok {
		processMu.RLock()
		fn, found := processRegistry[custom]
		processMu.RUnlock()
		if found {
			return fn, nil
		}
	}
	return nil, &errors.UnknownProcessError{Name: name}
}
