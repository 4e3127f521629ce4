package storage

import (
	"sort"
	"strconv"
	"time"

	"github.com/bobboyms/docstore/pkg/index"
)

// Tipos de backend primário e de adapter de persistência.
const (
	ListKindMemory  = "list"    // lista em memória, snapshot em arquivo único
	ListKindPerFile = "perfile" // um arquivo JSON por registro

	AdapterKindMemory = "memory"
	AdapterKindFile   = "file"
)

// TTLIndexField é o índice oculto que rastreia o instante de inserção
// quando a coleção tem TTL.
const TTLIndexField = "__ttltime"

// WildcardKey marca a definição de índice template aplicada a cada campo
// de topo novo visto nos registros.
const WildcardKey = "*"

// IdentityDef descreve o campo de identidade da coleção.
type IdentityDef struct {
	Name string // default "id"
	Auto bool
	Gen  string // nome no registry; default autoIncIdGen
}

func (d IdentityDef) withDefaults() IdentityDef {
	if d.Name == "" {
		d.Name = "id"
	}
	if d.Gen == "" {
		d.Gen = GenAutoInc
	}
	return d
}

// CollectionConfig é a configuração imutável de uma coleção.
type CollectionConfig struct {
	Name   string
	Root   string
	TTL    string // duração Go ("1s") ou milissegundos ("1500")
	Rotate string // expressão cron; liga arquivamento agendado
	Audit  bool

	// Schema JSON opcional validado em toda escrita
	Schema map[string]any

	Identity    IdentityDef
	ListKind    string // list | perfile
	AdapterKind string // memory | file
	Indexes     []index.IndexDef
}

func (c CollectionConfig) withDefaults() CollectionConfig {
	c.Identity = c.Identity.withDefaults()
	if c.ListKind == "" {
		c.ListKind = ListKindMemory
	}
	if c.AdapterKind == "" {
		c.AdapterKind = AdapterKindFile
	}
	return c
}

// ParseTTL aceita uma duração Go ou um número de milissegundos.
func ParseTTL(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

// StoredIdentity é a forma persistida do descritor de identidade.
type StoredIdentity struct {
	Name string `json:"name" bson:"name"`
	Auto bool   `json:"auto,omitempty" bson:"auto,omitempty"`
	Gen  string `json:"gen,omitempty" bson:"gen,omitempty"`
}

// StoredConfig é a forma persistida da configuração (manifesto de schema e
// snapshots). Índices e geradores carregam apenas nomes.
type StoredConfig struct {
	Name        string                          `json:"name" bson:"name"`
	Root        string                          `json:"root,omitempty" bson:"root,omitempty"`
	TTL         string                          `json:"ttl,omitempty" bson:"ttl,omitempty"`
	Rotate      string                          `json:"rotate,omitempty" bson:"rotate,omitempty"`
	Audit       bool                            `json:"audit,omitempty" bson:"audit,omitempty"`
	ListKind    string                          `json:"list" bson:"list"`
	AdapterKind string                          `json:"adapter" bson:"adapter"`
	Identity    StoredIdentity                  `json:"identity" bson:"identity"`
	Indexes     map[string]index.StoredIndexDef `json:"indexes" bson:"indexes"`
	Schema      map[string]any                  `json:"schema,omitempty" bson:"schema,omitempty"`
}

// ToStored converte a configuração viva para a forma persistida.
func (c CollectionConfig) ToStored() StoredConfig {
	c = c.withDefaults()
	stored := StoredConfig{
		Name:        c.Name,
		Root:        c.Root,
		TTL:         c.TTL,
		Rotate:      c.Rotate,
		Audit:       c.Audit,
		ListKind:    c.ListKind,
		AdapterKind: c.AdapterKind,
		Identity:    StoredIdentity{Name: c.Identity.Name, Auto: c.Identity.Auto, Gen: c.Identity.Gen},
		Indexes:     make(map[string]index.StoredIndexDef, len(c.Indexes)),
		Schema:      c.Schema,
	}
	for _, def := range c.Indexes {
		stored.Indexes[def.Name()] = def.ToStored()
	}
	return stored
}

// ConfigFromStored reconstrói a configuração viva.
func ConfigFromStored(s StoredConfig) CollectionConfig {
	cfg := CollectionConfig{
		Name:        s.Name,
		Root:        s.Root,
		TTL:         s.TTL,
		Rotate:      s.Rotate,
		Audit:       s.Audit,
		ListKind:    s.ListKind,
		AdapterKind: s.AdapterKind,
		Identity:    IdentityDef{Name: s.Identity.Name, Auto: s.Identity.Auto, Gen: s.Identity.Gen},
		Schema:      s.Schema,
	}
	names := make([]string, 0, len(s.Indexes))
	for name := range s.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cfg.Indexes = append(cfg.Indexes, index.FromStored(s.Indexes[name]))
	}
	return cfg.withDefaults()
}
