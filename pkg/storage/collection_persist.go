package storage

import (
	"github.com/bobboyms/docstore/pkg/btree"
	"github.com/bobboyms/docstore/pkg/index"
)

// storedConfig serializa a configuração refletindo os índices vivos
// (inclusive os criados dinamicamente ou por wildcard).
func (c *Collection) storedConfig() StoredConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storedConfigLocked()
}

func (c *Collection) storedConfigLocked() StoredConfig {
	stored := c.config.ToStored()
	stored.Indexes = make(map[string]index.StoredIndexDef, len(c.indexes))
	for _, mgr := range c.indexes {
		stored.Indexes[mgr.Name()] = mgr.Def().ToStored()
	}
	if c.wildcard != nil {
		stored.Indexes[WildcardKey] = c.wildcard.ToStored()
	}
	return stored
}

// Store monta o snapshot serializável da coleção: configuração, blob da
// lista, dumps portáveis das árvores e definições de índice.
func (c *Collection) Store() (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	blob, err := c.backend.Persist()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Config:    c.storedConfigLocked(),
		List:      blob,
		Indexes:   make(map[string][]btree.PortableEntry, len(c.indexes)),
		IndexDefs: make(map[string]index.StoredIndexDef, len(c.indexes)),
	}
	for _, mgr := range c.indexes {
		snap.Indexes[mgr.Name()] = mgr.Portable()
		snap.IndexDefs[mgr.Name()] = mgr.Def().ToStored()
	}
	return snap, nil
}

// Persist grava o snapshot pelo adapter. name vazio usa o nome da coleção.
func (c *Collection) Persist(name string) error {
	if c.adapter == nil {
		return nil
	}
	if name == "" {
		name = c.name
	}
	snap, err := c.Store()
	if err != nil {
		return err
	}
	return c.adapter.Store(name, snap)
}

// Load restaura o estado do adapter. Índices presentes no snapshot são
// carregados dos dumps; os demais são reconstruídos dos registros.
func (c *Collection) Load(name string) (bool, error) {
	if c.adapter == nil {
		return false, nil
	}
	if name == "" {
		name = c.name
	}

	snap, found, err := c.adapter.Restore(name)
	if err != nil || !found {
		return found, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.List != nil {
		if err := c.backend.Load(snap.List); err != nil {
			return true, err
		}
	}

	// Recria índices definidos no snapshot que ainda não existem
	for idxName, stored := range snap.IndexDefs {
		if _, exists := c.byName[idxName]; exists {
			continue
		}
		if err := c.addIndex(idxName, index.FromStored(stored)); err != nil {
			return true, err
		}
	}

	for _, mgr := range c.indexes {
		entries, ok := snap.Indexes[mgr.Name()]
		if ok {
			if err := mgr.LoadPortable(entries); err == nil {
				continue
			}
		}
		// Dump ausente ou inválido: reconstrói dos registros
		if err := mgr.Rebuild(c.backend.Forward); err != nil {
			return true, err
		}
	}

	c.logger.Debug().Str("collection", c.name).Int("records", c.backend.Len()).
		Msg("collection loaded from adapter")
	return true, nil
}
