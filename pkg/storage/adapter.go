package storage

import (
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bobboyms/docstore/pkg/btree"
	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/index"
	"github.com/bobboyms/docstore/pkg/list"
)

// Snapshot é a forma serializável do estado de uma coleção: configuração,
// blob do backend primário, dumps portáveis das árvores de índice e as
// definições armazenadas.
type Snapshot struct {
	Config    StoredConfig                     `json:"config" bson:"config"`
	List      *list.Blob                       `json:"list" bson:"list"`
	Indexes   map[string][]btree.PortableEntry `json:"indexes" bson:"indexes"`
	IndexDefs map[string]index.StoredIndexDef  `json:"indexDefs" bson:"indexDefs"`
}

// Adapter persiste e restaura snapshots de coleção. A coleção monta o
// snapshot e o passa explicitamente: o adapter nunca guarda referência de
// volta para ela.
type Adapter interface {
	Restore(name string) (*Snapshot, bool, error)
	Store(name string, snap *Snapshot) error
	Clone() Adapter
}

// AdapterMemory guarda o último snapshot por nome na memória do processo.
// Usado por bancos ":memory:" e testes.
type AdapterMemory struct {
	mu        sync.Mutex
	snapshots map[string]*Snapshot
}

func NewAdapterMemory() *AdapterMemory {
	return &AdapterMemory{snapshots: make(map[string]*Snapshot)}
}

func (a *AdapterMemory) Restore(name string) (*Snapshot, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap, ok := a.snapshots[name]
	if !ok {
		return nil, false, nil
	}
	return snap, true, nil
}

func (a *AdapterMemory) Store(name string, snap *Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshots[name] = snap
	return nil
}

func (a *AdapterMemory) Clone() Adapter {
	return NewAdapterMemory()
}

// AdapterFile persiste snapshots em disco, em JSON estendido: coleções de
// arquivo único em <root>/<nome>.json; coleções por-arquivo gravam
// <root>/<nome>/metadata.json e deixam os registros com o FileStorage.
type AdapterFile struct {
	fs   afero.Fs
	root string
}

func NewAdapterFile(fs afero.Fs, root string) *AdapterFile {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &AdapterFile{fs: fs, root: root}
}

func (a *AdapterFile) pathFor(name string, perFile bool) string {
	if perFile {
		return filepath.Join(a.root, name, "metadata.json")
	}
	return filepath.Join(a.root, name+".json")
}

func (a *AdapterFile) Restore(name string) (*Snapshot, bool, error) {
	// Tenta as duas formas: arquivo único, depois metadata por-arquivo
	for _, perFile := range []bool{false, true} {
		path := a.pathFor(name, perFile)
		exists, err := afero.Exists(a.fs, path)
		if err != nil {
			return nil, false, &errors.IOError{Op: "stat", Path: path, Err: err}
		}
		if !exists {
			continue
		}
		data, err := afero.ReadFile(a.fs, path)
		if err != nil {
			return nil, false, &errors.IOError{Op: "read", Path: path, Err: err}
		}
		var snap Snapshot
		if err := bson.UnmarshalExtJSON(data, false, &snap); err != nil {
			return nil, false, &errors.IOError{Op: "decode", Path: path, Err: err}
		}
		return &snap, true, nil
	}
	return nil, false, nil
}

func (a *AdapterFile) Store(name string, snap *Snapshot) error {
	perFile := snap.Config.ListKind == ListKindPerFile
	path := a.pathFor(name, perFile)

	if err := a.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &errors.IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}

	data, err := bson.MarshalExtJSON(snap, false, false)
	if err != nil {
		return err
	}

	// Escrita atômica: temp + rename
	tmpPath := path + ".tmp"
	if err := afero.WriteFile(a.fs, tmpPath, data, 0644); err != nil {
		return &errors.IOError{Op: "write", Path: tmpPath, Err: err}
	}
	if err := a.fs.Rename(tmpPath, path); err != nil {
		return &errors.IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func (a *AdapterFile) Clone() Adapter {
	return NewAdapterFile(a.fs, a.root)
}
