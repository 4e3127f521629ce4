package list

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bobboyms/docstore/pkg/btree"
	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/types"
)

const defaultCacheSize = 512

// FileStorage guarda um registro por arquivo: <root>/<coleção>/<id>.json em
// JSON estendido. Uma B+ Tree mapeia identidade -> nome de arquivo e um
// cache LRU evita releituras. Forward itera em ordem de identidade.
type FileStorage struct {
	mu        sync.Mutex
	fs        afero.Fs
	dir       string
	tree      *btree.BPlusTree
	cache     *lru.Cache[string, types.Record]
	counter   uint64
	total     uint64
	audit     bool
	validator Validator
	name      string
}

// NewFileStorage abre (ou cria) o diretório da coleção e indexa os
// arquivos existentes.
func NewFileStorage(fs afero.Fs, dir, name string, validator Validator, audit bool) (*FileStorage, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, &errors.IOError{Op: "mkdir", Path: dir, Err: err}
	}

	cache, err := lru.New[string, types.Record](defaultCacheSize)
	if err != nil {
		return nil, err
	}

	s := &FileStorage{
		fs:        fs,
		dir:       dir,
		tree:      btree.NewUnique(btree.DefaultDegree, nil),
		cache:     cache,
		audit:     audit,
		validator: validator,
		name:      name,
	}

	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

// scan reconstrói a árvore de identidade a partir do diretório.
func (s *FileStorage) scan() error {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return &errors.IOError{Op: "readdir", Path: s.dir, Err: err}
	}
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			continue
		}
		if info.Name() == "metadata.json" {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(info.Name(), ".json"))
		if err != nil {
			continue
		}
		if err := s.tree.Insert(types.VarcharKey(id), info.Name()); err != nil {
			return err
		}
		s.total++
	}
	return nil
}

func (s *FileStorage) fileName(id string) string {
	return url.PathEscape(id) + ".json"
}

func (s *FileStorage) filePath(id string) string {
	return filepath.Join(s.dir, s.fileName(id))
}

func (s *FileStorage) validate(record types.Record) error {
	if s.validator == nil {
		return nil
	}
	return s.validator.Validate(record)
}

func (s *FileStorage) readStored(id string) (any, bool) {
	data, err := afero.ReadFile(s.fs, s.filePath(id))
	if err != nil {
		return nil, false
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, false
	}
	if env, isEnv := envelopeFromStored(map[string]any(doc)); isEnv {
		return env, true
	}
	return types.Record(doc), true
}

func (s *FileStorage) writeStored(id string, v any) error {
	data, err := bson.MarshalExtJSON(v, false, false)
	if err != nil {
		return err
	}

	path := s.filePath(id)
	tmpPath := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmpPath, data, 0644); err != nil {
		return &errors.IOError{Op: "write", Path: tmpPath, Err: err}
	}
	if err := s.fs.Rename(tmpPath, path); err != nil {
		return &errors.IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// Get retorna o payload vivo do registro.
func (s *FileStorage) Get(id string) (types.Record, bool) {
	if rec, ok := s.cache.Get(id); ok {
		return rec, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.tree.FindFirst(types.VarcharKey(id)); !found {
		return nil, false
	}
	stored, ok := s.readStored(id)
	if !ok {
		return nil, false
	}
	if env, isEnv := stored.(*AuditEnvelope); isEnv {
		if env.Deleted != 0 {
			return nil, false
		}
		s.cache.Add(id, env.Data)
		return env.Data, true
	}
	rec := stored.(types.Record)
	s.cache.Add(id, rec)
	return rec, true
}

// Set insere (ou substitui) o registro sob a identidade dada.
func (s *FileStorage) Set(id string, record types.Record) (types.Record, error) {
	if err := s.validate(record); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.tree.FindFirst(types.VarcharKey(id))

	var stored any
	if s.audit {
		if exists {
			if prev, ok := s.readStored(id); ok {
				if env, isEnv := prev.(*AuditEnvelope); isEnv && env.Deleted == 0 {
					if err := env.applyUpdate(record); err != nil {
						return nil, err
					}
					stored = env
				}
			}
		}
		if stored == nil {
			stored = newEnvelope(record[idFieldOf(record)], record)
		}
	} else {
		stored = record
	}

	if err := s.writeStored(id, stored); err != nil {
		return nil, err
	}
	if !exists {
		if err := s.tree.Insert(types.VarcharKey(id), s.fileName(id)); err != nil {
			return nil, err
		}
		s.total++
	}
	s.cache.Add(id, record)
	return record, nil
}

// Update troca o payload de um registro existente.
func (s *FileStorage) Update(id string, record types.Record) (types.Record, error) {
	if err := s.validate(record); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.tree.FindFirst(types.VarcharKey(id)); !found {
		return nil, &errors.RecordNotFoundError{Collection: s.name, ID: id}
	}

	var stored any = record
	if s.audit {
		prev, ok := s.readStored(id)
		if !ok {
			return nil, &errors.RecordNotFoundError{Collection: s.name, ID: id}
		}
		if env, isEnv := prev.(*AuditEnvelope); isEnv {
			if env.Deleted != 0 {
				return nil, &errors.RecordNotFoundError{Collection: s.name, ID: id}
			}
			if err := env.applyUpdate(record); err != nil {
				return nil, err
			}
			stored = env
		}
	}

	if err := s.writeStored(id, stored); err != nil {
		return nil, err
	}
	s.cache.Add(id, record)
	return record, nil
}

// Delete remove o arquivo do registro (tombstone quando auditoria ligada).
func (s *FileStorage) Delete(id string) (types.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.tree.FindFirst(types.VarcharKey(id)); !found {
		return nil, &errors.RecordNotFoundError{Collection: s.name, ID: id}
	}

	stored, ok := s.readStored(id)
	if !ok {
		return nil, &errors.RecordNotFoundError{Collection: s.name, ID: id}
	}

	s.cache.Remove(id)

	if env, isEnv := stored.(*AuditEnvelope); isEnv {
		if env.Deleted != 0 {
			return nil, &errors.RecordNotFoundError{Collection: s.name, ID: id}
		}
		env.markDeleted()
		if err := s.writeStored(id, env); err != nil {
			return nil, err
		}
		return env.Data, nil
	}

	rec := stored.(types.Record)
	if err := s.fs.Remove(s.filePath(id)); err != nil {
		return nil, &errors.IOError{Op: "remove", Path: s.filePath(id), Err: err}
	}
	s.tree.Remove(types.VarcharKey(id))
	return rec, nil
}

// Reset apaga todos os arquivos de registro.
func (s *FileStorage) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return &errors.IOError{Op: "readdir", Path: s.dir, Err: err}
	}
	for _, info := range infos {
		if info.IsDir() || info.Name() == "metadata.json" {
			continue
		}
		if err := s.fs.Remove(filepath.Join(s.dir, info.Name())); err != nil && !os.IsNotExist(err) {
			return &errors.IOError{Op: "remove", Path: info.Name(), Err: err}
		}
	}

	s.tree.Reset()
	s.cache.Purge()
	s.counter = 0
	s.total = 0
	return nil
}

// Forward itera em ordem de identidade (ordem da árvore). Os ids são
// coletados antes da leitura para não segurar o latch da árvore durante o
// I/O dos arquivos.
func (s *FileStorage) Forward(fn func(id string, record types.Record) bool) {
	for _, id := range s.orderedIDs() {
		rec, ok := s.Get(id)
		if !ok {
			continue
		}
		if !fn(id, rec) {
			return
		}
	}
}

// Backward itera em ordem inversa de identidade.
func (s *FileStorage) Backward(fn func(id string, record types.Record) bool) {
	var ids []string
	s.tree.EachReverse(func(k types.Comparable, _ string) bool {
		ids = append(ids, string(k.(types.VarcharKey)))
		return true
	})
	for _, id := range ids {
		rec, ok := s.Get(id)
		if !ok {
			continue
		}
		if !fn(id, rec) {
			return
		}
	}
}

func (s *FileStorage) orderedIDs() []string {
	var ids []string
	s.tree.Each(func(k types.Comparable, _ string) bool {
		ids = append(ids, string(k.(types.VarcharKey)))
		return true
	})
	return ids
}

// Len retorna o número de registros vivos.
func (s *FileStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	s.tree.Each(func(k types.Comparable, _ string) bool {
		count++
		return true
	})
	if s.audit {
		// Tombstones continuam na árvore; conta só os vivos
		count = 0
		s.tree.Each(func(k types.Comparable, _ string) bool {
			id := string(k.(types.VarcharKey))
			if stored, ok := s.readStored(id); ok {
				if env, isEnv := stored.(*AuditEnvelope); isEnv {
					if env.Deleted == 0 {
						count++
					}
					return true
				}
				count++
			}
			return true
		})
	}
	return count
}

func (s *FileStorage) Counter() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

func (s *FileStorage) NextCounter() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return s.counter
}

// Persist devolve só os contadores: os registros já estão nos arquivos.
func (s *FileStorage) Persist() (*Blob, error) {
	// Len conta só os registros vivos (tombstones de auditoria ficam fora)
	live := s.Len()
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Blob{
		Counter: s.counter,
		Count:   live,
		Total:   s.total,
	}, nil
}

// Load restaura contadores e reindexa o diretório.
func (s *FileStorage) Load(blob *Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter = blob.Counter
	s.tree.Reset()
	s.cache.Purge()
	if err := s.scan(); err != nil {
		return err
	}
	// scan soma um por arquivo; o total persistido prevalece
	s.total = blob.Total
	return nil
}
