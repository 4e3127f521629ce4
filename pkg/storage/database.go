package storage

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/index"
	"github.com/bobboyms/docstore/pkg/txn"
	"github.com/bobboyms/docstore/pkg/types"
	"github.com/bobboyms/docstore/pkg/wal"
)

// MemoryDBName força adapters de memória para todas as coleções.
const MemoryDBName = ":memory:"

// WALOptions configura a integração com o write-ahead log.
type WALOptions struct {
	EnableWAL     bool
	AutoRecovery  bool
	WALPath       string
	FlushInterval time.Duration
	MaxBufferSize int
}

// DatabaseOptions é a configuração imutável do banco.
type DatabaseOptions struct {
	Name               string // ":memory:" liga o modo memória
	Root               string
	EnableTransactions bool
	WALOptions         WALOptions
	Fs                 afero.Fs
	Logger             zerolog.Logger
}

// Session agrupa transações: no máximo uma ativa por sessão.
type Session struct {
	ID   string
	txID string
}

// Database registra coleções nomeadas, persiste o manifesto de schema e
// coordena transações globais por sessão.
type Database struct {
	mu      sync.Mutex
	opts    DatabaseOptions
	fs      afero.Fs
	logger  zerolog.Logger
	dataDir string

	collections map[string]*Collection
	order       []string

	memAdapter *AdapterMemory
	walman     wal.Manager
	txman      *txn.Manager

	sessions       map[string]*Session
	defaultSession *Session
	connected      bool
}

// NewDatabase prepara o banco; Connect abre de fato.
func NewDatabase(opts DatabaseOptions) *Database {
	fs := opts.Fs
	if fs == nil {
		if opts.Name == MemoryDBName {
			fs = afero.NewMemMapFs()
		} else {
			fs = afero.NewOsFs()
		}
	}

	return &Database{
		opts:        opts,
		fs:          fs,
		logger:      opts.Logger,
		dataDir:     filepath.Join(opts.Root, sanitizeDBName(opts.Name)),
		collections: make(map[string]*Collection),
		memAdapter:  NewAdapterMemory(),
		sessions:    make(map[string]*Session),
	}
}

func sanitizeDBName(name string) string {
	if name == MemoryDBName {
		return "memory"
	}
	return name
}

func (db *Database) inMemory() bool { return db.opts.Name == MemoryDBName }

// Connect abre o WAL, carrega o manifesto, restaura as coleções e roda o
// recovery quando configurado.
func (db *Database) Connect() error {
	db.mu.Lock()
	if db.connected {
		db.mu.Unlock()
		return nil
	}
	db.connected = true
	db.mu.Unlock()

	if db.opts.EnableTransactions {
		if db.opts.WALOptions.EnableWAL {
			if db.inMemory() {
				db.walman = wal.NewMemoryManager(db.logger)
			} else {
				walPath := db.opts.WALOptions.WALPath
				if walPath == "" {
					walPath = filepath.Join(db.dataDir, sanitizeDBName(db.opts.Name)+".wal")
				}
				walOpts := wal.DefaultOptions(walPath)
				walOpts.Fs = db.fs
				walOpts.Logger = db.logger
				if db.opts.WALOptions.FlushInterval > 0 {
					walOpts.FlushInterval = db.opts.WALOptions.FlushInterval
				}
				if db.opts.WALOptions.MaxBufferSize > 0 {
					walOpts.MaxBufferSize = db.opts.WALOptions.MaxBufferSize
				}
				manager, err := wal.NewFileManager(walOpts)
				if err != nil {
					return err
				}
				db.walman = manager
			}
		}
		db.txman = txn.NewManager(db.walman, db.logger)
	}

	db.defaultSession = &Session{ID: uuid.NewString()}
	db.sessions[db.defaultSession.ID] = db.defaultSession

	// Restaura as coleções listadas no manifesto
	manifest, err := db.readManifest()
	if err != nil {
		return err
	}
	for _, name := range sortedKeys(manifest) {
		cfg := ConfigFromStored(manifest[name])
		if _, err := db.createCollection(cfg, false); err != nil {
			return err
		}
	}

	// Replay do WAL por cima do estado restaurado
	if db.walman != nil && db.opts.WALOptions.AutoRecovery {
		if err := db.walman.Recover(); err != nil {
			return err
		}
	}

	db.logger.Info().Str("db", db.opts.Name).Int("collections", len(db.collections)).
		Msg("database connected")
	return nil
}

// CreateCollection registra uma coleção nova e atualiza o manifesto.
func (db *Database) CreateCollection(cfg CollectionConfig) (*Collection, error) {
	return db.createCollection(cfg, true)
}

func (db *Database) createCollection(cfg CollectionConfig, persistManifest bool) (*Collection, error) {
	db.mu.Lock()
	if _, exists := db.collections[cfg.Name]; exists {
		db.mu.Unlock()
		return nil, &errors.CollectionAlreadyExistsError{Name: cfg.Name}
	}
	db.mu.Unlock()

	cfg = cfg.withDefaults()
	if cfg.Root == "" {
		cfg.Root = db.dataDir
	}

	var adapter Adapter
	if db.inMemory() || cfg.AdapterKind == AdapterKindMemory {
		adapter = db.memAdapter
		cfg.AdapterKind = AdapterKindMemory
	} else {
		adapter = NewAdapterFile(db.fs, cfg.Root)
	}

	c, err := NewCollection(cfg, db.fs, adapter, db.txman, db.logger)
	if err != nil {
		return nil, err
	}

	if _, err := c.Load(""); err != nil {
		return nil, err
	}

	if db.walman != nil {
		db.walman.RegisterApplier(cfg.Name, c)
	}

	db.mu.Lock()
	db.collections[cfg.Name] = c
	db.order = append(db.order, cfg.Name)
	db.mu.Unlock()

	if persistManifest {
		if err := db.writeManifest(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DropCollection remove a coleção do registro e do manifesto.
func (db *Database) DropCollection(name string) error {
	db.mu.Lock()
	c, ok := db.collections[name]
	if !ok {
		db.mu.Unlock()
		return &errors.CollectionNotFoundError{Name: name}
	}
	delete(db.collections, name)
	for i, existing := range db.order {
		if existing == name {
			db.order = append(db.order[:i], db.order[i+1:]...)
			break
		}
	}
	db.mu.Unlock()

	c.Close()
	return db.writeManifest()
}

// Collection retorna a coleção pelo nome.
func (db *Database) Collection(name string) (*Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.collections[name]
	if !ok {
		return nil, &errors.CollectionNotFoundError{Name: name}
	}
	return c, nil
}

// ListCollections lista os nomes na ordem de criação.
func (db *Database) ListCollections() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, len(db.order))
	copy(out, db.order)
	return out
}

// CreateIndex cria um índice em uma coleção e atualiza o manifesto.
func (db *Database) CreateIndex(collection, name string, def index.IndexDef) error {
	c, err := db.Collection(collection)
	if err != nil {
		return err
	}
	if err := c.CreateIndex(name, def); err != nil {
		return err
	}
	return db.writeManifest()
}

// DropIndex remove um índice de uma coleção e atualiza o manifesto.
func (db *Database) DropIndex(collection, name string) error {
	c, err := db.Collection(collection)
	if err != nil {
		return err
	}
	if err := c.DropIndex(name); err != nil {
		return err
	}
	return db.writeManifest()
}

// Persist grava o snapshot de todas as coleções e o manifesto.
func (db *Database) Persist() error {
	for _, name := range db.ListCollections() {
		c, err := db.Collection(name)
		if err != nil {
			return err
		}
		if err := c.Persist(""); err != nil {
			return err
		}
	}
	return db.writeManifest()
}

// Checkpoint persiste tudo, marca o checkpoint no WAL e trunca o log até
// ele.
func (db *Database) Checkpoint() (*wal.Checkpoint, error) {
	if db.walman == nil {
		return nil, nil
	}
	if err := db.Persist(); err != nil {
		return nil, err
	}

	var active []string
	if db.txman != nil {
		active = db.txman.ActiveIDs()
	}
	cp, err := db.walman.CreateCheckpoint(active)
	if err != nil {
		return nil, err
	}
	if err := db.walman.Truncate(cp.SequenceNumber); err != nil {
		return nil, err
	}
	return cp, nil
}

// Close persiste, aborta transações ativas e fecha o WAL.
func (db *Database) Close() error {
	db.mu.Lock()
	if !db.connected {
		db.mu.Unlock()
		return nil
	}
	db.connected = false
	db.mu.Unlock()

	if db.txman != nil {
		for _, id := range db.txman.ActiveIDs() {
			db.txman.Rollback(id)
		}
	}

	if !db.inMemory() {
		if err := db.Persist(); err != nil {
			return err
		}
	}

	for _, name := range db.ListCollections() {
		if c, err := db.Collection(name); err == nil {
			c.Close()
		}
	}

	if db.walman != nil {
		if err := db.walman.Close(); err != nil {
			return err
		}
	}

	db.logger.Info().Str("db", db.opts.Name).Msg("database closed")
	return nil
}

// === Fan-outs de consulta por coleção ===

func (db *Database) FindByID(collection string, id any) (types.Record, bool, error) {
	c, err := db.Collection(collection)
	if err != nil {
		return nil, false, err
	}
	rec, ok := c.FindByID(id)
	return rec, ok, nil
}

func (db *Database) FindBy(collection, indexName string, value any) ([]types.Record, error) {
	c, err := db.Collection(collection)
	if err != nil {
		return nil, err
	}
	return c.FindBy(indexName, value)
}

func (db *Database) FindFirstBy(collection, indexName string, value any) (types.Record, bool, error) {
	c, err := db.Collection(collection)
	if err != nil {
		return nil, false, err
	}
	return c.FindFirstBy(indexName, value)
}

func (db *Database) FindLastBy(collection, indexName string, value any) (types.Record, bool, error) {
	c, err := db.Collection(collection)
	if err != nil {
		return nil, false, err
	}
	return c.FindLastBy(indexName, value)
}

func (db *Database) First(collection string) (types.Record, bool, error) {
	c, err := db.Collection(collection)
	if err != nil {
		return nil, false, err
	}
	rec, ok := c.First()
	return rec, ok, nil
}

func (db *Database) Last(collection string) (types.Record, bool, error) {
	c, err := db.Collection(collection)
	if err != nil {
		return nil, false, err
	}
	rec, ok := c.Last()
	return rec, ok, nil
}

func (db *Database) Lowest(collection, indexName string) (types.Record, bool, error) {
	c, err := db.Collection(collection)
	if err != nil {
		return nil, false, err
	}
	return c.Lowest(indexName)
}

func (db *Database) Greatest(collection, indexName string) (types.Record, bool, error) {
	c, err := db.Collection(collection)
	if err != nil {
		return nil, false, err
	}
	return c.Greatest(indexName)
}

func (db *Database) Oldest(collection string) (types.Record, bool, error) {
	c, err := db.Collection(collection)
	if err != nil {
		return nil, false, err
	}
	rec, ok := c.Oldest()
	return rec, ok, nil
}

func (db *Database) Latest(collection string) (types.Record, bool, error) {
	c, err := db.Collection(collection)
	if err != nil {
		return nil, false, err
	}
	rec, ok := c.Latest()
	return rec, ok, nil
}

// === Manifesto de schema ===

func (db *Database) manifestPath() string {
	return filepath.Join(db.opts.Root, sanitizeDBName(db.opts.Name)+".json")
}

func (db *Database) readManifest() (map[string]StoredConfig, error) {
	path := db.manifestPath()
	exists, err := afero.Exists(db.fs, path)
	if err != nil {
		return nil, &errors.IOError{Op: "stat", Path: path, Err: err}
	}
	if !exists {
		return map[string]StoredConfig{}, nil
	}

	data, err := afero.ReadFile(db.fs, path)
	if err != nil {
		return nil, &errors.IOError{Op: "read", Path: path, Err: err}
	}
	manifest := map[string]StoredConfig{}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, &errors.IOError{Op: "decode", Path: path, Err: err}
	}
	return manifest, nil
}

// writeManifest grava o mapa nome -> configuração após toda mudança de
// schema.
func (db *Database) writeManifest() error {
	if db.inMemory() {
		return nil
	}

	manifest := make(map[string]StoredConfig)
	for _, name := range db.ListCollections() {
		c, err := db.Collection(name)
		if err != nil {
			continue
		}
		manifest[name] = c.storedConfig()
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}

	path := db.manifestPath()
	if err := db.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &errors.IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	tmpPath := path + ".tmp"
	if err := afero.WriteFile(db.fs, tmpPath, data, 0644); err != nil {
		return &errors.IOError{Op: "write", Path: tmpPath, Err: err}
	}
	if err := db.fs.Rename(tmpPath, path); err != nil {
		return &errors.IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func sortedKeys(m map[string]StoredConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
