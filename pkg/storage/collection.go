package storage

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/index"
	"github.com/bobboyms/docstore/pkg/key"
	"github.com/bobboyms/docstore/pkg/list"
	"github.com/bobboyms/docstore/pkg/query"
	"github.com/bobboyms/docstore/pkg/txn"
	"github.com/bobboyms/docstore/pkg/types"
)

// indexHooks são os ganchos paralelos mantidos por índice, invocados em
// ordem de registro em toda mutação.
type indexHooks struct {
	insert  func(record types.Record, ptr string) error
	update  func(oldRec, newRec types.Record, ptr string) error
	remove  func(record types.Record, ptr string)
	ensure  func() error
	rebuild func() error
}

// Collection orquestra o ciclo de vida dos registros: identidade,
// validação, backend primário, fan-out de índices, TTL, rotação e
// participação em transações.
type Collection struct {
	mu     sync.Mutex
	config CollectionConfig
	name   string
	fs     afero.Fs
	logger zerolog.Logger

	backend   list.Storage
	tlist     *list.TransactionalList
	validator list.Validator

	indexes []*index.Manager
	byName  map[string]*index.Manager
	hooks   []indexHooks

	wildcard        *index.IndexDef
	knownFields     map[string]bool
	pendingWildcard []string

	idGen IDGenerator
	ttl   time.Duration

	adapter Adapter
	txman   *txn.Manager

	rotator *cron.Cron
}

// NewCollection monta a coleção a partir da configuração. txman pode ser
// nil (coleção sem transações).
func NewCollection(cfg CollectionConfig, fs afero.Fs, adapter Adapter, txman *txn.Manager, logger zerolog.Logger) (*Collection, error) {
	cfg = cfg.withDefaults()
	if fs == nil {
		fs = afero.NewOsFs()
	}

	c := &Collection{
		config:      cfg,
		name:        cfg.Name,
		fs:          fs,
		logger:      logger,
		byName:      make(map[string]*index.Manager),
		knownFields: make(map[string]bool),
		adapter:     adapter,
		txman:       txman,
	}

	if cfg.Schema != nil {
		validator, err := list.NewSchemaValidator(cfg.Name, cfg.Schema)
		if err != nil {
			return nil, err
		}
		c.validator = validator
	}

	switch cfg.ListKind {
	case ListKindPerFile:
		dir := filepath.Join(cfg.Root, cfg.Name)
		backend, err := list.NewFileStorage(fs, dir, cfg.Name, c.validator, cfg.Audit)
		if err != nil {
			return nil, err
		}
		c.backend = backend
	default:
		c.backend = list.NewList(cfg.Name, c.validator, cfg.Audit)
	}
	c.tlist = list.NewTransactionalList(cfg.Name, c.backend)

	gen, err := ResolveIDGenerator(cfg.Identity.Gen)
	if err != nil {
		return nil, err
	}
	c.idGen = gen

	ttl, err := ParseTTL(cfg.TTL)
	if err != nil {
		return nil, err
	}
	c.ttl = ttl

	// Índice de identidade: único e obrigatório, sempre o primeiro
	identityDef := index.IndexDef{Key: cfg.Identity.Name, Unique: true, Required: true}
	if err := c.addIndex("", identityDef); err != nil {
		return nil, err
	}

	if ttl > 0 {
		if err := c.addIndex(TTLIndexField, index.IndexDef{Key: TTLIndexField, Sparse: true}); err != nil {
			return nil, err
		}
	}

	for _, def := range cfg.Indexes {
		if def.Key == WildcardKey {
			template := def
			c.wildcard = &template
			continue
		}
		if err := c.addIndex("", def); err != nil {
			return nil, err
		}
	}

	if cfg.Rotate != "" {
		if err := c.startRotation(cfg.Rotate); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Name retorna o nome da coleção.
func (c *Collection) Name() string { return c.name }

// Config retorna a configuração imutável.
func (c *Collection) Config() CollectionConfig { return c.config }

// Len retorna o número de registros vivos.
func (c *Collection) Len() int { return c.backend.Len() }

func (c *Collection) validate(record types.Record) error {
	if c.validator == nil {
		return nil
	}
	return c.validator.Validate(record)
}

// addIndex registra um índice e seus ganchos paralelos.
func (c *Collection) addIndex(name string, def index.IndexDef) error {
	mgr, err := index.NewManager(name, def)
	if err != nil {
		return err
	}
	if _, exists := c.byName[mgr.Name()]; exists {
		return nil
	}

	c.indexes = append(c.indexes, mgr)
	c.byName[mgr.Name()] = mgr
	c.hooks = append(c.hooks, indexHooks{
		insert: mgr.Insert,
		update: mgr.Update,
		remove: mgr.Remove,
		ensure: func() error { return nil },
		rebuild: func() error {
			return mgr.Rebuild(c.backend.Forward)
		},
	})
	return nil
}

func (c *Collection) dropIndexLocked(name string) error {
	mgr, ok := c.byName[name]
	if !ok {
		return &errors.IndexNotFoundError{Name: name}
	}
	if mgr.Def().Key == c.config.Identity.Name && len(mgr.Fields()) == 1 {
		return &errors.TransactionStateError{TxID: "", State: "", Reason: "identity index cannot be dropped"}
	}
	delete(c.byName, name)
	for i, existing := range c.indexes {
		if existing == mgr {
			c.indexes = append(c.indexes[:i], c.indexes[i+1:]...)
			c.hooks = append(c.hooks[:i], c.hooks[i+1:]...)
			break
		}
	}
	return nil
}

// CreateIndex cria (e constrói) um índice novo sobre os registros
// existentes.
func (c *Collection) CreateIndex(name string, def index.IndexDef) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.addIndex(name, def); err != nil {
		return err
	}
	mgr := c.indexes[len(c.indexes)-1]
	return mgr.Rebuild(c.backend.Forward)
}

// DropIndex remove um índice (exceto o de identidade).
func (c *Collection) DropIndex(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropIndexLocked(name)
}

// IndexInfo descreve um índice existente.
type IndexInfo struct {
	Name string
	Def  index.IndexDef
}

// ListIndexes lista os índices; com nome, só o índice pedido.
func (c *Collection) ListIndexes(name string) ([]IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name != "" {
		mgr, ok := c.byName[name]
		if !ok {
			return nil, &errors.IndexNotFoundError{Name: name}
		}
		return []IndexInfo{{Name: mgr.Name(), Def: mgr.Def()}}, nil
	}

	out := make([]IndexInfo, 0, len(c.indexes))
	for _, mgr := range c.indexes {
		out = append(out, IndexInfo{Name: mgr.Name(), Def: mgr.Def()})
	}
	return out, nil
}

// Index retorna o gerenciador de um índice pelo nome.
func (c *Collection) Index(name string) (*index.Manager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mgr, ok := c.byName[name]
	if !ok {
		return nil, &errors.IndexNotFoundError{Name: name}
	}
	return mgr, nil
}

// ensureIdentity gera a identidade quando ausente e o descritor é auto.
func (c *Collection) ensureIdentity(record types.Record) (string, error) {
	idName := c.config.Identity.Name
	v, present := record[idName]
	if !present || v == nil {
		if !c.config.Identity.Auto {
			return "", &errors.RequiredFieldError{Index: idName, Field: idName}
		}
		v = c.idGen(c.backend)
		record[idName] = v
	}
	return types.CanonicalID(v), nil
}

// stampTTL grava o instante de inserção no campo oculto de TTL.
func (c *Collection) stampTTL(record types.Record) {
	if c.ttl > 0 {
		if _, ok := record[TTLIndexField]; !ok {
			record[TTLIndexField] = time.Now().UnixMilli()
		}
	}
}

// Create insere um registro: identidade, validação, lista, fan-out de
// índices. A mutação é atômica no nível do registro: qualquer violação
// desfaz o que já foi aplicado.
func (c *Collection) Create(record types.Record) (types.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createLocked(record)
}

func (c *Collection) createLocked(record types.Record) (types.Record, error) {
	id, err := c.ensureIdentity(record)
	if err != nil {
		return nil, err
	}

	if _, exists := c.backend.Get(id); exists {
		return nil, &errors.UniqueConstraintError{Index: c.config.Identity.Name, Key: id}
	}

	c.stampTTL(record)
	c.ensureWildcard(record)

	if err := c.validate(record); err != nil {
		return nil, err
	}

	if _, err := c.backend.Set(id, record); err != nil {
		return nil, err
	}

	for i, hook := range c.hooks {
		if err := hook.insert(record, id); err != nil {
			// Desfaz o fan-out parcial e a escrita na lista
			for j := i - 1; j >= 0; j-- {
				c.hooks[j].remove(record, id)
			}
			c.backend.Delete(id)
			return nil, err
		}
	}

	return record, nil
}

// CreateMany insere vários registros, parando no primeiro erro.
func (c *Collection) CreateMany(records []types.Record) ([]types.Record, error) {
	out := make([]types.Record, 0, len(records))
	for _, rec := range records {
		created, err := c.Create(rec)
		if err != nil {
			return out, err
		}
		out = append(out, created)
	}
	return out, nil
}

// FindByID busca pelo valor de identidade.
func (c *Collection) FindByID(idValue any) (types.Record, bool) {
	return c.backend.Get(types.CanonicalID(idValue))
}

// FindBy retorna todos os registros cujo índice nomeado casa com o valor.
func (c *Collection) FindBy(indexName string, value any) ([]types.Record, error) {
	mgr, err := c.Index(indexName)
	if err != nil {
		return nil, err
	}
	ptrs := mgr.FindAll(mgr.EncodeValue(value))
	return c.recordsFor(ptrs), nil
}

// FindFirstBy retorna o primeiro registro do índice para o valor.
func (c *Collection) FindFirstBy(indexName string, value any) (types.Record, bool, error) {
	mgr, err := c.Index(indexName)
	if err != nil {
		return nil, false, err
	}
	ptr, ok := mgr.FindFirst(mgr.EncodeValue(value))
	if !ok {
		return nil, false, nil
	}
	rec, found := c.backend.Get(ptr)
	return rec, found, nil
}

// FindLastBy retorna o último registro do índice para o valor.
func (c *Collection) FindLastBy(indexName string, value any) (types.Record, bool, error) {
	mgr, err := c.Index(indexName)
	if err != nil {
		return nil, false, err
	}
	ptr, ok := mgr.FindLast(mgr.EncodeValue(value))
	if !ok {
		return nil, false, nil
	}
	rec, found := c.backend.Get(ptr)
	return rec, found, nil
}

// FindWhere retorna os registros cujo índice nomeado satisfaz a condição
// de scan, na ordem do índice. cond nil devolve tudo.
func (c *Collection) FindWhere(indexName string, cond *query.ScanCondition) ([]types.Record, error) {
	mgr, err := c.Index(indexName)
	if err != nil {
		return nil, err
	}
	var ptrs []string
	mgr.Scan(cond, func(_ string, ptr string) bool {
		ptrs = append(ptrs, ptr)
		return true
	})
	return c.recordsFor(ptrs), nil
}

// FindBetween retorna os registros com lo <= chave do índice <= hi.
func (c *Collection) FindBetween(indexName string, lo, hi any) ([]types.Record, error) {
	mgr, err := c.Index(indexName)
	if err != nil {
		return nil, err
	}
	cond := query.Between(
		types.VarcharKey(mgr.EncodeValue(lo)),
		types.VarcharKey(mgr.EncodeValue(hi)),
	)
	return c.FindWhere(indexName, cond)
}

// FindByPrefix retorna os registros cujo prefixo de campos do índice casa
// com os valores dados, na ordem do índice. Com todos os campos ascendentes
// o scan faz seek para a chave parcial e para no fim da região contígua;
// com algum campo descendente as extensões do prefixo não são contíguas e o
// scan percorre o índice inteiro.
func (c *Collection) FindByPrefix(indexName string, values ...any) ([]types.Record, error) {
	mgr, err := c.Index(indexName)
	if err != nil {
		return nil, err
	}

	prefix := mgr.PartialKey(values)
	sep := mgr.Separator()

	allAsc := true
	for _, f := range mgr.Fields() {
		if f.Order == key.OrderDesc {
			allAsc = false
			break
		}
	}

	var cond *query.ScanCondition
	if allAsc && prefix != "" {
		cond = query.GreaterOrEqual(types.VarcharKey(prefix))
	}

	var ptrs []string
	mgr.Scan(cond, func(encoded string, ptr string) bool {
		match := prefix == "" || encoded == prefix ||
			strings.HasPrefix(encoded, prefix+sep)
		if match {
			ptrs = append(ptrs, ptr)
			return true
		}
		// No caso todo-ascendente, a primeira chave fora do prefixo depois
		// de um casamento encerra a região
		return !(allAsc && len(ptrs) > 0)
	})
	return c.recordsFor(ptrs), nil
}

// Find retorna os registros que satisfazem o predicado, na ordem da lista.
func (c *Collection) Find(pred query.Predicate) []types.Record {
	var out []types.Record
	c.backend.Forward(func(id string, rec types.Record) bool {
		if pred == nil || pred(rec) {
			out = append(out, rec)
		}
		return true
	})
	return out
}

// FindFirst retorna o primeiro registro que satisfaz o predicado.
func (c *Collection) FindFirst(pred query.Predicate) (types.Record, bool) {
	var found types.Record
	c.backend.Forward(func(id string, rec types.Record) bool {
		if pred == nil || pred(rec) {
			found = rec
			return false
		}
		return true
	})
	return found, found != nil
}

// FindLast retorna o último registro que satisfaz o predicado.
func (c *Collection) FindLast(pred query.Predicate) (types.Record, bool) {
	var found types.Record
	c.backend.Backward(func(id string, rec types.Record) bool {
		if pred == nil || pred(rec) {
			found = rec
			return false
		}
		return true
	})
	return found, found != nil
}

// First retorna o primeiro registro na ordem da lista.
func (c *Collection) First() (types.Record, bool) {
	return c.FindFirst(nil)
}

// Last retorna o último registro na ordem da lista.
func (c *Collection) Last() (types.Record, bool) {
	return c.FindLast(nil)
}

// Lowest retorna o registro com a menor chave do índice.
func (c *Collection) Lowest(indexName string) (types.Record, bool, error) {
	mgr, err := c.Index(indexName)
	if err != nil {
		return nil, false, err
	}
	_, ptrs, ok := mgr.Min()
	if !ok || len(ptrs) == 0 {
		return nil, false, nil
	}
	rec, found := c.backend.Get(ptrs[0])
	return rec, found, nil
}

// Greatest retorna o registro com a maior chave do índice.
func (c *Collection) Greatest(indexName string) (types.Record, bool, error) {
	mgr, err := c.Index(indexName)
	if err != nil {
		return nil, false, err
	}
	_, ptrs, ok := mgr.Max()
	if !ok || len(ptrs) == 0 {
		return nil, false, nil
	}
	rec, found := c.backend.Get(ptrs[0])
	return rec, found, nil
}

// Oldest retorna o registro mais antigo pelo índice de TTL (quando
// habilitado) ou o primeiro da lista.
func (c *Collection) Oldest() (types.Record, bool) {
	if c.ttl > 0 {
		if rec, ok, err := c.Lowest(TTLIndexField); err == nil && ok {
			return rec, true
		}
	}
	return c.First()
}

// Latest retorna o registro mais recente pelo índice de TTL (quando
// habilitado) ou o último da lista.
func (c *Collection) Latest() (types.Record, bool) {
	if c.ttl > 0 {
		if rec, ok, err := c.Greatest(TTLIndexField); err == nil && ok {
			return rec, true
		}
	}
	return c.Last()
}

func (c *Collection) recordsFor(ptrs []string) []types.Record {
	out := make([]types.Record, 0, len(ptrs))
	for _, ptr := range ptrs {
		if rec, ok := c.backend.Get(ptr); ok {
			out = append(out, rec)
		}
	}
	return out
}

// UpdateByID aplica um patch a um registro. merge=true faz merge profundo;
// false sobrescreve os campos do patch.
func (c *Collection) UpdateByID(idValue any, patch types.Record, merge bool) (types.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateLocked(types.CanonicalID(idValue), patch, merge)
}

func (c *Collection) updateLocked(id string, patch types.Record, merge bool) (types.Record, error) {
	cur, ok := c.backend.Get(id)
	if !ok {
		return nil, &errors.RecordNotFoundError{Collection: c.name, ID: id}
	}

	oldRec, err := types.CloneRecord(cur)
	if err != nil {
		return nil, err
	}

	next, err := applyPatch(cur, patch, merge)
	if err != nil {
		return nil, err
	}
	// A identidade nunca muda por patch
	next[c.config.Identity.Name] = oldRec[c.config.Identity.Name]

	c.ensureWildcard(next)

	if err := c.validate(next); err != nil {
		return nil, err
	}

	for i, hook := range c.hooks {
		if err := hook.update(oldRec, next, id); err != nil {
			// Desfaz os hooks já aplicados invertendo old/new
			for j := i - 1; j >= 0; j-- {
				c.hooks[j].update(next, oldRec, id)
			}
			return nil, err
		}
	}

	if _, err := c.backend.Update(id, next); err != nil {
		for j := len(c.hooks) - 1; j >= 0; j-- {
			c.hooks[j].update(next, oldRec, id)
		}
		return nil, err
	}

	return next, nil
}

// UpdateWhere aplica o patch a todos os registros casados pelo predicado.
func (c *Collection) UpdateWhere(pred query.Predicate, patch types.Record, merge bool) ([]types.Record, error) {
	matched := c.Find(pred)
	out := make([]types.Record, 0, len(matched))
	for _, rec := range matched {
		id := types.CanonicalID(rec[c.config.Identity.Name])
		updated, err := func() (types.Record, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.updateLocked(id, patch, merge)
		}()
		if err != nil {
			return out, err
		}
		out = append(out, updated)
	}
	return out, nil
}

// RemoveByID remove um registro e devolve o payload removido.
func (c *Collection) RemoveByID(idValue any) (types.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(types.CanonicalID(idValue))
}

func (c *Collection) removeLocked(id string) (types.Record, error) {
	cur, ok := c.backend.Get(id)
	if !ok {
		return nil, &errors.RecordNotFoundError{Collection: c.name, ID: id}
	}

	for _, hook := range c.hooks {
		hook.remove(cur, id)
	}

	removed, err := c.backend.Delete(id)
	if err != nil {
		// Restaura os índices; a lista não mudou
		for _, hook := range c.hooks {
			hook.insert(cur, id)
		}
		return nil, err
	}
	return removed, nil
}

// RemoveWhere remove todos os registros casados pelo predicado.
func (c *Collection) RemoveWhere(pred query.Predicate) ([]types.Record, error) {
	matched := c.Find(pred)
	out := make([]types.Record, 0, len(matched))
	for _, rec := range matched {
		id := types.CanonicalID(rec[c.config.Identity.Name])
		removed, err := c.RemoveByID(id)
		if err != nil {
			return out, err
		}
		out = append(out, removed)
	}
	return out, nil
}

// Reset limpa registros e índices.
func (c *Collection) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.backend.Reset(); err != nil {
		return err
	}
	for _, mgr := range c.indexes {
		mgr.Reset()
	}
	return nil
}

// Close para a rotação agendada.
func (c *Collection) Close() {
	c.stopRotation()
}

// applyPatch calcula o próximo payload: merge profundo ou atribuição.
func applyPatch(cur, patch types.Record, merge bool) (types.Record, error) {
	next, err := types.CloneRecord(cur)
	if err != nil {
		return nil, err
	}
	if merge {
		deepMerge(next, patch)
	} else {
		for k, v := range patch {
			next[k] = v
		}
	}
	return next, nil
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		srcMap, srcOk := types.AsRecord(v)
		dstMap, dstOk := types.AsRecord(dst[k])
		if srcOk && dstOk {
			merged := map[string]any(dstMap)
			deepMerge(merged, srcMap)
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

// ensureWildcard expande o índice template para campos de topo novos.
// Dentro de uma transação a expansão é adiada para o commit.
func (c *Collection) ensureWildcard(record types.Record) {
	if c.wildcard == nil {
		return
	}
	for field := range record {
		if c.isInternalField(field) || c.knownFields[field] {
			continue
		}
		c.knownFields[field] = true
		if _, exists := c.byName[field]; exists {
			continue // índice já criado (manifesto ou CreateIndex explícito)
		}
		def := *c.wildcard
		def.Key = field
		def.Keys = nil
		if err := c.addIndex("", def); err != nil {
			c.logger.Warn().Err(err).Str("field", field).Msg("wildcard index creation failed")
			continue
		}
		mgr := c.indexes[len(c.indexes)-1]
		if err := mgr.Rebuild(c.backend.Forward); err != nil {
			c.logger.Warn().Err(err).Str("field", field).Msg("wildcard index rebuild failed")
		}
	}
}

// queueWildcard registra campos vistos durante uma transação para expandir
// depois do commit. O chamador segura c.mu.
func (c *Collection) queueWildcard(record types.Record) {
	if c.wildcard == nil {
		return
	}
	for field := range record {
		if c.isInternalField(field) || c.knownFields[field] {
			continue
		}
		c.pendingWildcard = append(c.pendingWildcard, field)
	}
}

// FlushWildcard expande os campos adiados (chamado após commit).
func (c *Collection) FlushWildcard() {
	c.mu.Lock()
	pending := c.pendingWildcard
	c.pendingWildcard = nil
	c.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	rec := types.Record{}
	for _, f := range pending {
		rec[f] = nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureWildcard(rec)
}

func (c *Collection) isInternalField(field string) bool {
	return field == c.config.Identity.Name || field == TTLIndexField
}
