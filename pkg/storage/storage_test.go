package storage

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerr "github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/index"
	"github.com/bobboyms/docstore/pkg/key"
	"github.com/bobboyms/docstore/pkg/list"
	"github.com/bobboyms/docstore/pkg/query"
	"github.com/bobboyms/docstore/pkg/txn"
	"github.com/bobboyms/docstore/pkg/types"
)

func newMemoryCollection(t *testing.T, cfg CollectionConfig) *Collection {
	t.Helper()
	cfg.AdapterKind = AdapterKindMemory
	c, err := NewCollection(cfg, afero.NewMemMapFs(), NewAdapterMemory(), nil, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestCollectionCreateAndFind(t *testing.T) {
	c := newMemoryCollection(t, CollectionConfig{
		Name:     "users",
		Identity: IdentityDef{Name: "id", Auto: true},
		Indexes:  []index.IndexDef{{Key: "email", Unique: true}},
	})

	created, err := c.Create(types.Record{"email": "ana@x", "name": "ana"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created["id"], "auto increment identity")

	_, err = c.Create(types.Record{"email": "bia@x", "name": "bia"})
	require.NoError(t, err)

	rec, ok := c.FindByID(1)
	require.True(t, ok)
	assert.Equal(t, "ana", rec["name"])

	byEmail, err := c.FindBy("email", "bia@x")
	require.NoError(t, err)
	require.Len(t, byEmail, 1)
	assert.Equal(t, "bia", byEmail[0]["name"])

	// Índice único rejeita e não deixa rastro
	_, err = c.Create(types.Record{"email": "ana@x"})
	require.Error(t, err)
	var uniqueErr *docerr.UniqueConstraintError
	require.ErrorAs(t, err, &uniqueErr)
	assert.Equal(t, 2, c.Len(), "failed create must not change state")

	// Consistência índice x lista após a falha
	all, err := c.FindBy("email", "ana@x")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCollectionUpdateAndRemove(t *testing.T) {
	c := newMemoryCollection(t, CollectionConfig{
		Name:     "users",
		Identity: IdentityDef{Name: "id", Auto: true},
		Indexes:  []index.IndexDef{{Key: "city"}},
	})

	_, err := c.Create(types.Record{"city": "Recife", "tags": types.Record{"a": 1}})
	require.NoError(t, err)

	// Merge profundo preserva mapas aninhados
	updated, err := c.UpdateByID(1, types.Record{"tags": types.Record{"b": 2}}, true)
	require.NoError(t, err)
	tags, _ := types.AsRecord(updated["tags"])
	assert.Contains(t, tags, "a")
	assert.Contains(t, tags, "b")

	// Assign sobrescreve
	updated, err = c.UpdateByID(1, types.Record{"city": "Olinda"}, false)
	require.NoError(t, err)
	assert.Equal(t, "Olinda", updated["city"])

	// Índice acompanhou a mudança de chave
	inOlinda, err := c.FindBy("city", "Olinda")
	require.NoError(t, err)
	assert.Len(t, inOlinda, 1)
	inRecife, err := c.FindBy("city", "Recife")
	require.NoError(t, err)
	assert.Empty(t, inRecife)

	removed, err := c.RemoveByID(1)
	require.NoError(t, err)
	assert.Equal(t, "Olinda", removed["city"])
	assert.Equal(t, 0, c.Len())

	inOlinda, _ = c.FindBy("city", "Olinda")
	assert.Empty(t, inOlinda)
}

func TestCollectionPredicates(t *testing.T) {
	c := newMemoryCollection(t, CollectionConfig{
		Name:     "users",
		Identity: IdentityDef{Name: "id", Auto: true},
	})

	for _, name := range []string{"ana", "bia", "carla"} {
		_, err := c.Create(types.Record{"name": name})
		require.NoError(t, err)
	}

	match := c.Find(query.FieldEquals("name", "bia"))
	require.Len(t, match, 1)

	first, ok := c.First()
	require.True(t, ok)
	assert.Equal(t, "ana", first["name"])

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, "carla", last["name"])
}

func TestLowestGreatest(t *testing.T) {
	c := newMemoryCollection(t, CollectionConfig{
		Name:     "salaries",
		Identity: IdentityDef{Name: "id", Auto: true},
		Indexes:  []index.IndexDef{{Key: "salary"}},
	})

	for _, s := range []int64{5000, 1000, 9000} {
		_, err := c.Create(types.Record{"salary": s})
		require.NoError(t, err)
	}

	low, ok, err := c.Lowest("salary")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1000), low["salary"])

	high, ok, err := c.Greatest("salary")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(9000), high["salary"])
}

func TestFindBetweenAndFindWhere(t *testing.T) {
	c := newMemoryCollection(t, CollectionConfig{
		Name:     "salaries",
		Identity: IdentityDef{Name: "id", Auto: true},
		Indexes:  []index.IndexDef{{Key: "salary"}},
	})

	for _, s := range []int64{1000, 3000, 5000, 7000, 9000} {
		_, err := c.Create(types.Record{"salary": s})
		require.NoError(t, err)
	}

	mid, err := c.FindBetween("salary", int64(3000), int64(7000))
	require.NoError(t, err)
	require.Len(t, mid, 3)
	assert.Equal(t, int64(3000), mid[0]["salary"], "index order")
	assert.Equal(t, int64(7000), mid[2]["salary"])

	mgr, err := c.Index("salary")
	require.NoError(t, err)
	top, err := c.FindWhere("salary", mgr.Condition(query.GreaterThan, int64(7000)))
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(9000), top[0]["salary"])

	// Índice inexistente propaga IndexNotFound
	_, err = c.FindBetween("ghost", 1, 2)
	var notFound *docerr.IndexNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestFindByPrefix(t *testing.T) {
	c := newMemoryCollection(t, CollectionConfig{
		Name:     "staff",
		Identity: IdentityDef{Name: "id"},
		Indexes: []index.IndexDef{
			{Keys: []key.Field{{Key: "department"}, {Key: "level"}}},
			{Keys: []key.Field{{Key: "department"}, {Key: "salary", Order: key.OrderDesc}}},
		},
	})

	records := []types.Record{
		{"id": int64(1), "department": "Engineering", "level": int64(3), "salary": int64(95000)},
		{"id": int64(2), "department": "Engineering", "level": int64(1), "salary": int64(85000)},
		{"id": int64(3), "department": "Marketing", "level": int64(2), "salary": int64(75000)},
	}
	for _, rec := range records {
		_, err := c.Create(rec)
		require.NoError(t, err)
	}

	// Índice todo-ascendente: seek + parada no fim da região do prefixo
	eng, err := c.FindByPrefix("department,level", "Engineering")
	require.NoError(t, err)
	require.Len(t, eng, 2)
	assert.Equal(t, int64(1), eng[0]["level"], "ordered by the remaining fields")
	assert.Equal(t, int64(3), eng[1]["level"])

	// Campo descendente no meio: full scan, mesmo resultado
	engDesc, err := c.FindByPrefix("department,salary:desc", "Engineering")
	require.NoError(t, err)
	require.Len(t, engDesc, 2)
	assert.Equal(t, int64(95000), engDesc[0]["salary"], "desc order within the prefix")

	// Prefixo sem casamento
	none, err := c.FindByPrefix("department,level", "Legal")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCompositeIndexThroughCollection(t *testing.T) {
	c := newMemoryCollection(t, CollectionConfig{
		Name:     "staff",
		Identity: IdentityDef{Name: "id"},
		Indexes: []index.IndexDef{{
			Keys: []key.Field{
				{Key: "department"},
				{Key: "salary", Order: key.OrderDesc},
				{Key: "level"},
			},
		}},
	})

	records := []types.Record{
		{"id": int64(1), "department": "Engineering", "salary": int64(95000), "level": int64(3)},
		{"id": int64(2), "department": "Engineering", "salary": int64(85000), "level": int64(2)},
		{"id": int64(3), "department": "Marketing", "salary": int64(75000), "level": int64(3)},
		{"id": int64(4), "department": "Engineering", "salary": int64(95000), "level": int64(3)},
	}
	for _, rec := range records {
		_, err := c.Create(rec)
		require.NoError(t, err)
	}

	mgr, err := c.Index("department,salary:desc,level")
	require.NoError(t, err)

	var order []string
	mgr.Each(func(_ string, ptr string) bool {
		order = append(order, ptr)
		return true
	})
	require.Len(t, order, 4)
	assert.ElementsMatch(t, []string{"1", "4"}, order[:2], "ties adjacent")
	assert.Equal(t, "2", order[2])
	assert.Equal(t, "3", order[3])
}

func TestWildcardIndex(t *testing.T) {
	c := newMemoryCollection(t, CollectionConfig{
		Name:     "events",
		Identity: IdentityDef{Name: "id", Auto: true},
		Indexes:  []index.IndexDef{{Key: WildcardKey}},
	})

	_, err := c.Create(types.Record{"kind": "click"})
	require.NoError(t, err)

	// O campo novo ganhou um índice automaticamente
	byKind, err := c.FindBy("kind", "click")
	require.NoError(t, err)
	assert.Len(t, byKind, 1)

	// Um segundo campo novo também
	_, err = c.Create(types.Record{"kind": "view", "source": "web"})
	require.NoError(t, err)
	bySource, err := c.FindBy("source", "web")
	require.NoError(t, err)
	assert.Len(t, bySource, 1)
}

func TestTTLSweep(t *testing.T) {
	c := newMemoryCollection(t, CollectionConfig{
		Name:     "sessions",
		TTL:      "1000",
		Identity: IdentityDef{Name: "id", Auto: true},
	})

	// Registros com timestamps controlados (t=0, t=500, t=1500)
	for _, ts := range []int64{0, 500, 1500} {
		_, err := c.Create(types.Record{TTLIndexField: ts, "at": ts})
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Len())

	// Em t=2000 com ttl=1000, corte em 1000: caem os de t=0 e t=500
	removed, err := c.RemoveExpired(2000 - 1000)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())

	remaining, ok := c.First()
	require.True(t, ok)
	assert.Equal(t, int64(1500), remaining["at"])
}

func TestAuditCollection(t *testing.T) {
	c := newMemoryCollection(t, CollectionConfig{
		Name:     "docs",
		Audit:    true,
		Identity: IdentityDef{Name: "id", Auto: true},
	})

	_, err := c.Create(types.Record{"v": "a"})
	require.NoError(t, err)
	_, err = c.UpdateByID(1, types.Record{"v": "b"}, true)
	require.NoError(t, err)

	// O registro vivo é o payload, não o envelope
	rec, ok := c.FindByID(1)
	require.True(t, ok)
	assert.Equal(t, "b", rec["v"])

	// Delete tombstona: invisível mas contabilizado no snapshot
	_, err = c.RemoveByID(1)
	require.NoError(t, err)
	_, ok = c.FindByID(1)
	assert.False(t, ok)

	snap, err := c.Store()
	require.NoError(t, err)
	assert.Contains(t, snap.List.Hash, "1", "tombstone kept for history")
}

func TestSchemaValidationOnCollection(t *testing.T) {
	c := newMemoryCollection(t, CollectionConfig{
		Name:     "strict",
		Identity: IdentityDef{Name: "id", Auto: true},
		Schema: map[string]any{
			"type":     "object",
			"required": []any{"name"},
		},
	})

	_, err := c.Create(types.Record{"nope": true})
	require.Error(t, err)
	var vErr *docerr.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 0, c.Len())

	_, err = c.Create(types.Record{"name": "ok"})
	require.NoError(t, err)
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	adapter := NewAdapterMemory()
	fs := afero.NewMemMapFs()

	cfg := CollectionConfig{
		Name:        "users",
		AdapterKind: AdapterKindMemory,
		Identity:    IdentityDef{Name: "id", Auto: true},
		Indexes:     []index.IndexDef{{Key: "email", Unique: true}},
	}

	c, err := NewCollection(cfg, fs, adapter, nil, zerolog.Nop())
	require.NoError(t, err)
	_, err = c.Create(types.Record{"email": "ana@x"})
	require.NoError(t, err)
	require.NoError(t, c.Persist(""))

	// Instância nova, mesmo adapter
	c2, err := NewCollection(cfg, fs, adapter, nil, zerolog.Nop())
	require.NoError(t, err)
	found, err := c2.Load("")
	require.NoError(t, err)
	require.True(t, found)

	rec, ok := c2.FindByID(1)
	require.True(t, ok)
	assert.Equal(t, "ana@x", rec["email"])

	// Índice veio junto
	byEmail, err := c2.FindBy("email", "ana@x")
	require.NoError(t, err)
	assert.Len(t, byEmail, 1)
}

func TestFileAdapterRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	adapter := NewAdapterFile(fs, "data/mydb")

	cfg := CollectionConfig{
		Name:     "users",
		Root:     "data/mydb",
		Identity: IdentityDef{Name: "id", Auto: true},
	}

	c, err := NewCollection(cfg, fs, adapter, nil, zerolog.Nop())
	require.NoError(t, err)
	_, err = c.Create(types.Record{"name": "ana"})
	require.NoError(t, err)
	require.NoError(t, c.Persist(""))

	exists, _ := afero.Exists(fs, "data/mydb/users.json")
	assert.True(t, exists, "single-file snapshot at <root>/<collection>.json")

	c2, err := NewCollection(cfg, fs, adapter, nil, zerolog.Nop())
	require.NoError(t, err)
	found, err := c2.Load("")
	require.NoError(t, err)
	require.True(t, found)

	rec, ok := c2.FindByID(1)
	require.True(t, ok)
	assert.Equal(t, "ana", rec["name"])
}

func TestPerFileCollection(t *testing.T) {
	fs := afero.NewMemMapFs()
	adapter := NewAdapterFile(fs, "data/mydb")

	cfg := CollectionConfig{
		Name:     "blobs",
		Root:     "data/mydb",
		ListKind: ListKindPerFile,
		Identity: IdentityDef{Name: "id", Auto: true},
	}

	c, err := NewCollection(cfg, fs, adapter, nil, zerolog.Nop())
	require.NoError(t, err)
	_, err = c.Create(types.Record{"name": "ana"})
	require.NoError(t, err)
	require.NoError(t, c.Persist(""))

	exists, _ := afero.Exists(fs, "data/mydb/blobs/1.json")
	assert.True(t, exists, "one file per record")
	exists, _ = afero.Exists(fs, "data/mydb/blobs/metadata.json")
	assert.True(t, exists, "metadata.json for per-file collections")
}

func newTxDatabase(t *testing.T, fs afero.Fs, root string) *Database {
	t.Helper()
	db := NewDatabase(DatabaseOptions{
		Name:               "testdb",
		Root:               root,
		EnableTransactions: true,
		WALOptions: WALOptions{
			EnableWAL:    true,
			AutoRecovery: true,
		},
		Fs:     fs,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, db.Connect())
	return db
}

func TestDatabaseTransactionalCommit(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := newTxDatabase(t, fs, "data")
	defer db.Close()

	c, err := db.CreateCollection(CollectionConfig{
		Name:     "users",
		Identity: IdentityDef{Name: "id"},
		Indexes:  []index.IndexDef{{Key: "name"}},
	})
	require.NoError(t, err)

	txID, err := db.StartTransaction(txn.Options{})
	require.NoError(t, err)

	_, err = c.CreateTx(txID, types.Record{"id": int64(1), "name": "ana"})
	require.NoError(t, err)

	// Invisível fora da transação antes do commit
	_, ok := c.FindByID(1)
	assert.False(t, ok)

	// Visível dentro
	rec, ok := c.GetTx(txID, 1)
	require.True(t, ok)
	assert.Equal(t, "ana", rec["name"])

	require.NoError(t, db.CommitTransaction())

	rec, ok = c.FindByID(1)
	require.True(t, ok)
	assert.Equal(t, "ana", rec["name"])

	byName, err := c.FindBy("name", "ana")
	require.NoError(t, err)
	assert.Len(t, byName, 1)
}

func TestDatabaseTransactionalRollback(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := newTxDatabase(t, fs, "data")
	defer db.Close()

	c, err := db.CreateCollection(CollectionConfig{
		Name:     "users",
		Identity: IdentityDef{Name: "id"},
	})
	require.NoError(t, err)

	txID, err := db.StartTransaction(txn.Options{})
	require.NoError(t, err)
	_, err = c.CreateTx(txID, types.Record{"id": int64(1)})
	require.NoError(t, err)

	require.NoError(t, db.AbortTransaction())

	_, ok := c.FindByID(1)
	assert.False(t, ok, "rolled back insert must not apply")
	assert.Equal(t, 0, db.ActiveTransactionCount())
}

func TestNestedBeginRejected(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := newTxDatabase(t, fs, "data")
	defer db.Close()

	_, err := db.StartTransaction(txn.Options{})
	require.NoError(t, err)

	_, err = db.StartTransaction(txn.Options{})
	require.Error(t, err, "one active transaction per session")

	require.NoError(t, db.AbortTransaction())
	_, err = db.StartTransaction(txn.Options{})
	assert.NoError(t, err)
}

// Cenário: replay do WAL após crash.
func TestWALReplayAfterCrash(t *testing.T) {
	fs := afero.NewMemMapFs()

	db := newTxDatabase(t, fs, "data")
	c, err := db.CreateCollection(CollectionConfig{
		Name:     "kv",
		Identity: IdentityDef{Name: "id"},
		Indexes:  []index.IndexDef{{Key: "k"}},
	})
	require.NoError(t, err)

	// Estado pré-existente commitado e persistido
	seedTx, err := db.StartTransaction(txn.Options{})
	require.NoError(t, err)
	_, err = c.CreateTx(seedTx, types.Record{"id": "b", "k": "B", "v": int64(0)})
	require.NoError(t, err)
	require.NoError(t, db.CommitTransaction())

	// Transação commitada mas NÃO persistida (o crash vem antes do persist)
	txID, err := db.StartTransaction(txn.Options{})
	require.NoError(t, err)
	_, err = c.CreateTx(txID, types.Record{"id": "a1", "k": "A", "v": int64(1)})
	require.NoError(t, err)
	_, err = c.CreateTx(txID, types.Record{"id": "a2", "k": "A", "v": int64(2)})
	require.NoError(t, err)
	_, err = c.RemoveTx(txID, "b")
	require.NoError(t, err)
	require.NoError(t, db.CommitTransaction())

	// Transação sem commit: descartada no replay
	tx2, err := db.StartTransaction(txn.Options{})
	require.NoError(t, err)
	_, err = c.CreateTx(tx2, types.Record{"id": "z", "k": "Z"})
	require.NoError(t, err)

	// "Crash": nada de Close/persist; só derruba o processo lógico
	// Reabre com o mesmo filesystem e autoRecovery
	db2 := newTxDatabase(t, fs, "data")
	defer db2.Close()

	c2, err := db2.Collection("kv")
	require.NoError(t, err)

	a1, ok := c2.FindByID("a1")
	require.True(t, ok, "committed insert must survive the crash")
	assert.EqualValues(t, 1, a1["v"])
	_, ok = c2.FindByID("a2")
	assert.True(t, ok)
	_, ok = c2.FindByID("b")
	assert.False(t, ok, "committed delete must survive the crash")
	_, ok = c2.FindByID("z")
	assert.False(t, ok, "uncommitted transaction must be discarded")

	byK, err := c2.FindBy("k", "A")
	require.NoError(t, err)
	assert.Len(t, byK, 2, "non-unique index rebuilt with both entries")
}

// Cenário: savepoint com rollback parcial.
func TestSavepointScenario(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := newTxDatabase(t, fs, "data")
	defer db.Close()

	c, err := db.CreateCollection(CollectionConfig{
		Name:     "users",
		Identity: IdentityDef{Name: "id"},
	})
	require.NoError(t, err)

	txID, err := db.StartTransaction(txn.Options{})
	require.NoError(t, err)

	_, err = c.CreateTx(txID, types.Record{"id": int64(10), "name": "original"})
	require.NoError(t, err)

	sp, err := db.CreateSavepoint("A")
	require.NoError(t, err)

	_, err = c.CreateTx(txID, types.Record{"id": int64(11)})
	require.NoError(t, err)
	_, err = c.UpdateTx(txID, 10, types.Record{"name": "modified"}, true)
	require.NoError(t, err)

	require.NoError(t, db.RollbackToSavepoint(sp))

	// id=10 volta ao estado pré-savepoint; id=11 some
	rec, ok := c.GetTx(txID, 10)
	require.True(t, ok)
	assert.Equal(t, "original", rec["name"])
	_, ok = c.GetTx(txID, 11)
	assert.False(t, ok)

	assert.Empty(t, db.ListSavepoints(), "savepoints strictly before A: none")

	require.NoError(t, db.CommitTransaction())

	rec, ok = c.FindByID(10)
	require.True(t, ok)
	assert.Equal(t, "original", rec["name"])
	_, ok = c.FindByID(11)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestChangeListenerThroughDatabase(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := newTxDatabase(t, fs, "data")
	defer db.Close()

	c, err := db.CreateCollection(CollectionConfig{
		Name:     "users",
		Identity: IdentityDef{Name: "id"},
	})
	require.NoError(t, err)

	var got []txn.ChangeRecord
	db.AddChangeListener(func(changes []txn.ChangeRecord) {
		got = append(got, changes...)
	})

	txID, err := db.StartTransaction(txn.Options{})
	require.NoError(t, err)
	_, err = c.CreateTx(txID, types.Record{"id": int64(1)})
	require.NoError(t, err)
	require.NoError(t, db.CommitTransaction())

	require.Len(t, got, 1)
	assert.Equal(t, "insert", got[0].Type)
	assert.Equal(t, "users", got[0].Collection)
}

func TestManifestReopen(t *testing.T) {
	fs := afero.NewMemMapFs()

	db := NewDatabase(DatabaseOptions{Name: "mydb", Root: "data", Fs: fs, Logger: zerolog.Nop()})
	require.NoError(t, db.Connect())

	_, err := db.CreateCollection(CollectionConfig{
		Name:     "users",
		Identity: IdentityDef{Name: "id", Auto: true},
		Indexes:  []index.IndexDef{{Key: "email", Unique: true}},
	})
	require.NoError(t, err)

	exists, _ := afero.Exists(fs, "data/mydb.json")
	require.True(t, exists, "schema manifest at <root>/<dbName>.json")

	c, _ := db.Collection("users")
	_, err = c.Create(types.Record{"email": "ana@x"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reabre: coleções e índices vêm do manifesto, registros do adapter
	db2 := NewDatabase(DatabaseOptions{Name: "mydb", Root: "data", Fs: fs, Logger: zerolog.Nop()})
	require.NoError(t, db2.Connect())
	defer db2.Close()

	assert.Equal(t, []string{"users"}, db2.ListCollections())

	rec, ok, err := db2.FindByID("users", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ana@x", rec["email"])

	// Índice único restaurado continua rejeitando duplicatas
	c2, _ := db2.Collection("users")
	_, err = c2.Create(types.Record{"email": "ana@x"})
	require.Error(t, err)
}

func TestMemoryDatabase(t *testing.T) {
	db := NewDatabase(DatabaseOptions{Name: MemoryDBName, Root: "ignored", Logger: zerolog.Nop()})
	require.NoError(t, db.Connect())
	defer db.Close()

	c, err := db.CreateCollection(CollectionConfig{
		Name:     "scratch",
		Identity: IdentityDef{Name: "id", Auto: true},
	})
	require.NoError(t, err)

	_, err = c.Create(types.Record{"x": 1})
	require.NoError(t, err)
	require.NoError(t, db.Persist())

	rec, ok := c.FindByID(1)
	require.True(t, ok)
	assert.NotNil(t, rec)
}

func TestCleanupTransactions(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := newTxDatabase(t, fs, "data")
	defer db.Close()

	_, err := db.StartTransaction(txn.Options{Timeout: time.Millisecond})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, 1, db.CleanupTransactions())
	assert.Equal(t, "", db.GetCurrentTransactionID())
	assert.Equal(t, 0, db.ActiveTransactionCount())
}

func TestIDGeneratorRegistry(t *testing.T) {
	_, err := ResolveIDGenerator("autoIncIdGen")
	require.NoError(t, err)
	_, err = ResolveIDGenerator("autoTimestamp")
	require.NoError(t, err)

	_, err = ResolveIDGenerator("eval:whatever")
	require.Error(t, err)
	var unknown *docerr.UnknownGeneratorError
	assert.ErrorAs(t, err, &unknown)

	RegisterIDGenerator("fixed", func(list.Storage) any { return "x" })
	gen, err := ResolveIDGenerator("fixed")
	require.NoError(t, err)
	assert.Equal(t, "x", gen(nil))
}
