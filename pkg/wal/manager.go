package wal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/bobboyms/docstore/pkg/errors"
)

// Applier aplica entradas DATA de transações commitadas durante o replay.
// O Database registra um applier por coleção antes de chamar Recover.
type Applier interface {
	ApplyWALEntry(e *Entry) error
}

// Manager é o contrato do write-ahead log. Duas implementações: arquivo
// (durável) e memória (testes e bancos ":memory:").
type Manager interface {
	WriteEntry(e *Entry) (uint64, error)
	ReadEntries(fromSequence uint64) ([]*Entry, error)
	Truncate(beforeSequence uint64) error
	Flush() error
	CreateCheckpoint(activeTxIDs []string) (*Checkpoint, error)
	Recover() error
	RegisterApplier(collection string, a Applier)
	CurrentSequence() uint64
	Close() error
}

// FileWALManager persiste o log em um arquivo JSON por linha.
type FileWALManager struct {
	mu       sync.Mutex
	fs       afero.Fs
	path     string
	file     afero.File
	buffer   []*Entry
	sequence uint64
	options  Options
	logger   zerolog.Logger
	appliers map[string]Applier

	// Controle do flush em background
	done   chan struct{}
	ticker *time.Ticker
	closed bool
}

// NewFileManager abre (ou cria) o log e recupera o último sequence number.
func NewFileManager(opts Options) (*FileWALManager, error) {
	opts = opts.withDefaults()

	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := opts.Fs.MkdirAll(dir, 0755); err != nil {
			return nil, &errors.IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}

	m := &FileWALManager{
		fs:       opts.Fs,
		path:     opts.Path,
		options:  opts,
		logger:   opts.Logger,
		appliers: make(map[string]Applier),
		done:     make(chan struct{}),
	}

	// Recupera o maior sequence number já gravado
	if err := m.loadSequence(); err != nil {
		return nil, err
	}

	f, err := opts.Fs.OpenFile(opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, &errors.IOError{Op: "open", Path: opts.Path, Err: err}
	}
	m.file = f

	m.ticker = time.NewTicker(opts.FlushInterval)
	go m.backgroundFlush()

	return m, nil
}

func (m *FileWALManager) loadSequence() error {
	entries, _, err := m.readAll(false)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.SequenceNumber > m.sequence {
			m.sequence = e.SequenceNumber
		}
	}
	return nil
}

// WriteEntry atribui o próximo sequence number, calcula o checksum e
// acumula a entrada no buffer. Flush acontece quando o buffer excede
// MaxBufferSize ou quando o intervalo de flush expira.
func (m *FileWALManager) WriteEntry(e *Entry) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, fmt.Errorf("wal manager is closed")
	}

	m.sequence++
	e.SequenceNumber = m.sequence
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}

	checksum, err := ComputeChecksum(e)
	if err != nil {
		return 0, err
	}
	e.Checksum = checksum

	m.buffer = append(m.buffer, e)

	if len(m.buffer) > m.options.MaxBufferSize {
		if err := m.flushLocked(); err != nil {
			return 0, err
		}
	}
	return e.SequenceNumber, nil
}

// Flush grava o buffer e faz fsync. Só retorna com durabilidade garantida.
func (m *FileWALManager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

func (m *FileWALManager) flushLocked() error {
	if len(m.buffer) == 0 {
		return nil
	}

	w := bufio.NewWriter(m.file)
	for _, e := range m.buffer {
		line, err := e.Encode()
		if err != nil {
			return fmt.Errorf("wal encode failed: %w", err)
		}
		if _, err := w.Write(line); err != nil {
			return &errors.IOError{Op: "write", Path: m.path, Err: err}
		}
		if err := w.WriteByte('\n'); err != nil {
			return &errors.IOError{Op: "write", Path: m.path, Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		return &errors.IOError{Op: "flush", Path: m.path, Err: err}
	}
	if err := m.file.Sync(); err != nil {
		return &errors.IOError{Op: "sync", Path: m.path, Err: err}
	}

	m.buffer = m.buffer[:0]
	return nil
}

// ReadEntries retorna as entradas em ordem de sequência a partir de
// fromSequence (inclusive). Entradas com checksum inválido são puladas e
// reportadas.
func (m *FileWALManager) ReadEntries(fromSequence uint64) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.flushLocked(); err != nil {
		return nil, err
	}

	entries, corrupt, err := m.readAll(false)
	if err != nil {
		return nil, err
	}
	if corrupt > 0 {
		m.logger.Warn().Int("corrupted", corrupt).Str("path", m.path).
			Msg("wal entries skipped during read")
	}

	var out []*Entry
	for _, e := range entries {
		if e.SequenceNumber >= fromSequence {
			out = append(out, e)
		}
	}
	return out, nil
}

// readAll lê o arquivo inteiro. Em modo estrito, a primeira entrada
// corrompida termina o prefixo lido (as seguintes são descartadas); em modo
// leniente, entradas corrompidas são puladas e contadas.
func (m *FileWALManager) readAll(strict bool) ([]*Entry, int, error) {
	exists, err := afero.Exists(m.fs, m.path)
	if err != nil {
		return nil, 0, &errors.IOError{Op: "stat", Path: m.path, Err: err}
	}
	if !exists {
		return nil, 0, nil
	}

	f, err := m.fs.Open(m.path)
	if err != nil {
		return nil, 0, &errors.IOError{Op: "open", Path: m.path, Err: err}
	}
	defer f.Close()

	var entries []*Entry
	corrupt := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		e, err := DecodeEntry(line)
		if err != nil || !ValidateChecksum(e) {
			corrupt++
			if strict {
				return entries, corrupt, nil
			}
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, corrupt, &errors.IOError{Op: "read", Path: m.path, Err: err}
	}
	return entries, corrupt, nil
}

// Truncate descarta entradas com sequência estritamente menor que
// beforeSequence. Usado após checkpoint bem-sucedido. A reescrita é
// atômica (arquivo temporário + rename).
func (m *FileWALManager) Truncate(beforeSequence uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.flushLocked(); err != nil {
		return err
	}

	entries, _, err := m.readAll(false)
	if err != nil {
		return err
	}

	tmpPath := m.path + ".tmp"
	tmp, err := m.fs.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return &errors.IOError{Op: "open", Path: tmpPath, Err: err}
	}

	w := bufio.NewWriter(tmp)
	for _, e := range entries {
		if e.SequenceNumber < beforeSequence {
			continue
		}
		line, err := e.Encode()
		if err != nil {
			tmp.Close()
			return err
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return &errors.IOError{Op: "flush", Path: tmpPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &errors.IOError{Op: "sync", Path: tmpPath, Err: err}
	}
	tmp.Close()

	// Fecha o handle de append antes do rename
	if err := m.file.Close(); err != nil {
		return &errors.IOError{Op: "close", Path: m.path, Err: err}
	}
	if err := m.fs.Rename(tmpPath, m.path); err != nil {
		return &errors.IOError{Op: "rename", Path: m.path, Err: err}
	}

	f, err := m.fs.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return &errors.IOError{Op: "open", Path: m.path, Err: err}
	}
	m.file = f
	return nil
}

// RegisterApplier registra o destino do replay para uma coleção.
func (m *FileWALManager) RegisterApplier(collection string, a Applier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appliers[collection] = a
}

// CurrentSequence retorna o último sequence number atribuído.
func (m *FileWALManager) CurrentSequence() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sequence
}

// Recover reexecuta o prefixo commitado do log. Transações sem COMMIT (ou
// com ROLLBACK) são descartadas; a primeira entrada corrompida termina o
// prefixo reaplicado.
func (m *FileWALManager) Recover() error {
	m.mu.Lock()
	if err := m.flushLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	entries, corrupt, err := m.readAll(true)
	appliers := make(map[string]Applier, len(m.appliers))
	for k, v := range m.appliers {
		appliers[k] = v
	}
	logger := m.logger
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if corrupt > 0 {
		logger.Warn().Str("path", m.path).
			Msg("wal corruption found, committed prefix truncated at first bad entry")
	}

	applied, discarded, err := replay(entries, appliers)
	if err != nil {
		return err
	}

	logger.Info().Int("applied", applied).Int("discarded", discarded).
		Int("corrupted", corrupt).Msg("wal recovery finished")
	return nil
}

func (m *FileWALManager) backgroundFlush() {
	for {
		select {
		case <-m.ticker.C:
			m.Flush()
		case <-m.done:
			return
		}
	}
}

// Close encerra o flush em background e drena o buffer.
func (m *FileWALManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	m.ticker.Stop()
	close(m.done)

	if err := m.flushLocked(); err != nil {
		m.file.Close()
		return err
	}
	return m.file.Close()
}
