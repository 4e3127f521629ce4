package wal

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Options configura o WAL Manager
type Options struct {
	// Caminho do arquivo de log
	Path string

	// Número de entradas acumuladas em memória antes de um flush
	MaxBufferSize int

	// Intervalo máximo entre flushes (background)
	FlushInterval time.Duration

	// Sistema de arquivos; nil usa o OS. Bancos ":memory:" injetam um
	// afero.NewMemMapFs.
	Fs afero.Fs

	// Logger estruturado; zero value fica silencioso
	Logger zerolog.Logger
}

// DefaultOptions retorna uma configuração segura
func DefaultOptions(path string) Options {
	return Options{
		Path:          path,
		MaxBufferSize: 100,
		FlushInterval: 200 * time.Millisecond,
		Fs:            afero.NewOsFs(),
		Logger:        zerolog.Nop(),
	}
}

func (o Options) withDefaults() Options {
	if o.MaxBufferSize <= 0 {
		o.MaxBufferSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 200 * time.Millisecond
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	return o
}
