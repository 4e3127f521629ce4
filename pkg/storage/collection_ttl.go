package storage

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bobboyms/docstore/pkg/query"
)

// EnsureTTL varre o índice oculto de TTL e remove os registros cujo
// instante de inserção ficou além da janela. Roda fora de qualquer
// transação e persiste em seguida. Retorna quantos registros caíram.
func (c *Collection) EnsureTTL() (int, error) {
	if c.ttl == 0 {
		return 0, nil
	}

	cutoff := time.Now().UnixMilli() - c.ttl.Milliseconds()
	expired, err := c.expiredBefore(cutoff)
	if err != nil {
		return 0, err
	}

	for _, id := range expired {
		if _, err := c.RemoveByID(id); err != nil {
			return 0, err
		}
	}

	if len(expired) > 0 {
		c.logger.Debug().Int("expired", len(expired)).Str("collection", c.name).
			Msg("ttl sweep removed records")
		if err := c.Persist(""); err != nil {
			return len(expired), err
		}
	}
	return len(expired), nil
}

// expiredBefore coleta os ponteiros do índice de TTL com chave até o corte.
// O índice é ordenado, então um scan <= corte para sozinho na primeira
// chave viva.
func (c *Collection) expiredBefore(cutoffMillis int64) ([]string, error) {
	mgr, err := c.Index(TTLIndexField)
	if err != nil {
		return nil, err
	}

	var expired []string
	mgr.Scan(mgr.Condition(query.LessOrEqual, cutoffMillis), func(_ string, ptr string) bool {
		expired = append(expired, ptr)
		return true
	})
	return expired, nil
}

// startRotation agenda o arquivamento pela expressão cron da configuração.
func (c *Collection) startRotation(spec string) error {
	rotator := cron.New()
	if _, err := rotator.AddFunc(spec, func() {
		if err := c.Rotate(); err != nil {
			c.logger.Error().Err(err).Str("collection", c.name).Msg("rotation failed")
		}
	}); err != nil {
		return err
	}
	rotator.Start()
	c.rotator = rotator
	return nil
}

func (c *Collection) stopRotation() {
	if c.rotator != nil {
		c.rotator.Stop()
		c.rotator = nil
	}
}

// Rotate copia a coleção para um nome de arquivo datado, zera o estado e
// persiste o vazio.
func (c *Collection) Rotate() error {
	archive := c.name + "_" + time.Now().Format("2006-01-02_15-04-05")

	snap, err := c.Store()
	if err != nil {
		return err
	}
	if c.adapter != nil {
		if err := c.adapter.Store(archive, snap); err != nil {
			return err
		}
	}

	if err := c.Reset(); err != nil {
		return err
	}

	c.logger.Info().Str("collection", c.name).Str("archive", archive).
		Msg("collection rotated")
	return c.Persist("")
}

// RemoveExpired é a varredura manual com corte explícito, usada por
// chamadores que controlam o relógio.
func (c *Collection) RemoveExpired(cutoffMillis int64) (int, error) {
	expired, err := c.expiredBefore(cutoffMillis)
	if err != nil {
		return 0, err
	}
	for _, id := range expired {
		if _, err := c.RemoveByID(id); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}
