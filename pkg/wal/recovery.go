package wal

// txGroup acumula as entradas de uma transação durante o replay.
type txGroup struct {
	data       []*Entry
	committed  bool
	rolledBack bool
}

// replay agrupa as entradas por transação e aplica as entradas DATA das
// transações commitadas, na ordem original do log. Retorna quantas entradas
// foram aplicadas e quantas transações foram descartadas.
func replay(entries []*Entry, appliers map[string]Applier) (int, int, error) {
	groups := make(map[string]*txGroup)
	var order []string

	for _, e := range entries {
		g, ok := groups[e.TransactionID]
		if !ok {
			g = &txGroup{}
			groups[e.TransactionID] = g
			order = append(order, e.TransactionID)
		}

		switch e.Type {
		case EntryData:
			g.data = append(g.data, e)
		case EntryCommit:
			g.committed = true
		case EntryRollback:
			g.rolledBack = true
		}
	}

	applied := 0
	discarded := 0

	for _, txID := range order {
		g := groups[txID]
		if !g.committed || g.rolledBack {
			discarded++
			continue
		}
		for _, e := range g.data {
			if e.CollectionName == "" {
				continue // marcador de checkpoint
			}
			a, ok := appliers[e.CollectionName]
			if !ok {
				continue
			}
			if err := a.ApplyWALEntry(e); err != nil {
				return applied, discarded, err
			}
			applied++
		}
	}
	return applied, discarded, nil
}
