// Package store persists collected watchlists.
//
// Snapshot keeps watchlist_to_results.json current: it is reset to {} when a
// run starts and rewritten after every completed user, through a temp file
// and rename. Flush additionally writes the watched-by companion file on
// interrupt.
//
// Journal is an optional SQLite table with one row per completed user,
// upserted on completion.
//
// Both types implement the collector's Record method:
//
//	snap := store.NewSnapshot(cfg.Output.Path(cfg.Output.ResultsFile), cfg.Output.Path(cfg.Output.WatchedByFile), log)
//	if err := snap.Reset(); err != nil {
//		return err
//	}
//	...
//	if err := snap.Record("alice", list, results); err != nil {
//		log.Error(err.Error())
//	}
package store
