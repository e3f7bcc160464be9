// Package storage provides SQLite-based persistence for the hash-addressed
// document store.
//
// The layout follows the cache's logical model: per content hash there is one
// metadata record, one ordered chunk array, and one parallel embedding array.
// Chunk ids are assigned by the database and are the chunk identity used by
// the in-memory vector index; ChunkIndex exposes the live id -> hash mapping
// so the index can be rebuilt cheaply on startup.
//
// Writes are whole-entry replaces inside a single transaction, so a reader
// never observes a document whose chunk and embedding arrays disagree.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("~/.ragindex/corpus.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.PutDocument(ctx, doc, chunks, vectors)
//
// # Drivers
//
// Two SQLite drivers are supported via build tags: modernc.org/sqlite (pure
// Go, the default) and mattn/go-sqlite3 (cgo, tag "cgo_sqlite").
package storage
