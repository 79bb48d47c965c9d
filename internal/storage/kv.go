// Package storage provides the durable key-value stores the name map,
// phone index and template blocklist are persisted in.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when a key has never been written.
var ErrNotFound = errors.New("key not found")

// Namespaces used by the engine.
const (
	NamespaceNameMap    = "phone_name_map"
	NamespacePhoneIndex = "instay_archives_phone_index"
	NamespaceBlocklist  = "sent_template_blocklist"
)

// KV is a namespaced key-value store. Every write is flushed to durable
// storage before the call returns. Values are JSON documents.
type KV interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	// PutMany writes all values in one flush.
	PutMany(ctx context.Context, namespace string, values map[string][]byte) error
	All(ctx context.Context, namespace string) (map[string][]byte, error)
	Close() error
}

// Open returns the store for the configured backend.
func Open(backend, dataDir string, opts ...Option) (KV, error) {
	switch backend {
	case "", "file":
		return NewFileStore(dataDir, opts...)
	case "sqlite":
		return NewSQLiteStore(dataDir+"/engine.db", opts...)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
