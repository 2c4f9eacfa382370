package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/webitel/batch-sync/internal/model"
)

// ExportScope is what an export delegate is asked to produce.
type ExportScope struct {
	TenantID     int64
	UserID       int64
	ResourceName string
	// Filter is nil for a full export.
	Filter *model.Filter
}

type ImportScope struct {
	TenantID     int64
	UserID       int64
	ResourceName string
	Operation    model.Operation
}

// ExportDelegate converts domain records into JSON objects. Export calls
// yield once per record and stops at the first yield error.
type ExportDelegate interface {
	Name() string
	Export(ctx context.Context, scope ExportScope, yield func(record []byte) error) error
}

// ImportDelegate applies a batch of JSON objects to the domain store.
type ImportDelegate interface {
	Name() string
	Create(ctx context.Context, scope ImportScope, records [][]byte) error
}

// Registry resolves delegates by name.
type Registry struct {
	mu      sync.RWMutex
	exports map[string]ExportDelegate
	imports map[string]ImportDelegate
}

func NewRegistry() *Registry {
	return &Registry{
		exports: make(map[string]ExportDelegate),
		imports: make(map[string]ImportDelegate),
	}
}

func (r *Registry) RegisterExport(d ExportDelegate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exports[d.Name()] = d
}

func (r *Registry) RegisterImport(d ImportDelegate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imports[d.Name()] = d
}

func (r *Registry) Export(name string) (ExportDelegate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.exports[name]
	if !ok {
		return nil, fmt.Errorf("no export delegate named %q", name)
	}
	return d, nil
}

func (r *Registry) Import(name string) (ImportDelegate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.imports[name]
	if !ok {
		return nil, fmt.Errorf("no import delegate named %q", name)
	}
	return d, nil
}
