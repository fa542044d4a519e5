package invoices

import (
	"context"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Source resolves one kind of billed document. Implementations accept a
// db.Querier so the same resolution runs on the pool for reads or on the
// caller's transaction during a payment mutation.
type Source interface {
	Kind() SourceKind
	Get(ctx context.Context, q db.Querier, tenantID, id int64) (SourceDoc, error)
	SetPaymentStatus(ctx context.Context, q db.Querier, tenantID, id int64, amountPaid float64, status InvoiceStatus) error
}

// Registry maps source kinds to their resolvers.
type Registry struct {
	sources map[SourceKind]Source
}

// NewRegistry builds a registry from the given sources.
func NewRegistry(sources ...Source) *Registry {
	m := make(map[SourceKind]Source, len(sources))
	for _, src := range sources {
		m[src.Kind()] = src
	}
	return &Registry{sources: m}
}

// Resolve returns the source for a kind, or ErrUnknownKind.
func (r *Registry) Resolve(kind SourceKind) (Source, error) {
	src, ok := r.sources[kind]
	if !ok {
		return nil, ErrUnknownKind
	}
	return src, nil
}
