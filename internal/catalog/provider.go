package catalog

import (
	"context"

	"github.com/seiyaku/anibridge/internal/store"
)

const entriesKey = "catalog/entries"

// Ensure StoreProvider implements Provider interface
var _ Provider = (*StoreProvider)(nil)

// StoreProvider reads the catalog from the key-value store, where the
// surrounding application's scraper deposits it. An absent key is an
// empty catalog, not an error.
type StoreProvider struct {
	st store.Store
}

func NewStoreProvider(st store.Store) *StoreProvider {
	return &StoreProvider{st: st}
}

// GetCatalog implements Provider.
func (p *StoreProvider) GetCatalog(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := p.st.Get(entriesKey, &entries)
	if err == store.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Put replaces the stored catalog.
func (p *StoreProvider) Put(entries []Entry) error {
	return p.st.Set(entriesKey, entries)
}
