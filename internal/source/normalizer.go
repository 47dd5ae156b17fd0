// Package source turns provider payloads into canonical readings and resolves
// which provider endpoint to poll for a plant.
package source

import (
	"fmt"
	"sort"
	"time"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
)

// Normalizer parses the payload of one provider kind. It returns ok=false
// when the payload is well formed but carries no observation yet. Malformed
// payloads yield an error wrapping domain.ErrMalformedPayload. The returned
// reading has no PlantID; the caller owns that association.
type Normalizer interface {
	Kind() domain.SourceKind
	Normalize(raw []byte) (reading domain.Reading, ok bool, err error)
}

// Registry maps source kinds to their normalizers.
type Registry struct {
	normalizers map[domain.SourceKind]Normalizer
}

// NewRegistry builds a registry from the given normalizers. A later
// normalizer for the same kind replaces an earlier one.
func NewRegistry(normalizers ...Normalizer) *Registry {
	r := &Registry{normalizers: make(map[domain.SourceKind]Normalizer, len(normalizers))}
	for _, n := range normalizers {
		r.normalizers[n.Kind()] = n
	}
	return r
}

// DefaultRegistry registers every built-in provider integration. loc is the
// zone used for hidro.lt timestamps that carry no offset.
func DefaultRegistry(loc *time.Location) *Registry {
	return NewRegistry(NewHidroLT(loc), NewMeteoLT())
}

// Lookup returns the normalizer for kind.
func (r *Registry) Lookup(kind domain.SourceKind) (Normalizer, error) {
	n, ok := r.normalizers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no normalizer for kind %q", domain.ErrUnknownSource, kind)
	}
	return n, nil
}

// Kinds lists the registered kinds in lexical order.
func (r *Registry) Kinds() []domain.SourceKind {
	kinds := make([]domain.SourceKind, 0, len(r.normalizers))
	for k := range r.normalizers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Normalize parses raw with the normalizer registered for kind.
func (r *Registry) Normalize(kind domain.SourceKind, raw []byte) (domain.Reading, bool, error) {
	n, err := r.Lookup(kind)
	if err != nil {
		return domain.Reading{}, false, err
	}
	return n.Normalize(raw)
}
