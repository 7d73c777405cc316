// Package ats holds the fetch adapter contract shared by the vendor
// packages and the HTTP transport they all use.
package ats

import (
	"context"
	"errors"
	"fmt"

	"jobsync-engine/internal/domain"
)

var ErrUnknownKind = errors.New("no adapter for source kind")

// Adapter turns one vendor board into canonical postings. A board that does
// not exist yields no postings and no error.
type Adapter interface {
	Kind() domain.SourceKind
	Fetch(ctx context.Context, companyKey string) ([]domain.Posting, error)
}

type Registry struct {
	adapters map[domain.SourceKind]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.SourceKind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

func (r *Registry) Fetch(ctx context.Context, kind domain.SourceKind, companyKey string) ([]domain.Posting, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return a.Fetch(ctx, companyKey)
}

func (r *Registry) Kinds() []domain.SourceKind {
	var out []domain.SourceKind
	for _, k := range domain.SourceKinds {
		if _, ok := r.adapters[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
