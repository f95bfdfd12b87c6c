package schema

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// ErrUnknownEntity is returned by resolvers that have no mapping for an entity type.
var ErrUnknownEntity = errors.New("unknown entity type")

// Resolver resolves the schema of an entity type. Implementations must be
// deterministic: the same entity always resolves to the same descriptor.
type Resolver interface {
	Resolve(ctx context.Context, entity string) (Descriptor, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, entity string) (Descriptor, error)

// Resolve calls the function.
func (f ResolverFunc) Resolve(ctx context.Context, entity string) (Descriptor, error) {
	return f(ctx, entity)
}

// StaticResolver resolves entities from a fixed set of descriptors, usually
// built from configuration.
type StaticResolver map[string]Descriptor

// Resolve returns a copy of the configured descriptor.
func (sr StaticResolver) Resolve(_ context.Context, entity string) (Descriptor, error) {
	d, ok := sr[entity]
	if !ok {
		return Descriptor{}, fmt.Errorf("entity %q: %w", entity, ErrUnknownEntity)
	}
	return d.Clone(), nil
}

// CachingResolver memoizes the descriptors of another resolver. Failed
// resolutions are not cached.
type CachingResolver struct {
	next  Resolver
	cache *lru.Cache
}

// NewCachingResolver returns a resolver that caches up to size descriptors.
func NewCachingResolver(next Resolver, size int) (*CachingResolver, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &CachingResolver{next: next, cache: cache}, nil
}

// Resolve returns the cached descriptor or resolves and caches it.
func (cr *CachingResolver) Resolve(ctx context.Context, entity string) (Descriptor, error) {
	if cached, ok := cr.cache.Get(entity); ok {
		return cached.(Descriptor).Clone(), nil
	}

	d, err := cr.next.Resolve(ctx, entity)
	if err != nil {
		return Descriptor{}, err
	}

	cr.cache.Add(entity, d.Clone())
	return d, nil
}
