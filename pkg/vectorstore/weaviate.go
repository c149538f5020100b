// Package vectorstore wraps the two watched-frames vector store
// operations this control plane consumes: search-by-filter (verifying a
// code has at least one embedded point) and a collection point count.
// Follows the GraphQL().Get().WithClassName()/WithFields() shape from
// pkg/agent/memory/evolvingmemory/query.go; the WithWhere filter builder
// is the weaviate-go-client v5 GraphQL filter API, which the teacher
// repo's queries never needed (they filter by vector distance, not a
// scalar field).
package vectorstore

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// Store exposes the read-only contract C7 needs against the watched-frames
// collection.
type Store struct {
	client     *weaviate.Client
	collection string
}

// New builds a Store pointed at a Weaviate instance, following the
// scheme/host split the weaviate-go-client config requires.
func New(scheme, host, apiKey, collection string) (*Store, error) {
	cfg := weaviate.Config{Scheme: scheme, Host: host}
	if apiKey != "" {
		cfg.Headers = map[string]string{"X-Weaviate-Api-Key": apiKey}
	}
	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("building weaviate client: %w", err)
	}
	return &Store{client: client, collection: collection}, nil
}

// HasPoint reports whether at least one point with video_code == code
// exists in the collection (spec.md §4.7's verify_batch semantics, one RPC
// per code).
func (s *Store) HasPoint(ctx context.Context, code string) (bool, error) {
	where := filters.Where().
		WithPath([]string{"video_code"}).
		WithOperator(filters.Equal).
		WithValueString(code)

	resp, err := s.client.GraphQL().Get().
		WithClassName(s.collection).
		WithWhere(where).
		WithLimit(1).
		WithFields(graphql.Field{Name: "video_code"}).
		Do(ctx)
	if err != nil {
		return false, fmt.Errorf("querying %s for code %q: %w", s.collection, code, err)
	}
	if len(resp.Errors) > 0 {
		return false, fmt.Errorf("graphql errors querying %s for code %q: %v", s.collection, code, resp.Errors)
	}

	data, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return false, nil
	}
	points, ok := data[s.collection].([]interface{})
	if !ok {
		return false, nil
	}
	return len(points) > 0, nil
}

// PointCount returns the total number of points in the collection, via a
// GraphQL Aggregate query's meta.count field.
func (s *Store) PointCount(ctx context.Context) (int, error) {
	resp, err := s.client.GraphQL().Aggregate().
		WithClassName(s.collection).
		WithFields(graphql.Field{
			Name:   "meta",
			Fields: []graphql.Field{{Name: "count"}},
		}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("aggregating %s: %w", s.collection, err)
	}
	if len(resp.Errors) > 0 {
		return 0, fmt.Errorf("graphql errors aggregating %s: %v", s.collection, resp.Errors)
	}

	data, ok := resp.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	entries, ok := data[s.collection].([]interface{})
	if !ok || len(entries) == 0 {
		return 0, nil
	}
	entry, ok := entries[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := entry["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	count, ok := meta["count"].(float64)
	if !ok {
		return 0, nil
	}
	return int(count), nil
}
