package serialize

import (
	"context"
	"strings"

	"github.com/restlessgo/restless"
	"github.com/restlessgo/restless/query"
	"github.com/restlessgo/restless/schema"
	"github.com/restlessgo/restless/storage"
)

// inclusionNode is one level of the inclusion tree. Dotted include
// paths with shared prefixes collapse into a single branch, so
// "comments.author,comments.article" walks comments once.
type inclusionNode struct {
	children map[string]*inclusionNode
}

func newInclusionTree(paths []string) *inclusionNode {
	root := &inclusionNode{children: make(map[string]*inclusionNode)}
	for _, path := range paths {
		node := root
		for _, segment := range strings.Split(path, ".") {
			child, ok := node.children[segment]
			if !ok {
				child = &inclusionNode{children: make(map[string]*inclusionNode)}
				node.children[segment] = child
			}
			node = child
		}
	}
	return root
}

// frontierItem is one pending BFS visit: a record whose relationships
// at the given tree level still need walking.
type frontierItem struct {
	schema *schema.Schema
	record storage.Record
	node   *inclusionNode
}

// ResolveIncludes walks the include paths breadth-first from the
// primary records and returns every related resource encountered,
// intermediates included, deduplicated by (type, id). Resources that
// already appear as primary data are not repeated. Serialization
// failures accumulate into a restless.MultiError covering every failed
// instance.
func ResolveIncludes(ctx context.Context, ser Serializer, repo *storage.Repository, s *schema.Schema, records []storage.Record, paths []string, fields map[string][]string) ([]*restless.Resource, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	root := newInclusionTree(paths)
	seen := make(map[string]bool, len(records))
	for _, record := range records {
		seen[resourceKey(s, record)] = true
	}

	included := make([]*restless.Resource, 0)
	failures := make(restless.MultiError, 0)
	queue := make([]frontierItem, 0, len(records))
	for _, record := range records {
		queue = append(queue, frontierItem{schema: s, record: record, node: root})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		for name, child := range item.node.children {
			related, rel, ok := repo.Registry().Related(item.schema, name)
			if !ok {
				return nil, restless.NewUnknownRelationship(name)
			}

			relatedRecords, err := loadRelated(ctx, repo, item.schema, item.record, rel)
			if err != nil {
				return nil, err
			}

			for _, relatedRecord := range relatedRecords {
				queue = append(queue, frontierItem{schema: related, record: relatedRecord, node: child})

				key := resourceKey(related, relatedRecord)
				if seen[key] {
					continue
				}
				seen[key] = true

				resource, err := ser.Serialize(ctx, related, relatedRecord, fields[related.Type])
				if err != nil {
					// The walk continues so every failed instance is
					// reported, not just the first.
					failures = append(failures, restless.AsError(err))
					continue
				}
				included = append(included, resource)
			}
		}
	}

	if len(failures) > 0 {
		return nil, failures
	}
	return included, nil
}

// loadRelated fetches the far side of one relationship for one record.
// A null to-one link contributes nothing.
func loadRelated(ctx context.Context, repo *storage.Repository, s *schema.Schema, record storage.Record, rel schema.Relationship) ([]storage.Record, error) {
	if rel.IsToMany() {
		page, err := repo.RelatedMany(ctx, s, record, rel, &query.Params{PageNumber: 1})
		if err != nil {
			return nil, err
		}
		return page.Items, nil
	}

	related, err := repo.RelatedOne(ctx, s, record, rel)
	if err != nil {
		return nil, err
	}
	if related == nil {
		return nil, nil
	}
	return []storage.Record{related}, nil
}

func resourceKey(s *schema.Schema, record storage.Record) string {
	return s.Type + ":" + pkString(s, record)
}
