// Package category converts the flat category/folder list into the nested
// structure the display layer consumes.
package category

import (
	"sort"

	"github.com/tidemark/tidemark/internal/record"
)

// Node is one entry of the category tree. Children is non-nil only for
// folders.
type Node struct {
	record.Category
	Children []*Node
}

// Tree is the nested display structure built from a flat category list.
type Tree struct {
	Roots []*Node
}

// Build partitions the flat list into folders and plain categories and
// attaches each category to its folder when that folder exists and is not
// soft-deleted; otherwise the category surfaces at top level. Soft-deleted
// entries themselves are dropped. Folders with no surviving children are kept
// in the tree: whether to display empty folders is the caller's decision.
//
// Build is pure and deterministic: the same input always yields the same tree
// shape with children ordered by their own sort field, ties by id.
func Build(flat []record.Category) *Tree {
	folders := make(map[int64]*Node)
	var roots []*Node

	for _, c := range flat {
		if c.Deleted || !c.IsFolder {
			continue
		}
		n := &Node{Category: c, Children: []*Node{}}
		folders[c.ID] = n
		roots = append(roots, n)
	}

	for _, c := range flat {
		if c.Deleted || c.IsFolder {
			continue
		}
		n := &Node{Category: c}
		if parent, ok := folders[c.FolderID]; ok && c.FolderID != 0 {
			parent.Children = append(parent.Children, n)
			continue
		}
		roots = append(roots, n)
	}

	sortNodes(roots)
	for _, f := range folders {
		sortNodes(f.Children)
	}

	return &Tree{Roots: roots}
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].SortOrder != nodes[j].SortOrder {
			return nodes[i].SortOrder < nodes[j].SortOrder
		}
		return nodes[i].ID < nodes[j].ID
	})
}
