// Package knowledge defines the contract of the knowledge-graph collaborator
// consumed by the AI gateway. All lookups are total: absence yields nil or an
// empty slice, never an error.
package knowledge

// NodeKind classifies graph nodes.
type NodeKind string

const (
	// KindFunction is a function or method node
	KindFunction NodeKind = "function"
	// KindModule is a module/package node
	KindModule NodeKind = "module"
	// KindFile is a file node
	KindFile NodeKind = "file"
)

// FunctionRef identifies one function in the graph.
type FunctionRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	File   string `json:"file"`
	Line   int    `json:"line"`
	Module string `json:"module"`
}

// Node is a resolved graph node.
type Node struct {
	ID         string   `json:"id"`
	Kind       NodeKind `json:"kind"`
	Name       string   `json:"name"`
	File       string   `json:"file"`
	Importance float64  `json:"importance"`
}

// FunctionFilter narrows ListFunctions.
type FunctionFilter struct {
	Module string
	File   string
}

// Graph is the knowledge-graph collaborator.
type Graph interface {
	// GetCallers returns the functions that call ref. Empty on absence.
	GetCallers(ref FunctionRef) []FunctionRef
	// GetCallees returns the functions ref calls. Empty on absence.
	GetCallees(ref FunctionRef) []FunctionRef
	// FindNode resolves a node by kind and id. Nil on absence.
	FindNode(kind NodeKind, id string) *Node
	// ListFunctions lists functions matching the filter.
	ListFunctions(filter FunctionFilter) []FunctionRef
	// ModuleDependencies returns the modules a module depends on.
	ModuleDependencies(module string) []string
	// ModuleDependents returns the modules depending on a module.
	ModuleDependents(module string) []string
}
