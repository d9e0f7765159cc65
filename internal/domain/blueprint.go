package domain

import "strings"

// NodeKind classifies blueprint graph nodes.
type NodeKind string

const (
	NodeKindInput    NodeKind = "input"
	NodeKindProducer NodeKind = "producer"
	NodeKindOutput   NodeKind = "output"
)

// BlueprintGraph is the layered content-generation DAG. It is produced
// by the blueprint/build service and consumed read-only here.
type BlueprintGraph struct {
	Name  string
	Nodes []BlueprintNode
	Edges []BlueprintEdge
}

type BlueprintNode struct {
	ID       string
	Kind     NodeKind
	Producer string
}

// BlueprintEdge connects two nodes. A conditional edge counts as a
// dependency for layering but does not guarantee execution.
type BlueprintEdge struct {
	From        string
	To          string
	Conditional bool
	Condition   string
}

// NodeIndex returns nodes keyed by id, skipping blank ids.
func (g BlueprintGraph) NodeIndex() map[string]BlueprintNode {
	index := make(map[string]BlueprintNode, len(g.Nodes))
	for _, node := range g.Nodes {
		if strings.TrimSpace(node.ID) == "" {
			continue
		}
		index[node.ID] = node
	}
	return index
}

// ProducerNodes returns the producer nodes in declaration order.
func (g BlueprintGraph) ProducerNodes() []BlueprintNode {
	out := make([]BlueprintNode, 0, len(g.Nodes))
	for _, node := range g.Nodes {
		if node.Kind == NodeKindProducer {
			out = append(out, node)
		}
	}
	return out
}
