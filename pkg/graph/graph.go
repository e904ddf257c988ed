package graph

// NodeKind tags which side of the user-book graph a node belongs to.
type NodeKind uint8

const (
	KindUser NodeKind = iota
	KindBook
)

func (k NodeKind) String() string {
	if k == KindUser {
		return "user"
	}
	return "book"
}

// NodeID identifies a graph node without string-prefix encoding: the
// kind and the entity id are separate fields, so user and book ids can
// never collide.
type NodeID struct {
	Kind NodeKind
	ID   string
}

func UserNode(id string) NodeID {
	return NodeID{Kind: KindUser, ID: id}
}

func BookNode(id string) NodeID {
	return NodeID{Kind: KindBook, ID: id}
}

// Graph is an undirected graph over an adjacency-set map. Edges are
// idempotent and self-loops are rejected.
type Graph struct {
	adj map[NodeID]map[NodeID]struct{}
}

func New() *Graph {
	return &Graph{
		adj: make(map[NodeID]map[NodeID]struct{}),
	}
}

// AddNode ensures the node exists. Idempotent.
func (g *Graph) AddNode(n NodeID) {
	if _, ok := g.adj[n]; !ok {
		g.adj[n] = make(map[NodeID]struct{})
	}
}

// AddEdge connects a and b in both directions, creating either node if
// absent. Adding an edge from a node to itself is a no-op.
func (g *Graph) AddEdge(a, b NodeID) {
	if a == b {
		return
	}
	g.AddNode(a)
	g.AddNode(b)
	g.adj[a][b] = struct{}{}
	g.adj[b][a] = struct{}{}
}

func (g *Graph) Contains(n NodeID) bool {
	_, ok := g.adj[n]
	return ok
}

// Neighbors returns the nodes adjacent to n, empty if n is absent.
func (g *Graph) Neighbors(n NodeID) []NodeID {
	neighbors := make([]NodeID, 0, len(g.adj[n]))
	for neighbor := range g.adj[n] {
		neighbors = append(neighbors, neighbor)
	}
	return neighbors
}

// Visit is a node discovered by BFS together with its minimum depth
// from the start node.
type Visit struct {
	Node  NodeID
	Depth int
}

// BFS traverses breadth-first from start up to maxDepth hops inclusive.
// Each reachable node appears exactly once at its minimum depth, in
// non-decreasing depth order. An absent start yields an empty result.
// Sibling order follows map iteration and is arbitrary.
func (g *Graph) BFS(start NodeID, maxDepth int) []Visit {
	if _, ok := g.adj[start]; !ok {
		return nil
	}
	visited := map[NodeID]struct{}{start: {}}
	frontier := []Visit{{Node: start, Depth: 0}}
	order := make([]Visit, 0, len(frontier))

	for i := 0; i < len(frontier); i++ {
		current := frontier[i]
		order = append(order, current)
		if current.Depth >= maxDepth {
			continue
		}
		for neighbor := range g.adj[current.Node] {
			if _, seen := visited[neighbor]; seen {
				continue
			}
			visited[neighbor] = struct{}{}
			frontier = append(frontier, Visit{Node: neighbor, Depth: current.Depth + 1})
		}
	}
	return order
}
