package topology

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/mat"
)

type Kind string

const (
	Fully  Kind = "fully"
	Ring   Kind = "ring"
	Random Kind = "random"
	Star   Kind = "star"
	Matrix Kind = "matrix"
)

var (
	ErrInvalidTopologyKind          = errors.New("invalid topology kind")
	ErrInvalidNodeCount             = errors.New("invalid node count")
	ErrInvalidTopologyForFederation = errors.New("topology not valid for federation")
	ErrInvalidMatrix                = errors.New("invalid adjacency matrix")
	ErrInvalidParameter             = errors.New("invalid topology parameter")
	ErrNodeOutOfRange               = errors.New("node index out of range")
)

// Params holds the per-kind generation parameters. UndirectedNeighborNum is
// the target degree; zero selects the default of the kind.
type Params struct {
	UndirectedNeighborNum int
	BSymmetric            bool
	IncreaseConvergence   bool
	Seed                  int64
	Federation            string
	ServerIndex           int
	Matrix                [][]int
}

// Topology is a graph over participant indices 0..NodeCount-1.
type Topology struct {
	Kind      Kind
	NodeCount int
	Params    Params

	adjacency *mat.Dense
	roles     []string
}

func newTopology(kind Kind, n int, params Params) *Topology {
	return &Topology{
		Kind:      kind,
		NodeCount: n,
		Params:    params,
		adjacency: mat.NewDense(n, n, nil),
		roles:     make([]string, n),
	}
}

func (t *Topology) connect(i, j int) {
	t.adjacency.Set(i, j, 1)
}

func (t *Topology) connectBoth(i, j int) {
	t.adjacency.Set(i, j, 1)
	t.adjacency.Set(j, i, 1)
}

func (t *Topology) checkIndex(i int) error {
	if i < 0 || i >= t.NodeCount {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrNodeOutOfRange, i, t.NodeCount)
	}
	return nil
}

// Adjacent reports whether i has an edge towards j.
func (t *Topology) Adjacent(i, j int) bool {
	if t.checkIndex(i) != nil || t.checkIndex(j) != nil {
		return false
	}
	return t.adjacency.At(i, j) != 0
}

// Neighbors returns the indices reachable from i in ascending order.
func (t *Topology) Neighbors(i int) ([]int, error) {
	if err := t.checkIndex(i); err != nil {
		return nil, err
	}

	neighbors := []int{}
	for j := 0; j < t.NodeCount; j++ {
		if t.adjacency.At(i, j) != 0 {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors, nil
}

func (t *Topology) Degree(i int) int {
	neighbors, err := t.Neighbors(i)
	if err != nil {
		return 0
	}
	return len(neighbors)
}

func (t *Topology) IsSymmetric() bool {
	for i := 0; i < t.NodeCount; i++ {
		for j := i + 1; j < t.NodeCount; j++ {
			if t.adjacency.At(i, j) != t.adjacency.At(j, i) {
				return false
			}
		}
	}
	return true
}

// IsConnected checks connectivity of the undirected view for symmetric graphs
// and strong connectivity otherwise.
func (t *Topology) IsConnected() bool {
	if t.NodeCount <= 1 {
		return true
	}

	if t.IsSymmetric() {
		g := simple.NewUndirectedGraph()
		for i := 0; i < t.NodeCount; i++ {
			g.AddNode(simple.Node(i))
		}
		for i := 0; i < t.NodeCount; i++ {
			for j := i + 1; j < t.NodeCount; j++ {
				if t.adjacency.At(i, j) != 0 {
					g.SetEdge(simple.Edge{F: simple.Node(i), T: simple.Node(j)})
				}
			}
		}
		return len(topo.ConnectedComponents(g)) == 1
	}

	g := simple.NewDirectedGraph()
	for i := 0; i < t.NodeCount; i++ {
		g.AddNode(simple.Node(i))
	}
	for i := 0; i < t.NodeCount; i++ {
		for j := 0; j < t.NodeCount; j++ {
			if i != j && t.adjacency.At(i, j) != 0 {
				g.SetEdge(simple.Edge{F: simple.Node(i), T: simple.Node(j)})
			}
		}
	}
	return len(topo.TarjanSCC(g)) == 1
}

// Edges lists every edge once: undirected pairs as (i, j) with i < j for
// symmetric graphs, every directed edge otherwise.
func (t *Topology) Edges() [][2]int {
	symmetric := t.IsSymmetric()
	edges := [][2]int{}
	for i := 0; i < t.NodeCount; i++ {
		start := 0
		if symmetric {
			start = i + 1
		}
		for j := start; j < t.NodeCount; j++ {
			if t.adjacency.At(i, j) != 0 {
				edges = append(edges, [2]int{i, j})
			}
		}
	}
	return edges
}

// Matrix returns a copy of the adjacency matrix as 0/1 rows.
func (t *Topology) Matrix() [][]int {
	rows := make([][]int, t.NodeCount)
	for i := range rows {
		rows[i] = make([]int, t.NodeCount)
		for j := range rows[i] {
			if t.adjacency.At(i, j) != 0 {
				rows[i][j] = 1
			}
		}
	}
	return rows
}

func (t *Topology) SetRoles(roles []string) error {
	if len(roles) != t.NodeCount {
		return fmt.Errorf("%w: %d roles for %d nodes", ErrInvalidParameter, len(roles), t.NodeCount)
	}
	copy(t.roles, roles)
	return nil
}

func (t *Topology) Role(i int) string {
	if t.checkIndex(i) != nil {
		return ""
	}
	return t.roles[i]
}
