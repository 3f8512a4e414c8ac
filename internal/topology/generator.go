package topology

import (
	"fmt"
	"math/rand"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
)

const defaultRandomDegree = 3
const maxPairingAttempts = 500

// Generate builds the topology of the given kind over n nodes. The result is a
// pure function of its inputs; randomized kinds draw from params.Seed.
func Generate(kind Kind, n int, params Params) (*Topology, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNodeCount, n)
	}

	if params.Matrix != nil {
		kind = Matrix
	}

	switch kind {
	case Fully:
		return generateFully(n, params), nil
	case Ring:
		return generateRing(n, params)
	case Random:
		return generateRandom(n, params), nil
	case Star:
		return generateStar(n, params)
	case Matrix:
		return generateFromMatrix(n, params)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopologyKind, kind)
	}
}

// defaultDegree resolves UndirectedNeighborNum for n nodes. Small node sets
// collapse to n-1 so no node would need an edge to itself.
func defaultDegree(n int, requested int, fallback int) int {
	degree := requested
	if degree <= 0 {
		degree = fallback
	}
	if n <= 2 || degree > n-1 {
		degree = n - 1
	}
	return degree
}

func generateFully(n int, params Params) *Topology {
	params.UndirectedNeighborNum = n - 1
	params.BSymmetric = true

	t := newTopology(Fully, n, params)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			t.connectBoth(i, j)
		}
	}
	return t
}

func generateRing(n int, params Params) (*Topology, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: ring needs at least 2 nodes, got %d", ErrInvalidNodeCount, n)
	}

	params.UndirectedNeighborNum = defaultDegree(n, 2, 2)
	params.BSymmetric = true

	t := newTopology(Ring, n, params)
	for i := 0; i < n; i++ {
		t.connectBoth(i, (i+1)%n)
	}

	// chords across the ring shorten the diameter while keeping it sparse
	if params.IncreaseConvergence && n >= 5 {
		rng := rand.New(rand.NewSource(params.Seed))
		chords := n / 4
		if chords < 1 {
			chords = 1
		}
		for _, i := range rng.Perm(n)[:chords] {
			j := (i + n/2) % n
			if !t.Adjacent(i, j) {
				t.connectBoth(i, j)
			}
		}
	}

	return t, nil
}

func generateRandom(n int, params Params) *Topology {
	degree := defaultDegree(n, params.UndirectedNeighborNum, defaultRandomDegree)
	rng := rand.New(rand.NewSource(params.Seed))

	if !params.BSymmetric {
		params.UndirectedNeighborNum = degree
		return randomDirected(n, degree, params, rng)
	}

	for ; degree >= 1; degree-- {
		if n*degree%2 != 0 {
			continue
		}
		if degree == 1 && n > 2 {
			break
		}

		for attempt := 0; attempt < maxPairingAttempts; attempt++ {
			params.UndirectedNeighborNum = degree
			t, ok := pairStubs(n, degree, params, rng)
			if ok && t.IsConnected() {
				return t
			}
		}
	}

	// a cycle is the sparsest connected regular graph left to fall back on
	params.UndirectedNeighborNum = defaultDegree(n, 2, 2)
	t := newTopology(Random, n, params)
	if n >= 2 {
		for i := 0; i < n; i++ {
			t.connectBoth(i, (i+1)%n)
		}
	}
	return t
}

// pairStubs draws a random degree-regular multigraph with the configuration
// model and rejects it when it has loops or parallel edges.
func pairStubs(n, degree int, params Params, rng *rand.Rand) (*Topology, bool) {
	stubs := make([]int, 0, n*degree)
	for i := 0; i < n; i++ {
		for k := 0; k < degree; k++ {
			stubs = append(stubs, i)
		}
	}
	rng.Shuffle(len(stubs), func(i, j int) {
		stubs[i], stubs[j] = stubs[j], stubs[i]
	})

	t := newTopology(Random, n, params)
	for k := 0; k+1 < len(stubs); k += 2 {
		i, j := stubs[k], stubs[k+1]
		if i == j || t.Adjacent(i, j) {
			return nil, false
		}
		t.connectBoth(i, j)
	}
	return t, true
}

// randomDirected links every node to its successor, which keeps the graph
// strongly connected, then adds degree-1 random out-edges.
func randomDirected(n, degree int, params Params, rng *rand.Rand) *Topology {
	t := newTopology(Random, n, params)
	if n < 2 {
		return t
	}

	for i := 0; i < n; i++ {
		successor := (i + 1) % n
		t.connect(i, successor)

		candidates := []int{}
		for j := 0; j < n; j++ {
			if j != i && j != successor {
				candidates = append(candidates, j)
			}
		}
		rng.Shuffle(len(candidates), func(a, b int) {
			candidates[a], candidates[b] = candidates[b], candidates[a]
		})

		extra := degree - 1
		if extra > len(candidates) {
			extra = len(candidates)
		}
		for _, j := range candidates[:extra] {
			t.connect(i, j)
		}
	}
	return t
}

func generateStar(n int, params Params) (*Topology, error) {
	if params.Federation != common.FEDERATION_CFL {
		return nil, fmt.Errorf("%w: star requires %s, got %q", ErrInvalidTopologyForFederation,
			common.FEDERATION_CFL, params.Federation)
	}
	if n < 2 {
		return nil, fmt.Errorf("%w: star needs at least 2 nodes, got %d", ErrInvalidNodeCount, n)
	}
	if params.ServerIndex < 0 || params.ServerIndex >= n {
		return nil, fmt.Errorf("%w: server index %d not in [0, %d)", ErrInvalidParameter, params.ServerIndex, n)
	}

	params.UndirectedNeighborNum = 1
	params.BSymmetric = true

	t := newTopology(Star, n, params)
	for i := 0; i < n; i++ {
		if i != params.ServerIndex {
			t.connectBoth(params.ServerIndex, i)
		}
	}
	return t, nil
}

func generateFromMatrix(n int, params Params) (*Topology, error) {
	matrix := params.Matrix
	if len(matrix) != n {
		return nil, fmt.Errorf("%w: %d rows for %d nodes", ErrInvalidMatrix, len(matrix), n)
	}

	if n > 2 {
		params.UndirectedNeighborNum = n - 1
	} else {
		params.UndirectedNeighborNum = 2
	}

	t := newTopology(Matrix, n, params)
	for i, row := range matrix {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrInvalidMatrix, i, len(row), n)
		}
		for j, cell := range row {
			switch {
			case cell != 0 && cell != 1:
				return nil, fmt.Errorf("%w: cell (%d,%d) is %d, want 0 or 1", ErrInvalidMatrix, i, j, cell)
			case cell == 1 && i == j:
				return nil, fmt.Errorf("%w: self loop on node %d", ErrInvalidMatrix, i)
			case cell == 1:
				t.connect(i, j)
			}
		}
	}

	if params.BSymmetric && !t.IsSymmetric() {
		return nil, fmt.Errorf("%w: matrix is not symmetric", ErrInvalidMatrix)
	}

	return t, nil
}
