package tokenpoolregistry

import (
	"bytes"
	"math/big"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"

	tokenregistry "github.com/defistate/defistate-router-go/protocols/tokenregistry"
	tokenindexer "github.com/defistate/defistate-router-go/protocols/tokenregistry/indexer"
	uniswapv2 "github.com/defistate/defistate-router-go/protocols/uniswapv2"
	poolindexer "github.com/defistate/defistate-router-go/protocols/uniswapv2/indexer"
)

// Graph is an immutable token/pool graph built from one snapshot. Tokens are vertices and
// each unordered token pair with at least one usable pool is a pair of directed edges.
// All pools trading a pair hang off the same edge, deepest first, so a pair never
// produces duplicate edges.
type Graph struct {
	version uint64

	// Lookups for fast index retrieval
	tokenToIndex map[common.Address]int
	poolToIndex  map[common.Address]int

	// Core data stored in slices for cache-friendly access (DOD)
	tokens      []common.Address
	pools       []uniswapv2.Pool
	adjacency   [][]int // token index -> outgoing edge indices
	edgeTargets []int   // edge index -> target token index
	edgePools   [][]int // edge index -> pool indices

	tokenInfo tokenindexer.IndexedTokenSystem
	listed    poolindexer.IndexedUniswapV2
	excluded  []common.Address
}

// Stats summarizes a graph for status reporting.
type Stats struct {
	Version  uint64 `json:"version"`
	Tokens   int    `json:"tokens"`
	Pools    int    `json:"pools"`
	Edges    int    `json:"edges"`
	Excluded int    `json:"excluded"`
}

// NewGraph builds a graph from a snapshot's tokens and pools. Pools are canonicalized;
// pools with an empty or negative reserve, identical sides or an out-of-range fee are
// left out of the graph and reported by Excluded.
func NewGraph(version uint64, tokens []tokenregistry.Token, pools []uniswapv2.Pool) *Graph {
	g := &Graph{
		version:      version,
		tokenToIndex: make(map[common.Address]int),
		poolToIndex:  make(map[common.Address]int, len(pools)),
		tokens:       make([]common.Address, 0),
		pools:        make([]uniswapv2.Pool, 0, len(pools)),
		tokenInfo:    tokenindexer.New().Index(tokens),
		listed:       poolindexer.New().Index(pools),
	}

	for _, raw := range pools {
		if !raw.Usable() {
			g.excluded = append(g.excluded, raw.ID)
			continue
		}
		if _, dup := g.poolToIndex[raw.ID]; dup {
			g.excluded = append(g.excluded, raw.ID)
			continue
		}
		pool, err := uniswapv2.NewPool(raw.ID, raw.Token0, raw.Token1, raw.Reserve0, raw.Reserve1, raw.FeeBps)
		if err != nil {
			g.excluded = append(g.excluded, raw.ID)
			continue
		}
		g.add(pool)
	}

	for _, list := range g.edgePools {
		sort.Slice(list, func(i, j int) bool {
			return deeper(g.pools[list[i]], g.pools[list[j]])
		})
	}
	return g
}

// deeper orders pools by reserve product, largest first, then by ID.
func deeper(a, b uniswapv2.Pool) bool {
	da := new(big.Int).Mul(a.Reserve0, a.Reserve1)
	db := new(big.Int).Mul(b.Reserve0, b.Reserve1)
	if c := da.Cmp(db); c != 0 {
		return c > 0
	}
	return bytes.Compare(a.ID.Bytes(), b.ID.Bytes()) < 0
}

func (g *Graph) tokenIndex(token common.Address) int {
	idx, exists := g.tokenToIndex[token]
	if !exists {
		idx = len(g.tokens)
		g.tokens = append(g.tokens, token)
		g.tokenToIndex[token] = idx
		g.adjacency = append(g.adjacency, nil)
	}
	return idx
}

// addEdge creates or extends the directed edge from -> to with the given pool.
func (g *Graph) addEdge(from, to, poolIndex int) {
	for _, edgeIndex := range g.adjacency[from] {
		if g.edgeTargets[edgeIndex] == to {
			g.edgePools[edgeIndex] = append(g.edgePools[edgeIndex], poolIndex)
			return
		}
	}

	newEdgeIndex := len(g.edgeTargets)
	g.edgeTargets = append(g.edgeTargets, to)
	g.edgePools = append(g.edgePools, []int{poolIndex})
	g.adjacency[from] = append(g.adjacency[from], newEdgeIndex)
}

func (g *Graph) add(pool uniswapv2.Pool) {
	poolIndex := len(g.pools)
	g.pools = append(g.pools, pool)
	g.poolToIndex[pool.ID] = poolIndex

	a := g.tokenIndex(pool.Token0)
	b := g.tokenIndex(pool.Token1)
	g.addEdge(a, b, poolIndex)
	g.addEdge(b, a, poolIndex)
}

// Version is the snapshot version the graph was built from.
func (g *Graph) Version() uint64 { return g.version }

// Excluded lists the IDs of pools left out of the graph.
func (g *Graph) Excluded() []common.Address {
	out := make([]common.Address, len(g.excluded))
	copy(out, g.excluded)
	return out
}

// Stats counts the graph's vertices, routable pools, directed edges and exclusions.
func (g *Graph) Stats() Stats {
	return Stats{
		Version:  g.version,
		Tokens:   len(g.tokens),
		Pools:    len(g.pools),
		Edges:    len(g.edgeTargets),
		Excluded: len(g.excluded),
	}
}

// Token returns token metadata when the snapshot carried it.
func (g *Graph) Token(address common.Address) (tokenregistry.Token, bool) {
	return g.tokenInfo.GetByAddress(address)
}

// TokenBySymbol resolves a symbol to token metadata (case-insensitive).
func (g *Graph) TokenBySymbol(symbol string) (tokenregistry.Token, bool) {
	return g.tokenInfo.GetBySymbol(symbol)
}

// Pool returns a routable pool by ID.
func (g *Graph) Pool(id common.Address) (uniswapv2.Pool, bool) {
	idx, ok := g.poolToIndex[id]
	if !ok {
		return uniswapv2.Pool{}, false
	}
	return g.pools[idx], true
}

// Listed returns a pool as published in the snapshot, whether or not it is routable.
func (g *Graph) Listed(id common.Address) (uniswapv2.Pool, bool) {
	return g.listed.GetByID(id)
}

// ListedBetween returns every pool the snapshot lists for the unordered pair, in ID order.
// Unlike PoolBetween it includes pools left out of the graph.
func (g *Graph) ListedBetween(x, y common.Address) []uniswapv2.Pool {
	return g.listed.GetByPair(x, y)
}

// PoolsFor returns every routable pool that trades token, ordered by ID.
func (g *Graph) PoolsFor(token common.Address) []uniswapv2.Pool {
	ids := g.PoolIDsFor(token).ToSlice()
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i].Bytes(), ids[j].Bytes()) < 0
	})
	pools := make([]uniswapv2.Pool, len(ids))
	for i, id := range ids {
		pools[i] = g.pools[g.poolToIndex[id]]
	}
	return pools
}

// PoolIDsFor returns the IDs of every routable pool that trades token.
func (g *Graph) PoolIDsFor(token common.Address) mapset.Set[common.Address] {
	set := mapset.NewThreadUnsafeSet[common.Address]()
	idx, ok := g.tokenToIndex[token]
	if !ok {
		return set
	}
	for _, edgeIndex := range g.adjacency[idx] {
		for _, poolIndex := range g.edgePools[edgeIndex] {
			set.Add(g.pools[poolIndex].ID)
		}
	}
	return set
}

// PoolBetween returns the deepest routable pool trading the unordered pair.
func (g *Graph) PoolBetween(x, y common.Address) (uniswapv2.Pool, bool) {
	from, ok := g.tokenToIndex[x]
	if !ok {
		return uniswapv2.Pool{}, false
	}
	to, ok := g.tokenToIndex[y]
	if !ok {
		return uniswapv2.Pool{}, false
	}
	edge := g.EdgeBetween(from, to)
	if edge < 0 {
		return uniswapv2.Pool{}, false
	}
	return g.pools[g.edgePools[edge][0]], true
}

// --- Index-level access for traversal. Indices are only meaningful for this graph. ---

// NumTokens returns the number of vertices.
func (g *Graph) NumTokens() int { return len(g.tokens) }

// TokenIndex returns the vertex index of token.
func (g *Graph) TokenIndex(token common.Address) (int, bool) {
	idx, ok := g.tokenToIndex[token]
	return idx, ok
}

// TokenAt returns the address of vertex i.
func (g *Graph) TokenAt(i int) common.Address { return g.tokens[i] }

// Edges returns the outgoing edge indices of vertex i. The slice must not be modified.
func (g *Graph) Edges(i int) []int { return g.adjacency[i] }

// EdgeTarget returns the vertex an edge leads to.
func (g *Graph) EdgeTarget(edge int) int { return g.edgeTargets[edge] }

// EdgePools returns the pool indices carried by an edge, deepest first. The slice must not be modified.
func (g *Graph) EdgePools(edge int) []int { return g.edgePools[edge] }

// PoolAt returns pool i.
func (g *Graph) PoolAt(i int) uniswapv2.Pool { return g.pools[i] }

// EdgeBetween returns the edge from vertex from to vertex to, or -1.
func (g *Graph) EdgeBetween(from, to int) int {
	for _, edgeIndex := range g.adjacency[from] {
		if g.edgeTargets[edgeIndex] == to {
			return edgeIndex
		}
	}
	return -1
}
