package router

import (
	"math/big"

	"github.com/defistate/defistate-router-go/bitset"
	tokenpoolregistry "github.com/defistate/defistate-router-go/protocols/tokenpoolregistry"
	calculator "github.com/defistate/defistate-router-go/protocols/uniswapv2/calculator"
)

// search is the state of one depth-first walk. It is not safe for concurrent use;
// parallel searches each own one.
type search struct {
	g         *tokenpoolregistry.Graph
	target    int
	maxHops   int
	minOutput *big.Int
	visited   bitset.BitSet
	hops      []Hop
	pruned    int

	// visit is called with the hop stack each time the walk reaches the target.
	// The slice is reused after visit returns.
	visit func(hops []Hop)
}

func newSearch(g *tokenpoolregistry.Graph, start, target, maxHops int, minOutput *big.Int) *search {
	visited := bitset.NewBitSet(uint64(g.NumTokens()))
	visited.Set(uint64(start))
	return &search{
		g:         g,
		target:    target,
		maxHops:   maxHops,
		minOutput: minOutput,
		visited:   visited,
		hops:      make([]Hop, 0, maxHops),
	}
}

// walk explores every pool incident to current whose other side is not yet on the path.
// A nil amount walks structurally without pricing.
func (s *search) walk(current int, amount *big.Int) {
	if len(s.hops) >= s.maxHops {
		return
	}
	for _, edge := range s.g.Edges(current) {
		next := s.g.EdgeTarget(edge)
		if s.visited.IsSet(uint64(next)) {
			continue
		}
		for _, poolIndex := range s.g.EdgePools(edge) {
			s.step(current, next, poolIndex, amount)
		}
	}
}

// step takes a single hop through a pool, then either completes or descends.
func (s *search) step(current, next, poolIndex int, amount *big.Int) {
	pool := s.g.PoolAt(poolIndex)
	hop := Hop{PoolID: pool.ID, TokenIn: s.g.TokenAt(current), TokenOut: s.g.TokenAt(next)}

	if amount != nil {
		out, err := calculator.GetAmountOut(amount, hop.TokenIn, hop.TokenOut, pool)
		if err != nil || out.Cmp(s.minOutput) < 0 {
			// The branch dies here; siblings are unaffected.
			s.pruned++
			return
		}
		hop.AmountIn, hop.AmountOut = amount, out
	}

	s.hops = append(s.hops, hop)
	if next == s.target {
		s.visit(s.hops)
	} else {
		s.visited.Set(uint64(next))
		s.walk(next, hop.AmountOut)
		s.visited.Unset(uint64(next))
	}
	s.hops = s.hops[:len(s.hops)-1]
}

// collector keeps the best candidate seen so far and the best single-hop one.
type collector struct {
	better func(a, b *Quote) bool
	best   *Quote
	direct *Quote
	count  int
}

// offer considers a priced hop stack. Only winners are copied.
func (c *collector) offer(q *Quote) {
	c.count++
	if q.Hops() == 1 && c.better(q, c.direct) {
		c.direct = copyQuote(q)
	}
	if c.better(q, c.best) {
		c.best = copyQuote(q)
	}
}

func (c *collector) merge(o *collector) {
	c.count += o.count
	if o.direct != nil && c.better(o.direct, c.direct) {
		c.direct = o.direct
	}
	if o.best != nil && c.better(o.best, c.best) {
		c.best = o.best
	}
}

func copyQuote(q *Quote) *Quote {
	cp := *q
	cp.Path = q.Path.clone()
	return &cp
}
