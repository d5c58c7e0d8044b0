package router

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/defistate-router-go/failure"
	tokenpoolregistry "github.com/defistate/defistate-router-go/protocols/tokenpoolregistry"
	calculator "github.com/defistate/defistate-router-go/protocols/uniswapv2/calculator"
)

const (
	modeExactIn  = "exact_in"
	modeExactOut = "exact_out"
	modeAll      = "all"
)

// Finder runs bounded-depth path searches over a Graph. It holds no per-search state and
// is safe for concurrent use; each call works entirely against the graph it was given.
type Finder struct {
	maxHops   int
	minOutput *big.Int
	parallel  bool
	single    bool
	logger    Logger
	metrics   *Metrics
}

// NewFinder constructs a Finder from a configuration, returning an error if the config is invalid.
func NewFinder(cfg *Config) (*Finder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxHops := cfg.MaxHops
	if maxHops == 0 {
		maxHops = DefaultMaxHops
	}
	if cfg.SingleHopOnly {
		maxHops = 1
	}
	minOutput := big.NewInt(1)
	if cfg.MinOutput != nil {
		minOutput = new(big.Int).Set(cfg.MinOutput)
	}

	return &Finder{
		maxHops:   maxHops,
		minOutput: minOutput,
		parallel:  cfg.Parallel,
		single:    cfg.SingleHopOnly,
		logger:    cfg.Logger,
		metrics:   NewMetrics(cfg.Registry),
	}, nil
}

// MaxHops returns the configured search depth.
func (f *Finder) MaxHops() int { return f.maxHops }

// FindBestPath finds the path from tokenIn to tokenOut that delivers the most output for
// amountIn, together with the best direct path if any.
func (f *Finder) FindBestPath(g *tokenpoolregistry.Graph, tokenIn, tokenOut common.Address, amountIn *big.Int) (*Result, error) {
	timer := prometheus.NewTimer(f.metrics.searchDuration.WithLabelValues(modeExactIn))
	defer timer.ObserveDuration()

	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amountIn must be positive, got %v", failure.ErrInvalidAmount, amountIn)
	}
	start, end, err := f.endpoints(g, tokenIn, tokenOut, modeExactIn)
	if err != nil {
		return nil, err
	}

	var col *collector
	if f.parallel {
		col = f.searchParallel(g, start, end, amountIn)
	} else {
		col = &collector{better: betterExactIn}
		s := newSearch(g, start, end, f.maxHops, f.minOutput)
		s.visit = func(hops []Hop) { col.offer(pricedQuote(hops)) }
		s.walk(start, amountIn)
	}

	return f.result(g, col, tokenIn, tokenOut, modeExactIn, false)
}

// searchParallel gives every first hop out of start its own goroutine and search state.
func (f *Finder) searchParallel(g *tokenpoolregistry.Graph, start, end int, amountIn *big.Int) *collector {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		merged = &collector{better: betterExactIn}
	)

	for _, edge := range g.Edges(start) {
		next := g.EdgeTarget(edge)
		for _, poolIndex := range g.EdgePools(edge) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				local := &collector{better: betterExactIn}
				s := newSearch(g, start, end, f.maxHops, f.minOutput)
				s.visit = func(hops []Hop) { local.offer(pricedQuote(hops)) }
				s.step(start, next, poolIndex, amountIn)

				mu.Lock()
				merged.merge(local)
				mu.Unlock()
			}()
		}
	}
	wg.Wait()
	return merged
}

// FindBestExactOutput finds the path that needs the least input to deliver amountOut of
// tokenOut. Every structural candidate is priced backwards from the output.
func (f *Finder) FindBestExactOutput(g *tokenpoolregistry.Graph, tokenIn, tokenOut common.Address, amountOut *big.Int) (*Result, error) {
	timer := prometheus.NewTimer(f.metrics.searchDuration.WithLabelValues(modeExactOut))
	defer timer.ObserveDuration()

	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amountOut must be positive, got %v", failure.ErrInvalidAmount, amountOut)
	}
	start, end, err := f.endpoints(g, tokenIn, tokenOut, modeExactOut)
	if err != nil {
		return nil, err
	}

	col := &collector{better: betterExactOut}
	scratch := make([]Hop, 0, f.maxHops)
	s := newSearch(g, start, end, f.maxHops, f.minOutput)
	s.visit = func(hops []Hop) {
		scratch = append(scratch[:0], hops...)
		if err := priceBackwards(g, scratch, amountOut); err != nil {
			return
		}
		col.offer(&Quote{
			AmountIn:  scratch[0].AmountIn,
			AmountOut: scratch[len(scratch)-1].AmountOut,
			Path:      PathCandidate{Hops: scratch},
		})
	}
	s.walk(start, nil)

	return f.result(g, col, tokenIn, tokenOut, modeExactOut, true)
}

// AllPaths enumerates every structural path from tokenIn to tokenOut of at most maxHops
// pools, ordered by hop count and then by pool sequence. A maxHops of zero uses the
// configured depth.
func (f *Finder) AllPaths(g *tokenpoolregistry.Graph, tokenIn, tokenOut common.Address, maxHops int) ([]PathCandidate, error) {
	timer := prometheus.NewTimer(f.metrics.searchDuration.WithLabelValues(modeAll))
	defer timer.ObserveDuration()

	switch {
	case maxHops == 0:
		maxHops = f.maxHops
	case maxHops < 0 || maxHops > hardMaxHops:
		return nil, failure.Wrap(failure.KindInvalidAmount,
			fmt.Errorf("%w: %d outside [1, %d]", ErrInvalidMaxHops, maxHops, hardMaxHops))
	}
	if f.single {
		maxHops = 1
	}

	start, okIn := g.TokenIndex(tokenIn)
	end, okOut := g.TokenIndex(tokenOut)
	if !okIn || !okOut || start == end {
		return []PathCandidate{}, nil
	}

	paths := make([]PathCandidate, 0)
	s := newSearch(g, start, end, maxHops, f.minOutput)
	s.visit = func(hops []Hop) {
		paths = append(paths, PathCandidate{Hops: hops}.clone())
	}
	s.walk(start, nil)

	sort.Slice(paths, func(i, j int) bool {
		if paths[i].Len() != paths[j].Len() {
			return paths[i].Len() < paths[j].Len()
		}
		return comparePools(paths[i].Hops, paths[j].Hops) < 0
	})
	f.metrics.candidates.WithLabelValues(modeAll).Add(float64(len(paths)))
	return paths, nil
}

func (f *Finder) endpoints(g *tokenpoolregistry.Graph, tokenIn, tokenOut common.Address, mode string) (int, int, error) {
	start, okIn := g.TokenIndex(tokenIn)
	end, okOut := g.TokenIndex(tokenOut)
	switch {
	case tokenIn == tokenOut:
		f.metrics.noPath.WithLabelValues(mode).Inc()
		return 0, 0, fmt.Errorf("%w: %s to itself", failure.ErrNoPathFound, tokenIn.Hex())
	case !okIn || !okOut:
		f.metrics.noPath.WithLabelValues(mode).Inc()
		return 0, 0, fmt.Errorf("%w: %s -> %s: token has no routable pools", failure.ErrNoPathFound, tokenIn.Hex(), tokenOut.Hex())
	}
	return start, end, nil
}

func (f *Finder) result(g *tokenpoolregistry.Graph, col *collector, tokenIn, tokenOut common.Address, mode string, exactOutput bool) (*Result, error) {
	f.metrics.candidates.WithLabelValues(mode).Add(float64(col.count))
	if col.best == nil {
		f.metrics.noPath.WithLabelValues(mode).Inc()
		return nil, fmt.Errorf("%w: %s -> %s within %d hops", failure.ErrNoPathFound, tokenIn.Hex(), tokenOut.Hex(), f.maxHops)
	}

	res := &Result{Optimal: finalize(col.best, g.Version(), exactOutput)}
	if col.direct != nil {
		res.Direct = finalize(col.direct, g.Version(), exactOutput)
	}
	f.logger.Debug("path found",
		"mode", mode,
		"tokenIn", tokenIn,
		"tokenOut", tokenOut,
		"candidates", col.count,
		"hops", res.Optimal.Hops(),
		"amountIn", res.Optimal.AmountIn,
		"amountOut", res.Optimal.AmountOut,
	)
	return res, nil
}

func finalize(q *Quote, version uint64, exactOutput bool) *Quote {
	q.GasEstimate = GasEstimate(q.Hops())
	q.SnapshotVersion = version
	q.ExactOutput = exactOutput
	return q
}

func pricedQuote(hops []Hop) *Quote {
	return &Quote{
		AmountIn:  hops[0].AmountIn,
		AmountOut: hops[len(hops)-1].AmountOut,
		Path:      PathCandidate{Hops: hops},
	}
}

// priceBackwards fills hop amounts from the last hop to the first so the path delivers amountOut.
func priceBackwards(g *tokenpoolregistry.Graph, hops []Hop, amountOut *big.Int) error {
	amount := amountOut
	for i := len(hops) - 1; i >= 0; i-- {
		pool, ok := g.Pool(hops[i].PoolID)
		if !ok {
			return fmt.Errorf("%w: %s", failure.ErrPoolNotFound, hops[i].PoolID.Hex())
		}
		in, err := calculator.GetAmountIn(amount, hops[i].TokenIn, hops[i].TokenOut, pool)
		if err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
		hops[i].AmountIn, hops[i].AmountOut = in, amount
		amount = in
	}
	return nil
}
