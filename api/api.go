// Package api exposes the router's query surface over go-ethereum JSON-RPC under the
// "router" namespace. Failures carry their failure.Kind as the error code and data.
package api

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/defistate-router-go/failure"
	"github.com/defistate/defistate-router-go/protocols/tokenpoolregistry"
	"github.com/defistate/defistate-router-go/protocols/uniswapv2/calculator"
	"github.com/defistate/defistate-router-go/router"
	"github.com/defistate/defistate-router-go/settlement"
	"github.com/defistate/defistate-router-go/slippage"
)

const (
	// Namespace is the JSON-RPC namespace of the router service.
	Namespace = "router"

	DefaultToleranceBps = 50
	DefaultDeadline     = 20 * time.Minute
)

var (
	// ErrNotReady is returned until the first snapshot has been loaded.
	ErrNotReady = errors.New("no pool snapshot loaded yet")
	// ErrUnknownToken is returned, classified as NoPathFound, when the snapshot carries no
	// metadata for a token.
	ErrUnknownToken = errors.New("unknown token")
	// ErrSettlementDisabled is returned by state-changing methods when no executor is configured.
	ErrSettlementDisabled = errors.New("settlement is not enabled on this server")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// GraphSource returns the current pool graph, or nil before the first snapshot.
type GraphSource interface {
	Graph() *tokenpoolregistry.Graph
}

// Settler executes settlement transactions. *settlement.Executor implements it.
type Settler interface {
	Router() common.Address
	SwapExactIn(ctx context.Context, owner common.Address, q *router.Quote, p settlement.SwapExactIn) (settlement.Execution, error)
	SwapExactOut(ctx context.Context, owner common.Address, q *router.Quote, p settlement.SwapExactOut) (settlement.Execution, error)
	AddLiquidity(ctx context.Context, owner common.Address, p settlement.AddLiquidity) (settlement.Execution, error)
}

// Config configures a RouterAPI.
type Config struct {
	Graphs GraphSource
	Finder *router.Finder
	// Settler is optional; without it the state-changing methods are disabled.
	Settler Settler
	// ToleranceBps is used when a request gives none. Zero means DefaultToleranceBps.
	ToleranceBps uint32
	// Deadline is how long a built transaction stays valid. Zero means DefaultDeadline.
	Deadline time.Duration
	Now      func() time.Time
	Logger   Logger
	Registry prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Graphs == nil {
		return errors.New("config: Graphs cannot be nil")
	}
	if c.Finder == nil {
		return errors.New("config: Finder cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.ToleranceBps >= slippage.MaxToleranceBps {
		return fmt.Errorf("config: ToleranceBps must be below %d, got %d", slippage.MaxToleranceBps, c.ToleranceBps)
	}
	if c.Deadline < 0 {
		return errors.New("config: Deadline cannot be negative")
	}
	return nil
}

// RouterAPI is the JSON-RPC service. Every call reads the graph once and answers from
// that snapshot only.
type RouterAPI struct {
	graphs       GraphSource
	finder       *router.Finder
	settler      Settler
	toleranceBps uint32
	deadline     time.Duration
	now          func() time.Time
	logger       Logger
	metrics      *Metrics
}

func NewRouterAPI(cfg *Config) (*RouterAPI, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	a := &RouterAPI{
		graphs:       cfg.Graphs,
		finder:       cfg.Finder,
		settler:      cfg.Settler,
		toleranceBps: cfg.ToleranceBps,
		deadline:     cfg.Deadline,
		now:          cfg.Now,
		logger:       cfg.Logger,
		metrics:      NewMetrics(cfg.Registry),
	}
	if a.toleranceBps == 0 {
		a.toleranceBps = DefaultToleranceBps
	}
	if a.deadline == 0 {
		a.deadline = DefaultDeadline
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// Register exposes the service on server under Namespace.
func (a *RouterAPI) Register(server *rpc.Server) error {
	return server.RegisterName(Namespace, a)
}

// Status reports the graph currently served.
func (a *RouterAPI) Status(ctx context.Context) StatusView {
	v := StatusView{MaxHops: a.finder.MaxHops(), Settlement: a.settler != nil}
	if g := a.graphs.Graph(); g != nil {
		v.Stats = g.Stats()
		v.Ready = true
	}
	return v
}

// Token looks up token metadata by address or, failing that, by symbol.
func (a *RouterAPI) Token(ctx context.Context, query string) (res *TokenView, err error) {
	defer a.track("token", time.Now(), &err)

	g, err := a.graph()
	if err != nil {
		return nil, err
	}
	t, ok := g.TokenBySymbol(query)
	if common.IsHexAddress(query) {
		t, ok = g.Token(common.HexToAddress(query))
	}
	if !ok {
		return nil, failure.Wrap(failure.KindNoPathFound, fmt.Errorf("%w: %s", ErrUnknownToken, query))
	}
	return &TokenView{Address: t.Address, Name: t.Name, Symbol: t.Symbol, Decimals: t.Decimals}, nil
}

// Quote returns the best direct and overall paths for selling amountIn of tokenIn.
func (a *RouterAPI) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn string) (res *QuoteResult, err error) {
	defer a.track("quote", time.Now(), &err)

	g, amount, err := a.prepare(amountIn)
	if err != nil {
		return nil, err
	}
	r, err := a.finder.FindBestPath(g, tokenIn, tokenOut, amount)
	if err != nil {
		return nil, err
	}
	return newResultView(g, r), nil
}

// QuoteExactOutput returns the cheapest direct and overall paths for buying amountOut of tokenOut.
func (a *RouterAPI) QuoteExactOutput(ctx context.Context, tokenIn, tokenOut common.Address, amountOut string) (res *QuoteResult, err error) {
	defer a.track("quoteExactOutput", time.Now(), &err)

	g, amount, err := a.prepare(amountOut)
	if err != nil {
		return nil, err
	}
	r, err := a.finder.FindBestExactOutput(g, tokenIn, tokenOut, amount)
	if err != nil {
		return nil, err
	}
	return newResultView(g, r), nil
}

// AllPaths lists every path of at most maxHops pools between the pair. maxHops may be
// omitted to use the server's depth.
func (a *RouterAPI) AllPaths(ctx context.Context, tokenIn, tokenOut common.Address, maxHops *int) (res []PathView, err error) {
	defer a.track("allPaths", time.Now(), &err)

	g, err := a.graph()
	if err != nil {
		return nil, err
	}
	depth := 0
	if maxHops != nil {
		if *maxHops <= 0 {
			return nil, failure.Wrap(failure.KindInvalidAmount,
				fmt.Errorf("%w: maxHops must be positive, got %d", router.ErrInvalidMaxHops, *maxHops))
		}
		depth = *maxHops
	}
	paths, err := a.finder.AllPaths(g, tokenIn, tokenOut, depth)
	if err != nil {
		return nil, err
	}
	res = make([]PathView, 0, len(paths))
	for _, p := range paths {
		res = append(res, newPathView(p))
	}
	return res, nil
}

// MultiHopQuote prices amountIn along an explicit token path.
func (a *RouterAPI) MultiHopQuote(ctx context.Context, path []common.Address, amountIn string) (res *QuoteView, err error) {
	defer a.track("multiHopQuote", time.Now(), &err)

	g, amount, err := a.prepare(amountIn)
	if err != nil {
		return nil, err
	}
	q, err := router.MultiHopQuote(g, path, amount)
	if err != nil {
		return nil, err
	}
	return newQuoteView(g, q), nil
}

// MultiHopQuoteExactOutput prices the input needed to receive amountOut along an explicit path.
func (a *RouterAPI) MultiHopQuoteExactOutput(ctx context.Context, path []common.Address, amountOut string) (res *QuoteView, err error) {
	defer a.track("multiHopQuoteExactOutput", time.Now(), &err)

	g, amount, err := a.prepare(amountOut)
	if err != nil {
		return nil, err
	}
	q, err := router.MultiHopQuoteExactOutput(g, path, amount)
	if err != nil {
		return nil, err
	}
	return newQuoteView(g, q), nil
}

// LiquidityQuote returns the amount of the pool's other token that matches a deposit of
// amount of token at the current ratio.
func (a *RouterAPI) LiquidityQuote(ctx context.Context, pool, token common.Address, amount string) (res *LiquidityView, err error) {
	defer a.track("liquidityQuote", time.Now(), &err)

	g, x, err := a.prepare(amount)
	if err != nil {
		return nil, err
	}
	p, ok := g.Pool(pool)
	if !ok {
		if _, listed := g.Listed(pool); listed {
			return nil, fmt.Errorf("%w: %s is not routable", failure.ErrPoolNotFound, pool.Hex())
		}
		return nil, fmt.Errorf("%w: %s", failure.ErrPoolNotFound, pool.Hex())
	}
	paired, ok := p.Other(token)
	if !ok {
		return nil, fmt.Errorf("%w: token %s not in pool %s", failure.ErrPoolNotFound, token.Hex(), pool.Hex())
	}
	reserveIn, reserveOut, err := calculator.GetReserves(token, paired, p)
	if err != nil {
		return nil, err
	}
	lq, err := calculator.QuoteLiquidity(reserveIn, reserveOut, x)
	if err != nil {
		return nil, err
	}
	return &LiquidityView{
		Pool:          pool,
		Token:         token,
		PairedToken:   paired,
		Amount:        x.String(),
		PairedAmount:  amountString(lq.Amount),
		Unconstrained: lq.Unconstrained,
	}, nil
}

// SwapParams routes amountIn and returns the bounded exact-input swap for recipient,
// with its calldata.
func (a *RouterAPI) SwapParams(ctx context.Context, tokenIn, tokenOut common.Address, amountIn string, recipient common.Address, toleranceBps *uint32) (res *SwapParamsView, err error) {
	defer a.track("swapParams", time.Now(), &err)

	g, q, p, err := a.buildExactIn(tokenIn, tokenOut, amountIn, recipient, toleranceBps)
	if err != nil {
		return nil, err
	}
	data, err := settlement.PackSwapExactIn(p)
	if err != nil {
		return nil, err
	}
	return &SwapParamsView{
		Quote:        newQuoteView(g, q),
		AmountIn:     p.AmountIn.String(),
		MinAmountOut: p.MinAmountOut.String(),
		Path:         p.Path,
		Recipient:    p.Recipient,
		Deadline:     p.Deadline.Uint64(),
		ToleranceBps: a.tolerance(toleranceBps),
		Calldata:     data,
	}, nil
}

// SwapExactOutputParams routes a purchase of amountOut and returns the bounded
// exact-output swap for recipient, with its calldata.
func (a *RouterAPI) SwapExactOutputParams(ctx context.Context, tokenIn, tokenOut common.Address, amountOut string, recipient common.Address, toleranceBps *uint32) (res *SwapExactOutParamsView, err error) {
	defer a.track("swapExactOutputParams", time.Now(), &err)

	g, q, p, err := a.buildExactOut(tokenIn, tokenOut, amountOut, recipient, toleranceBps)
	if err != nil {
		return nil, err
	}
	data, err := settlement.PackSwapExactOut(p)
	if err != nil {
		return nil, err
	}
	return &SwapExactOutParamsView{
		Quote:        newQuoteView(g, q),
		AmountOut:    p.AmountOut.String(),
		MaxAmountIn:  p.MaxAmountIn.String(),
		Path:         p.Path,
		Recipient:    p.Recipient,
		Deadline:     p.Deadline.Uint64(),
		ToleranceBps: a.tolerance(toleranceBps),
		Calldata:     data,
	}, nil
}

// AddLiquidityParams sizes a deposit into pool. amountB may be null to take the
// ratio-implied amount.
func (a *RouterAPI) AddLiquidityParams(ctx context.Context, pool, tokenA common.Address, amountA string, amountB *string, recipient common.Address, toleranceBps *uint32) (res *AddLiquidityParamsView, err error) {
	defer a.track("addLiquidityParams", time.Now(), &err)

	p, err := a.buildAddLiquidity(pool, tokenA, amountA, amountB, recipient, toleranceBps)
	if err != nil {
		return nil, err
	}
	data, err := settlement.PackAddLiquidity(p)
	if err != nil {
		return nil, err
	}
	return &AddLiquidityParamsView{
		TokenA:         p.TokenA,
		TokenB:         p.TokenB,
		AmountADesired: p.AmountADesired.String(),
		AmountBDesired: p.AmountBDesired.String(),
		AmountAMin:     p.AmountAMin.String(),
		AmountBMin:     p.AmountBMin.String(),
		Recipient:      p.Recipient,
		Deadline:       p.Deadline.Uint64(),
		Calldata:       data,
	}, nil
}

// Swap routes and settles an exact-input swap from owner's account.
func (a *RouterAPI) Swap(ctx context.Context, owner, tokenIn, tokenOut common.Address, amountIn string, recipient common.Address, toleranceBps *uint32) (res *ExecutionView, err error) {
	defer a.track("swap", time.Now(), &err)

	if a.settler == nil {
		return nil, ErrSettlementDisabled
	}
	_, q, p, err := a.buildExactIn(tokenIn, tokenOut, amountIn, recipient, toleranceBps)
	if err != nil {
		return nil, err
	}
	exec, err := a.settler.SwapExactIn(ctx, owner, q, p)
	if err != nil {
		return nil, err
	}
	a.logger.Info("swap settled", "owner", owner, "tx", exec.TxHash, "hops", q.Hops())
	return newExecutionView(exec), nil
}

// SwapExactOutput routes and settles an exact-output swap from owner's account.
func (a *RouterAPI) SwapExactOutput(ctx context.Context, owner, tokenIn, tokenOut common.Address, amountOut string, recipient common.Address, toleranceBps *uint32) (res *ExecutionView, err error) {
	defer a.track("swapExactOutput", time.Now(), &err)

	if a.settler == nil {
		return nil, ErrSettlementDisabled
	}
	_, q, p, err := a.buildExactOut(tokenIn, tokenOut, amountOut, recipient, toleranceBps)
	if err != nil {
		return nil, err
	}
	exec, err := a.settler.SwapExactOut(ctx, owner, q, p)
	if err != nil {
		return nil, err
	}
	a.logger.Info("swap settled", "owner", owner, "tx", exec.TxHash, "hops", q.Hops())
	return newExecutionView(exec), nil
}

// AddLiquidity sizes and settles a deposit from owner's account.
func (a *RouterAPI) AddLiquidity(ctx context.Context, owner, pool, tokenA common.Address, amountA string, amountB *string, recipient common.Address, toleranceBps *uint32) (res *ExecutionView, err error) {
	defer a.track("addLiquidity", time.Now(), &err)

	if a.settler == nil {
		return nil, ErrSettlementDisabled
	}
	p, err := a.buildAddLiquidity(pool, tokenA, amountA, amountB, recipient, toleranceBps)
	if err != nil {
		return nil, err
	}
	exec, err := a.settler.AddLiquidity(ctx, owner, p)
	if err != nil {
		return nil, err
	}
	a.logger.Info("liquidity added", "owner", owner, "pool", pool, "tx", exec.TxHash)
	return newExecutionView(exec), nil
}

func (a *RouterAPI) buildExactIn(tokenIn, tokenOut common.Address, amountIn string, recipient common.Address, toleranceBps *uint32) (*tokenpoolregistry.Graph, *router.Quote, settlement.SwapExactIn, error) {
	g, amount, err := a.prepare(amountIn)
	if err != nil {
		return nil, nil, settlement.SwapExactIn{}, err
	}
	r, err := a.finder.FindBestPath(g, tokenIn, tokenOut, amount)
	if err != nil {
		return nil, nil, settlement.SwapExactIn{}, err
	}
	b, err := slippage.Apply(r.Optimal, a.tolerance(toleranceBps), slippage.ExactInput)
	if err != nil {
		return nil, nil, settlement.SwapExactIn{}, err
	}
	p, err := settlement.BuildSwapExactIn(r.Optimal, b, recipient, a.now().Add(a.deadline))
	if err != nil {
		return nil, nil, settlement.SwapExactIn{}, err
	}
	return g, r.Optimal, p, nil
}

func (a *RouterAPI) buildExactOut(tokenIn, tokenOut common.Address, amountOut string, recipient common.Address, toleranceBps *uint32) (*tokenpoolregistry.Graph, *router.Quote, settlement.SwapExactOut, error) {
	g, amount, err := a.prepare(amountOut)
	if err != nil {
		return nil, nil, settlement.SwapExactOut{}, err
	}
	r, err := a.finder.FindBestExactOutput(g, tokenIn, tokenOut, amount)
	if err != nil {
		return nil, nil, settlement.SwapExactOut{}, err
	}
	b, err := slippage.Apply(r.Optimal, a.tolerance(toleranceBps), slippage.ExactOutput)
	if err != nil {
		return nil, nil, settlement.SwapExactOut{}, err
	}
	p, err := settlement.BuildSwapExactOut(r.Optimal, b, recipient, a.now().Add(a.deadline))
	if err != nil {
		return nil, nil, settlement.SwapExactOut{}, err
	}
	return g, r.Optimal, p, nil
}

func (a *RouterAPI) buildAddLiquidity(pool, tokenA common.Address, amountA string, amountB *string, recipient common.Address, toleranceBps *uint32) (settlement.AddLiquidity, error) {
	g, x, err := a.prepare(amountA)
	if err != nil {
		return settlement.AddLiquidity{}, err
	}
	var y *big.Int
	if amountB != nil {
		if y, err = parseAmount(*amountB); err != nil {
			return settlement.AddLiquidity{}, err
		}
	}
	p, ok := g.Pool(pool)
	if !ok {
		return settlement.AddLiquidity{}, fmt.Errorf("%w: %s", failure.ErrPoolNotFound, pool.Hex())
	}
	return settlement.BuildAddLiquidity(p, tokenA, x, y, a.tolerance(toleranceBps), recipient, a.now().Add(a.deadline))
}

func (a *RouterAPI) graph() (*tokenpoolregistry.Graph, error) {
	g := a.graphs.Graph()
	if g == nil {
		return nil, ErrNotReady
	}
	return g, nil
}

// prepare loads the graph and parses the request amount.
func (a *RouterAPI) prepare(amount string) (*tokenpoolregistry.Graph, *big.Int, error) {
	g, err := a.graph()
	if err != nil {
		return nil, nil, err
	}
	x, err := parseAmount(amount)
	if err != nil {
		return nil, nil, err
	}
	return g, x, nil
}

func (a *RouterAPI) tolerance(bps *uint32) uint32 {
	if bps == nil {
		return a.toleranceBps
	}
	return *bps
}

// track records the request and flattens err for the wire.
func (a *RouterAPI) track(method string, start time.Time, errp *error) {
	a.metrics.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if *errp == nil {
		a.metrics.requests.WithLabelValues(method, "ok").Inc()
		return
	}

	kind := failure.KindOf(*errp)
	label := string(kind)
	if kind == failure.KindUnknown {
		label = "internal"
		a.logger.Warn("request failed", "method", method, "error", *errp)
	} else {
		a.logger.Debug("request rejected", "method", method, "kind", kind, "error", *errp)
	}
	a.metrics.requests.WithLabelValues(method, label).Inc()
	*errp = failure.Public(*errp)
}

// parseAmount accepts a base-10 integer or a 0x-prefixed hex integer. Leading zeros are
// decimal, never octal.
func parseAmount(s string) (*big.Int, error) {
	digits, base := s, 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits, base = s[2:], 16
	}
	x, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer", failure.ErrInvalidAmount, s)
	}
	if x.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", failure.ErrInvalidAmount, x)
	}
	return x, nil
}
