package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"

	"github.com/defistate/defistate-router-go/api"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	callTimeout = 10 * time.Second
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

type console struct {
	client *rpc.Client
	reader *bufio.Reader
}

func main() {
	url := flag.String("url", "http://localhost:8545", "Router JSON-RPC endpoint.")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := rpc.DialContext(ctx, *url)
	if err != nil {
		fmt.Println(Red + "Failed to connect: " + err.Error() + Reset)
		os.Exit(1)
	}
	defer client.Close()

	c := &console{client: client, reader: bufio.NewReader(os.Stdin)}
	c.run(ctx)
}

func (c *console) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		printMenu()
		input, err := c.prompt("Enter selection: ")
		if err != nil {
			return
		}

		switch input {
		case "1":
			c.status(ctx)
		case "2":
			c.quote(ctx)
		case "3":
			c.allPaths(ctx)
		case "4":
			c.multiHopQuote(ctx)
		case "5":
			c.liquidityQuote(ctx)
		case "6":
			c.swapParams(ctx)
		case "h":
			printHelp()
		case "q":
			fmt.Println("Goodbye!")
			return
		default:
			fmt.Println(Red + "Unknown command." + Reset)
		}

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		if _, err := c.reader.ReadString('\n'); err != nil {
			return
		}
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "DEFI ROUTER CONSOLE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Status\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Quote         %s(direct vs optimal)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s3.%s All Paths\n", Cyan, Reset)
	fmt.Printf(" %s4.%s Multi-hop     %s(explicit path)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Liquidity     %s(paired deposit)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s6.%s Swap Params   %s(bounded calldata)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func printHelp() {
	fmt.Print("\033[H\033[2J")
	header("ROUTER")
	fmt.Println("The router keeps an immutable graph of constant-product pools, rebuilt")
	fmt.Println("whenever a new snapshot arrives. Every answer is computed against one")
	fmt.Println("snapshot and carries its " + Yellow + "snapshot version" + Reset + ".")
	fmt.Println("")
	fmt.Println(Bold + "QUOTES" + Reset)
	fmt.Println("   " + Cyan + "direct" + Reset + "  is the best single-pool route, when one exists.")
	fmt.Println("   " + Cyan + "optimal" + Reset + " is the best route of up to max-hops pools.")
	fmt.Println("   Compare their outputs against the extra gas of the longer route.")
	fmt.Println("")
	fmt.Println(Bold + "AMOUNTS" + Reset)
	fmt.Println("   Enter amounts in token units (e.g. 1.5); they are scaled by the")
	fmt.Println("   token's decimals. Prefix with '#' to enter raw base units.")
	fmt.Println("")
	fmt.Println(Bold + "TOKENS" + Reset)
	fmt.Println("   Enter a token address or a symbol known to the snapshot.")
}

func (c *console) status(ctx context.Context) {
	var s api.StatusView
	if !c.call(ctx, &s, "router_status") {
		return
	}
	header("STATUS")
	if !s.Ready {
		fmt.Println(Yellow + "[INFO] Waiting for the first snapshot..." + Reset)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintf(w, "Snapshot\t#%d\t\n", s.Version)
	fmt.Fprintf(w, "Tokens\t%d\t\n", s.Tokens)
	fmt.Fprintf(w, "Pools\t%d\t\n", s.Pools)
	fmt.Fprintf(w, "Excluded pools\t%d\t\n", s.Excluded)
	fmt.Fprintf(w, "Max hops\t%d\t\n", s.MaxHops)
	fmt.Fprintf(w, "Settlement\t%t\t\n", s.Settlement)
	w.Flush()
}

func (c *console) quote(ctx context.Context) {
	header("QUOTE")
	in, out, ok := c.readPair(ctx)
	if !ok {
		return
	}
	amount, ok := c.readAmount("Amount in: ", in)
	if !ok {
		return
	}

	var res api.QuoteResult
	if !c.call(ctx, &res, "router_quote", in.Address, out.Address, amount.String()) {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ROUTE\tHOPS\tOUTPUT\tGAS\tPATH\t")
	fmt.Fprintln(w, "-----\t----\t------\t---\t----\t")
	if res.Direct != nil {
		printQuoteRow(w, "direct", res.Direct, out)
	}
	printQuoteRow(w, "optimal", res.Optimal, out)
	w.Flush()

	if res.Direct != nil && res.Optimal.Hops > res.Direct.Hops {
		gain := subAmounts(res.Optimal.ExpectedOutput, res.Direct.ExpectedOutput)
		fmt.Printf("\n%sMulti-hop gains %s %s for %d extra gas.%s\n",
			Green, formatUnits(gain, out.Decimals), out.Symbol, res.Optimal.GasEstimate-res.Direct.GasEstimate, Reset)
	}
}

func printQuoteRow(w *tabwriter.Writer, name string, q *api.QuoteView, out *api.TokenView) {
	fmt.Fprintf(w, "%s\t%d\t%s %s\t%d\t%s\t\n",
		name, q.Hops, formatUnits(q.ExpectedOutput, out.Decimals), out.Symbol, q.GasEstimate, shortPath(q.Path))
}

func (c *console) allPaths(ctx context.Context) {
	header("ALL PATHS")
	in, out, ok := c.readPair(ctx)
	if !ok {
		return
	}

	var paths []api.PathView
	if !c.call(ctx, &paths, "router_allPaths", in.Address, out.Address) {
		return
	}
	if len(paths) == 0 {
		fmt.Println(Yellow + "[INFO] No paths." + Reset)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "#\tHOPS\tPATH\t")
	for i, p := range paths {
		fmt.Fprintf(w, "%d\t%d\t%s\t\n", i+1, p.Hops, shortPath(p.Path))
	}
	w.Flush()
}

func (c *console) multiHopQuote(ctx context.Context) {
	header("MULTI-HOP QUOTE")
	line, err := c.prompt("Tokens (space separated): ")
	if err != nil {
		return
	}
	var tokens []*api.TokenView
	for _, field := range strings.Fields(line) {
		t, ok := c.lookup(ctx, field)
		if !ok {
			return
		}
		tokens = append(tokens, t)
	}
	if len(tokens) < 2 {
		fmt.Println(Red + "A path needs at least two tokens." + Reset)
		return
	}
	amount, ok := c.readAmount("Amount in: ", tokens[0])
	if !ok {
		return
	}

	path := make([]common.Address, len(tokens))
	for i, t := range tokens {
		path[i] = t.Address
	}
	var q api.QuoteView
	if !c.call(ctx, &q, "router_multiHopQuote", path, amount.String()) {
		return
	}
	last := tokens[len(tokens)-1]
	fmt.Printf("\n%sExpected output:%s %s %s (%d hops, gas %d)\n",
		Green, Reset, formatUnits(q.ExpectedOutput, last.Decimals), last.Symbol, q.Hops, q.GasEstimate)
}

func (c *console) liquidityQuote(ctx context.Context) {
	header("LIQUIDITY QUOTE")
	poolInput, err := c.prompt("Pool address: ")
	if err != nil || !common.IsHexAddress(poolInput) {
		fmt.Println(Red + "Invalid pool address." + Reset)
		return
	}
	token, ok := c.readToken(ctx, "Deposit token: ")
	if !ok {
		return
	}
	amount, ok := c.readAmount("Deposit amount: ", token)
	if !ok {
		return
	}

	var lq api.LiquidityView
	if !c.call(ctx, &lq, "router_liquidityQuote", common.HexToAddress(poolInput), token.Address, amount.String()) {
		return
	}
	if lq.Unconstrained {
		fmt.Println(Yellow + "Empty pool: any ratio is accepted." + Reset)
		return
	}
	paired, ok := c.lookup(ctx, lq.PairedToken.Hex())
	if !ok {
		return
	}
	fmt.Printf("\n%sPair with:%s %s %s\n", Green, Reset, formatUnits(lq.PairedAmount, paired.Decimals), paired.Symbol)
}

func (c *console) swapParams(ctx context.Context) {
	header("SWAP PARAMS")
	in, out, ok := c.readPair(ctx)
	if !ok {
		return
	}
	amount, ok := c.readAmount("Amount in: ", in)
	if !ok {
		return
	}
	recipient, err := c.prompt("Recipient: ")
	if err != nil || !common.IsHexAddress(recipient) {
		fmt.Println(Red + "Invalid recipient." + Reset)
		return
	}

	var p api.SwapParamsView
	if !c.call(ctx, &p, "router_swapParams", in.Address, out.Address, amount.String(), common.HexToAddress(recipient)) {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintf(w, "Amount in\t%s %s\t\n", formatUnits(p.AmountIn, in.Decimals), in.Symbol)
	fmt.Fprintf(w, "Min amount out\t%s %s\t\n", formatUnits(p.MinAmountOut, out.Decimals), out.Symbol)
	fmt.Fprintf(w, "Tolerance\t%d bps\t\n", p.ToleranceBps)
	fmt.Fprintf(w, "Path\t%s\t\n", shortPath(p.Path))
	fmt.Fprintf(w, "Deadline\t%s\t\n", time.Unix(int64(p.Deadline), 0).Format(time.RFC3339))
	w.Flush()
	fmt.Printf("\n%sCalldata:%s %s\n", Bold, Reset, p.Calldata)
}

// --- INPUT HELPERS ---

func (c *console) prompt(label string) (string, error) {
	fmt.Print(Bold + label + Reset)
	input, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func (c *console) readPair(ctx context.Context) (*api.TokenView, *api.TokenView, bool) {
	in, ok := c.readToken(ctx, "Input token: ")
	if !ok {
		return nil, nil, false
	}
	out, ok := c.readToken(ctx, "Output token: ")
	if !ok {
		return nil, nil, false
	}
	return in, out, true
}

func (c *console) readToken(ctx context.Context, label string) (*api.TokenView, bool) {
	input, err := c.prompt(label)
	if err != nil || input == "" {
		return nil, false
	}
	return c.lookup(ctx, input)
}

// lookup resolves a token by address or symbol. Tokens without metadata are kept
// with zero decimals so raw amounts still work.
func (c *console) lookup(ctx context.Context, query string) (*api.TokenView, bool) {
	var t api.TokenView
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	err := c.client.CallContext(callCtx, &t, "router_token", query)
	switch {
	case err == nil:
		return &t, true
	case common.IsHexAddress(query):
		addr := common.HexToAddress(query)
		return &api.TokenView{Address: addr, Symbol: shortAddr(addr)}, true
	}
	printError(err)
	return nil, false
}

func (c *console) readAmount(label string, token *api.TokenView) (*big.Int, bool) {
	input, err := c.prompt(label)
	if err != nil {
		return nil, false
	}
	amount, err := parseUnits(input, token.Decimals)
	if err != nil {
		fmt.Println(Red + err.Error() + Reset)
		return nil, false
	}
	return amount, true
}

func (c *console) call(ctx context.Context, result any, method string, args ...any) bool {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := c.client.CallContext(callCtx, result, method, args...); err != nil {
		printError(err)
		return false
	}
	return true
}

func printError(err error) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := dataErr.ErrorData().(map[string]any); ok {
			fmt.Printf(Red+"[%v] %s%s\n", data["kind"], err, Reset)
			return
		}
	}
	fmt.Println(Red + "[ERROR] " + err.Error() + Reset)
}

// --- FORMATTING ---

// parseUnits converts a human amount to base units. A leading '#' takes the rest as
// base units already.
func parseUnits(s string, decimals uint8) (*big.Int, error) {
	if raw, ok := strings.CutPrefix(s, "#"); ok {
		x, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("invalid base-unit amount %q", raw)
		}
		return x, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%s has more than %d decimals", s, decimals)
	}
	return scaled.BigInt(), nil
}

func formatUnits(amount string, decimals uint8) string {
	x, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return amount
	}
	return decimal.NewFromBigInt(x, -int32(decimals)).String()
}

func subAmounts(a, b string) string {
	x, _ := new(big.Int).SetString(a, 10)
	y, _ := new(big.Int).SetString(b, 10)
	if x == nil || y == nil {
		return "0"
	}
	return new(big.Int).Sub(x, y).String()
}

func shortAddr(a common.Address) string {
	h := a.Hex()
	return h[:6] + ".." + h[len(h)-4:]
}

func shortPath(path []common.Address) string {
	parts := make([]string, len(path))
	for i, a := range path {
		parts[i] = shortAddr(a)
	}
	return strings.Join(parts, " -> ")
}
