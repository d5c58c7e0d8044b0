package settlement

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// routerABI is the subset of the UniswapV2Router02 interface the router calls.
const routerABI = `[
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"amountOut","type":"uint256"},{"name":"amountInMax","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapTokensForExactTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"amountADesired","type":"uint256"},{"name":"amountBDesired","type":"uint256"},{"name":"amountAMin","type":"uint256"},{"name":"amountBMin","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"addLiquidity","outputs":[{"name":"amountA","type":"uint256"},{"name":"amountB","type":"uint256"},{"name":"liquidity","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

const (
	methodSwapExactIn  = "swapExactTokensForTokens"
	methodSwapExactOut = "swapTokensForExactTokens"
	methodAddLiquidity = "addLiquidity"
)

// RouterABI is the parsed router interface.
var RouterABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		panic(fmt.Sprintf("settlement: invalid router ABI: %v", err))
	}
	return parsed
}()

// PackSwapExactIn encodes the calldata of swapExactTokensForTokens.
func PackSwapExactIn(p SwapExactIn) ([]byte, error) {
	if err := checkWords(p.AmountIn, p.MinAmountOut, p.Deadline); err != nil {
		return nil, err
	}
	return RouterABI.Pack(methodSwapExactIn, p.AmountIn, p.MinAmountOut, p.Path, p.Recipient, p.Deadline)
}

// PackSwapExactOut encodes the calldata of swapTokensForExactTokens.
func PackSwapExactOut(p SwapExactOut) ([]byte, error) {
	if err := checkWords(p.AmountOut, p.MaxAmountIn, p.Deadline); err != nil {
		return nil, err
	}
	return RouterABI.Pack(methodSwapExactOut, p.AmountOut, p.MaxAmountIn, p.Path, p.Recipient, p.Deadline)
}

// PackAddLiquidity encodes the calldata of addLiquidity.
func PackAddLiquidity(p AddLiquidity) ([]byte, error) {
	if err := checkWords(p.AmountADesired, p.AmountBDesired, p.Deadline); err != nil {
		return nil, err
	}
	if p.AmountAMin == nil || p.AmountBMin == nil {
		return nil, fmt.Errorf("addLiquidity: minimum amounts must be set")
	}
	return RouterABI.Pack(methodAddLiquidity,
		p.TokenA, p.TokenB,
		p.AmountADesired, p.AmountBDesired,
		p.AmountAMin, p.AmountBMin,
		p.Recipient, p.Deadline,
	)
}
