// Package quote ranks the recognized quote currencies a sandwich can be
// denominated in and converts balances between them.
package quote

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Currency is a recognized quote currency, ranked by preference.
type Currency int

const (
	// Unknown marks a token that is not a recognized quote currency.
	Unknown Currency = iota
	WETH
	USDT
	USDC
)

var addresses = map[Currency]common.Address{
	WETH: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
	USDT: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
	USDC: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
}

var byAddress = map[common.Address]Currency{
	addresses[WETH]: WETH,
	addresses[USDT]: USDT,
	addresses[USDC]: USDC,
}

// rank defines preference order: lower is more preferred. WETH beats USDT
// beats USDC, matching spec.md §6 and original_source's treatment of WETH
// as the default accounting currency.
var rank = map[Currency]int{WETH: 0, USDT: 1, USDC: 2}

var decimals = map[Currency]uint8{WETH: 18, USDT: 6, USDC: 6}

// balanceSlot is the storage slot index of the ERC20 balances mapping for
// each currency's token contract, used by the simulator's balance-override
// technique. Values match spec.md §6 (WETH=3, USDT=2, USDC=9).
var balanceSlot = map[Currency]int64{WETH: 3, USDT: 2, USDC: 9}

// conversionPool is the V2 pair used to value a stablecoin balance in WETH.
type conversionPool struct {
	pair         common.Address
	quoteIsToken0 bool // true if the pool's token0 is the stablecoin (reserve0 == stable)
}

var conversionPools = map[Currency]conversionPool{
	// token0=WETH, token1=USDT; USDT reserve is reserves.1, WETH reserve is reserves.0.
	USDT: {pair: common.HexToAddress("0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852"), quoteIsToken0: false},
	// token0=USDC, token1=WETH; USDC reserve is reserves.0, WETH reserve is reserves.1.
	USDC: {pair: common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"), quoteIsToken0: true},
}

// Address returns the token contract address for a currency.
func (c Currency) Address() common.Address { return addresses[c] }

// Decimals returns the number of decimals of a currency's token.
func (c Currency) Decimals() uint8 { return decimals[c] }

// BalanceSlot returns the ERC20 balances-mapping storage slot index.
func (c Currency) BalanceSlot() int64 { return balanceSlot[c] }

// IsWETH reports whether c is WETH.
func (c Currency) IsWETH() bool { return c == WETH }

// String implements fmt.Stringer.
func (c Currency) String() string {
	switch c {
	case WETH:
		return "WETH"
	case USDT:
		return "USDT"
	case USDC:
		return "USDC"
	default:
		return "unknown"
	}
}

// Lookup returns the Currency for a token address, if it is a recognized
// quote currency.
func Lookup(token common.Address) (Currency, bool) {
	c, ok := byAddress[token]
	return c, ok
}

// RankMainAndTarget picks the main (quote) currency and target token out of
// a pool's two legs. If both legs are recognized quote currencies, the
// higher-ranked one wins (WETH > USDT > USDC) and the other still becomes
// the target. If neither leg is a recognized quote currency, ok is false
// and the swap should be skipped, matching original_source's
// `return_main_and_target_currency`.
func RankMainAndTarget(token0, token1 common.Address) (main Currency, mainIsToken0 bool, ok bool) {
	c0, ok0 := Lookup(token0)
	c1, ok1 := Lookup(token1)
	switch {
	case ok0 && ok1:
		if rank[c0] <= rank[c1] {
			return c0, true, true
		}
		return c1, false, true
	case ok0:
		return c0, true, true
	case ok1:
		return c1, false, true
	default:
		return Unknown, false, false
	}
}

// ConvertToWETH expresses an amount of currency c in WETH terms, using the
// fixed conversion pool's reserves. WETH passes through unchanged.
func ConvertToWETH(c Currency, amount *big.Int, reserve0, reserve1 *big.Int) *big.Int {
	if c == WETH || amount.Sign() == 0 {
		return new(big.Int).Set(amount)
	}
	pool, ok := conversionPools[c]
	if !ok {
		return new(big.Int).Set(amount)
	}
	var reserveIn, reserveOut *big.Int
	if pool.quoteIsToken0 {
		reserveIn, reserveOut = reserve0, reserve1
	} else {
		reserveIn, reserveOut = reserve1, reserve0
	}
	return V2AmountOut(amount, reserveIn, reserveOut)
}

// ConversionPool returns the pair address used to value c in WETH, and
// whether the stablecoin is token0 of that pair.
func ConversionPool(c Currency) (common.Address, bool, bool) {
	pool, ok := conversionPools[c]
	return pool.pair, pool.quoteIsToken0, ok
}

// V2AmountOut computes the Uniswap V2 constant-product output amount,
// exactly matching original_source/src/common/utils.rs::get_v2_amount_out:
// amountInWithFee = amountIn*997; out = amountInWithFee*reserveOut /
// (reserveIn*1000 + amountInWithFee). Division by zero yields zero.
func V2AmountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return big.NewInt(0)
	}
	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(997))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(1000)), amountInWithFee)
	if denominator.Sign() == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Div(numerator, denominator)
}
