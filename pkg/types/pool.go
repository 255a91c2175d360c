package types

import (
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DexVariant identifies the AMM mechanics a pool implements. Only
// UniswapV2 is supported; spec.md's non-goals exclude concentrated-liquidity
// and other non-constant-product designs.
type DexVariant int

const UniswapV2 DexVariant = 2

// Pool is a discovered Uniswap-V2-style pair, cached in cache/pools.csv.
type Pool struct {
	ID          int64
	Address     common.Address
	Version     DexVariant
	Token0      common.Address
	Token1      common.Address
	FeeBps      uint32
	BlockNumber uint64
	Timestamp   uint64
}

// Trades reports whether this pool's two legs are exactly {a, b}, in either
// order, mirroring original_source/src/common/pools.rs::Pool::trades.
func (p *Pool) Trades(a, b common.Address) bool {
	return (p.Token0 == a && p.Token1 == b) || (p.Token0 == b && p.Token1 == a)
}

// CacheRow serializes the pool as a CSV row in id,address,version,token0,
// token1,fee,block_number,timestamp order, matching the Rust cache format.
func (p *Pool) CacheRow() []string {
	return []string{
		strconv.FormatInt(p.ID, 10),
		p.Address.Hex(),
		strconv.Itoa(int(p.Version)),
		p.Token0.Hex(),
		p.Token1.Hex(),
		strconv.FormatUint(uint64(p.FeeBps), 10),
		strconv.FormatUint(p.BlockNumber, 10),
		strconv.FormatUint(p.Timestamp, 10),
	}
}

// PoolFromRow parses a CSV row produced by CacheRow.
func PoolFromRow(row []string) (*Pool, error) {
	id, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return nil, err
	}
	version, err := strconv.Atoi(row[2])
	if err != nil {
		return nil, err
	}
	fee, err := strconv.ParseUint(row[5], 10, 32)
	if err != nil {
		return nil, err
	}
	blockNumber, err := strconv.ParseUint(row[6], 10, 64)
	if err != nil {
		return nil, err
	}
	timestamp, err := strconv.ParseUint(row[7], 10, 64)
	if err != nil {
		return nil, err
	}
	return &Pool{
		ID:          id,
		Address:     common.HexToAddress(row[1]),
		Version:     DexVariant(version),
		Token0:      common.HexToAddress(row[3]),
		Token1:      common.HexToAddress(row[4]),
		FeeBps:      uint32(fee),
		BlockNumber: blockNumber,
		Timestamp:   timestamp,
	}, nil
}

// Reserves is a point-in-time snapshot of a pool's two reserve balances.
type Reserves struct {
	Reserve0       *big.Int
	Reserve1       *big.Int
	BlockTimestamp time.Time
}
