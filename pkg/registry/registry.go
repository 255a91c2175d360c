package registry

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/mev-engine/sandwich-bot/pkg/types"
)

// Registry holds the discovered pool and token universe, read-only after
// Load completes, matching spec.md §5's "Registry maps are read-only
// after startup."
type Registry struct {
	mu     sync.RWMutex
	pools  map[common.Address]*types.Pool
	tokens map[common.Address]*types.Token
}

// Pool satisfies pkg/extractor's PoolLookup interface.
func (r *Registry) Pool(addr common.Address) (*types.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[addr]
	return p, ok
}

// Token looks up a resolved token by address.
func (r *Registry) Token(addr common.Address) (*types.Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[addr]
	return t, ok
}

// PoolCount and TokenCount report the current universe size.
func (r *Registry) PoolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

func (r *Registry) TokenCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}

// Load reads the pools/tokens caches rooted at cacheDir (empty means the
// process working directory's "cache/" per spec.md §6), extends the pool
// cache with any PairCreated events emitted since the last cached block
// (or from block defaultFromBlock on a cold cache), resolves metadata for
// any newly discovered token, and appends both caches. Pools with a token
// whose metadata could not be resolved stay in the pools cache but are left
// out of the returned Registry. Cache I/O failure is fatal at startup,
// matching spec.md §7.
func Load(ctx context.Context, client *ethclient.Client, cacheDir string, defaultFromBlock uint64) (*Registry, error) {
	if cacheDir == "" {
		cacheDir = "cache"
	}
	poolsPath := cacheDir + "/pools.csv"
	tokensPath := cacheDir + "/tokens.csv"

	cachedPools, err := loadPoolsCache(poolsPath)
	if err != nil {
		return nil, fmt.Errorf("load pools cache: %w", err)
	}
	cachedTokens, err := loadTokensCache(tokensPath)
	if err != nil {
		return nil, fmt.Errorf("load tokens cache: %w", err)
	}

	lastID := int64(-1)
	fromBlock := defaultFromBlock
	if len(cachedPools) > 0 {
		sort.Slice(cachedPools, func(i, j int) bool { return cachedPools[i].BlockNumber < cachedPools[j].BlockNumber })
		last := cachedPools[len(cachedPools)-1]
		lastID = last.ID
		fromBlock = last.BlockNumber + 1
	}

	toBlock, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain head: %w", err)
	}

	var freshPools []*types.Pool
	if fromBlock <= toBlock {
		freshPools, err = scanPairCreated(ctx, client, fromBlock, toBlock, lastID)
		if err != nil {
			return nil, fmt.Errorf("scan PairCreated: %w", err)
		}
	}

	poolsAppender, err := newCacheAppender(poolsPath, poolsHeader)
	if err != nil {
		return nil, fmt.Errorf("open pools cache for append: %w", err)
	}
	for _, p := range freshPools {
		if err := poolsAppender.append(p.CacheRow()); err != nil {
			poolsAppender.close()
			return nil, fmt.Errorf("append pool row: %w", err)
		}
	}
	if err := poolsAppender.close(); err != nil {
		return nil, fmt.Errorf("flush pools cache: %w", err)
	}

	allPools := append(cachedPools, freshPools...)
	pools := make(map[common.Address]*types.Pool, len(allPools))
	for _, p := range allPools {
		pools[p.Address] = p
	}

	tokens := make(map[common.Address]*types.Token, len(cachedTokens))
	nextTokenID := int64(0)
	for _, t := range cachedTokens {
		tokens[t.Address] = t
		if t.ID >= nextTokenID {
			nextTokenID = t.ID + 1
		}
	}

	var newTokens []*types.Token
	headNumber := new(big.Int).SetUint64(toBlock)
	for _, p := range allPools {
		for _, leg := range []common.Address{p.Token0, p.Token1} {
			if _, ok := tokens[leg]; ok {
				continue
			}
			name, symbol, decimals, err := resolveTokenInfo(ctx, client, leg, headNumber)
			if err != nil {
				continue
			}
			token := &types.Token{ID: nextTokenID, Address: leg, Name: name, Symbol: symbol, Decimals: decimals}
			tokens[leg] = token
			newTokens = append(newTokens, token)
			nextTokenID++
		}
	}

	for addr, p := range pools {
		_, ok0 := tokens[p.Token0]
		_, ok1 := tokens[p.Token1]
		if !ok0 || !ok1 {
			delete(pools, addr)
		}
	}

	for _, p := range allPools {
		if t, ok := tokens[p.Token0]; ok {
			t.PoolIDs = append(t.PoolIDs, p.ID)
		}
		if t, ok := tokens[p.Token1]; ok {
			t.PoolIDs = append(t.PoolIDs, p.ID)
		}
	}

	tokensAppender, err := newCacheAppender(tokensPath, tokensHeader)
	if err != nil {
		return nil, fmt.Errorf("open tokens cache for append: %w", err)
	}
	for _, t := range newTokens {
		if err := tokensAppender.append(t.CacheRow()); err != nil {
			tokensAppender.close()
			return nil, fmt.Errorf("append token row: %w", err)
		}
	}
	if err := tokensAppender.close(); err != nil {
		return nil, fmt.Errorf("flush tokens cache: %w", err)
	}

	return &Registry{pools: pools, tokens: tokens}, nil
}
