// Package registry loads and caches known Uniswap-V2 pair metadata and
// ERC-20 token metadata, resolving pair/token joins for the rest of the
// engine, grounded on original_source/src/common/pools.rs's
// load_all_pools/load_uniswap_v2_pools and tokens.rs's load_all_tokens/
// get_token_info.
package registry

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mev-engine/sandwich-bot/pkg/types"
)

const (
	poolsCacheFile  = "cache/pools.csv"
	tokensCacheFile = "cache/tokens.csv"
)

var poolsHeader = []string{"id", "address", "version", "token0", "token1", "fee", "block_number", "timestamp"}
var tokensHeader = []string{"id", "address", "name", "symbol", "decimals"}

// loadPoolsCache reads every cached pool row, returning an empty slice and
// no error if the file does not yet exist.
func loadPoolsCache(path string) ([]*types.Pool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open pools cache: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read pools cache: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	pools := make([]*types.Pool, 0, len(rows)-1)
	for _, row := range rows[1:] {
		pool, err := types.PoolFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("parse pool row %v: %w", row, err)
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

// loadTokensCache reads every cached token row.
func loadTokensCache(path string) ([]*types.Token, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open tokens cache: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read tokens cache: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	tokens := make([]*types.Token, 0, len(rows)-1)
	for _, row := range rows[1:] {
		token, err := types.TokenFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("parse token row %v: %w", row, err)
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// cacheAppender appends rows to an append-only CSV cache, writing the
// header first if the file is new, mirroring the Rust loaders' single
// OpenOptions::append writer.
type cacheAppender struct {
	f *os.File
	w *csv.Writer
}

func newCacheAppender(path string, header []string) (*cacheAppender, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	_, statErr := os.Stat(path)
	existed := statErr == nil

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open cache for append: %w", err)
	}
	w := csv.NewWriter(f)
	if !existed {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write cache header: %w", err)
		}
	}
	return &cacheAppender{f: f, w: w}, nil
}

func (c *cacheAppender) append(row []string) error {
	return c.w.Write(row)
}

func (c *cacheAppender) close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}
