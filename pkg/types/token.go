package types

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token is a resolved ERC20 token, cached in cache/tokens.csv.
type Token struct {
	ID       int64
	Address  common.Address
	Name     string
	Symbol   string
	Decimals uint8
	PoolIDs  []int64
}

// CacheRow serializes the token as a CSV row in id,address,name,symbol,
// decimals order, matching original_source/src/common/tokens.rs.
func (t *Token) CacheRow() []string {
	return []string{
		strconv.FormatInt(t.ID, 10),
		t.Address.Hex(),
		t.Name,
		t.Symbol,
		strconv.Itoa(int(t.Decimals)),
	}
}

// TokenFromRow parses a CSV row produced by CacheRow.
func TokenFromRow(row []string) (*Token, error) {
	id, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return nil, err
	}
	decimals, err := strconv.Atoi(row[4])
	if err != nil {
		return nil, err
	}
	return &Token{
		ID:       id,
		Address:  common.HexToAddress(row[1]),
		Name:     strings.TrimSpace(row[2]),
		Symbol:   strings.TrimSpace(row[3]),
		Decimals: uint8(decimals),
	}, nil
}
