package registry

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// erc20 selectors for name()/symbol()/decimals().
var (
	nameSelector     = common.Hex2Bytes("06fdde03")
	symbolSelector   = common.Hex2Bytes("95d89b41")
	decimalsSelector = common.Hex2Bytes("313ce567")
)

var stringType abi.Arguments
var uint8Type abi.Arguments

func init() {
	str, _ := abi.NewType("string", "", nil)
	u8, _ := abi.NewType("uint8", "", nil)
	stringType = abi.Arguments{{Type: str}}
	uint8Type = abi.Arguments{{Type: u8}}
}

// resolveTokenInfo fetches a token's name/symbol/decimals at blockNumber,
// adapting original_source/src/common/tokens.rs::get_token_info. The
// original batches all three calls through an injected multicall contract
// (REQUEST_BYTECODE) so a single eth_call returns every field and survives
// non-standard ABI-mismatched tokens (name/symbol returning bytes32
// instead of string); that helper contract's bytecode is not carried by
// original_source, so each field is called directly here and decoded
// leniently, falling back to a raw bytes32-as-string reading when the
// standard ABI decode fails.
func resolveTokenInfo(ctx context.Context, client *ethclient.Client, token common.Address, blockNumber *big.Int) (name, symbol string, decimals uint8, err error) {
	name, err = callString(ctx, client, token, nameSelector, blockNumber)
	if err != nil {
		return "", "", 0, fmt.Errorf("name(): %w", err)
	}
	symbol, err = callString(ctx, client, token, symbolSelector, blockNumber)
	if err != nil {
		return "", "", 0, fmt.Errorf("symbol(): %w", err)
	}
	decimals, err = callDecimals(ctx, client, token, blockNumber)
	if err != nil {
		return "", "", 0, fmt.Errorf("decimals(): %w", err)
	}
	return name, symbol, decimals, nil
}

func callString(ctx context.Context, client *ethclient.Client, to common.Address, selector []byte, blockNumber *big.Int) (string, error) {
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: selector}, blockNumber)
	if err != nil {
		return "", err
	}
	if decoded, err := stringType.Unpack(out); err == nil && len(decoded) > 0 {
		if s, ok := decoded[0].(string); ok {
			return s, nil
		}
	}
	// Non-standard token (e.g. MKR): name/symbol returned as a raw bytes32.
	if len(out) >= 32 {
		trimmed := bytes.TrimRight(out[:32], "\x00")
		return string(trimmed), nil
	}
	return "", fmt.Errorf("undecodable return data")
}

func callDecimals(ctx context.Context, client *ethclient.Client, to common.Address, blockNumber *big.Int) (uint8, error) {
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: decimalsSelector}, blockNumber)
	if err != nil {
		return 0, err
	}
	decoded, err := uint8Type.Unpack(out)
	if err != nil || len(decoded) == 0 {
		return 0, fmt.Errorf("undecodable return data")
	}
	d, ok := decoded[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type")
	}
	return d, nil
}
