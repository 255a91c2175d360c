// Package sandwich runs a batch of candidate sandwiches through the forking
// EVM simulator to price a frontrun + victim replay + backrun sequence,
// grounded on original_source/src/sandwich/simulation.rs::BatchSandwich::
// simulate.
package sandwich

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/mev-engine/sandwich-bot/pkg/quote"
	"github.com/mev-engine/sandwich-bot/pkg/simulation"
	"github.com/mev-engine/sandwich-bot/pkg/types"
)

// victimTx wraps a deduplicated victim transaction queued for replay between
// the frontrun and backrun legs.
type victimTx struct {
	tx *ethtypes.Transaction
}

// Bot bundles the addresses the simulator treats as the sandwich contract
// and its controlling EOA. When BotAddress is the zero address a fresh
// throwaway wallet is deployed with Bytecode and funded for the run.
type Bot struct {
	Owner      common.Address
	BotAddress common.Address
	Bytecode   []byte
}

// mintEndowment is the ETH the simulator credits the owner with when no
// funded owner is supplied, matching EvmSimulator::new's 100 ETH mint for a
// fresh simulation owner.
var mintEndowment = new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))

// syntheticOwner and syntheticBotAddress stand in for a real owner/bot pair
// when the caller passes the zero Bot, matching EvmSimulator::new(provider,
// None, ...)'s freshly minted owner and simulation.rs::simulate_sandwich's
// deploy-and-fund branch for a nil bot_address.
var (
	syntheticOwner      = common.HexToAddress("0xB0700000000000000000000000000000000002")
	syntheticBotAddress = common.HexToAddress("0xB0700000000000000000000000000000000001")
)

// Simulate runs batch's frontrun, victim replay, and backrun legs against a
// clone of sim pinned at the given base fee, and returns the resulting
// profit/revenue/gas accounting. frontAccessList/backAccessList may be nil,
// in which case they are derived fresh; passing previously-derived lists
// lets the optimizer's grid search skip redundant tracer runs.
func Simulate(
	sim *simulation.ForkEVM,
	bot Bot,
	batch *types.BatchSandwich,
	baseFee, maxFee *big.Int,
	frontAccessList, backAccessList ethtypes.AccessList,
) (*types.SimulatedSandwich, error) {
	s := sim.Clone()

	owner := bot.Owner
	if owner == (common.Address{}) {
		owner = syntheticOwner
		s.SetEthBalance(owner, mintEndowment)
	}

	pairs := batch.TargetV2Pairs()
	reservesBefore := make(map[common.Address]reservePair, len(pairs))
	for _, pair := range pairs {
		r0, r1, err := s.GetPairReserves(pair)
		if err != nil {
			return nil, fmt.Errorf("read reserves before: %w", err)
		}
		reservesBefore[pair] = reservePair{Reserve0: r0, Reserve1: r1}
	}

	nextBlock := s.GetBlockNumber()

	frontCalldata, victims, startingMC := encodeFrontrunTx(nextBlock.Uint64(), batch, reservesBefore)

	botAddress := bot.BotAddress
	if botAddress == (common.Address{}) {
		botAddress = syntheticBotAddress
		s.Deploy(botAddress, bot.Bytecode)
		s.InsertAccountStorage(botAddress, common.Hash{}, common.BytesToHash(owner.Bytes()))
		for mc, startingValue := range startingMC {
			slot := mc.BalanceSlot()
			s.SetTokenBalance(mc.Address(), botAddress, slot, startingValue)
		}
	}

	mainCurrencies := make([]quote.Currency, 0, len(startingMC))
	for mc := range startingMC {
		mainCurrencies = append(mainCurrencies, mc)
	}

	ethBalanceBefore := s.GetEthBalance(owner)
	mcBalancesBefore := make(map[quote.Currency]*big.Int, len(mainCurrencies))
	for _, mc := range mainCurrencies {
		bal, err := s.GetTokenBalance(mc.Address(), botAddress)
		if err != nil {
			bal = big.NewInt(0)
		}
		mcBalancesBefore[mc] = bal
	}

	s.SetBaseFee(baseFee)

	frontTx := simulation.Tx{
		Caller:     owner,
		TransactTo: botAddress,
		Data:       frontCalldata,
		Value:      big.NewInt(0),
		GasPrice:   baseFee,
		GasLimit:   5_000_000,
	}
	if frontAccessList == nil {
		frontAccessList = s.GetAccessList(frontTx)
	}
	s.SetAccessList(frontAccessList)

	var frontGasUsed uint64
	if res, err := s.Call(frontTx); err == nil {
		frontGasUsed = res.GasUsed
	}

	for _, v := range victims {
		tx := v.tx
		to := common.Address{}
		if tx.To() != nil {
			to = *tx.To()
		}
		_, _ = s.Call(simulation.Tx{
			Caller:     senderOrZero(tx),
			TransactTo: to,
			Data:       tx.Data(),
			Value:      orZero(tx.Value()),
			GasPrice:   orZero(tx.GasPrice()),
			GasLimit:   tx.Gas(),
		})
	}

	s.SetBaseFee(big.NewInt(0))

	reservesAfter := make(map[common.Address]reservePair, len(pairs))
	for _, pair := range pairs {
		r0, r1, err := s.GetPairReserves(pair)
		if err != nil {
			r0, r1 = big.NewInt(0), big.NewInt(0)
		}
		reservesAfter[pair] = reservePair{Reserve0: r0, Reserve1: r1}
	}

	tokenBalances := make(map[common.Address]*big.Int, len(batch.TargetTokens()))
	for _, token := range batch.TargetTokens() {
		bal, err := s.GetTokenBalance(token, botAddress)
		if err != nil {
			bal = big.NewInt(0)
		}
		tokenBalances[token] = bal
	}

	s.SetBaseFee(baseFee)

	backCalldata := encodeBackrunTx(nextBlock.Uint64(), batch, reservesAfter, tokenBalances)

	backTx := simulation.Tx{
		Caller:     owner,
		TransactTo: botAddress,
		Data:       backCalldata,
		Value:      big.NewInt(0),
		GasPrice:   maxFee,
		GasLimit:   5_000_000,
	}
	if backAccessList == nil {
		backAccessList = s.GetAccessList(backTx)
	}
	s.SetAccessList(backAccessList)

	var backGasUsed uint64
	if res, err := s.Call(backTx); err == nil {
		backGasUsed = res.GasUsed
	}

	s.SetBaseFee(big.NewInt(0))

	ethBalanceAfter := s.GetEthBalance(owner)
	mcBalancesAfter := make(map[quote.Currency]*big.Int, len(mainCurrencies))
	for _, mc := range mainCurrencies {
		bal, err := s.GetTokenBalance(mc.Address(), botAddress)
		if err != nil {
			bal = big.NewInt(0)
		}
		mcBalancesAfter[mc] = bal
	}

	ethUsedAsGas := new(big.Int).Sub(ethBalanceBefore, ethBalanceAfter)
	if ethUsedAsGas.Sign() < 0 {
		ethUsedAsGas = new(big.Int).Set(ethBalanceBefore)
	}

	wethBefore := big.NewInt(0)
	wethAfter := big.NewInt(0)
	for _, mc := range mainCurrencies {
		r0, r1 := big.NewInt(0), big.NewInt(0)
		if pair, _, ok := quote.ConversionPool(mc); ok {
			if cr0, cr1, err := s.GetPairReserves(pair); err == nil {
				r0, r1 = cr0, cr1
			}
		}
		wethBefore = new(big.Int).Add(wethBefore, quote.ConvertToWETH(mc, mcBalancesBefore[mc], r0, r1))
		wethAfter = new(big.Int).Add(wethAfter, quote.ConvertToWETH(mc, mcBalancesAfter[mc], r0, r1))
	}

	profit := new(big.Int).Sub(wethAfter, wethBefore)
	gasCost := ethUsedAsGas
	revenue := new(big.Int).Sub(profit, gasCost)

	return &types.SimulatedSandwich{
		Revenue:        revenue,
		Profit:         profit,
		GasCost:        gasCost,
		FrontGasUsed:   frontGasUsed,
		BackGasUsed:    backGasUsed,
		FrontAccessList: frontAccessList,
		BackAccessList:  backAccessList,
		FrontCalldata:   frontCalldata,
		BackCalldata:    backCalldata,
	}, nil
}

func senderOrZero(tx *ethtypes.Transaction) common.Address {
	signer := ethtypes.LatestSignerForChainID(tx.ChainId())
	addr, err := ethtypes.Sender(signer, tx)
	if err != nil {
		return common.Address{}
	}
	return addr
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
