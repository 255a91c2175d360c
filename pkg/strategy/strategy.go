// Package strategy owns the pending-tx and opportunity tables and reacts
// to block/pending-tx events, grounded on original_source/src/sandwich/
// strategy.rs::run_sandwich_strategy.
package strategy

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/mev-engine/sandwich-bot/pkg/alert"
	"github.com/mev-engine/sandwich-bot/pkg/dispatcher"
	"github.com/mev-engine/sandwich-bot/pkg/eventbus"
	"github.com/mev-engine/sandwich-bot/pkg/extractor"
	"github.com/mev-engine/sandwich-bot/pkg/metrics"
	"github.com/mev-engine/sandwich-bot/pkg/packer"
	"github.com/mev-engine/sandwich-bot/pkg/quote"
	"github.com/mev-engine/sandwich-bot/pkg/sandwich"
	"github.com/mev-engine/sandwich-bot/pkg/simulation"
	"github.com/mev-engine/sandwich-bot/pkg/streams"
	"github.com/mev-engine/sandwich-bot/pkg/types"
)

// staleBlocks is the pending-tx staleness horizon, matching spec.md §6's
// victim staleness = 3 blocks.
const staleBlocks = 3

// bribeBps is the builder bribe share, matching spec.md §6 (99%).
const bribeBps = 9900

// bundleRetries is added to the current block number to pick the target
// block a bundle is submitted for.
const bundleRetries = 1

// unboundedBalance stands in for "treat balances as unbounded" under
// Debug mode, matching original_source's `if env.debug { U256::MAX }`.
var unboundedBalance = new(big.Int).Lsh(big.NewInt(1), 128)

// Loop is the strategy loop: the only writer of pendingTxs/promising. Run
// dispatches events one at a time, matching spec.md §5's "processes events
// sequentially"; mu guards the tables and the pause flag against the status
// API's concurrent reads.
type Loop struct {
	client     *ethclient.Client
	extractor  *extractor.Extractor
	pool       *simulation.Pool
	bot        sandwich.Bot
	probeBot   sandwich.Bot
	botAddress common.Address
	dispatcher *dispatcher.Dispatcher
	alertSink  alert.Sink
	recent     *packer.RecentBundles
	metrics    *metrics.Collector
	log        *zap.Logger
	debug      bool

	mu           sync.Mutex
	currentBlock *streams.BlockEvent
	pendingTxs   map[common.Hash]*types.PendingTxInfo
	promising    map[common.Hash][]*types.Sandwich
	paused       bool
}

// Config bundles Loop's constructor dependencies. Bot is the real, funded
// on-chain bot used to dispatch and (outside Debug) to simulate live
// bundles; ProbeBot carries only Bytecode with a zero Owner/BotAddress so
// sandwich.Simulate synthesizes and funds a throwaway bot for probing and
// optimizing, matching appetizer.rs/simulate_sandwich's always-nil bot.
type Config struct {
	Client     *ethclient.Client
	Extractor  *extractor.Extractor
	Pool       *simulation.Pool
	Bot        sandwich.Bot
	ProbeBot   sandwich.Bot
	BotAddress common.Address
	Dispatcher *dispatcher.Dispatcher
	Alert      alert.Sink
	Metrics    *metrics.Collector
	Logger     *zap.Logger
	Debug      bool
}

// New returns a Loop ready to Run against an event bus.
func New(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		client:     cfg.Client,
		extractor:  cfg.Extractor,
		pool:       cfg.Pool,
		bot:        cfg.Bot,
		probeBot:   cfg.ProbeBot,
		botAddress: cfg.BotAddress,
		dispatcher: cfg.Dispatcher,
		alertSink:  cfg.Alert,
		recent:     packer.NewRecentBundles(30),
		metrics:    cfg.Metrics,
		log:        logger,
		debug:      cfg.Debug,
		pendingTxs: make(map[common.Hash]*types.PendingTxInfo),
		promising:  make(map[common.Hash][]*types.Sandwich),
	}
}

// Run consumes bus events until ctx is cancelled. Block and PendingTx
// events are handled strictly in delivery order, matching spec.md §5.
func (l *Loop) Run(ctx context.Context, bus *eventbus.Bus) error {
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-ch:
			switch e := event.(type) {
			case *streams.BlockEvent:
				l.onBlock(ctx, e)
			case *types.PendingTx:
				l.onPendingTx(ctx, e)
			}
		}
	}
}

// onBlock updates the cached head, reaps confirmed and stale pending txs,
// mirroring strategy.rs's Event::Block arm.
func (l *Loop) onBlock(ctx context.Context, block *streams.BlockEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.currentBlock = block
	l.log.Info("new block", zap.Uint64("number", block.Number))

	full, err := l.client.BlockByNumber(ctx, new(big.Int).SetUint64(block.Number))
	if err != nil {
		l.log.Warn("get block with txs failed", zap.Error(err))
	} else {
		for _, tx := range full.Transactions() {
			h := tx.Hash()
			if _, ok := l.pendingTxs[h]; ok {
				delete(l.pendingTxs, h)
				delete(l.promising, h)
			}
		}
	}

	for h, info := range l.pendingTxs {
		if block.Number-info.PendingTx.AddedBlock >= staleBlocks {
			delete(l.pendingTxs, h)
			delete(l.promising, h)
		}
	}

	if l.metrics != nil {
		l.metrics.SetLoopState(block.Number, len(l.pendingTxs), len(l.promising))
	}
}

// onPendingTx admits a newly seen mempool tx, extracts swap info, and
// drives the appetizer/main-dish pipeline, mirroring strategy.rs's
// Event::PendingTx arm.
func (l *Loop) onPendingTx(ctx context.Context, pending *types.PendingTx) {
	tx := pending.Tx
	hash := tx.Hash()

	l.mu.Lock()
	current := l.currentBlock
	_, alreadyKnown := l.pendingTxs[hash]
	paused := l.paused
	l.mu.Unlock()

	if current == nil || paused {
		return
	}

	shouldAdd := false
	if !alreadyKnown {
		if receipt, err := l.client.TransactionReceipt(ctx, hash); err == nil && receipt != nil {
			l.mu.Lock()
			delete(l.pendingTxs, hash)
			l.mu.Unlock()
			return
		}
		shouldAdd = true
	}

	var victimGasPrice *big.Int
	switch tx.Type() {
	case ethtypes.LegacyTxType:
		victimGasPrice = tx.GasPrice()
	case ethtypes.DynamicFeeTxType:
		victimGasPrice = tx.GasFeeCap()
	default:
		return
	}
	if victimGasPrice == nil || victimGasPrice.Cmp(current.BaseFee) < 0 {
		shouldAdd = false
	}
	if !shouldAdd {
		return
	}

	from := senderOf(tx)
	blockNumber := new(big.Int).SetUint64(current.Number)
	swapInfo, err := l.extractor.ExtractSwapInfo(ctx, tx, from, blockNumber)
	if err != nil {
		l.log.Warn("extract swap info failed", zap.Error(err))
		return
	}
	if len(swapInfo) == 0 {
		return
	}

	l.mu.Lock()
	l.pendingTxs[hash] = &types.PendingTxInfo{
		PendingTx:    &types.PendingTx{Tx: tx, AddedBlock: current.Number},
		TouchedPairs: swapInfo,
	}
	l.mu.Unlock()

	prospects := l.appetizer(tx, swapInfo, current)
	if len(prospects) == 0 {
		return
	}

	l.mu.Lock()
	l.promising[hash] = prospects
	l.mu.Unlock()

	l.mainDish(ctx, current)
}

// CurrentBlock, PendingCount, and PromisingCount expose read-only loop
// state for the status API, satisfying api.StatusProvider.
func (l *Loop) CurrentBlock() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.currentBlock == nil {
		return 0
	}
	return l.currentBlock.Number
}

func (l *Loop) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pendingTxs)
}

func (l *Loop) PromisingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.promising)
}

// Pause, Resume, and Paused implement api.Controller, mirroring the
// teacher's emergency_stop/resume_operation override commands: a paused
// loop keeps following blocks and reaping already-tracked pending txs, but
// admits no new pending tx, so nothing is probed or dispatched.
func (l *Loop) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
}

func (l *Loop) Resume() {
	l.mu.Lock()
	l.paused = false
	l.mu.Unlock()
}

func (l *Loop) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

func senderOf(tx *ethtypes.Transaction) common.Address {
	signer := ethtypes.LatestSignerForChainID(tx.ChainId())
	addr, err := ethtypes.Sender(signer, tx)
	if err != nil {
		return common.Address{}
	}
	return addr
}

// ceilingFor and probeFor return the optimizer search ceiling and the
// pre-filter probe size for a main currency, matching spec.md §4.F.
func ceilingFor(mc quote.Currency) *big.Int {
	if mc.IsWETH() {
		return new(big.Int).Mul(big.NewInt(100), pow10(18))
	}
	return new(big.Int).Mul(big.NewInt(300_000), pow10(int(mc.Decimals())))
}

func probeFor(mc quote.Currency) *big.Int {
	if mc.IsWETH() {
		// 0.01 WETH
		return new(big.Int).Mul(big.NewInt(1), pow10(16))
	}
	return new(big.Int).Mul(big.NewInt(10), pow10(int(mc.Decimals())))
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
