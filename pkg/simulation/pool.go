package simulation

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Pool hands out independent ForkEVM clones pinned at a shared block
// height, so the optimizer's grid search can fan out across goroutines
// without two simulations stepping on each other's state. This adapts the teacher's ForkManager
// pooling concept (pkg/simulation/fork_manager.go in the original tree,
// which pooled real Anvil subprocesses) to pool cloned in-process state
// instead.
type Pool struct {
	mu   sync.Mutex
	base *ForkEVM
}

// NewPool forks state at blockNumber for owner and returns a Pool that
// vends clones of it.
func NewPool(ctx context.Context, client *ethclient.Client, blockNumber *big.Int, owner common.Address) *Pool {
	return &Pool{base: NewForkEVM(ctx, client, blockNumber, owner)}
}

// Base returns the pool's canonical simulator, used for sequential work
// (the strategy loop's own extraction/reserve reads) rather than parallel
// probing.
func (p *Pool) Base() *ForkEVM {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.base
}

// Acquire returns a fresh clone of the pool's base simulator.
func (p *Pool) Acquire() *ForkEVM {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.base.Clone()
}
