package simulation

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
)

// account is the cached, possibly-overridden view of one address, lazily
// populated from the remote backend on first touch. This mirrors revm's
// CacheDB<SharedBackend> layering described in original_source/src/common/
// evm.rs: a local override layer sits in front of a shared, block-pinned
// remote state source.
type account struct {
	balance         *big.Int
	nonce           uint64
	code            []byte
	codeHash        common.Hash
	storage         map[common.Hash]common.Hash
	storageOriginal map[common.Hash]common.Hash
	selfDestructed  bool
	basicFetched    bool
	codeFetched     bool
}

func newAccount() *account {
	return &account{
		balance:         new(big.Int),
		storage:         make(map[common.Hash]common.Hash),
		storageOriginal: make(map[common.Hash]common.Hash),
	}
}

func (a *account) clone() *account {
	cp := &account{
		balance:         new(big.Int).Set(a.balance),
		nonce:           a.nonce,
		code:            a.code,
		codeHash:        a.codeHash,
		storage:         make(map[common.Hash]common.Hash, len(a.storage)),
		storageOriginal: make(map[common.Hash]common.Hash, len(a.storageOriginal)),
		selfDestructed:  a.selfDestructed,
		basicFetched:    a.basicFetched,
		codeFetched:     a.codeFetched,
	}
	for k, v := range a.storage {
		cp.storage[k] = v
	}
	for k, v := range a.storageOriginal {
		cp.storageOriginal[k] = v
	}
	return cp
}

type accessList struct {
	addresses map[common.Address]struct{}
	slots     map[common.Address]map[common.Hash]struct{}
}

func newAccessList() *accessList {
	return &accessList{
		addresses: make(map[common.Address]struct{}),
		slots:     make(map[common.Address]map[common.Hash]struct{}),
	}
}

type snapshot struct {
	id       int
	accounts map[common.Address]*account
	refund   uint64
	logLen   int
}

// forkState implements github.com/ethereum/go-ethereum/core/vm.StateDB over
// a remote ethclient.Client pinned at a fixed block height, with an
// in-memory override layer. Remote reads are fetched lazily and cached;
// writes never touch the remote chain. It is single-threaded: callers clone
// it (Clone) to run independent simulations in parallel, matching spec.md
// §4.C's "clone the backing cache-db to parallelize" requirement.
type forkState struct {
	ctx         context.Context
	client      *ethclient.Client
	atBlock     *big.Int // remote reads are pinned to this height

	mu        sync.Mutex
	accounts  map[common.Address]*account
	logs      []*ethtypes.Log
	refund    uint64
	snapshots []snapshot
	nextSnap  int
	al        *accessList
}

func newForkState(ctx context.Context, client *ethclient.Client, atBlock *big.Int) *forkState {
	return &forkState{
		ctx:      ctx,
		client:   client,
		atBlock:  atBlock,
		accounts: make(map[common.Address]*account),
		al:       newAccessList(),
	}
}

// clone returns an independent copy sharing the same remote backend and
// pinned block height but with its own override layer, so mutations in the
// clone never affect the original.
func (s *forkState) clone() *forkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := &forkState{
		ctx:      s.ctx,
		client:   s.client,
		atBlock:  s.atBlock,
		accounts: make(map[common.Address]*account, len(s.accounts)),
		al:       newAccessList(),
	}
	for addr, acc := range s.accounts {
		cp.accounts[addr] = acc.clone()
	}
	return cp
}

func (s *forkState) get(addr common.Address) *account {
	acc, ok := s.accounts[addr]
	if !ok {
		acc = newAccount()
		s.accounts[addr] = acc
	}
	return acc
}

func (s *forkState) ensureBasic(addr common.Address) *account {
	acc := s.get(addr)
	if acc.basicFetched || s.client == nil {
		acc.basicFetched = true
		return acc
	}
	if bal, err := s.client.BalanceAt(s.ctx, addr, s.atBlock); err == nil {
		acc.balance = bal
	}
	if nonce, err := s.client.NonceAt(s.ctx, addr, s.atBlock); err == nil {
		acc.nonce = nonce
	}
	acc.basicFetched = true
	return acc
}

func (s *forkState) ensureCode(addr common.Address) *account {
	acc := s.ensureBasic(addr)
	if acc.codeFetched || s.client == nil {
		acc.codeFetched = true
		return acc
	}
	if code, err := s.client.CodeAt(s.ctx, addr, s.atBlock); err == nil {
		acc.code = code
		acc.codeHash = crypto.Keccak256Hash(code)
	}
	acc.codeFetched = true
	return acc
}

func (s *forkState) ensureStorage(addr common.Address, key common.Hash) common.Hash {
	acc := s.get(addr)
	if v, ok := acc.storage[key]; ok {
		return v
	}
	if v, ok := acc.storageOriginal[key]; ok {
		return v
	}
	var v common.Hash
	if s.client != nil {
		if remote, err := s.client.StorageAt(s.ctx, addr, key, s.atBlock); err == nil {
			v = common.BytesToHash(remote)
		}
	}
	acc.storageOriginal[key] = v
	return v
}

// --- vm.StateDB ---

func (s *forkState) CreateAccount(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[addr] = newAccount()
}

func (s *forkState) SubBalance(addr common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.ensureBasic(addr)
	acc.balance = new(big.Int).Sub(acc.balance, amount)
}

func (s *forkState) AddBalance(addr common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.ensureBasic(addr)
	acc.balance = new(big.Int).Add(acc.balance, amount)
}

func (s *forkState) GetBalance(addr common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.ensureBasic(addr).balance)
}

func (s *forkState) GetNonce(addr common.Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureBasic(addr).nonce
}

func (s *forkState) SetNonce(addr common.Address, nonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureBasic(addr).nonce = nonce
}

func (s *forkState) GetCodeHash(addr common.Address) common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.ensureCode(addr)
	if len(acc.code) == 0 {
		return common.Hash{}
	}
	return acc.codeHash
}

func (s *forkState) GetCode(addr common.Address) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureCode(addr).code
}

func (s *forkState) SetCode(addr common.Address, code []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.ensureCode(addr)
	acc.code = code
	acc.codeHash = crypto.Keccak256Hash(code)
}

func (s *forkState) GetCodeSize(addr common.Address) int {
	return len(s.GetCode(addr))
}

func (s *forkState) AddRefund(amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refund += amount
}

func (s *forkState) SubRefund(amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if amount > s.refund {
		s.refund = 0
		return
	}
	s.refund -= amount
}

func (s *forkState) GetRefund() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refund
}

func (s *forkState) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureStorage(addr, key)
	return s.get(addr).storageOriginal[key]
}

func (s *forkState) GetState(addr common.Address, key common.Hash) common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureStorage(addr, key)
}

func (s *forkState) SetState(addr common.Address, key, value common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureStorage(addr, key)
	s.get(addr).storage[key] = value
}

func (s *forkState) GetStorageRoot(addr common.Address) common.Hash {
	return common.Hash{}
}

func (s *forkState) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	return common.Hash{}
}

func (s *forkState) SetTransientState(addr common.Address, key, value common.Hash) {}

func (s *forkState) SelfDestruct(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(addr).selfDestructed = true
}

func (s *forkState) HasSelfDestructed(addr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(addr).selfDestructed
}

func (s *forkState) Selfdestruct6780(addr common.Address) {
	s.SelfDestruct(addr)
}

func (s *forkState) Exist(addr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.ensureBasic(addr)
	return acc.balance.Sign() != 0 || acc.nonce != 0 || len(s.ensureCode(addr).code) != 0 || !acc.selfDestructed
}

func (s *forkState) Empty(addr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.ensureCode(addr)
	return acc.balance.Sign() == 0 && acc.nonce == 0 && len(acc.code) == 0
}

func (s *forkState) AddressInAccessList(addr common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.al.addresses[addr]
	return ok
}

func (s *forkState) SlotInAccessList(addr common.Address, slot common.Hash) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, addrOk := s.al.addresses[addr]
	slots, ok := s.al.slots[addr]
	if !ok {
		return addrOk, false
	}
	_, slotOk := slots[slot]
	return addrOk, slotOk
}

func (s *forkState) AddAddressToAccessList(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.al.addresses[addr] = struct{}{}
}

func (s *forkState) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.al.addresses[addr] = struct{}{}
	slots, ok := s.al.slots[addr]
	if !ok {
		slots = make(map[common.Hash]struct{})
		s.al.slots[addr] = slots
	}
	slots[slot] = struct{}{}
}

func (s *forkState) Prepare(rules params.Rules, sender, coinbase common.Address, dst *common.Address, precompiles []common.Address, txAccesses ethtypes.AccessList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.al = newAccessList()
	s.al.addresses[sender] = struct{}{}
	s.al.addresses[coinbase] = struct{}{}
	if dst != nil {
		s.al.addresses[*dst] = struct{}{}
	}
	for _, p := range precompiles {
		s.al.addresses[p] = struct{}{}
	}
	for _, tuple := range txAccesses {
		s.al.addresses[tuple.Address] = struct{}{}
		slots := make(map[common.Hash]struct{}, len(tuple.StorageKeys))
		for _, k := range tuple.StorageKeys {
			slots[k] = struct{}{}
		}
		s.al.slots[tuple.Address] = slots
	}
}

func (s *forkState) Snapshot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSnap
	s.nextSnap++
	accountsCopy := make(map[common.Address]*account, len(s.accounts))
	for addr, acc := range s.accounts {
		accountsCopy[addr] = acc.clone()
	}
	s.snapshots = append(s.snapshots, snapshot{id: id, accounts: accountsCopy, refund: s.refund, logLen: len(s.logs)})
	return id
}

func (s *forkState) RevertToSnapshot(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if s.snapshots[i].id == id {
			s.accounts = s.snapshots[i].accounts
			s.refund = s.snapshots[i].refund
			s.logs = s.logs[:s.snapshots[i].logLen]
			s.snapshots = s.snapshots[:i]
			return
		}
	}
}

func (s *forkState) AddLog(log *ethtypes.Log) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
}

func (s *forkState) AddPreimage(hash common.Hash, preimage []byte) {}

// Logs returns every log recorded since the state was created.
func (s *forkState) Logs() []*ethtypes.Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ethtypes.Log(nil), s.logs...)
}

// setBalance force-sets an account's balance without accounting deltas,
// used to fund the simulation owner.
func (s *forkState) setBalance(addr common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.ensureBasic(addr)
	acc.balance = new(big.Int).Set(amount)
}

// setStorage force-sets a storage slot without going through SetState's
// commit-diff bookkeeping, used by the balance-override technique.
func (s *forkState) setStorage(addr common.Address, key, value common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureStorage(addr, key)
	s.get(addr).storage[key] = value
}

func (s *forkState) deploy(addr common.Address, code []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.ensureCode(addr)
	acc.code = code
	acc.codeHash = crypto.Keccak256Hash(code)
	acc.codeFetched = true
}
