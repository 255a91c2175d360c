package simulation

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForkState_StorageOverrideAndSnapshot(t *testing.T) {
	s := newForkState(nil, nil, big.NewInt(1))
	addr := common.HexToAddress("0xAAAA000000000000000000000000000000AAAA")
	key := common.HexToHash("0x01")

	assert.Equal(t, common.Hash{}, s.GetState(addr, key))

	snap := s.Snapshot()
	s.SetState(addr, key, common.HexToHash("0x2a"))
	assert.Equal(t, common.HexToHash("0x2a"), s.GetState(addr, key))

	s.RevertToSnapshot(snap)
	assert.Equal(t, common.Hash{}, s.GetState(addr, key))
}

func TestForkState_Clone_IsIndependent(t *testing.T) {
	s := newForkState(nil, nil, big.NewInt(1))
	addr := common.HexToAddress("0xBBBB000000000000000000000000000000BBBB")
	s.setBalance(addr, big.NewInt(100))

	clone := s.clone()
	clone.setBalance(addr, big.NewInt(999))

	assert.Equal(t, big.NewInt(100), s.GetBalance(addr))
	assert.Equal(t, big.NewInt(999), clone.GetBalance(addr))
}

func TestBalanceSlotKey_Deterministic(t *testing.T) {
	owner := common.HexToAddress("0xCCCC000000000000000000000000000000CCCC")
	k1 := balanceSlotKey(owner, 3)
	k2 := balanceSlotKey(owner, 3)
	k3 := balanceSlotKey(owner, 9)
	require.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestForkEVM_AccessListFallsBackToEmptyOnError(t *testing.T) {
	f := NewForkEVM(nil, nil, big.NewInt(1), common.Address{})
	f.Deploy(common.Address{2}, []byte{0xfe}) // INVALID opcode: the call always errors
	al := f.GetAccessList(Tx{
		Caller:     common.Address{1},
		TransactTo: common.Address{2},
		Data:       []byte{0xff, 0xff, 0xff, 0xff},
		GasLimit:   21000,
	})
	assert.NotNil(t, al)
	assert.Empty(t, al)
}
