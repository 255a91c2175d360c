package streams

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextBaseFee_AtTargetHoldsBaseFeeOtherThanJitter(t *testing.T) {
	result := NextBaseFee(15_000_000, 30_000_000, big.NewInt(100))
	assert.True(t, result.Cmp(big.NewInt(100)) >= 0)
	assert.True(t, result.Cmp(big.NewInt(108)) <= 0)
}

func TestNextBaseFee_AboveTargetIncreasesBeforeJitter(t *testing.T) {
	result := NextBaseFee(20_000_000, 30_000_000, big.NewInt(100))
	assert.True(t, result.Cmp(big.NewInt(104)) >= 0)
	assert.True(t, result.Cmp(big.NewInt(112)) <= 0)
}

func TestNextBaseFee_BelowTargetDecreasesBeforeJitter(t *testing.T) {
	result := NextBaseFee(5_000_000, 30_000_000, big.NewInt(100))
	assert.True(t, result.Cmp(big.NewInt(92)) >= 0)
	assert.True(t, result.Cmp(big.NewInt(100)) <= 0)
}

func TestNextBaseFee_ZeroGasLimitFallsBackToTargetOne(t *testing.T) {
	assert.NotPanics(t, func() {
		NextBaseFee(0, 0, big.NewInt(100))
	})
}
