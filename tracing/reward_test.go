package tracing

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paritytracer/node/tracing/callframe"
)

func TestIsParisActive(t *testing.T) {
	mainnet := NewRewardCalculator(params.MainnetChainConfig)
	assert.False(t, mainnet.IsParisActive(mainnetParisBlock-1))
	assert.True(t, mainnet.IsParisActive(mainnetParisBlock))
	assert.True(t, mainnet.IsParisActive(mainnetParisBlock+1))

	sepolia := NewRewardCalculator(params.SepoliaChainConfig)
	assert.False(t, sepolia.IsParisActive(sepoliaParisBlock-1))
	assert.True(t, sepolia.IsParisActive(sepoliaParisBlock))

	// spec.md §4.2: "any other chain: treated as Paris-already-active".
	other := NewRewardCalculator(&params.ChainConfig{ChainID: big.NewInt(999999)})
	assert.True(t, other.IsParisActive(0))
	assert.True(t, other.IsParisActive(1))
}

func TestRewardsPreParisNoOmmers(t *testing.T) {
	rc := NewRewardCalculator(params.MainnetChainConfig)
	header := &types.Header{
		Number:   big.NewInt(mainnetParisBlock - 1),
		Coinbase: common.HexToAddress("0xAAA"),
	}
	rewards := rc.Rewards(header, nil)
	require.Len(t, rewards, 1)
	assert.Equal(t, callframe.RewardTypeBlock, rewards[0].RewardType)
	assert.Equal(t, header.Coinbase, rewards[0].Author)
	assert.True(t, rewards[0].Value.Eq(weiConstantinopleBlockReward))
}

func TestRewardsPreParisWithOmmers(t *testing.T) {
	rc := NewRewardCalculator(params.MainnetChainConfig)
	blockNumber := uint64(mainnetConstantinopleBlock + 100)
	header := &types.Header{
		Number:   new(big.Int).SetUint64(blockNumber),
		Coinbase: common.HexToAddress("0xAAA"),
	}
	ommer := &types.Header{
		Number:   new(big.Int).SetUint64(blockNumber - 1),
		Coinbase: common.HexToAddress("0xBBB"),
	}
	rewards := rc.Rewards(header, []*types.Header{ommer})
	require.Len(t, rewards, 2)

	// miner reward = base + base*1/32
	base := weiConstantinopleBlockReward
	bonus := new(uint256.Int).Div(new(uint256.Int).Mul(base, uint256.NewInt(1)), uint256.NewInt(32))
	want := new(uint256.Int).Add(base, bonus)
	assert.True(t, rewards[0].Value.Eq(want), "miner reward")
	assert.Equal(t, callframe.RewardTypeBlock, rewards[0].RewardType)

	// per-ommer reward = base * (8 - 1) / 8
	wantOmmer := new(uint256.Int).Div(new(uint256.Int).Mul(base, uint256.NewInt(7)), uint256.NewInt(8))
	assert.True(t, rewards[1].Value.Eq(wantOmmer), "ommer reward")
	assert.Equal(t, callframe.RewardTypeUncle, rewards[1].RewardType)
	assert.Equal(t, ommer.Coinbase, rewards[1].Author)
}

func TestRewardsPostParisYieldsNothing(t *testing.T) {
	rc := NewRewardCalculator(params.MainnetChainConfig)
	header := &types.Header{Number: big.NewInt(mainnetParisBlock), Coinbase: common.HexToAddress("0xAAA")}
	assert.Nil(t, rc.Rewards(header, nil))
}
