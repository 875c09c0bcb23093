package types

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDelegateSet(weights ...int64) *DelegateSet {
	delz := make([]*Delegate, len(weights))
	for i, w := range weights {
		delz[i] = &Delegate{
			Address:    fmt.Sprintf("ldpos%040d", i),
			VoteWeight: NewAmount(w),
		}
	}
	return NewDelegateSet(delz)
}

// 测试委托人集合的排序：得票权重降序，权重相同按地址升序
func TestDelegateSetOrdering(t *testing.T) {
	dels := newDelegateSet(10, 30, 20, 30)

	require.Equal(t, 4, dels.Size())
	assert.Equal(t, "30", dels.Delegates[0].VoteWeight.String())
	assert.Equal(t, "30", dels.Delegates[1].VoteWeight.String())
	// 同权重的两个按地址升序：1号在3号前
	assert.Equal(t, fmt.Sprintf("ldpos%040d", 1), dels.Delegates[0].Address)
	assert.Equal(t, fmt.Sprintf("ldpos%040d", 3), dels.Delegates[1].Address)
	assert.Equal(t, "10", dels.Delegates[3].VoteWeight.String())
}

// 测试slot轮转：forger = delegates[slot mod size]
func TestGetForgerRotation(t *testing.T) {
	dels := newDelegateSet(40, 30, 20)

	first := dels.GetForger(0)
	second := dels.GetForger(1)
	third := dels.GetForger(2)
	wrapped := dels.GetForger(3)

	assert.Equal(t, dels.Delegates[0].Address, first.Address)
	assert.Equal(t, dels.Delegates[1].Address, second.Address)
	assert.Equal(t, dels.Delegates[2].Address, third.Address)
	assert.Equal(t, first.Address, wrapped.Address)

	var empty *DelegateSet
	assert.Nil(t, empty.GetForger(5))
}

// 测试签名法定数：floor(size*ratio)
func TestSignatureQuorum(t *testing.T) {
	dels := newDelegateSet(1, 1, 1, 1, 1)
	assert.Equal(t, 3, dels.SignatureQuorum(0.6))
	assert.Equal(t, 2, dels.SignatureQuorum(0.5))

	single := newDelegateSet(1)
	assert.Equal(t, 0, single.SignatureQuorum(0.6), "单委托人网络不需要额外签名")
}

func TestDelegateSetCopyIsolation(t *testing.T) {
	dels := newDelegateSet(5)
	cp := dels.Copy()
	cp.Delegates[0].VoteWeight = NewAmount(99)
	assert.Equal(t, "5", dels.Delegates[0].VoteWeight.String())

	// GetForger返回拷贝
	forger := dels.GetForger(0)
	forger.VoteWeight = NewAmount(77)
	assert.Equal(t, "5", dels.Delegates[0].VoteWeight.String())
}

func TestWalletAddressValidation(t *testing.T) {
	assert.True(t, ValidWalletAddress("ldpos", "ldpos"+"00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa"))
	assert.False(t, ValidWalletAddress("ldpos", "clsk"+"00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa"))
	assert.False(t, ValidWalletAddress("ldpos", "ldpos"+"00aa"))
	assert.False(t, ValidWalletAddress("ldpos", "ldpos"+"zz"+"aa00aa00aa00aa00aa00aa00aa00aa00aa00aa"))
}
