package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// Delegate 委托人记录，得票权重为所有投票者余额之和
type Delegate struct {
	Address    string  `json:"address"`
	VoteWeight *Amount `json:"voteWeight"`

	ForgingPublicKey     tmbytes.HexBytes `json:"forgingPublicKey,omitempty"`
	NextForgingPublicKey tmbytes.HexBytes `json:"nextForgingPublicKey,omitempty"`
	NextForgingKeyIndex  uint64           `json:"nextForgingKeyIndex"`

	UpdateHeight uint64 `json:"updateHeight"`
}

func NewDelegate(address string) *Delegate {
	return &Delegate{
		Address:    address,
		VoteWeight: ZeroAmount(),
	}
}

func (d *Delegate) ValidateBasic() error {
	if d == nil {
		return errors.New("nil delegate")
	}
	if d.Address == "" {
		return errors.New("delegate has no address")
	}
	if d.VoteWeight == nil || d.VoteWeight.Sign() < 0 {
		return errors.New("delegate has invalid vote weight")
	}
	return nil
}

func (d *Delegate) Copy() *Delegate {
	if d == nil {
		return nil
	}
	cp := *d
	cp.VoteWeight = d.VoteWeight.Clone()
	return &cp
}

func (d *Delegate) String() string {
	if d == nil {
		return "nil-Delegate"
	}
	return fmt.Sprintf("Delegate{%v %v}", d.Address, d.VoteWeight)
}

// DelegateSet represents the active delegates at a given height.
//
// Delegates are sorted by vote weight (descending), ties broken by address
// (ascending), so slot rotation is deterministic across nodes. The forger of a
// slot is delegates[slot mod len].
//
// NOTE: Not goroutine-safe.
// NOTE: All get/set to delegates should copy the value for safety.
type DelegateSet struct {
	Delegates []*Delegate `json:"delegates"`
}

// NewDelegateSet sorts `delz` into rotation order and copies it into a new
// DelegateSet. If delz is nil or empty, the new DelegateSet will have an
// empty list of delegates.
func NewDelegateSet(delz []*Delegate) *DelegateSet {
	dels := &DelegateSet{}
	dels.Delegates = delegateListCopy(delz)

	sort.SliceStable(dels.Delegates, func(i, j int) bool {
		cmp := dels.Delegates[i].VoteWeight.Cmp(dels.Delegates[j].VoteWeight)
		if cmp != 0 {
			return cmp > 0
		}
		return dels.Delegates[i].Address < dels.Delegates[j].Address
	})

	return dels
}

func (dels *DelegateSet) ValidateBasic() error {
	if dels.IsNilOrEmpty() {
		return errors.New("delegate set is nil or empty")
	}

	for idx, d := range dels.Delegates {
		if err := d.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid delegate #%d: %w", idx, err)
		}
	}

	return nil
}

// IsNilOrEmpty returns true if delegate set is nil or empty.
func (dels *DelegateSet) IsNilOrEmpty() bool {
	return dels == nil || len(dels.Delegates) == 0
}

func delegateListCopy(delz []*Delegate) []*Delegate {
	if delz == nil {
		return nil
	}
	cp := make([]*Delegate, len(delz))
	for i, d := range delz {
		cp[i] = d.Copy()
	}
	return cp
}

// Copy each delegate into a new DelegateSet.
func (dels *DelegateSet) Copy() *DelegateSet {
	return &DelegateSet{
		Delegates: delegateListCopy(dels.Delegates),
	}
}

// HasAddress returns true if address given is in the delegate set, false -
// otherwise.
func (dels *DelegateSet) HasAddress(address string) bool {
	for _, d := range dels.Delegates {
		if d.Address == address {
			return true
		}
	}
	return false
}

// GetByAddress returns an index of the delegate with address and delegate
// itself (copy) if found. Otherwise, -1 and nil are returned.
func (dels *DelegateSet) GetByAddress(address string) (index int, d *Delegate) {
	for idx, d := range dels.Delegates {
		if d.Address == address {
			return idx, d.Copy()
		}
	}
	return -1, nil
}

// Size returns the length of the delegate set.
func (dels *DelegateSet) Size() int {
	return len(dels.Delegates)
}

// GetForger 返回slot轮转到的委托人：delegates[slot mod size]
// 集合为空时返回nil
func (dels *DelegateSet) GetForger(slot int64) (forger *Delegate) {
	if dels == nil || len(dels.Delegates) == 0 {
		return nil
	}
	idx := slot % int64(len(dels.Delegates))
	if idx < 0 {
		idx += int64(len(dels.Delegates))
	}

	return dels.Delegates[idx].Copy()
}

// SignatureQuorum 区块处理所需的委托人签名数（不含锻造者自身的区块签名）：
// floor(size * ratio)
func (dels *DelegateSet) SignatureQuorum(ratio float64) int {
	return int(float64(dels.Size()) * ratio)
}

// Iterate will run the given function over the set.
func (dels *DelegateSet) Iterate(fn func(index int, d *Delegate) bool) {
	for i, d := range dels.Delegates {
		stop := fn(i, d.Copy())
		if stop {
			break
		}
	}
}

// String returns a string representation of DelegateSet.
//
// See StringIndented.
func (dels *DelegateSet) String() string {
	return dels.StringIndented("")
}

// StringIndented returns an intended String.
//
// See Delegate#String.
func (dels *DelegateSet) StringIndented(indent string) string {
	if dels == nil {
		return "nil-DelegateSet"
	}
	var delStrings []string
	dels.Iterate(func(index int, d *Delegate) bool {
		delStrings = append(delStrings, d.String())
		return false
	})
	return fmt.Sprintf(`DelegateSet{
%s  Delegates:
%s    %v
%s}`,
		indent,
		indent, strings.Join(delStrings, "\n"+indent+"    "),
		indent)

}
