package types

import (
	"errors"
	"fmt"

	"ldpos_chain/types"
)

var (
	ErrDuplicateSignature = errors.New("duplicate block signature")
)

// NewBlockSignatureSet returns an empty set collecting delegate signatures
// for the block with the given id.
func NewBlockSignatureSet(blockID string) *BlockSignatureSet {
	return &BlockSignatureSet{
		blockID: blockID,
		signers: make(map[string]struct{}),
	}
}

// BlockSignatureSet 候选区块收集到的委托人签名，按签名者地址去重。
// 同一签名者的第二个签名包被拒绝，先到的保留。
// NOTE: Not goroutine-safe.
type BlockSignatureSet struct {
	blockID    string
	signers    map[string]struct{}
	signatures []types.BlockSignature
}

// Add 将签名包加入集合。签名必须指向集合绑定的区块
func (set *BlockSignatureSet) Add(sig types.BlockSignature) error {
	if sig.BlockID != set.blockID {
		return fmt.Errorf("signature targets block %v, set collects for block %v", sig.BlockID, set.blockID)
	}
	if _, exist := set.signers[sig.SignerAddress]; exist {
		return ErrDuplicateSignature
	}
	set.signers[sig.SignerAddress] = struct{}{}
	set.signatures = append(set.signatures, sig)
	return nil
}

// HasSigner returns true if the set already holds a signature from the given
// address.
func (set *BlockSignatureSet) HasSigner(address string) bool {
	_, exist := set.signers[address]
	return exist
}

// BlockID returns the id of the block the set collects for.
func (set *BlockSignatureSet) BlockID() string {
	return set.blockID
}

// Size returns the number of distinct signers in the set.
func (set *BlockSignatureSet) Size() int {
	if set == nil {
		return 0
	}
	return len(set.signatures)
}

// Signatures returns the collected signatures in arrival order.
func (set *BlockSignatureSet) Signatures() []types.BlockSignature {
	cp := make([]types.BlockSignature, len(set.signatures))
	copy(cp, set.signatures)
	return cp
}
