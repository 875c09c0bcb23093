package cryptoclient

import (
	"errors"
	"fmt"

	tmsync "github.com/tendermint/tendermint/libs/sync"

	"ldpos_chain/types"
)

// Client 钱包侧的crypto client：持有seed，负责按密钥演化方案
// 签发交易、锻造区块、签署他人的候选区块，并推进本地密钥序号
type Client interface {
	Address() string
	NetworkSymbol() string

	SigKeyIndex() uint64
	MultisigKeyIndex() uint64
	ForgingKeyIndex() uint64

	// PrepareTransaction 用当前sig序号签发交易：填充演化三元组、id和签名
	PrepareTransaction(tx *types.Transaction) error
	// PrepareMultisigTransaction 以多签钱包为发送者的交易只计算id，
	// 签名由各成员的SignMultisigTransaction提供
	PrepareMultisigTransaction(tx *types.Transaction) error
	// SignMultisigTransaction 以成员身份产出一个签名包
	SignMultisigTransaction(tx *types.Transaction) (*types.MultisigSignature, error)

	// PrepareBlock 锻造区块：填充forging三元组、id和锻造者签名
	// 签名序号先持久化再使用，崩溃后不会重复消耗同一序号
	PrepareBlock(block *types.Block) error
	// SignBlock 以活跃委托人身份对他人的候选区块产出签名包
	SignBlock(block *types.Block) (*types.BlockSignature, error)

	// SyncKeyIndex 用链上账户记录快进本地序号，返回是否前进了
	SyncKeyIndex(chain KeyChain, account *types.Account) (bool, error)
}

type WalletClient struct {
	mtx tmsync.Mutex

	networkSymbol string
	seed          string
	address       string

	state *FileKeyState // filePath为空时只在内存中记录
}

var _ Client = (*WalletClient)(nil)

type ClientOption func(*WalletClient)

// WithKeyState 绑定可持久化的序号状态
func WithKeyState(state *FileKeyState) ClientOption {
	return func(c *WalletClient) { c.state = state }
}

// WithForgingKeyIndex 覆盖初始forging序号（LDPOS_FORGING_KEY_INDEX）
func WithForgingKeyIndex(index uint64) ClientOption {
	return func(c *WalletClient) { c.state.ForgingKeyIndex = index }
}

// NewClient 从seed构造钱包。钱包地址由sig链0号公钥推导
func NewClient(networkSymbol, seed string, opts ...ClientOption) *WalletClient {
	c := &WalletClient{
		networkSymbol: networkSymbol,
		seed:          seed,
		address:       types.WalletAddressFromPublicKey(networkSymbol, PublicKeyAt(seed, KeyChainSig, 0)),
		state:         &FileKeyState{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *WalletClient) Address() string       { return c.address }
func (c *WalletClient) NetworkSymbol() string { return c.networkSymbol }

func (c *WalletClient) SigKeyIndex() uint64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.state.SigKeyIndex
}

func (c *WalletClient) MultisigKeyIndex() uint64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.state.MultisigKeyIndex
}

func (c *WalletClient) ForgingKeyIndex() uint64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.state.ForgingKeyIndex
}

func (c *WalletClient) PrepareTransaction(tx *types.Transaction) error {
	if tx.SenderAddress == "" {
		tx.SenderAddress = c.address
	}
	if tx.SenderAddress != c.address {
		return fmt.Errorf("transaction sender %v does not match wallet %v", tx.SenderAddress, c.address)
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	idx := c.state.SigKeyIndex
	priv := privKeyAt(c.seed, KeyChainSig, idx)

	tx.SigPublicKey = priv.PubKey().Bytes()
	tx.NextSigPublicKey = PublicKeyAt(c.seed, KeyChainSig, idx+1)
	tx.NextSigKeyIndex = idx + 1

	// 先持久化推进后的序号
	c.state.SigKeyIndex = idx + 1
	c.state.Save()

	sig, err := priv.Sign(tx.SigningBytes())
	if err != nil {
		return err
	}
	tx.SenderSignature = sig
	tx.SenderSignatureHash = ""
	tx.ID = tx.ComputeID()
	return nil
}

func (c *WalletClient) PrepareMultisigTransaction(tx *types.Transaction) error {
	if tx.SenderAddress == "" {
		return errors.New("multisig transaction has no sender wallet address")
	}
	tx.SigPublicKey = nil
	tx.NextSigPublicKey = nil
	tx.NextSigKeyIndex = 0
	tx.SenderSignature = nil
	tx.ID = tx.ComputeID()
	return nil
}

func (c *WalletClient) SignMultisigTransaction(tx *types.Transaction) (*types.MultisigSignature, error) {
	if tx.ID == "" {
		return nil, errors.New("multisig transaction has no id")
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	idx := c.state.MultisigKeyIndex
	priv := privKeyAt(c.seed, KeyChainMultisig, idx)

	packet := &types.MultisigSignature{
		SignerAddress:         c.address,
		MultisigPublicKey:     priv.PubKey().Bytes(),
		NextMultisigPublicKey: PublicKeyAt(c.seed, KeyChainMultisig, idx+1),
		NextMultisigKeyIndex:  idx + 1,
	}

	c.state.MultisigKeyIndex = idx + 1
	c.state.Save()

	sig, err := priv.Sign(tx.SigningBytes())
	if err != nil {
		return nil, err
	}
	packet.Signature = sig
	return packet, nil
}

func (c *WalletClient) PrepareBlock(block *types.Block) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	idx := c.state.ForgingKeyIndex
	priv := privKeyAt(c.seed, KeyChainForging, idx)

	block.ForgerAddress = c.address
	block.ForgingPublicKey = priv.PubKey().Bytes()
	block.NextForgingPublicKey = PublicKeyAt(c.seed, KeyChainForging, idx+1)
	block.NextForgingKeyIndex = idx + 1

	c.state.ForgingKeyIndex = idx + 1
	c.state.Save()

	sig, err := priv.Sign(block.SigningBytes())
	if err != nil {
		return err
	}
	block.ForgerSignature = sig
	block.ID = block.ComputeID()
	return nil
}

func (c *WalletClient) SignBlock(block *types.Block) (*types.BlockSignature, error) {
	if block.ID == "" {
		return nil, errors.New("block has no id")
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	idx := c.state.ForgingKeyIndex
	priv := privKeyAt(c.seed, KeyChainForging, idx)

	blockSig := &types.BlockSignature{
		SignerAddress:        c.address,
		ForgingPublicKey:     priv.PubKey().Bytes(),
		NextForgingPublicKey: PublicKeyAt(c.seed, KeyChainForging, idx+1),
		NextForgingKeyIndex:  idx + 1,
		BlockID:              block.ID,
	}

	c.state.ForgingKeyIndex = idx + 1
	c.state.Save()

	sig, err := priv.Sign(blockSig.SigningBytes())
	if err != nil {
		return nil, err
	}
	blockSig.Signature = sig
	return blockSig, nil
}

func (c *WalletClient) SyncKeyIndex(chain KeyChain, account *types.Account) (bool, error) {
	if account == nil {
		return false, errors.New("nil account")
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()

	var local *uint64
	var onChain uint64
	switch chain {
	case KeyChainSig:
		local, onChain = &c.state.SigKeyIndex, account.NextSigKeyIndex
	case KeyChainMultisig:
		local, onChain = &c.state.MultisigKeyIndex, account.NextMultisigKeyIndex
	case KeyChainForging:
		local, onChain = &c.state.ForgingKeyIndex, account.NextForgingKeyIndex
	default:
		return false, fmt.Errorf("unknown key chain %q", chain)
	}

	if onChain <= *local {
		return false, nil
	}
	*local = onChain
	c.state.Save()
	return true, nil
}

func (c *WalletClient) String() string {
	return fmt.Sprintf("WalletClient{%v}", c.address)
}
