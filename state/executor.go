package state

import (
	"bytes"
	"time"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	tmsync "github.com/tendermint/tendermint/libs/sync"
	"golang.org/x/sync/errgroup"

	"ldpos_chain/auth"
	cfg "ldpos_chain/config"
	"ldpos_chain/cryptoclient"
	"ldpos_chain/mempool"
	"ldpos_chain/slot"
	"ldpos_chain/store"
	"ldpos_chain/types"
)

type BlockExecutor interface {
	// CreateProposal 从mempool打包交易并锻造出带签名的候选区块。
	// 打包前逐发送者串行地对照当前账本快照复验，失败的交易丢弃
	CreateProposal(state State, forger cryptoclient.Client, timestamp int64) (*types.Block, error)

	// VerifyBlock 对照链尾验证一个候选区块。
	// 返回的delegateChangedKeys表示锻造者是否启用了next forging key，
	// 处理该区块会推进其密钥链，最少交易数策略据此放行空区块
	VerifyBlock(state State, block *types.Block) (delegateChangedKeys bool, err error)

	// VerifyBlockSignature 验证另一个活跃委托人对候选区块的签名包
	VerifyBlockSignature(state State, block *types.Block, sig *types.BlockSignature) error

	// Apply一个指定的区块，如果提交成功后state发生变化，返回新的state。
	// synched标记区块来自catch-up而不是本slot的锻造
	ApplyBlock(state State, block *types.Block, synched bool) (State, error)

	SetLogger(logger log.Logger)
	SetEventSwitch(evsw events.EventSwitch)
}

func NewBlockExecutor(
	config *cfg.ConsensusConfig,
	rules *cfg.TransactionConfig,
	networkSymbol string,
	st store.Store,
	mempool mempool.Mempool,
	clock slot.Clock,
) BlockExecutor {
	return &blockExecutor{
		config:  config,
		rules:   rules,
		auth:    auth.NewAuthenticator(networkSymbol, rules),
		store:   st,
		mempool: mempool,
		clock:   clock,
		logger:  log.NewNopLogger(),
	}
}

type blockExecutor struct {
	config *cfg.ConsensusConfig
	rules  *cfg.TransactionConfig
	auth   *auth.Authenticator

	store   store.Store
	mempool mempool.Mempool
	clock   slot.Clock

	evsw   events.EventSwitch
	logger log.Logger
}

// SetLogger implements BlockExecutor
func (exec *blockExecutor) SetLogger(logger log.Logger) {
	exec.logger = logger
}

// SetEventSwitch implements BlockExecutor
func (exec *blockExecutor) SetEventSwitch(evsw events.EventSwitch) {
	exec.evsw = evsw
}

// senderSnapshot 验证期间一个发送者的账本视图，余额随串行复验逐笔扣减
type senderSnapshot struct {
	account *types.Account
	members map[string]*types.Account
}

// CreateProposal implements BlockExecutor
func (exec *blockExecutor) CreateProposal(state State, forger cryptoclient.Client, timestamp int64) (*types.Block, error) {
	reaped := exec.mempool.ReapForBlock(-1)

	now := exec.clock.Now()
	snapshots := make(map[string]*senderSnapshot)
	txs := make(types.Transactions, 0, len(reaped))
	for _, tx := range reaped {
		if len(txs) == exec.config.MaxTransactionsPerBlock {
			break
		}
		snap, ok := snapshots[tx.SenderAddress]
		if !ok {
			var err error
			snap, err = exec.loadSenderSnapshot(tx.SenderAddress)
			if err != nil {
				return nil, err
			}
			snapshots[tx.SenderAddress] = snap
		}
		if err := exec.auth.VerifyTransaction(snap.account, snap.members, tx, now); err != nil {
			exec.logger.Debug("Dropped pending transaction from proposal", "txn", tx.ID, "err", err)
			continue
		}
		snap.account.Balance = snap.account.Balance.Sub(tx.TotalSpend())
		txs = append(txs, tx.Simplify())
	}

	block := types.MakeBlock(state.Height+1, timestamp, state.LastBlockID, txs)
	if err := forger.PrepareBlock(block); err != nil {
		return nil, err
	}
	exec.logger.Info("Forged block", "height", block.Height, "timestamp", block.Timestamp,
		"txns", len(txs), "id", block.ID)
	return block, nil
}

// VerifyBlock implements BlockExecutor
func (exec *blockExecutor) VerifyBlock(state State, block *types.Block) (bool, error) {
	return exec.verifyBlock(state, block)
}

// verifyBlock期间的快照只服务本次验证，提交阶段重新取数，
// 不跨阶段共享可变的账户对象
func (exec *blockExecutor) verifyBlock(state State, block *types.Block) (bool, error) {
	if err := block.ValidateBasic(); err != nil {
		return false, types.NewInvalidBlockError(block, "%v", err)
	}
	if root := block.Transactions.MerkleRoot(); !bytes.Equal(root, block.TransactionRoot) {
		return false, types.NewInvalidBlockError(block,
			"transaction root %v does not match the block transactions", block.TransactionRoot)
	}
	if block.ID == state.LastBlockID {
		return false, types.NewInvalidBlockError(block, "block is already the chain tip")
	}
	if block.Height != state.Height+1 {
		return false, types.NewInvalidBlockError(block,
			"height %d does not follow chain tip at height %d", block.Height, state.Height)
	}

	interval := exec.clock.Interval().Milliseconds()
	if block.Timestamp%interval != 0 {
		return false, types.NewInvalidBlockError(block,
			"timestamp %d is not aligned to the %dms forging interval", block.Timestamp, interval)
	}
	if block.Timestamp < state.LastBlockTimestamp+interval {
		return false, types.NewInvalidBlockError(block,
			"timestamp %d does not advance past the chain tip at %d", block.Timestamp, state.LastBlockTimestamp)
	}
	if block.PreviousBlockID != state.LastBlockID {
		return false, types.NewInvalidBlockError(block,
			"previous block id %v does not match chain tip %v", block.PreviousBlockID, state.LastBlockID)
	}

	// slot轮转到的委托人才有权锻造这个timestamp
	forger := state.Delegates.GetForger(exec.clock.SlotOf(block.Timestamp))
	if forger == nil {
		return false, types.NewInvalidBlockError(block, "no active delegates")
	}
	if forger.Address != block.ForgerAddress {
		return false, types.NewInvalidBlockError(block,
			"forger %v is not the slot delegate %v", block.ForgerAddress, forger.Address)
	}

	forgerAccount, err := exec.store.GetAccount(block.ForgerAddress)
	if err != nil {
		return false, err
	}
	current, next := forgerAccount.MatchesForgingKey(block.ForgingPublicKey)
	if !current && !next {
		return false, types.NewInvalidBlockError(block,
			"forging public key matches neither the current nor the next key of %v", block.ForgerAddress)
	}
	if err := cryptoclient.VerifyBlock(block); err != nil {
		return false, types.NewInvalidBlockError(block, "%v", err)
	}

	// 交易id不允许出现在别的区块下
	for _, tx := range block.Transactions {
		if err := exec.auth.ValidateSchema(tx); err != nil {
			return false, types.NewInvalidBlockError(block, "%v", err)
		}
		stored, err := exec.store.GetTransaction(tx.ID)
		switch {
		case err == nil:
			if stored.BlockID != block.ID {
				return false, types.NewInvalidBlockError(block,
					"transaction %v already belongs to block %v", tx.ID, stored.BlockID)
			}
		case !types.IsNotFound(err):
			return false, err
		}
	}

	bySender := make(map[string]types.Transactions)
	for _, tx := range block.Transactions {
		bySender[tx.SenderAddress] = append(bySender[tx.SenderAddress], tx)
	}

	// 每个发送者的快照取一次，取数并发、复验串行
	snapshots := make(map[string]*senderSnapshot, len(bySender))
	var snapMtx tmsync.Mutex
	g := new(errgroup.Group)
	for addr := range bySender {
		addr := addr
		g.Go(func() error {
			snap, err := exec.loadSenderSnapshot(addr)
			if err != nil {
				return err
			}
			snapMtx.Lock()
			snapshots[addr] = snap
			snapMtx.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	now := exec.clock.Now()
	for addr, txs := range bySender {
		snap := snapshots[addr]
		for _, tx := range txs {
			if err := exec.auth.VerifySimplifiedTransaction(snap.account, snap.members, tx, now); err != nil {
				return false, types.NewInvalidBlockError(block, "%v", err)
			}
			snap.account.Balance = snap.account.Balance.Sub(tx.TotalSpend())
		}
	}

	return !current, nil
}

// VerifyBlockSignature implements BlockExecutor
func (exec *blockExecutor) VerifyBlockSignature(state State, block *types.Block, sig *types.BlockSignature) error {
	if err := sig.ValidateBasic(); err != nil {
		return types.NewInvalidBlockSignatureError(sig, "%v", err)
	}
	if sig.BlockID != block.ID {
		return types.NewInvalidBlockSignatureError(sig,
			"signature targets block %v, active block is %v", sig.BlockID, block.ID)
	}
	if sig.SignerAddress == block.ForgerAddress {
		return types.NewInvalidBlockSignatureError(sig, "forger cannot countersign its own block")
	}
	if !state.Delegates.HasAddress(sig.SignerAddress) {
		return types.NewInvalidBlockSignatureError(sig, "signer is not an active delegate")
	}

	signer, err := exec.store.GetAccount(sig.SignerAddress)
	if err != nil {
		return err
	}
	current, next := signer.MatchesForgingKey(sig.ForgingPublicKey)
	if !current && !next {
		return types.NewInvalidBlockSignatureError(sig,
			"forging public key matches neither the current nor the next key of %v", sig.SignerAddress)
	}
	if err := cryptoclient.VerifyBlockSignature(block, sig); err != nil {
		return types.NewInvalidBlockSignatureError(sig, "%v", err)
	}
	return nil
}

// ApplyBlock implements BlockExecutor
// 先做完整验证和签名法定数检查，通过后对账本做确定性的状态变更，
// 最后刷新mempool和活跃委托人缓存
func (exec *blockExecutor) ApplyBlock(state State, block *types.Block, synched bool) (State, error) {
	if _, err := exec.verifyBlock(state, block); err != nil {
		return state, err
	}
	if err := exec.verifySignatureQuorum(state, block); err != nil {
		return state, err
	}
	return exec.commit(state, block, synched)
}

// verifySignatureQuorum 区块必须带够法定数的（不同签名者的）委托人签名
func (exec *blockExecutor) verifySignatureQuorum(state State, block *types.Block) error {
	signers := make(map[string]struct{}, len(block.Signatures))
	for i := range block.Signatures {
		sig := &block.Signatures[i]
		if _, ok := signers[sig.SignerAddress]; ok {
			continue
		}
		if err := exec.VerifyBlockSignature(state, block, sig); err != nil {
			return err
		}
		signers[sig.SignerAddress] = struct{}{}
	}

	quorum := state.Delegates.SignatureQuorum(exec.config.MinForgerBlockSignatureRatio)
	if len(signers) < quorum {
		return types.NewInvalidBlockError(block,
			"%d distinct delegate signatures, quorum is %d", len(signers), quorum)
	}
	return nil
}

// affectedAccount 提交过程中单个账户的工作副本
type affectedAccount struct {
	account         *types.Account
	preBalance      *types.Amount
	preUpdateHeight uint64
}

// forgingTriple forging密钥链的演化三元组，来自区块头或签名包
type forgingTriple struct {
	publicKey     tmbytes.HexBytes
	nextPublicKey tmbytes.HexBytes
	nextKeyIndex  uint64
}

// delegateUpdate 一个委托人记录在本区块里累计的全部变更
type delegateUpdate struct {
	keys        *forgingTriple
	weightDelta *types.Amount
	create      bool
}

func (exec *blockExecutor) commit(state State, block *types.Block, synched bool) (State, error) {
	h := block.Height

	accounts, err := exec.loadAffectedAccounts(block)
	if err != nil {
		return state, err
	}

	updates := make(map[string]*delegateUpdate)
	delegateFor := func(addr string) *delegateUpdate {
		if u, ok := updates[addr]; ok {
			return u
		}
		u := &delegateUpdate{}
		updates[addr] = u
		return u
	}

	// 锻造者和副署签名者的forging密钥链按携带的三元组推进。
	// 用当前密钥签名时三元组与账户一致，覆盖是no-op
	applyForgingKeys := func(addr string, triple forgingTriple) {
		acc := accounts[addr].account
		acc.ForgingPublicKey = triple.publicKey
		acc.NextForgingPublicKey = triple.nextPublicKey
		acc.NextForgingKeyIndex = triple.nextKeyIndex
		delegateFor(addr).keys = &triple
	}
	applyForgingKeys(block.ForgerAddress, forgingTriple{
		block.ForgingPublicKey, block.NextForgingPublicKey, block.NextForgingKeyIndex})
	for i := range block.Signatures {
		sig := &block.Signatures[i]
		applyForgingKeys(sig.SignerAddress, forgingTriple{
			sig.ForgingPublicKey, sig.NextForgingPublicKey, sig.NextForgingKeyIndex})
	}

	type voteChange struct {
		voter, delegate string
		unvote          bool
	}
	var voteChanges []voteChange
	type walletReg struct {
		wallet   string
		members  []string
		required uint32
	}
	var walletRegs []walletReg

	// 同一区块内先注册的委托人可以被后面的交易投票
	voteSets := make(map[string]map[string]struct{})
	registeredDelegates := make(map[string]struct{})

	for _, tx := range block.Transactions {
		sender := accounts[tx.SenderAddress].account
		sender.Balance = sender.Balance.Sub(tx.TotalSpend())

		// 发送者（或多签成员）的密钥链按交易携带的三元组推进。
		// 带成员签名包的是多签交易，否则按sig链处理
		if len(tx.Signatures) > 0 {
			for i := range tx.Signatures {
				p := &tx.Signatures[i]
				member := accounts[p.SignerAddress].account
				member.MultisigPublicKey = p.MultisigPublicKey
				member.NextMultisigPublicKey = p.NextMultisigPublicKey
				member.NextMultisigKeyIndex = p.NextMultisigKeyIndex
			}
		} else {
			sender.SigPublicKey = tx.SigPublicKey
			sender.NextSigPublicKey = tx.NextSigPublicKey
			sender.NextSigKeyIndex = tx.NextSigKeyIndex
		}

		switch tx.Type {
		case types.TxTypeTransfer:
			recipient := accounts[tx.RecipientAddress].account
			recipient.Balance = recipient.Balance.Add(tx.Amount)

		case types.TxTypeVote:
			// 无效投票不使区块失败：静默no-op，手续费照扣
			ok, err := exec.voteAllowed(voteSets, registeredDelegates, tx.SenderAddress, tx.DelegateAddress)
			if err != nil {
				return state, err
			}
			if !ok {
				exec.logger.Debug("Vote is a no-op", "txn", tx.ID,
					"voter", tx.SenderAddress, "delegate", tx.DelegateAddress)
				continue
			}
			voteChanges = append(voteChanges, voteChange{tx.SenderAddress, tx.DelegateAddress, false})
			voteSets[tx.SenderAddress][tx.DelegateAddress] = struct{}{}

		case types.TxTypeUnvote:
			set, err := exec.voteSet(voteSets, tx.SenderAddress)
			if err != nil {
				return state, err
			}
			if _, voted := set[tx.DelegateAddress]; !voted {
				exec.logger.Debug("Unvote is a no-op", "txn", tx.ID,
					"voter", tx.SenderAddress, "delegate", tx.DelegateAddress)
				continue
			}
			voteChanges = append(voteChanges, voteChange{tx.SenderAddress, tx.DelegateAddress, true})
			delete(set, tx.DelegateAddress)

		case types.TxTypeRegisterSigDetails:
			sender.SigPublicKey = tx.NewSigPublicKey
			sender.NextSigPublicKey = tx.NewNextSigPublicKey
			sender.NextSigKeyIndex = tx.NewNextSigKeyIndex

		case types.TxTypeRegisterMultisigDetails:
			sender.MultisigPublicKey = tx.NewMultisigPublicKey
			sender.NextMultisigPublicKey = tx.NewNextMultisigPublicKey
			sender.NextMultisigKeyIndex = tx.NewNextMultisigKeyIndex

		case types.TxTypeRegisterForgingDetails:
			sender.ForgingPublicKey = tx.NewForgingPublicKey
			sender.NextForgingPublicKey = tx.NewNextForgingPublicKey
			sender.NextForgingKeyIndex = tx.NewNextForgingKeyIndex
			u := delegateFor(tx.SenderAddress)
			u.keys = &forgingTriple{tx.NewForgingPublicKey, tx.NewNextForgingPublicKey, tx.NewNextForgingKeyIndex}
			u.create = true
			registeredDelegates[tx.SenderAddress] = struct{}{}

		case types.TxTypeRegisterMultisigWallet:
			if err := exec.checkProposedMembers(tx.MemberAddresses); err != nil {
				exec.logger.Debug("Multisig wallet registration is a no-op", "txn", tx.ID, "err", err)
				continue
			}
			sender.Type = types.AccountTypeMultisig
			sender.MemberAddresses = tx.MemberAddresses
			sender.RequiredSignatureCount = tx.RequiredSignatureCount
			walletRegs = append(walletRegs, walletReg{tx.SenderAddress, tx.MemberAddresses, tx.RequiredSignatureCount})
		}
	}

	// 全部手续费归锻造者
	totalFees := block.Transactions.TotalFees()
	forger := accounts[block.ForgerAddress].account
	forger.Balance = forger.Balance.Add(totalFees)

	// 余额变动传导到受影响账户已投的委托人。
	// 这里读的是区块处理前的投票行，必须在vote/unvote落库之前
	for addr, aff := range accounts {
		delta := aff.account.Balance.Sub(aff.preBalance)
		if delta.IsZero() {
			continue
		}
		voted, err := exec.store.GetAccountVotes(addr)
		if err != nil && !types.IsNotFound(err) {
			return state, err
		}
		for _, d := range voted {
			u := delegateFor(d)
			if u.weightDelta == nil {
				u.weightDelta = types.ZeroAmount()
			}
			u.weightDelta = u.weightDelta.Add(delta)
		}
	}

	// 账户落库。updateHeight >= h的记录已经带着本区块的变更，跳过
	for _, aff := range accounts {
		if aff.preUpdateHeight >= h {
			continue
		}
		aff.account.UpdateHeight = h
		if err := exec.store.UpsertAccount(aff.account); err != nil {
			return state, err
		}
	}

	for _, reg := range walletRegs {
		if err := exec.store.RegisterMultisigWallet(reg.wallet, reg.members, reg.required); err != nil {
			return state, err
		}
	}

	// 显式的vote/unvote在余额传导之上按投票者的区块后余额增减权重
	for _, change := range voteChanges {
		u := delegateFor(change.delegate)
		if u.weightDelta == nil {
			u.weightDelta = types.ZeroAmount()
		}
		voterBalance := accounts[change.voter].account.Balance
		if change.unvote {
			if err := exec.store.Unvote(change.voter, change.delegate); err != nil {
				return state, err
			}
			u.weightDelta = u.weightDelta.Sub(voterBalance)
		} else {
			if err := exec.store.Vote(change.voter, change.delegate); err != nil {
				return state, err
			}
			u.weightDelta = u.weightDelta.Add(voterBalance)
		}
	}

	// 委托人落库，同样受updateHeight保护
	for addr, u := range updates {
		delegate, err := exec.store.GetDelegate(addr)
		if err != nil {
			if !types.IsNotFound(err) {
				return state, err
			}
			if !u.create {
				exec.logger.Debug("Skipped update for unregistered delegate", "delegate", addr)
				continue
			}
			delegate = types.NewDelegate(addr)
		}
		if delegate.UpdateHeight >= h {
			continue
		}
		if u.keys != nil {
			delegate.ForgingPublicKey = u.keys.publicKey
			delegate.NextForgingPublicKey = u.keys.nextPublicKey
			delegate.NextForgingKeyIndex = u.keys.nextKeyIndex
		}
		if u.weightDelta != nil && !u.weightDelta.IsZero() {
			delegate.VoteWeight = delegate.VoteWeight.Add(u.weightDelta)
		}
		delegate.UpdateHeight = h
		if err := exec.store.UpsertDelegate(delegate); err != nil {
			return state, err
		}
	}

	// 存储的签名列表超出上限时随机抽样，每个节点存的子集可以不同
	persisted := block
	if max := exec.config.BlockSignaturesToProvide; len(block.Signatures) > max {
		cp := *block
		cp.Signatures = subsampleSignatures(block.Signatures, max)
		persisted = &cp
	}
	if err := exec.store.UpsertBlock(persisted, synched); err != nil {
		return state, err
	}

	// 提交成功后更新mempool，首先加锁
	exec.mempool.Lock()
	if err := exec.mempool.Update(h, block.Transactions); err != nil {
		exec.logger.Error("Error updating mempool after block", "height", h, "err", err)
	}
	exec.mempool.Unlock()

	delegates, err := ActiveDelegates(exec.store, exec.config.ForgerCount)
	if err != nil {
		return state, err
	}

	newState := state.Copy()
	newState.Height = block.Height
	newState.LastBlockID = block.ID
	newState.LastBlockTimestamp = block.Timestamp
	newState.LastBlockTime = time.Now()
	newState.Delegates = delegates

	if exec.evsw != nil {
		exec.evsw.FireEvent(types.EventChainChanges, &types.EventDataChainChanges{
			Type:  types.ChainChangeAddBlock,
			Block: block.Simplify(),
		})
	}
	exec.logger.Info("Processed block", "height", h, "id", block.ID,
		"txns", len(block.Transactions), "fees", totalFees, "synched", synched)
	return newState, nil
}

// loadAffectedAccounts 并发取出区块触及的全部账户：发送者、收款人、
// 多签成员、副署签名者和锻造者。账本上没有的地址给零余额默认账户
func (exec *blockExecutor) loadAffectedAccounts(block *types.Block) (map[string]*affectedAccount, error) {
	addrs := map[string]struct{}{block.ForgerAddress: {}}
	for _, tx := range block.Transactions {
		addrs[tx.SenderAddress] = struct{}{}
		if tx.RecipientAddress != "" {
			addrs[tx.RecipientAddress] = struct{}{}
		}
		for i := range tx.Signatures {
			addrs[tx.Signatures[i].SignerAddress] = struct{}{}
		}
	}
	for i := range block.Signatures {
		addrs[block.Signatures[i].SignerAddress] = struct{}{}
	}

	accounts := make(map[string]*affectedAccount, len(addrs))
	var mtx tmsync.Mutex
	g := new(errgroup.Group)
	for addr := range addrs {
		addr := addr
		g.Go(func() error {
			account, err := exec.store.GetAccount(addr)
			if err != nil {
				if !types.IsNotFound(err) {
					return err
				}
				account = types.NewAccount(addr)
			}
			mtx.Lock()
			accounts[addr] = &affectedAccount{
				account:         account,
				preBalance:      account.Balance.Clone(),
				preUpdateHeight: account.UpdateHeight,
			}
			mtx.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// voteSet 投票者当前生效的投票集合：区块前的投票行加上本区块内已排队的变更
func (exec *blockExecutor) voteSet(voteSets map[string]map[string]struct{}, voter string) (map[string]struct{}, error) {
	if set, ok := voteSets[voter]; ok {
		return set, nil
	}
	voted, err := exec.store.GetAccountVotes(voter)
	if err != nil && !types.IsNotFound(err) {
		return nil, err
	}
	set := make(map[string]struct{}, len(voted))
	for _, d := range voted {
		set[d] = struct{}{}
	}
	voteSets[voter] = set
	return set, nil
}

func (exec *blockExecutor) voteAllowed(
	voteSets map[string]map[string]struct{},
	registeredDelegates map[string]struct{},
	voter, delegate string,
) (bool, error) {
	if _, ok := registeredDelegates[delegate]; !ok {
		has, err := exec.store.HasDelegate(delegate)
		if err != nil {
			return false, err
		}
		if !has {
			return false, nil
		}
	}
	set, err := exec.voteSet(voteSets, voter)
	if err != nil {
		return false, err
	}
	if _, voted := set[delegate]; voted {
		return false, nil
	}
	if len(set) >= exec.rules.MaxVotesPerAccount {
		return false, nil
	}
	return true, nil
}

// checkProposedMembers 多签钱包的成员必须已注册multisig密钥，
// 且自己不能是多签钱包
func (exec *blockExecutor) checkProposedMembers(memberAddresses []string) error {
	for _, addr := range memberAddresses {
		member, err := exec.store.GetAccount(addr)
		if err != nil {
			if types.IsNotFound(err) {
				return types.ErrAccountDidNotExist(addr)
			}
			return err
		}
		if member.IsMultisig() {
			return types.NewInvalidActionError(types.ErrNameInvalidAction,
				"member %v is itself a multisig wallet", addr)
		}
		if !member.HasMultisigKeys() {
			return types.NewInvalidActionError(types.ErrNameInvalidAction,
				"member %v has no registered multisig key", addr)
		}
	}
	return nil
}

func (exec *blockExecutor) loadSenderSnapshot(address string) (*senderSnapshot, error) {
	account, err := exec.store.GetAccount(address)
	if err != nil {
		if !types.IsNotFound(err) {
			return nil, err
		}
		account = types.NewAccount(address)
	}
	snap := &senderSnapshot{account: account}
	if !account.IsMultisig() {
		return snap, nil
	}

	memberAddrs, err := exec.store.GetMultisigWalletMembers(address)
	if err != nil {
		return nil, err
	}
	snap.members = make(map[string]*types.Account, len(memberAddrs))
	for _, addr := range memberAddrs {
		member, err := exec.store.GetAccount(addr)
		if err != nil {
			if !types.IsNotFound(err) {
				return nil, err
			}
			member = types.NewAccount(addr)
		}
		snap.members[addr] = member
	}
	return snap, nil
}

func subsampleSignatures(sigs []types.BlockSignature, max int) []types.BlockSignature {
	picked := make([]types.BlockSignature, len(sigs))
	copy(picked, sigs)
	for i := 0; i < max; i++ {
		j := i + tmrand.Intn(len(picked)-i)
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked[:max]
}
