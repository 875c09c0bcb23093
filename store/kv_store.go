package store

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
	"github.com/tendermint/tm-db/metadb"

	"ldpos_chain/types"
)

// table definition:
// account table:     key=acct/{address};              value=account json
// balance index:     key=bal/{balance30}/{address};   value=address
// delegate table:    key=dlg/{address};               value=delegate json
// vote weight index: key=dvw/{~weight30}/{address};   value=address (weight digits 9's-complemented)
// vote table:        key=vote/{voter}/{delegate};     value=delegate
// reverse votes:     key=rvote/{delegate}/{voter};    value=voter
// block table:       key=blk/{height20};              value=signed block json
// block id index:    key=blkid/{id};                  value=height20
// block time index:  key=blkt/{timestamp20};          value=height20
// txn table:         key=txn/{id};                    value=stored txn json
// txn time index:    key=txnt/{timestamp20}/{id};     value=id
// inbound index:     key=txin/{addr}/{ts20}/{id};     value=id
// outbound index:    key=txout/{addr}/{ts20}/{id};    value=id
// txn block index:   key=txblk/{blockId}/{idx6};      value=id
const (
	tableAccount      = "acct"
	tableBalanceIndex = "bal"
	tableDelegate     = "dlg"
	tableWeightIndex  = "dvw"
	tableVote         = "vote"
	tableVoteReverse  = "rvote"
	tableBlock        = "blk"
	tableBlockID      = "blkid"
	tableBlockTime    = "blkt"
	tableTxn          = "txn"
	tableTxnTime      = "txnt"
	tableTxnInbound   = "txin"
	tableTxnOutbound  = "txout"
	tableTxnBlock     = "txblk"

	keyMaxHeight = "chain/maxHeight"

	// 余额和得票权重补零到30位，覆盖25位可花额度的合计
	amountPadWidth = 30
)

func NewKVStore(name, backend, dir string, logger log.Logger) (*KVStore, error) {
	db, err := metadb.NewDB(name, metadb.BackendType(backend), dir)
	if err != nil {
		return nil, err
	}
	return NewKVStoreWithDB(db, logger), nil
}

func NewKVStoreWithDB(kvdb tmdb.DB, logger log.Logger) *KVStore {
	return &KVStore{kvDB: kvdb, logger: logger}
}

type KVStore struct {
	kvDB tmdb.DB

	logger log.Logger
}

var _ Store = (*KVStore)(nil)

func (kv *KVStore) Close() error {
	return kv.kvDB.Close()
}

// Init 把创世账户、委托人和初始投票写入空库，并落下高度0的创世块。
// 已初始化的库直接跳过
func (kv *KVStore) Init(genDoc *types.GenesisDoc) error {
	has, err := kv.kvDB.Has([]byte(keyMaxHeight))
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	for _, genAcc := range genDoc.Accounts {
		account := genesisAccount(genAcc)
		if err := kv.UpsertAccount(account); err != nil {
			return err
		}
		if account.HasForgingKeys() {
			delegate := &types.Delegate{
				Address:              account.Address,
				VoteWeight:           types.ZeroAmount(),
				ForgingPublicKey:     account.ForgingPublicKey,
				NextForgingPublicKey: account.NextForgingPublicKey,
				NextForgingKeyIndex:  account.NextForgingKeyIndex,
			}
			if err := kv.UpsertDelegate(delegate); err != nil {
				return err
			}
		}
	}

	for _, genVote := range genDoc.Votes {
		if err := kv.Vote(genVote.VoterAddress, genVote.DelegateAddress); err != nil {
			return err
		}
		voter, err := kv.GetAccount(genVote.VoterAddress)
		if err != nil {
			return err
		}
		delegate, err := kv.GetDelegate(genVote.DelegateAddress)
		if err != nil {
			return err
		}
		delegate.VoteWeight = delegate.VoteWeight.Add(voter.Balance)
		if err := kv.UpsertDelegate(delegate); err != nil {
			return err
		}
	}

	return kv.UpsertBlock(genDoc.GenesisBlock(), false)
}

func genesisAccount(genAcc types.GenesisAccount) *types.Account {
	account := types.NewAccount(genAcc.Address)
	account.Type = genAcc.Type
	account.Balance = genAcc.Balance.Clone()
	account.SigPublicKey = genAcc.SigPublicKey
	account.NextSigPublicKey = genAcc.NextSigPublicKey
	account.NextSigKeyIndex = genAcc.NextSigKeyIndex
	account.MultisigPublicKey = genAcc.MultisigPublicKey
	account.NextMultisigPublicKey = genAcc.NextMultisigPublicKey
	account.NextMultisigKeyIndex = genAcc.NextMultisigKeyIndex
	account.ForgingPublicKey = genAcc.ForgingPublicKey
	account.NextForgingPublicKey = genAcc.NextForgingPublicKey
	account.NextForgingKeyIndex = genAcc.NextForgingKeyIndex
	account.MemberAddresses = genAcc.MemberAddresses
	account.RequiredSignatureCount = genAcc.RequiredSignatureCount
	return account
}

//-------------------------------------------------------------------
// accounts

func (kv *KVStore) GetAccount(address string) (*types.Account, error) {
	raw, err := kv.kvDB.Get(genKey(tableAccount, address))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, types.ErrAccountDidNotExist(address)
	}
	account := new(types.Account)
	if err := tmjson.Unmarshal(raw, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (kv *KVStore) UpsertAccount(account *types.Account) error {
	raw, err := tmjson.Marshal(account)
	if err != nil {
		return err
	}

	batch := kv.kvDB.NewBatch()
	defer batch.Close()

	// 余额变动时先撤掉旧的余额索引
	if old, err := kv.kvDB.Get(genKey(tableAccount, account.Address)); err != nil {
		return err
	} else if old != nil {
		oldAccount := new(types.Account)
		if err := tmjson.Unmarshal(old, oldAccount); err != nil {
			return err
		}
		if oldAccount.Balance.Cmp(account.Balance) != 0 {
			if err := batch.Delete(genKey(tableBalanceIndex, padAmount(oldAccount.Balance), account.Address)); err != nil {
				return err
			}
		}
	}

	if err := batch.Set(genKey(tableAccount, account.Address), raw); err != nil {
		return err
	}
	if err := batch.Set(genKey(tableBalanceIndex, padAmount(account.Balance), account.Address), []byte(account.Address)); err != nil {
		return err
	}
	return batch.Write()
}

func (kv *KVStore) GetAccountsByBalance(offset, limit int, order Order) ([]*types.Account, error) {
	addresses, err := kv.collectIndex(genKey(tableBalanceIndex), offset, limit, order)
	if err != nil {
		return nil, err
	}
	accounts := make([]*types.Account, 0, len(addresses))
	for _, address := range addresses {
		account, err := kv.GetAccount(address)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (kv *KVStore) GetMultisigWalletMembers(walletAddress string) ([]string, error) {
	account, err := kv.GetAccount(walletAddress)
	if err != nil {
		return nil, err
	}
	if !account.IsMultisig() {
		return nil, types.ErrAccountWasNotMultisig(walletAddress)
	}
	return account.MemberAddresses, nil
}

func (kv *KVStore) RegisterMultisigWallet(walletAddress string, memberAddresses []string, requiredSignatureCount uint32) error {
	account, err := kv.GetAccount(walletAddress)
	if err != nil {
		return err
	}
	account.Type = types.AccountTypeMultisig
	account.MemberAddresses = memberAddresses
	account.RequiredSignatureCount = requiredSignatureCount
	return kv.UpsertAccount(account)
}

//-------------------------------------------------------------------
// delegates

func (kv *KVStore) GetDelegate(address string) (*types.Delegate, error) {
	raw, err := kv.kvDB.Get(genKey(tableDelegate, address))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, types.ErrDelegateDidNotExist(address)
	}
	delegate := new(types.Delegate)
	if err := tmjson.Unmarshal(raw, delegate); err != nil {
		return nil, err
	}
	return delegate, nil
}

func (kv *KVStore) HasDelegate(address string) (bool, error) {
	return kv.kvDB.Has(genKey(tableDelegate, address))
}

func (kv *KVStore) UpsertDelegate(delegate *types.Delegate) error {
	raw, err := tmjson.Marshal(delegate)
	if err != nil {
		return err
	}

	batch := kv.kvDB.NewBatch()
	defer batch.Close()

	if old, err := kv.kvDB.Get(genKey(tableDelegate, delegate.Address)); err != nil {
		return err
	} else if old != nil {
		oldDelegate := new(types.Delegate)
		if err := tmjson.Unmarshal(old, oldDelegate); err != nil {
			return err
		}
		if oldDelegate.VoteWeight.Cmp(delegate.VoteWeight) != 0 {
			if err := batch.Delete(genKey(tableWeightIndex, padAmountInverted(oldDelegate.VoteWeight), delegate.Address)); err != nil {
				return err
			}
		}
	}

	if err := batch.Set(genKey(tableDelegate, delegate.Address), raw); err != nil {
		return err
	}
	if err := batch.Set(genKey(tableWeightIndex, padAmountInverted(delegate.VoteWeight), delegate.Address), []byte(delegate.Address)); err != nil {
		return err
	}
	return batch.Write()
}

// GetDelegatesByVoteWeight desc时权重相同的委托人按地址升序排。
// 权重并列跨过forgerCount截断线时，轮转集合的取舍依赖这个次序
func (kv *KVStore) GetDelegatesByVoteWeight(offset, limit int, order Order) ([]*types.Delegate, error) {
	// 索引键里权重按位取9的补数，正向遍历即权重降序、同权重地址升序
	iter := OrderAsc
	if order == OrderAsc {
		iter = OrderDesc
	}
	addresses, err := kv.collectIndex(genKey(tableWeightIndex), offset, limit, iter)
	if err != nil {
		return nil, err
	}
	delegates := make([]*types.Delegate, 0, len(addresses))
	for _, address := range addresses {
		delegate, err := kv.GetDelegate(address)
		if err != nil {
			return nil, err
		}
		delegates = append(delegates, delegate)
	}
	return delegates, nil
}

//-------------------------------------------------------------------
// votes

func (kv *KVStore) GetAccountVotes(voterAddress string) ([]string, error) {
	if _, err := kv.GetAccount(voterAddress); err != nil {
		return nil, err
	}
	votes := []string{}
	start, end := prefixIteratorBounds(genKey(tableVote, voterAddress))
	err := kv.iterateRange(start, end, OrderAsc, func(key, value []byte) bool {
		votes = append(votes, string(value))
		return false
	})
	return votes, err
}

func (kv *KVStore) HasVoteForDelegate(voterAddress, delegateAddress string) (bool, error) {
	return kv.kvDB.Has(genKey(tableVote, voterAddress, delegateAddress))
}

func (kv *KVStore) Vote(voterAddress, delegateAddress string) error {
	if _, err := kv.GetAccount(voterAddress); err != nil {
		return types.NewInvalidActionError(types.ErrNameVoterAccountDidNotExist, "voter account %v did not exist", voterAddress)
	}
	hasDelegate, err := kv.HasDelegate(delegateAddress)
	if err != nil {
		return err
	}
	if !hasDelegate {
		return types.ErrDelegateDidNotExist(delegateAddress)
	}
	hasVote, err := kv.HasVoteForDelegate(voterAddress, delegateAddress)
	if err != nil {
		return err
	}
	if hasVote {
		return types.NewInvalidActionError(types.ErrNameInvalidAction, "account %v already voted for delegate %v", voterAddress, delegateAddress)
	}

	batch := kv.kvDB.NewBatch()
	defer batch.Close()
	if err := batch.Set(genKey(tableVote, voterAddress, delegateAddress), []byte(delegateAddress)); err != nil {
		return err
	}
	if err := batch.Set(genKey(tableVoteReverse, delegateAddress, voterAddress), []byte(voterAddress)); err != nil {
		return err
	}
	return batch.Write()
}

func (kv *KVStore) Unvote(voterAddress, delegateAddress string) error {
	hasVote, err := kv.HasVoteForDelegate(voterAddress, delegateAddress)
	if err != nil {
		return err
	}
	if !hasVote {
		return types.NewInvalidActionError(types.ErrNameInvalidAction, "account %v has no vote for delegate %v", voterAddress, delegateAddress)
	}

	batch := kv.kvDB.NewBatch()
	defer batch.Close()
	if err := batch.Delete(genKey(tableVote, voterAddress, delegateAddress)); err != nil {
		return err
	}
	if err := batch.Delete(genKey(tableVoteReverse, delegateAddress, voterAddress)); err != nil {
		return err
	}
	return batch.Write()
}

//-------------------------------------------------------------------
// transactions

func (kv *KVStore) GetTransaction(id string) (*StoredTransaction, error) {
	raw, err := kv.kvDB.Get(genKey(tableTxn, id))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, types.ErrTransactionDidNotExist(id)
	}
	stored := new(StoredTransaction)
	if err := tmjson.Unmarshal(raw, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

func (kv *KVStore) HasTransaction(id string) (bool, error) {
	return kv.kvDB.Has(genKey(tableTxn, id))
}

func (kv *KVStore) GetTransactionsByTimestamp(offset, limit int, order Order) ([]*StoredTransaction, error) {
	ids, err := kv.collectIndex(genKey(tableTxnTime), offset, limit, order)
	if err != nil {
		return nil, err
	}
	return kv.resolveTransactions(ids)
}

func (kv *KVStore) GetInboundTransactions(walletAddress string, fromTimestamp int64, limit int, order Order) ([]*StoredTransaction, error) {
	return kv.transactionsByAddressIndex(tableTxnInbound, walletAddress, fromTimestamp, limit, order)
}

func (kv *KVStore) GetOutboundTransactions(walletAddress string, fromTimestamp int64, limit int, order Order) ([]*StoredTransaction, error) {
	return kv.transactionsByAddressIndex(tableTxnOutbound, walletAddress, fromTimestamp, limit, order)
}

// transactionsByAddressIndex 按时间索引列出某地址的进账或出账交易。
// asc时fromTimestamp是下界，desc时是上界
func (kv *KVStore) transactionsByAddressIndex(table, walletAddress string, fromTimestamp int64, limit int, order Order) ([]*StoredTransaction, error) {
	prefix := genKey(table, walletAddress)
	start, end := prefixIteratorBounds(prefix)
	if order == OrderDesc {
		end = genKey(table, walletAddress, padInt(fromTimestamp+1))
	} else {
		start = genKey(table, walletAddress, padInt(fromTimestamp))
	}

	ids := []string{}
	err := kv.iterateRange(start, end, order, func(key, value []byte) bool {
		ids = append(ids, string(value))
		return limit > 0 && len(ids) >= limit
	})
	if err != nil {
		return nil, err
	}
	return kv.resolveTransactions(ids)
}

func (kv *KVStore) GetTransactionsFromBlock(blockID string) ([]*StoredTransaction, error) {
	ids, err := kv.collectIndex(genKey(tableTxnBlock, blockID), 0, 0, OrderAsc)
	if err != nil {
		return nil, err
	}
	return kv.resolveTransactions(ids)
}

func (kv *KVStore) GetInboundTransactionsFromBlock(walletAddress, blockID string) ([]*StoredTransaction, error) {
	all, err := kv.GetTransactionsFromBlock(blockID)
	if err != nil {
		return nil, err
	}
	inbound := []*StoredTransaction{}
	for _, stored := range all {
		if stored.Transaction.RecipientAddress == walletAddress {
			inbound = append(inbound, stored)
		}
	}
	return inbound, nil
}

func (kv *KVStore) GetOutboundTransactionsFromBlock(walletAddress, blockID string) ([]*StoredTransaction, error) {
	all, err := kv.GetTransactionsFromBlock(blockID)
	if err != nil {
		return nil, err
	}
	outbound := []*StoredTransaction{}
	for _, stored := range all {
		if stored.Transaction.SenderAddress == walletAddress {
			outbound = append(outbound, stored)
		}
	}
	return outbound, nil
}

func (kv *KVStore) resolveTransactions(ids []string) ([]*StoredTransaction, error) {
	stored := make([]*StoredTransaction, 0, len(ids))
	for _, id := range ids {
		txn, err := kv.GetTransaction(id)
		if err != nil {
			return nil, err
		}
		stored = append(stored, txn)
	}
	return stored, nil
}

//-------------------------------------------------------------------
// blocks

func (kv *KVStore) GetBlock(id string) (*types.Block, error) {
	block, err := kv.getSignedBlock(id)
	if err != nil {
		return nil, err
	}
	return block.WithoutSignatures(), nil
}

func (kv *KVStore) getSignedBlock(id string) (*types.Block, error) {
	rawHeight, err := kv.kvDB.Get(genKey(tableBlockID, id))
	if err != nil {
		return nil, err
	}
	if rawHeight == nil {
		return nil, types.ErrBlockDidNotExist(id)
	}
	return kv.getSignedBlockByPaddedHeight(string(rawHeight))
}

func (kv *KVStore) getSignedBlockByPaddedHeight(paddedHeight string) (*types.Block, error) {
	raw, err := kv.kvDB.Get(genKey(tableBlock, paddedHeight))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		height, _ := parsePaddedHeight(paddedHeight)
		return nil, types.ErrBlockDidNotExist(fmt.Sprintf("at height %v", height))
	}
	block := new(types.Block)
	if err := tmjson.Unmarshal(raw, block); err != nil {
		return nil, err
	}
	return block, nil
}

func (kv *KVStore) HasBlock(id string) (bool, error) {
	return kv.kvDB.Has(genKey(tableBlockID, id))
}

func (kv *KVStore) GetBlockAtHeight(height uint64) (*types.Block, error) {
	block, err := kv.GetSignedBlockAtHeight(height)
	if err != nil {
		return nil, err
	}
	return block.WithoutSignatures(), nil
}

func (kv *KVStore) GetSignedBlockAtHeight(height uint64) (*types.Block, error) {
	raw, err := kv.kvDB.Get(genKey(tableBlock, padUint(height)))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, types.ErrBlockDidNotExist(fmt.Sprintf("at height %v", height))
	}
	block := new(types.Block)
	if err := tmjson.Unmarshal(raw, block); err != nil {
		return nil, err
	}
	return block, nil
}

func (kv *KVStore) GetBlocksFromHeight(fromHeight uint64, limit int) ([]*types.Block, error) {
	blocks, err := kv.GetSignedBlocksFromHeight(fromHeight, limit)
	if err != nil {
		return nil, err
	}
	for i, block := range blocks {
		blocks[i] = block.WithoutSignatures()
	}
	return blocks, nil
}

func (kv *KVStore) GetSignedBlocksFromHeight(fromHeight uint64, limit int) ([]*types.Block, error) {
	_, end := prefixIteratorBounds(genKey(tableBlock))
	return kv.collectBlocks(genKey(tableBlock, padUint(fromHeight)), end, limit, OrderAsc)
}

// GetBlocksBetweenHeights 返回(fromHeight, toHeight]区间内的区块，按高度升序
func (kv *KVStore) GetBlocksBetweenHeights(fromHeight, toHeight uint64, limit int) ([]*types.Block, error) {
	start := genKey(tableBlock, padUint(fromHeight+1))
	end := genKey(tableBlock, padUint(toHeight+1))
	blocks, err := kv.collectBlocks(start, end, limit, OrderAsc)
	if err != nil {
		return nil, err
	}
	for i, block := range blocks {
		blocks[i] = block.WithoutSignatures()
	}
	return blocks, nil
}

func (kv *KVStore) collectBlocks(start, end []byte, limit int, order Order) ([]*types.Block, error) {
	blocks := []*types.Block{}
	var innerErr error
	err := kv.iterateRange(start, end, order, func(key, value []byte) bool {
		block := new(types.Block)
		if err := tmjson.Unmarshal(value, block); err != nil {
			innerErr = err
			return true
		}
		blocks = append(blocks, block)
		return limit > 0 && len(blocks) >= limit
	})
	if err != nil {
		return nil, err
	}
	if innerErr != nil {
		return nil, innerErr
	}
	return blocks, nil
}

func (kv *KVStore) GetBlocksByTimestamp(offset, limit int, order Order) ([]*types.Block, error) {
	paddedHeights, err := kv.collectIndex(genKey(tableBlockTime), offset, limit, order)
	if err != nil {
		return nil, err
	}
	blocks := make([]*types.Block, 0, len(paddedHeights))
	for _, paddedHeight := range paddedHeights {
		block, err := kv.getSignedBlockByPaddedHeight(paddedHeight)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block.WithoutSignatures())
	}
	return blocks, nil
}

// GetLastBlockAtTimestamp 返回时间戳不晚于给定时刻的最近一个区块
func (kv *KVStore) GetLastBlockAtTimestamp(timestamp int64) (*types.Block, error) {
	start, _ := prefixIteratorBounds(genKey(tableBlockTime))
	end := genKey(tableBlockTime, padInt(timestamp+1))

	var paddedHeight string
	err := kv.iterateRange(start, end, OrderDesc, func(key, value []byte) bool {
		paddedHeight = string(value)
		return true
	})
	if err != nil {
		return nil, err
	}
	if paddedHeight == "" {
		return nil, types.ErrBlockDidNotExist(fmt.Sprintf("at timestamp %v", timestamp))
	}
	block, err := kv.getSignedBlockByPaddedHeight(paddedHeight)
	if err != nil {
		return nil, err
	}
	return block.WithoutSignatures(), nil
}

func (kv *KVStore) GetMaxBlockHeight() (uint64, error) {
	raw, err := kv.kvDB.Get([]byte(keyMaxHeight))
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, errors.New("store holds no chain tip, Init was never run")
	}
	return parsePaddedHeight(string(raw))
}

// UpsertBlock 持久化一个区块和它携带的全部交易及索引。
// synched标记该区块来自追赶同步而非实时锻造，只影响日志
func (kv *KVStore) UpsertBlock(block *types.Block, synched bool) error {
	raw, err := tmjson.Marshal(block)
	if err != nil {
		return err
	}
	paddedHeight := padUint(block.Height)

	batch := kv.kvDB.NewBatch()
	defer batch.Close()

	if err := batch.Set(genKey(tableBlock, paddedHeight), raw); err != nil {
		return err
	}
	if err := batch.Set(genKey(tableBlockID, block.ID), []byte(paddedHeight)); err != nil {
		return err
	}
	if err := batch.Set(genKey(tableBlockTime, padInt(block.Timestamp)), []byte(paddedHeight)); err != nil {
		return err
	}

	maxHeight, err := kv.kvDB.Get([]byte(keyMaxHeight))
	if err != nil {
		return err
	}
	if maxHeight == nil || string(maxHeight) < paddedHeight {
		if err := batch.Set([]byte(keyMaxHeight), []byte(paddedHeight)); err != nil {
			return err
		}
	}

	for i, txn := range block.Transactions {
		if err := kv.indexTransaction(batch, block, i, txn); err != nil {
			return err
		}
	}

	if err := batch.Write(); err != nil {
		return err
	}
	kv.logger.Debug("upserted block", "height", block.Height, "id", block.ID,
		"txns", len(block.Transactions), "synched", synched)
	return nil
}

func (kv *KVStore) indexTransaction(batch tmdb.Batch, block *types.Block, index int, txn *types.Transaction) error {
	stored := &StoredTransaction{
		Transaction: txn,
		BlockID:     block.ID,
		Height:      block.Height,
		Index:       index,
	}
	raw, err := tmjson.Marshal(stored)
	if err != nil {
		return err
	}
	paddedTimestamp := padInt(txn.Timestamp)
	id := []byte(txn.ID)

	if err := batch.Set(genKey(tableTxn, txn.ID), raw); err != nil {
		return err
	}
	if err := batch.Set(genKey(tableTxnTime, paddedTimestamp, txn.ID), id); err != nil {
		return err
	}
	if err := batch.Set(genKey(tableTxnOutbound, txn.SenderAddress, paddedTimestamp, txn.ID), id); err != nil {
		return err
	}
	if txn.RecipientAddress != "" {
		if err := batch.Set(genKey(tableTxnInbound, txn.RecipientAddress, paddedTimestamp, txn.ID), id); err != nil {
			return err
		}
	}
	return batch.Set(genKey(tableTxnBlock, block.ID, fmt.Sprintf("%06d", index)), id)
}

//-------------------------------------------------------------------
// iteration helpers

// collectIndex 按方向遍历一个索引前缀，跳过offset条后收集至多limit个值。
// limit为0表示不设上限
func (kv *KVStore) collectIndex(prefix []byte, offset, limit int, order Order) ([]string, error) {
	values := []string{}
	skipped := 0
	start, end := prefixIteratorBounds(prefix)
	err := kv.iterateRange(start, end, order, func(key, value []byte) bool {
		if skipped < offset {
			skipped++
			return false
		}
		values = append(values, string(value))
		return limit > 0 && len(values) >= limit
	})
	return values, err
}

func (kv *KVStore) iterateRange(start, end []byte, order Order, fn func(key, value []byte) (stop bool)) error {
	var (
		itr tmdb.Iterator
		err error
	)
	if order == OrderDesc {
		itr, err = kv.kvDB.ReverseIterator(start, end)
	} else {
		itr, err = kv.kvDB.Iterator(start, end)
	}
	if err != nil {
		return err
	}
	defer itr.Close()

	for ; itr.Valid(); itr.Next() {
		if fn(itr.Key(), itr.Value()) {
			break
		}
	}
	return itr.Error()
}

// prefixIteratorBounds 给出覆盖某前缀全部键的迭代区间
func prefixIteratorBounds(prefix []byte) ([]byte, []byte) {
	start := append(prefix, '/')
	end := append(append([]byte(nil), prefix...), '/'+1)
	return start, end
}

func genKey(table string, parts ...string) []byte {
	buffer := new(bytes.Buffer)
	buffer.WriteString(table)
	for _, part := range parts {
		buffer.WriteString("/")
		buffer.WriteString(part)
	}
	return buffer.Bytes()
}

func padUint(v uint64) string {
	return fmt.Sprintf("%020d", v)
}

func parsePaddedHeight(s string) (uint64, error) {
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return 0, nil
	}
	return strconv.ParseUint(trimmed, 10, 64)
}

func padInt(v int64) string {
	return fmt.Sprintf("%020d", v)
}

func padAmount(a *types.Amount) string {
	s := a.String()
	if len(s) < amountPadWidth {
		s = strings.Repeat("0", amountPadWidth-len(s)) + s
	}
	return s
}

// padAmountInverted 每位数字取9的补数，数值越大键越小
func padAmountInverted(a *types.Amount) string {
	padded := padAmount(a)
	inverted := make([]byte, len(padded))
	for i := 0; i < len(padded); i++ {
		inverted[i] = '0' + '9' - padded[i]
	}
	return string(inverted)
}
