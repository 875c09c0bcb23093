package store

import (
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tm-db/memdb"
)

// NewMemStore returns a fully functional Store over an in-memory database.
// Tests and tools use it in place of a leveldb backed store.
func NewMemStore(logger log.Logger) *KVStore {
	return NewKVStoreWithDB(memdb.NewDB(), logger)
}
