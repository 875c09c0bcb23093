package mempool

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/go-kit/kit/log/term"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/p2p/mock"

	cfg "ldpos_chain/config"
	"ldpos_chain/store"
	"ldpos_chain/types"
)

const reactorTimeout = 20 * time.Second

type peerState struct {
	height uint64
}

func (ps peerState) GetHeight() uint64 { return ps.height }

// 测试节点之间的mempool同步
// 向节点a的mempool加入一组交易，节点b也能收到这些交易
func TestReactorBroadcastTx(t *testing.T) {
	const N = 2
	reactors := makeAndConnectReactors(t, N)
	defer func() {
		for _, r := range reactors {
			if err := r.Stop(); err != nil {
				assert.NoError(t, err)
			}
		}
	}()
	for _, r := range reactors {
		for _, peer := range r.Switch.Peers().List() {
			peer.Set(types.PeerStateKey, peerState{height: 1})
		}
	}

	client := testClient(2)
	recipient := testClient(0).Address()
	txs := types.Transactions{
		preparedTransfer(t, client, recipient, 1000, 10000000),
		preparedTransfer(t, client, recipient, 2000, 10000000),
	}
	for _, tx := range txs {
		require.NoError(t, reactors[0].mempool.AddTransaction(tx, TxInfo{SenderID: UnknownPeerID}))
	}

	waitForTxsOnReactors(t, txs.IDs(), reactors)
}

// 模拟reactor b向reactor a发送交易，reactor b不会再次收到这些交易
func TestReactorNoBroadcastToSender(t *testing.T) {
	const N = 2
	reactors := makeAndConnectReactors(t, N)
	defer func() {
		for _, r := range reactors {
			if err := r.Stop(); err != nil {
				assert.NoError(t, err)
			}
		}
	}()
	for _, r := range reactors {
		for _, peer := range r.Switch.Peers().List() {
			peer.Set(types.PeerStateKey, peerState{height: 1})
		}
	}

	const peerID = 1
	tx := preparedTransfer(t, testClient(2), testClient(0).Address(), 1000, 10000000)
	require.NoError(t, reactors[0].mempool.AddTransaction(tx, TxInfo{SenderID: peerID}))
	ensureNoTxs(t, reactors[peerID], 100*time.Millisecond)
}

// propagationMode为none的节点不转发交易
func TestReactorPropagationModeNone(t *testing.T) {
	const N = 2
	reactors := makeAndConnectReactors(t, N, func(conf *cfg.Config) {
		conf.Consensus.PropagationMode = cfg.PropagationModeNone
	})
	defer func() {
		for _, r := range reactors {
			if err := r.Stop(); err != nil {
				assert.NoError(t, err)
			}
		}
	}()

	tx := preparedTransfer(t, testClient(2), testClient(0).Address(), 1000, 10000000)
	require.NoError(t, reactors[0].mempool.AddTransaction(tx, TxInfo{SenderID: UnknownPeerID}))
	ensureNoTxs(t, reactors[1], 200*time.Millisecond)
}

// 测试当有节点退出时不会出现goroutine泄漏
func TestBroadcastTxForPeerStopsWhenPeerStops(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode.")
	}

	const N = 2
	reactors := makeAndConnectReactors(t, N)
	defer func() {
		for _, r := range reactors {
			if err := r.Stop(); err != nil {
				assert.NoError(t, err)
			}
		}
	}()

	// stop peer
	sw := reactors[1].Switch
	sw.StopPeerForError(sw.Peers().List()[0], errors.New("some reason"))

	// check that we are not leaking any go-routines
	// i.e. broadcastTxRoutine finishes when peer is stopped
	leaktest.CheckTimeout(t, 10*time.Second)()
}

// 测试节点mempool Reactor能否正常退出
func TestBroadcastTxForPeerStopsWhenReactorStops(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode.")
	}

	const N = 2
	reactors := makeAndConnectReactors(t, N)

	// stop reactors
	for _, r := range reactors {
		if err := r.Stop(); err != nil {
			assert.NoError(t, err)
		}
	}

	// check that we are not leaking any go-routines
	// i.e. broadcastTxRoutine finishes when reactor is stopped
	leaktest.CheckTimeout(t, 10*time.Second)()
}

// 测试MempoolIds能否正常分配id回收id
func TestMempoolIDsBasic(t *testing.T) {
	ids := newMempoolIDs()

	peer := mock.NewPeer(net.IP{127, 0, 0, 1})

	ids.ReserveForPeer(peer)
	assert.EqualValues(t, 1, ids.GetForPeer(peer))
	ids.Reclaim(peer)

	ids.ReserveForPeer(peer)
	assert.EqualValues(t, 2, ids.GetForPeer(peer))
	ids.Reclaim(peer)
}

func TestDontExhaustMaxActiveIDs(t *testing.T) {
	const N = 1
	reactors := makeAndConnectReactors(t, N)
	defer func() {
		for _, r := range reactors {
			if err := r.Stop(); err != nil {
				assert.NoError(t, err)
			}
		}
	}()
	reactor := reactors[0]

	for i := 0; i < 100; i++ {
		peer := mock.NewPeer(nil)
		reactor.InitPeer(peer)
		reactor.RemovePeer(peer, "test")
	}
}

// mempoolLogger is a TestingLogger which uses a different
// color for each validator ("validator" key must exist).
func mempoolLogger() log.Logger {
	return log.TestingLoggerWithColorFn(func(keyvals ...interface{}) term.FgBgColor {
		for i := 0; i < len(keyvals)-1; i += 2 {
			if keyvals[i] == "validator" {
				return term.FgBgColor{Fg: term.Color(uint8(keyvals[i+1].(int) + 1))}
			}
		}
		return term.FgBgColor{}
	})
}

// connect N mempool reactors through N switches
func makeAndConnectReactors(t *testing.T, n int, mutators ...func(*cfg.Config)) []*Reactor {
	config := cfg.TestConfig()
	for _, mutate := range mutators {
		mutate(config)
	}

	reactors := make([]*Reactor, n)
	logger := mempoolLogger()
	for i := 0; i < n; i++ {
		st := store.NewMemStore(log.NewNopLogger())
		require.NoError(t, st.Init(cfg.TestGenesisDoc(testSymbol, 2)))
		mempool := NewStreamMempool(config.Mempool, config.Transaction, testSymbol, st, 0,
			WithNow(func() int64 { return testNow }))

		reactors[i] = NewReactor(config.Mempool, config.Consensus, mempool)
		reactors[i].SetLogger(logger.With("validator", i))
	}

	p2p.MakeConnectedSwitches(config.P2P, n, func(i int, s *p2p.Switch) *p2p.Switch {
		s.AddReactor("MEMPOOL", reactors[i])
		return s
	}, p2p.Connect2Switches)
	return reactors
}

func waitForTxsOnReactors(t *testing.T, ids []string, reactors []*Reactor) {
	// wait for the txs in all mempools
	wg := new(sync.WaitGroup)
	for i, reactor := range reactors {
		wg.Add(1)
		go func(r *Reactor, reactorIndex int) {
			defer wg.Done()
			mempool := r.mempool
			for mempool.Size() < len(ids) {
				time.Sleep(time.Millisecond * 20)
			}
			reaped := mempool.ReapForBlock(len(ids))
			assert.Equalf(t, ids, reaped.IDs(), "txs on reactor %d don't match", reactorIndex)
		}(reactor, i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-time.After(reactorTimeout):
		t.Fatal("Timed out waiting for txs")
	case <-done:
	}
}

// ensure no txs on reactor after some timeout
func ensureNoTxs(t *testing.T, reactor *Reactor, timeout time.Duration) {
	time.Sleep(timeout) // wait for the txs in all mempools
	assert.Zero(t, reactor.mempool.Size())
}
