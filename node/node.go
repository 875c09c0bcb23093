package node

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/p2p/conn"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"

	cfg "ldpos_chain/config"
	"ldpos_chain/consensus"
	"ldpos_chain/cryptoclient"
	"ldpos_chain/libs/metric"
	mempl "ldpos_chain/mempool"
	"ldpos_chain/rpc"
	"ldpos_chain/slot"
	sm "ldpos_chain/state"
	"ldpos_chain/store"
	"ldpos_chain/types"
)

// Provider takes a config and a logger and returns a ready to go Node.
type Provider func(*cfg.Config, log.Logger) (*Node, error)

// Node is the highest level interface to a full chain node.
// It includes all configuration information and running services.
type Node struct {
	service.BaseService

	// config
	config     *cfg.Config
	genesisDoc *types.GenesisDoc

	// network
	transport *p2p.MultiplexTransport
	sw        *p2p.Switch // p2p connections
	nodeInfo  p2p.NodeInfo
	nodeKey   *p2p.NodeKey // our node privkey

	// services
	store            *store.KVStore
	mempool          *mempl.StreamMempool
	mempoolReactor   *mempl.Reactor
	blockExec        sm.BlockExecutor
	consensusState   *consensus.ConsensusState
	consensusReactor *consensus.Reactor
	clock            slot.Clock
	metricSet        *metric.MetricSet
	rpcListeners     []net.Listener
}

// DefaultNewNode returns a chain node with default settings for the
// store, clock and wallets. It implements Provider.
func DefaultNewNode(config *cfg.Config, logger log.Logger) (*Node, error) {
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return nil, errors.Wrap(err, "failed to load or gen node key")
	}

	genDoc, err := types.GenesisDocFromFile(config.GenesisFile())
	if err != nil {
		return nil, err
	}

	return NewNode(config, nodeKey, genDoc, logger)
}

// NewNode assembles a new chain node from the given config, node key and
// genesis doc.
func NewNode(
	config *cfg.Config,
	nodeKey *p2p.NodeKey,
	genDoc *types.GenesisDoc,
	logger log.Logger,
) (*Node, error) {
	if genDoc.NetworkSymbol != config.NetworkSymbol {
		return nil, fmt.Errorf("genesis network symbol %v does not match config network symbol %v",
			genDoc.NetworkSymbol, config.NetworkSymbol)
	}

	st, err := store.NewKVStore("chain", config.DBBackend, config.DBDir(),
		logger.With("module", "store"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open chain store")
	}

	// 创世初始化。store已有链时Init是no-op，state总是加载当前链尾
	state, err := sm.MakeGenesisState(st, genDoc, config.Consensus.ForgerCount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load chain state")
	}

	forgers, err := forgingClients(config, logger)
	if err != nil {
		return nil, err
	}

	mempool := mempl.NewStreamMempool(
		config.Mempool,
		config.Transaction,
		config.NetworkSymbol,
		st,
		state.Height,
	)
	mempool.SetLogger(logger.With("module", "mempool"))
	mempoolReactor := mempl.NewReactor(config.Mempool, config.Consensus, mempool)
	mempoolReactor.SetLogger(logger.With("module", "mempool"))

	clock := slot.NewClock(config.Consensus.ForgingInterval, config.Consensus.TimePollInterval)

	blockExec := sm.NewBlockExecutor(
		config.Consensus,
		config.Transaction,
		config.NetworkSymbol,
		st,
		mempool,
		clock,
	)
	blockExec.SetLogger(logger.With("module", "state"))

	consensusState := consensus.NewConsensusState(
		config.Consensus,
		config.Sync,
		blockExec,
		st,
		mempool,
		clock,
		state,
		consensus.WithForgers(forgers...),
	)
	consensusReactor := consensus.NewReactor(config.Consensus, config.Sync, consensusState, st, mempool)
	consensusReactor.SetLogger(logger.With("module", "consensus"))

	// 锻造和mempool的事件都走consensus的EventSwitch
	blockExec.SetEventSwitch(consensusState.EventSwitch())
	mempool.SetEventSwitch(consensusState.EventSwitch())

	metricSet := metric.NewMetricSet()
	if err := metricSet.SetMetrics("mempool", mempool.Metric()); err != nil {
		return nil, err
	}
	if err := metricSet.SetMetrics("consensus", consensusState.Metric()); err != nil {
		return nil, err
	}

	nodeInfo := makeNodeInfo(config, nodeKey)
	transport := createTransport(config, nodeInfo, nodeKey)

	p2pLogger := logger.With("module", "p2p")
	sw := createSwitch(
		config, transport, mempoolReactor, consensusReactor,
		nodeInfo, nodeKey, p2pLogger,
	)

	node := &Node{
		config:     config,
		genesisDoc: genDoc,

		transport: transport,
		sw:        sw,
		nodeInfo:  nodeInfo,
		nodeKey:   nodeKey,

		store:            st,
		mempool:          mempool,
		mempoolReactor:   mempoolReactor,
		blockExec:        blockExec,
		consensusState:   consensusState,
		consensusReactor: consensusReactor,
		clock:            clock,
		metricSet:        metricSet,
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)

	return node, nil
}

// forgingClients builds a wallet client for every forging credential in the
// config. The credential matching the node's own wallet file reuses its
// persisted key state, every other credential gets an in-memory client whose
// forging key index is fast-forwarded from the on-chain account each slot.
func forgingClients(config *cfg.Config, logger log.Logger) ([]cryptoclient.Client, error) {
	if len(config.ForgingCredentials) == 0 {
		return nil, nil
	}

	password := os.Getenv(cfg.EnvPassword)

	var opts []cryptoclient.ClientOption
	if raw := os.Getenv(cfg.EnvForgingKeyIndex); raw != "" {
		index, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %v value %q: %w", cfg.EnvForgingKeyIndex, raw, err)
		}
		opts = append(opts, cryptoclient.WithForgingKeyIndex(index))
	}

	fw := cryptoclient.LoadOrGenFileWallet(
		config.NetworkSymbol,
		config.WalletKeyFile(),
		config.WalletStateFile(),
		password,
	)

	clients := make([]cryptoclient.Client, 0, len(config.ForgingCredentials))
	for _, cred := range config.ForgingCredentials {
		if cred.WalletAddress == fw.GetAddress() {
			clients = append(clients, fw.Client(opts...))
			logger.Info("Loaded forging wallet", "address", cred.WalletAddress, "keyFile", config.WalletKeyFile())
			continue
		}

		passphrase := cred.ForgingPassphrase
		if passphrase == "" {
			if password == "" {
				return nil, fmt.Errorf("credential for %v is encrypted but %v is not set",
					cred.WalletAddress, cfg.EnvPassword)
			}
			decrypted, err := cryptoclient.DecryptPassphrase(cred.EncryptedForgingPassphrase, password)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to decrypt forging passphrase for %v", cred.WalletAddress)
			}
			passphrase = decrypted
		}

		client := cryptoclient.NewClient(config.NetworkSymbol, passphrase, opts...)
		if client.Address() != cred.WalletAddress {
			return nil, fmt.Errorf("forging passphrase derives address %v, config says %v",
				client.Address(), cred.WalletAddress)
		}
		clients = append(clients, client)
		logger.Info("Loaded forging wallet", "address", cred.WalletAddress)
	}

	return clients, nil
}

func createTransport(
	config *cfg.Config,
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
) *p2p.MultiplexTransport {
	mConnConfig := conn.DefaultMConnConfig()
	mConnConfig.FlushThrottle = config.P2P.FlushThrottleTimeout
	mConnConfig.SendRate = config.P2P.SendRate
	mConnConfig.RecvRate = config.P2P.RecvRate
	mConnConfig.MaxPacketMsgPayloadSize = config.P2P.MaxPacketMsgPayloadSize
	return p2p.NewMultiplexTransport(nodeInfo, *nodeKey, mConnConfig)
}

func createSwitch(
	config *cfg.Config,
	transport p2p.Transport,
	mempoolReactor *mempl.Reactor,
	consensusReactor *consensus.Reactor,
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
	p2pLogger log.Logger,
) *p2p.Switch {
	sw := p2p.NewSwitch(config.P2P, transport)
	sw.SetLogger(p2pLogger)
	sw.AddReactor("MEMPOOL", mempoolReactor)
	sw.AddReactor("CONSENSUS", consensusReactor)
	sw.SetNodeInfo(nodeInfo)
	sw.SetNodeKey(nodeKey)

	p2pLogger.Info("P2P Node ID", "ID", nodeKey.ID(), "file", config.NodeKeyFile())
	return sw
}

// OnStart starts the Node. It implements service.Service.
func (n *Node) OnStart() error {
	// Start the RPC server before the P2P server so the API is already
	// usable while the node is still catching up.
	if n.config.RPC.ListenAddress != "" || n.config.RPC.PrivateListenAddress != "" {
		listeners, err := n.startRPC()
		if err != nil {
			return err
		}
		n.rpcListeners = listeners
	}

	addr, err := p2p.NewNetAddressString(p2p.IDAddressString(n.nodeKey.ID(), n.config.P2P.ListenAddress))
	if err != nil {
		return err
	}
	if err := n.transport.Listen(*addr); err != nil {
		return err
	}

	// 启动switch会连带启动两个reactor：
	// mempool reactor带起过期清扫，consensus reactor带起slot循环和追链
	if err := n.sw.Start(); err != nil {
		return err
	}

	err = n.sw.DialPeersAsync(splitAndTrimEmpty(n.config.P2P.PersistentPeers, ",", " "))
	if err != nil {
		return errors.Wrap(err, "could not dial peers from persistent_peers field")
	}

	return nil
}

// OnStop stops the Node. It implements service.Service.
func (n *Node) OnStop() {
	n.BaseService.OnStop()

	n.Logger.Info("Stopping Node")

	if err := n.sw.Stop(); err != nil {
		n.Logger.Error("Error closing switch", "err", err)
	}
	if err := n.transport.Close(); err != nil {
		n.Logger.Error("Error closing transport", "err", err)
	}

	for _, l := range n.rpcListeners {
		n.Logger.Info("Closing rpc listener", "listener", l)
		if err := l.Close(); err != nil {
			n.Logger.Error("Error closing listener", "listener", l, "err", err)
		}
	}

	if err := n.store.Close(); err != nil {
		n.Logger.Error("Error closing chain store", "err", err)
	}
}

// startRPC mounts the public routes on every rpc.laddr and the same routes
// under the private api caps on every rpc.private_laddr.
// 私有监听只应绑定回环地址
func (n *Node) startRPC() ([]net.Listener, error) {
	rpc.SetEnvironment(&rpc.Environment{
		Config:    n.config,
		Mempool:   n.mempool,
		Consensus: n.consensusState,
		Store:     n.store,
		MetricSet: n.metricSet,
		Logger:    n.Logger.With("module", "rpc"),
	})

	serverConfig := rpcserver.DefaultConfig()
	serverConfig.MaxOpenConnections = n.config.RPC.MaxOpenConnections

	type mount struct {
		laddr  string
		routes map[string]*rpcserver.RPCFunc
	}
	var mounts []mount
	for _, laddr := range splitAndTrimEmpty(n.config.RPC.ListenAddress, ",", " ") {
		mounts = append(mounts, mount{laddr, rpc.Routes()})
	}
	for _, laddr := range splitAndTrimEmpty(n.config.RPC.PrivateListenAddress, ",", " ") {
		mounts = append(mounts, mount{laddr, rpc.PrivateRoutes()})
	}

	listeners := make([]net.Listener, 0, len(mounts))
	for _, m := range mounts {
		rpcLogger := n.Logger.With("module", "rpc-server")
		mux := http.NewServeMux()
		rpcserver.RegisterRPCFuncs(mux, m.routes, rpcLogger)
		wm := rpcserver.NewWebsocketManager(m.routes)
		wm.SetLogger(rpcLogger.With("protocol", "websocket"))
		mux.HandleFunc("/websocket", wm.WebsocketHandler)

		listener, err := rpcserver.Listen(m.laddr, serverConfig)
		if err != nil {
			return nil, err
		}

		go func() {
			if err := rpcserver.Serve(listener, mux, rpcLogger, serverConfig); err != nil {
				n.Logger.Error("Error serving server", "err", err)
			}
		}()

		listeners = append(listeners, listener)
	}

	return listeners, nil
}

// Switch returns the Node's Switch.
func (n *Node) Switch() *p2p.Switch {
	return n.sw
}

// Store returns the Node's chain store.
func (n *Node) Store() store.Store {
	return n.store
}

// Mempool returns the Node's mempool.
func (n *Node) Mempool() *mempl.StreamMempool {
	return n.mempool
}

// MempoolReactor returns the Node's mempool reactor.
func (n *Node) MempoolReactor() *mempl.Reactor {
	return n.mempoolReactor
}

// ConsensusState returns the Node's consensus state.
func (n *Node) ConsensusState() *consensus.ConsensusState {
	return n.consensusState
}

// ConsensusReactor returns the Node's consensus reactor.
func (n *Node) ConsensusReactor() *consensus.Reactor {
	return n.consensusReactor
}

// EventSwitch returns the event switch where bootstrap, chainChanges and
// transaction events are published.
func (n *Node) EventSwitch() events.EventSwitch {
	return n.consensusState.EventSwitch()
}

// MetricSet returns the metric registry of the Node's subsystems.
func (n *Node) MetricSet() *metric.MetricSet {
	return n.metricSet
}

// GenesisDoc returns the Node's GenesisDoc.
func (n *Node) GenesisDoc() *types.GenesisDoc {
	return n.genesisDoc
}

// Config returns the Node's config.
func (n *Node) Config() *cfg.Config {
	return n.config
}

// NodeInfo returns the Node's Info from the Switch.
func (n *Node) NodeInfo() p2p.NodeInfo {
	return n.nodeInfo
}

// splitAndTrimEmpty slices s into all subslices separated by sep and returns
// a slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. If sep is empty, SplitAndTrim splits after each
// UTF-8 sequence. First part is equivalent to strings.SplitN with a count of
// -1. also filter out empty strings, only return non-empty strings.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}

	return nonEmptyStrings
}
