package node

import (
	"github.com/tendermint/tendermint/p2p"

	cfg "ldpos_chain/config"
	"ldpos_chain/consensus"
	mempl "ldpos_chain/mempool"
	"ldpos_chain/version"
)

// makeNodeInfo builds the handshake info other peers see when they connect.
// Network carries the network symbol so nodes of different chains refuse
// each other, and the channel list is what the switch uses to decide which
// reactors a peer can be routed to.
func makeNodeInfo(config *cfg.Config, nodeKey *p2p.NodeKey) p2p.NodeInfo {
	nodeInfo := p2p.DefaultNodeInfo{
		ProtocolVersion: p2p.NewProtocolVersion(
			version.P2PProtocol,
			version.BlockProtocol,
			0,
		),
		DefaultNodeID: nodeKey.ID(),
		Network:       config.NetworkSymbol,
		Version:       version.LDPoSCoreSemVer,
		Channels: []byte{
			mempl.MempoolChannel,
			consensus.BlockChannel,
			consensus.BlockSignatureChannel,
			consensus.SyncChannel,
		},
		Moniker: config.Moniker,
		Other: p2p.DefaultNodeInfoOther{
			TxIndex:    "on",
			RPCAddress: config.RPC.ListenAddress,
		},
	}

	return nodeInfo
}
