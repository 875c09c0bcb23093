package commands

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	cfg "ldpos_chain/config"
	nm "ldpos_chain/node"
)

var genesisHash []byte

// AddNodeFlags exposes some common configuration options on the command-line
// These are exposed for convenience of commands embedding a node
func AddNodeFlags(cmd *cobra.Command) {
	cmd.Flags().String("moniker", config.Moniker, "node name")
	cmd.Flags().BytesHexVar(&genesisHash, "genesis_hash", []byte{},
		"optional SHA-256 hash of the genesis file")

	// rpc flags
	cmd.Flags().String("rpc.laddr", config.RPC.ListenAddress,
		"RPC listen address. Port required")
	cmd.Flags().String("rpc.private_laddr", config.RPC.PrivateListenAddress,
		"private RPC listen address, should never leave localhost")

	// p2p flags
	cmd.Flags().String("p2p.laddr", config.P2P.ListenAddress,
		"node listen address. (0.0.0.0:0 means any interface, any port)")
	cmd.Flags().String("p2p.seeds", config.P2P.Seeds,
		"comma-delimited ID@host:port seed nodes")
	cmd.Flags().String("p2p.persistent_peers", config.P2P.PersistentPeers,
		"comma-delimited ID@host:port persistent peers")

	// consensus flags
	cmd.Flags().String("consensus.propagation_mode", config.Consensus.PropagationMode,
		"how admitted artifacts reach other peers: broadcast or none")
}

// NewRunNodeCmd returns the command that allows the CLI to start a node.
func NewRunNodeCmd(nodeProvider nm.Provider) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run_node"},
		Short:   "Run the LDPoS node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkGenesisHash(config); err != nil {
				return err
			}

			n, err := nodeProvider(config, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			if err := n.Start(); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}

			logger.Info("Started node", "nodeInfo", n.Switch().NodeInfo())

			// Stop upon receiving SIGTERM or CTRL-C.
			tmos.TrapSignal(logger, func() {
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						logger.Error("unable to stop the node", "error", err)
					}
				}
			})

			// Run forever.
			select {}
		},
	}

	AddNodeFlags(cmd)
	return cmd
}

func checkGenesisHash(config *cfg.Config) error {
	if len(genesisHash) == 0 || config.Genesis == "" {
		return nil
	}

	// Calculate SHA-256 hash of the genesis file.
	f, err := os.Open(config.GenesisFile())
	if err != nil {
		return fmt.Errorf("can't open genesis file: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("error when hashing genesis file: %w", err)
	}
	actualHash := h.Sum(nil)

	// Compare with the flag.
	if !bytes.Equal(genesisHash, actualHash) {
		return fmt.Errorf(
			"--genesis_hash=%X does not match %s hash: %X",
			genesisHash, config.GenesisFile(), actualHash)
	}

	return nil
}
