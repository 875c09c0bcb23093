package config

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"text/template"

	tmos "github.com/tendermint/tendermint/libs/os"

	"ldpos_chain/cryptoclient"
	"ldpos_chain/types"
)

// DefaultDirPerm is the default permissions used when creating directories.
const DefaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate")
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config, and data directories if they don't
// exist, and panics if it fails.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, DefaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), DefaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), DefaultDirPerm); err != nil {
		panic(err.Error())
	}

	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)

	// Write default config file if missing.
	if !tmos.FileExists(configFilePath) {
		writeDefaultConfigFile(configFilePath)
	}
}

func writeDefaultConfigFile(configFilePath string) {
	WriteConfigFile(configFilePath, DefaultConfig())
}

// WriteConfigFile renders config using the template and writes it to
// configFilePath.
func WriteConfigFile(configFilePath string, config *Config) {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, config); err != nil {
		panic(err)
	}

	tmos.MustWriteFile(configFilePath, buffer.Bytes(), 0644)
}

/****** these are for test settings ***********/

// TestWalletSeed returns the deterministic seed of the i-th test wallet.
// Test genesis docs and test nodes derive their keys from these.
func TestWalletSeed(i int) string {
	return fmt.Sprintf("ldpos-test-wallet-%d", i)
}

// TestGenesisDoc builds a genesis doc with forgerCount delegate accounts,
// each voting for itself, plus one plain account without forging keys. All
// keys derive from TestWalletSeed.
func TestGenesisDoc(networkSymbol string, forgerCount int) *types.GenesisDoc {
	genDoc := &types.GenesisDoc{
		NetworkSymbol: networkSymbol,
		Timestamp:     0,
	}

	for i := 0; i <= forgerCount; i++ {
		seed := TestWalletSeed(i)
		sigPub := cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 0)
		address := types.WalletAddressFromPublicKey(networkSymbol, sigPub)
		balance, _ := types.ParseAmount("100000000000000000")

		account := types.GenesisAccount{
			Address:          address,
			Type:             types.AccountTypeSig,
			Balance:          balance,
			SigPublicKey:     sigPub,
			NextSigPublicKey: cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 1),
			NextSigKeyIndex:  1,
		}
		// 最后一个账户是普通钱包，不参与锻造
		if i < forgerCount {
			account.ForgingPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainForging, 0)
			account.NextForgingPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainForging, 1)
			account.NextForgingKeyIndex = 1
			genDoc.Votes = append(genDoc.Votes, types.GenesisVote{
				VoterAddress:    address,
				DelegateAddress: address,
			})
		}
		genDoc.Accounts = append(genDoc.Accounts, account)
	}

	return genDoc
}

// ResetTestRoot sets up a fresh root directory for a test node. The genesis
// holds TestConsensusConfig().ForgerCount forging delegates and the node's
// own wallet is the first of them.
func ResetTestRoot(testName string) *Config {
	return ResetTestRootWithGenesis(testName, nil)
}

// ResetTestRootWithGenesis is ResetTestRoot with a caller supplied genesis
// doc.
func ResetTestRootWithGenesis(testName string, genDoc *types.GenesisDoc) *Config {
	// create a unique, concurrency-safe test directory under os.TempDir()
	rootDir, err := ioutil.TempDir("", fmt.Sprintf("ldpos-%s_", testName))
	if err != nil {
		panic(err)
	}
	// ensure config and data subdirs are created
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), DefaultDirPerm); err != nil {
		panic(err)
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), DefaultDirPerm); err != nil {
		panic(err)
	}

	config := TestConfig().SetRoot(rootDir)

	if genDoc == nil {
		genDoc = TestGenesisDoc(config.NetworkSymbol, config.Consensus.ForgerCount)
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		panic(err)
	}
	if err := genDoc.SaveAs(config.GenesisFile()); err != nil {
		panic(err)
	}

	writeDefaultConfigFile(filepath.Join(rootDir, defaultConfigFilePath))

	// we always overwrite the wallet files
	fw := cryptoclient.NewFileWallet(
		config.NetworkSymbol, TestWalletSeed(0),
		config.WalletKeyFile(), config.WalletStateFile(),
	)
	fw.Save()

	return config
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/myawesomeapp/data") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.ldpos" by default, but could be changed via $LDPOSHOME env variable
# or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# A custom human readable name for this node
moniker = "{{ .BaseConfig.Moniker }}"

# The address prefix shared by every wallet on this network
network_symbol = "{{ .BaseConfig.NetworkSymbol }}"

# Path to the JSON file containing the initial set of accounts and votes
genesis_file = "{{ .BaseConfig.Genesis }}"

# Path to the JSON file containing the wallet seed used by this node
wallet_key_file = "{{ .BaseConfig.WalletKey }}"

# Path to the JSON file containing the last used key indexes of the node's
# own wallet
wallet_state_file = "{{ .BaseConfig.WalletState }}"

# Path to the JSON file containing the private key to use for node
# authentication in the p2p protocol
node_key_file = "{{ .BaseConfig.NodeKey }}"

# Database backend: goleveldb | cleveldb | boltdb | rocksdb | badgerdb
db_backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db_dir = "{{ .BaseConfig.DBPath }}"

# Output level for logging, including package level options
log_level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log_format = "{{ .BaseConfig.LogFormat }}"

# Additional forging wallets operated by this node. Give either a clear
# forging_passphrase or an encrypted_forging_passphrase decrypted with the
# LDPOS_PASSWORD environment variable.
{{ range .BaseConfig.ForgingCredentials }}
[[forging_credentials]]
wallet_address = "{{ .WalletAddress }}"
forging_passphrase = "{{ .ForgingPassphrase }}"
encrypted_forging_passphrase = "{{ .EncryptedForgingPassphrase }}"
{{ end }}

#######################################################################
###                 Advanced Configuration Options                  ###
#######################################################################

#######################################################
###       RPC Server Configuration Options          ###
#######################################################
[rpc]

# TCP or UNIX socket address for the RPC server to listen on
laddr = "{{ .RPC.ListenAddress }}"

# Second listener serving the same routes under the private api caps.
# Empty disables it. Must never be exposed beyond localhost.
private_laddr = "{{ .RPC.PrivateListenAddress }}"

# Maximum number of simultaneous connections (including WebSocket).
max_open_connections = {{ .RPC.MaxOpenConnections }}

# Number of records returned by list queries when the caller does not give a
# limit
api_limit = {{ .RPC.APILimit }}

# Hard caps applied to limit/offset arguments of public routes
max_public_api_limit = {{ .RPC.MaxPublicAPILimit }}
max_public_api_offset = {{ .RPC.MaxPublicAPIOffset }}

# Hard caps applied to limit/offset arguments of private routes
max_private_api_limit = {{ .RPC.MaxPrivateAPILimit }}
max_private_api_offset = {{ .RPC.MaxPrivateAPIOffset }}

#######################################################
###           P2P Configuration Options             ###
#######################################################
[p2p]

# Address to listen for incoming connections
laddr = "{{ .P2P.ListenAddress }}"

# Address to advertise to peers for them to dial
# If empty, will use the same port as the laddr,
# and will introspect on the listener or use UPnP
# to figure out the address.
external_address = "{{ .P2P.ExternalAddress }}"

# Comma separated list of seed nodes to connect to
seeds = "{{ .P2P.Seeds }}"

# Comma separated list of nodes to keep persistent connections to
persistent_peers = "{{ .P2P.PersistentPeers }}"

# Maximum number of inbound peers
max_num_inbound_peers = {{ .P2P.MaxNumInboundPeers }}

# Maximum number of outbound peers to connect to, excluding persistent peers
max_num_outbound_peers = {{ .P2P.MaxNumOutboundPeers }}

# Rate at which packets can be sent, in bytes/second
send_rate = {{ .P2P.SendRate }}

# Rate at which packets can be received, in bytes/second
recv_rate = {{ .P2P.RecvRate }}

# Set true to enable the peer-exchange reactor
pex = {{ .P2P.PexReactor }}

#######################################################
###          Mempool Configuration Options          ###
#######################################################
[mempool]

# Re-broadcast admitted transactions to peers
broadcast = {{ .Mempool.Broadcast }}

# Size of the id cache remembering recently seen transactions
cache_size = {{ .Mempool.CacheSize }}

# Caps on a single sender's pending stream
max_pending_transactions_per_account = {{ .Mempool.MaxPendingTransactionsPerAccount }}
max_transaction_backpressure_per_account = {{ .Mempool.MaxTransactionBackpressurePerAccount }}

# Pending transactions older than the expiry are dropped by a periodic sweep
pending_transaction_expiry = "{{ .Mempool.PendingTransactionExpiry }}"
pending_transaction_expiry_check_interval = "{{ .Mempool.PendingTransactionExpiryCheckInterval }}"

#######################################################
###        Transaction Rules Configuration          ###
#######################################################
[transaction]

# Minimum fee per transaction type, as decimal strings
[transaction.min_transaction_fees]{{ range $type, $fee := .Transaction.MinTransactionFees }}
{{ $type }} = "{{ $fee }}"{{ end }}

# Per member surcharges for multisig wallets
min_multisig_registration_fee_per_member = "{{ .Transaction.MinMultisigRegistrationFeePerMember }}"
min_multisig_transaction_fee_per_member = "{{ .Transaction.MinMultisigTransactionFeePerMember }}"

# Bounds on the member count of a multisig wallet
min_multisig_members = {{ .Transaction.MinMultisigMembers }}
max_multisig_members = {{ .Transaction.MaxMultisigMembers }}

# Maximum number of decimal digits of amount + fee
max_spendable_digits = {{ .Transaction.MaxSpendableDigits }}

# Maximum byte length of the free form message field
max_transaction_message_length = {{ .Transaction.MaxTransactionMessageLength }}

# Maximum number of delegates a single account can vote for
max_votes_per_account = {{ .Transaction.MaxVotesPerAccount }}

#######################################################
###         Consensus Configuration Options         ###
#######################################################
[consensus]

# Length of a forging slot. Block timestamps are multiples of it.
forging_interval = "{{ .Consensus.ForgingInterval }}"

# Number of top delegates by vote weight taking part in forging
forger_count = {{ .Consensus.ForgerCount }}

# Fraction of the active delegates whose signatures a block needs before it
# is processed. Must be at least 0.5.
min_forger_block_signature_ratio = {{ .Consensus.MinForgerBlockSignatureRatio }}

# Number of signatures stored with each block and served to peers
block_signatures_to_provide = {{ .Consensus.BlockSignaturesToProvide }}

# Number of signatures required on blocks fetched during catch up. Must be
# at least block_signatures_to_provide.
block_signatures_to_fetch = {{ .Consensus.BlockSignaturesToFetch }}

# Capability key peers use to advertise how many signatures they keep
block_signatures_indicator = "{{ .Consensus.BlockSignaturesIndicator }}"

# Wait before broadcasting a freshly forged block
forging_block_broadcast_delay = "{{ .Consensus.ForgingBlockBroadcastDelay }}"

# Wait allowed for block signatures to arrive after a block is out
forging_signature_broadcast_delay = "{{ .Consensus.ForgingSignatureBroadcastDelay }}"

# Fast-forward local forging key indexes from the on-chain account state
# after catch up
auto_sync_forging_key_index = {{ .Consensus.AutoSyncForgingKeyIndex }}

# broadcast | none
propagation_mode = "{{ .Consensus.PropagationMode }}"

# Extra time budget for a block or signature to cross the network
propagation_timeout = "{{ .Consensus.PropagationTimeout }}"

# Upper bound of the random delay applied before re-broadcasting
propagation_randomness = "{{ .Consensus.PropagationRandomness }}"

# Granularity of the slot clock
time_poll_interval = "{{ .Consensus.TimePollInterval }}"

# A slot is skipped when fewer transactions are pending, unless a delegate
# key change must be recorded on chain
min_transactions_per_block = {{ .Consensus.MinTransactionsPerBlock }}

# Cap on the transactions packed into one block
max_transactions_per_block = {{ .Consensus.MaxTransactionsPerBlock }}

#######################################################
###           Sync Configuration Options            ###
#######################################################
[sync]

# Blocks requested from a peer per round trip
fetch_block_limit = {{ .Sync.FetchBlockLimit }}

# Pause between two block fetches
fetch_block_pause = "{{ .Sync.FetchBlockPause }}"

# Number of sampled peers that must confirm our tip before catch up ends
fetch_block_end_confirmations = {{ .Sync.FetchBlockEndConfirmations }}

# Give up thresholds for repeated fetch failures
max_consecutive_block_fetch_failures = {{ .Sync.MaxConsecutiveBlockFetchFailures }}
max_consecutive_transaction_fetch_failures = {{ .Sync.MaxConsecutiveTransactionFetchFailures }}

# Peer sample taken when checking that the network agrees with a block we
# fetched, and the fraction that must agree
catch_up_consensus_poll_count = {{ .Sync.CatchUpConsensusPollCount }}
catch_up_consensus_min_ratio = {{ .Sync.CatchUpConsensusMinRatio }}
`
