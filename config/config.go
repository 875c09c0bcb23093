package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	tmcfg "github.com/tendermint/tendermint/config"

	"ldpos_chain/types"
)

const (
	// DefaultLogLevel defines a default log level as INFO.
	DefaultLogLevel = "info"

	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	// PropagationModeBroadcast re-broadcasts admitted blocks, signatures and
	// transactions to peers after a random delay.
	PropagationModeBroadcast = "broadcast"
	// PropagationModeNone disables re-broadcasting.
	PropagationModeNone = "none"

	// EnvPassword holds the password used to decrypt encrypted forging
	// passphrases found in the config file.
	EnvPassword = "LDPOS_PASSWORD"
	// EnvForgingKeyIndex overrides the initial forging key index of every
	// local forging wallet.
	EnvForgingKeyIndex = "LDPOS_FORGING_KEY_INDEX"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
var (
	DefaultLDPoSDir = ".ldpos"

	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName  = "config.toml"
	defaultGenesisJSONName = "genesis.json"

	defaultNodeKeyName     = "node_key.json"
	defaultWalletKeyName   = "wallet_key.json"
	defaultWalletStateName = "wallet_state.json"

	defaultConfigFilePath  = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultGenesisJSONPath = filepath.Join(defaultConfigDir, defaultGenesisJSONName)
	defaultNodeKeyPath     = filepath.Join(defaultConfigDir, defaultNodeKeyName)
	defaultWalletKeyPath   = filepath.Join(defaultConfigDir, defaultWalletKeyName)
	defaultWalletStatePath = filepath.Join(defaultDataDir, defaultWalletStateName)
)

// Config defines the top level configuration for a node.
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	RPC         *RPCConfig         `mapstructure:"rpc"`
	P2P         *tmcfg.P2PConfig   `mapstructure:"p2p"`
	Mempool     *MempoolConfig     `mapstructure:"mempool"`
	Transaction *TransactionConfig `mapstructure:"transaction"`
	Consensus   *ConsensusConfig   `mapstructure:"consensus"`
	Sync        *SyncConfig        `mapstructure:"sync"`
}

// DefaultConfig returns a default configuration for a node.
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:  DefaultBaseConfig(),
		RPC:         DefaultRPCConfig(),
		P2P:         tmcfg.DefaultP2PConfig(),
		Mempool:     DefaultMempoolConfig(),
		Transaction: DefaultTransactionConfig(),
		Consensus:   DefaultConsensusConfig(),
		Sync:        DefaultSyncConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing.
func TestConfig() *Config {
	return &Config{
		BaseConfig:  TestBaseConfig(),
		RPC:         TestRPCConfig(),
		P2P:         tmcfg.TestP2PConfig(),
		Mempool:     TestMempoolConfig(),
		Transaction: DefaultTransactionConfig(),
		Consensus:   TestConsensusConfig(),
		Sync:        TestSyncConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.RPC.RootDir = root
	cfg.P2P.RootDir = root
	cfg.Mempool.RootDir = root
	cfg.Consensus.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.RPC.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [rpc] section: %w", err)
	}
	if err := cfg.Mempool.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [mempool] section: %w", err)
	}
	if err := cfg.Transaction.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [transaction] section: %w", err)
	}
	if err := cfg.Consensus.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [consensus] section: %w", err)
	}
	if err := cfg.Sync.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [sync] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// ForgingCredential identifies one forging wallet held by this node. The
// passphrase is either given in the clear or encrypted with the password
// taken from the LDPOS_PASSWORD environment variable.
type ForgingCredential struct {
	WalletAddress              string `mapstructure:"wallet_address" json:"walletAddress"`
	ForgingPassphrase          string `mapstructure:"forging_passphrase" json:"-"`
	EncryptedForgingPassphrase string `mapstructure:"encrypted_forging_passphrase" json:"-"`
}

// ValidateBasic checks that exactly one passphrase form is present.
func (cred ForgingCredential) ValidateBasic() error {
	if cred.ForgingPassphrase == "" && cred.EncryptedForgingPassphrase == "" {
		return fmt.Errorf("credential for %v has neither forging_passphrase nor encrypted_forging_passphrase", cred.WalletAddress)
	}
	if cred.ForgingPassphrase != "" && cred.EncryptedForgingPassphrase != "" {
		return fmt.Errorf("credential for %v has both forging_passphrase and encrypted_forging_passphrase", cred.WalletAddress)
	}
	return nil
}

// BaseConfig defines the base configuration for a node
type BaseConfig struct { //nolint: maligned
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home" json:"-"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker" json:"moniker"`

	// The address prefix shared by every wallet on this network
	NetworkSymbol string `mapstructure:"network_symbol" json:"networkSymbol"`

	// Path to the JSON file containing the initial set of accounts and votes
	Genesis string `mapstructure:"genesis_file" json:"genesisPath"`

	// Path to the JSON file containing the wallet seed used by this node
	WalletKey string `mapstructure:"wallet_key_file" json:"-"`

	// Path to the JSON file containing the last used key indexes of the
	// node's own wallet
	WalletState string `mapstructure:"wallet_state_file" json:"-"`

	// A JSON file containing the private key to use for p2p authenticated
	// encryption
	NodeKey string `mapstructure:"node_key_file" json:"-"`

	// Forging wallets operated by this node in addition to the wallet key
	// file. Each entry carries its own passphrase.
	ForgingCredentials []ForgingCredential `mapstructure:"forging_credentials" json:"-"`

	// Database backend: goleveldb | cleveldb | boltdb | rocksdb | badgerdb
	DBBackend string `mapstructure:"db_backend" json:"-"`

	// Database directory
	DBPath string `mapstructure:"db_dir" json:"-"`

	// Output level for logging
	LogLevel string `mapstructure:"log_level" json:"-"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log_format" json:"-"`
}

// DefaultBaseConfig returns a default base configuration for a node
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Moniker:       defaultMoniker,
		NetworkSymbol: "ldpos",
		Genesis:       defaultGenesisJSONPath,
		WalletKey:     defaultWalletKeyPath,
		WalletState:   defaultWalletStatePath,
		NodeKey:       defaultNodeKeyPath,
		DBBackend:     "goleveldb",
		DBPath:        defaultDataDir,
		LogLevel:      DefaultLogLevel,
		LogFormat:     LogFormatPlain,
	}
}

// TestBaseConfig returns a base configuration for testing a node
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.NetworkSymbol = "ldpos"
	cfg.DBBackend = "memdb"
	return cfg
}

// GenesisFile returns the full path to the genesis.json file
func (cfg BaseConfig) GenesisFile() string {
	return rootify(cfg.Genesis, cfg.RootDir)
}

// WalletKeyFile returns the full path to the wallet_key.json file
func (cfg BaseConfig) WalletKeyFile() string {
	return rootify(cfg.WalletKey, cfg.RootDir)
}

// WalletStateFile returns the full path to the wallet_state.json file
func (cfg BaseConfig) WalletStateFile() string {
	return rootify(cfg.WalletState, cfg.RootDir)
}

// NodeKeyFile returns the full path to the node_key.json file
func (cfg BaseConfig) NodeKeyFile() string {
	return rootify(cfg.NodeKey, cfg.RootDir)
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	if !types.ValidNetworkSymbol(cfg.NetworkSymbol) {
		return fmt.Errorf("unknown network_symbol %q", cfg.NetworkSymbol)
	}
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return fmt.Errorf("unknown log_format (must be 'plain' or 'json')")
	}
	for _, cred := range cfg.ForgingCredentials {
		if err := cred.ValidateBasic(); err != nil {
			return fmt.Errorf("error in forging_credentials: %w", err)
		}
	}
	return nil
}

//-----------------------------------------------------------------------------
// RPCConfig

// RPCConfig defines the configuration options for the RPC server
type RPCConfig struct {
	RootDir string `mapstructure:"home" json:"-"`

	// TCP or UNIX socket address for the RPC server to listen on
	ListenAddress string `mapstructure:"laddr" json:"-"`

	// Second listener serving the same routes under the private api caps.
	// Empty disables it. Must never be exposed beyond localhost.
	PrivateListenAddress string `mapstructure:"private_laddr" json:"-"`

	// Maximum number of simultaneous connections (including WebSocket).
	// Does not include gRPC connections. See max_open_connections
	MaxOpenConnections int `mapstructure:"max_open_connections" json:"-"`

	// Number of records returned by list queries when the caller does not
	// give a limit
	APILimit int `mapstructure:"api_limit" json:"apiLimit"`

	// Hard caps applied to limit/offset arguments of public routes
	MaxPublicAPILimit  int `mapstructure:"max_public_api_limit" json:"maxPublicAPILimit"`
	MaxPublicAPIOffset int `mapstructure:"max_public_api_offset" json:"maxPublicAPIOffset"`

	// Hard caps applied to limit/offset arguments of private routes
	MaxPrivateAPILimit  int `mapstructure:"max_private_api_limit" json:"maxPrivateAPILimit"`
	MaxPrivateAPIOffset int `mapstructure:"max_private_api_offset" json:"maxPrivateAPIOffset"`
}

// DefaultRPCConfig returns a default configuration for the RPC server
func DefaultRPCConfig() *RPCConfig {
	return &RPCConfig{
		ListenAddress:       "tcp://127.0.0.1:26657",
		MaxOpenConnections:  900,
		APILimit:            100,
		MaxPublicAPILimit:   100,
		MaxPublicAPIOffset:  10000,
		MaxPrivateAPILimit:  1000,
		MaxPrivateAPIOffset: 100000,
	}
}

// TestRPCConfig returns a configuration for testing the RPC server
func TestRPCConfig() *RPCConfig {
	cfg := DefaultRPCConfig()
	cfg.ListenAddress = "tcp://127.0.0.1:36657"
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *RPCConfig) ValidateBasic() error {
	if cfg.MaxOpenConnections < 0 {
		return fmt.Errorf("max_open_connections can't be negative")
	}
	if cfg.APILimit <= 0 {
		return fmt.Errorf("api_limit must be positive")
	}
	if cfg.MaxPublicAPILimit <= 0 || cfg.MaxPrivateAPILimit <= 0 {
		return fmt.Errorf("api limit caps must be positive")
	}
	if cfg.MaxPublicAPIOffset < 0 || cfg.MaxPrivateAPIOffset < 0 {
		return fmt.Errorf("api offset caps can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// MempoolConfig

// MempoolConfig defines the configuration options for the mempool
type MempoolConfig struct {
	RootDir string `mapstructure:"home" json:"-"`

	// Re-broadcast admitted transactions to peers
	Broadcast bool `mapstructure:"broadcast" json:"-"`

	// Size of the id cache remembering recently seen transactions
	CacheSize int `mapstructure:"cache_size" json:"-"`

	// Caps on a single sender's pending stream
	MaxPendingTransactionsPerAccount     int `mapstructure:"max_pending_transactions_per_account" json:"maxPendingTransactionsPerAccount"`
	MaxTransactionBackpressurePerAccount int `mapstructure:"max_transaction_backpressure_per_account" json:"maxTransactionBackpressurePerAccount"`

	// Pending transactions older than the expiry are dropped by a periodic
	// sweep
	PendingTransactionExpiry              time.Duration `mapstructure:"pending_transaction_expiry" json:"pendingTransactionExpiry"`
	PendingTransactionExpiryCheckInterval time.Duration `mapstructure:"pending_transaction_expiry_check_interval" json:"pendingTransactionExpiryCheckInterval"`
}

// DefaultMempoolConfig returns a default configuration for the mempool
func DefaultMempoolConfig() *MempoolConfig {
	return &MempoolConfig{
		Broadcast:                             true,
		CacheSize:                             10000,
		MaxPendingTransactionsPerAccount:      64,
		MaxTransactionBackpressurePerAccount:  32,
		PendingTransactionExpiry:              24 * time.Hour,
		PendingTransactionExpiryCheckInterval: time.Hour,
	}
}

// TestMempoolConfig returns a configuration for testing the mempool
func TestMempoolConfig() *MempoolConfig {
	cfg := DefaultMempoolConfig()
	cfg.CacheSize = 1000
	cfg.PendingTransactionExpiryCheckInterval = 100 * time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *MempoolConfig) ValidateBasic() error {
	if cfg.CacheSize < 0 {
		return fmt.Errorf("cache_size can't be negative")
	}
	if cfg.MaxPendingTransactionsPerAccount <= 0 {
		return fmt.Errorf("max_pending_transactions_per_account must be positive")
	}
	if cfg.MaxTransactionBackpressurePerAccount <= 0 {
		return fmt.Errorf("max_transaction_backpressure_per_account must be positive")
	}
	if cfg.PendingTransactionExpiry <= 0 {
		return fmt.Errorf("pending_transaction_expiry must be positive")
	}
	if cfg.PendingTransactionExpiryCheckInterval <= 0 {
		return fmt.Errorf("pending_transaction_expiry_check_interval must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// TransactionConfig

// TransactionConfig defines the chain rules applied when authenticating a
// transaction. Fee minimums are decimal strings because fees exceed the
// int64 range.
type TransactionConfig struct {
	// Minimum fee per transaction type
	MinTransactionFees map[string]string `mapstructure:"min_transaction_fees" json:"minTransactionFees"`

	// Per member surcharges for multisig wallets
	MinMultisigRegistrationFeePerMember string `mapstructure:"min_multisig_registration_fee_per_member" json:"minMultisigRegistrationFeePerMember"`
	MinMultisigTransactionFeePerMember  string `mapstructure:"min_multisig_transaction_fee_per_member" json:"minMultisigTransactionFeePerMember"`

	// Bounds on the member count of a multisig wallet
	MinMultisigMembers int `mapstructure:"min_multisig_members" json:"minMultisigMembers"`
	MaxMultisigMembers int `mapstructure:"max_multisig_members" json:"maxMultisigMembers"`

	// Maximum number of decimal digits of amount + fee
	MaxSpendableDigits int `mapstructure:"max_spendable_digits" json:"maxSpendableDigits"`

	// Maximum byte length of the free form message field
	MaxTransactionMessageLength int `mapstructure:"max_transaction_message_length" json:"maxTransactionMessageLength"`

	// Maximum number of delegates a single account can vote for
	MaxVotesPerAccount int `mapstructure:"max_votes_per_account" json:"maxVotesPerAccount"`
}

// DefaultTransactionConfig returns the default chain rules.
func DefaultTransactionConfig() *TransactionConfig {
	return &TransactionConfig{
		MinTransactionFees: map[string]string{
			string(types.TxTypeTransfer):                "10000000",
			string(types.TxTypeVote):                    "20000000",
			string(types.TxTypeUnvote):                  "20000000",
			string(types.TxTypeRegisterSigDetails):      "20000000",
			string(types.TxTypeRegisterMultisigDetails): "20000000",
			string(types.TxTypeRegisterForgingDetails):  "20000000",
			string(types.TxTypeRegisterMultisigWallet):  "50000000",
		},
		MinMultisigRegistrationFeePerMember: "100000000",
		MinMultisigTransactionFeePerMember:  "500000",
		MinMultisigMembers:                  1,
		MaxMultisigMembers:                  100,
		MaxSpendableDigits:                  25,
		MaxTransactionMessageLength:         256,
		MaxVotesPerAccount:                  5,
	}
}

// MinFee returns the minimum fee for the given transaction type as a big
// integer amount.
func (cfg *TransactionConfig) MinFee(txType types.TransactionType) *types.Amount {
	raw, ok := cfg.MinTransactionFees[string(txType)]
	if !ok {
		return types.ZeroAmount()
	}
	fee, err := types.ParseAmount(raw)
	if err != nil {
		return types.ZeroAmount()
	}
	return fee
}

// MultisigRegistrationSurcharge returns the additional minimum fee a
// registerMultisigWallet transaction owes for the given member count.
func (cfg *TransactionConfig) MultisigRegistrationSurcharge(memberCount int) *types.Amount {
	per, err := types.ParseAmount(cfg.MinMultisigRegistrationFeePerMember)
	if err != nil {
		return types.ZeroAmount()
	}
	return per.MulInt64(int64(memberCount))
}

// MultisigTransactionSurcharge returns the additional minimum fee any
// transaction sent from a multisig wallet owes for the wallet's member count.
func (cfg *TransactionConfig) MultisigTransactionSurcharge(memberCount int) *types.Amount {
	per, err := types.ParseAmount(cfg.MinMultisigTransactionFeePerMember)
	if err != nil {
		return types.ZeroAmount()
	}
	return per.MulInt64(int64(memberCount))
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *TransactionConfig) ValidateBasic() error {
	for txType, raw := range cfg.MinTransactionFees {
		if !types.ValidTransactionType(types.TransactionType(txType)) {
			return fmt.Errorf("min_transaction_fees names unknown type %q", txType)
		}
		if _, err := types.ParseAmount(raw); err != nil {
			return fmt.Errorf("min_transaction_fees[%v]: %w", txType, err)
		}
	}
	if _, err := types.ParseAmount(cfg.MinMultisigRegistrationFeePerMember); err != nil {
		return fmt.Errorf("min_multisig_registration_fee_per_member: %w", err)
	}
	if _, err := types.ParseAmount(cfg.MinMultisigTransactionFeePerMember); err != nil {
		return fmt.Errorf("min_multisig_transaction_fee_per_member: %w", err)
	}
	if cfg.MinMultisigMembers <= 0 {
		return fmt.Errorf("min_multisig_members must be positive")
	}
	if cfg.MaxMultisigMembers < cfg.MinMultisigMembers {
		return fmt.Errorf("max_multisig_members can't be below min_multisig_members")
	}
	if cfg.MaxSpendableDigits <= 0 {
		return fmt.Errorf("max_spendable_digits must be positive")
	}
	if cfg.MaxTransactionMessageLength < 0 {
		return fmt.Errorf("max_transaction_message_length can't be negative")
	}
	if cfg.MaxVotesPerAccount <= 0 {
		return fmt.Errorf("max_votes_per_account must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// ConsensusConfig

// ConsensusConfig defines the configuration for the forging loop and the
// propagation of blocks and block signatures.
type ConsensusConfig struct {
	RootDir string `mapstructure:"home" json:"-"`

	// Length of a forging slot. Block timestamps are multiples of it.
	ForgingInterval time.Duration `mapstructure:"forging_interval" json:"forgingInterval"`

	// Number of top delegates by vote weight taking part in forging
	ForgerCount int `mapstructure:"forger_count" json:"forgerCount"`

	// Fraction of the active delegates whose signatures a block needs before
	// it is processed. Must be at least 0.5 so two competing forks can't
	// both reach quorum.
	MinForgerBlockSignatureRatio float64 `mapstructure:"min_forger_block_signature_ratio" json:"minForgerBlockSignatureRatio"`

	// Number of signatures stored with each block and served to peers
	BlockSignaturesToProvide int `mapstructure:"block_signatures_to_provide" json:"blockSignaturesToProvide"`

	// Number of signatures required on blocks fetched during catch up.
	// Must be at least block_signatures_to_provide.
	BlockSignaturesToFetch int `mapstructure:"block_signatures_to_fetch" json:"blockSignaturesToFetch"`

	// Capability key peers use to advertise how many signatures they keep
	BlockSignaturesIndicator string `mapstructure:"block_signatures_indicator" json:"blockSignaturesIndicator"`

	// Wait before broadcasting a freshly forged block
	ForgingBlockBroadcastDelay time.Duration `mapstructure:"forging_block_broadcast_delay" json:"forgingBlockBroadcastDelay"`

	// Wait allowed for block signatures to arrive after a block is out
	ForgingSignatureBroadcastDelay time.Duration `mapstructure:"forging_signature_broadcast_delay" json:"forgingSignatureBroadcastDelay"`

	// Fast-forward local forging key indexes from the on-chain account
	// state after catch up
	AutoSyncForgingKeyIndex bool `mapstructure:"auto_sync_forging_key_index" json:"autoSyncForgingKeyIndex"`

	// broadcast | none
	PropagationMode string `mapstructure:"propagation_mode" json:"propagationMode"`

	// Extra time budget for a block or signature to cross the network
	PropagationTimeout time.Duration `mapstructure:"propagation_timeout" json:"propagationTimeout"`

	// Upper bound of the random delay applied before re-broadcasting
	PropagationRandomness time.Duration `mapstructure:"propagation_randomness" json:"propagationRandomness"`

	// Granularity of the slot clock
	TimePollInterval time.Duration `mapstructure:"time_poll_interval" json:"timePollInterval"`

	// A slot is skipped when fewer transactions are pending, unless a
	// delegate key change must be recorded on chain
	MinTransactionsPerBlock int `mapstructure:"min_transactions_per_block" json:"minTransactionsPerBlock"`

	// Cap on the transactions packed into one block
	MaxTransactionsPerBlock int `mapstructure:"max_transactions_per_block" json:"maxTransactionsPerBlock"`
}

// DefaultConsensusConfig returns a default configuration for the consensus
// service
func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		ForgingInterval:                30 * time.Second,
		ForgerCount:                    21,
		MinForgerBlockSignatureRatio:   0.6,
		BlockSignaturesToProvide:       12,
		BlockSignaturesToFetch:         12,
		BlockSignaturesIndicator:       "bsi",
		ForgingBlockBroadcastDelay:     2 * time.Second,
		ForgingSignatureBroadcastDelay: 5 * time.Second,
		AutoSyncForgingKeyIndex:        true,
		PropagationMode:                PropagationModeBroadcast,
		PropagationTimeout:             15 * time.Second,
		PropagationRandomness:          3 * time.Second,
		TimePollInterval:               200 * time.Millisecond,
		MinTransactionsPerBlock:        1,
		MaxTransactionsPerBlock:        300,
	}
}

// TestConsensusConfig returns a configuration for testing the consensus
// service
func TestConsensusConfig() *ConsensusConfig {
	cfg := DefaultConsensusConfig()
	cfg.ForgingInterval = 400 * time.Millisecond
	cfg.ForgerCount = 5
	cfg.ForgingBlockBroadcastDelay = 20 * time.Millisecond
	cfg.ForgingSignatureBroadcastDelay = 50 * time.Millisecond
	cfg.PropagationTimeout = 100 * time.Millisecond
	cfg.PropagationRandomness = 0
	cfg.TimePollInterval = 10 * time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *ConsensusConfig) ValidateBasic() error {
	if cfg.ForgingInterval <= 0 {
		return fmt.Errorf("forging_interval must be positive")
	}
	if cfg.ForgerCount <= 0 {
		return fmt.Errorf("forger_count must be positive")
	}
	if cfg.MinForgerBlockSignatureRatio < 0.5 || cfg.MinForgerBlockSignatureRatio > 1 {
		return fmt.Errorf("min_forger_block_signature_ratio must be between 0.5 and 1")
	}
	if cfg.BlockSignaturesToProvide < 0 {
		return fmt.Errorf("block_signatures_to_provide can't be negative")
	}
	if cfg.BlockSignaturesToFetch < cfg.BlockSignaturesToProvide {
		return fmt.Errorf("block_signatures_to_fetch can't be below block_signatures_to_provide")
	}
	switch cfg.PropagationMode {
	case PropagationModeBroadcast, PropagationModeNone:
	default:
		return fmt.Errorf("unknown propagation_mode (must be 'broadcast' or 'none')")
	}
	if cfg.PropagationRandomness < 0 {
		return fmt.Errorf("propagation_randomness can't be negative")
	}
	if cfg.TimePollInterval <= 0 {
		return fmt.Errorf("time_poll_interval must be positive")
	}
	if cfg.MinTransactionsPerBlock < 0 {
		return fmt.Errorf("min_transactions_per_block can't be negative")
	}
	if cfg.MaxTransactionsPerBlock < cfg.MinTransactionsPerBlock || cfg.MaxTransactionsPerBlock <= 0 {
		return fmt.Errorf("max_transactions_per_block must be positive and at least min_transactions_per_block")
	}
	return nil
}

//-----------------------------------------------------------------------------
// SyncConfig

// SyncConfig defines the configuration for catching up with the chain tip
// after a restart or when the node falls behind.
type SyncConfig struct {
	// Blocks requested from a peer per round trip
	FetchBlockLimit int `mapstructure:"fetch_block_limit" json:"fetchBlockLimit"`

	// Pause between two block fetches
	FetchBlockPause time.Duration `mapstructure:"fetch_block_pause" json:"fetchBlockPause"`

	// Number of sampled peers that must confirm our tip before catch up
	// ends
	FetchBlockEndConfirmations int `mapstructure:"fetch_block_end_confirmations" json:"fetchBlockEndConfirmations"`

	// Give up thresholds for repeated fetch failures
	MaxConsecutiveBlockFetchFailures       int `mapstructure:"max_consecutive_block_fetch_failures" json:"maxConsecutiveBlockFetchFailures"`
	MaxConsecutiveTransactionFetchFailures int `mapstructure:"max_consecutive_transaction_fetch_failures" json:"maxConsecutiveTransactionFetchFailures"`

	// Peer sample taken when checking that the network agrees with a block
	// we fetched, and the fraction that must agree
	CatchUpConsensusPollCount int     `mapstructure:"catch_up_consensus_poll_count" json:"catchUpConsensusPollCount"`
	CatchUpConsensusMinRatio  float64 `mapstructure:"catch_up_consensus_min_ratio" json:"catchUpConsensusMinRatio"`
}

// DefaultSyncConfig returns a default configuration for the catch up engine
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		FetchBlockLimit:                        10,
		FetchBlockPause:                        100 * time.Millisecond,
		FetchBlockEndConfirmations:             10,
		MaxConsecutiveBlockFetchFailures:       5,
		MaxConsecutiveTransactionFetchFailures: 3,
		CatchUpConsensusPollCount:              6,
		CatchUpConsensusMinRatio:               0.5,
	}
}

// TestSyncConfig returns a configuration for testing the catch up engine
func TestSyncConfig() *SyncConfig {
	cfg := DefaultSyncConfig()
	cfg.FetchBlockPause = 10 * time.Millisecond
	cfg.FetchBlockEndConfirmations = 1
	cfg.CatchUpConsensusPollCount = 2
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *SyncConfig) ValidateBasic() error {
	if cfg.FetchBlockLimit <= 0 {
		return fmt.Errorf("fetch_block_limit must be positive")
	}
	if cfg.FetchBlockPause < 0 {
		return fmt.Errorf("fetch_block_pause can't be negative")
	}
	if cfg.FetchBlockEndConfirmations < 0 {
		return fmt.Errorf("fetch_block_end_confirmations can't be negative")
	}
	if cfg.MaxConsecutiveBlockFetchFailures <= 0 {
		return fmt.Errorf("max_consecutive_block_fetch_failures must be positive")
	}
	if cfg.MaxConsecutiveTransactionFetchFailures <= 0 {
		return fmt.Errorf("max_consecutive_transaction_fetch_failures must be positive")
	}
	if cfg.CatchUpConsensusPollCount <= 0 {
		return fmt.Errorf("catch_up_consensus_poll_count must be positive")
	}
	if cfg.CatchUpConsensusMinRatio <= 0 || cfg.CatchUpConsensusMinRatio > 1 {
		return fmt.Errorf("catch_up_consensus_min_ratio must be in (0, 1]")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

//-----------------------------------------------------------------------------
// Moniker

var defaultMoniker = getDefaultMoniker()

// getDefaultMoniker returns a default moniker, which is the host name. If
// runtime fails to get the host name, "anonymous" will be returned.
func getDefaultMoniker() string {
	moniker, err := os.Hostname()
	if err != nil {
		moniker = "anonymous"
	}
	return moniker
}
