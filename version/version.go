package version

const (
	// LDPoSCoreSemVer is the version of this node software. It is reported
	// over p2p handshakes and by the version command.
	LDPoSCoreSemVer = "0.2.0"

	// P2PProtocol versions the reactor channels and message codecs.
	// 不兼容的wire改动要递增这个值
	P2PProtocol = 1

	// BlockProtocol versions the block and transaction formats.
	BlockProtocol = 1
)
