package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = MMRNodeSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

// MMRNodeSemVer is the semantic version of mmrnode.
const MMRNodeSemVer = "0.3.0"

// Protocol is used for implementation agnostic versioning.
type Protocol uint64

const (
	// SyncProtocol versions the gRPC sync service and its messages.
	SyncProtocol Protocol = 1

	// BlockProtocol versions the block data structures and the accumulator
	// commitments of the header.
	BlockProtocol Protocol = 1
)
