/*
Package blocksync catches a node up with its peers and serves the data other
nodes need to catch up with it.

Synchronization runs in two phases. The HeaderSynchronizer first finds where
the local header chain and a peer's chain split, using a block locator of
exponentially spaced local hashes, then streams the peer's headers from that
point and validates them with the ChainHeaderValidator. If the peer's chain
carries more accumulated work than the local one, the local blocks and
headers above the split are rewound in one transaction and the peer's
headers are committed in chunks.

The BlockSynchronizer then downloads the bodies of the headers the node
already holds, from the best block up to the header tip. Blocks are received
on one goroutine into a bounded channel and validated and committed strictly
in order on another, each in its own atomic transaction. A failure aborts
the session; blocks committed before it remain committed.

The Responder answers the same requests for remote peers, over the gRPC
service in internal/rpc or in process through NewLocalClient.

The Reactor ties the phases together: it runs header sync, block sync and
checkpoint pruning in rounds for as long as it is running.
*/
package blocksync
