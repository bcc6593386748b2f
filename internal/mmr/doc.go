/*
Package mmr implements the append-only authenticated accumulators that back
the block store: a Merkle Mountain Range (MMR) over leaf hashes, a mutable
variant carrying a deletion bitmap, revision control over it through
checkpoints (ChangeTracker), and a bounded-history Cache that makes
rewinds cheap.

Nodes are numbered in postorder starting at zero. For the 11 node MMR holding
7 leaves:

	2        6
	       /   \
	1     2     5      9
	     / \   / \    / \
	0   0   1 3   4  7   8 10

The peaks are 6, 9 and 10. The height of any node, and so whether it is a
left or a right child, follows from the binary form of its one-based
position: all-ones positions are the left-most nodes of their height and every
other position can be reduced to one by repeatedly removing the left-most
perfect subtree.

Leaves are never mutated. A MutableMMR marks leaves deleted in a bitmap and
commits to that bitmap in its root.
*/
package mmr
