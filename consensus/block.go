package consensus

// NodeVotes pairs a node's id with its proposed tower replay, oldest vote
// first — the payload produced by Node.MakeBlock from Tower.VotesChronological.
type NodeVotes struct {
	Node  NodeID
	Votes []Vote
}

// Block is a slot proposal: the leader's chosen parent plus every included
// node's vote list. Every vote's slot must lie on the fork from genesis to
// ParentSlot inclusive.
type Block struct {
	Slot       Slot
	ParentSlot Slot
	Votes      []NodeVotes
}
