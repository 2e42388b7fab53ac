package group

// Group is the ordered roster of members of a conversation. A member's index
// is its position in the roster and is what group messages reference when
// naming their sender.
type Group interface {
	Member(index uint) Member
	GetMemberByID(id []byte) (Member, uint)
	Size() int
}

// Member is a participant of a group. ID identifies the member (the peer
// identity bound in its credential) and Verify checks signatures made with
// the member's credential key.
type Member interface {
	ID() []byte
	Verify(msg, sig []byte) bool
}
