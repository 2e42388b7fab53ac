package group

import (
	"bytes"
	"fmt"
)

var _ Group = &Roster{}

// Roster is an append only list of members. Members keep their index for the
// lifetime of the roster.
type Roster struct {
	members []Member
}

// NewRoster creates a roster from an ordered set of members. Member IDs must
// be unique.
func NewRoster(members ...Member) (*Roster, error) {
	r := &Roster{
		members: append([]Member(nil), members...),
	}
	if err := r.checkMemberUniqueness(); err != nil {
		return nil, err
	}
	return r, nil
}

// Add appends a member and returns its index.
func (r *Roster) Add(m Member) (uint, error) {
	if existing, idx := r.GetMemberByID(m.ID()); existing != nil {
		return 0, fmt.Errorf("member %X already exists at index %d", m.ID(), idx)
	}
	r.members = append(r.members, m)
	return uint(len(r.members) - 1), nil
}

func (r *Roster) Member(index uint) Member {
	if index >= uint(len(r.members)) {
		return nil
	}

	return r.members[index]
}

// GetMemberByID returns the member with the given id and its index. The member
// is nil if no such member exists.
func (r *Roster) GetMemberByID(id []byte) (Member, uint) {
	for idx, m := range r.members {
		if bytes.Equal(m.ID(), id) {
			return m, uint(idx)
		}
	}
	return nil, 0
}

func (r *Roster) Members() []Member {
	return r.members
}

func (r *Roster) Size() int {
	return len(r.members)
}

// Copy returns a roster that can be extended without affecting r.
func (r *Roster) Copy() *Roster {
	return &Roster{
		members: append([]Member(nil), r.members...),
	}
}

func (r *Roster) checkMemberUniqueness() error {
	for i, memberA := range r.members {
		for j, memberB := range r.members {
			if i == j {
				continue
			}
			if bytes.Equal(memberA.ID(), memberB.ID()) {
				return fmt.Errorf("members %d and %d have the same id", i, j)
			}
		}
	}
	return nil
}
