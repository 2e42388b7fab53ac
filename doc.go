// Package parley is a peer to peer chat in which every message is end to end
// encrypted for the members of a single group.
//
// Peers on the same network find each other over mDNS and share one
// broadcast topic. Anyone may create a group and becomes its leader. Other
// peers ask to join by broadcasting a key package; the leader admits them
// with a welcome, addressed only to the newcomer, followed by a commit that
// moves existing members to the next epoch. Payloads on the topic are tagged
// so that each node can tell key packages, welcomes and group messages apart
// before decoding them.
package parley
