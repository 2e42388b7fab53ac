// Package gka is the group key agreement engine used by a chat session. It
// issues credentials and single use key packages, creates groups, admits
// members through commits and welcomes, and encrypts, signs and verifies the
// messages exchanged within a group epoch.
//
// The engine is leader driven. Only the group's creator commits. Every
// commit rotates the committer's leaf key and seals a fresh commit secret with
// HPKE to the leaf key of each other member; the next epoch secret is derived
// from the current one and that commit secret. A welcome carries the new
// epoch's group info sealed with HPKE to the new member's key package init
// key. Credentials are bound to identities: a credential's identity must be
// the libp2p peer ID of its signature key.
// All protocol objects are CBOR encoded with deterministic options so that
// key package references and signatures are stable.
package gka
