// Package dhsession holds the per-peer forward secrecy session: its typed
// ratchet state, the 2DH/4DH key agreement and the version bookkeeping.
//
// # Overview
//
// A session is created either as initiator, holding only an outgoing 2DH
// ratchet plus its ephemeral private key, or as responder, holding the peer's
// 2DH ratchet and both 4DH ratchets. The initiator reaches 4DH when it
// processes the responder's Accept; the responder drops its 2DH peer ratchet
// once the first 4DH message arrives.
//
// # Key agreement
//
// With A the initiator (static a, ephemeral x) and B the responder (static b,
// ephemeral y), both sides order the DH outputs from A's point of view:
//
//	ss = DH(a, B)   se = DH(x, B)   es = DH(a, Y)   ee = DH(x, Y)
//
// 2DH root: KDF("ke-2dh-"+A, ss||se). 4DH roots: KDF("ke-4dh-"+P, H) for each
// party P, where H is BLAKE2b-512 over ss||se||es||ee.
//
// # State
//
// State is a closed set of variants. Each variant carries exactly the ratchets
// valid for it, so a session cannot hold, say, a 4DH peer ratchet without a 4DH
// own ratchet. StateFromRatchets rebuilds a variant from the four persisted
// ratchet slots and refuses any other combination.
//
// Sessions are plain values owned by one goroutine at a time; concurrent send
// and receive paths each work on their own loaded copy.
package dhsession
