package dhsession

import (
	"fmt"

	"fscore/internal/crypto"
	domaintypes "fscore/internal/domain/types"
)

// StaticKey is the local long-term key as seen by the handshake.
// SharedSecret returns DH(myStaticPrivate, pub); the private key never leaves it.
type StaticKey interface {
	Identity() domaintypes.Identity
	SharedSecret(pub domaintypes.X25519Public) ([32]byte, error)
}

const (
	salt2DH = "ke-2dh-"
	salt4DH = "ke-4dh-"
)

// dhValues are the DH outputs in initiator order.
type dhValues struct {
	ss, se, es, ee [32]byte
}

func (d *dhValues) wipe() {
	crypto.WipeKey(&d.ss)
	crypto.WipeKey(&d.se)
	crypto.WipeKey(&d.es)
	crypto.WipeKey(&d.ee)
}

func root2DH(owner domaintypes.Identity, d *dhValues) [32]byte {
	ikm := make([]byte, 0, 64)
	ikm = append(ikm, d.ss[:]...)
	ikm = append(ikm, d.se[:]...)
	k := crypto.KDF(salt2DH+owner.String(), ikm)
	crypto.Wipe(ikm)
	return k
}

// roots4DH returns the 4DH root keys for a (initiator) and b (responder).
func roots4DH(a, b domaintypes.Identity, d *dhValues) (ka, kb [32]byte) {
	ikm := make([]byte, 0, 128)
	ikm = append(ikm, d.ss[:]...)
	ikm = append(ikm, d.se[:]...)
	ikm = append(ikm, d.es[:]...)
	ikm = append(ikm, d.ee[:]...)
	h := crypto.Hash512(ikm)
	crypto.Wipe(ikm)
	ka = crypto.KDF(salt4DH+a.String(), h[:])
	kb = crypto.KDF(salt4DH+b.String(), h[:])
	crypto.Wipe(h[:])
	return ka, kb
}

// initiator2DH computes ss and se for the initiating side.
func initiator2DH(me StaticKey, ephPriv domaintypes.X25519Private, peer domaintypes.X25519Public) (*dhValues, error) {
	var d dhValues
	var err error
	if d.ss, err = me.SharedSecret(peer); err != nil {
		return nil, fmt.Errorf("dh ss: %w", err)
	}
	if d.se, err = crypto.DH(ephPriv, peer); err != nil {
		d.wipe()
		return nil, fmt.Errorf("dh se: %w", err)
	}
	return &d, nil
}

// initiator4DH adds es and ee once the responder's ephemeral key is known.
func initiator4DH(
	me StaticKey,
	ephPriv domaintypes.X25519Private,
	peer, peerEph domaintypes.X25519Public,
) (*dhValues, error) {
	d, err := initiator2DH(me, ephPriv, peer)
	if err != nil {
		return nil, err
	}
	if d.es, err = me.SharedSecret(peerEph); err != nil {
		d.wipe()
		return nil, fmt.Errorf("dh es: %w", err)
	}
	if d.ee, err = crypto.DH(ephPriv, peerEph); err != nil {
		d.wipe()
		return nil, fmt.Errorf("dh ee: %w", err)
	}
	return d, nil
}

// responder4DH is the mirror of initiator4DH.
func responder4DH(
	me StaticKey,
	ephPriv domaintypes.X25519Private,
	peer, peerEph domaintypes.X25519Public,
) (*dhValues, error) {
	var d dhValues
	var err error
	if d.ss, err = me.SharedSecret(peer); err != nil {
		return nil, fmt.Errorf("dh ss: %w", err)
	}
	if d.se, err = me.SharedSecret(peerEph); err != nil {
		d.wipe()
		return nil, fmt.Errorf("dh se: %w", err)
	}
	if d.es, err = crypto.DH(ephPriv, peer); err != nil {
		d.wipe()
		return nil, fmt.Errorf("dh es: %w", err)
	}
	if d.ee, err = crypto.DH(ephPriv, peerEph); err != nil {
		d.wipe()
		return nil, fmt.Errorf("dh ee: %w", err)
	}
	return &d, nil
}
