package types

// IdentityKeys holds the local long-term identity and its X25519 key pair.
type IdentityKeys struct {
	Identity Identity      `json:"identity"`
	XPub     X25519Public  `json:"xpub"`
	XPriv    X25519Private `json:"xpriv"`
}

// Contact is what the engine needs to know about a peer.
type Contact struct {
	Identity    Identity     `json:"identity"`
	PublicKey   X25519Public `json:"public_key"`
	FeatureMask FeatureMask  `json:"feature_mask"`
}

// SupportsForwardSecrecy reports whether the contact advertises FS support.
func (c Contact) SupportsForwardSecrecy() bool {
	return c.FeatureMask.Has(FeatureForwardSecrecy)
}
