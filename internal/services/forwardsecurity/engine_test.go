package forwardsecurity_test

import (
	"context"
	"crypto/rand"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fscore/internal/crypto"
	"fscore/internal/domain"
	"fscore/internal/protocol/dhsession"
	"fscore/internal/protocol/envelope"
	"fscore/internal/protocol/ratchet"
	fs "fscore/internal/services/forwardsecurity"
	"fscore/internal/store"
)

type staticKey struct {
	id   domain.Identity
	priv domain.X25519Private
	pub  domain.X25519Public
}

func (k *staticKey) Identity() domain.Identity      { return k.id }
func (k *staticKey) PublicKey() domain.X25519Public { return k.pub }

func (k *staticKey) SharedSecret(pub domain.X25519Public) ([32]byte, error) {
	return crypto.DH(k.priv, pub)
}

type recordingSender struct {
	mu     sync.Mutex
	queued []domain.Message
	now    []domain.Message
}

func (s *recordingSender) Send(_ context.Context, m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, m)
	return nil
}

func (s *recordingSender) SendNow(_ context.Context, m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = append(s.now, m)
	return nil
}

// take returns and clears everything sent so far, immediate messages first.
func (s *recordingSender) take() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append(s.now, s.queued...)
	s.now, s.queued = nil, nil
	return out
}

type fixedFeatures domain.FeatureMask

func (f fixedFeatures) RefreshFeatureMask(context.Context, domain.Identity) (domain.FeatureMask, error) {
	return domain.FeatureMask(f), nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type peer struct {
	key    *staticKey
	store  *store.SessionStore
	sender *recordingSender
	engine *fs.Engine
	clock  *clock

	mu     sync.Mutex
	events []fs.Event
}

func newPeer(t *testing.T, name string, opts ...fs.Option) *peer {
	t.Helper()
	priv, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	deviceKey := make([]byte, 32)
	_, err = rand.Read(deviceKey)
	require.NoError(t, err)
	w, err := crypto.NewDeviceKeyWrapper(deviceKey)
	require.NoError(t, err)
	st, err := store.OpenSQLiteSessionStore(filepath.Join(t.TempDir(), "sessions.db"), w)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	p := &peer{
		key:    &staticKey{id: domain.Identity(name), priv: priv, pub: pub},
		store:  st,
		sender: &recordingSender{},
		clock:  &clock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	opts = append([]fs.Option{fs.WithClock(p.clock.now)}, opts...)
	p.engine = fs.New(p.key, st, p.sender, fixedFeatures(domain.FeatureForwardSecrecy), opts...)
	cancel := p.engine.Subscribe(func(ev fs.Event) {
		p.mu.Lock()
		p.events = append(p.events, ev)
		p.mu.Unlock()
	})
	t.Cleanup(cancel)
	return p
}

func (p *peer) contact() domain.Contact {
	return domain.Contact{Identity: p.key.id, PublicKey: p.key.pub, FeatureMask: domain.FeatureForwardSecrecy}
}

func (p *peer) takeEvents() []fs.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

func (p *peer) message(t *testing.T, to *peer, typ domain.MessageType, body string) domain.Message {
	t.Helper()
	var id domain.MessageID
	_, err := rand.Read(id[:])
	require.NoError(t, err)
	return domain.Message{Type: typ, From: p.key.id, To: to.key.id, ID: id, Date: p.clock.now(), Body: []byte(body)}
}

// send runs MakeMessage and commits it.
func (p *peer) send(t *testing.T, to *peer, typ domain.MessageType, body string) []domain.Message {
	t.Helper()
	enc, err := p.engine.MakeMessage(context.Background(), to.contact(), p.message(t, to, typ, body))
	require.NoError(t, err)
	require.NoError(t, enc.Commit())
	return enc.Messages
}

// receive feeds msg into p's engine and commits the result.
func (p *peer) receive(t *testing.T, from *peer, msg domain.Message) *fs.Result {
	t.Helper()
	res, err := p.engine.ProcessEnvelopeMessage(context.Background(), from.contact(), msg)
	require.NoError(t, err)
	require.NoError(t, res.Commit())
	return res
}

func (p *peer) session(t *testing.T, with *peer) *dhsession.Session {
	t.Helper()
	s, found, err := p.store.LoadBestSession(p.key.id, with.key.id)
	require.NoError(t, err)
	require.True(t, found)
	return s
}

func decode(t *testing.T, msg domain.Message) *envelope.Envelope {
	t.Helper()
	require.Equal(t, domain.MessageTypeForwardSecurityEnvelope, msg.Type)
	env, err := envelope.Unmarshal(msg.Body)
	require.NoError(t, err)
	return env
}

// establish runs a full Init/Accept handshake and returns the session id.
func establish(t *testing.T, alice, bob *peer) domain.SessionID {
	t.Helper()
	out := alice.send(t, bob, domain.MessageTypeText, "hello")
	require.Len(t, out, 2)
	require.IsType(t, &envelope.Init{}, decode(t, out[0]).Content)

	for _, m := range out {
		bob.receive(t, alice, m)
	}
	replies := bob.sender.take()
	require.Len(t, replies, 1)
	require.IsType(t, &envelope.Accept{}, decode(t, replies[0]).Content)
	alice.receive(t, bob, replies[0])

	alice.takeEvents()
	bob.takeEvents()
	return decode(t, out[0]).SessionID
}

func TestEngine_EndToEnd(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")

	out := alice.send(t, bob, domain.MessageTypeText, "hello")
	require.Len(t, out, 2)
	hello := decode(t, out[0])
	require.IsType(t, &envelope.Init{}, hello.Content)
	first := decode(t, out[1]).Content.(*envelope.DataMessage)
	assert.Equal(t, domain.DHTypeTwoDH, first.DHType)
	assert.Equal(t, uint64(1), first.Counter)

	res := bob.receive(t, alice, out[0])
	assert.Nil(t, res.Message)
	res = bob.receive(t, alice, out[1])
	require.NotNil(t, res.Message)
	assert.Equal(t, "hello", string(res.Message.Body))

	replies := bob.sender.take()
	require.Len(t, replies, 1)
	accept := decode(t, replies[0])
	assert.Equal(t, hello.SessionID, accept.SessionID)
	require.IsType(t, &envelope.Accept{}, accept.Content)
	alice.receive(t, bob, replies[0])
	assert.IsType(t, &dhsession.Established4DH{}, alice.session(t, bob).State)

	out = alice.send(t, bob, domain.MessageTypeText, "one")
	require.Len(t, out, 1, "init must not be repeated once committed")
	data := decode(t, out[0]).Content.(*envelope.DataMessage)
	assert.Equal(t, domain.DHTypeFourDH, data.DHType)
	assert.Equal(t, uint64(1), data.Counter)
	assert.Equal(t, domain.Version1_2, data.AppliedVersion)

	res = bob.receive(t, alice, out[0])
	require.NotNil(t, res.Message)
	assert.Equal(t, "one", string(res.Message.Body))
	assert.Equal(t, domain.MessageTypeText, res.Message.Type)
	assert.Equal(t, alice.key.id, res.Message.From)
	assert.Zero(t, res.MessagesSkipped)

	bs := bob.session(t, alice)
	assert.IsType(t, &dhsession.Established4DH{}, bs.State)
	assert.Equal(t, uint64(2), bs.PeerRatchet4DH().Counter())

	alice.send(t, bob, domain.MessageTypeText, "lost")
	out = alice.send(t, bob, domain.MessageTypeText, "three")
	assert.Equal(t, uint64(3), decode(t, out[0]).Content.(*envelope.DataMessage).Counter)

	res = bob.receive(t, alice, out[0])
	require.NotNil(t, res.Message)
	assert.Equal(t, "three", string(res.Message.Body))
	assert.Equal(t, uint64(1), res.MessagesSkipped)
	assert.Contains(t, bob.takeEvents(), fs.Event(fs.MessagesSkipped{
		PeerIdentity: alice.key.id, SessionID: hello.SessionID, Count: 1,
	}))
}

func TestEngine_ResponderCanSendAfterInit(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	establish(t, alice, bob)

	out := bob.send(t, alice, domain.MessageTypeText, "reply")
	require.Len(t, out, 1)
	assert.Equal(t, domain.DHTypeFourDH, decode(t, out[0]).Content.(*envelope.DataMessage).DHType)

	res := alice.receive(t, bob, out[0])
	require.NotNil(t, res.Message)
	assert.Equal(t, "reply", string(res.Message.Body))
}

func TestEngine_FirstFourDHMessageEstablishesResponder(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	id := establish(t, alice, bob)
	assert.IsType(t, &dhsession.Responder2DH4DH{}, bob.session(t, alice).State)

	out := alice.send(t, bob, domain.MessageTypeText, "4dh")
	bob.receive(t, alice, out[0])

	assert.IsType(t, &dhsession.Established4DH{}, bob.session(t, alice).State)
	assert.Contains(t, bob.takeEvents(), fs.Event(fs.SessionEstablished{PeerIdentity: alice.key.id, SessionID: id}))
}

func TestEngine_UncommittedPeerRatchetReplays(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	establish(t, alice, bob)

	out := alice.send(t, bob, domain.MessageTypeText, "again")

	// Processing without Commit leaves the stored ratchet untouched.
	res, err := bob.engine.ProcessEnvelopeMessage(context.Background(), alice.contact(), out[0])
	require.NoError(t, err)
	require.NotNil(t, res.Message)

	res = bob.receive(t, alice, out[0])
	require.NotNil(t, res.Message)
	assert.Equal(t, "again", string(res.Message.Body))
}

func TestEngine_ReplayIsRejected(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	id := establish(t, alice, bob)

	out := alice.send(t, bob, domain.MessageTypeText, "once")
	bob.receive(t, alice, out[0])

	_, err := bob.engine.ProcessEnvelopeMessage(context.Background(), alice.contact(), out[0])
	var bad *fs.BadMessageError
	require.ErrorAs(t, err, &bad)
	require.ErrorIs(t, err, ratchet.ErrCannotGoBackwards)

	sent := bob.sender.take()
	require.Len(t, sent, 1)
	reject := decode(t, sent[0]).Content.(*envelope.Reject)
	assert.Equal(t, envelope.RejectStateMismatch, reject.Cause)
	assert.Equal(t, out[0].ID, reject.RejectedMessageID)

	_, found, err := bob.store.LoadSession(bob.key.id, alice.key.id, id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEngine_TooFarAheadIsRejected(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	establish(t, alice, bob)

	s := alice.session(t, bob)
	s.State.(*dhsession.Established4DH).MyRatchet4DH = ratchet.New(1+ratchet.MaxCounterIncrement+1, s.MyRatchet4DH().ChainKey())
	require.NoError(t, alice.store.UpdateMyRatchets(s))

	out := alice.send(t, bob, domain.MessageTypeText, "far")
	_, err := bob.engine.ProcessEnvelopeMessage(context.Background(), alice.contact(), out[0])
	require.ErrorIs(t, err, ratchet.ErrTooFarAhead)
	require.Len(t, bob.sender.take(), 1)
}

func TestEngine_UnknownSessionIsRejected(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")

	out := alice.send(t, bob, domain.MessageTypeText, "lost init")
	require.Len(t, out, 2)
	_, err := bob.engine.ProcessEnvelopeMessage(context.Background(), alice.contact(), out[1])
	var bad *fs.BadMessageError
	require.ErrorAs(t, err, &bad)

	sent := bob.sender.take()
	require.Len(t, sent, 1)
	reject := decode(t, sent[0])
	assert.Equal(t, decode(t, out[1]).SessionID, reject.SessionID)
	assert.Equal(t, envelope.RejectUnknownSession, reject.Content.(*envelope.Reject).Cause)

	alice.receive(t, bob, sent[0])
	_, found, err := alice.store.LoadBestSession(alice.key.id, bob.key.id)
	require.NoError(t, err)
	assert.False(t, found)

	events := alice.takeEvents()
	require.NotEmpty(t, events)
	rejected, ok := events[len(events)-1].(fs.SessionRejected)
	require.True(t, ok)
	assert.True(t, rejected.Known)
	assert.Equal(t, out[1].ID, rejected.RejectedMessageID)
}

// rewrite re-encodes the data message in msg after fn has changed it.
func rewrite(t *testing.T, msg domain.Message, fn func(*envelope.DataMessage)) domain.Message {
	t.Helper()
	env := decode(t, msg)
	fn(env.Content.(*envelope.DataMessage))
	body, err := envelope.Marshal(env)
	require.NoError(t, err)
	msg.Body = body
	return msg
}

// requireDropped checks that p answered msg from peer with
// Reject(STATE_MISMATCH), deleted the session and reported it as illegal.
func requireDropped(t *testing.T, p, from *peer, msg domain.Message, err error) {
	t.Helper()
	var bad *fs.BadMessageError
	require.ErrorAs(t, err, &bad)
	id := decode(t, msg).SessionID

	sent := p.sender.take()
	require.Len(t, sent, 1)
	env := decode(t, sent[0])
	assert.Equal(t, id, env.SessionID)
	reject := env.Content.(*envelope.Reject)
	assert.Equal(t, envelope.RejectStateMismatch, reject.Cause)
	assert.Equal(t, msg.ID, reject.RejectedMessageID)

	_, found, lerr := p.store.LoadSession(p.key.id, from.key.id, id)
	require.NoError(t, lerr)
	assert.False(t, found)

	var illegal []fs.IllegalSessionState
	for _, ev := range p.takeEvents() {
		if e, ok := ev.(fs.IllegalSessionState); ok {
			illegal = append(illegal, e)
		}
	}
	require.Len(t, illegal, 1)
	assert.Equal(t, from.key.id, illegal[0].PeerIdentity)
	assert.Equal(t, id, illegal[0].SessionID)
}

func TestEngine_InconsistentVersionsDropSession(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	establish(t, alice, bob)

	out := alice.send(t, bob, domain.MessageTypeText, "v")
	msg := rewrite(t, out[0], func(d *envelope.DataMessage) {
		d.OfferedVersion = domain.Version1_0
		d.AppliedVersion = domain.Version1_2
	})
	_, err := bob.engine.ProcessEnvelopeMessage(context.Background(), alice.contact(), msg)
	require.ErrorIs(t, err, dhsession.ErrVersionInconsistent)
	requireDropped(t, bob, alice, msg, err)
}

func TestEngine_TwoDHIntoEstablishedSessionDropsSession(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	establish(t, alice, bob)
	require.IsType(t, &dhsession.Established4DH{}, alice.session(t, bob).State)

	out := bob.send(t, alice, domain.MessageTypeText, "2dh?")
	msg := rewrite(t, out[0], func(d *envelope.DataMessage) { d.DHType = domain.DHTypeTwoDH })
	_, err := alice.engine.ProcessEnvelopeMessage(context.Background(), bob.contact(), msg)
	requireDropped(t, alice, bob, msg, err)
}

func TestEngine_FourDHBeforeAcceptDropsSession(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")

	out := alice.send(t, bob, domain.MessageTypeText, "hi")
	bob.receive(t, alice, out[0])
	require.Len(t, bob.sender.take(), 1, "accept is lost")
	require.IsType(t, &dhsession.Initiator2DH{}, alice.session(t, bob).State)

	reply := bob.send(t, alice, domain.MessageTypeText, "early 4dh")
	require.Len(t, reply, 1)
	require.Equal(t, domain.DHTypeFourDH, decode(t, reply[0]).Content.(*envelope.DataMessage).DHType)
	_, err := alice.engine.ProcessEnvelopeMessage(context.Background(), bob.contact(), reply[0])
	requireDropped(t, alice, bob, reply[0], err)
}

func TestEngine_TamperedCiphertextDropsSession(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	establish(t, alice, bob)

	out := alice.send(t, bob, domain.MessageTypeText, "secret")
	msg := rewrite(t, out[0], func(d *envelope.DataMessage) { d.Ciphertext[len(d.Ciphertext)-1] ^= 0x01 })
	_, err := bob.engine.ProcessEnvelopeMessage(context.Background(), alice.contact(), msg)
	require.ErrorIs(t, err, crypto.ErrDecryptionFailed)
	requireDropped(t, bob, alice, msg, err)
}

func TestEngine_FourDHInBestSessionDeletesOthers(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	id := establish(t, alice, bob)

	// A leftover 4DH session that sorts after the live one.
	_, eph, err := crypto.GenerateX25519()
	require.NoError(t, err)
	var stale domain.SessionID
	for i := range stale {
		stale[i] = 0xff
	}
	require.NotEqual(t, stale, id)
	other, err := dhsession.NewResponderSession(stale, bob.key, alice.contact(), eph,
		dhsession.SupportedVersions, dhsession.SupportedVersions)
	require.NoError(t, err)
	require.NoError(t, bob.store.StoreSession(other))

	out := alice.send(t, bob, domain.MessageTypeText, "4dh")
	res := bob.receive(t, alice, out[0])
	require.NotNil(t, res.Message)

	_, found, err := bob.store.LoadSession(bob.key.id, alice.key.id, stale)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, id, bob.session(t, alice).ID)
}

// flakySender fails the first failNow immediate sends.
type flakySender struct {
	*recordingSender
	failNow int
}

func (s *flakySender) SendNow(ctx context.Context, m domain.Message) error {
	if s.failNow > 0 {
		s.failNow--
		return errors.New("network down")
	}
	return s.recordingSender.SendNow(ctx, m)
}

func TestEngine_InitRetriedAfterFailedAccept(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	flaky := &flakySender{recordingSender: bob.sender, failNow: 1}
	bob.engine = fs.New(bob.key, bob.store, flaky, fixedFeatures(domain.FeatureForwardSecrecy))

	out := alice.send(t, bob, domain.MessageTypeText, "hi")
	id := decode(t, out[0]).SessionID
	_, err := bob.engine.ProcessEnvelopeMessage(context.Background(), alice.contact(), out[0])
	require.Error(t, err)
	var bad *fs.BadMessageError
	assert.False(t, errors.As(err, &bad), "a transport failure must leave the init queued")
	_, found, err := bob.store.LoadSession(bob.key.id, alice.key.id, id)
	require.NoError(t, err)
	assert.False(t, found)

	// The transport hands the same Init over again.
	bob.receive(t, alice, out[0])
	sent := bob.sender.take()
	require.Len(t, sent, 1)
	require.IsType(t, &envelope.Accept{}, decode(t, sent[0]).Content)

	alice.receive(t, bob, sent[0])
	assert.IsType(t, &dhsession.Established4DH{}, alice.session(t, bob).State)
}

func TestEngine_AcceptForUnknownSession(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")

	out := alice.send(t, bob, domain.MessageTypeText, "hi")
	bob.receive(t, alice, out[0])
	accept := bob.sender.take()[0]

	_, err := alice.store.DeleteAllSessions(alice.key.id, bob.key.id)
	require.NoError(t, err)
	alice.takeEvents()

	alice.receive(t, bob, accept)
	sent := alice.sender.take()
	require.Len(t, sent, 1)
	assert.Equal(t, envelope.TerminateUnknownSession, decode(t, sent[0]).Content.(*envelope.Terminate).Cause)
	assert.Equal(t, []fs.Event{fs.AcceptForUnknownSession{
		PeerIdentity: bob.key.id, SessionID: decode(t, accept).SessionID,
	}}, alice.takeEvents())
}

func TestEngine_DuplicateInitIsIgnored(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")

	out := alice.send(t, bob, domain.MessageTypeText, "hi")
	bob.receive(t, alice, out[0])
	require.Len(t, bob.sender.take(), 1)

	bob.receive(t, alice, out[0])
	assert.Empty(t, bob.sender.take())
}

func TestEngine_InitReplacesEstablishedSessions(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	old := establish(t, alice, bob)
	out := alice.send(t, bob, domain.MessageTypeText, "4dh")
	bob.receive(t, alice, out[0])

	// alice lost her state and starts over.
	_, err := alice.store.DeleteAllSessions(alice.key.id, bob.key.id)
	require.NoError(t, err)
	out = alice.send(t, bob, domain.MessageTypeText, "fresh")
	bob.receive(t, alice, out[0])

	_, found, err := bob.store.LoadSession(bob.key.id, alice.key.id, old)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, decode(t, out[0]).SessionID, bob.session(t, alice).ID)
}

func TestEngine_UncommittedInitIsRepeated(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	ctx := context.Background()

	enc, err := alice.engine.MakeMessage(ctx, bob.contact(), alice.message(t, bob, domain.MessageTypeText, "a"))
	require.NoError(t, err)
	require.Len(t, enc.Messages, 2)

	enc2, err := alice.engine.MakeMessage(ctx, bob.contact(), alice.message(t, bob, domain.MessageTypeText, "b"))
	require.NoError(t, err)
	require.Len(t, enc2.Messages, 2)
	assert.Equal(t, decode(t, enc.Messages[0]).SessionID, decode(t, enc2.Messages[0]).SessionID)
	assert.Equal(t, uint64(2), decode(t, enc2.Messages[1]).Content.(*envelope.DataMessage).Counter)

	require.NoError(t, enc2.Commit())
	assert.Len(t, alice.send(t, bob, domain.MessageTypeText, "c"), 1)
}

func TestEngine_IneligibleTypeGoesUnwrapped(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")

	// Before the Accept the session applies 1.0 and receipts need 1.1.
	out := alice.send(t, bob, domain.MessageTypeDeliveryReceipt, "r1")
	require.Len(t, out, 2)
	require.IsType(t, &envelope.Init{}, decode(t, out[0]).Content)
	assert.Equal(t, domain.MessageTypeDeliveryReceipt, out[1].Type)

	alice.send(t, bob, domain.MessageTypeText, "t")
	out = alice.send(t, bob, domain.MessageTypeDeliveryReceipt, "r2")
	require.Len(t, out, 1)
	assert.Equal(t, domain.MessageTypeDeliveryReceipt, out[0].Type)

	alice.clock.t = alice.clock.t.Add(25 * time.Hour)
	out = alice.send(t, bob, domain.MessageTypeDeliveryReceipt, "r3")
	require.Len(t, out, 2)
	keepalive := decode(t, out[0]).Content.(*envelope.DataMessage)
	assert.Equal(t, domain.DHTypeTwoDH, keepalive.DHType)
	assert.Equal(t, domain.MessageTypeDeliveryReceipt, out[1].Type)
	assert.Equal(t, "r3", string(out[1].Body))

	// The keepalive decrypts to nothing deliverable.
	bob.receive(t, alice, mustInit(t, alice, bob))
	_, err := bob.engine.ProcessEnvelopeMessage(context.Background(), alice.contact(), out[0])
	require.NoError(t, err)
}

// mustInit rebuilds the Init alice keeps sending for her best session.
func mustInit(t *testing.T, alice, bob *peer) domain.Message {
	t.Helper()
	s := alice.session(t, bob)
	body, err := envelope.Marshal(&envelope.Envelope{
		SessionID: s.ID,
		Content: &envelope.Init{
			SupportedVersion:   dhsession.SupportedVersions,
			EphemeralPublicKey: s.MyEphemeralPublicKey,
		},
	})
	require.NoError(t, err)
	return domain.Message{Type: domain.MessageTypeForwardSecurityEnvelope, From: alice.key.id, To: bob.key.id, Body: body}
}

func TestEngine_RefusesDoubleWrap(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	_, err := alice.engine.MakeMessage(context.Background(), bob.contact(),
		alice.message(t, bob, domain.MessageTypeForwardSecurityEnvelope, "x"))
	require.ErrorIs(t, err, fs.ErrAlreadyEncapsulated)
}

func TestEngine_ContactWithoutForwardSecrecy(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	contact := bob.contact()
	contact.FeatureMask = 0

	inner := alice.message(t, bob, domain.MessageTypeText, "plain")
	enc, err := alice.engine.MakeMessage(context.Background(), contact, inner)
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{inner}, enc.Messages)
	assert.False(t, enc.Encapsulated())
	require.NoError(t, enc.Commit())
}

func TestEngine_DisabledLocally(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001", fs.WithDisabled())

	out := alice.send(t, bob, domain.MessageTypeText, "hi")
	bob.receive(t, alice, out[0])
	sent := bob.sender.take()
	require.Len(t, sent, 1)
	assert.Equal(t, envelope.TerminateDisabledByLocal, decode(t, sent[0]).Content.(*envelope.Terminate).Cause)

	_, err := bob.engine.ProcessEnvelopeMessage(context.Background(), alice.contact(), out[1])
	var bad *fs.BadMessageError
	require.ErrorAs(t, err, &bad)
	sent = bob.sender.take()
	require.Len(t, sent, 1)
	assert.Equal(t, envelope.RejectDisabledByLocal, decode(t, sent[0]).Content.(*envelope.Reject).Cause)

	inner := bob.message(t, alice, domain.MessageTypeText, "plain")
	enc, err := bob.engine.MakeMessage(context.Background(), alice.contact(), inner)
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{inner}, enc.Messages)
}

func TestEngine_InitFromPeerWithoutFeature(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	bob.engine = fs.New(bob.key, bob.store, bob.sender, fixedFeatures(0))

	out := alice.send(t, bob, domain.MessageTypeText, "hi")
	contact := alice.contact()
	contact.FeatureMask = 0
	_, err := bob.engine.ProcessEnvelopeMessage(context.Background(), contact, out[0])
	require.NoError(t, err)

	sent := bob.sender.take()
	require.Len(t, sent, 1)
	assert.Equal(t, envelope.TerminateDisabledByRemote, decode(t, sent[0]).Content.(*envelope.Terminate).Cause)
}

func TestEngine_InitWithoutCommonVersion(t *testing.T) {
	alice := newPeer(t, "ALICE001", fs.WithVersions(domain.VersionRange{Min: domain.Version1_2, Max: domain.Version1_2}))
	bob := newPeer(t, "BOB00001", fs.WithVersions(domain.VersionRange{Min: domain.Version1_0, Max: domain.Version1_1}))

	out := alice.send(t, bob, domain.MessageTypeText, "hi")
	_, err := bob.engine.ProcessEnvelopeMessage(context.Background(), alice.contact(), out[0])
	require.ErrorIs(t, err, dhsession.ErrNoCommonVersion)

	sent := bob.sender.take()
	require.Len(t, sent, 1)
	assert.Equal(t, envelope.TerminateReset, decode(t, sent[0]).Content.(*envelope.Terminate).Cause)
}

func TestEngine_TerminateAllSessions(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	id := establish(t, alice, bob)

	n, err := alice.engine.TerminateAllSessions(context.Background(), bob.key.id, envelope.TerminateReset)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sent := alice.sender.take()
	require.Len(t, sent, 1)
	bob.receive(t, alice, sent[0])

	_, found, err := bob.store.LoadSession(bob.key.id, alice.key.id, id)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []fs.Event{fs.SessionTerminated{
		PeerIdentity: alice.key.id, SessionID: id, Cause: envelope.TerminateReset, Known: true,
	}}, bob.takeEvents())

	// A second Terminate for the same session is reported as unknown.
	bob.receive(t, alice, sent[0])
	events := bob.takeEvents()
	require.Len(t, events, 1)
	assert.False(t, events[0].(fs.SessionTerminated).Known)
}

func TestEngine_RejectsPlainMessages(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")
	_, err := bob.engine.ProcessEnvelopeMessage(context.Background(), alice.contact(),
		alice.message(t, bob, domain.MessageTypeText, "plain"))
	require.ErrorIs(t, err, fs.ErrNotEnvelope)

	garbage := alice.message(t, bob, domain.MessageTypeForwardSecurityEnvelope, "\xff\xff")
	_, err = bob.engine.ProcessEnvelopeMessage(context.Background(), alice.contact(), garbage)
	var bad *fs.BadMessageError
	require.ErrorAs(t, err, &bad)
}

func TestEngine_SubscribeCancel(t *testing.T) {
	alice := newPeer(t, "ALICE001")
	bob := newPeer(t, "BOB00001")

	var got []fs.Event
	cancel := alice.engine.Subscribe(func(ev fs.Event) { got = append(got, ev) })
	alice.send(t, bob, domain.MessageTypeText, "one")
	require.Len(t, got, 1)
	created := got[0].(fs.SessionCreated)
	assert.True(t, created.Initiator)
	assert.Equal(t, bob.key.id, created.Peer())

	cancel()
	cancel()
	_, err := alice.store.DeleteAllSessions(alice.key.id, bob.key.id)
	require.NoError(t, err)
	alice.send(t, bob, domain.MessageTypeText, "two")
	assert.Len(t, got, 1)
}
