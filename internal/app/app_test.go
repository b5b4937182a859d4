package app_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fscore/internal/app"
	"fscore/internal/domain"
	"fscore/internal/relay"
)

const passphrase = "Correct-Horse-9-Battery"

func newApp(t *testing.T, relayURL string, id domain.Identity, backend string, disabled bool) *app.App {
	t.Helper()
	cfg := &app.Config{
		Home:           t.TempDir(),
		RelayURL:       relayURL,
		Store:          &app.Store{Backend: backend},
		ForwardSecrecy: &app.ForwardSecrecy{Disabled: disabled},
	}
	require.NoError(t, cfg.FixupAndValidate())
	w, err := app.NewWire(cfg)
	require.NoError(t, err)
	_, err = w.Identity.GenerateIdentity(id, passphrase)
	require.NoError(t, err)
	a, err := w.Unlock(passphrase)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.Directory.Register(context.Background()))
	return a
}

func recv(t *testing.T, a *app.App) []string {
	t.Helper()
	msgs, err := a.Messages.ReceiveMessages(context.Background(), 0)
	require.NoError(t, err)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, string(m.Plaintext))
	}
	return out
}

func TestConversationThroughRelay(t *testing.T) {
	srv := httptest.NewServer(relay.NewServer())
	t.Cleanup(srv.Close)
	ctx := context.Background()

	alice := newApp(t, srv.URL, "ALICE001", app.BackendSQLite, false)
	bob := newApp(t, srv.URL, "BOB00001", app.BackendBolt, false)

	_, err := alice.Directory.AddContact(ctx, "BOB00001")
	require.NoError(t, err)

	_, err = alice.Messages.SendMessage(ctx, "BOB00001", domain.MessageTypeText, []byte("hello bob"))
	require.NoError(t, err)
	// bob learns alice from the directory on first contact.
	assert.Equal(t, []string{"hello bob"}, recv(t, bob))
	assert.Empty(t, recv(t, alice), "the accept carries nothing to show")

	_, err = bob.Messages.SendMessage(ctx, "ALICE001", domain.MessageTypeText, []byte("hi alice"))
	require.NoError(t, err)
	got, err := alice.Messages.ReceiveMessages(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hi alice", string(got[0].Plaintext))
	assert.True(t, got[0].ForwardSecure)

	infos, err := alice.SessionSvc.ListSessions("BOB00001")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "RL44", infos[0].State)
	assert.True(t, infos[0].Best)
	assert.Equal(t, domain.Version1_2, infos[0].OutgoingApplied)
	assert.Equal(t, uint64(2), infos[0].PeerCounter4DH)

	inbox, err := bob.Inbox.ListMessages()
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "hello bob", string(inbox[0].Plaintext))
}

func TestResetStartsFreshSession(t *testing.T) {
	srv := httptest.NewServer(relay.NewServer())
	t.Cleanup(srv.Close)
	ctx := context.Background()

	alice := newApp(t, srv.URL, "ALICE001", app.BackendSQLite, false)
	bob := newApp(t, srv.URL, "BOB00001", app.BackendSQLite, false)
	_, err := alice.Directory.AddContact(ctx, "BOB00001")
	require.NoError(t, err)

	_, err = alice.Messages.SendMessage(ctx, "BOB00001", domain.MessageTypeText, []byte("one"))
	require.NoError(t, err)
	recv(t, bob)
	recv(t, alice)

	n, err := alice.SessionSvc.ResetSessions(ctx, "BOB00001")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	recv(t, bob)
	infos, err := bob.SessionSvc.ListSessions("ALICE001")
	require.NoError(t, err)
	assert.Empty(t, infos)

	_, err = alice.Messages.SendMessage(ctx, "BOB00001", domain.MessageTypeText, []byte("two"))
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, recv(t, bob))
}

func TestPeerWithForwardSecrecyDisabled(t *testing.T) {
	srv := httptest.NewServer(relay.NewServer())
	t.Cleanup(srv.Close)
	ctx := context.Background()

	alice := newApp(t, srv.URL, "ALICE001", app.BackendSQLite, false)
	bob := newApp(t, srv.URL, "BOB00001", app.BackendSQLite, true)
	_, err := alice.Directory.AddContact(ctx, "BOB00001")
	require.NoError(t, err)

	// bob does not advertise the feature, so alice sends in the clear.
	_, err = alice.Messages.SendMessage(ctx, "BOB00001", domain.MessageTypeText, []byte("plain"))
	require.NoError(t, err)
	msgs, err := bob.Messages.ReceiveMessages(ctx, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].ForwardSecure)

	infos, err := alice.SessionSvc.ListSessions("BOB00001")
	require.NoError(t, err)
	assert.Empty(t, infos)
}
