package broadcast

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

// newTestMesh starts two connected mesh hosts with throwaway identities.
// mDNS stays off; the hosts are wired together directly.
func newTestMesh(t *testing.T) (host.Host, *PubSub, host.Host, *PubSub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dir := t.TempDir()
	ha, pa, err := NewMeshHost(ctx, 0, filepath.Join(dir, "a.key"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ha.Close() })

	hb, pb, err := NewMeshHost(ctx, 0, filepath.Join(dir, "b.key"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = hb.Close() })

	err = hb.Connect(ctx, peer.AddrInfo{ID: ha.ID(), Addrs: ha.Addrs()})
	require.NoError(t, err)
	return ha, pa, hb, pb
}

func TestIdentityKeyPersists(t *testing.T) {
	ctx := context.Background()
	keyFile := filepath.Join(t.TempDir(), "id.key")

	h1, _, err := NewMeshHost(ctx, 0, keyFile, "")
	require.NoError(t, err)
	id := h1.ID()
	require.NoError(t, h1.Close())

	h2, _, err := NewMeshHost(ctx, 0, keyFile, "")
	require.NoError(t, err)
	defer h2.Close()
	require.Equal(t, id, h2.ID(), "reloading the key file must keep the peer ID")
}

func TestJoinSignalsReadyAndHere(t *testing.T) {
	ha, pa, _, _ := newTestMesh(t)

	ready := make(chan struct{})
	here := make(chan []Member, 1)
	ch, err := pa.Join("signalmesh.ready-test", Handlers{
		OnReady: func() { close(ready) },
		OnHere:  func(m []Member) { here <- m },
	})
	require.NoError(t, err)
	defer ch.Leave()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("ready never fired")
	}

	members := <-here
	require.NotEmpty(t, members)
	require.Equal(t, ha.ID().String(), members[0].ID, "snapshot starts with self")
}

func TestBroadcastDelivery(t *testing.T) {
	_, pa, _, pb := newTestMesh(t)

	var mu sync.Mutex
	var got []any
	chB, err := pb.Join("signalmesh.bcast-test", Handlers{
		OnMessage: func(data any) {
			mu.Lock()
			got = append(got, data)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer chB.Leave()

	chA, err := pa.Join("signalmesh.bcast-test", Handlers{})
	require.NoError(t, err)
	defer chA.Leave()

	// Gossipsub needs a heartbeat or two to form the mesh; retry the
	// publish until delivery is observed.
	require.Eventually(t, func() bool {
		_ = chA.Send(map[string]any{"kind": "offer"})
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 15*time.Second, 200*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	first, ok := got[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "offer", first["kind"])
}

func TestWhisperTargetsOnePeer(t *testing.T) {
	ha, pa, hb, pb := newTestMesh(t)

	var mu sync.Mutex
	var whispersB, broadcastsB int
	chB, err := pb.Join("signalmesh.whisper-test", Handlers{
		OnWhisper: func(any) { mu.Lock(); whispersB++; mu.Unlock() },
		OnMessage: func(any) { mu.Lock(); broadcastsB++; mu.Unlock() },
	})
	require.NoError(t, err)
	defer chB.Leave()

	var whispersA int
	chA, err := pa.Join("signalmesh.whisper-test", Handlers{
		OnWhisper: func(any) { mu.Lock(); whispersA++; mu.Unlock() },
	})
	require.NoError(t, err)
	defer chA.Leave()

	require.Eventually(t, func() bool {
		_ = chA.Whisper(hb.ID().String(), "psst")
		mu.Lock()
		defer mu.Unlock()
		return whispersB > 0
	}, 15*time.Second, 200*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, broadcastsB, "whisper must not surface as a broadcast")
	require.Zero(t, whispersA, "whisper addressed to %s must not reach %s", hb.ID(), ha.ID())
}

func TestMembershipEvents(t *testing.T) {
	_, pa, _, pb := newTestMesh(t)

	joining := make(chan Member, 4)
	leaving := make(chan Member, 4)
	chA, err := pa.Join("signalmesh.members-test", Handlers{
		OnHere:    func([]Member) {},
		OnJoining: func(m Member) { joining <- m },
		OnLeaving: func(m Member) { leaving <- m },
	})
	require.NoError(t, err)
	defer chA.Leave()

	chB, err := pb.Join("signalmesh.members-test", Handlers{})
	require.NoError(t, err)

	select {
	case <-joining:
	case <-time.After(10 * time.Second):
		t.Fatal("no join event for peer B")
	}

	chB.Leave()
	select {
	case <-leaving:
	case <-time.After(10 * time.Second):
		t.Fatal("no leave event for peer B")
	}
}

func TestLeaveAllowsRejoin(t *testing.T) {
	_, pa, _, _ := newTestMesh(t)

	ch, err := pa.Join("signalmesh.rejoin-test", Handlers{})
	require.NoError(t, err)
	ch.Leave()
	ch.Leave() // idempotent

	ch2, err := pa.Join("signalmesh.rejoin-test", Handlers{})
	require.NoError(t, err, "leaving must release the topic for rejoin")
	ch2.Leave()
}
