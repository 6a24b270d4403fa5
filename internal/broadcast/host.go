package broadcast

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/signalmesh/signalmesh/internal/util"
)

type mdnsNotifee struct {
	h host.Host
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), util.DefaultConnectTimeout)
	defer cancel()
	_ = n.h.Connect(ctx, pi)
}

// loadOrCreateKey loads a persistent identity key from disk,
// or generates a new Ed25519 key and saves it on first run.
func loadOrCreateKey(keyFile string) (crypto.PrivKey, bool, error) {
	data, err := os.ReadFile(keyFile)
	if err == nil {
		priv, err := crypto.UnmarshalPrivateKey(data)
		if err == nil {
			return priv, false, nil
		}
		log.Warnf("corrupt identity key at %s: %v (generating new key)", keyFile, err)
	}

	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, false, err
	}

	raw, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, false, fmt.Errorf("marshal identity key: %w", err)
	}

	if dir := filepath.Dir(keyFile); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, false, fmt.Errorf("create key directory: %w", err)
		}
	}
	if err := os.WriteFile(keyFile, raw, 0600); err != nil {
		return nil, false, fmt.Errorf("save identity key: %w", err)
	}

	return priv, true, nil
}

// NewMeshHost starts a libp2p host with a persistent identity, local mDNS
// discovery, and a gossipsub router, and returns a PubSub broadcaster
// bound to it. keyFile may point at a not-yet-existing file; port 0 picks
// a free TCP port. Close the returned host to shut everything down.
func NewMeshHost(ctx context.Context, listenPort int, keyFile, mdnsTag string) (host.Host, *PubSub, error) {
	priv, isNew, err := loadOrCreateKey(keyFile)
	if err != nil {
		return nil, nil, err
	}
	if isNew {
		log.Infof("generated new identity key: %s", keyFile)
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", listenPort)),
	)
	if err != nil {
		return nil, nil, err
	}

	if mdnsTag != "" {
		md := mdns.NewMdnsService(h, mdnsTag, &mdnsNotifee{h: h})
		if err := md.Start(); err != nil {
			_ = h.Close()
			return nil, nil, fmt.Errorf("start mdns: %w", err)
		}
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		return nil, nil, err
	}

	log.Infof("mesh host up: %s", h.ID())
	return h, NewPubSub(ps, h.ID()), nil
}

// ListenAddrs returns the host's listen addresses as full multiaddrs
// including the /p2p component, suitable for display or dialing.
func ListenAddrs(h host.Host) []string {
	p2pPart, err := ma.NewMultiaddr("/p2p/" + h.ID().String())
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(h.Addrs()))
	for _, a := range h.Addrs() {
		out = append(out, a.Encapsulate(p2pPart).String())
	}
	return out
}
