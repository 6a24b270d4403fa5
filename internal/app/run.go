// Package app wires config, hub, mesh and signaling adapter into a
// running node.
package app

import (
	"context"
	"fmt"
	"strings"

	logging "github.com/ipfs/go-log/v2"

	"github.com/signalmesh/signalmesh/internal/broadcast"
	"github.com/signalmesh/signalmesh/internal/config"
	"github.com/signalmesh/signalmesh/internal/proto"
	"github.com/signalmesh/signalmesh/internal/rendezvous"
	"github.com/signalmesh/signalmesh/internal/signaling"
	"github.com/signalmesh/signalmesh/internal/util"
)

var log = logging.Logger("app")

type Options struct {
	// Dir is the node directory; relative paths in the config resolve
	// against it.
	Dir     string
	CfgPath string
	Cfg     config.Config

	// HubOnly runs just the rendezvous hub, no client. Implies
	// cfg.Hub.Enabled.
	HubOnly bool
}

// Run starts the node and blocks until ctx is cancelled.
func Run(ctx context.Context, opt Options) error {
	cfg := opt.Cfg

	// ── Rendezvous hub (optional)
	var hub *rendezvous.Hub
	if cfg.Hub.Enabled || opt.HubOnly {
		bind := cfg.Hub.Bind
		if bind == "" {
			bind = "127.0.0.1"
		}
		hub = rendezvous.New(fmt.Sprintf("%s:%d", bind, cfg.Hub.Port))
		if err := hub.Start(ctx); err != nil {
			return fmt.Errorf("start hub: %w", err)
		}
		log.Infof("rendezvous hub: %s", hub.URL())
	}

	if opt.HubOnly {
		<-ctx.Done()
		return nil
	}

	// ── Mesh (needed by the echo transports)
	var bc *broadcast.PubSub
	if cfg.Mesh.Enabled {
		keyFile := util.ResolvePath(opt.Dir, cfg.Node.KeyFile)
		h, ps, err := broadcast.NewMeshHost(ctx, cfg.Mesh.ListenPort, keyFile, cfg.Mesh.MdnsTag)
		if err != nil {
			return fmt.Errorf("start mesh: %w", err)
		}
		defer h.Close()
		bc = ps
		for _, a := range broadcast.ListenAddrs(h) {
			log.Infof("mesh listening: %s", a)
		}
	}

	// ── Signaling adapter
	adapter, err := newAdapter(cfg, hub, bc)
	if err != nil {
		return err
	}
	defer adapter.Destroy()

	adapter.On(proto.EventConnect, func(any) {
		log.Infof("signaling connected (%s)", cfg.Client.Transport)
	})
	adapter.On(proto.EventDisconnect, func(any) {
		log.Warnf("signaling disconnected")
	})
	adapter.On(proto.EventMessage, func(v any) {
		ev, ok := v.(proto.MessageEvent)
		if !ok {
			return
		}
		log.Infof("[%s] %v", ev.Topic, ev.Data)
	})

	if err := adapter.Connect(""); err != nil {
		return fmt.Errorf("connect signaling: %w", err)
	}
	adapter.Subscribe(cfg.Client.Topics)
	log.Infof("subscribed: %s", strings.Join(cfg.Client.Topics, ", "))

	// ── Config hot reload: follow topic changes without restarting.
	topics := cfg.Client.Topics
	watcher, err := config.Watch(opt.CfgPath, func(next config.Config) {
		added, removed := diffTopics(topics, next.Client.Topics)
		if len(added) == 0 && len(removed) == 0 {
			return
		}
		adapter.Unsubscribe(removed)
		adapter.Subscribe(added)
		topics = next.Client.Topics
		log.Infof("topics now: %s", strings.Join(topics, ", "))
	})
	if err != nil {
		log.Warnf("config watch disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	<-ctx.Done()
	return nil
}

func newAdapter(cfg config.Config, hub *rendezvous.Hub, bc *broadcast.PubSub) (signaling.Adapter, error) {
	switch cfg.Client.Transport {
	case signaling.TypeDefault:
		url := strings.TrimSpace(cfg.Client.HubURL)
		if url == "" && hub != nil {
			url = hub.URL()
		} else if url != "" {
			url = util.WebSocketURL(url) + "/ws"
		}
		return signaling.New(url)
	case signaling.TypeEcho, signaling.TypeEchoPresence:
		if bc == nil {
			return nil, fmt.Errorf("transport %q requires mesh.enabled=true", cfg.Client.Transport)
		}
		return signaling.New(signaling.Options{
			Type:        cfg.Client.Transport,
			Broadcaster: bc,
			Callbacks:   rosterLogger(),
		})
	default:
		return signaling.New(signaling.Options{Type: cfg.Client.Transport})
	}
}

func rosterLogger() signaling.Callbacks {
	return signaling.Callbacks{
		Here: func(members []broadcast.Member) {
			ids := make([]string, len(members))
			for i, m := range members {
				ids[i] = m.ID
			}
			log.Infof("here: %s", strings.Join(ids, ", "))
		},
		Joining: func(m broadcast.Member) { log.Infof("joining: %s", m.ID) },
		Leaving: func(m broadcast.Member) { log.Infof("leaving: %s", m.ID) },
		Error:   func(err error) { log.Warnf("presence: %v", err) },
	}
}

// diffTopics returns the topics in next missing from prev and vice versa.
func diffTopics(prev, next []string) (added, removed []string) {
	prevSet := make(map[string]struct{}, len(prev))
	for _, t := range prev {
		prevSet[t] = struct{}{}
	}
	nextSet := make(map[string]struct{}, len(next))
	for _, t := range next {
		nextSet[t] = struct{}{}
		if _, ok := prevSet[t]; !ok {
			added = append(added, t)
		}
	}
	for _, t := range prev {
		if _, ok := nextSet[t]; !ok {
			removed = append(removed, t)
		}
	}
	return added, removed
}
