package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/signalmesh/signalmesh/internal/util"
)

type Config struct {
	Node   Node   `json:"node"`
	Mesh   Mesh   `json:"mesh"`
	Hub    Hub    `json:"hub"`
	Client Client `json:"client"`
}

type Node struct {
	// Label is advertised as presence info on mesh channels.
	Label   string `json:"label"`
	KeyFile string `json:"key_file"`
}

type Mesh struct {
	Enabled    bool   `json:"enabled"`
	ListenPort int    `json:"listen_port"`
	MdnsTag    string `json:"mdns_tag"`
}

type Hub struct {
	// If true, run a local rendezvous hub on Bind:Port.
	Enabled bool `json:"enabled"`

	// Bind address for the hub. Default "127.0.0.1" (localhost only).
	// Set to "0.0.0.0" to accept connections from other machines.
	Bind string `json:"bind"`
	Port int    `json:"port"`
}

type Client struct {
	// Transport selects the signaling adapter: "default" (websocket to a
	// hub), "echo" (mesh pub/sub), or "echo-presence" (mesh pub/sub with
	// roster tracking).
	Transport string `json:"transport"`

	// HubURL is the rendezvous hub the default transport dials.
	// Example: http://127.0.0.1:8787  or  https://hub.example.org
	HubURL string `json:"hub_url"`

	Topics []string `json:"topics"`
}

func Default() Config {
	return Config{
		Node: Node{
			Label:   "hello",
			KeyFile: "data/identity.key",
		},
		Mesh: Mesh{
			Enabled:    true,
			ListenPort: 0,
			MdnsTag:    "signalmesh-mdns",
		},
		Hub: Hub{
			Enabled: false,
			Bind:    "127.0.0.1",
			Port:    8787,
		},
		Client: Client{
			Transport: "echo",
			Topics:    []string{"lobby"},
		},
	}
}

func (c *Config) Validate() error {
	// Node
	if strings.TrimSpace(c.Node.KeyFile) == "" {
		return errors.New("node.key_file is required")
	}

	// Mesh
	if c.Mesh.Enabled {
		if c.Mesh.ListenPort < 0 || c.Mesh.ListenPort > 65535 {
			return errors.New("mesh.listen_port must be 0..65535")
		}
		if strings.TrimSpace(c.Mesh.MdnsTag) == "" {
			return errors.New("mesh.mdns_tag is required")
		}
	}

	// Hub
	if c.Hub.Enabled {
		if c.Hub.Port <= 0 || c.Hub.Port > 65535 {
			return errors.New("hub.port must be 1..65535 when hub is enabled")
		}
		if b := c.Hub.Bind; b != "" {
			if net.ParseIP(b) == nil {
				return errors.New("hub.bind must be a valid IP address")
			}
		}
	}

	// Client
	switch c.Client.Transport {
	case "default", "echo", "echo-presence":
	default:
		return fmt.Errorf("client.transport must be default, echo or echo-presence (got %q)", c.Client.Transport)
	}
	if c.Client.Transport == "default" {
		hu := strings.TrimSpace(c.Client.HubURL)
		if hu == "" && !c.Hub.Enabled {
			return errors.New("client.hub_url is required for the default transport unless hub.enabled is true")
		}
		if hu != "" {
			if err := validateHubURL(hu); err != nil {
				return fmt.Errorf("client.hub_url: %w", err)
			}
		}
	} else if !c.Mesh.Enabled {
		return fmt.Errorf("client.transport %q requires mesh.enabled=true", c.Client.Transport)
	}
	for _, topic := range c.Client.Topics {
		if _, err := util.ValidateTopic(topic); err != nil {
			return fmt.Errorf("client.topics: %w", err)
		}
	}

	return nil
}

func validateHubURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return errors.New("scheme must be http(s) or ws(s)")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}

	host := u.Hostname()
	if host == "" {
		return errors.New("missing hostname")
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		return errors.New("host must not be unspecified")
	}

	// If a port is specified, validate it's numeric 1..65535.
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return errors.New("invalid port")
		}
	}

	return nil
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadPartial reads a config file without validation. Useful for reading
// individual fields (like hub.enabled) when full validation may fail.
func LoadPartial(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	b = stripBOM(b)

	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
