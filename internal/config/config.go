// Package config loads the server's pre-seeded room list and ambient
// settings from an HCL file. Rooms are fixed for the life of the process;
// there is no runtime room creation.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// ServerConfig is the complete decoded configuration file.
type ServerConfig struct {
	Server ServerSettings `hcl:"server,block"`
	Rooms  []RoomConfig   `hcl:"room,block"`
}

// ServerSettings contains server-level configuration.
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`

	// AuthURL, if set, is the external identity service's base URL that
	// session tokens are resolved against; empty means tokens are accepted
	// unchecked (dev mode).
	AuthURL string `hcl:"auth_url,optional"`
	// BalanceURL, if set, is the external balance service's base URL;
	// empty means settlements are tracked in memory only.
	BalanceURL  string `hcl:"balance_url,optional"`
	AdminSecret string `hcl:"admin_secret,optional"`
}

// RoomConfig defines one pre-seeded room: its seat count, stakes and
// buy-in bounds, and the turn clock applied to every seat's action.
type RoomConfig struct {
	Name        string `hcl:"name,label"`
	MaxSeats    int    `hcl:"max_seats,optional"`
	SmallBlind  int    `hcl:"small_blind"`
	BigBlind    int    `hcl:"big_blind"`
	BuyInMin    int    `hcl:"buy_in_min,optional"`
	BuyInMax    int    `hcl:"buy_in_max,optional"`
	TurnTimeout int    `hcl:"turn_timeout_seconds,optional"`
}

// DefaultServerConfig returns the configuration used when no rooms.hcl is
// present: a single room suitable for local development.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Rooms: []RoomConfig{
			{
				Name:        "main",
				MaxSeats:    6,
				SmallBlind:  1,
				BigBlind:    2,
				BuyInMin:    100,
				BuyInMax:    1000,
				TurnTimeout: 30,
			},
		},
	}
}

// Load reads and decodes an HCL configuration file, applying defaults for
// any field the file leaves unset. A missing file is not an error: it
// yields DefaultServerConfig.
func Load(filename string) (*ServerConfig, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultServerConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse config: %s", diags.Error())
	}

	var cfg ServerConfig
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("decode config: %s", diags.Error())
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}

	for i := range cfg.Rooms {
		r := &cfg.Rooms[i]
		if r.MaxSeats == 0 {
			r.MaxSeats = 6
		}
		if r.BuyInMin == 0 {
			r.BuyInMin = r.BigBlind * 50
		}
		if r.BuyInMax == 0 {
			r.BuyInMax = r.BigBlind * 500
		}
		if r.TurnTimeout == 0 {
			r.TurnTimeout = 30
		}
	}

	return &cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *ServerConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if len(c.Rooms) == 0 {
		return fmt.Errorf("at least one room must be configured")
	}
	seen := make(map[string]bool, len(c.Rooms))
	for _, r := range c.Rooms {
		if seen[r.Name] {
			return fmt.Errorf("duplicate room name %q", r.Name)
		}
		seen[r.Name] = true
		if r.SmallBlind <= 0 {
			return fmt.Errorf("room %s: small blind must be positive", r.Name)
		}
		if r.BigBlind <= r.SmallBlind {
			return fmt.Errorf("room %s: big blind must be greater than small blind", r.Name)
		}
		if r.MaxSeats < 2 || r.MaxSeats > 10 {
			return fmt.Errorf("room %s: max seats must be between 2 and 10", r.Name)
		}
		if r.BuyInMin >= r.BuyInMax {
			return fmt.Errorf("room %s: buy-in minimum must be less than maximum", r.Name)
		}
		if r.TurnTimeout <= 0 {
			return fmt.Errorf("room %s: turn timeout must be positive", r.Name)
		}
	}
	return nil
}

// Address returns the full listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// RoomByName returns a room's configuration by name, or nil if absent.
func (c *ServerConfig) RoomByName(name string) *RoomConfig {
	for i := range c.Rooms {
		if c.Rooms[i].Name == name {
			return &c.Rooms[i]
		}
	}
	return nil
}
