package phy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OpenTraceLab/jtagstream/pkg/cdc"
	"github.com/OpenTraceLab/jtagstream/pkg/vendor"
	"github.com/OpenTraceLab/jtagstream/pkg/xfer"
)

// ErrUnsupportedConfig is returned before anything is built when a
// configuration cannot be realised.
var ErrUnsupportedConfig = errors.New("phy: unsupported configuration")

// Config controls how a Device is assembled.
type Config struct {
	Family     vendor.Family `json:"family"`
	Chain      int           `json:"chain"`       // user chain, 1 based
	DataWidth  int           `json:"data_width"`  // payload bits per frame
	Depth      int           `json:"depth"`       // entries per CDC queue
	SyncStages int           `json:"sync_stages"` // synchroniser flops per crossing
}

// DefaultConfig returns the reference configuration: simulated primitive,
// chain 1, byte payload, four-entry queues behind two-flop synchronisers.
func DefaultConfig() Config {
	return Config{
		Family:     vendor.FamilySim,
		Chain:      1,
		DataWidth:  8,
		Depth:      cdc.DefaultDepth,
		SyncStages: cdc.DefaultStages,
	}
}

// Validate checks the configuration. Zero depth or stage counts select the
// defaults.
func (c *Config) Validate() error {
	if c.Depth == 0 {
		c.Depth = cdc.DefaultDepth
	}
	if c.SyncStages == 0 {
		c.SyncStages = cdc.DefaultStages
	}
	if !c.Family.Valid() {
		return fmt.Errorf("%w: family %d", ErrUnsupportedConfig, c.Family)
	}
	if c.DataWidth < 1 || c.DataWidth > xfer.MaxDataWidth {
		return fmt.Errorf("%w: data width %d out of range 1..%d", ErrUnsupportedConfig, c.DataWidth, xfer.MaxDataWidth)
	}
	if err := c.Family.Describe().CheckChain(c.Chain); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedConfig, err)
	}
	if err := cdc.ValidateGeometry(c.Depth, c.SyncStages); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedConfig, err)
	}
	return nil
}

// DefaultConfigPath returns the per-user configuration file location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("APPDATA"); dir != "" {
		return filepath.Join(dir, "jtagstream", "config.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "jtagstream", "config.json"), nil
}

// LoadConfig reads a JSON configuration. Fields missing from the file keep
// their default values; a missing file yields DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("phy: parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// SaveConfig writes cfg as indented JSON, creating the directory.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
