//go:build !tinygo

package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. CANDASH_CAN_DRIVER.
const EnvPrefix = "CANDASH"

// Load reads the embedded defaults, merges the YAML file at path when path
// is non-empty, then applies environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return Config{}, fmt.Errorf("embedded defaults: %w", err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.CAN.Driver {
	case "socketcan", "slcan", "sim":
	default:
		return fmt.Errorf("can.driver %q: want socketcan, slcan or sim", c.CAN.Driver)
	}
	if c.CAN.NodeID < 1 || c.CAN.NodeID > 127 {
		return fmt.Errorf("can.node_id %d out of range 1..127", c.CAN.NodeID)
	}
	for name, n := range map[string]int{"can.rx_queue": c.CAN.RxQueue, "can.tx_queue": c.CAN.TxQueue} {
		if n < 2 || n&(n-1) != 0 {
			return fmt.Errorf("%s %d: must be a power of two >= 2", name, n)
		}
	}
	if c.Portal.MaxUploadBytes <= 0 {
		return fmt.Errorf("portal.max_upload_bytes must be positive")
	}
	return nil
}
