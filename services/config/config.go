// Package config holds the runtime configuration and the service that
// publishes it, one retained message per section on config/<section>.
package config

import (
	_ "embed"
	"time"

	"candash-go/x/timex"
)

//go:embed defaults/config.yaml
var defaultYAML []byte

//go:embed defaults/params.json
var defaultParams []byte

// DefaultParams returns the shipped parameter definition document.
func DefaultParams() []byte { return append([]byte(nil), defaultParams...) }

type Config struct {
	CAN       CANConfig       `mapstructure:"can" json:"can"`
	Candata   CandataConfig   `mapstructure:"candata" json:"candata"`
	Portal    PortalConfig    `mapstructure:"portal" json:"portal"`
	Redis     RedisConfig     `mapstructure:"redis" json:"redis"`
	Logger    LoggerConfig    `mapstructure:"logger" json:"logger"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat" json:"heartbeat"`
}

// CANConfig selects and parameterises the bus driver.
type CANConfig struct {
	Driver    string `mapstructure:"driver" json:"driver"`       // socketcan | slcan | sim
	Interface string `mapstructure:"interface" json:"interface"` // can0, /dev/ttyACM0, ...
	Bitrate   int    `mapstructure:"bitrate" json:"bitrate"`
	Baud      int    `mapstructure:"baud" json:"baud"` // slcan serial speed
	NodeID    int    `mapstructure:"node_id" json:"node_id"`
	RxQueue   int    `mapstructure:"rx_queue" json:"rx_queue"`
	TxQueue   int    `mapstructure:"tx_queue" json:"tx_queue"`
}

type CandataConfig struct {
	TickMs         int    `mapstructure:"tick_ms" json:"tick_ms"`
	RecencyMs      int    `mapstructure:"recency_ms" json:"recency_ms"`
	WriteTimeoutMs int    `mapstructure:"write_timeout_ms" json:"write_timeout_ms"`
	CellPublishMs  int    `mapstructure:"cell_publish_ms" json:"cell_publish_ms"`
	StatusMs       int    `mapstructure:"status_ms" json:"status_ms"`
	Definitions    string `mapstructure:"definitions" json:"definitions"` // path; empty = built-in
}

func (c CandataConfig) Tick() time.Duration         { return timex.Ms(c.TickMs, 20*time.Millisecond) }
func (c CandataConfig) Recency() time.Duration      { return timex.Ms(c.RecencyMs, 3*time.Second) }
func (c CandataConfig) WriteTimeout() time.Duration { return timex.Ms(c.WriteTimeoutMs, 2*time.Second) }
func (c CandataConfig) CellPublish() time.Duration {
	return timex.Ms(c.CellPublishMs, 500*time.Millisecond)
}
func (c CandataConfig) StatusEvery() time.Duration { return timex.Ms(c.StatusMs, time.Second) }

type PortalConfig struct {
	Enabled        bool   `mapstructure:"enabled" json:"enabled"`
	Listen         string `mapstructure:"listen" json:"listen"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" json:"max_upload_bytes"`
	Mode           string `mapstructure:"mode" json:"mode"` // gin mode
}

type RedisConfig struct {
	Enabled    bool   `mapstructure:"enabled" json:"enabled"`
	Addr       string `mapstructure:"addr" json:"addr"`
	Password   string `mapstructure:"password" json:"-"`
	DB         int    `mapstructure:"db" json:"db"`
	Prefix     string `mapstructure:"prefix" json:"prefix"`
	IntervalMs int    `mapstructure:"interval_ms" json:"interval_ms"`
}

func (c RedisConfig) Interval() time.Duration { return timex.Ms(c.IntervalMs, time.Second) }

type LoggerConfig struct {
	Level      string `mapstructure:"level" json:"level"`
	Format     string `mapstructure:"format" json:"format"` // text | json
	File       string `mapstructure:"file" json:"file"`     // empty = console only
	MaxSizeMB  int    `mapstructure:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" json:"max_age_days"`
	Compress   bool   `mapstructure:"compress" json:"compress"`
	Console    bool   `mapstructure:"console" json:"console"`
}

type HeartbeatConfig struct {
	Interval int `mapstructure:"interval" json:"interval"` // seconds
}

// Defaults mirrors defaults/config.yaml for builds without a file loader.
func Defaults() Config {
	return Config{
		CAN: CANConfig{Driver: "sim", Interface: "can0", Bitrate: 500000, Baud: 115200, NodeID: 1, RxQueue: 64, TxQueue: 16},
		Candata: CandataConfig{
			TickMs: 20, RecencyMs: 3000, WriteTimeoutMs: 2000, CellPublishMs: 500, StatusMs: 1000,
		},
		Portal:    PortalConfig{Enabled: true, Listen: ":8080", MaxUploadBytes: 16384, Mode: "release"},
		Redis:     RedisConfig{Addr: "127.0.0.1:6379", Prefix: "candash", IntervalMs: 1000},
		Logger:    LoggerConfig{Level: "info", Format: "text", MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 7, Console: true},
		Heartbeat: HeartbeatConfig{Interval: 10},
	}
}

// Sections lists the retained config topics in publish order.
func (c *Config) Sections() []Section {
	return []Section{
		{"can", c.CAN},
		{"candata", c.Candata},
		{"portal", c.Portal},
		{"redis", c.Redis},
		{"logger", c.Logger},
		{"heartbeat", c.Heartbeat},
	}
}

type Section struct {
	Name  string
	Value any
}
