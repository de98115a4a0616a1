package config

import (
	"context"

	"candash-go/bus"
)

const (
	serviceName  = "config"
	configPrefix = "config"
)

// Topic returns the retained topic of a config section.
func Topic(section string) bus.Topic { return bus.T(configPrefix, section) }

type ConfigService struct {
	Name string
	cfg  Config
}

func NewConfigService(cfg Config) *ConfigService {
	return &ConfigService{Name: serviceName, cfg: cfg}
}

// publishConfig publishes every section as a retained message.
func (s *ConfigService) publishConfig(conn *bus.Connection) {
	for _, sec := range s.cfg.Sections() {
		conn.Publish(conn.NewMessage(Topic(sec.Name), sec.Value, true))
	}
}

// Start publishes the configuration. Late subscribers get the retained
// copies.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	s.publishConfig(conn)
}
