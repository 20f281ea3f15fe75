package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/jobdone/core/factory"
	"github.com/kilianp07/jobdone/core/metrics"
	"github.com/kilianp07/jobdone/core/model"
	"github.com/kilianp07/jobdone/infra/mqtt"
)

type Config struct {
	MQTT        mqtt.Config          `json:"mqtt"`
	Broker      BrokerConfig         `json:"broker"`
	Store       factory.ModuleConfig `json:"store"`
	Idempotency factory.ModuleConfig `json:"idempotency"`
	Reconciler  ReconcilerConfig     `json:"reconciler"`
	Metrics     metrics.Config       `json:"metrics"`
	HTTP        HTTPConfig           `json:"http"`
	DockSets    []model.DockSet      `json:"docksets"`
}

// Load reads path (YAML or JSON) and applies K_ prefixed environment
// overrides, with "__" separating nested keys. An empty path loads defaults
// and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	if c.MQTT.Broker != "" {
		c.MQTT.SetDefaults()
	}
	c.Broker.SetDefaults()
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Idempotency.Type == "" {
		c.Idempotency.Type = "memory"
	}
	c.Reconciler.SetDefaults()
	if len(c.Metrics.Sinks) == 0 {
		c.Metrics.Sinks = []factory.ModuleConfig{{Type: "nop"}}
	}
	c.HTTP.SetDefaults()
	if len(c.DockSets) == 0 {
		c.DockSets = model.DefaultDockSets()
	}
}

// Validate checks every section. The MQTT section is optional; an empty
// broker address disables the MQTT transport.
func (c Config) Validate() error {
	var errs []error
	if c.MQTT.Broker != "" {
		errs = append(errs, c.MQTT.Validate())
	}
	errs = append(errs, c.Broker.Validate(), c.Reconciler.Validate(), c.HTTP.Validate())
	if _, err := model.NewCatalog(c.DockSets); err != nil {
		errs = append(errs, fmt.Errorf("docksets: %w", err))
	}
	return errors.Join(errs...)
}

// Catalog builds the dock set catalog.
func (c Config) Catalog() (*model.Catalog, error) {
	return model.NewCatalog(c.DockSets)
}
