package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/tcfw/votem/internal/utils/logging"
	"gopkg.in/yaml.v3"
)

const (
	Cfg_verbose     = "verbose"
	Cfg_configFile  = "config"
	Cfg_metricsAddr = "metrics.addr"

	configName = "votem"
)

var (
	defaults = map[string]interface{}{
		Cfg_verbose:     false,
		Cfg_metricsAddr: "127.0.0.1:9464",
	}
)

func init() {
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

func GetConfig() (*Config, error) {
	if f := viper.GetString(Cfg_configFile); f != "" {
		viper.SetConfigFile(f)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName(configName)
		viper.AddConfigPath("/etc/votem/")
		viper.AddConfigPath("$HOME/.votem")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("VOTEM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error
			logging.Entry().Warn("no config found, using defaults")
		} else {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	c := &Config{
		MetricsAddr: viper.GetString(Cfg_metricsAddr),
	}

	c.p2p, err = buildP2PConfig()
	if err != nil {
		return nil, errors.Wrap(err, "p2p config")
	}

	c.chain, err = buildChainConfig()
	if err != nil {
		return nil, errors.Wrap(err, "chain config")
	}

	if viper.GetBool(Cfg_verbose) {
		logging.SetLevel(logrus.DebugLevel)
		logging.Entry().WithField("level", "debug").Debug("setting log level")
	}

	return c, nil
}

type Config struct {
	p2p   *P2P
	chain *Chain

	// MetricsAddr is where prometheus metrics are served. Empty disables it.
	MetricsAddr string
}

// New assembles a config directly, without reading files or the
// environment.
func New(p2p *P2P, chain *Chain, metricsAddr string) *Config {
	return &Config{p2p: p2p, chain: chain, MetricsAddr: metricsAddr}
}

func (c *Config) P2P() *P2P {
	return c.p2p
}

func (c *Config) Chain() *Chain {
	return c.chain
}

// Defaults returns every default setting nested by section, as written to
// a fresh config file.
func Defaults() map[string]interface{} {
	out := map[string]interface{}{}

	for _, set := range []map[string]interface{}{defaults, p2pDefaults, chainDefaults} {
		for k, v := range set {
			if k == Cfg_verbose {
				continue
			}
			nest(out, strings.Split(k, "."), v)
		}
	}

	return out
}

func nest(m map[string]interface{}, path []string, v interface{}) {
	if len(path) == 1 {
		m[path[0]] = v
		return
	}

	sub, ok := m[path[0]].(map[string]interface{})
	if !ok {
		sub = map[string]interface{}{}
		m[path[0]] = sub
	}

	nest(sub, path[1:], v)
}

// WriteDefault writes the default configuration as YAML to path. An
// existing file is left alone unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return errors.Errorf("%s already exists", path)
	}

	d, err := yaml.Marshal(Defaults())
	if err != nil {
		return errors.Wrap(err, "encoding defaults")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating config dir")
	}

	if err := os.WriteFile(path, d, 0o644); err != nil {
		return errors.Wrap(err, "writing config")
	}

	return nil
}
