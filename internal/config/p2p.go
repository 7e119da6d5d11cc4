package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type P2P struct {
	Host            string
	Port            int
	BootstrapPeers  []string
	SeenCacheSize   int
	DialTimeout     time.Duration
	DialProbability float64
}

const (
	Cfg_p2p_host            = "p2p.host"
	Cfg_p2p_port            = "p2p.port"
	Cfg_p2p_bootstrapPeers  = "p2p.bootstrapPeers"
	Cfg_p2p_seenCacheSize   = "p2p.seenCacheSize"
	Cfg_p2p_dialTimeout     = "p2p.dialTimeout"
	Cfg_p2p_dialProbability = "p2p.dialProbability"
)

var (
	p2pDefaults = map[string]interface{}{
		Cfg_p2p_host:            "0.0.0.0",
		Cfg_p2p_port:            8333,
		Cfg_p2p_bootstrapPeers:  []string{},
		Cfg_p2p_seenCacheSize:   4096,
		Cfg_p2p_dialTimeout:     "5s",
		Cfg_p2p_dialProbability: 0.3,
	}
)

func init() {
	for k, v := range p2pDefaults {
		viper.SetDefault(k, v)
	}
}

func buildP2PConfig() (*P2P, error) {
	c := &P2P{}

	c.Host = viper.GetString(Cfg_p2p_host)
	c.Port = viper.GetInt(Cfg_p2p_port)
	c.BootstrapPeers = viper.GetStringSlice(Cfg_p2p_bootstrapPeers)
	c.SeenCacheSize = viper.GetInt(Cfg_p2p_seenCacheSize)
	c.DialTimeout = viper.GetDuration(Cfg_p2p_dialTimeout)
	c.DialProbability = viper.GetFloat64(Cfg_p2p_dialProbability)

	if c.Port < 0 || c.Port > 65535 {
		return nil, errors.Errorf("invalid port %d", c.Port)
	}

	if c.SeenCacheSize <= 0 {
		return nil, errors.New("seen cache size must be positive")
	}

	if c.DialTimeout <= 0 {
		return nil, errors.New("dial timeout must be positive")
	}

	return c, nil
}
