package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Chain struct {
	Difficulty   int
	MiningReward int64
	Candidates   []string
	TallyBits    int
	DataDir      string

	// PersistInterval is how often the chain is written to the store.
	PersistInterval time.Duration

	// MineInterval enables periodic mining of pending votes when positive.
	MineInterval time.Duration
	MinerAddress string
}

const (
	Cfg_chain_difficulty      = "chain.difficulty"
	Cfg_chain_miningReward    = "chain.miningReward"
	Cfg_chain_candidates      = "chain.candidates"
	Cfg_chain_tallyBits       = "chain.tallyBits"
	Cfg_chain_dataDir         = "chain.dataDir"
	Cfg_chain_persistInterval = "chain.persistInterval"
	Cfg_chain_mineInterval    = "chain.mineInterval"
	Cfg_chain_minerAddress    = "chain.minerAddress"
)

var (
	chainDefaults = map[string]interface{}{
		Cfg_chain_difficulty:      4,
		Cfg_chain_miningReward:    1,
		Cfg_chain_candidates:      []string{"Alice", "Bob"},
		Cfg_chain_tallyBits:       2048,
		Cfg_chain_dataDir:         "",
		Cfg_chain_persistInterval: "30s",
		Cfg_chain_mineInterval:    "0s",
		Cfg_chain_minerAddress:    "",
	}
)

func init() {
	for k, v := range chainDefaults {
		viper.SetDefault(k, v)
	}
}

func buildChainConfig() (*Chain, error) {
	c := &Chain{}

	c.Difficulty = viper.GetInt(Cfg_chain_difficulty)
	c.MiningReward = viper.GetInt64(Cfg_chain_miningReward)
	c.Candidates = viper.GetStringSlice(Cfg_chain_candidates)
	c.TallyBits = viper.GetInt(Cfg_chain_tallyBits)
	c.DataDir = viper.GetString(Cfg_chain_dataDir)
	c.PersistInterval = viper.GetDuration(Cfg_chain_persistInterval)
	c.MineInterval = viper.GetDuration(Cfg_chain_mineInterval)
	c.MinerAddress = viper.GetString(Cfg_chain_minerAddress)

	if c.Difficulty < 0 {
		return nil, errors.New("difficulty must not be negative")
	}

	if c.MiningReward < 0 {
		return nil, errors.New("mining reward must not be negative")
	}

	if c.MineInterval > 0 && c.MinerAddress == "" {
		return nil, errors.New("mining enabled without a miner address")
	}

	return c, nil
}
