package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tcfw/votem/internal/config"
)

var (
	rootCmd = &cobra.Command{
		Use:          "votem",
		Short:        "peer-to-peer voting ledger",
		SilenceUsage: true,
	}
)

func Execute() error {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "increase verbosity")
	viper.BindPFlag(config.Cfg_verbose, rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default searches /etc/votem, $HOME/.votem and .)")
	viper.BindPFlag(config.Cfg_configFile, rootCmd.PersistentFlags().Lookup("config"))

	regCommands()

	return rootCmd.Execute()
}
