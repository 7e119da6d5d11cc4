package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tcfw/votem/internal/config"
	"github.com/tcfw/votem/internal/node"
)

var (
	daemonCmd = &cobra.Command{
		Use:   "daemon",
		RunE:  runDaemon,
		Short: "run a voting node",
	}
)

func init() {
	daemonCmd.Flags().IntP("port", "p", 8333, "p2p listen port")
	viper.BindPFlag(config.Cfg_p2p_port, daemonCmd.Flags().Lookup("port"))

	daemonCmd.Flags().StringSlice("peer", []string{}, "bootstrap peer as host:port. Can be used multiple times")
	viper.BindPFlag(config.Cfg_p2p_bootstrapPeers, daemonCmd.Flags().Lookup("peer"))

	daemonCmd.Flags().String("data-dir", "", "directory for the chain store")
	viper.BindPFlag(config.Cfg_chain_dataDir, daemonCmd.Flags().Lookup("data-dir"))

	daemonCmd.Flags().Duration("mine-interval", 0, "mine pending votes at this interval")
	viper.BindPFlag(config.Cfg_chain_mineInterval, daemonCmd.Flags().Lookup("mine-interval"))

	daemonCmd.Flags().String("miner", "", "address credited with mining rewards")
	viper.BindPFlag(config.Cfg_chain_minerAddress, daemonCmd.Flags().Lookup("miner"))
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node, err := node.NewNode(ctx)
	if err != nil {
		return errors.Wrap(err, "initing node")
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- node.ListenAndServe(ctx)
	}()

	select {
	case err := <-errCh:
		if serr := node.Stop(); serr != nil && err == nil {
			err = serr
		}
		return err
	case <-waitExit(ctx):
		cancel()
		<-errCh
		return node.Stop()
	}
}

func waitExit(ctx context.Context) <-chan os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	return sigs
}
