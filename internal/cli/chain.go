package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tcfw/votem/internal/config"
	"github.com/tcfw/votem/pkg/ledger"
	"github.com/tcfw/votem/pkg/storage"
	"github.com/tcfw/votem/pkg/tally"
)

var (
	chainCmd = &cobra.Command{
		Use:   "chain",
		Short: "Offline checks against the stored chain",
	}

	chain_verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "validate the stored chain",
		RunE:  runChainVerify,
	}

	chain_tallyCmd = &cobra.Command{
		Use:   "tally",
		Short: "count the mined votes in the stored chain",
		RunE:  runChainTally,
	}

	chain_txCmd = &cobra.Command{
		Use:   "tx <hash>",
		Short: "find a mined transaction by hash",
		Args:  cobra.ExactArgs(1),
		RunE:  runChainTx,
	}
)

func init() {
	chainCmd.PersistentFlags().String("data-dir", "", "directory of the chain store")
	viper.BindPFlag(config.Cfg_chain_dataDir, chainCmd.PersistentFlags().Lookup("data-dir"))
}

func openStore() (storage.Store, *config.Config, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, nil, err
	}

	if cfg.Chain().DataDir == "" {
		return nil, nil, errors.New("no data dir configured")
	}

	s, err := storage.NewPebbleStore(cfg.Chain().DataDir)
	if err != nil {
		return nil, nil, err
	}

	return s, cfg, nil
}

// loadLedger rebuilds a ledger from the stored chain, validating every block.
func loadLedger(ctx context.Context) (*ledger.Ledger, error) {
	s, cfg, err := openStore()
	if err != nil {
		return nil, err
	}
	defer s.Close()

	chain, err := s.LoadChain(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading chain")
	}

	scheme, err := tally.NewScheme(cfg.Chain().TallyBits)
	if err != nil {
		return nil, err
	}

	l, err := ledger.New(
		ledger.WithDifficulty(cfg.Chain().Difficulty),
		ledger.WithCandidates(cfg.Chain().Candidates...),
		ledger.WithScheme(scheme),
	)
	if err != nil {
		return nil, err
	}

	if len(chain) > 1 {
		if err := l.ReplaceChain(chain); err != nil {
			l.Close()
			return nil, err
		}
	}

	return l, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	s, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", s)

	return nil
}

func runChainVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	l, err := loadLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	if !l.IsChainValid() {
		return ledger.ErrInvalidChain
	}

	return printJSON(cmd, map[string]interface{}{
		"valid":  true,
		"length": l.Len(),
		"tip":    l.Tip().Hash,
	})
}

func runChainTally(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	l, err := loadLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	counts, err := l.TallyEncryptedVotes()
	if err != nil {
		return err
	}

	return printJSON(cmd, counts)
}

func runChainTx(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	b, tx, err := s.LocateTx(ctx, args[0])
	if err != nil {
		return err
	}

	return printJSON(cmd, map[string]interface{}{
		"block":       b.Index,
		"block_hash":  b.Hash,
		"transaction": tx,
	})
}
