package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tcfw/votem/internal/wallet"
	"github.com/tcfw/votem/pkg/cryptography"
	"github.com/tcfw/votem/pkg/ledger"
)

var (
	walletCmd = &cobra.Command{
		Use:   "wallet",
		Short: "Wallet commands",
	}

	wallet_newCmd = &cobra.Command{
		Use:   "new",
		Short: "generate a signing key and its voter address",
		RunE:  runWalletNew,
	}

	wallet_listCmd = &cobra.Command{
		Use:   "list",
		Short: "list stored voter addresses",
		RunE:  runWalletList,
	}

	wallet_voteCmd = &cobra.Command{
		Use:   "vote <address> <candidate>",
		Short: "sign a vote with a stored key and print the transaction",
		Args:  cobra.ExactArgs(2),
		RunE:  runWalletVote,
	}
)

func init() {
	walletCmd.PersistentFlags().String("keystore", "", "keystore file (default $HOME/.votem/wallet.yaml)")
	wallet_newCmd.Flags().Bool("show-key", false, "also print the private key")
}

func openKeystore(cmd *cobra.Command) (*wallet.FileStore, error) {
	path, _ := cmd.Flags().GetString("keystore")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".votem", "wallet.yaml")
	}

	return wallet.NewFileStore(path)
}

type walletOutput struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key,omitempty"`
}

func runWalletNew(cmd *cobra.Command, args []string) error {
	ks, err := openKeystore(cmd)
	if err != nil {
		return err
	}

	k, err := cryptography.NewSecp256k1PrivateKey()
	if err != nil {
		return err
	}

	if err := ks.Add(k); err != nil {
		return err
	}

	out := walletOutput{Address: k.Address()}
	if show, _ := cmd.Flags().GetBool("show-key"); show {
		out.PrivateKey = k.Hex()
	}

	return printJSON(cmd, out)
}

func runWalletList(cmd *cobra.Command, args []string) error {
	ks, err := openKeystore(cmd)
	if err != nil {
		return err
	}

	return printJSON(cmd, ks.List())
}

func runWalletVote(cmd *cobra.Command, args []string) error {
	ks, err := openKeystore(cmd)
	if err != nil {
		return err
	}

	k, err := ks.Find(args[0])
	if err != nil {
		return err
	}

	tx := ledger.NewVote(k.Address(), args[1])
	if err := tx.Sign(k); err != nil {
		return err
	}

	return printJSON(cmd, tx)
}
