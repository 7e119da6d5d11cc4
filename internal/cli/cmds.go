package cli

func regCommands() {
	//Wallet
	walletCmd.AddCommand(wallet_newCmd)
	walletCmd.AddCommand(wallet_listCmd)
	walletCmd.AddCommand(wallet_voteCmd)

	//Chain
	chainCmd.AddCommand(chain_verifyCmd)
	chainCmd.AddCommand(chain_tallyCmd)
	chainCmd.AddCommand(chain_txCmd)

	//Root
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(chainCmd)
}
