package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var captchaCmd = &cobra.Command{
	Use:   "captcha",
	Short: "Solving-service account commands",
}

var captchaBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the solving-service account balance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("captcha"); err != nil {
			return err
		}
		bal, err := newSolver().Balance(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "captcha balance")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%.4f\n", bal)
		return nil
	},
}

func init() {
	captchaCmd.AddCommand(captchaBalanceCmd)
	rootCmd.AddCommand(captchaCmd)
}
