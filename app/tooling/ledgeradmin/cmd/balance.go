package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Print the balance of an address.",
	Args:  cobra.ExactArgs(1),
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) {
	var resp struct {
		Address string  `json:"address"`
		Balance float64 `json:"balance"`
	}
	if err := get("/v1/balances/"+args[0], &resp); err != nil {
		log.Fatal(err)
	}

	fmt.Println(resp.Balance)
}
