package cmd

import (
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var genaddrCmd = &cobra.Command{
	Use:   "genaddr",
	Short: "Generate a new address for receiving outputs.",
	Run:   genaddrRun,
}

func init() {
	rootCmd.AddCommand(genaddrCmd)
}

func genaddrRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)
	fmt.Println(address.String())
}
