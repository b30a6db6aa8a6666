package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <height>",
	Short: "Rollback the ledger to the specified height.",
	Args:  cobra.ExactArgs(1),
	Run:   rollbackRun,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
}

func rollbackRun(cmd *cobra.Command, args []string) {
	resp, err := http.Post(url+"/v1/rollback/"+args[0], "application/json", nil)
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatal(decodeError(resp))
	}

	fmt.Println("rollback complete")
}
