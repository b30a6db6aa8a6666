package cmd

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit <block.json>",
	Short: "Submit a block from a JSON file.",
	Args:  cobra.ExactArgs(1),
	Run:   submitRun,
}

func init() {
	rootCmd.AddCommand(submitCmd)
}

func submitRun(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(url+"/v1/blocks", "application/json", bytes.NewReader(data))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatal(decodeError(resp))
	}

	fmt.Println("block accepted")
}
