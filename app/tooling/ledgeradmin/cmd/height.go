package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var heightCmd = &cobra.Command{
	Use:   "height",
	Short: "Print the current ledger height.",
	Run:   heightRun,
}

func init() {
	rootCmd.AddCommand(heightCmd)
}

func heightRun(cmd *cobra.Command, args []string) {
	var resp struct {
		Height int `json:"height"`
	}
	if err := get("/v1/height", &resp); err != nil {
		log.Fatal(err)
	}

	fmt.Println(resp.Height)
}
