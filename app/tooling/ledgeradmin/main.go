// This program performs administrative tasks against the ledger service.
package main

import "github.com/blockledger/blockledger/app/tooling/ledgeradmin/cmd"

func main() {
	cmd.Execute()
}
