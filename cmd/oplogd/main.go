// Command oplogd is the launcher for the secondary oplog application engine.
package main

import (
	"os"

	"github.com/chronodb/oplogd/cmd"
	"github.com/chronodb/oplogd/utils/log"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error("oplogd exiting: %v", err)
		os.Exit(1)
	}
}
