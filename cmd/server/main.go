// Package main provides the nexus command: the connection server and its
// companion client tools.
package main

import (
	"os"

	"github.com/Tyrowin/nexus/cmd/server/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
