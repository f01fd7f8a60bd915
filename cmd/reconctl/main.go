// Command reconctl runs reconlens enrichments from the terminal without
// starting the HTTP server.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
