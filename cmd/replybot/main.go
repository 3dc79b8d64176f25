// Command replybot runs the rate-limited reply pipeline: discover fresh
// items, generate a response, publish at most one per cycle, and pace itself
// against a daily quota with an adaptive cooldown.
package main

import (
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "replybot:", err)
		os.Exit(1)
	}
}
