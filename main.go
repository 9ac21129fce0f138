package main

import (
	"os"

	"github.com/darkone23/langnet-web/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
