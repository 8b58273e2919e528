package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	pocketrunner "github.com/pocketnode/core/internal/runner"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Printf("pocketd %s (engine %s, %s/%s)\n",
			Version, pocketrunner.NodeVersion, runtime.GOOS, runtime.GOARCH)
	},
}
