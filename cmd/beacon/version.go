// version.go prints build information.

package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the beacon version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), versionString())
	},
}

func versionString() string {
	s := "beacon " + version
	if info, ok := debug.ReadBuildInfo(); ok {
		s += " (" + info.GoVersion + ")"
	}
	return s
}
