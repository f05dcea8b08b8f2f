package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/romulus-oracle/romulus/pkg/config"
)

// VersionCmd prints the daemon version.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("romulus version %s\n", config.Version)
	},
}
