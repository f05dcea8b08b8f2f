package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd is the root command for romulusd.
var RootCmd = &cobra.Command{
	Use:   "romulusd",
	Short: "Randomness oracle daemon for single-sequencer rollups",
	Long: `
Romulus serves verifiable randomness over a single-sequencer rollup chain:
commit-reveal requests aggregated over a span of future block hashes (Secure
Mode) and immediate draws from a ring of pre-generated seeds (Instant Mode).

If the --home flag is not specified, romulusd stores its config and data
under "~/.romulus".
`,
}
