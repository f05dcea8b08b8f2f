package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/romulus-oracle/romulus/node"
	"github.com/romulus-oracle/romulus/pkg/config"
)

// NewStartCmd returns the command that runs the oracle daemon until it
// receives an interrupt or termination signal.
func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the oracle daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := config.Load(cmd)
			if err != nil {
				return err
			}

			n, err := node.NewNode(conf)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return n.Run(ctx)
		},
	}
	config.AddFlags(cmd)
	return cmd
}
