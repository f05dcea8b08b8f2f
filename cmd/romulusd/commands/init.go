package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/romulus-oracle/romulus/pkg/config"
)

// NewInitCmd returns the command that writes a default romulus.yaml into the
// root directory.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: fmt.Sprintf("Initialize a new %s file", config.ConfigName),
		RunE: func(cmd *cobra.Command, args []string) error {
			homePath, err := cmd.Flags().GetString(config.FlagRootDir)
			if err != nil {
				return fmt.Errorf("error reading home flag: %w", err)
			}
			if homePath == "" {
				homePath, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("error getting current directory: %w", err)
				}
			}

			configFilePath := filepath.Join(homePath, config.ConfigName)
			if _, err := os.Stat(configFilePath); err == nil {
				return fmt.Errorf("%s already exists in %s", config.ConfigName, homePath)
			}

			conf := config.DefaultConfig()
			conf.RootDir = homePath
			if owner, err := cmd.Flags().GetString(config.FlagOwner); err == nil && owner != "" {
				conf.Node.Owner = owner
			}

			if err := conf.WriteYaml(); err != nil {
				return err
			}
			fmt.Printf("Initialized %s\n", configFilePath)
			return nil
		},
	}
	cmd.Flags().String(config.FlagRootDir, config.DefaultRootDir(), "root directory for config and data")
	cmd.Flags().String(config.FlagOwner, "", "owner address for privileged operations")
	return cmd
}
