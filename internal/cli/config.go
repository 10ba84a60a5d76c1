package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"volquilt/pkg/config"
)

var configForce bool

// configCmd is the parent command for configuration files.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Long: `Write the default configuration as YAML to path, or to the --config path when
no argument is given. An existing file is kept unless --force is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
		if err := config.CreateDefaultConfigFile(path); err != nil {
			return err
		}
		PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Wrote default configuration to %s", path))
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}
