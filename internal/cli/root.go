package cli

import (
	"flag"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

var (
	// Global flags
	configPath string
)

// rootCmd is the root command for volquilt.
var rootCmd = &cobra.Command{
	Use:     "volquilt",
	Version: "dev",
	Short:   "Overlapping tile split and blend for N-dimensional arrays",
	Long: `volquilt cuts large arrays into overlapping tiles, runs a per-tile transform
on every tile in parallel and blends the results back into a seamless array.

Tile borders are down-weighted so that each position is reconstructed mostly
from the tiles that saw it with the most context.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func SetVersion(v string) {
	if v == "" {
		return
	}
	rootCmd.Version = v
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "volquilt.yaml", "Path to the YAML configuration file")

	// klog's -v, -logtostderr, ... as persistent flags.
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(klogFlags)

	rootCmd.AddGroup(&cobra.Group{ID: "tiling", Title: "Tiling:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup:"})

	planCmd.GroupID = "tiling"
	runCmd.GroupID = "tiling"
	configCmd.GroupID = "setup"
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute executes the root command.
func Execute() error {
	defer klog.Flush()
	return rootCmd.Execute()
}
