package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.vsbench.yml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error")
}

var rootCmd = &cobra.Command{
	Use:   "vsbench",
	Short: "Benchmark an HTTP vector search service",
	Long: `
Command line utility to benchmark an HTTP vector search service.

A run creates an index, ingests generated vectors in parallel, runs search
workloads with and without metadata filters, and optionally exercises the
save/load lifecycle of the index.

Persistent config can be saved in a config file so it doesn't have to be specified every command.

Example structure:

scenario:
  client:
    base_url: http://localhost:8685
  index:
    name: test_index
    dimension: 512
  workload:
    with_metadata: true
  search:
    filters: [none, exact, or]

The location of this file can be passed in using --config argument or picked from $HOME/.vsbench.yml.
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

var cfgFile string
