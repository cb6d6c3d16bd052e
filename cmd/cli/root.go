package cli

import (
	"context"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conveyorq/conveyor/cmd/cli/serve"
	"github.com/conveyorq/conveyor/pkg/config"
)

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

var log = logging.Logger("cmd")

const conveyorShortDescription = `
Conveyor runs HTTP-submitted jobs asynchronously with retries and recovery
`

const conveyorLongDescription = `
Conveyor - asynchronous job execution for HTTP services
Jobs are accepted over HTTP, persisted to a store (in-memory or Redis),
claimed by exactly one worker at a time and retried with exponential backoff
until they complete or exhaust their budget.
`

var (
	cfgFile  string
	logLevel string
	rootCmd  = &cobra.Command{
		Use:   "conveyor",
		Short: conveyorShortDescription,
		Long:  conveyorLongDescription,
	}
)

func init() {
	cobra.OnInitialize(initLogging, initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "logging level")

	rootCmd.AddCommand(serve.Cmd)
}

func initConfig() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetEnvPrefix("CONVEYOR")
	config.SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		cobra.CheckErr(viper.ReadInConfig())
	}
}

func initLogging() {
	if logLevel != "" {
		ll, err := logging.LevelFromString(logLevel)
		cobra.CheckErr(err)
		logging.SetAllLoggers(ll)
	} else {
		logging.SetAllLoggers(logging.LevelInfo)
		cobra.CheckErr(logging.SetLogLevel("config", "error"))
	}
}
