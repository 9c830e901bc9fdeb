package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agrivia/accounts/internal/config"
)

var (
	cfgFile    string
	cfgReadErr error
	appVersion string // set in Execute, reported by serve and /openapi.json
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agrivia",
		Short: "Accounts and admin console for Agrivia",
		Long: `agrivia serves the Agrivia account backend: token login for the app,
a bearer-authenticated admin API and a server-rendered admin console.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./agrivia.yaml)")
	cmd.PersistentFlags().String("data-dir", "", "data directory for the SQLite store (default: ~/.agrivia)")
	viper.BindPFlag("database.data_dir", cmd.PersistentFlags().Lookup("data-dir"))

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)
	config.ConfigureEnv(v)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("agrivia")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.agrivia")
	}

	// A missing default file is fine; an explicit --config must load.
	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		cfgReadErr = err
	}
}
