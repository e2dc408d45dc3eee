package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/visingers/visingers-sync/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

const (
	LOGO = `        _     _
 __   _(_)___(_)_ __   __ _  ___ _ __ ___
 \ \ / / / __| | '_ \ / _' |/ _ \ '__/ __|
  \ V /| \__ \ | | | | (_| |  __/ |  \__ \
   \_/ |_|___/_|_| |_|\__, |\___|_|  |___/
                      |___/
`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "visingers",
	Short: "Keeps the ViSingers directory in sync with GitHub.",
	Long: LOGO + `visingers discovers GitHub repositories tagged with the "visingers" topic,
parses the singer profile out of their README and releases, and reconciles
the directory database with what it found.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.visingers.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dbpath", "", "SQLite file or postgres:// DSN (default: ~/.config/visingers/visingers.sqlite)")
	viper.BindPFlag("db.path", rootCmd.PersistentFlags().Lookup("dbpath"))
	rootCmd.PersistentFlags().Int("wipe-guard", 0, "Keep all profiles when discovery finds nothing but more than this many are stored. 0 lets an empty result delete every profile")
	viper.BindPFlag("sync.wipe-guard", rootCmd.PersistentFlags().Lookup("wipe-guard"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".visingers")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("VISINGERS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.visingers.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}

// setDefaults sets default values for all keys.
func setDefaults() {
	viper.SetDefault("github.token", "")
	viper.SetDefault("github.topic", "visingers")
	viper.SetDefault("github.api-url", "")
	viper.SetDefault("github.graphql-url", "")
	viper.SetDefault("github.retry-max", 3)
	viper.SetDefault("github.retry-wait-min", "1s")
	viper.SetDefault("github.retry-wait-max", "30s")
	viper.SetDefault("sync.interval", "30s")
	viper.SetDefault("sync.concurrency", 1)
	viper.SetDefault("sync.wipe-guard", 0)
	viper.SetDefault("censor.words", []string{})
	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.username", "")
	viper.SetDefault("server.password", "")
}
