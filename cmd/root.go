package cmd

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zapdesk/zapdesk/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:   "zapdesk",
	Short: "WhatsApp customer engagement core",
	Long: `Zapdesk ingests WhatsApp provider webhooks, maintains contact and
conversation state, derives ticket lifecycle, auto-assigns agents, and fans
events out to AI analysis and third-party integrations.`,
}

func init() {
	utils.LoadEnv(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	viper.AutomaticEnv()

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if viper.GetBool("app_debug") {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalln(err)
	}
}
