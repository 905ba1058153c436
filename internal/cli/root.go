package cli

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ankitem/briefly/internal/report"
	"github.com/ankitem/briefly/internal/research"
	"github.com/ankitem/briefly/internal/tui"
)

var (
	cfgFile        string
	apiKey         string
	modelName      string
	endpoint       string
	outDir         string
	revealInterval time.Duration
	noAltScreen    bool
)

// rootCmd launches the interactive research session.
var rootCmd = &cobra.Command{
	Use:   "briefly",
	Short: "Turn a research topic into a cited brief, right in your terminal",
	Long: `Briefly asks Google's search-grounded Gemini endpoint to research a topic,
reveals the resulting summary with a typewriter effect alongside its web
citations, and exports the brief to a paginated PDF on demand.

The API key is read from --api-key, BRIEFLY_API_KEY, or GEMINI_API_KEY and
is only ever held in memory for the current session.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          run,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("briefly v0.2.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.briefly/config.yaml)")
	rootCmd.Flags().StringVar(&apiKey, "api-key", "", "Gemini API key (or BRIEFLY_API_KEY / GEMINI_API_KEY)")
	rootCmd.Flags().StringVar(&modelName, "model", "", "override the default Gemini model")
	rootCmd.Flags().StringVar(&endpoint, "endpoint", "", "custom generateContent endpoint (for proxies)")
	rootCmd.Flags().StringVar(&outDir, "out", ".", "directory for exported PDF files")
	rootCmd.Flags().DurationVar(&revealInterval, "reveal-interval", 25*time.Millisecond, "delay between typewriter characters")
	rootCmd.Flags().BoolVar(&noAltScreen, "no-alt-screen", false, "disable the alternate screen buffer")

	_ = viper.BindPFlag("api_key", rootCmd.Flags().Lookup("api-key"))
	_ = viper.BindPFlag("model", rootCmd.Flags().Lookup("model"))
	_ = viper.BindPFlag("endpoint", rootCmd.Flags().Lookup("endpoint"))
	_ = viper.BindPFlag("out", rootCmd.Flags().Lookup("out"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and BRIEFLY_* environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.briefly")
			viper.SetConfigType("yaml")
			viper.SetConfigName("config")
		}
	}

	viper.SetEnvPrefix("BRIEFLY")
	viper.AutomaticEnv()
	// The credential itself also honors the upstream SDK convention.
	_ = viper.BindEnv("api_key", "BRIEFLY_API_KEY", "GEMINI_API_KEY")

	_ = viper.ReadInConfig()
}

func run(cmd *cobra.Command, args []string) error {
	client := research.New(research.Config{
		Endpoint: viper.GetString("endpoint"),
		Model:    viper.GetString("model"),
	})
	exporter := report.NewExporter(report.NewFpdfDocument, viper.GetString("out"))

	opts := []tea.ProgramOption{}
	if !noAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(
		tui.New(tui.Config{
			Research:       client,
			Exporter:       exporter,
			APIKey:         viper.GetString("api_key"),
			RevealInterval: revealInterval,
		}),
		opts...,
	)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("program error: %w", err)
	}
	return nil
}
