package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/adpilot/internal/observability"
	"github.com/hrygo/adpilot/internal/profile"
	"github.com/hrygo/adpilot/server"
	"github.com/hrygo/adpilot/store"
	"github.com/hrygo/adpilot/store/db"
)

var version = "0.1.0"

// app holds the state shared by every subcommand.
type app struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:           "adpilot",
		Short:         "Meta ads performance monitor with an approval-gated action queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.readConfig(cmd)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to a config file (yaml, json or toml)")
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", 8081, "port of server")
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", "database driver (sqlite, postgres or memory)")
	flags.String("dsn", "", "database source name")
	flags.String("timezone", "Asia/Tokyo", "IANA timezone for pacing and reports")
	flags.String("log-format", "text", `log format, "text" or "json"`)
	flags.String("log-level", "info", "log level")

	flags.String("meta-access-token", "", "Meta Marketing API access token")
	flags.String("meta-api-version", "v21.0", "Graph API version")
	flags.String("meta-base-url", "", "Graph API base URL")
	flags.StringSlice("meta-account-ids", nil, "ad account ids to monitor (act_...)")
	flags.Float64("meta-rate-limit-rps", 5, "Graph API requests per second")

	flags.String("llm-provider", "deepseek", "LLM provider (deepseek, openai or ollama)")
	flags.String("llm-base-url", "", "LLM base URL")
	flags.String("llm-api-key", "", "LLM API key")
	flags.String("llm-model", "", "LLM model")
	flags.Int("llm-max-tokens", 2000, "LLM max tokens")
	flags.Float64("llm-temperature", 0.3, "LLM temperature")

	flags.String("slack-webhook-url", "", "Slack incoming webhook URL")
	flags.Bool("notify-hourly", true, "send the hourly alert summary")
	flags.Bool("notify-daily", true, "send the daily report")
	flags.String("notify-severity", "medium", "minimum alert severity to notify (low, medium, high)")

	flags.Duration("check-interval", time.Hour, "interval between monitoring passes")
	flags.Int("daily-report-hour", 9, "hour of the daily report")
	flags.Int("daily-report-minute", 0, "minute of the daily report")

	flags.String("executor-mode", profile.ExecutorModeApprovalRequired, "notify_only, approval_required or auto_execute")
	flags.Float64("max-budget-increase-percent", 20, "largest allowed single budget increase")
	flags.Float64("max-daily-budget", 500000, "largest allowed daily budget after an increase")
	flags.StringArray("guard", nil, "CEL guard expression; repeatable")

	flags.Float64("min-daily-spend", 1000, "spend below which a campaign is not judged")
	flags.Duration("learning-delay", 24*time.Hour, "delay between execution and effect analysis")
	flags.String("api-secret", "", "secret signing operator API tokens")

	rootCmd.AddCommand(
		a.newServeCommand(),
		a.newCheckCommand(),
		a.newActionsCommand(),
		a.newTargetsCommand(),
		a.newLearnCommand(),
		a.newTokenCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return rootCmd
}

func (a *app) readConfig(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	a.v.SetEnvPrefix("adpilot")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to read config %s", path)
		}
	}
	return nil
}

// loadProfile builds and validates the profile from flags, environment and
// the config file.
func (a *app) loadProfile() (*profile.Profile, error) {
	v := a.v
	p := &profile.Profile{
		Mode:      v.GetString("mode"),
		Addr:      v.GetString("addr"),
		Port:      v.GetInt("port"),
		Data:      v.GetString("data"),
		Driver:    v.GetString("driver"),
		DSN:       v.GetString("dsn"),
		Version:   version,
		Timezone:  v.GetString("timezone"),
		LogFormat: v.GetString("log-format"),
		LogLevel:  v.GetString("log-level"),

		MetaAccessToken:  v.GetString("meta-access-token"),
		MetaAPIVersion:   v.GetString("meta-api-version"),
		MetaBaseURL:      v.GetString("meta-base-url"),
		MetaAccountIDs:   v.GetStringSlice("meta-account-ids"),
		MetaRateLimitRPS: v.GetFloat64("meta-rate-limit-rps"),

		LLMProvider:    v.GetString("llm-provider"),
		LLMBaseURL:     v.GetString("llm-base-url"),
		LLMAPIKey:      v.GetString("llm-api-key"),
		LLMModel:       v.GetString("llm-model"),
		LLMMaxTokens:   v.GetInt("llm-max-tokens"),
		LLMTemperature: float32(v.GetFloat64("llm-temperature")),

		SlackWebhookURL:       v.GetString("slack-webhook-url"),
		NotifyHourlyAlerts:    v.GetBool("notify-hourly"),
		NotifyDailyReport:     v.GetBool("notify-daily"),
		NotifySeverityMinimum: v.GetString("notify-severity"),

		CheckInterval:     v.GetDuration("check-interval"),
		DailyReportHour:   v.GetInt("daily-report-hour"),
		DailyReportMinute: v.GetInt("daily-report-minute"),

		ExecutorMode:             v.GetString("executor-mode"),
		MaxBudgetIncreasePercent: v.GetFloat64("max-budget-increase-percent"),
		MaxDailyBudget:           v.GetFloat64("max-daily-budget"),
		GuardExpressions:         v.GetStringSlice("guard"),

		MinDailySpend: v.GetFloat64("min-daily-spend"),
		LearningDelay: v.GetDuration("learning-delay"),
		APISecret:     v.GetString("api-secret"),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (a *app) logger(p *profile.Profile) *slog.Logger {
	return observability.NewLogger(a.errOut, p.LogFormat, p.LogLevel)
}

// openStore opens the document store selected by the profile.
func openStore(p *profile.Profile) (*store.Store, error) {
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	return store.New(driver), nil
}

// withComponents loads the profile, opens the store and builds the pipeline
// for a one-shot command.
func (a *app) withComponents(fn func(ctx context.Context, p *profile.Profile, c *server.Components) error) error {
	p, err := a.loadProfile()
	if err != nil {
		return err
	}
	logger := a.logger(p)
	slog.SetDefault(logger)

	st, err := openStore(p)
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := server.NewComponents(p, st, logger, observability.DefaultMetrics())
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return fn(ctx, p, c)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the operator API",
		RunE: func(_ *cobra.Command, _ []string) error {
			p, err := a.loadProfile()
			if err != nil {
				return err
			}
			logger := a.logger(p)
			slog.SetDefault(logger)

			st, err := openStore(p)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			s, err := server.NewServer(ctx, p, st, logger)
			if err != nil {
				st.Close()
				return errors.Wrap(err, "failed to create server")
			}
			if err := s.Start(ctx); err != nil {
				st.Close()
				return errors.Wrap(err, "failed to start server")
			}
			printGreetings(a.out, p)

			<-ctx.Done()
			s.Shutdown(context.Background())
			return nil
		},
	}
}

func printGreetings(w io.Writer, p *profile.Profile) {
	fmt.Fprintf(w, "adpilot %s started successfully!\n", p.Version)
	fmt.Fprintf(w, "Data directory: %s\n", p.Data)
	fmt.Fprintf(w, "Database driver: %s\n", p.Driver)
	fmt.Fprintf(w, "Mode: %s\n", p.Mode)
	fmt.Fprintf(w, "Executor mode: %s\n", p.ExecutorMode)
	if len(p.Addr) == 0 {
		fmt.Fprintf(w, "Server running on port %d\n", p.Port)
	} else {
		fmt.Fprintf(w, "Server running on %s:%d\n", p.Addr, p.Port)
	}
}

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
