package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mercator-hq/sentinel/pkg/cli"
	"mercator-hq/sentinel/pkg/config"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration",
	Long: `Load the configuration, apply defaults and environment overrides, and
report every validation error. On success the effective limits are printed.

Examples:
  sentinel validate --config sentinel.yaml
  sentinel validate --config sentinel.yaml --format json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// effectiveConfig is the summary printed by validate.
type effectiveConfig struct {
	MaxPerMinute     int    `json:"max_per_minute"`
	MaxTokensPerDay  int64  `json:"max_tokens_per_day"`
	FailureThreshold int    `json:"failure_threshold"`
	ResetTimeout     string `json:"reset_timeout"`
	MaxJobs          int    `json:"max_jobs"`
	Store            string `json:"store"`
	SweepSchedule    string `json:"sweep_schedule,omitempty"`
	AdminAddress     string `json:"admin_address,omitempty"`
}

func summarize(cfg *config.Config) effectiveConfig {
	s := effectiveConfig{
		MaxPerMinute:     cfg.Limits.RateLimit.MaxPerMinute,
		MaxTokensPerDay:  cfg.Limits.Budget.MaxTokensPerDay,
		FailureThreshold: cfg.Limits.Circuit.FailureThreshold,
		ResetTimeout:     cfg.Limits.Circuit.ResetTimeout.String(),
		MaxJobs:          cfg.Jobs.MaxJobs,
		Store:            cfg.Store.Backend,
		SweepSchedule:    cfg.Limits.Sweep.Schedule,
	}
	if cfg.Admin.IsEnabled() {
		s.AdminAddress = cfg.Admin.ListenAddress
	}
	return s
}

func (s effectiveConfig) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "✓ Configuration valid")
	fmt.Fprintf(tw, "rate limit:\t%d/min\n", s.MaxPerMinute)
	fmt.Fprintf(tw, "daily budget:\t%d tokens\n", s.MaxTokensPerDay)
	fmt.Fprintf(tw, "circuit:\t%d failures, reset after %s\n", s.FailureThreshold, s.ResetTimeout)
	fmt.Fprintf(tw, "jobs:\t%d retained\n", s.MaxJobs)
	fmt.Fprintf(tw, "store:\t%s\n", s.Store)
	if s.SweepSchedule != "" {
		fmt.Fprintf(tw, "sweep:\t%s\n", s.SweepSchedule)
	}
	if s.AdminAddress != "" {
		fmt.Fprintf(tw, "admin:\t%s\n", s.AdminAddress)
	}
	return tw.Flush()
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(validateFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), summarize(cfg))
}
