package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"mercator-hq/sentinel/pkg/cli"
	"mercator-hq/sentinel/pkg/jobs"
	"mercator-hq/sentinel/pkg/limits/budget"
	"mercator-hq/sentinel/pkg/limits/circuit"
)

var statusFlags struct {
	addr    string
	format  string
	timeout time.Duration
	noColor bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show budget, circuits and jobs of a running instance",
	Long: `Query the admin API of a running sentinel and print today's budget,
the circuit breakers and job counts.

Examples:
  sentinel status
  sentinel status --addr 10.0.0.5:9090 --format json`,
	RunE: showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusFlags.addr, "addr", "127.0.0.1:9090", "admin API address")
	statusCmd.Flags().StringVar(&statusFlags.format, "format", "text", "output format: text, json")
	statusCmd.Flags().DurationVar(&statusFlags.timeout, "timeout", 5*time.Second, "request timeout")
	statusCmd.Flags().BoolVar(&statusFlags.noColor, "no-color", false, "disable colored text output")
}

// statusReport combines the admin API views.
type statusReport struct {
	Budget   budget.Status       `json:"budget"`
	Circuits circuit.Stats       `json:"circuits"`
	Jobs     map[jobs.Status]int `json:"jobs"`

	noColor bool
}

var (
	headerColor = lipgloss.Color("33")
	mutedColor  = lipgloss.Color("244")
)

func stylize(text string, noColor bool, color lipgloss.Color) string {
	if noColor {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}

func circuitColor(state circuit.State) lipgloss.Color {
	switch state {
	case circuit.StateOpen:
		return lipgloss.Color("196")
	case circuit.StateHalfOpen:
		return lipgloss.Color("220")
	default:
		return lipgloss.Color("42")
	}
}

func (r statusReport) RenderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, stylize("Budget ("+r.Budget.Date+")", r.noColor, headerColor))
	if r.Budget.Limit > 0 {
		fmt.Fprintf(tw, "  consumed:\t%d / %d\n", r.Budget.Consumed, r.Budget.Limit)
	} else {
		fmt.Fprintf(tw, "  consumed:\t%d (unlimited)\n", r.Budget.Consumed)
	}
	fmt.Fprintf(tw, "  outstanding:\t%d\n", r.Budget.Outstanding)
	if r.Budget.AlertTriggered {
		fmt.Fprintf(tw, "  %s\n", stylize("alert threshold reached", r.noColor, circuitColor(circuit.StateHalfOpen)))
	}

	fmt.Fprintln(tw, stylize("Circuits", r.noColor, headerColor))
	fmt.Fprintf(tw, "  open:\t%d\n", r.Circuits.Open)
	fmt.Fprintf(tw, "  half-open:\t%d\n", r.Circuits.HalfOpen)
	for _, e := range r.Circuits.Entries {
		if e.State == circuit.StateClosed {
			continue
		}
		// State goes last so color codes do not shift the columns.
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", e.Key, stylize(e.LastError, r.noColor, mutedColor),
			stylize(string(e.State), r.noColor, circuitColor(e.State)))
	}

	fmt.Fprintln(tw, stylize("Jobs", r.noColor, headerColor))
	for _, st := range jobs.Statuses {
		fmt.Fprintf(tw, "  %s:\t%d\n", st, r.Jobs[st])
	}
	return tw.Flush()
}

func showStatus(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(statusFlags.format)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), statusFlags.timeout)
	defer cancel()

	report, err := fetchStatus(ctx, http.DefaultClient, baseURL(statusFlags.addr))
	if err != nil {
		return cli.NewCommandError("status", err)
	}
	report.noColor = statusFlags.noColor
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report)
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	return "http://" + addr
}

func fetchStatus(ctx context.Context, client *http.Client, base string) (statusReport, error) {
	var report statusReport

	if err := getJSON(ctx, client, base+"/v1/budget", &report.Budget); err != nil {
		return report, err
	}
	if err := getJSON(ctx, client, base+"/v1/circuits", &report.Circuits); err != nil {
		return report, err
	}

	var list []jobs.Summary
	if err := getJSON(ctx, client, base+"/v1/jobs", &list); err != nil {
		return report, err
	}
	report.Jobs = make(map[jobs.Status]int, len(jobs.Statuses))
	for _, j := range list {
		report.Jobs[j.Status]++
	}
	return report, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("request %s: %s: %s", url, resp.Status, body.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
