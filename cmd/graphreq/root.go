package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/djskncxm/graphreq/internal/setting"
	"github.com/djskncxm/graphreq/pkg/graph"
	"github.com/djskncxm/graphreq/pkg/httpc"
)

type options struct {
	configPath string
	fields     []string
	isWeb      bool
	showStats  bool
	logLevel   string
	waitFor    time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "graphreq",
		Short: "Fire one request at a Graph-style API and print the result",
		Long: `graphreq sends a single GET, POST or DELETE request through the async
request engine and prints the delivered result. DELETE is sent as a POST
carrying method=delete.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVar(&opts.isWeb, "web", false, "behave as a browser-hosted build (no User-Agent)")
	rootCmd.PersistentFlags().BoolVar(&opts.showStats, "stats", false, "print engine stats after the request")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().DurationVar(&opts.waitFor, "wait", 60*time.Second, "how long to wait for delivery")

	for _, m := range []httpc.Method{httpc.MethodGet, httpc.MethodPost, httpc.MethodDelete} {
		rootCmd.AddCommand(newMethodCmd(opts, m))
	}
	rootCmd.AddCommand(newConfigCmd(opts))
	return rootCmd
}

func newMethodCmd(opts *options, method httpc.Method) *cobra.Command {
	cmd := &cobra.Command{
		Use:   strings.ToLower(string(method)) + " <url>",
		Short: fmt.Sprintf("Send a %s request", method),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd.OutOrStdout(), opts, method, args[0])
		},
	}
	cmd.Flags().StringArrayVarP(&opts.fields, "field", "f", nil, "form field as key=value (repeatable)")
	return cmd
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			sm := setting.NewSettingsManager()
			sm.LoadFromSetting(cfg)

			keys := make([]string, 0, len(sm.Settings))
			for k := range sm.Settings {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header([]string{"key", "value"})
			for _, k := range keys {
				v, _ := sm.GetSetting(k)
				if err := table.Append([]string{k, v}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
}

func loadConfig(opts *options) (*setting.Setting, error) {
	cfg := setting.Default()
	if opts.configPath != "" {
		loaded, err := setting.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.isWeb {
		cfg.Client.IsWeb = true
	}
	return cfg, nil
}

func parseFields(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	form := make(map[string]string, len(raw))
	for _, f := range raw {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, expected key=value", f)
		}
		form[key] = value
	}
	return form, nil
}

func runRequest(out io.Writer, opts *options, method httpc.Method, url string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	form, err := parseFields(opts.fields)
	if err != nil {
		return err
	}

	client, err := graph.New(cfg)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		client.SetLogLevel(opts.logLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.waitFor)
	defer cancel()
	if err := client.Start(ctx); err != nil {
		return err
	}

	task, err := client.Request(url, method, form, func(res *httpc.Result) {
		printResult(out, res)
	})
	if err != nil {
		_ = client.Shutdown(ctx)
		return err
	}

	_, waitErr := task.Wait(ctx)
	if err := client.Shutdown(ctx); err != nil && waitErr == nil {
		waitErr = err
	}
	if opts.showStats {
		if err := client.Stats().WriteTable(out); err != nil {
			return err
		}
	}
	return waitErr
}

func printResult(out io.Writer, res *httpc.Result) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	if res.OK() {
		fmt.Fprintf(out, "%s %s %s\n", green("✓"), bold(res.Status), res.Duration.Round(time.Millisecond))
	} else {
		fmt.Fprintf(out, "%s %s\n", red("✗"), res.Error())
	}
	if len(res.Body) > 0 {
		fmt.Fprintln(out, res.Text())
	}
}
