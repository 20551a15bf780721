package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"olxscout/internal/app"
	"olxscout/internal/extract"
	"olxscout/internal/search"
	"olxscout/internal/shared/config"
	"olxscout/internal/shared/logger"
	"olxscout/internal/shared/types"
)

var (
	configDir string
	cfg       *types.Config

	searchMarket  string
	searchFilters search.Filters
	searchJSON    bool
)

var rootCmd = &cobra.Command{
	Use:           "olxscout",
	Short:         "Search classified ads across OLX markets through a rotating proxy pool",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		iniPath := app.IniPath(configDir)

		// 1. 加载 .ini 配置
		loaded, err := config.LoadIni(iniPath)
		if err != nil {
			return fmt.Errorf("failed to load config file '%s': %w", iniPath, err)
		}
		cfg = loaded

		// 1.1 初始化日志系统
		if err := logger.Init(cfg.LogConf); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:     "search QUERY",
	Short:   "Run one search and print the listings",
	Example: "olxscout search rower --market pl --city 17935 --price-to 1500",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := app.New(cfg, configDir)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := s.Search(ctx, search.Request{Query: args[0], Market: searchMarket, Filters: searchFilters})
		if err != nil {
			return err
		}
		if searchJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		printListings(cmd.OutOrStdout(), res)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and websocket dashboard feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := app.New(cfg, configDir)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return s.Run(ctx)
	},
}

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Inspect the proxy pool",
}

var proxiesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print proxy pool statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := app.New(cfg, configDir)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), s.PoolStats())
	},
}

var proxiesCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe every proxy against the validation target",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := app.New(cfg, configDir)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROXY\tSTATUS\tLATENCY")
		for _, r := range s.ProbeProxies(ctx) {
			if r.OK() {
				fmt.Fprintf(w, "%s\tok\t%s\n", r.Proxy.ID, r.Latency.Round(time.Millisecond))
			} else {
				fmt.Fprintf(w, "%s\tfailed\t%v\n", r.Proxy.ID, r.Err)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
		st := s.PoolStats()
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d proxies available\n", st.Available, st.Total)
		return nil
	},
}

var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "List the configured markets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := app.New(cfg, configDir)
		if err != nil {
			return err
		}
		table := s.MarketTable()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tNAME\tCURRENCY\tURL")
		for _, key := range table.Keys() {
			m, _ := table.Lookup(key)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", key, m.Name, m.Currency, m.BaseURL)
		}
		return w.Flush()
	},
}

func printListings(out io.Writer, res *search.Result) {
	via := "proxy"
	if res.Direct {
		via = "direct"
	}
	fmt.Fprintf(out, "%d listings from %s (%d attempts, %s, %s)\n\n",
		len(res.Listings), res.Market, res.Attempts, via, res.Duration.Round(time.Millisecond))

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tPRICE\tLOCATION\tURL")
	for _, l := range res.Listings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Title, priceText(l), l.Location, l.URL)
	}
	w.Flush()
}

func priceText(l extract.Listing) string {
	if l.Price == nil {
		return "-"
	}
	return *l.Price
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "configdir", "configs", "Path to config directory")

	searchCmd.Flags().StringVar(&searchMarket, "market", "", "Market key (defaults to common.default_market)")
	searchCmd.Flags().StringVar(&searchFilters.Category, "category", "", "Category key")
	searchCmd.Flags().StringVar(&searchFilters.City, "city", "", "City identifier")
	searchCmd.Flags().StringVar(&searchFilters.PriceFrom, "price-from", "", "Minimum price")
	searchCmd.Flags().StringVar(&searchFilters.PriceTo, "price-to", "", "Maximum price")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print the result as JSON")

	proxiesCmd.AddCommand(proxiesStatsCmd, proxiesCheckCmd)
	rootCmd.AddCommand(searchCmd, serveCmd, proxiesCmd, marketsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if cfg != nil {
			logger.Error().Err(err).Msg("Command failed.")
		} else {
			// Use standard fmt before logger is initialized.
			fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		}
		os.Exit(1)
	}
}
