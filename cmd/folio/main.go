// folio — portfolio tracker over free market-data provider chains.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kestrelworks/folio/api"
	"github.com/kestrelworks/folio/internal/cache"
	"github.com/kestrelworks/folio/internal/config"
	"github.com/kestrelworks/folio/internal/llm"
	"github.com/kestrelworks/folio/internal/portfolio"
	"github.com/kestrelworks/folio/internal/source"
	"github.com/kestrelworks/folio/pkg/models"
	"github.com/kestrelworks/folio/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "folio — portfolio tracker with provider fallback and streamed analysis",
	Long: `folio tracks a portfolio of stocks and crypto. Every lookup runs
through an ordered chain of free market-data providers with a TTL cache
in front, so a dead or rate-limited provider degrades answers instead of
breaking them. Analysis is streamed from a fallback chain of language
models over whatever data the provider chains produced.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		levelOverride, _ := cmd.Flags().GetString("log-level")
		setupLogging(levelOverride)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./folio.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(compositeCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(statusCmd)
}

// setupLogging applies the configured level and format to the global logger.
func setupLogging(override string) {
	level := cfg.Logging.Level
	if override != "" {
		level = override
	}

	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	if cfg.Logging.Format != "json" {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// newMarket builds the cached provider chain executor from the config.
func newMarket() *source.Chain {
	store := cache.New(cfg.Cache.TTLs(), cfg.Cache.SweepInterval)
	registry := source.NewRegistry()
	return source.NewChain(store, registry.Chains(cfg.Chains.Lists()),
		source.WithMinBars(cfg.Chains.MinBars))
}

// newService wires the market chain, model chain, and portfolio store.
func newService() (*portfolio.Service, error) {
	analyst, err := llm.FromConfigs(cfg.LLM.Models)
	if err != nil && !errors.Is(err, llm.ErrNoProviders) {
		return nil, err
	}
	return portfolio.NewService(newMarket(), analyst, portfolio.NewMemoryStore(),
		portfolio.WithClassifyTimeout(cfg.LLM.ClassifyTimeout)), nil
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("folio %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		api.Version = version

		srv, err := api.NewServer(cfg)
		if err != nil {
			return err
		}

		addr := cfg.Server.Addr()
		fmt.Printf("🌐 Starting folio API server on %s\n", addr)
		return srv.ListenAndServe(addr)
	},
}

// --- Quote Command ---

var quoteCmd = &cobra.Command{
	Use:   "quote [symbol]",
	Short: "Fetch a live quote through the provider chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol := utils.NormalizeSymbol(args[0])
		crypto, _ := cmd.Flags().GetBool("crypto")

		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		snap, err := newMarket().Snapshot(ctx, models.Request{
			Symbol: symbol,
			Kind:   models.CapabilitySnapshot,
			Crypto: crypto,
		})
		if err != nil {
			return err
		}

		printSnapshot(snap)
		return nil
	},
}

func init() {
	quoteCmd.Flags().Bool("crypto", false, "treat the symbol as a crypto asset")
}

func printSnapshot(snap *models.Snapshot) {
	fmt.Printf("📈 %s  %s  %s (%s)\n",
		snap.Symbol,
		utils.FormatUSD(snap.Price),
		utils.FormatUSD(snap.Change()),
		utils.FormatPct(snap.ChangePct()))
	fmt.Printf("   Open %s  High %s  Low %s  Vol %s\n",
		utils.FormatUSD(snap.Open),
		utils.FormatUSD(snap.High),
		utils.FormatUSD(snap.Low),
		utils.FormatVolume(snap.Volume))

	delayed := ""
	if snap.Provenance.Delayed {
		delayed = ", delayed"
	}
	fmt.Printf("   Source: %s%s  %s\n",
		snap.Provenance.Provider, delayed,
		snap.Timestamp.Format("2006-01-02 15:04 MST"))
}

// --- Composite Command ---

var compositeCmd = &cobra.Command{
	Use:   "composite [symbol]",
	Short: "Fetch everything the chains know about a symbol",
	Long: `Fetch quote, history, news, and fundamentals for a symbol in one
shot. Capabilities whose entire chain failed are reported as missing
rather than failing the command.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol := utils.NormalizeSymbol(args[0])
		crypto, _ := cmd.Flags().GetBool("crypto")

		svc, err := newService()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		comp, err := svc.Composite(ctx, symbol, crypto)
		if err != nil {
			return err
		}

		printComposite(ctx, svc, comp)
		return nil
	},
}

func init() {
	compositeCmd.Flags().Bool("crypto", false, "treat the symbol as a crypto asset")
}

func printComposite(ctx context.Context, svc *portfolio.Service, comp *models.Composite) {
	fmt.Printf("═══ %s ═══\n\n", comp.Symbol)

	if comp.Snapshot != nil {
		printSnapshot(comp.Snapshot)
	} else {
		fmt.Println("📈 No quote available")
	}
	fmt.Println()

	if comp.Bars.Len() > 0 {
		first := comp.Bars.Bars[0]
		last := comp.Bars.Bars[len(comp.Bars.Bars)-1]
		fmt.Printf("📊 History: %d bars (%s → %s), pattern: %s\n",
			comp.Bars.Len(),
			utils.FormatDate(first.Timestamp),
			utils.FormatDate(last.Timestamp),
			svc.ClassifyPattern(ctx, comp.Bars))
	} else {
		fmt.Println("📊 No history available")
	}

	if comp.Sentiment != nil {
		fmt.Printf("🗞️  Sentiment: %s (score %.2f over %d articles)\n",
			comp.Sentiment.Label, comp.Sentiment.Score, comp.Sentiment.Articles)
	}
	if comp.News != nil && len(comp.News.Items) > 0 {
		for i, item := range comp.News.Items {
			if i == 5 {
				break
			}
			fmt.Printf("   • %s (%s)\n", item.Headline, item.Source)
		}
	} else {
		fmt.Println("🗞️  No news available")
	}

	if comp.Fundamentals != nil && !comp.Fundamentals.Empty() {
		fmt.Printf("🏛️  Dividend yield %.2f%%, %d filings on record\n",
			comp.Fundamentals.DividendYield, len(comp.Fundamentals.Filings))
	} else {
		fmt.Println("🏛️  No fundamentals available")
	}
}

// --- Analyze Command ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze [symbol]",
	Short: "Stream model-written analysis of a symbol",
	Long: `Build the full data composite for a symbol and stream a narrative
analysis from the configured model chain. Fragments print as they
arrive; the serving model is named at the end.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol := utils.NormalizeSymbol(args[0])
		crypto, _ := cmd.Flags().GetBool("crypto")

		svc, err := newService()
		if err != nil {
			return err
		}

		fmt.Printf("🔍 Analyzing %s…\n\n", symbol)

		chunks, err := svc.Analyze(cmd.Context(), symbol, crypto)
		if err != nil {
			if errors.Is(err, llm.ErrNoProviders) {
				return fmt.Errorf("no language models configured; set a model in folio.yaml or an API key env var")
			}
			return err
		}

		for chunk := range chunks {
			switch {
			case chunk.Err != nil:
				fmt.Println()
				return chunk.Err
			case chunk.Done:
				fmt.Printf("\n\n— %s/%s\n", chunk.Provider, chunk.Model)
			default:
				fmt.Print(chunk.Text)
			}
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().Bool("crypto", false, "treat the symbol as a crypto asset")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  folio — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Printf("  Market Status: %s\n", utils.MarketStatus())
		fmt.Printf("  Time (ET):     %s\n", utils.NowEastern().Format("2006-01-02 15:04 MST"))
		fmt.Println()

		// Config summary
		fmt.Println("  Configuration:")
		fmt.Printf("    API Server:    %s\n", cfg.Server.Addr())
		fmt.Printf("    Snapshot:      %s\n", strings.Join(cfg.Chains.Snapshot, " → "))
		fmt.Printf("    Bars:          %s\n", strings.Join(cfg.Chains.Bars, " → "))
		fmt.Printf("    News:          %s\n", strings.Join(cfg.Chains.News, " → "))
		fmt.Printf("    Fundamentals:  %s\n", strings.Join(cfg.Chains.Fundamentals, " → "))
		fmt.Println()

		// API keys status
		fmt.Println("  API Keys:")
		keys := config.CheckAPIKeys(cfg)
		if len(keys) == 0 {
			fmt.Println("    (no keyed model providers configured)")
		}
		for _, k := range keys {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}
		fmt.Println()

		// Model chain health
		fmt.Println("  Models:")
		analyst, err := llm.FromConfigs(cfg.LLM.Models)
		if err != nil {
			fmt.Println("    (none usable)")
			fmt.Println("═══════════════════════════════════════")
			return nil
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		health := analyst.HealthCheck(ctx)
		for _, name := range analyst.Names() {
			if pingErr := health[name]; pingErr != nil {
				fmt.Printf("    %-25s ❌ %v\n", name+":", pingErr)
			} else {
				fmt.Printf("    %-25s ✅ ok\n", name+":")
			}
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
