package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/ZennPost/internal/account"
	"github.com/TobiSchelling/ZennPost/internal/collect"
	"github.com/TobiSchelling/ZennPost/internal/config"
	"github.com/TobiSchelling/ZennPost/internal/logging"
	"github.com/TobiSchelling/ZennPost/internal/metrics"
	"github.com/TobiSchelling/ZennPost/internal/pipeline"
	"github.com/TobiSchelling/ZennPost/internal/popular"
	"github.com/TobiSchelling/ZennPost/internal/prompt"
	"github.com/TobiSchelling/ZennPost/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", pipeline.UserMessage(err))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "zennpost",
	Short:         "Social posts from popular Zenn articles",
	Long:          "ZennPost picks popular articles from a Zenn account and drafts a social-media post about them.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Setup("INFO", verbose)

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		config.LoadEnv()
		var path string
		var err error
		cfg, path, err = config.LoadOrDefault(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logging.Setup(cfg.Logging.Level, verbose)
		if path == "" {
			log.Debug().Msg("No config file found, using built-in defaults")
		} else {
			log.Debug().Str("path", path).Msg("Loaded config")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(articlesCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("zennpost", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/zennpost/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to pick the LLM provider, and put your API key in the environment or a .env file.")
		return nil
	},
}

var (
	limit    int
	seed     int64
	tone     string
	template string
	stream   bool
)

func seedFlag(cmd *cobra.Command) *int64 {
	if !cmd.Flags().Changed("seed") {
		return nil
	}
	s := seed
	return &s
}

var articlesCmd = &cobra.Command{
	Use:   "articles <account>",
	Short: "List the articles a post would feature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := account.Resolve(args[0])
		if err != nil {
			return err
		}

		fetcher := collect.NewFetcher(collect.Options{
			BaseURL:   cfg.Zenn.BaseURL,
			Timeout:   cfg.Zenn.Timeout,
			UserAgent: cfg.Zenn.UserAgent,
		})
		articles, err := fetcher.FetchArticles(cmd.Context(), ref)
		if err != nil {
			return err
		}

		n := limit
		if n <= 0 {
			n = cfg.Selection.Limit
		}
		selection := popular.Select(articles, n, seedFlag(cmd))

		fmt.Printf("%s (%s): %d articles, featuring %d\n\n", ref.Identifier, ref.Kind, len(articles), len(selection))
		for i, a := range selection {
			fmt.Printf("  %d. %s\n     %s  %s\n", i+1, a.Title, a.PublishedDate(), a.URL)
		}
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <account>",
	Short: "Generate a post for an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := pipeline.Input{
			Account:  args[0],
			Limit:    limit,
			Seed:     seedFlag(cmd),
			Template: template,
		}
		if tone != "" {
			t, err := prompt.ParseTone(tone)
			if err != nil {
				return err
			}
			in.Tone = &t
		}

		p := pipeline.NewFromConfig(cmd.Context(), cfg)

		if stream {
			prep, s, err := p.RunStreaming(cmd.Context(), in)
			if err != nil {
				return err
			}
			defer s.Close()
			for s.Next() {
				fmt.Print(s.Text())
			}
			fmt.Println()
			if err := s.Err(); err != nil {
				return err
			}
			printSteps(prep.Steps)
			return nil
		}

		res, err := p.Run(cmd.Context(), in)
		if err != nil {
			return err
		}
		fmt.Println(res.Post)
		printSteps(res.Steps)
		return nil
	},
}

func printSteps(steps []pipeline.StepResult) {
	if !verbose {
		return
	}
	fmt.Fprintln(os.Stderr)
	for i, step := range steps {
		fmt.Fprintf(os.Stderr, "Step %d/%d: %s\n", i+1, len(steps), step.Name)
		if step.Err != nil {
			fmt.Fprintf(os.Stderr, "  Error: %v\n", step.Err)
		} else {
			fmt.Fprintf(os.Stderr, "  %s\n", step.Summary)
		}
	}
}

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.MustRegister(reg)

		p := pipeline.NewFromConfig(cmd.Context(), cfg)
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		err := server.Serve(cmd.Context(), p, reg, port)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	for _, cmd := range []*cobra.Command{articlesCmd, generateCmd} {
		cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of articles to feature (default from config)")
		cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for a reproducible selection")
	}
	generateCmd.Flags().StringVarP(&tone, "tone", "t", "", "personal or organization (default: match the account)")
	generateCmd.Flags().StringVar(&template, "template", "", "Text prepended to the post; {url} becomes the featured article's URL")
	generateCmd.Flags().BoolVarP(&stream, "stream", "s", false, "Print the post while it is generated")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}
