// Command kennisgraaf runs the knowledge extraction engine: an HTTP API
// server plus subcommands for ingesting documents and querying the
// knowledge graph from the terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jbekkers/kennisgraaf"
	"github.com/jbekkers/kennisgraaf/internal/server"
)

var version = "0.1.0"

func main() {
	// Optional .env for local development; a missing file is fine.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	rootCmd := &cobra.Command{
		Use:   "kennisgraaf",
		Short: "Knowledge extraction for Dutch government documents",
		Long: `Kennisgraaf extracts structured knowledge from Dutch government text.

It recognizes organizations, statutes, places, persons and projects,
aggregates them into a queryable knowledge graph with community detection
and path finding, ranks documents by signature similarity, and assesses
regulatory compliance (Woo, AVG, Archiefwet).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "path to YAML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(suggestCmd())
	rootCmd.AddCommand(assessCmd())
	rootCmd.AddCommand(documentsCmd())
	rootCmd.AddCommand(similarCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(graphCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the YAML config named by --config and applies the
// KENNISGRAAF_* environment overrides on top.
func loadConfig(cmd *cobra.Command) (kennisgraaf.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := kennisgraaf.LoadConfig(path)
	if err != nil {
		return cfg, err
	}

	if v := os.Getenv("KENNISGRAAF_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("KENNISGRAAF_DB_NAME"); v != "" {
		cfg.DBName = v
	}
	if v := os.Getenv("KENNISGRAAF_STORAGE_DIR"); v != "" {
		cfg.StorageDir = v
	}
	if v := os.Getenv("KENNISGRAAF_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if os.Getenv("KENNISGRAAF_IN_MEMORY") == "true" {
		cfg.InMemory = true
	}
	return cfg, nil
}

func openEngine(cmd *cobra.Command) (kennisgraaf.Engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return kennisgraaf.New(cfg)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.ListenAddr = addr
			}

			eng, err := kennisgraaf.New(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			srv := server.New(eng, server.Config{
				Addr:        cfg.ListenAddr,
				APIKey:      os.Getenv("KENNISGRAAF_API_KEY"),
				CORSOrigins: splitList(os.Getenv("KENNISGRAAF_CORS_ORIGINS")),
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Start(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides config)")
	return cmd
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file|dir> [...]",
		Short: "Ingest document files into the knowledge graph",
		Long: `Ingest document files and store their metadata suggestions.

Directories are walked recursively; supported formats are txt, md, pdf
and xlsx. Re-ingesting a file replaces its earlier contributions.

Example:
  kennisgraaf ingest besluiten/ convenant.txt --domain zaak`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain, _ := cmd.Flags().GetString("domain")
			objectType, _ := cmd.Flags().GetString("object-type")

			eng, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			paths, err := collectFiles(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no files found under %s", strings.Join(args, ", "))
			}

			failed := 0
			for _, path := range paths {
				sug, err := eng.SuggestFile(cmd.Context(), path,
					kennisgraaf.WithDomain(domain),
					kennisgraaf.WithObjectType(objectType),
				)
				if err != nil {
					failed++
					fmt.Fprintf(os.Stderr, "  FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Printf("  OK   %s: %d mentions, %s, %s\n",
					path, len(sug.Mentions),
					sug.Compliance.Classification, sug.Compliance.Disclosure)
			}

			stats := eng.GraphStats()
			fmt.Printf("\nIngested %d/%d documents. Graph: %d nodes, %d edges.\n",
				len(paths)-failed, len(paths), stats.Nodes, stats.Edges)
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(paths))
			}
			return nil
		},
	}
	cmd.Flags().String("domain", "", "document domain (zaak, project, beleid, expertise)")
	cmd.Flags().String("object-type", "", "document object type (besluit, document, email, ...)")
	return cmd
}

// collectFiles expands the arguments into a flat file list, walking
// directories recursively and skipping hidden entries.
func collectFiles(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}
	return paths, nil
}

func suggestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest <file>",
		Short: "Suggest metadata for one document file",
		Long: `Run the full pipeline for one file and print the suggestion as JSON:
entity mentions, similar documents, compliance assessment, tags and
subject area. The document is ingested into the graph as a side effect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			domain, _ := cmd.Flags().GetString("domain")
			objectType, _ := cmd.Flags().GetString("object-type")

			eng, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			sug, err := eng.SuggestFile(cmd.Context(), args[0],
				kennisgraaf.WithDocumentID(id),
				kennisgraaf.WithDomain(domain),
				kennisgraaf.WithObjectType(objectType),
			)
			if err != nil {
				return err
			}
			return printJSON(sug)
		},
	}
	cmd.Flags().String("id", "", "document id (defaults to the file name)")
	cmd.Flags().String("domain", "", "document domain")
	cmd.Flags().String("object-type", "", "document object type")
	return cmd
}

func assessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess [file]",
		Short: "Assess compliance without ingesting",
		Long: `Run a compliance assessment over a file or --text and print the
result as JSON. The graph and the index are not mutated.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, _ := cmd.Flags().GetString("text")
			domain, _ := cmd.Flags().GetString("domain")
			objectType, _ := cmd.Flags().GetString("object-type")

			documentID := "stdin"
			if len(args) == 1 {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("reading %s: %w", args[0], err)
				}
				text = string(data)
				base := filepath.Base(args[0])
				documentID = strings.TrimSuffix(base, filepath.Ext(base))
			}
			if text == "" {
				return fmt.Errorf("either a file argument or --text is required")
			}

			eng, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.Assess(cmd.Context(), documentID, text,
				kennisgraaf.WithDomain(domain),
				kennisgraaf.WithObjectType(objectType),
			)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().String("text", "", "assess this text instead of a file")
	cmd.Flags().String("domain", "", "document domain")
	cmd.Flags().String("object-type", "", "document object type")
	return cmd
}

func documentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List or remove known documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			docs, err := eng.Documents(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(docs)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <document-id>",
		Short: "Remove a document and its graph contributions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func similarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similar <document-id>",
		Short: "Rank documents by signature similarity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topK, _ := cmd.Flags().GetInt("k")

			eng, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			matches, err := eng.Similar(args[0], topK)
			if err != nil {
				return err
			}
			return printJSON(matches)
		},
	}
	cmd.Flags().Int("k", 5, "number of results")
	return cmd
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Hybrid search over stored documents",
		Long: `Search stored documents by fusing signature similarity with full-text
match. Requires persistence (not available with in_memory: true).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			eng, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			hits, err := eng.Search(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(hits)
		},
	}
	cmd.Flags().Int("limit", 10, "maximum number of results")
	return cmd
}

func graphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Query the knowledge graph",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show graph size and density",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()
			return printJSON(eng.GraphStats())
		},
	})

	communities := &cobra.Command{
		Use:   "communities",
		Short: "Detect entity communities",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolution, _ := cmd.Flags().GetFloat64("resolution")

			eng, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.Communities(cmd.Context(), resolution)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	communities.Flags().Float64("resolution", 0, "detection resolution, higher favors smaller communities (0 uses the configured default)")
	cmd.AddCommand(communities)

	neighbors := &cobra.Command{
		Use:   "neighbors <node-id>",
		Short: "List the nodes adjacent to a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, _ := cmd.Flags().GetStringSlice("kind")

			eng, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.Neighbors(args[0], kinds...)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	neighbors.Flags().StringSlice("kind", nil, "restrict to these relation kinds (co_occurrence, explicit_reference, hierarchical)")
	cmd.AddCommand(neighbors)

	path := &cobra.Command{
		Use:   "path <from-node-id> <to-node-id>",
		Short: "Find a shortest path between two nodes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			maxHops, _ := cmd.Flags().GetInt("max-hops")

			eng, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			result, err := eng.Path(args[0], args[1], maxHops)
			if err != nil {
				return err
			}
			if result == nil {
				fmt.Printf("No path within %d hops.\n", maxHops)
				return nil
			}
			return printJSON(result)
		},
	}
	path.Flags().Int("max-hops", 6, "maximum path length in edges")
	cmd.AddCommand(path)

	return cmd
}
