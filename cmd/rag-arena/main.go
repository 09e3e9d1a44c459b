// Command rag-arena compares retrieval providers side by side. It loads
// a YAML configuration naming the providers, fans queries out to them,
// and optionally asks an LLM judge for a verdict.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/rag-arena/infrastructure/evaluator"
	"github.com/ahrav/rag-arena/infrastructure/metrics"
	"github.com/ahrav/rag-arena/infrastructure/providers"
	"github.com/ahrav/rag-arena/infrastructure/runstore"
	"github.com/ahrav/rag-arena/internal/application"
	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/logger"
	"github.com/ahrav/rag-arena/internal/ports"
)

const usage = `rag-arena compares RAG retrieval providers.

Usage:
  rag-arena <command> [flags]

Commands:
  query     Run one query against a single provider
  compare   Fan one query out to several providers
  batch     Compare a file of queries, one per line
  run       Execute a query set as a persisted benchmark run
  validate  Check a configuration without calling any provider
  adapters  List the built-in adapter types

Run "rag-arena <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Missing .env files are fine; secrets may already be exported.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rag-arena: %v\n", err)
		os.Exit(1)
	}
	defer app.close()

	if err := app.dispatch(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "rag-arena: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired infrastructure behind the subcommands.
type app struct {
	registry *providers.Registry
	log      *zap.Logger
}

func newApp() (*app, error) {
	env := os.Getenv("RAG_ARENA_ENV")
	log, err := logger.New(env, os.Getenv("RAG_ARENA_LOG_LEVEL"))
	if err != nil {
		return nil, err
	}

	registry := providers.NewRegistry()
	if err := providers.RegisterBuiltins(registry); err != nil {
		return nil, fmt.Errorf("register adapters: %w", err)
	}
	return &app{registry: registry, log: log}, nil
}

func (a *app) close() { _ = a.log.Sync() }

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "query":
		return a.cmdQuery(ctx, args)
	case "compare":
		return a.cmdCompare(ctx, args)
	case "batch":
		return a.cmdBatch(ctx, args)
	case "run":
		return a.cmdRun(ctx, args)
	case "validate":
		return a.cmdValidate(args)
	case "adapters":
		return a.cmdAdapters()
	case "-h", "--help", "help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// api assembles the application façade over one loaded configuration.
func (a *app) api(store ports.RunStore) *application.API {
	collector := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	factory := providers.NewFactory(a.registry,
		providers.WithMetrics(collector),
		providers.WithTracing())

	return application.NewAPI(a.registry, factory,
		application.WithAPIRunStore(store),
		application.WithAPIMetrics(collector),
		application.WithAPILogger(a.log),
		application.WithAPIEvaluatorFactory(func(cfg application.LLMConfig, apiKey string) (ports.Evaluator, error) {
			client, err := evaluator.NewClient(evaluator.ClientConfig{
				Vendor: cfg.Vendor,
				Model:  cfg.Model,
				APIKey: apiKey,
			})
			if err != nil {
				return nil, err
			}
			return evaluator.NewJudge(client, evaluator.JudgeConfig{
				Temperature: cfg.Temperature,
			})
		}))
}

func (a *app) loadConfig(path string) (*application.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}
	doc, err := application.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	// Secrets come from the process environment, filled by godotenv.
	return application.NewConfig(doc, nil, a.registry), nil
}

func (a *app) cmdQuery(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "rag-arena.yaml", "Configuration file")
	provider := fs.String("provider", "", "Configured provider name (required)")
	text := fs.String("q", "", "Query text (required)")
	topK := fs.Int("top-k", 5, "Chunks to retrieve")
	fs.Parse(args)

	if *provider == "" || *text == "" {
		return fmt.Errorf("query requires -provider and -q")
	}
	cfg, err := a.loadConfig(*configPath)
	if err != nil {
		return err
	}

	chunks, err := a.api(nil).Query(ctx, cfg, *text, *provider, *topK)
	if err != nil {
		return err
	}
	return printJSON(chunks)
}

func (a *app) cmdCompare(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	configPath := fs.String("config", "rag-arena.yaml", "Configuration file")
	text := fs.String("q", "", "Query text (required)")
	names := fs.String("providers", "", "Comma-separated provider names (default: all configured)")
	topK := fs.Int("top-k", 5, "Chunks to retrieve per provider")
	sequential := fs.Bool("sequential", false, "Query providers one at a time")
	evaluate := fs.Bool("evaluate", false, "Ask the configured LLM judge for a verdict")
	diff := fs.Bool("diff", false, "Append a pairwise overlap report")
	fs.Parse(args)

	if *text == "" {
		return fmt.Errorf("compare requires -q")
	}
	cfg, err := a.loadConfig(*configPath)
	if err != nil {
		return err
	}

	result, err := a.api(nil).Compare(ctx, cfg, *text, splitNames(*names), *topK, !*sequential, *evaluate)
	if err != nil {
		if result == nil {
			return err
		}
		// The comparison itself is valid; only the verdict is missing.
		a.log.Warn("evaluation failed", zap.Error(err))
	}

	encoded, err := domain.EncodeComparison(result)
	if err != nil {
		return err
	}
	fmt.Println(encoded)

	if *diff {
		return printJSON(application.Diff(result, 0))
	}
	return nil
}

func (a *app) cmdBatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	configPath := fs.String("config", "rag-arena.yaml", "Configuration file")
	queriesPath := fs.String("queries", "", "File with one query per line (required)")
	names := fs.String("providers", "", "Comma-separated provider names (default: all configured)")
	topK := fs.Int("top-k", 5, "Chunks to retrieve per provider")
	sequential := fs.Bool("sequential", false, "Query providers one at a time")
	evaluate := fs.Bool("evaluate", false, "Ask the configured LLM judge for a verdict")
	fs.Parse(args)

	if *queriesPath == "" {
		return fmt.Errorf("batch requires -queries")
	}
	queries, err := readQueries(*queriesPath)
	if err != nil {
		return err
	}
	cfg, err := a.loadConfig(*configPath)
	if err != nil {
		return err
	}

	results, err := a.api(nil).RunBatch(ctx, cfg, queries, splitNames(*names), *topK, !*sequential, *evaluate)
	if err != nil {
		return err
	}
	for _, result := range results {
		encoded, err := domain.EncodeComparison(result)
		if err != nil {
			return err
		}
		fmt.Println(encoded)
	}
	return nil
}

func (a *app) cmdRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "rag-arena.yaml", "Configuration file")
	provider := fs.String("provider", "", "Configured provider name (required)")
	querySetPath := fs.String("query-set", "", "Query set YAML file (required)")
	label := fs.String("label", "default", "Run label")
	topK := fs.Int("top-k", 5, "Chunks to retrieve per query")
	parallel := fs.Bool("parallel", false, "Execute queries on a worker pool")
	concurrency := fs.Int("concurrency", application.DefaultConcurrency, "Worker pool size in parallel mode")
	storeKind := fs.String("store", "fs", "Run store: fs, redis or memory")
	storeDir := fs.String("store-dir", ".rag-arena/runs", "Directory for the fs store")
	redisAddr := fs.String("redis-addr", "localhost:6379", "Address for the redis store")
	fs.Parse(args)

	if *provider == "" || *querySetPath == "" {
		return fmt.Errorf("run requires -provider and -query-set")
	}
	querySet, err := readQuerySet(*querySetPath)
	if err != nil {
		return err
	}
	cfg, err := a.loadConfig(*configPath)
	if err != nil {
		return err
	}
	store, err := openStore(*storeKind, *storeDir, *redisAddr)
	if err != nil {
		return err
	}

	run, err := a.api(store).Execute(ctx, cfg, application.ExecuteParams{
		Domain:      querySet.Domain,
		Label:       *label,
		QuerySet:    querySet,
		TopK:        *topK,
		Parallel:    *parallel,
		Concurrency: *concurrency,
	}, *provider)
	if err != nil {
		return err
	}

	encoded, err := domain.EncodeRun(run)
	if err != nil {
		return err
	}
	fmt.Println(encoded)
	return nil
}

func (a *app) cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "rag-arena.yaml", "Configuration file")
	fs.Parse(args)

	cfg, err := a.loadConfig(*configPath)
	if err != nil {
		return err
	}

	report := a.api(nil).ValidateConfig(cfg)
	if err := printJSON(report); err != nil {
		return err
	}
	if !report.Valid {
		return fmt.Errorf("configuration is not valid")
	}
	return nil
}

func (a *app) cmdAdapters() error {
	return printJSON(a.api(nil).AvailableAdapters())
}

func openStore(kind, dir, redisAddr string) (ports.RunStore, error) {
	switch kind {
	case "fs":
		return runstore.NewFSStore(dir)
	case "redis":
		return runstore.NewRedisStore(runstore.RedisConfig{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
	case "memory":
		return runstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown run store %q", kind)
	}
}

func readQuerySet(path string) (domain.QuerySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.QuerySet{}, fmt.Errorf("read query set: %w", err)
	}
	var qs domain.QuerySet
	if err := yaml.Unmarshal(data, &qs); err != nil {
		return domain.QuerySet{}, fmt.Errorf("parse query set: %w", err)
	}
	if len(qs.Queries) == 0 {
		return domain.QuerySet{}, fmt.Errorf("query set %s declares no queries", path)
	}
	return qs, nil
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open queries: %w", err)
	}
	defer f.Close()

	var queries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no queries in %s", path)
	}
	return queries, nil
}

func splitNames(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
