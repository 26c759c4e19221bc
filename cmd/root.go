package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/medisim/internal/config"
	"github.com/abhisek/medisim/internal/intent"
	"github.com/abhisek/medisim/internal/llm"
	"github.com/abhisek/medisim/internal/logger"
	"github.com/abhisek/medisim/internal/reveal"
	"github.com/abhisek/medisim/internal/session"
	"github.com/abhisek/medisim/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "medisim",
	Short: "Simulated patient encounters for clinical training",
	Long: "MediSim runs scripted patient encounters: interview the patient, order tests,\n" +
		"submit a diagnosis and get scored against the case rubric.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlay(cmd, "", "")
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "SQLite path or postgres:// DSN (overrides MEDISIM_DB and the config file)")
	rootCmd.PersistentFlags().String("config", "", "Path to a medisim.yaml config file")

	rootCmd.AddCommand(caseCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveDBPath returns the database location using --db (highest
// priority), then the config file and MEDISIM_DB, then the default XDG path.
func resolveDBPath(cmd *cobra.Command, cfg *config.Config) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if cfg != nil && cfg.DB != "" {
		return cfg.DB, store.EnsureDir(cfg.DB)
	}
	return store.DefaultDBPath()
}

// env bundles what most commands need. Close releases it.
type env struct {
	cfg   *config.Config
	store *store.Store
	log   *logger.Logger
}

// openEnv loads configuration, opens the store and builds a logger. When
// quiet is set, logs go only to the configured log file.
func openEnv(cmd *cobra.Command, quiet bool) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	var log *logger.Logger
	switch {
	case cfg.LogFile != "":
		log, err = logger.New(cfg.LogMode, cfg.LogFile)
	case quiet:
		log = logger.Nop()
	default:
		log, err = logger.New(cfg.LogMode)
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	dbPath, err := resolveDBPath(cmd, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &env{cfg: cfg, store: st, log: log}, nil
}

func (e *env) Close() {
	e.log.Sync()
	e.store.Close()
}

// service builds the session service with the classifier and resolver the
// config selects. A provider is only created when one of them needs it.
func (e *env) service(ctx context.Context) (*session.Service, error) {
	table, err := e.keywordTable()
	if err != nil {
		return nil, err
	}

	opts := session.Options{
		Classifier: intent.NewKeywordClassifier(table),
		Resolver:   reveal.RuleBased{},
		CaseTTL:    e.cfg.CaseCacheTTL,
		Logger:     e.log,
	}

	if e.cfg.NeedsLLM() {
		pc, err := e.cfg.ProviderConfig()
		if err != nil {
			return nil, fmt.Errorf("LLM provider: %w", err)
		}
		provider, err := llm.NewProvider(ctx, pc, e.store.EventRepo(), e.log)
		if err != nil {
			return nil, err
		}
		if e.cfg.Classifier == config.ClassifierLLM {
			opts.Classifier = intent.NewProviderClassifier(provider, table, pc.Timeout, e.log)
		}
		if e.cfg.Resolver == config.ResolverLLM {
			opts.Resolver = reveal.NewProviderBacked(provider, pc.Timeout, e.log)
		}
		e.log.Info("LLM provider ready", "provider", pc.Provider, "resolver", e.cfg.Resolver, "classifier", e.cfg.Classifier)
	}

	return session.NewService(e.store.CaseRepo(), e.store.RunRepo(), opts), nil
}

func (e *env) keywordTable() (intent.KeywordTable, error) {
	if e.cfg.KeywordsFile == "" {
		return intent.DefaultKeywordTable(), nil
	}
	f, err := os.Open(e.cfg.KeywordsFile)
	if err != nil {
		return intent.KeywordTable{}, fmt.Errorf("open keywords file: %w", err)
	}
	defer f.Close()

	table, err := intent.LoadKeywordTable(f)
	if err != nil {
		return intent.KeywordTable{}, fmt.Errorf("load keywords file %s: %w", e.cfg.KeywordsFile, err)
	}
	return table, nil
}
