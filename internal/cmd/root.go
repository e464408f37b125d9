// Package cmd wires the command-line interface for the rlm binary.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	charmlog "charm.land/log/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rand/rlm/internal/agent"
	"github.com/rand/rlm/internal/budget"
	"github.com/rand/rlm/internal/config"
	"github.com/rand/rlm/internal/llm"
	"github.com/rand/rlm/internal/rlm"
	"github.com/rand/rlm/internal/trajectory"
)

type rootFlags struct {
	contextFile string
	contextDir  string
	rootModel   string
	subModel    string
	maxIters    int
	variant     string
	noSubcalls  bool
	maxCost     float64
	storePath   string
	workspace   string
	jsonOut     bool
	quiet       bool
	verbose     bool
	logFile     string
}

// NewRootCmd builds the root command.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "rlm [query...]",
		Short: "Answer queries over contexts too large for a model window",
		Long: `rlm drives a root model through an iterative loop over a context held
in a sandboxed scripting environment. The model explores the context with
code instead of reading it from its prompt, issuing sub-queries to a
cheaper model tier where summarization helps.

The context is read from --context-file, --context-dir (one chunk per
file), or stdin when piped.`,
		Example: `
# Ask about a large file
rlm --context-file corpus.txt "Who is mentioned most often?"

# Pipe the context
cat server.log | rlm "What caused the 5xx spike?"

# Chunked documents, persisted session
rlm --context-dir ./docs --store sessions.db "Summarize the API changes"`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.contextFile, "context-file", "f", "", "file holding the context")
	cmd.Flags().StringVarP(&flags.contextDir, "context-dir", "d", "", "directory of files, one context chunk each")
	cmd.Flags().StringVar(&flags.rootModel, "root-model", "", "root model id (default from config or RLM_ROOT_MODEL)")
	cmd.Flags().StringVar(&flags.subModel, "sub-model", "", "sub-call model id (default from config or RLM_SUB_MODEL)")
	cmd.Flags().IntVar(&flags.maxIters, "max-iterations", 0, "iteration cap per session")
	cmd.Flags().StringVar(&flags.variant, "variant", "", "prompt dialect (gpt, qwen)")
	cmd.Flags().BoolVar(&flags.noSubcalls, "no-subcalls", false, "disable the llm_query intrinsic")
	cmd.Flags().Float64Var(&flags.maxCost, "max-cost", 0, "USD spend ceiling per session")
	cmd.Flags().StringVar(&flags.storePath, "store", "", "SQLite file for persisting sessions")
	cmd.Flags().StringVar(&flags.workspace, "workspace", "", "expose file tools rooted at this directory")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "emit the result as JSON")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "print only the answer")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	cmd.Flags().StringVar(&flags.logFile, "log-file", "", "append rotated logs to this file")

	cmd.AddCommand(newSessionsCmd(flags))
	return cmd
}

func setupLogging(verbose bool, logFile string) {
	var w io.Writer = os.Stderr
	if logFile != "" {
		w = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
		}
	}
	logger := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
	})
	if verbose {
		logger.SetLevel(charmlog.DebugLevel)
	} else {
		logger.SetLevel(charmlog.WarnLevel)
	}
	slog.SetDefault(slog.New(logger))
}

func runQuery(cmd *cobra.Command, flags *rootFlags, args []string) error {
	_ = godotenv.Load()
	setupLogging(flags.verbose, flags.logFile)

	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("no query provided")
	}

	payload, docs, err := loadContext(flags)
	if err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	if flags.rootModel != "" {
		cfg.RootModel = flags.rootModel
	}
	if flags.subModel != "" {
		cfg.SubModel = flags.subModel
	}
	if flags.maxIters > 0 {
		cfg.MaxIterations = flags.maxIters
	}
	if flags.variant != "" {
		cfg.Variant = config.Variant(flags.variant)
	}
	if flags.noSubcalls {
		cfg.AllowSubcalls = false
	}

	client, err := llm.NewFantasyClient(llm.ClientConfig{})
	if err != nil {
		return err
	}

	opts := []rlm.Option{rlm.WithLogger(slog.Default())}
	if flags.maxCost > 0 {
		limits := budget.DefaultLimits()
		limits.MaxTotalCost = flags.maxCost
		opts = append(opts, rlm.WithLimits(limits))
	}
	if flags.storePath != "" {
		store, err := trajectory.NewStore(trajectory.StoreConfig{Path: flags.storePath})
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, rlm.WithStore(store))
	}
	if flags.workspace != "" {
		fa, err := agent.NewFileAgent(flags.workspace)
		if err != nil {
			return err
		}
		opts = append(opts, rlm.WithTools(fa.Tools))
		query = fa.Prompt(query)
	}

	engine, err := rlm.New(client, cfg, opts...)
	if err != nil {
		return err
	}

	if !flags.quiet && !flags.jsonOut {
		fmt.Fprintf(cmd.ErrOrStderr(), "Running session with %s...\n", cfg.RootModel)
	}

	start := time.Now()
	var res *rlm.Result
	if docs != nil {
		res, err = engine.QueryDocuments(cmd.Context(), query, docs)
	} else {
		res, err = engine.Query(cmd.Context(), query, payload)
	}
	if err != nil {
		return err
	}

	return printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), flags, res, time.Since(start))
}

// loadContext resolves the context from the flags or piped stdin.
func loadContext(flags *rootFlags) (payload string, docs []string, err error) {
	switch {
	case flags.contextDir != "":
		entries, err := os.ReadDir(flags.contextDir)
		if err != nil {
			return "", nil, fmt.Errorf("read context dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(flags.contextDir, e.Name()))
			if err != nil {
				return "", nil, fmt.Errorf("read context chunk: %w", err)
			}
			docs = append(docs, string(data))
		}
		if len(docs) == 0 {
			return "", nil, fmt.Errorf("context dir %s holds no files", flags.contextDir)
		}
		return "", docs, nil

	case flags.contextFile != "":
		data, err := os.ReadFile(flags.contextFile)
		if err != nil {
			return "", nil, fmt.Errorf("read context file: %w", err)
		}
		return string(data), nil, nil

	default:
		stat, err := os.Stdin.Stat()
		if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return "", nil, fmt.Errorf("read stdin: %w", err)
			}
			if len(data) > 0 {
				return string(data), nil, nil
			}
		}
		return "", nil, fmt.Errorf("no context provided (use --context-file, --context-dir, or pipe stdin)")
	}
}

func printResult(out, errOut io.Writer, flags *rootFlags, res *rlm.Result, elapsed time.Duration) error {
	if flags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			SessionID  string  `json:"session_id,omitempty"`
			Status     string  `json:"status"`
			Answer     string  `json:"answer"`
			Success    bool    `json:"success"`
			Iterations int     `json:"iterations"`
			TotalCost  float64 `json:"total_cost"`
			Failure    string  `json:"failure,omitempty"`
			ElapsedMS  int64   `json:"elapsed_ms"`
		}{
			SessionID:  res.SessionID,
			Status:     string(res.Status),
			Answer:     res.Answer,
			Success:    res.Success,
			Iterations: res.Iterations,
			TotalCost:  res.TotalCost,
			Failure:    res.Failure,
			ElapsedMS:  elapsed.Milliseconds(),
		})
	}

	fmt.Fprintln(out, res.Answer)
	if flags.quiet {
		return nil
	}
	fmt.Fprintf(errOut, "\n%s\n", res.UsageSummary)
	fmt.Fprintf(errOut, "Iterations: %d, elapsed: %s\n", res.Iterations, elapsed.Round(time.Millisecond))
	if !res.Success {
		fmt.Fprintf(errOut, "Session did not terminate cleanly: %s\n", res.Failure)
	}
	return nil
}
