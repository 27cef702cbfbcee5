package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"searchtweets/internal/runner"
	"searchtweets/pkg/api"
	"searchtweets/pkg/auth"
	"searchtweets/pkg/checkpoint"
	"searchtweets/pkg/config"
	errs "searchtweets/pkg/errors"
	"searchtweets/pkg/logger"
	"searchtweets/pkg/ratelimit"
	"searchtweets/pkg/storage"
	"searchtweets/pkg/stream"
	"searchtweets/pkg/telemetry"
	"searchtweets/pkg/ui"
)

var queriesFile string

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a search or counts query and stream every page",
	Long: `Run a search or counts query against the configured endpoint, following
next tokens until the results, --max-tweets or --max-pages run out.

Results are printed to stdout as one JSON object per line and, when
--filename-prefix or --results-per-file is set, written to files.

Credentials come from the YAML credential file, SEARCHTWEETS_* variables or
an account stored with 'searchtweets auth login'.`,
	Example: `  # Recent search, 100 tweets, includes merged into each tweet
  searchtweets search --query "snow has:media" --max-tweets 100

  # Daily counts over the full archive
  searchtweets search --endpoint https://api.twitter.com/2/tweets/search/all \
    --query snow --granularity day --start-time 2021-01-01

  # Raw response pages, chunked into files of 500 results
  searchtweets search --query snow --output-format r \
    --results-per-file 500 --filename-prefix snow --print-stream=false

  # Resume an interrupted run
  searchtweets search --query snow --max-tweets 10000 --checkpoint --resume

  # One query per line, run concurrently
  searchtweets search --queries-file queries.txt --workers 4`,
	Args: cobra.NoArgs,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	f := searchCmd.Flags()
	f.String("credential-file", "", "location of the YAML credential file (default ~/.twitter_keys.yaml)")
	f.String("credential-file-key", "", "top-level key of the credential file (default search_tweets_v2)")
	f.Bool("env-overwrite", true, "let SEARCHTWEETS_* variables overwrite the credential file")
	f.StringP("account", "a", "", "use an account stored with 'auth login'")

	f.String("endpoint", "", "search or counts endpoint URL")
	f.String("method", "", "request method (default GET for v2, POST otherwise)")
	f.String("extra-headers", "", `JSON object of extra request headers, e.g. '{"User-Agent":"x"}'`)

	f.String("query", "", "search query")
	f.String("start-time", "", "oldest UTC time to search from (YYYY-mm-DD HH:MM, YYYY-mm-DD or YYYY-mm-DDTHH:MM)")
	f.String("end-time", "", "newest UTC time to search up to")
	f.String("since-id", "", "return results newer than this id")
	f.String("until-id", "", "return results older than this id")
	f.Int("results-per-call", 0, "results per request (v2: 10-100, or 10-500 for full archive)")
	f.String("granularity", "", "counts bucket: day, hour or minute")
	f.String("expansions", "", "comma-separated expansions")
	f.String("tweet-fields", "", "comma-separated tweet fields")
	f.String("user-fields", "", "comma-separated user fields")
	f.String("media-fields", "", "comma-separated media fields")
	f.String("place-fields", "", "comma-separated place fields")
	f.String("poll-fields", "", "comma-separated poll fields")

	f.Int("max-tweets", 0, "maximum number of results to return (0 means no limit)")
	f.Int("max-pages", 0, "maximum number of requests to make (0 means no limit)")

	f.Bool("atomic", false, "merge includes into each tweet (same as --output-format a)")
	f.String("output-format", "", "a: atomic tweets, r: raw response pages, m: items then includes and meta")
	f.String("filename-prefix", "", "prefix for output files (derived from the query when only --results-per-file is set)")
	f.Int("results-per-file", 0, "results per output file (0 writes a single file)")
	f.Bool("print-stream", true, "print the stream to stdout")

	f.Int("requests-per-minute", 0, "client-side request rate (0 disables pacing)")
	f.Bool("checkpoint", false, "save a checkpoint after every page")
	f.Bool("resume", false, "resume from a saved checkpoint")
	f.Bool("trace", false, "print OpenTelemetry spans to stderr")

	f.StringVar(&queriesFile, "queries-file", "", "file with one query per line, run concurrently")
	f.Int("workers", 0, "concurrent streams for --queries-file")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.WithField("component", "cli")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.WithError(err).Warn("failed to flush traces")
		}
	}()

	account, err := resolveAccount(cfg, log)
	if err != nil {
		return err
	}
	if cfg.API.Endpoint == "" {
		cfg.API.Endpoint = account.Endpoint
	}

	if queriesFile != "" {
		queries, err := readQueries(queriesFile)
		if err != nil {
			return err
		}
		return runBatch(ctx, cfg, account, queries, log)
	}

	if err := cfg.RequireSearch(); err != nil {
		return errs.NewConfigurationError(err.Error())
	}
	if !cfg.Output.PrintStream && !writesFiles(cfg) {
		return errs.NewConfigurationError("nothing to do: set --filename-prefix or --results-per-file, or keep --print-stream")
	}
	return runSingle(ctx, cfg, account, log)
}

// resolveAccount picks credentials: a named stored account, then the
// credential file and environment, then the newest stored account.
func resolveAccount(cfg *config.Config, log logger.Logger) (*auth.Account, error) {
	if cfg.Credentials.Account != "" {
		manager, err := auth.NewManager()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
		}
		account, err := manager.Retrieve(cfg.Credentials.Account)
		if err != nil {
			return nil, fmt.Errorf("%w (see 'searchtweets auth list')", err)
		}
		return account, nil
	}

	account, err := auth.LoadCredentials(auth.LoadOptions{
		File:         cfg.Credentials.File,
		YAMLKey:      cfg.Credentials.YAMLKey,
		EnvOverwrite: cfg.Credentials.EnvOverwrite,
		Logger:       log,
	})
	if err == nil {
		return account, nil
	}

	if manager, merr := auth.NewManager(); merr == nil {
		if stored, serr := manager.RetrieveDefault(); serr == nil {
			log.WithField("account", stored.Name).Info("using stored credentials")
			return stored, nil
		}
	}
	ui.PrintWarning("No credentials found. Run 'searchtweets auth guide' for setup instructions.")
	return nil, err
}

// buildPayload builds the request payload and the endpoint it belongs to.
func buildPayload(cfg *config.Config, query string) (api.Params, string, error) {
	q := cfg.Query
	var (
		payload api.Params
		err     error
	)
	if api.IsV2(cfg.API.Endpoint) {
		payload, err = api.BuildSearchParams(api.SearchOptions{
			Query:          query,
			StartTime:      q.StartTime,
			EndTime:        q.EndTime,
			SinceID:        q.SinceID,
			UntilID:        q.UntilID,
			ResultsPerCall: q.ResultsPerCall,
			Granularity:    q.Granularity,
			Expansions:     q.Expansions,
			TweetFields:    q.TweetFields,
			UserFields:     q.UserFields,
			MediaFields:    q.MediaFields,
			PlaceFields:    q.PlaceFields,
			PollFields:     q.PollFields,
		})
	} else {
		payload, err = api.GenRulePayload(query, api.RuleOptions{
			ResultsPerCall: q.ResultsPerCall,
			FromDate:       q.StartTime,
			ToDate:         q.EndTime,
			CountBucket:    q.Granularity,
		})
	}
	if err != nil {
		return nil, "", err
	}

	endpoint, err := api.ResolveEndpoint(cfg.API.Endpoint, payload)
	if err != nil {
		return nil, "", err
	}
	return payload, endpoint, nil
}

func streamConfig(cfg *config.Config, account *auth.Account, endpoint string, payload api.Params) (stream.Config, error) {
	mode, err := stream.ParseMode(cfg.Output.Format)
	if err != nil {
		return stream.Config{}, err
	}
	return stream.Config{
		Endpoint:     endpoint,
		Payload:      payload,
		Credential:   account.Credential(),
		ExtraHeaders: cfg.API.ExtraHeaders,
		Method:       cfg.API.Method,
		TokenKey:     cfg.API.TokenKey,
		MaxItems:     cfg.Limits.MaxTweets,
		MaxRequests:  cfg.Limits.MaxPages,
		Mode:         mode,
	}, nil
}

func newLimiter(cfg *config.Config) ratelimit.Limiter {
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		return ratelimit.Unlimited()
	}
	return ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)
}

func writesFiles(cfg *config.Config) bool {
	return cfg.Output.FilenamePrefix != "" || cfg.Output.ResultsPerFile > 0
}

func newWriter(cfg *config.Config, query string, log logger.Logger) (*storage.Writer, error) {
	prefix := cfg.Output.FilenamePrefix
	if prefix == "" {
		prefix = storage.NameFromQuery(query)
	}
	return storage.NewWriter(prefix, cfg.Output.ResultsPerFile, storage.WithLogger(log))
}

func runSingle(ctx context.Context, cfg *config.Config, account *auth.Account, log logger.Logger) error {
	payload, endpoint, err := buildPayload(cfg, cfg.Query.Query)
	if err != nil {
		return err
	}
	scfg, err := streamConfig(cfg, account, endpoint, payload)
	if err != nil {
		return err
	}

	tracker := ui.NewStatusTracker(scfg.MaxItems)
	hooks := []func(stream.PageInfo){tracker.PageHook}
	opts := []stream.Option{
		stream.WithLogger(log),
		stream.WithLimiter(newLimiter(cfg)),
		stream.WithTracer(telemetry.Tracer()),
	}

	if cfg.Checkpoint.Enabled || cfg.Checkpoint.Resume {
		hook, resume, done, err := setupCheckpoint(cfg, &scfg, log)
		if err != nil {
			return err
		}
		if done {
			ui.PrintSuccess("Checkpoint shows this search already reached its caps")
			return nil
		}
		hooks = append(hooks, hook)
		if resume != "" {
			opts = append(opts, stream.WithResumeToken(resume))
		}
	}
	opts = append(opts, stream.WithPageHook(func(p stream.PageInfo) {
		for _, h := range hooks {
			h(p)
		}
	}))

	s := stream.New(scfg, opts...)
	seq := s.All(ctx)

	var writer *storage.Writer
	if writesFiles(cfg) {
		writer, err = newWriter(cfg, cfg.Query.Query, log)
		if err != nil {
			return err
		}
		seq = storage.Tee(seq, writer)
	}

	streamErr := emit(seq, cfg.Output.PrintStream, os.Stdout)
	tracker.Finish()

	if writer != nil {
		if err := writer.Close(); err != nil && streamErr == nil {
			streamErr = err
		}
		for _, name := range writer.Files() {
			ui.PrintInfo("Wrote", name)
		}
	}

	stats := s.Stats()
	log.WithFields(map[string]interface{}{
		"stream_id":       stats.ID,
		"total_emitted":   stats.TotalEmitted,
		"requests_issued": stats.RequestsIssued,
	}).Info("search finished")
	return streamErr
}

// setupCheckpoint loads or creates the checkpoint for this search. With
// --resume and a saved checkpoint, the caps in scfg are reduced by what the
// earlier run already used.
func setupCheckpoint(cfg *config.Config, scfg *stream.Config, log logger.Logger) (hook func(stream.PageInfo), resumeToken string, done bool, err error) {
	manager, err := checkpoint.NewManager(scfg.Endpoint, scfg.Payload, checkpoint.WithLogger(log))
	if err != nil {
		return nil, "", false, err
	}

	var cp *checkpoint.Checkpoint
	if cfg.Checkpoint.Resume {
		cp, err = manager.Load()
		if err != nil {
			return nil, "", false, err
		}
	}
	if cp != nil {
		items, requests, exhausted := cp.Remaining(scfg.MaxItems, scfg.MaxRequests)
		if exhausted {
			return nil, "", true, nil
		}
		scfg.MaxItems, scfg.MaxRequests = items, requests
		ui.PrintInfo("Resuming", fmt.Sprintf("%d results and %d requests so far", cp.ItemsEmitted, cp.RequestsIssued))
		resumeToken = cp.NextToken
	} else {
		cp, err = manager.Create(cfg.Query.Query)
		if err != nil {
			return nil, "", false, err
		}
	}
	return manager.PageHook(cp), resumeToken, false, nil
}

// emit drains seq, printing each message as a JSON line when printStream is set.
func emit(seq iter.Seq2[stream.Message, error], printStream bool, w io.Writer) error {
	bw := bufio.NewWriter(w)
	defer bw.Flush()
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	for msg, err := range seq {
		if err != nil {
			return err
		}
		if !printStream {
			continue
		}
		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	return nil
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(config.ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open queries file: %w", err)
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
		return nil, fmt.Errorf("failed to read queries file: %w", err)
	}
	if len(queries) == 0 {
		return nil, errs.NewConfigurationError("queries file has no queries")
	}
	return queries, nil
}

// runBatch runs one stream per query on the worker pool. Each query gets its
// own output file; stdout is not used.
func runBatch(ctx context.Context, cfg *config.Config, account *auth.Account, queries []string, log logger.Logger) error {
	if cfg.API.Endpoint == "" {
		return errs.NewConfigurationError("not enough arguments to run a search, missing: endpoint")
	}

	jobs := make([]runner.Job, 0, len(queries))
	names := make(map[string]string, len(queries))
	writers := make([]*storage.Writer, 0, len(queries))
	closeWriters := func() {
		for _, w := range writers {
			if err := w.Close(); err != nil {
				log.WithError(err).Warn("failed to close output file")
			}
		}
	}

	for i, query := range queries {
		job, err := batchJob(cfg, account, query)
		if err != nil {
			return fmt.Errorf("query %q: %w", query, err)
		}
		job.ID = fmt.Sprintf("q%03d", i+1)
		jobs = append(jobs, job)
	}

	for i := range jobs {
		writer, err := storage.NewWriter(storage.NameFromQuery(queries[i]), cfg.Output.ResultsPerFile, storage.WithLogger(log))
		if err != nil {
			closeWriters()
			return err
		}
		writers = append(writers, writer)
		jobs[i].Sink = writer
		names[jobs[i].ID] = queries[i]
	}

	pool := runner.NewPool(cfg.Runner.Workers,
		runner.WithContext(ctx),
		runner.WithLogger(log),
		runner.WithLimiter(newLimiter(cfg)),
	)
	pool.Start()
	go func() {
		defer pool.Stop()
		for _, job := range jobs {
			if _, err := pool.Submit(job); err != nil {
				log.WithError(err).Warn("job not submitted")
				return
			}
		}
	}()

	var failed int
	for result := range pool.Results() {
		query := names[result.Job.ID]
		if result.Error != nil {
			failed++
			ui.PrintError(fmt.Sprintf("Query %q failed", query), result.Error)
			continue
		}
		ui.PrintSuccess(fmt.Sprintf("%q: %d results in %d requests", query, result.Emitted, result.Stats.RequestsIssued))
	}
	closeWriters()
	ui.PrintInfo("Total requests", fmt.Sprint(pool.Requests()))

	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed", failed, len(queries))
	}
	return nil
}

func batchJob(cfg *config.Config, account *auth.Account, query string) (runner.Job, error) {
	payload, endpoint, err := buildPayload(cfg, query)
	if err != nil {
		return runner.Job{}, err
	}
	scfg, err := streamConfig(cfg, account, endpoint, payload)
	if err != nil {
		return runner.Job{}, err
	}
	if err := scfg.Validate(); err != nil {
		return runner.Job{}, err
	}
	return runner.Job{
		Config:  scfg,
		Options: []stream.Option{stream.WithTracer(telemetry.Tracer())},
	}, nil
}
