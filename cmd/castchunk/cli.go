package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/castchunk/internal/acquire"
	"github.com/hpungsan/castchunk/internal/config"
	"github.com/hpungsan/castchunk/internal/dates"
	"github.com/hpungsan/castchunk/internal/db"
	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/locate"
	"github.com/hpungsan/castchunk/internal/mcp"
	"github.com/hpungsan/castchunk/internal/ops"
	"github.com/hpungsan/castchunk/internal/pgsink"
	"github.com/hpungsan/castchunk/internal/record"
	"github.com/hpungsan/castchunk/internal/web"
	"github.com/hpungsan/castchunk/internal/youtube"
)

// appEnv carries what the commands share. Config and logger are filled in
// by the app's Before hook; the collaborator factories are swapped in tests.
type appEnv struct {
	stdout io.Writer
	stderr io.Writer

	baseDir string
	cfg     *config.Config
	logger  *slog.Logger

	newSearcher func(s config.Settings, logger *slog.Logger) locate.Searcher
	newAcquirer func(s config.Settings, logger *slog.Logger) ops.TranscriptAcquirer
}

// newAppEnv returns an environment backed by the real yt-dlp and whisper
// adapters.
func newAppEnv(stdout, stderr io.Writer) *appEnv {
	return &appEnv{
		stdout:      stdout,
		stderr:      stderr,
		newSearcher: defaultSearcher,
		newAcquirer: defaultAcquirer,
	}
}

// defaultSearcher picks the search backend named in s.
func defaultSearcher(s config.Settings, logger *slog.Logger) locate.Searcher {
	switch s.SearchBackend {
	case config.BackendScrape:
		return youtube.NewScrapeSearcher(nil, logger)
	case config.BackendFeed:
		return youtube.NewFeedSearcher(s.FeedChannelID, nil, logger)
	default:
		return youtube.NewYTDLP(s.YTDLPPath, &youtube.ExecRunner{Logger: logger}, logger)
	}
}

// defaultAcquirer wires yt-dlp downloads and whisper transcription.
func defaultAcquirer(s config.Settings, logger *slog.Logger) ops.TranscriptAcquirer {
	runner := &youtube.ExecRunner{Logger: logger}
	return acquire.New(
		youtube.NewYTDLP(s.YTDLPPath, runner, logger),
		youtube.NewWhisper(s.WhisperPath, s.WhisperModel, runner),
		acquire.Options{
			Language:       s.Locale.Code,
			PreferCaptions: s.PreferCaptions,
			Logger:         logger,
		},
	)
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "castchunk",
		Usage:   "Locate episodes, transcribe them and chunk the text for retrieval",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-dir", EnvVars: []string{"CASTCHUNK_HOME"}, Usage: "Data directory (default: ~/.castchunk)"},
			&cli.BoolFlag{Name: "verbose", Usage: "Log debug output"},
			&cli.BoolFlag{Name: "log-json", Usage: "Log as JSON lines instead of text"},
		},
		Before: env.setup,
		Commands: []*cli.Command{
			locateCmd(env),
			processCmd(env),
			listCmd(env),
			fetchCmd(env),
			chunkCmd(env),
			searchCmd(env),
			exportCmd(env),
			purgeCmd(env),
			mcpCmd(env),
			serveCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// setup builds the logger and loads the global and repo config.
func (e *appEnv) setup(c *cli.Context) error {
	e.logger = newLogger(e.stderr, c.Bool("verbose"), c.Bool("log-json"))

	baseDir := c.String("base-dir")
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cli.Exit(fmt.Sprintf("could not determine home directory: %v", err), 1)
		}
		baseDir = filepath.Join(home, ".castchunk")
	}
	e.baseDir = baseDir

	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to load config: %v", err), 1)
	}
	e.cfg = cfg
	return nil
}

// settings applies the command-line overlay to the loaded config and
// validates the result.
func (e *appEnv) settings(c *cli.Context) (config.Settings, error) {
	return config.Merge(e.cfg, overlayFromFlags(c)).Settings(e.baseDir)
}

// openIndex opens the SQLite index under the base directory.
func (e *appEnv) openIndex() (*sql.DB, error) {
	database, err := db.Init(e.baseDir)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to initialize database: %w", err))
	}
	db.ConfigurePool(database, e.cfg)
	return database, nil
}

// locateCmd creates the locate command.
func locateCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "locate",
		Usage: "Resolve date phrases to episode videos and write a manifest",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "dates", Aliases: []string{"d"}, Usage: `Date phrase such as "5 Decembrie" (repeatable)`},
			&cli.BoolFlag{Name: "use-default-dates", Usage: "Use the built-in date list even when --dates is given"},
			&cli.IntFlag{Name: "year", Usage: "Year applied to every phrase"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: "videos.csv", Usage: "Manifest CSV path"},
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Usage: "Locale code"},
			&cli.StringFlag{Name: "channel", Usage: "Channel name prepended to queries"},
			&cli.StringFlag{Name: "search-backend", Usage: "Search backend: ytdlp|scrape|feed"},
			&cli.IntFlag{Name: "max-results", Usage: "Search results inspected per query"},
		},
		Action: func(c *cli.Context) error {
			settings, err := env.settings(c)
			if err != nil {
				return outputError(err)
			}

			run := ops.NewRun(settings, env.logger)
			locator := locate.New(
				env.newSearcher(settings, run.Logger),
				dates.NewResolver(settings.Locale),
				locate.Options{
					Channel:    settings.Channel,
					MaxResults: settings.MaxSearchResults,
					Interval:   settings.SearchInterval,
					Logger:     run.Logger,
				},
			)

			input := ops.LocateInput{OutputPath: c.String("output")}
			if !c.Bool("use-default-dates") {
				input.Phrases = c.StringSlice("dates")
			}

			output, err := ops.Locate(c.Context, run, locator, input)
			if err != nil {
				return outputError(err)
			}

			return env.outputJSON(output)
		},
	}
}

// processCmd creates the process command.
func processCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "Transcribe and chunk every episode listed in a manifest",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "Manifest CSV (url,title,date)"},
			&cli.StringFlag{Name: "output-dir", Usage: "Directory for episode records"},
			&cli.StringFlag{Name: "work-dir", Usage: "Directory for downloads and intermediate files"},
			&cli.BoolFlag{Name: "keep-work-dir", Usage: "Keep intermediate files after the run"},
			&cli.IntFlag{Name: "max-videos", Usage: "Process at most N episodes"},
			&cli.BoolFlag{Name: "no-captions", Usage: "Skip captions and always transcribe audio"},
			&cli.StringFlag{Name: "whisper-model", Usage: "Whisper model name"},
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Usage: "Locale code"},
			&cli.IntFlag{Name: "target-words", Usage: "Target words per chunk"},
			&cli.IntFlag{Name: "overlap-words", Usage: "Words shared by consecutive chunks"},
			&cli.BoolFlag{Name: "no-index", Usage: "Do not update the local search index"},
		},
		Action: func(c *cli.Context) error {
			settings, err := env.settings(c)
			if err != nil {
				return outputError(err)
			}

			f, err := os.Open(c.String("input"))
			if err != nil {
				if os.IsNotExist(err) {
					return outputError(errors.NewFileNotFound(c.String("input")))
				}
				return outputError(errors.NewInternal(err))
			}
			defer f.Close()

			run := ops.NewRun(settings, env.logger)
			pipeline := ops.Pipeline{
				Acquirer: env.newAcquirer(settings, run.Logger),
				Writer:   record.NewWriter(settings.OutputDir),
			}

			if settings.Index {
				database, err := env.openIndex()
				if err != nil {
					return outputError(err)
				}
				defer database.Close()
				pipeline.DB = database
			}

			if settings.PostgresDSN != "" {
				publisher, err := pgsink.Connect(c.Context, settings.PostgresDSN, run.Logger)
				if err != nil {
					return outputError(err)
				}
				defer publisher.Close()
				pipeline.Publisher = publisher
			}

			output, err := ops.Process(c.Context, run, pipeline, ops.ProcessInput{Manifest: f})
			if err != nil {
				return outputError(err)
			}

			return env.outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List indexed episodes, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Max items to return"},
			&cli.IntFlag{Name: "offset", Value: 0, Usage: "Pagination offset"},
		},
		Action: func(c *cli.Context) error {
			database, err := env.openIndex()
			if err != nil {
				return outputError(err)
			}
			defer database.Close()

			output, err := ops.List(database, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			return env.outputJSON(output)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch an episode record with its chunks",
		ArgsUsage: "<episode_id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-text", Usage: "Exclude chunk text from output"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one episode_id is required"))
			}

			settings, err := env.settings(c)
			if err != nil {
				return outputError(err)
			}

			database, err := env.openIndex()
			if err != nil {
				return outputError(err)
			}
			defer database.Close()

			output, err := ops.Fetch(database, record.NewWriter(settings.OutputDir), ops.FetchInput{
				EpisodeID:   c.Args().First(),
				IncludeText: !c.Bool("no-text"),
			})
			if err != nil {
				return outputError(err)
			}

			return env.outputJSON(output)
		},
	}
}

// chunkCmd creates the chunk command.
func chunkCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "chunk",
		Usage:     "Fetch one chunk of an indexed episode",
		ArgsUsage: "<episode_id> <chunk_index>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return outputError(errors.NewInvalidRequest("episode_id and chunk_index are required"))
			}
			index, err := strconv.Atoi(c.Args().Get(1))
			if err != nil {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("chunk_index must be an integer, got %q", c.Args().Get(1))))
			}

			database, err := env.openIndex()
			if err != nil {
				return outputError(err)
			}
			defer database.Close()

			output, err := ops.GetChunk(database, ops.GetChunkInput{
				EpisodeID:  c.Args().First(),
				ChunkIndex: index,
			})
			if err != nil {
				return outputError(err)
			}

			return env.outputJSON(output)
		},
	}
}

// searchCmd creates the search command.
func searchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Full-text search over indexed chunks",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "episode", Aliases: []string{"e"}, Usage: "Only search this episode"},
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Max results to return"},
			&cli.IntFlag{Name: "offset", Value: 0, Usage: "Pagination offset"},
		},
		Action: func(c *cli.Context) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return outputError(errors.NewInvalidRequest("query is required"))
			}

			database, err := env.openIndex()
			if err != nil {
				return outputError(err)
			}
			defer database.Close()

			input := ops.SearchInput{
				Query:  query,
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			}
			if id := c.String("episode"); id != "" {
				input.EpisodeID = &id
			}

			output, err := ops.Search(c.Context, database, input)
			if err != nil {
				return outputError(err)
			}

			return env.outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export every indexed chunk to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (default: ~/.castchunk/exports/chunks-<timestamp>.jsonl)"},
		},
		Action: func(c *cli.Context) error {
			settings, err := env.settings(c)
			if err != nil {
				return outputError(err)
			}

			database, err := env.openIndex()
			if err != nil {
				return outputError(err)
			}
			defer database.Close()

			output, err := ops.Export(c.Context, database, settings.Export, ops.ExportInput{
				Path: c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}

			return env.outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "purge",
		Usage:     "Remove episodes from the index (records on disk are kept)",
		ArgsUsage: "<episode_id>...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("at least one episode_id is required"))
			}

			database, err := env.openIndex()
			if err != nil {
				return outputError(err)
			}
			defer database.Close()

			output, err := ops.Purge(database, ops.PurgeInput{EpisodeIDs: c.Args().Slice()})
			if err != nil {
				return outputError(err)
			}

			return env.outputJSON(output)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the index to MCP clients over stdio",
		Action: func(c *cli.Context) error {
			settings, err := env.settings(c)
			if err != nil {
				return outputError(err)
			}

			database, err := env.openIndex()
			if err != nil {
				return outputError(err)
			}
			defer database.Close()

			if err := mcp.Run(database, settings, env.cfg.DisabledTools, Version, env.logger); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Browse and search the index in a web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to listen on"},
			&cli.IntFlag{Name: "port", Value: 8765, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			port := c.Int("port")
			if port <= 0 || port > 65535 {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("port must be between 1 and 65535, got %d", port)))
			}

			settings, err := env.settings(c)
			if err != nil {
				return outputError(err)
			}

			database, err := env.openIndex()
			if err != nil {
				return outputError(err)
			}
			defer database.Close()

			srv, err := web.NewServer(database, settings.OutputDir, Version, c.String("bind"), port, env.logger)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if err := web.Run(srv, env.logger); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// Helper functions

// overlayFromFlags collects the config overrides given on the command line.
// Flags a command does not define read as unset.
func overlayFromFlags(c *cli.Context) *config.Config {
	o := &config.Config{}

	if c.IsSet("language") {
		o.Language = c.String("language")
	}
	if c.IsSet("channel") {
		o.Channel = c.String("channel")
	}
	if c.IsSet("year") {
		o.Year = config.IntPtr(c.Int("year"))
	}
	if c.IsSet("search-backend") {
		o.SearchBackend = c.String("search-backend")
	}
	if c.IsSet("max-results") {
		o.MaxSearchResults = c.Int("max-results")
	}
	if c.IsSet("output-dir") {
		o.OutputDir = c.String("output-dir")
	}
	if c.IsSet("work-dir") {
		o.WorkDir = c.String("work-dir")
	}
	if c.Bool("keep-work-dir") {
		o.KeepWorkDir = true
	}
	if c.IsSet("max-videos") {
		o.MaxVideos = c.Int("max-videos")
	}
	if c.Bool("no-captions") {
		o.PreferCaptions = config.BoolPtr(false)
	}
	if c.IsSet("whisper-model") {
		o.WhisperModel = c.String("whisper-model")
	}
	if c.IsSet("target-words") {
		o.TargetWords = config.IntPtr(c.Int("target-words"))
	}
	if c.IsSet("overlap-words") {
		o.OverlapWords = config.IntPtr(c.Int("overlap-words"))
	}
	if c.Bool("no-index") {
		o.Index = config.BoolPtr(false)
	}

	return o
}

// newLogger builds the run logger. Logs go to w so stdout stays reserved
// for JSON results.
func newLogger(w io.Writer, verbose, jsonFormat bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// outputJSON marshals result to stdout as JSON.
func (e *appEnv) outputJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if cErr, ok := err.(*errors.CastError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", cErr.Code, cErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
