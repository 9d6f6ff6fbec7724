package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/fsutil"
	"github.com/hpungsan/castchunk/internal/locale"
	"github.com/hpungsan/castchunk/internal/transcript"
	"github.com/hpungsan/castchunk/internal/youtube"
)

// Search backends.
const (
	BackendYTDLP  = "ytdlp"
	BackendScrape = "scrape"
	BackendFeed   = "feed"
)

// Config holds application configuration as read from config.json.
// Pointer fields distinguish "unset" from an explicit zero or false.
type Config struct {
	// Language selects month names, sentence uppercase set and caption language
	Language string `json:"language,omitempty"`

	// Channel is the channel name used to build search queries (default: the language's channel)
	Channel string `json:"channel,omitempty"`

	// Year is the year date phrases resolve against
	Year *int `json:"year,omitempty"`

	TargetWords  *int `json:"target_words,omitempty"`
	OverlapWords *int `json:"overlap_words,omitempty"`

	// MaxVideos caps how many manifest rows are processed per run (0 = all)
	MaxVideos int `json:"max_videos,omitempty"`

	// MaxSearchResults is how many hits are inspected per query variant
	MaxSearchResults int `json:"max_search_results,omitempty"`

	PreferCaptions *bool  `json:"prefer_captions,omitempty"`
	WhisperModel   string `json:"whisper_model,omitempty"`

	// SearchBackend is one of "ytdlp", "scrape" or "feed"
	SearchBackend string `json:"search_backend,omitempty"`

	// FeedChannelID is required by the feed backend
	FeedChannelID string `json:"feed_channel_id,omitempty"`

	// SearchIntervalMS is the minimum spacing between search calls (0 = no throttle)
	SearchIntervalMS *int `json:"search_interval_ms,omitempty"`

	YTDLPPath   string `json:"ytdlp_path,omitempty"`
	WhisperPath string `json:"whisper_path,omitempty"`

	// WorkDir holds per-run download directories (default <base>/work)
	WorkDir string `json:"work_dir,omitempty"`

	// OutputDir receives one <episode_id>.json per episode (default <base>/episodes)
	OutputDir string `json:"output_dir,omitempty"`

	// KeepWorkDir leaves downloads in place after a run
	KeepWorkDir bool `json:"keep_work_dir,omitempty"`

	// Index enables writing processed episodes into the local SQLite index
	Index *bool `json:"index,omitempty"`

	// PostgresDSN enables publishing records to Postgres when set
	PostgresDSN string `json:"postgres_dsn,omitempty"`

	// AllowedPaths is an allowlist of directories for export.
	// Paths outside <base>/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits open index connections; 0 means sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle index connections; 0 means sql.DB default.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Language:         locale.DefaultCode,
		Year:             IntPtr(2024),
		TargetWords:      IntPtr(transcript.DefaultTargetWords),
		OverlapWords:     IntPtr(transcript.DefaultOverlapWords),
		MaxSearchResults: 3,
		PreferCaptions:   BoolPtr(true),
		WhisperModel:     youtube.DefaultWhisperModel,
		SearchBackend:    BackendYTDLP,
		SearchIntervalMS: IntPtr(1000),
		YTDLPPath:        "yt-dlp",
		WhisperPath:      "whisper",
		Index:            BoolPtr(true),
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.castchunk.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.castchunk) and repo (.castchunk) directories.
// Repo config is found by walking upward from startDir to find the nearest .castchunk/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .castchunk/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".castchunk", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars and set pointers; arrays are
// merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Strings and ints: overlay wins if non-zero, else base
	result.Language = pickString(base.Language, overlay.Language)
	result.Channel = pickString(base.Channel, overlay.Channel)
	result.WhisperModel = pickString(base.WhisperModel, overlay.WhisperModel)
	result.SearchBackend = pickString(base.SearchBackend, overlay.SearchBackend)
	result.FeedChannelID = pickString(base.FeedChannelID, overlay.FeedChannelID)
	result.YTDLPPath = pickString(base.YTDLPPath, overlay.YTDLPPath)
	result.WhisperPath = pickString(base.WhisperPath, overlay.WhisperPath)
	result.WorkDir = pickString(base.WorkDir, overlay.WorkDir)
	result.OutputDir = pickString(base.OutputDir, overlay.OutputDir)
	result.PostgresDSN = pickString(base.PostgresDSN, overlay.PostgresDSN)

	result.MaxVideos = pickInt(base.MaxVideos, overlay.MaxVideos)
	result.MaxSearchResults = pickInt(base.MaxSearchResults, overlay.MaxSearchResults)
	result.DBMaxOpenConns = pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns)

	// Pointers: overlay wins if set, so an explicit 0 or false can override
	result.Year = pickIntPtr(base.Year, overlay.Year)
	result.TargetWords = pickIntPtr(base.TargetWords, overlay.TargetWords)
	result.OverlapWords = pickIntPtr(base.OverlapWords, overlay.OverlapWords)
	result.SearchIntervalMS = pickIntPtr(base.SearchIntervalMS, overlay.SearchIntervalMS)
	result.PreferCaptions = pickBoolPtr(base.PreferCaptions, overlay.PreferCaptions)
	result.Index = pickBoolPtr(base.Index, overlay.Index)

	// Booleans: overlay wins if true, else base
	result.KeepWorkDir = base.KeepWorkDir || overlay.KeepWorkDir
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickIntPtr(base, overlay *int) *int {
	if overlay != nil {
		return IntPtr(*overlay)
	}
	if base != nil {
		return IntPtr(*base)
	}
	return nil
}

func pickBoolPtr(base, overlay *bool) *bool {
	if overlay != nil {
		return BoolPtr(*overlay)
	}
	if base != nil {
		return BoolPtr(*base)
	}
	return nil
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// Settings is the validated, immutable view of a Config used by one run.
type Settings struct {
	Locale           *locale.Locale
	Channel          string // empty when the language has no default channel
	Year             int
	Split            transcript.SplitOptions
	MaxVideos        int
	MaxSearchResults int
	PreferCaptions   bool
	WhisperModel     string
	SearchBackend    string
	FeedChannelID    string
	SearchInterval   time.Duration
	YTDLPPath        string
	WhisperPath      string
	WorkDir          string
	OutputDir        string
	KeepWorkDir      bool
	Index            bool
	PostgresDSN      string
	Export           fsutil.ExportPolicy
}

// Settings validates c and resolves directory defaults under baseDir.
// Returns INVALID_CONFIG naming the first offending field.
func (c *Config) Settings(baseDir string) (Settings, error) {
	full := Merge(DefaultConfig(), c)

	loc, ok := locale.Lookup(full.Language)
	if !ok {
		return Settings{}, errors.NewInvalidConfig("language",
			fmt.Sprintf("unknown language %q (known: %s)", full.Language, strings.Join(locale.Codes(), ", ")))
	}

	split := transcript.SplitOptions{
		TargetWords:  *full.TargetWords,
		OverlapWords: *full.OverlapWords,
		Locale:       loc,
	}
	if err := split.Validate(); err != nil {
		field := "overlap_words"
		if split.TargetWords <= 0 {
			field = "target_words"
		}
		return Settings{}, errors.NewInvalidConfig(field, err.Error())
	}

	if *full.Year < 1 || *full.Year > 9999 {
		return Settings{}, errors.NewInvalidConfig("year", fmt.Sprintf("must be between 1 and 9999, got %d", *full.Year))
	}
	if full.MaxVideos < 0 {
		return Settings{}, errors.NewInvalidConfig("max_videos", "must not be negative")
	}
	if full.MaxSearchResults <= 0 {
		return Settings{}, errors.NewInvalidConfig("max_search_results", "must be positive")
	}
	if *full.SearchIntervalMS < 0 {
		return Settings{}, errors.NewInvalidConfig("search_interval_ms", "must not be negative")
	}
	if !youtube.ValidWhisperModel(full.WhisperModel) {
		return Settings{}, errors.NewInvalidConfig("whisper_model",
			fmt.Sprintf("unknown model %q (known: %s)", full.WhisperModel, strings.Join(youtube.WhisperModels, ", ")))
	}

	switch full.SearchBackend {
	case BackendYTDLP, BackendScrape:
	case BackendFeed:
		if full.FeedChannelID == "" {
			return Settings{}, errors.NewInvalidConfig("feed_channel_id", "required by the feed search backend")
		}
	default:
		return Settings{}, errors.NewInvalidConfig("search_backend",
			fmt.Sprintf("unknown backend %q (known: %s, %s, %s)", full.SearchBackend, BackendYTDLP, BackendScrape, BackendFeed))
	}

	channel := strings.TrimSpace(full.Channel)
	if channel == "" {
		channel = loc.Channel
	}

	workDir := full.WorkDir
	if workDir == "" {
		workDir = filepath.Join(baseDir, "work")
	}
	outputDir := full.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(baseDir, "episodes")
	}

	exportDirs := []string{filepath.Join(baseDir, "exports")}
	for _, p := range full.AllowedPaths {
		if filepath.IsAbs(p) {
			exportDirs = append(exportDirs, filepath.Clean(p))
		}
	}

	return Settings{
		Locale:           loc,
		Channel:          channel,
		Year:             *full.Year,
		Split:            split,
		MaxVideos:        full.MaxVideos,
		MaxSearchResults: full.MaxSearchResults,
		PreferCaptions:   *full.PreferCaptions,
		WhisperModel:     full.WhisperModel,
		SearchBackend:    full.SearchBackend,
		FeedChannelID:    full.FeedChannelID,
		SearchInterval:   time.Duration(*full.SearchIntervalMS) * time.Millisecond,
		YTDLPPath:        full.YTDLPPath,
		WhisperPath:      full.WhisperPath,
		WorkDir:          workDir,
		OutputDir:        outputDir,
		KeepWorkDir:      full.KeepWorkDir,
		Index:            *full.Index,
		PostgresDSN:      full.PostgresDSN,
		Export:           fsutil.ExportPolicy{Dirs: exportDirs, AllowUnsafe: full.AllowUnsafePaths},
	}, nil
}

// ExportsDir returns the default exports directory under baseDir.
func ExportsDir(baseDir string) string {
	return filepath.Join(baseDir, "exports")
}
