package youtube

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/castchunk/internal/acquire"
)

// WhisperModels are the accepted model sizes, smallest first.
var WhisperModels = []string{"tiny", "base", "small", "medium", "large"}

// DefaultWhisperModel balances accuracy and speed for long episodes.
const DefaultWhisperModel = "medium"

// ValidWhisperModel reports whether name is one of WhisperModels.
func ValidWhisperModel(name string) bool {
	for _, m := range WhisperModels {
		if m == name {
			return true
		}
	}
	return false
}

// Whisper runs the openai-whisper command line tool.
type Whisper struct {
	Path   string
	Model  string
	Runner CommandRunner
}

var _ acquire.Transcriber = (*Whisper)(nil)

// NewWhisper creates a Whisper adapter; path defaults to "whisper" and
// model to DefaultWhisperModel.
func NewWhisper(path, model string, runner CommandRunner) *Whisper {
	if path == "" {
		path = "whisper"
	}
	if model == "" {
		model = DefaultWhisperModel
	}
	return &Whisper{Path: path, Model: model, Runner: runner}
}

// Transcribe writes <stem>.txt next to the audio file and returns its text.
func (w *Whisper) Transcribe(ctx context.Context, audioPath, lang string) (string, error) {
	dir := filepath.Dir(audioPath)

	_, err := w.Runner.Run(ctx, w.Path,
		audioPath,
		"--language", lang,
		"--model", w.Model,
		"--output_format", "txt",
		"--output_dir", dir,
		"--verbose", "False",
	)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(dir, stem+".txt"))
	if err != nil {
		return "", fmt.Errorf("read whisper output: %w", err)
	}
	return string(data), nil
}
