package transcript

import (
	"fmt"
	"strings"

	"github.com/hpungsan/castchunk/internal/locale"
)

// Defaults for chunk sizing.
const (
	DefaultTargetWords  = 1200
	DefaultOverlapWords = 100
)

// Chunk is one contiguous, sentence-respecting slice of a transcript.
type Chunk struct {
	Index           int    `json:"chunk_index"`
	Text            string `json:"text"`
	ApproxWordCount int    `json:"approx_word_count"`
}

// SplitOptions controls chunk sizing.
type SplitOptions struct {
	TargetWords  int
	OverlapWords int
	Locale       *locale.Locale
}

// Validate checks 0 < TargetWords and 0 <= OverlapWords < TargetWords.
func (o SplitOptions) Validate() error {
	if o.TargetWords <= 0 {
		return fmt.Errorf("target words must be positive, got %d", o.TargetWords)
	}
	if o.OverlapWords < 0 {
		return fmt.Errorf("overlap words must be non-negative, got %d", o.OverlapWords)
	}
	if o.OverlapWords >= o.TargetWords {
		return fmt.Errorf("overlap words (%d) must be less than target words (%d)", o.OverlapWords, o.TargetWords)
	}
	if o.Locale == nil {
		return fmt.Errorf("locale is required")
	}
	return nil
}

// Split divides cleaned text into overlapping windows of whole sentences.
//
// Sentences accumulate until the next one would push the window past
// TargetWords; the window is then emitted and the next window is seeded with
// the last OverlapWords words of the emitted one. A sentence longer than
// TargetWords is never split, so such a chunk exceeds the target.
func Split(text string, opts SplitOptions) ([]Chunk, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var (
		chunks  []Chunk
		window  []string
		wordCnt int
	)

	flush := func() {
		body := strings.Join(window, " ")
		chunks = append(chunks, Chunk{
			Index:           len(chunks),
			Text:            body,
			ApproxWordCount: CountWords(body),
		})
	}

	for _, sentence := range SplitSentences(text, opts.Locale) {
		n := CountWords(sentence)

		if wordCnt+n > opts.TargetWords && len(window) > 0 {
			flush()

			window = window[:0]
			wordCnt = 0
			if opts.OverlapWords > 0 {
				tail := tailWords(chunks[len(chunks)-1].Text, opts.OverlapWords)
				window = append(window, tail)
				wordCnt = CountWords(tail)
			}
		}

		window = append(window, sentence)
		wordCnt += n
	}

	if len(window) > 0 {
		flush()
	}

	return chunks, nil
}

// tailWords returns the last n whitespace-delimited words of s joined by
// single spaces.
func tailWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}
