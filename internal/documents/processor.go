package documents

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"narrate-backend/internal/extract"
)

// WordsPerMinute is the narration pace used for duration estimates.
const WordsPerMinute = 150

// Processor turns uploads into ProcessedDocuments.
type Processor struct{}

// NewProcessor returns a stateless Processor safe for concurrent use.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process extracts text from f and derives its title, word count and duration.
func (p *Processor) Process(ctx context.Context, f File) (ProcessedDocument, error) {
	text, err := extract.FromBytes(ctx, f.Data, f.MimeType, f.Name)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ProcessedDocument{}, err
		}
		return ProcessedDocument{}, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, f.Name, err)
	}

	words := CountWords(text)
	if words == 0 {
		return ProcessedDocument{}, fmt.Errorf("%w: %s has no readable text", ErrUnsupportedFormat, f.Name)
	}

	return ProcessedDocument{
		Text:                     text,
		Title:                    Title(f),
		WordCount:                words,
		EstimatedDurationMinutes: EstimateMinutes(words),
	}, nil
}

// CountWords counts whitespace-delimited tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// EstimateMinutes rounds words / WordsPerMinute up to whole minutes.
func EstimateMinutes(words int) int {
	if words <= 0 {
		return 0
	}
	return (words + WordsPerMinute - 1) / WordsPerMinute
}

// Title returns the explicit title or the file name without its last extension.
func Title(f File) string {
	if t := strings.TrimSpace(f.Title); t != "" {
		return t
	}
	name := filepath.Base(strings.ReplaceAll(f.Name, "\\", "/"))
	if ext := filepath.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// FormatDuration renders minutes as H:MM:00 from an hour upward, else M:00.
func FormatDuration(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	hours, mins := minutes/60, minutes%60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:00", hours, mins)
	}
	return fmt.Sprintf("%d:00", mins)
}
