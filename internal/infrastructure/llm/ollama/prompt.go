package ollama

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const defaultSummaryInputRunes = 24000

// Summarizer summarizes an original upload. Ollama takes text only, so the file
// goes through the extractor first and the text is inlined under the instruction.
type Summarizer struct {
	generator *Generator
	extractor ports.TextExtractor
	maxRunes  int
}

var _ ports.FileSummarizer = (*Summarizer)(nil)

func NewSummarizer(generator *Generator, extractor ports.TextExtractor, maxRunes int) *Summarizer {
	if maxRunes <= 0 {
		maxRunes = defaultSummaryInputRunes
	}
	return &Summarizer{generator: generator, extractor: extractor, maxRunes: maxRunes}
}

func (s *Summarizer) Summarize(ctx context.Context, source domain.SourceFile, instruction string) (string, error) {
	extraction, err := s.extractor.Extract(ctx, source.Bytes, source.MimeType, source.FileName)
	if err != nil {
		return "", fmt.Errorf("extract source for summary: %w", err)
	}
	if extraction.Text == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "summarize", fmt.Errorf("no text in %s", source.FileName))
	}
	return s.generator.Generate(ctx, buildFilePrompt(instruction, source.FileName, truncateRunes(extraction.Text, s.maxRunes)))
}

func buildFilePrompt(instruction, fileName, text string) string {
	return fmt.Sprintf(`%s

Document (%s):
%s
`, instruction, fileName, text)
}

func truncateRunes(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}
