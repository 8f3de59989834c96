package redflag

import (
	"regexp"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

// DefaultKeywords is the fixed risk-term list, in match priority order.
var DefaultKeywords = []string{
	"indemnity",
	"liability",
	"auto-renewal",
	"terminate for convenience",
	"without cause",
	"waiver",
	"limitation of liability",
	"exclusive jurisdiction",
}

type pattern struct {
	keyword string
	re      *regexp.Regexp
}

type Scanner struct {
	patterns []pattern
}

func NewScanner(keywords []string) *Scanner {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	patterns := make([]pattern, 0, len(keywords))
	for _, kw := range keywords {
		patterns = append(patterns, pattern{
			keyword: kw,
			re:      regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`),
		})
	}
	return &Scanner{patterns: patterns}
}

// Scan flags each chunk at most once, with the first keyword that matches.
func (s *Scanner) Scan(chunks []string) []domain.RedFlag {
	flags := make([]domain.RedFlag, 0)
	for idx, chunk := range chunks {
		for _, p := range s.patterns {
			if p.re.MatchString(chunk) {
				flags = append(flags, domain.RedFlag{
					ChunkIndex: idx,
					Keyword:    p.keyword,
					Text:       chunk,
				})
				break
			}
		}
	}
	return flags
}
