package service

import (
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloo-solutions/citadoc/internal/domain"
)

var citationMarker = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// SnippetConfig bounds citation snippets, in characters.
type SnippetConfig struct {
	MaxChars  int
	ScanChars int
}

// DefaultSnippetConfig provides sane defaults for snippets.
func DefaultSnippetConfig() SnippetConfig {
	return SnippetConfig{
		MaxChars:  250,
		ScanChars: 200,
	}
}

// CitationResolver turns [n] markers in an answer into citations.
type CitationResolver struct {
	cfg SnippetConfig
}

func NewCitationResolver(cfg SnippetConfig) *CitationResolver {
	if cfg.MaxChars <= 3 {
		cfg.MaxChars = DefaultSnippetConfig().MaxChars
	}
	if cfg.ScanChars < 0 {
		cfg.ScanChars = 0
	}
	return &CitationResolver{cfg: cfg}
}

// Resolve returns one citation per distinct in-range marker, in order of first
// appearance. Markers outside the source list are logged and skipped.
func (r *CitationResolver) Resolve(answer string, sources SourceList) []domain.Citation {
	citations := []domain.Citation{}
	seen := make(map[int]bool)

	for _, match := range citationMarker.FindAllStringSubmatch(answer, -1) {
		for _, part := range strings.Split(match[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				log.Printf("citation: dropping marker [%s], only %d sources available", strings.TrimSpace(part), sources.Len())
				continue
			}
			if seen[n] {
				continue
			}
			seen[n] = true

			src, ok := sources.At(n)
			if !ok {
				log.Printf("citation: dropping marker [%d], only %d sources available", n, sources.Len())
				continue
			}
			citations = append(citations, r.citationFor(n, src))
		}
	}

	return citations
}

func (r *CitationResolver) citationFor(n int, src domain.RetrievedChunk) domain.Citation {
	var section *string
	if src.SectionTitle != nil {
		title := *src.SectionTitle
		section = &title
	}
	return domain.Citation{
		Index:        n,
		DocumentID:   src.DocumentID,
		ChunkID:      src.ID,
		DocName:      src.DocumentName,
		SectionTitle: section,
		StartLine:    src.StartLine,
		EndLine:      src.EndLine,
		Snippet:      r.Snippet(src.Content, src.MidSentence),
	}
}

// Snippet renders chunk content for display. Content that starts mid-sentence
// is advanced to the next sentence when one starts within ScanChars.
func (r *CitationResolver) Snippet(content string, midSentence bool) string {
	runes := []rune(strings.Join(strings.Fields(content), " "))
	if len(runes) == 0 {
		return ""
	}

	if midSentence {
		runes = runes[nextSentence(runes, r.cfg.ScanChars):]
	}

	if len(runes) <= r.cfg.MaxChars {
		return string(runes)
	}

	cut := r.cfg.MaxChars - 3
	k := cut
	for k > 0 && runes[k] != ' ' {
		k--
	}
	if k == 0 {
		k = cut
	}
	return strings.TrimRight(string(runes[:k]), " ") + "..."
}

func isClosing(r rune) bool {
	return strings.ContainsRune("\"'”’)]", r)
}

// nextSentence returns the index after the first sentence terminator found in
// the first limit runes, or 0 when there is none.
func nextSentence(runes []rune, limit int) int {
	if limit > len(runes) {
		limit = len(runes)
	}
	for i := 0; i < limit; i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(runes) && isClosing(runes[j]) {
			j++
		}
		if j+1 < len(runes) && runes[j] == ' ' {
			return j + 1
		}
	}
	return 0
}
