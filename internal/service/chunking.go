package service

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloo-solutions/citadoc/internal/domain"
)

// DefaultHeadingPattern matches numbered headings ("5. Remote Work Policy",
// "2.1. Eligibility") and short all-caps lines ("BENEFITS OVERVIEW").
const DefaultHeadingPattern = `^(?:\d+(?:\.\d+)*\.\s+\S.{0,78}|[A-Z][A-Z0-9 &/,'()\-]{2,59})$`

var sentenceEnd = regexp.MustCompile(`[.!?]["'”’)\]]*\s+`)

// ChunkConfig controls how extracted text is split into chunks.
type ChunkConfig struct {
	MaxChars       int
	OverlapChars   int
	HeadingPattern string
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:       900,
		OverlapChars:   100,
		HeadingPattern: DefaultHeadingPattern,
	}
}

// ChunkSpan is one window of a text buffer. Offsets are byte offsets into the
// buffer and Content is exactly buffer[StartOffset:EndOffset]. MidSentence is
// set when the window was started by overlap inside a sentence.
type ChunkSpan struct {
	Index        int
	Content      string
	StartOffset  int
	EndOffset    int
	StartLine    int
	EndLine      int
	SectionTitle *string
	MidSentence  bool
}

// Chunker splits text into overlapping, line-addressed windows.
type Chunker struct {
	cfg     ChunkConfig
	heading *regexp.Regexp
}

// NewChunker validates cfg and compiles its heading pattern.
func NewChunker(cfg ChunkConfig) (*Chunker, error) {
	if cfg.MaxChars <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.MaxChars)
	}
	if cfg.OverlapChars < 0 || cfg.OverlapChars >= cfg.MaxChars {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", cfg.MaxChars, cfg.OverlapChars)
	}
	pattern := cfg.HeadingPattern
	if pattern == "" {
		pattern = DefaultHeadingPattern
	}
	heading, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid heading pattern: %w", err)
	}
	return &Chunker{cfg: cfg, heading: heading}, nil
}

// MustNewChunker is NewChunker for configurations known to be valid.
func MustNewChunker(cfg ChunkConfig) *Chunker {
	c, err := NewChunker(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

type span struct {
	start, end int
	runes      int
	mid        bool
}

type line struct {
	start, end int
	text       string
}

type sectionMark struct {
	offset int
	title  string
}

// Split breaks text into chunks that together cover the whole buffer.
func (c *Chunker) Split(text string) ([]ChunkSpan, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyDocument
	}

	lines := splitLines(text)
	blocks, sections := c.blocks(lines)

	segments := make([]span, 0, len(blocks))
	for _, b := range blocks {
		segments = append(segments, c.refine(text, b)...)
	}

	windows := c.pack(text, segments)

	chunks := make([]ChunkSpan, 0, len(windows))
	for i, w := range windows {
		chunks = append(chunks, ChunkSpan{
			Index:        i,
			Content:      text[w.start:w.end],
			StartOffset:  w.start,
			EndOffset:    w.end,
			StartLine:    lineAt(lines, w.start),
			EndLine:      lineAt(lines, w.end-1),
			SectionTitle: sectionAt(sections, w.start),
			MidSentence:  w.mid,
		})
	}
	return chunks, nil
}

// LineCount returns the number of lines in text, counting a final line
// without a trailing newline.
func LineCount(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

func splitLines(text string) []line {
	lines := make([]line, 0, strings.Count(text, "\n")+1)
	start := 0
	for start < len(text) {
		end := strings.IndexByte(text[start:], '\n')
		if end < 0 {
			end = len(text)
		} else {
			end = start + end + 1
		}
		lines = append(lines, line{start: start, end: end, text: text[start:end]})
		start = end
	}
	return lines
}

// blocks groups lines into paragraphs. Blank lines stay with the paragraph
// before them and headings always form their own block, so the blocks are
// contiguous and cover every byte.
func (c *Chunker) blocks(lines []line) ([]span, []sectionMark) {
	var (
		blocks   []span
		sections []sectionMark
	)

	cur := span{start: 0}
	hasText, sawBlank, curHeading := false, false, false

	for _, ln := range lines {
		trimmed := strings.TrimSpace(ln.text)
		if trimmed == "" {
			cur.end = ln.end
			if hasText {
				sawBlank = true
			}
			continue
		}

		isHeading := c.heading.MatchString(trimmed)
		if hasText && (sawBlank || isHeading || curHeading) {
			blocks = append(blocks, cur)
			cur = span{start: ln.start}
			sawBlank = false
		}
		if isHeading {
			sections = append(sections, sectionMark{offset: ln.start, title: trimmed})
		}
		cur.end = ln.end
		hasText = true
		curHeading = isHeading
	}

	if cur.end > cur.start {
		if hasText || len(blocks) == 0 {
			blocks = append(blocks, cur)
		} else {
			blocks[len(blocks)-1].end = cur.end
		}
	}
	return blocks, sections
}

// refine splits an oversized block into sentences, and an oversized sentence
// that spans several lines into lines. A single oversized line is left whole.
func (c *Chunker) refine(text string, b span) []span {
	b.runes = utf8.RuneCountInString(text[b.start:b.end])
	if b.runes <= c.cfg.MaxChars {
		return []span{b}
	}

	var out []span
	for _, s := range splitAt(text, b, sentenceBoundaries(text[b.start:b.end])) {
		if s.runes <= c.cfg.MaxChars || !strings.Contains(strings.TrimRight(text[s.start:s.end], " \t\r\n"), "\n") {
			out = append(out, s)
			continue
		}
		pieces := splitAt(text, s, lineBoundaries(text[s.start:s.end]))
		for j := 1; j < len(pieces); j++ {
			pieces[j].mid = true
		}
		out = append(out, pieces...)
	}
	return out
}

func sentenceBoundaries(block string) []int {
	var cuts []int
	for _, m := range sentenceEnd.FindAllStringIndex(block, -1) {
		if m[1] < len(block) {
			cuts = append(cuts, m[1])
		}
	}
	return cuts
}

func lineBoundaries(s string) []int {
	var cuts []int
	for i := 0; i < len(s)-1; i++ {
		if s[i] == '\n' {
			cuts = append(cuts, i+1)
		}
	}
	return cuts
}

// splitAt cuts s at the given relative offsets. Whitespace-only pieces are
// folded into the following piece, or the previous one at the end.
func splitAt(text string, s span, cuts []int) []span {
	var out []span
	start := s.start
	for _, cut := range append(cuts, s.end-s.start) {
		end := s.start + cut
		if end <= start {
			continue
		}
		if strings.TrimSpace(text[start:end]) == "" && end < s.end {
			continue
		}
		if strings.TrimSpace(text[start:end]) == "" && len(out) > 0 {
			last := &out[len(out)-1]
			last.end = end
			last.runes = utf8.RuneCountInString(text[last.start:last.end])
			start = end
			continue
		}
		out = append(out, span{start: start, end: end, runes: utf8.RuneCountInString(text[start:end])})
		start = end
	}
	return out
}

// pack greedily fills windows with whole segments and seeds each window after
// the first with the tail of the previous one.
func (c *Chunker) pack(text string, segments []span) []span {
	starts := make([]int, len(segments))
	for i, s := range segments {
		starts[i] = s.start
	}

	var windows []span
	carry, carryMid := -1, false
	i := 0
	for i < len(segments) {
		start := segments[i].start
		count := segments[i].runes
		mid := segments[i].mid
		if carry >= 0 {
			start, mid = carry, carryMid
			count = utf8.RuneCountInString(text[carry:segments[i].start]) + segments[i].runes
		}
		end := segments[i].end
		i++

		for i < len(segments) && count+segments[i].runes <= c.cfg.MaxChars {
			count += segments[i].runes
			end = segments[i].end
			i++
		}
		windows = append(windows, span{start: start, end: end, runes: count, mid: mid})

		carry, carryMid = -1, false
		if i < len(segments) {
			carry, carryMid = c.overlapStart(text, segments, starts, start, end, segments[i])
		}
	}
	return windows
}

// overlapStart picks where the next window begins inside [start, end), or -1
// when no usable overlap exists. The flag reports whether that position is
// inside a sentence.
func (c *Chunker) overlapStart(text string, segments []span, starts []int, start, end int, next span) (int, bool) {
	if c.cfg.OverlapChars <= 0 {
		return -1, false
	}

	target := end
	for n := 0; n < c.cfg.OverlapChars && target > start; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:target])
		target -= size
	}
	if target <= start {
		_, size := utf8.DecodeRuneInString(text[start:])
		target = start + size
	}

	candidate, mid := -1, false
	if k := sort.SearchInts(starts, target); k < len(starts) && starts[k] < end {
		candidate, mid = starts[k], segments[k].mid
	} else if candidate = wordStart(text, target, end); candidate >= 0 {
		mid = !endsSentence(text[:candidate])
	}
	if candidate < 0 || strings.TrimSpace(text[candidate:end]) == "" {
		return -1, false
	}
	if utf8.RuneCountInString(text[candidate:end])+next.runes > c.cfg.MaxChars {
		return -1, false
	}
	return candidate, mid
}

func wordStart(text string, from, limit int) int {
	for p := from; p < limit; {
		r, size := utf8.DecodeRuneInString(text[p:])
		if p > 0 && !unicode.IsSpace(r) {
			prev, _ := utf8.DecodeLastRuneInString(text[:p])
			if unicode.IsSpace(prev) {
				return p
			}
		}
		p += size
	}
	return -1
}

// endsSentence reports whether s, ignoring trailing space and closing quotes
// or brackets, ends with a sentence terminator.
func endsSentence(s string) bool {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	s = strings.TrimRight(s, "\"'”’)]")
	r, _ := utf8.DecodeLastRuneInString(s)
	return r == '.' || r == '!' || r == '?'
}

// lineAt returns the 1-based number of the line holding offset.
func lineAt(lines []line, offset int) int {
	return sort.Search(len(lines), func(i int) bool { return lines[i].start > offset })
}

func sectionAt(sections []sectionMark, offset int) *string {
	k := sort.Search(len(sections), func(i int) bool { return sections[i].offset > offset })
	if k == 0 {
		return nil
	}
	title := sections[k-1].title
	return &title
}
