package chunk

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/docrag/internal/extract"
)

var (
	// One or more blank lines separate paragraphs.
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)

	// Sentence ends, including the Arabic question mark and the Devanagari
	// danda. The punctuation stays with the sentence before it.
	sentenceEnd = regexp.MustCompile(`[.!?؟।]\s+`)
)

const (
	paragraphSep = "\n\n"
	sentenceSep  = " "
)

// unit is a paragraph or a sentence of an oversized paragraph, together with
// the separator placed in front of it when it follows other text.
type unit struct {
	text string
	sep  string
}

// Chunker splits page text into overlapping chunks. It is stateless between
// documents and safe for concurrent use.
type Chunker struct {
	opts Options
}

// New creates a chunker. Zero option values select the defaults; a negative
// Overlap disables overlap.
func New(opts Options) *Chunker {
	def := DefaultOptions()
	if opts.Size <= 0 {
		opts.Size = def.Size
	}
	switch {
	case opts.Overlap < 0:
		opts.Overlap = 0
	case opts.Overlap == 0:
		opts.Overlap = def.Overlap
	}
	if opts.Overlap >= opts.Size {
		opts.Overlap = opts.Size / 8
	}
	if opts.MinPageChars <= 0 {
		opts.MinPageChars = def.MinPageChars
	}
	return &Chunker{opts: opts}
}

// Options returns the effective options.
func (c *Chunker) Options() Options {
	return c.opts
}

// Chunk splits every page of doc into chunks, in page order. Text pages are
// chunked first; each table on the page is then chunked on its own with
// language "table".
func (c *Chunker) Chunk(ctx context.Context, doc *Document) ([]*Chunk, error) {
	fileType := doc.FileType
	if fileType == "" {
		fileType = strings.TrimPrefix(strings.ToLower(filepath.Ext(doc.Filename)), ".")
	}
	base := map[string]string{"file_type": fileType}
	if doc.Size > 0 {
		base["file_size"] = strconv.FormatInt(doc.Size, 10)
	}
	if !doc.ModTime.IsZero() {
		base["modified_at"] = doc.ModTime.UTC().Format(time.RFC3339)
	}

	var chunks []*Chunk
	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		meta := base
		if page.SheetTitle != "" {
			meta = copyMap(base)
			meta["sheet_title"] = page.SheetTitle
			meta["total_cells"] = strconv.Itoa(page.TotalCells)
		}

		index := 0
		add := func(text, lang string) {
			m := copyMap(meta)
			applyPatterns(m, text)
			chunks = append(chunks, &Chunk{
				ID:         ID(doc.Filename, page.Number, index),
				Filename:   doc.Filename,
				Page:       page.Number,
				TotalPages: len(doc.Pages),
				Index:      index,
				Language:   lang,
				Text:       text,
				Metadata:   m,
			})
			index++
		}

		if strings.TrimSpace(page.Text) != "" {
			lang := DetectLanguage(page.Text)
			for _, text := range c.Split(page.Text) {
				add(text, lang)
			}
		}
		for _, table := range page.Tables {
			for _, text := range c.Split(extract.TableText(table)) {
				add(text, LanguageTable)
			}
		}
	}
	return chunks, nil
}

// Split packs the paragraphs of text into chunks of at most Size runes.
// Every chunk after the first starts with the last Overlap runes of the
// chunk before it. A sentence longer than Size becomes a chunk of its own.
// Text shorter than MinPageChars yields no chunks.
func (c *Chunker) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < c.opts.MinPageChars {
		return nil
	}

	var (
		chunks []string
		buf    strings.Builder
		size   int // runes in buf
	)
	emit := func() string {
		out := strings.TrimRightFunc(buf.String(), isSpace)
		chunks = append(chunks, out)
		buf.Reset()
		size = 0
		return out
	}
	write := func(s string) {
		buf.WriteString(s)
		size += utf8.RuneCountInString(s)
	}

	for _, u := range c.units(trimmed) {
		n := utf8.RuneCountInString(u.text)
		switch {
		case size == 0:
			write(u.text)
		case size+len(u.sep)+n <= c.opts.Size:
			write(u.sep)
			write(u.text)
		default:
			seed := lastRunes(emit(), c.opts.Overlap)
			if seed != "" {
				write(seed)
				write(u.sep)
			}
			write(u.text)
		}
	}
	if size > 0 {
		emit()
	}

	if len(chunks) == 0 {
		return []string{firstRunes(trimmed, c.opts.Size)}
	}
	return chunks
}

// units breaks text into paragraphs, and paragraphs longer than Size into
// sentences.
func (c *Chunker) units(text string) []unit {
	var out []unit
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= c.opts.Size {
			out = append(out, unit{text: para, sep: paragraphSep})
			continue
		}
		for i, s := range splitSentences(para) {
			sep := sentenceSep
			if i == 0 {
				sep = paragraphSep
			}
			out = append(out, unit{text: s, sep: sep})
		}
	}
	return out
}

// splitSentences cuts a paragraph after each sentence-ending mark that is
// followed by whitespace.
func splitSentences(para string) []string {
	var (
		out   []string
		start int
	)
	for _, m := range sentenceEnd.FindAllStringIndex(para, -1) {
		_, w := utf8.DecodeRuneInString(para[m[0]:])
		if s := strings.TrimSpace(para[start : m[0]+w]); s != "" {
			out = append(out, s)
		}
		start = m[1]
	}
	if s := strings.TrimSpace(para[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// lastRunes returns the trailing n runes of s.
func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := len(s)
	for count := 0; i > 0 && count < n; count++ {
		_, w := utf8.DecodeLastRuneInString(s[:i])
		i -= w
	}
	return s[i:]
}

// firstRunes returns the leading n runes of s.
func firstRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r' || r == '\f' || r == '\v'
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}
