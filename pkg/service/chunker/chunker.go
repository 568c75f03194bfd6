package chunker

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100

	// headerLines is the number of leading lines that may carry course fields
	headerLines = 3
)

var (
	courseFieldPattern = regexp.MustCompile(`(?i)^course\s+(title|link|instructor)\s*:\s*(.*)$`)
	lessonPattern      = regexp.MustCompile(`(?i)^lesson\s+(\d+)\s*:\s*(.*)$`)
	lessonLinkPattern  = regexp.MustCompile(`(?i)^lesson\s+link\s*:\s*(.*)$`)

	// sentenceEnd is a naive boundary: terminal punctuation followed by
	// whitespace. Abbreviations and decimals are split as well.
	sentenceEnd = regexp.MustCompile(`[.!?]+\s`)
)

// Chunker parses course documents and splits them into overlapping chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

type Option func(*Chunker)

// WithChunkSize sets the maximum number of characters of a chunk's core text.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		c.chunkSize = size
	}
}

// WithChunkOverlap sets how many characters of whole trailing sentences are
// repeated at the start of the next chunk.
func WithChunkOverlap(overlap int) Option {
	return func(c *Chunker) {
		c.chunkOverlap = overlap
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.chunkSize <= 0 {
		c.chunkSize = DefaultChunkSize
	}
	if c.chunkOverlap < 0 || c.chunkOverlap >= c.chunkSize {
		c.chunkOverlap = 0
	}
	return c
}

func (c *Chunker) ChunkSize() int    { return c.chunkSize }
func (c *Chunker) ChunkOverlap() int { return c.chunkOverlap }

// section is a run of body text attributed to one lesson, or to no lesson.
type section struct {
	lesson *int
	body   []string
}

// Process parses raw document text into a course and its ordered chunks.
func (c *Chunker) Process(raw string) (*model.Course, []*model.CourseChunk, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	course, rest, err := parseHeader(lines)
	if err != nil {
		return nil, nil, err
	}

	sections, err := parseLessons(course, rest)
	if err != nil {
		return nil, nil, err
	}

	var chunks []*model.CourseChunk
	for _, sec := range sections {
		text := normalize(strings.Join(sec.body, " "))
		if text == "" {
			continue
		}

		for _, core := range c.chunkSentences(SplitSentences(text)) {
			chunks = append(chunks, &model.CourseChunk{
				Content:      ContextHeader(course.Title, sec.lesson) + core,
				CourseTitle:  course.Title,
				LessonNumber: model.CopyInt(sec.lesson),
				ChunkIndex:   len(chunks),
			})
		}
	}

	return course, chunks, nil
}

// ContextHeader is the provenance prefix stored at the head of each chunk.
func ContextHeader(courseTitle string, lesson *int) string {
	if lesson == nil {
		return "Course " + courseTitle + " content: "
	}
	return "Course " + courseTitle + " Lesson " + strconv.Itoa(*lesson) + " content: "
}

func parseHeader(lines []string) (*model.Course, []string, error) {
	// skip leading blank lines
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}

	course := &model.Course{}
	hasTitle := false
	seen := make(map[string]bool, headerLines)

	// header labels come from the first non-blank lines; blank lines between them are skipped
	i, rest := start, start
	for read := 0; i < len(lines) && read < headerLines; i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		read++

		m := courseFieldPattern.FindStringSubmatch(line)
		if m == nil {
			break
		}

		field := strings.ToLower(m[1])
		if seen[field] {
			break
		}
		seen[field] = true

		value := strings.TrimSpace(m[2])
		switch field {
		case "title":
			course.Title = value
			hasTitle = true
		case "link":
			course.Link = value
		case "instructor":
			course.Instructor = value
		}
		rest = i + 1
	}

	if !hasTitle {
		return nil, nil, goerr.Wrap(ErrMalformedDocument, "course title line is missing",
			goerr.V("line", firstLine(lines[start:])))
	}
	if course.Title == "" {
		return nil, nil, goerr.Wrap(ErrMalformedDocument, "course title is empty")
	}

	return course, lines[rest:], nil
}

func parseLessons(course *model.Course, lines []string) ([]section, error) {
	var sections []section
	current := section{}
	seen := make(map[int]bool)
	expectLink := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if m := lessonPattern.FindStringSubmatch(trimmed); m != nil {
			number, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, goerr.Wrap(ErrMalformedDocument, "invalid lesson number",
					goerr.V(model.CourseTitleKey, course.Title),
					goerr.V("line", trimmed))
			}
			if seen[number] {
				return nil, goerr.Wrap(ErrMalformedDocument, "duplicate lesson number",
					goerr.V(model.CourseTitleKey, course.Title),
					goerr.V(model.LessonNumberKey, number))
			}
			seen[number] = true

			sections = append(sections, current)
			course.Lessons = append(course.Lessons, model.Lesson{
				Number: number,
				Title:  strings.TrimSpace(m[2]),
			})
			current = section{lesson: model.IntPtr(number)}
			expectLink = true
			continue
		}

		if expectLink {
			if trimmed == "" {
				continue
			}
			expectLink = false
			if m := lessonLinkPattern.FindStringSubmatch(trimmed); m != nil {
				course.Lessons[len(course.Lessons)-1].Link = strings.TrimSpace(m[1])
				continue
			}
		}

		current.body = append(current.body, trimmed)
	}
	sections = append(sections, current)

	return sections, nil
}

// SplitSentences splits normalized text on terminal punctuation followed by
// whitespace. A trailing fragment without punctuation is kept as a sentence.
func SplitSentences(text string) []string {
	text = normalize(text)
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// chunkSentences greedily packs sentences into chunks of at most chunkSize
// characters. Each new chunk starts with whole trailing sentences of the
// previous chunk totalling at most chunkOverlap characters.
func (c *Chunker) chunkSentences(sentences []string) []string {
	var (
		chunks []string
		cur    []string
		fresh  bool // cur holds at least one sentence not yet emitted
	)

	for i := 0; i < len(sentences); {
		s := sentences[i]
		next := joinedLen(cur) + sepLen(cur) + runeLen(s)

		if next > c.chunkSize && len(cur) > 0 {
			if fresh {
				chunks = append(chunks, strings.Join(cur, " "))
				cur = overlapTail(cur, c.chunkOverlap)
				fresh = false
			} else {
				// overlap alone leaves no room for the sentence
				cur = cur[1:]
			}
			continue
		}

		cur = append(cur, s)
		fresh = true
		i++
	}

	if fresh {
		chunks = append(chunks, strings.Join(cur, " "))
	}
	return chunks
}

func overlapTail(sentences []string, overlap int) []string {
	if overlap <= 0 {
		return nil
	}

	total := 0
	n := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		add := runeLen(sentences[i])
		if n > 0 {
			add++
		}
		if total+add > overlap {
			break
		}
		total += add
		n++
	}

	tail := make([]string, n)
	copy(tail, sentences[len(sentences)-n:])
	return tail
}

func joinedLen(sentences []string) int {
	total := 0
	for i, s := range sentences {
		if i > 0 {
			total++
		}
		total += runeLen(s)
	}
	return total
}

func sepLen(sentences []string) int {
	if len(sentences) == 0 {
		return 0
	}
	return 1
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func firstLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[0])
}
