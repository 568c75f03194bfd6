package chunker_test

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
	"github.com/secmon-lab/syllabus/pkg/service/chunker"
)

const sampleDocument = `Course Title: Building Towards Computer Use with Anthropic
Course Link: https://www.deeplearning.ai/short-courses/building-toward-computer-use-with-anthropic/
Course Instructor: Colt Steele

Lesson 0: Introduction
Lesson Link: https://learn.deeplearning.ai/courses/building-toward-computer-use-with-anthropic/lesson/a6k0z/introduction
Welcome to Building Toward Computer Use with Anthropic. Built in partnership with Anthropic, this course is taught by Colt Steele.

Lesson 1: API Basics
Lesson Link: https://learn.deeplearning.ai/courses/building-toward-computer-use-with-anthropic/lesson/gi7h2/api-basics
In this lesson you will make your first request. You will also learn about message roles!

Lesson 3: Multimodal Requests
Images can be sent to the model too. Is that not useful?
`

func TestProcessParsesHeaderAndLessons(t *testing.T) {
	c := chunker.New()
	course, chunks, err := c.Process(sampleDocument)
	gt.NoError(t, err).Required()

	gt.Value(t, course.Title).Equal("Building Towards Computer Use with Anthropic")
	gt.Value(t, course.Link).Equal("https://www.deeplearning.ai/short-courses/building-toward-computer-use-with-anthropic/")
	gt.Value(t, course.Instructor).Equal("Colt Steele")

	gt.Array(t, course.Lessons).Length(3).Required()
	gt.Value(t, course.Lessons[0].Number).Equal(0)
	gt.Value(t, course.Lessons[0].Title).Equal("Introduction")
	gt.String(t, course.Lessons[0].Link).Contains("/lesson/a6k0z/introduction")
	gt.Value(t, course.Lessons[2].Number).Equal(3)
	gt.Value(t, course.Lessons[2].Link).Equal("")

	gt.Array(t, chunks).Length(3).Required()
	for i, chunk := range chunks {
		gt.Value(t, chunk.ChunkIndex).Equal(i)
		gt.Value(t, chunk.CourseTitle).Equal(course.Title)
		gt.Value(t, chunk.LessonNumber).NotNil()
	}

	gt.Value(t, chunks[1].Content).Equal(
		"Course Building Towards Computer Use with Anthropic Lesson 1 content: " +
			"In this lesson you will make your first request. You will also learn about message roles!")
	gt.Value(t, *chunks[2].LessonNumber).Equal(3)
}

func TestProcessWithoutLessons(t *testing.T) {
	doc := "Course Title: Plain Notes\n\nFirst sentence here. Second sentence here.\n"

	course, chunks, err := chunker.New().Process(doc)
	gt.NoError(t, err).Required()
	gt.Value(t, course.Title).Equal("Plain Notes")
	gt.Array(t, course.Lessons).Length(0)

	gt.Array(t, chunks).Length(1).Required()
	gt.Value(t, chunks[0].LessonNumber).Nil()
	gt.Value(t, chunks[0].Content).Equal("Course Plain Notes content: First sentence here. Second sentence here.")
}

func TestProcessHeaderOnly(t *testing.T) {
	course, chunks, err := chunker.New().Process("Course Title: Empty Course\nCourse Instructor: Nobody\n")
	gt.NoError(t, err).Required()
	gt.Value(t, course.Instructor).Equal("Nobody")
	gt.Array(t, chunks).Length(0)
}

func TestProcessHeaderWithBlankLines(t *testing.T) {
	doc := "Course Title: Alpha\n\nCourse Instructor: Jane\n\nLesson 1: Start\nBody sentence."

	course, chunks, err := chunker.New().Process(doc)
	gt.NoError(t, err).Required()
	gt.Value(t, course.Title).Equal("Alpha")
	gt.Value(t, course.Instructor).Equal("Jane")

	gt.Array(t, chunks).Length(1).Required()
	gt.Value(t, chunks[0].Content).Equal("Course Alpha Lesson 1 content: Body sentence.")
}

func TestProcessTextBeforeFirstLesson(t *testing.T) {
	doc := "Course Title: Mixed\nAn overview paragraph.\nLesson 2: Later\nLesson body."

	_, chunks, err := chunker.New().Process(doc)
	gt.NoError(t, err).Required()
	gt.Array(t, chunks).Length(2).Required()
	gt.Value(t, chunks[0].LessonNumber).Nil()
	gt.String(t, chunks[0].Content).Contains("An overview paragraph.")
	gt.Value(t, *chunks[1].LessonNumber).Equal(2)
}

func TestProcessMalformed(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{"empty document", ""},
		{"no title label", "Some random notes.\nLesson 1: Intro\nBody."},
		{"title not among first three lines", "Course Link: a\nCourse Instructor: b\nhello\nCourse Title: late"},
		{"empty title", "Course Title:   \nLesson 1: Intro"},
		{"duplicate lesson", "Course Title: X\nLesson 1: A\nBody.\nLesson 1: B\nBody."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := chunker.New().Process(tc.doc)
			gt.Error(t, err).Is(chunker.ErrMalformedDocument)
		})
	}
}

func TestSplitSentences(t *testing.T) {
	sentences := chunker.SplitSentences("One.  Two!\nThree? Four?! trailing fragment")
	gt.Value(t, sentences).Equal([]string{"One.", "Two!", "Three?", "Four?!", "trailing fragment"})

	// naive boundaries split abbreviations and decimals
	gt.Value(t, chunker.SplitSentences("See e.g. this. Pi is 3. 14 ok")).
		Equal([]string{"See e.g.", "this.", "Pi is 3.", "14 ok"})

	gt.Array(t, chunker.SplitSentences("   ")).Length(0)
}

func TestChunkOverlap(t *testing.T) {
	doc := "Course Title: Overlap\n" +
		"Alpha one two three. Bravo four five six. Charlie seven eight. Delta nine ten."

	c := chunker.New(chunker.WithChunkSize(45), chunker.WithChunkOverlap(20))
	_, chunks, err := c.Process(doc)
	gt.NoError(t, err).Required()

	cores := coresOf(chunks, "Overlap")
	gt.Value(t, cores).Equal([]string{
		"Alpha one two three. Bravo four five six.",
		"Bravo four five six. Charlie seven eight.",
		"Charlie seven eight. Delta nine ten.",
	})
}

func TestOversizedSentence(t *testing.T) {
	long := "This single sentence is deliberately much longer than the limit."
	doc := "Course Title: Big\nAlpha one two three. " + long + " Delta nine ten."

	c := chunker.New(chunker.WithChunkSize(45), chunker.WithChunkOverlap(20))
	_, chunks, err := c.Process(doc)
	gt.NoError(t, err).Required()

	cores := coresOf(chunks, "Big")
	gt.Value(t, cores).Equal([]string{"Alpha one two three.", long, "Delta nine ten."})
}

func TestNewClampsInvalidOptions(t *testing.T) {
	c := chunker.New(chunker.WithChunkSize(0), chunker.WithChunkOverlap(-1))
	gt.Value(t, c.ChunkSize()).Equal(chunker.DefaultChunkSize)
	gt.Value(t, c.ChunkOverlap()).Equal(0)

	c = chunker.New(chunker.WithChunkSize(50), chunker.WithChunkOverlap(50))
	gt.Value(t, c.ChunkOverlap()).Equal(0)
}

func TestChunkProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 50; iter++ {
		size := 60 + rng.Intn(300)
		overlap := rng.Intn(size / 2)
		c := chunker.New(chunker.WithChunkSize(size), chunker.WithChunkOverlap(overlap))

		title := fmt.Sprintf("Generated Course %d", iter)
		lessons := 1 + rng.Intn(4)
		lessonSentences := make(map[int][]string)

		var sb strings.Builder
		fmt.Fprintf(&sb, "Course Title: %s\nCourse Instructor: Tester\n\n", title)
		for l := 0; l < lessons; l++ {
			number := l * 2
			fmt.Fprintf(&sb, "Lesson %d: Topic %d\n", number, l)
			n := 1 + rng.Intn(12)
			for s := 0; s < n; s++ {
				sentence := randomSentence(rng, size)
				lessonSentences[number] = append(lessonSentences[number], sentence)
				sb.WriteString(sentence)
				sb.WriteString(" ")
			}
			sb.WriteString("\n")
		}

		course, chunks, err := c.Process(sb.String())
		gt.NoError(t, err).Required()
		gt.Value(t, course.Title).Equal(title)
		gt.Bool(t, len(chunks) > 0).True()

		byLesson := make(map[int][][]string)
		for i, chunk := range chunks {
			// indexes are 0..n-1 without gaps
			gt.Value(t, chunk.ChunkIndex).Equal(i)
			gt.Value(t, chunk.LessonNumber).NotNil()

			header := chunker.ContextHeader(title, chunk.LessonNumber)
			gt.Bool(t, strings.HasPrefix(chunk.Content, header)).True()
			core := strings.TrimPrefix(chunk.Content, header)

			sentences := chunker.SplitSentences(core)
			if utf8.RuneCountInString(core) > size {
				// only a single oversized sentence may exceed the limit
				gt.Array(t, sentences).Length(1)
				gt.Bool(t, utf8.RuneCountInString(sentences[0]) > size).True()
			}
			byLesson[*chunk.LessonNumber] = append(byLesson[*chunk.LessonNumber], sentences)
		}

		for number, want := range lessonSentences {
			gt.Value(t, mergeOverlaps(byLesson[number])).Equal(want)
		}
	}
}

func TestProcessPreservesLessonOrder(t *testing.T) {
	doc := "Course Title: Ordered\nLesson 5: Five\nFive body.\nLesson 1: One\nOne body."

	course, chunks, err := chunker.New().Process(doc)
	gt.NoError(t, err).Required()
	gt.Value(t, course.Lessons[0].Number).Equal(5)
	gt.Value(t, *chunks[0].LessonNumber).Equal(5)
	gt.Value(t, *chunks[1].LessonNumber).Equal(1)

	sorted := course.SortedLessons()
	gt.Value(t, sorted[0].Number).Equal(1)
}

func TestProcessErrorIsWrapped(t *testing.T) {
	_, _, err := chunker.New().Process("nothing here")
	gt.Bool(t, errors.Is(err, chunker.ErrMalformedDocument)).True()
}

func coresOf(chunks []*model.CourseChunk, title string) []string {
	cores := make([]string, len(chunks))
	for i, chunk := range chunks {
		cores[i] = strings.TrimPrefix(chunk.Content, chunker.ContextHeader(title, chunk.LessonNumber))
	}
	return cores
}

// mergeOverlaps rebuilds the sentence sequence by dropping, from each chunk,
// the longest prefix that repeats the tail of what was already collected.
func mergeOverlaps(chunks [][]string) []string {
	var merged []string
	for _, sentences := range chunks {
		k := 0
		for n := len(sentences) - 1; n > 0; n-- {
			if n <= len(merged) && equalStrings(merged[len(merged)-n:], sentences[:n]) {
				k = n
				break
			}
		}
		merged = append(merged, sentences[k:]...)
	}
	return merged
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var words = []string{"model", "context", "protocol", "server", "client", "prompt", "tool", "vector", "embedding", "lesson", "retrieval", "agent"}

func randomSentence(rng *rand.Rand, size int) string {
	// occasionally produce a sentence longer than the chunk size
	n := 3 + rng.Intn(10)
	if rng.Intn(15) == 0 {
		n = size/4 + 5
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", words[rng.Intn(len(words))], rng.Intn(1000))
	}
	enders := []string{".", "!", "?"}
	return strings.Join(parts, " ") + enders[rng.Intn(len(enders))]
}
