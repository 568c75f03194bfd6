package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
)

// Hash is a deterministic bag-of-words embedder using feature hashing. It
// needs no backend and is meant for development and tests.
type Hash struct {
	dimension int
}

var _ interfaces.Embedder = &Hash{}

func NewHash(dimension int) *Hash {
	if dimension <= 0 {
		dimension = 256
	}
	return &Hash{dimension: dimension}
}

func (e *Hash) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = e.embed(text)
	}
	return result, nil
}

func (e *Hash) embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum32()

		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[int(sum>>1)%e.dimension] += sign
	}
	model.Normalize(vec)
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
