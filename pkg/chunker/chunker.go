// Package chunker splits document text into token-bounded, sentence-aligned
// chunks for extraction and embedding.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/loomhq/loom/pkg/common"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultMaxTokens bounds the token count of a single chunk.
const DefaultMaxTokens = 512

// DefaultEncoding is the tiktoken encoding used for counting.
const DefaultEncoding = "o200k_base"

// CountTokens measures the token length of a piece of text.
type CountTokens func(text string) int

// TiktokenCounter returns a CountTokens backed by the given tiktoken
// encoding.
func TiktokenCounter(encoding string) (CountTokens, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

// Chunker groups sentences into chunks of at most maxTokens tokens.
// A single sentence longer than the budget becomes its own chunk rather
// than being split mid-sentence.
type Chunker struct {
	maxTokens   int
	countTokens CountTokens
}

// New builds a Chunker. maxTokens <= 0 falls back to DefaultMaxTokens;
// a nil counter falls back to the default tiktoken encoding.
func New(maxTokens int, countTokens CountTokens) (*Chunker, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if countTokens == nil {
		counter, err := TiktokenCounter(DefaultEncoding)
		if err != nil {
			return nil, err
		}
		countTokens = counter
	}
	return &Chunker{maxTokens: maxTokens, countTokens: countTokens}, nil
}

// Split chunks the text for the given document, returning ordered chunks
// with fresh ids. Empty text yields no chunks.
func (c *Chunker) Split(documentID, text string) ([]common.Chunk, error) {
	sentences := splitIntoSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	var chunks []common.Chunk
	chunkStart := -1
	chunkEnd := -1

	flush := func() error {
		if chunkStart < 0 || chunkEnd <= chunkStart {
			return nil
		}
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate chunk id: %w", err)
		}

		content := strings.TrimSpace(strings.Join(sentences[chunkStart:chunkEnd], " "))
		chunks = append(chunks, common.Chunk{
			ID:         id,
			DocumentID: documentID,
			Index:      len(chunks),
			Content:    content,
			TokenCount: c.countTokens(content),
		})
		chunkStart = -1
		chunkEnd = -1
		return nil
	}

	for i := range sentences {
		if chunkStart < 0 {
			chunkStart = i
			chunkEnd = i + 1
			continue
		}

		candidate := strings.Join(sentences[chunkStart:i+1], " ")
		if c.countTokens(candidate) <= c.maxTokens {
			chunkEnd = i + 1
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}
		chunkStart = i
		chunkEnd = i + 1
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// splitIntoSentences breaks text into sentences, treating blank lines as
// hard boundaries and joining wrapped lines back together.
func splitIntoSentences(text string) []string {
	lines := strings.Split(text, "\n")
	var sentences []string
	var current strings.Builder

	flushCurrent := func() {
		if current.Len() > 0 {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flushCurrent()
			continue
		}

		for _, sentence := range splitLineIntoSentences(trimmed) {
			if current.Len() > 0 {
				current.WriteString(" ")
			}
			current.WriteString(sentence)

			s := strings.TrimSpace(sentence)
			if strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") {
				flushCurrent()
			}
		}
	}
	flushCurrent()

	var result []string
	for _, s := range sentences {
		if strings.TrimSpace(s) != "" {
			result = append(result, s)
		}
	}
	return result
}

func splitLineIntoSentences(line string) []string {
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(line); i++ {
		current.WriteByte(line[i])

		if line[i] == '.' || line[i] == '!' || line[i] == '?' {
			// "1. first item" is a listing marker, not a sentence end.
			isNumericListing := i > 0 &&
				unicode.IsDigit(rune(line[i-1])) &&
				i+1 < len(line) && line[i+1] == ' '
			if isNumericListing {
				continue
			}

			if i+1 >= len(line) || line[i+1] == ' ' {
				sentences = append(sentences, strings.TrimSpace(current.String()))
				current.Reset()
				// skip the separating space
				if i+1 < len(line) {
					i++
				}
			}
		}
	}

	if strings.TrimSpace(current.String()) != "" {
		sentences = append(sentences, strings.TrimSpace(current.String()))
	}
	return sentences
}
