package chunk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/compozy/docqa/engine/core"
)

// Processor splits text into overlapping windows of whitespace separated tokens.
type Processor struct {
	settings Settings
}

// NewProcessor validates the window settings. Overlap may reach or exceed
// Size, in which case windows advance one token at a time.
func NewProcessor(settings Settings) (*Processor, error) {
	if settings.Size <= 0 {
		return nil, errors.New("chunk: size must be greater than zero")
	}
	if settings.Overlap < 0 {
		return nil, errors.New("chunk: overlap cannot be negative")
	}
	return &Processor{settings: settings}, nil
}

// Settings returns the window configuration.
func (p *Processor) Settings() Settings {
	return p.settings
}

func (p *Processor) step() int {
	return max(1, p.settings.Size-p.settings.Overlap)
}

// Chunk splits text into windows. Each window spans tokens [start_word, end_word)
// and the last one may be shorter than Size. Blank text yields no chunks.
func (p *Processor) Chunk(text string) []Chunk {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return []Chunk{}
	}
	size := p.settings.Size
	step := p.step()
	chunks := make([]Chunk, 0, len(tokens)/step+1)
	for start := 0; start < len(tokens); start += step {
		end := min(start+size, len(tokens))
		content := strings.Join(tokens[start:end], " ")
		chunks = append(chunks, Chunk{
			ID:   core.NewChunkID(),
			Text: content,
			Hash: core.ContentHash(content),
			Metadata: map[string]any{
				MetaStartWord: start,
				MetaEndWord:   end,
			},
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

// Process chunks each document and copies its metadata onto every chunk.
func (p *Processor) Process(docs []Document) ([]Chunk, error) {
	var out []Chunk
	for i := range docs {
		doc := &docs[i]
		if strings.TrimSpace(doc.Text) == "" {
			return nil, fmt.Errorf("chunk: document %q has no text", doc.Source)
		}
		for _, c := range p.Chunk(doc.Text) {
			meta := core.CloneMap(doc.Metadata)
			for k, v := range c.Metadata {
				meta[k] = v
			}
			if doc.Source != "" {
				meta[MetaSource] = doc.Source
			}
			c.Metadata = meta
			out = append(out, c)
		}
	}
	return out, nil
}
