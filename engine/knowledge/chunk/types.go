package chunk

// Document is normalized text with the metadata every chunk inherits.
type Document struct {
	Source   string
	Text     string
	Metadata map[string]any
}

// Settings configures the token window.
type Settings struct {
	Size    int
	Overlap int
}

// Chunk is one window of tokens ready for embedding.
type Chunk struct {
	ID       string
	Text     string
	Hash     string
	Metadata map[string]any
}

const (
	MetaStartWord = "start_word"
	MetaEndWord   = "end_word"
	MetaSource    = "source"
)

// StartWord returns the first token offset recorded on the chunk.
func (c *Chunk) StartWord() int {
	return metaInt(c.Metadata, MetaStartWord)
}

// EndWord returns the exclusive end token offset recorded on the chunk.
func (c *Chunk) EndWord() int {
	return metaInt(c.Metadata, MetaEndWord)
}

func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
