package embedding

// Chunk is one token-bounded slice of a larger text.
type Chunk struct {
	Text       string
	TokenCount int
}

// Chunker splits text into token-bounded chunks using a Tokenizer.
type Chunker struct {
	tokenizer Tokenizer
	maxTokens int
}

// NewChunker creates a Chunker with the given per-chunk token cap.
func NewChunker(tokenizer Tokenizer, maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Chunker{tokenizer: tokenizer, maxTokens: maxTokens}
}

// Split partitions text into ordered chunks of at most maxTokens tokens.
// Concatenating the chunk texts reconstructs the input exactly (modulo
// tokenizer round-trip). Empty input yields no chunks.
func (c *Chunker) Split(text string) []Chunk {
	if text == "" {
		return nil
	}

	tokens := c.tokenizer.Encode(text)
	if len(tokens) == 0 {
		return nil
	}

	chunks := make([]Chunk, 0, (len(tokens)+c.maxTokens-1)/c.maxTokens)
	for start := 0; start < len(tokens); start += c.maxTokens {
		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		slice := tokens[start:end]
		chunks = append(chunks, Chunk{
			Text:       c.tokenizer.Decode(slice),
			TokenCount: len(slice),
		})
	}
	return chunks
}

// CountTokens exposes the tokenizer's count for callers that only need the
// number.
func (c *Chunker) CountTokens(text string) int {
	return c.tokenizer.CountTokens(text)
}
