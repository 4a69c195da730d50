package embedding

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens and round-trips text through token space.
// Chunking is defined on token boundaries so stored token counts always
// agree with the provider's tokenizer.
type Tokenizer interface {
	CountTokens(text string) int
	Encode(text string) []int
	Decode(tokens []int) string
}

// TiktokenTokenizer wraps the BPE tokenizer matching an OpenAI embedding
// model.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the encoding for an embedding model name.
func NewTiktokenTokenizer(model string) (*TiktokenTokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("embedding: load tokenizer for %s: %w", model, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

func (t *TiktokenTokenizer) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

func (t *TiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *TiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
