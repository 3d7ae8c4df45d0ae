package adapters

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

var encodings sync.Map

// CountTokens estimates how many tokens text occupies for model. Unknown models use cl100k_base;
// when no encoding can be loaded it falls back to a word count.
func CountTokens(model, text string) int {
	if enc := encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(strings.Fields(text))
}

// ObserveTokens records prompt or completion size for model.
func ObserveTokens(model, direction, text string) int {
	n := CountTokens(model, text)
	tokensEstimated.WithLabelValues(model, direction).Observe(float64(n))
	return n
}

func encodingFor(model string) *tiktoken.Tiktoken {
	if v, ok := encodings.Load(model); ok {
		return v.(*tiktoken.Tiktoken)
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil
		}
	}
	encodings.Store(model, enc)
	return enc
}
