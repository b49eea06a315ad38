package chunker

import (
	"fmt"
	"strings"

	"github.com/ragserve/ragserve/internal/pkg/errs"
)

// Split cuts text into overlapping windows of whitespace-delimited tokens.
// Window i starts at token i*(chunkSize-overlap); the last window may be
// shorter than chunkSize. overlap must be strictly smaller than chunkSize or
// the start position would never advance.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk_size must be positive, got %d", errs.ErrConfig, chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", errs.ErrConfig, chunkSize, overlap)
	}
	tokens := strings.Fields(text)
	step := chunkSize - overlap
	var chunks []string
	for i := 0; i < len(tokens); i += step {
		end := i + chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, strings.Join(tokens[i:end], " "))
	}
	return chunks, nil
}
