package knowledge

import "strings"

const (
	defaultChunkWords   = 512
	defaultChunkOverlap = 50
)

// Chunk is one window of a larger document.
type Chunk struct {
	Text     string
	StartIdx int
	EndIdx   int
}

// ChunkText splits text into overlapping word windows so long documents
// embed and retrieve at paragraph granularity.
func ChunkText(text string, chunkWords, overlap int) []Chunk {
	if chunkWords <= 0 {
		chunkWords = defaultChunkWords
	}
	if overlap < 0 || overlap >= chunkWords {
		overlap = defaultChunkOverlap
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []Chunk
	step := chunkWords - overlap
	for i := 0; i < len(words); i += step {
		end := i + chunkWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			Text:     strings.Join(words[i:end], " "),
			StartIdx: i,
			EndIdx:   end,
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}
