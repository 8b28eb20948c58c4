package knowledge

import (
	"unicode"
	"unicode/utf8"

	"github.com/zentiam/assistd/internal/storage"
)

// chunkSize is the soft byte limit per chunk. Chunks break on word
// boundaries, so a chunk can run slightly over; a single word longer than
// the limit becomes its own chunk.
const chunkSize = 500

// splitChunks windows text into word-aligned chunks with stable offsets into
// the original text. The returned chunks have Ord, StartOffset, and Body set;
// the caller assigns ids.
func splitChunks(text string) []storage.Chunk {
	var chunks []storage.Chunk
	ord := 0
	chunkStart := -1
	chunkEnd := 0

	emit := func() {
		if chunkStart < 0 {
			return
		}
		chunks = append(chunks, storage.Chunk{
			Ord:         ord,
			StartOffset: chunkStart,
			Body:        text[chunkStart:chunkEnd],
		})
		ord++
		chunkStart = -1
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}

		// Word spans [i, j).
		j := i
		for j < len(text) {
			r, size := utf8.DecodeRuneInString(text[j:])
			if unicode.IsSpace(r) {
				break
			}
			j += size
		}

		if chunkStart >= 0 && j-chunkStart > chunkSize {
			emit()
		}
		if chunkStart < 0 {
			chunkStart = i
		}
		chunkEnd = j
		i = j
	}
	emit()
	return chunks
}
