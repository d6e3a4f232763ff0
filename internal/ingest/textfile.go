package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/atsume-io/atsume/internal/models"
)

// streamText reads the text file at path line by line, decoding from
// charsetName, and emits one record whenever the accumulated buffer reaches
// chunkSize runes. After each emitted chunk the buffer is reset to its
// trailing overlap runes so adjacent chunks share context. A non-empty
// remainder at end of file becomes one final record. The whole file is never
// held in memory at once.
func streamText(path, charsetName, stem string, baseMeta map[string]interface{}, chunkSize, overlap int, emit func(models.Record) error) error {
	if err := ValidateChunkParams(chunkSize, overlap); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open text file %s: %w", path, err)
	}
	defer f.Close()

	reader := bufio.NewReader(decodeReader(f, charsetName))
	buffer := ""
	runeLen := 0
	chunkIdx := 0

	emitChunk := func(text string, idx int) error {
		meta := mergeMetadata(baseMeta, map[string]interface{}{"file": path, "chunk_index": idx})
		return emit(models.Record{
			ID:       fmt.Sprintf("%s_chunk_%d", stem, idx),
			Document: text,
			Metadata: meta,
		})
	}

	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			buffer += line
			runeLen += utf8.RuneCountInString(line)
			if runeLen >= chunkSize {
				if err := emitChunk(buffer, chunkIdx); err != nil {
					return err
				}
				chunkIdx++
				if overlap > 0 {
					runes := []rune(buffer)
					tail := runes[len(runes)-overlap:]
					buffer = string(tail)
					runeLen = len(tail)
				} else {
					buffer = ""
					runeLen = 0
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read text file %s: %w", path, readErr)
		}
	}

	if buffer != "" {
		if err := emitChunk(buffer, chunkIdx); err != nil {
			return err
		}
	}
	return nil
}
