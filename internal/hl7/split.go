package hl7

import "strings"

// SplitBatch splits a file that may contain several concatenated HL7 messages
// into individual message chunks. A chunk starts at every "MSH|" that sits at
// the beginning of a line, so each returned chunk begins with its own header.
// Text before the first header, and chunks that do not start with "MSH|" after
// trimming, are discarded.
func SplitBatch(raw string) []string {
	var starts []int
	for i := 0; i+4 <= len(raw); i++ {
		if raw[i:i+4] != "MSH|" {
			continue
		}
		if i == 0 || raw[i-1] == '\r' || raw[i-1] == '\n' {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		return nil
	}

	var chunks []string
	for i, start := range starts {
		end := len(raw)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		chunk := strings.TrimSpace(raw[start:end])
		if strings.HasPrefix(chunk, "MSH|") {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}
