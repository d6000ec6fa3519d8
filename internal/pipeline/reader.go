package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/corpusforge/corpus/internal/record"
)

// candidateLine is the JSONL shape emitted by upstream converters. Either a
// bare text field or a chat-format message list; for chat records the
// assistant answer (third message) is the dedup text.
type candidateLine struct {
	Source   string `json:"source"`
	Text     string `json:"text"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// ReadCandidates parses a JSONL candidate stream into input records.
// Malformed lines (unparseable, missing text or source) are per-record
// failures: they are skipped and reported, and the batch continues. The
// original line is retained as the record's passthrough payload.
func ReadCandidates(r io.Reader) ([]record.InputRecord, []string, error) {
	var inputs []record.InputRecord
	var skipped []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var cand candidateLine
		if err := json.Unmarshal([]byte(line), &cand); err != nil {
			skipped = append(skipped, reason(lineNo, "not valid JSON"))
			continue
		}

		text := cand.Text
		if text == "" && len(cand.Messages) >= 3 {
			text = cand.Messages[2].Content
		}

		if text == "" {
			skipped = append(skipped, reason(lineNo, "missing text"))
			continue
		}
		if cand.Source == "" {
			skipped = append(skipped, reason(lineNo, "missing source"))
			continue
		}

		inputs = append(inputs, record.InputRecord{
			Source:  cand.Source,
			Text:    text,
			Payload: json.RawMessage(line),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	return inputs, skipped, nil
}

func reason(lineNo int, msg string) string {
	return fmt.Sprintf("line %d: %s", lineNo, msg)
}
