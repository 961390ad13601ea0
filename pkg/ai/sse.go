package ai

import (
	"bufio"
	"io"
	"strings"
)

// sseReader extracts the payload of "data:" lines from a server-sent event
// stream, skipping comments and other fields.
type sseReader struct {
	r *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{r: bufio.NewReader(r)}
}

// next returns the next data payload, or io.EOF when the stream ends.
func (s *sseReader) next() (string, error) {
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && strings.HasPrefix(strings.TrimSpace(line), "data:") {
				return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "data:")), nil
			}
			return "", err
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		return payload, nil
	}
}
