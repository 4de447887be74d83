package render

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

var delimiter = []byte("---")

// splitFrontmatter separates an optional leading YAML block delimited by
// "---" lines from the template body.
func splitFrontmatter(content []byte) (map[string]any, []byte, error) {
	if !bytes.HasPrefix(content, delimiter) {
		return map[string]any{}, content, nil
	}

	rest := bytes.TrimLeft(bytes.TrimPrefix(content, delimiter), "\r\n")
	if len(rest) == 0 {
		return nil, nil, fmt.Errorf("%w: no content after opening delimiter", ErrInvalidFrontmatter)
	}

	end := closingDelimiter(rest)
	if end == -1 {
		return nil, nil, fmt.Errorf("%w: closing delimiter not found", ErrInvalidFrontmatter)
	}

	front := rest[:end]
	body := rest[end+len(delimiter):]
	// one line break after the closing delimiter belongs to it
	switch {
	case bytes.HasPrefix(body, []byte("\r\n")):
		body = body[2:]
	case bytes.HasPrefix(body, []byte("\n")):
		body = body[1:]
	}

	meta := map[string]any{}
	if len(bytes.TrimSpace(front)) > 0 {
		if err := yaml.Unmarshal(front, &meta); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
		}
	}
	return meta, body, nil
}

// closingDelimiter returns the offset of the first "---" that starts a line,
// or -1.
func closingDelimiter(rest []byte) int {
	if bytes.HasPrefix(rest, delimiter) {
		return 0
	}
	i := bytes.Index(rest, []byte("\n---"))
	if i == -1 {
		return -1
	}
	return i + 1
}
