package strategy

import (
	"regexp"
	"strings"
)

// FileChange is one file extracted from an LM response.
type FileChange struct {
	Path    string
	Content string
}

// Fence opener with an optional language and path: ```go:internal/x.go
var fenceOpenRe = regexp.MustCompile("^```([A-Za-z0-9_+-]*)(?::([^\\s`]+))?\\s*$")

// Leading path comment inside a block: // file: path  (or # file: path)
var fileCommentRe = regexp.MustCompile(`^(?://|#)\s*[Ff]ile:\s*(\S+)`)

// ParseFileChanges extracts fenced code blocks from an LM response. A block
// names its file either in the fence info string (lang:path) or in a leading
// comment line; an unlabelled block falls back to defaultPath. Blocks with
// no resolvable path are dropped.
func ParseFileChanges(response, defaultPath string) []FileChange {
	var changes []FileChange
	lines := strings.Split(response, "\n")

	i := 0
	for i < len(lines) {
		m := fenceOpenRe.FindStringSubmatch(strings.TrimSpace(lines[i]))
		if m == nil {
			i++
			continue
		}
		path := m[2]

		// Collect the block body up to the closing fence.
		var body []string
		i++
		for i < len(lines) && strings.TrimSpace(lines[i]) != "```" {
			body = append(body, lines[i])
			i++
		}
		i++ // past the closing fence

		// A leading file comment wins over no fence label.
		if path == "" && len(body) > 0 {
			if fm := fileCommentRe.FindStringSubmatch(strings.TrimSpace(body[0])); fm != nil {
				path = fm[1]
				body = body[1:]
			}
		}
		if path == "" {
			path = defaultPath
		}
		if path == "" || len(body) == 0 {
			continue
		}

		content := strings.Join(body, "\n")
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		changes = append(changes, FileChange{Path: path, Content: content})
	}
	return changes
}
