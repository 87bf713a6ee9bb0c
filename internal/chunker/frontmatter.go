package chunker

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterFence = "---"

// splitFrontmatter separates an optional leading YAML frontmatter block from
// the document body. An invalid or unterminated header block falls back to
// empty frontmatter with the whole document as body; it never fails.
func splitFrontmatter(content string) (map[string]string, string) {
	empty := map[string]string{}

	rest, ok := strings.CutPrefix(content, frontmatterFence+"\n")
	if !ok {
		if content == frontmatterFence {
			return empty, ""
		}
		return empty, content
	}

	end := strings.Index(rest, "\n"+frontmatterFence)
	if end < 0 {
		// Unterminated fence: treat the whole document as body.
		return empty, content
	}
	block := rest[:end]
	body := rest[end+len("\n"+frontmatterFence):]
	body = strings.TrimPrefix(body, "\n")

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return empty, content
	}

	fm := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			fm[key] = ""
		case string:
			fm[key] = v
		case bool, int, int64, float64:
			fm[key] = fmt.Sprintf("%v", v)
		default:
			// Nested structures are flattened to their YAML form so no
			// metadata is silently dropped.
			if b, err := yaml.Marshal(v); err == nil {
				fm[key] = strings.TrimSpace(string(b))
			}
		}
	}
	return fm, body
}

// SerializeFrontmatter renders key-value metadata back into a fenced YAML
// header block, with keys in sorted order so output is deterministic.
// Returns "" for empty metadata.
func SerializeFrontmatter(fm map[string]string) string {
	if len(fm) == 0 {
		return ""
	}

	keys := make([]string, 0, len(fm))
	for key := range fm {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(frontmatterFence + "\n")
	for _, key := range keys {
		line, err := yaml.Marshal(map[string]string{key: fm[key]})
		if err != nil {
			continue
		}
		b.Write(line)
	}
	b.WriteString(frontmatterFence + "\n")
	return b.String()
}
