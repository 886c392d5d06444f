package fs

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"math"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/jot/pkg/core"
)

// Frontmatter keys owned by the store. Any other key is carried through writes untouched.
const (
	keyCreatedAt = "createdAt"
	keyUpdatedAt = "updatedAt"
)

var (
	frontmatterOpen  = []byte("---\n")
	frontmatterClose = []byte("\n---\n")

	errUnclosedFrontmatter = errors.New("frontmatter started but no closing delimiter found")
)

// document is a note file split into its frontmatter and body.
type document struct {
	Meta map[string]any
	Body string
}

// parseDocument splits a markdown file. A file without frontmatter is all body.
func parseDocument(data []byte) (document, error) {
	doc := document{Meta: make(map[string]any)}
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	if !bytes.HasPrefix(data, frontmatterOpen) {
		doc.Body = string(data)
		return doc, nil
	}

	rest := data[len(frontmatterOpen):]
	var yamlData, body []byte
	switch {
	case bytes.HasPrefix(rest, []byte("---\n")):
		body = rest[4:]
	case bytes.Equal(rest, []byte("---")):
	default:
		end := bytes.Index(rest, frontmatterClose)
		if end < 0 {
			if !bytes.HasSuffix(rest, []byte("\n---")) {
				return doc, errUnclosedFrontmatter
			}
			end = len(rest) - 4
			yamlData = rest[:end]
		} else {
			yamlData = rest[:end]
			body = rest[end+len(frontmatterClose):]
		}
	}

	if len(bytes.TrimSpace(yamlData)) > 0 {
		if err := yaml.Unmarshal(yamlData, &doc.Meta); err != nil {
			return doc, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
		if doc.Meta == nil {
			doc.Meta = make(map[string]any)
		}
	}
	doc.Body = string(body)
	return doc, nil
}

// serializeDocument is the inverse of parseDocument: parsing its output yields
// the same body byte for byte.
func serializeDocument(doc document) ([]byte, error) {
	var buf bytes.Buffer
	if len(doc.Meta) > 0 {
		buf.Write(frontmatterOpen)
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(doc.Meta); err != nil {
			return nil, err
		}
		encoder.Close()
		buf.WriteString("---\n")
	}
	buf.WriteString(doc.Body)
	return buf.Bytes(), nil
}

// toNote maps a parsed document onto a note. fallback stands in for a missing
// createdAt, usually the file's modification time.
func (d document) toNote(id string, fallback int64) core.Note {
	n := core.Note{ID: id, Body: d.Body, CreatedAt: fallback}
	if v, ok := millisValue(d.Meta[keyCreatedAt]); ok {
		n.CreatedAt = v
	}
	if v, ok := millisValue(d.Meta[keyUpdatedAt]); ok {
		n.UpdatedAt = v
	}
	return n
}

// merged returns a copy of d with the update applied. Extra keys survive.
func (d document) merged(f core.UpdateFields) document {
	meta := maps.Clone(d.Meta)
	if meta == nil {
		meta = make(map[string]any)
	}
	meta[keyUpdatedAt] = f.UpdatedAt
	return document{Meta: meta, Body: f.Body}
}

func newDocument(f core.CreateFields) document {
	return document{
		Meta: map[string]any{keyCreatedAt: f.CreatedAt},
		Body: f.Body,
	}
}

func millisValue(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case float64:
		return int64(x), true
	case time.Time:
		return core.Millis(x), true
	default:
		return 0, false
	}
}
