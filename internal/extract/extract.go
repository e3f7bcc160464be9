package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/raglab/ragindex-mcp/pkg/types"
)

// Processor extracts ordered text segments from raw document bytes. Concrete
// format parsers (PDF, Word, ...) plug in behind this interface; the core
// only depends on the contract.
type Processor interface {
	Extract(raw []byte, declaredType string) ([]types.Segment, error)
}

// Registry dispatches extraction by declared format tag.
type Registry struct {
	byFormat map[string]func(raw []byte) ([]types.Segment, error)
}

// NewRegistry creates a registry with the built-in text extractors
// registered. Richer formats are expected to be registered by the host.
func NewRegistry() *Registry {
	r := &Registry{byFormat: make(map[string]func([]byte) ([]types.Segment, error))}
	for _, format := range []string{"txt", "text", "text/plain"} {
		r.Register(format, extractPlaintext)
	}
	for _, format := range []string{"md", "markdown", "text/markdown"} {
		r.Register(format, extractMarkdown)
	}
	return r
}

// Register adds or replaces the extractor for a format tag.
func (r *Registry) Register(format string, fn func(raw []byte) ([]types.Segment, error)) {
	r.byFormat[strings.ToLower(format)] = fn
}

// Extract runs the extractor registered for declaredType.
func (r *Registry) Extract(raw []byte, declaredType string) ([]types.Segment, error) {
	fn, ok := r.byFormat[strings.ToLower(declaredType)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedFormat, declaredType)
	}
	segments, err := fn(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrExtraction, err)
	}
	return segments, nil
}

// Supports reports whether a format tag has a registered extractor.
func (r *Registry) Supports(format string) bool {
	_, ok := r.byFormat[strings.ToLower(format)]
	return ok
}

// extractPlaintext splits UTF-8 text into paragraph segments on blank lines.
func extractPlaintext(raw []byte) ([]types.Segment, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("content is not valid UTF-8")
	}
	return paragraphs(string(raw)), nil
}

// extractMarkdown strips common markdown syntax before paragraph splitting.
// This is intentionally shallow; a full renderer is not worth carrying for
// retrieval text.
func extractMarkdown(raw []byte) ([]types.Segment, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("content is not valid UTF-8")
	}

	var out strings.Builder
	inFence := false
	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			out.WriteString("\n")
			continue
		}
		if inFence {
			out.WriteString(line + "\n")
			continue
		}
		trimmed = strings.TrimLeft(trimmed, "#> ")
		trimmed = strings.ReplaceAll(trimmed, "**", "")
		trimmed = strings.ReplaceAll(trimmed, "`", "")
		out.WriteString(trimmed + "\n")
	}

	return paragraphs(out.String()), nil
}

// paragraphs splits text on blank lines, tracking each paragraph's offset in
// the original string.
func paragraphs(text string) []types.Segment {
	var segments []types.Segment
	offset := 0
	for _, para := range strings.Split(text, "\n\n") {
		trimmed := strings.TrimSpace(para)
		if trimmed != "" {
			segments = append(segments, types.Segment{
				Text:   trimmed,
				Offset: offset + strings.Index(para, trimmed),
			})
		}
		offset += len(para) + 2
	}
	return segments
}
