package retriever

import (
	"context"
	"fmt"
	"strings"
)

// rewriteQuery asks the generator for n alternative phrasings of the query,
// one per line. On failure it returns nil; the caller drops the rewrite legs
// rather than failing the request.
func (o *Orchestrator) rewriteQuery(ctx context.Context, query string, n int) []string {
	if o.gen == nil || n <= 0 {
		return nil
	}

	prompt := fmt.Sprintf(`Rewrite the following search query %d different ways to improve document retrieval.
Keep the core intent, use more specific vocabulary, and return exactly %d rewrites, one per line, with no numbering or commentary.

Query: %s`, n, n, query)

	out, err := o.gen.Generate(ctx, prompt)
	if err != nil {
		return nil
	}

	var rewrites []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line == "" || strings.EqualFold(line, query) {
			continue
		}
		rewrites = append(rewrites, line)
		if len(rewrites) == n {
			break
		}
	}
	return rewrites
}

// hypotheticalAnswer produces a HyDE passage: a short synthetic ideal answer
// whose embedding serves as an extra query vector. Returns "" on failure.
func (o *Orchestrator) hypotheticalAnswer(ctx context.Context, query string) string {
	if o.gen == nil {
		return ""
	}

	prompt := fmt.Sprintf(`Write a short, factual passage (3-5 sentences) that would be the ideal answer to the question below.
Do not mention that it is hypothetical; just write the passage.

Question: %s`, query)

	out, err := o.gen.Generate(ctx, prompt)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}
