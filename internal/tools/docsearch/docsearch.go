package docsearch

import (
	"context"

	"pitchbook/internal/tools"
	"pitchbook/pkg/errors"
)

// Searcher is the slice of the document index the tool needs.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (string, error)
}

const defaultMaxResults = 8

// NewTool exposes indexed financial documents to participants as a search
// tool.
func NewTool(index Searcher) tools.Tool {
	params := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "What to look for in the uploaded financial documents.",
			},
		},
		"required": []string{"query"},
	}

	return tools.New(
		"search_documents",
		"Search the uploaded financial documents (annual reports, filings) for relevant passages.",
		params,
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			query, ok := tools.StringArg(args, "query")
			if !ok || query == "" {
				return "", errors.Wrap(errors.ErrInvalidInput, "query is required")
			}
			return index.Search(ctx, query, defaultMaxResults)
		},
	)
}
