package ai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"pitchbook/pkg/errors"
	"pitchbook/pkg/logger"
)

// DocumentIndex manages uploaded source documents and the hosted vector
// store that serves semantic search over them. It backs the document search
// tool used by document-heavy participants.
type DocumentIndex struct {
	client        openai.Client
	vectorStoreID string
	pollInterval  time.Duration
	pollTimeout   time.Duration
	log           *logger.Logger
}

// DocumentIndexConfig configures index construction.
type DocumentIndexConfig struct {
	Name         string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// NewDocumentIndex uploads the given files, creates a vector store over them
// and waits until the store finishes processing.
func NewDocumentIndex(ctx context.Context, client *OpenAIClient, paths []string, cfg DocumentIndexConfig) (*DocumentIndex, error) {
	if len(paths) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "no document paths provided")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 5 * time.Minute
	}

	idx := &DocumentIndex{
		client:       client.client,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		log:          logger.Get().With("component", "document_index"),
	}

	fileIDs := make([]string, 0, len(paths))
	for _, path := range paths {
		id, err := idx.uploadFile(ctx, path)
		if err != nil {
			return nil, errors.Wrapf(err, "upload %s", path)
		}
		fileIDs = append(fileIDs, id)
		idx.log.Infof("Uploaded document %s (file_id=%s)", filepath.Base(path), id)
	}

	store, err := idx.client.VectorStores.New(ctx, openai.VectorStoreNewParams{
		Name:    openai.String(cfg.Name),
		FileIDs: fileIDs,
	})
	if err != nil {
		return nil, errors.Wrap(classifyError(err), "create vector store")
	}
	idx.vectorStoreID = store.ID

	if err := idx.waitUntilReady(ctx); err != nil {
		return nil, err
	}

	idx.log.Infof("Vector store ready: %s (%d files)", store.ID, len(fileIDs))
	return idx, nil
}

// VectorStoreID returns the hosted store identifier.
func (idx *DocumentIndex) VectorStoreID() string {
	return idx.vectorStoreID
}

// Search runs a semantic query against the store and formats the matching
// chunks as plain text for tool consumption.
func (idx *DocumentIndex) Search(ctx context.Context, query string, maxResults int) (string, error) {
	if query == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "query cannot be empty")
	}
	if maxResults <= 0 {
		maxResults = 8
	}

	page, err := idx.client.VectorStores.Search(ctx, idx.vectorStoreID, openai.VectorStoreSearchParams{
		Query:         openai.VectorStoreSearchParamsQueryUnion{OfString: openai.String(query)},
		MaxNumResults: openai.Int(int64(maxResults)),
	})
	if err != nil {
		return "", errors.Wrap(classifyError(err), "vector store search")
	}

	if len(page.Data) == 0 {
		return fmt.Sprintf("No document passages found for %q.", query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d passages for %q:\n", len(page.Data), query)
	for i, result := range page.Data {
		fmt.Fprintf(&b, "\n%d. %s (score %.3f)\n", i+1, result.Filename, result.Score)
		for _, content := range result.Content {
			if content.Text != "" {
				b.WriteString(content.Text)
				b.WriteString("\n")
			}
		}
	}

	return b.String(), nil
}

// uploadFile uploads one local file for assistant-style consumption.
func (idx *DocumentIndex) uploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open document")
	}
	defer func() { _ = f.Close() }()

	file, err := idx.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(f, filepath.Base(path), "application/pdf"),
		Purpose: openai.FilePurposeAssistants,
	})
	if err != nil {
		return "", classifyError(err)
	}

	return file.ID, nil
}

// waitUntilReady polls the store until processing completes or the deadline
// passes.
func (idx *DocumentIndex) waitUntilReady(ctx context.Context) error {
	deadline := time.Now().Add(idx.pollTimeout)

	for {
		store, err := idx.client.VectorStores.Get(ctx, idx.vectorStoreID)
		if err != nil {
			return errors.Wrap(classifyError(err), "poll vector store")
		}

		if store.Status == "completed" {
			return nil
		}
		if store.FileCounts.Failed > 0 {
			return errors.Wrapf(errors.ErrInternal, "%d files failed vector store processing", store.FileCounts.Failed)
		}
		if time.Now().After(deadline) {
			return errors.Wrapf(errors.ErrTimeout, "vector store %s not ready after %s", idx.vectorStoreID, idx.pollTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(idx.pollInterval):
		}
	}
}
