package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/the-deep/deeptree/internal/parser"
	"github.com/the-deep/deeptree/internal/platform"
	"github.com/the-deep/deeptree/internal/store"
	"github.com/the-deep/deeptree/internal/tree"
)

// ErrPlatformDisabled is returned for platform jobs when no client is set.
var ErrPlatformDisabled = errors.New("platform client not configured")

// Worker processes a single import job.
type Worker struct {
	store    store.Store
	platform *platform.Client
	jobs     *JobStore
	log      *slog.Logger
	opts     parser.Options
}

func NewWorker(st store.Store, pc *platform.Client, jobs *JobStore, log *slog.Logger, opts parser.Options) *Worker {
	return &Worker{
		store:    st,
		platform: pc,
		jobs:     jobs,
		log:      log,
		opts:     opts,
	}
}

// Process runs the full import pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "source", job.Source)

	// Phase 1: obtain the tree.
	var root *tree.Node
	var err error
	switch job.Source {
	case SourcePlatform:
		job.SetStatus(StatusFetching, "fetching")
		root, err = w.fetch(ctx, log, job)
		if err != nil {
			log.Error("fetch failed", "error", err)
			job.Fail("fetching", err)
			return
		}
	default:
		if existing, dup := w.duplicateOf(ctx, job); dup {
			log.Info("duplicate upload, skipping", "existing_doc_id", existing)
			job.mu.Lock()
			job.DocID = existing
			job.mu.Unlock()
			job.SetStatus(StatusDupSkipped, "dedup")
			return
		}
		job.SetStatus(StatusParsing, "parsing")
		root = job.parsedRoot()
		if root == nil {
			root, err = ParseFile(job.Filename, job.FileData(), w.opts)
			if err != nil {
				log.Error("parse failed", "error", err)
				job.Fail("parsing", err)
				return
			}
		}
	}

	// Phase 2: validate.
	job.SetStatus(StatusValidating, "validating")
	if err := tree.Validate(tree.Forest{root}); err != nil {
		log.Error("invalid tree", "error", err)
		job.Fail("validating", err)
		return
	}
	nodes := tree.Count(tree.Forest{root})
	if nodes <= 1 && job.Source == SourceUpload {
		job.Fail("validating", errors.New("document produced no nodes"))
		return
	}

	// Phase 3: store.
	job.SetStatus(StatusStoring, "storing")
	title := job.Title
	if title == "" {
		title = root.Label
	}
	doc, err := w.store.Create(ctx, store.Document{
		ID:     job.DocID,
		Title:  title,
		Source: sourceLabel(job),
		Root:   root,
	})
	if err != nil {
		log.Error("store failed", "error", err)
		job.Fail("storing", err)
		return
	}

	job.Complete(doc.ID, nodes)
	log.Info("import complete", "doc_id", doc.ID, "nodes", nodes)
}

func (w *Worker) fetch(ctx context.Context, log *slog.Logger, job *Job) (*tree.Node, error) {
	if w.platform == nil {
		return nil, ErrPlatformDisabled
	}
	var root *tree.Node
	var title string
	err := Retry(ctx, log, "get organigram", func() error {
		var err error
		root, title, err = w.platform.GetOrganigram(ctx, job.FrameworkID, job.WidgetKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	if job.Title == "" {
		job.mu.Lock()
		job.Title = title
		job.mu.Unlock()
	}
	return root, nil
}

// duplicateOf reports an earlier completed import of the same bytes whose
// document still exists. Identical uploads in flight at the same time are
// both stored.
func (w *Worker) duplicateOf(ctx context.Context, job *Job) (string, bool) {
	docID, ok := w.jobs.CompletedByHash(job.ContentHash, job.ID)
	if !ok {
		return "", false
	}
	if _, err := w.store.Get(ctx, docID); err != nil {
		return "", false
	}
	return docID, true
}

// ParseFile picks a parser by extension and builds the tree.
func ParseFile(filename string, data []byte, opts parser.Options) (*tree.Node, error) {
	p, err := parser.ForFileWith(filename, opts)
	if err != nil {
		return nil, err
	}
	root, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return root, nil
}

func sourceLabel(job *Job) string {
	if job.Source == SourcePlatform {
		return fmt.Sprintf("platform:%s/%s", job.FrameworkID, job.WidgetKey)
	}
	return job.Filename
}
