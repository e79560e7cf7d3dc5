package trellis

import (
	"context"
	"sync"

	"github.com/jward/trellis/internal/fault"
	"github.com/jward/trellis/internal/lang"
	"github.com/jward/trellis/internal/store"
)

// runPipeline executes discovery, parallel extraction, serial commit,
// and the resolution pass for one migration.
//
//	Phase A (serial):   enumerate files under the size limits.
//	Phase B (parallel): parse and extract via worker pool; each worker
//	                    owns its parser, so grammar instances are never
//	                    shared across goroutines.
//	Phase C (serial):   commit each container in its own transaction.
//	Phase D (serial):   resolve cross-container relationship targets.
//
// Cancellation lets in-flight parses finish; their results for fully
// parsed files are committed before the cancelled status is reported.
func (e *Engine) runPipeline(ctx context.Context, migrationID, root string, opts IngestOptions) (*store.MigrationStats, error) {
	stats := &store.MigrationStats{SkippedByReason: map[string]int{}}

	paths, skipped, err := e.discoverFiles(migrationID, root, opts)
	for kind, n := range skipped {
		stats.SkippedByReason[kind] += n
	}
	if err != nil {
		return stats, err
	}
	if len(paths) == 0 {
		return stats, nil
	}

	workers := e.cfg.WorkerThreads
	if workers > len(paths) {
		workers = len(paths)
	}
	if workers < 1 {
		workers = 1
	}

	workCh := make(chan string, len(paths))
	for _, p := range paths {
		workCh <- p
	}
	close(workCh)

	type outcome struct {
		path string
		fr   *fileResult
		err  error
	}
	resultCh := make(chan outcome, len(paths))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			parser := lang.NewParser()
			for path := range workCh {
				// Stop picking up new work once cancelled; in-flight
				// parses have already completed by this point.
				if ctx.Err() != nil {
					resultCh <- outcome{path: path, err: fault.New(fault.KindCancelled, "ingest", ctx.Err())}
					continue
				}
				fr, err := e.processFile(ctx, parser, root, path, opts)
				resultCh <- outcome{path: path, fr: fr, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// Serial commit: store writes are serialized per container; each
	// container is one independent transaction.
	cancelled := false
	for res := range resultCh {
		if res.err != nil {
			if fault.Is(res.err, fault.KindCancelled) {
				cancelled = true
				continue
			}
			kind := diagnosticKind(res.err)
			stats.SkippedByReason[kind]++
			e.diagnose(migrationID, res.path, kind, res.err.Error())
			e.log.Warn("file skipped", "path", res.path, "kind", kind)
			continue
		}

		blocks, rels, err := e.commitFile(migrationID, res.fr)
		if err != nil {
			// Semantic and storage errors abort this container only.
			if fault.Is(err, fault.KindSemantic) || fault.Is(err, fault.KindStorage) {
				kind := diagnosticKind(err)
				stats.SkippedByReason[kind]++
				e.diagnose(migrationID, res.fr.relPath, kind, err.Error())
				e.log.Warn("container aborted", "path", res.fr.relPath, "error", err)
				continue
			}
			return stats, err
		}
		if res.fr.parseErrs > 0 {
			stats.SkippedByReason["parse/partial"]++
			e.diagnose(migrationID, res.fr.relPath, "parse/partial",
				"extracted with damaged regions")
		}
		stats.Files++
		stats.FilesProcessed++
		stats.Blocks += blocks
		stats.Relationships += rels
		stats.Bytes += res.fr.bytes
	}

	if cancelled || ctx.Err() != nil {
		return stats, fault.New(fault.KindCancelled, "ingest", context.Canceled)
	}

	resolved, err := e.store.ResolveMigration(migrationID)
	if err != nil {
		return stats, fault.New(fault.KindStorage, "resolve", err)
	}
	e.log.Info("resolution pass", "migration", migrationID, "resolved", resolved)

	return stats, nil
}
