package labeling

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sls/sls/internal/domain/rules"
	"github.com/sls/sls/internal/platform/fhir"
)

// Batch-level errors. These reject the whole request with no partial output.
var (
	ErrRulesNotLoaded = errors.New("no sensitivity rules loaded")
	ErrEmptyBatch     = errors.New("batch contains no entries")
)

// Service runs a labeling batch: one snapshot bind, a gate decision per
// record, scan and label application for eligible records, and assembly of
// the output collection.
type Service struct {
	store     *rules.Store
	scanner   *Scanner
	applier   *Applier
	assembler *Assembler
	workers   int
	logger    zerolog.Logger
}

func NewService(store *rules.Store, scanner *Scanner, applier *Applier, assembler *Assembler, workers int, logger zerolog.Logger) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		store:     store,
		scanner:   scanner,
		applier:   applier,
		assembler: assembler,
		workers:   workers,
		logger:    logger,
	}
}

// Label processes every record of the bundle against the current rule table
// snapshot and assembles the output in the requested mode.
//
// Records are independent, so they are processed by a small worker pool; the
// snapshot is bound once before any worker starts and each worker writes only
// its own outcome slots. Batch-level preconditions are checked once, before
// any record is touched.
func (s *Service) Label(ctx context.Context, bundle *fhir.Bundle, mode Mode) (*Result, error) {
	if len(bundle.Entry) == 0 {
		return nil, ErrEmptyBatch
	}
	table := s.store.Current()
	if table == nil {
		return nil, ErrRulesNotLoaded
	}

	outcomes := make([]Outcome, len(bundle.Entry))

	workers := s.workers
	if workers > len(bundle.Entry) {
		workers = len(bundle.Entry)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = s.processEntry(bundle.Entry[i], table)
			}
		}()
	}
	for i := range bundle.Entry {
		select {
		case jobs <- i:
		case <-ctx.Done():
			// Caller gave up; stop feeding and fail the whole batch.
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	result := s.assembler.Assemble(mode, outcomes)
	s.logger.Info().
		Str("mode", string(mode)).
		Int("entries", len(bundle.Entry)).
		Int("analyzed", result.Counters.Analyzed).
		Int("labeled", result.Counters.Labeled).
		Int("skipped", result.Counters.Skipped).
		Int("table_version", table.Version).
		Msg("labeling batch processed")
	return result, nil
}

// processEntry runs the per-record state machine: gate, scan, apply.
func (s *Service) processEntry(entry fhir.BundleEntry, table *rules.RuleTable) Outcome {
	outcome := Outcome{Entry: entry}

	if !isSupported(entry.Resource) {
		outcome.Disposition = DispositionUnsupported
		return outcome
	}
	if !ShouldScan(entry.Resource, table) {
		outcome.Disposition = DispositionSkipped
		return outcome
	}

	outcome.Matched = s.scanner.Scan(entry.Resource, table)
	s.applier.Apply(entry.Resource, outcome.Matched)
	outcome.Disposition = DispositionScanned
	return outcome
}

// isSupported reports whether an entry holds a labelable record: a resource
// map with a resourceType, and not a nested Bundle.
func isSupported(resource map[string]interface{}) bool {
	if resource == nil {
		return false
	}
	rt := fhir.ResourceTypeOf(resource)
	return rt != "" && rt != "Bundle"
}
