package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Service orchestrates rule compilation: parsing submitted topic sources,
// invoking the expansion collaborator for sources without member codes,
// publishing the new snapshot, and persisting accepted sources.
type Service struct {
	store    *Store
	repo     Repository
	expander Expander
	logger   zerolog.Logger
}

// NewService creates the rules service. repo and expander may be nil; a nil
// expander rejects sources that need external expansion, a nil repo disables
// persistence.
func NewService(store *Store, repo Repository, expander Expander, logger zerolog.Logger) *Service {
	return &Service{store: store, repo: repo, expander: expander, logger: logger}
}

// Store exposes the snapshot store for read-side consumers.
func (s *Service) Store() *Store {
	return s.store
}

// CompileSources processes one compile request. Each source is validated
// independently; a rejected source is recorded in the result's diagnostics
// and never fails its siblings. When at least one source validates, a new
// table is published atomically and the accepted sources are persisted.
func (s *Service) CompileSources(ctx context.Context, raws []map[string]interface{}) *CompileResult {
	result := &CompileResult{Total: len(raws)}

	var accepted []*TopicSource
	for i, raw := range raws {
		src, err := s.resolveSource(ctx, raw)
		if err != nil {
			id := sourceLabel(raw, i)
			result.Rejected = append(result.Rejected, SourceDiagnostic{SourceID: id, Err: err})
			s.logger.Warn().Str("source", id).Err(err).Msg("topic source rejected")
			continue
		}
		accepted = append(accepted, src)
	}

	if len(accepted) == 0 {
		result.Table = s.store.Current()
		return result
	}

	result.Table = s.store.Publish(accepted)
	result.Compiled = len(accepted)

	for _, src := range accepted {
		s.persist(ctx, src)
	}

	epoch := "none"
	if result.Table.HasEpoch {
		epoch = result.Table.Epoch.Format(time.RFC3339)
	}
	s.logger.Info().
		Int("compiled", result.Compiled).
		Int("rejected", len(result.Rejected)).
		Int("version", result.Table.Version).
		Int("codes", result.Table.CodeCount()).
		Str("epoch", epoch).
		Msg("rule table published")

	return result
}

// resolveSource parses a raw source, attempting one external expansion when
// the source carries no member codes.
func (s *Service) resolveSource(ctx context.Context, raw map[string]interface{}) (*TopicSource, error) {
	src, err := ParseSource(raw)
	if err == nil {
		return src, nil
	}
	if !errors.Is(err, ErrNoCodes) || src == nil {
		return nil, err
	}
	if s.expander == nil {
		return nil, fmt.Errorf("%w and no expansion service is configured", ErrNoCodes)
	}

	expanded, expErr := s.expander.Expand(ctx, src)
	if expErr != nil {
		return nil, fmt.Errorf("expansion failed: %w", expErr)
	}
	return ParseSource(mergeExpansion(raw, expanded))
}

// mergeExpansion overlays an externally fetched expansion onto the submitted
// source. The submitted source's own fields win; the expansion may supply the
// member tree plus any topic or date fields the source omitted.
func mergeExpansion(raw, expanded map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(raw)+1)
	for k, v := range raw {
		merged[k] = v
	}
	if exp, ok := expanded["expansion"]; ok {
		merged["expansion"] = exp
	}
	for _, field := range []string{"topic", "useContext", "date"} {
		if _, present := merged[field]; !present {
			if v, ok := expanded[field]; ok {
				merged[field] = v
			}
		}
	}
	return merged
}

// persist stores an accepted source. Failures are logged, never returned:
// the published snapshot, not the database, is authoritative for tagging.
func (s *Service) persist(ctx context.Context, src *TopicSource) {
	if s.repo == nil {
		return
	}
	raw, err := json.Marshal(src.Raw)
	if err != nil {
		s.logger.Error().Str("source", src.ID).Err(err).Msg("marshal topic source")
		return
	}
	if err := s.repo.Upsert(ctx, NewStoredSource(src, raw)); err != nil {
		s.logger.Error().Str("source", src.ID).Err(err).Msg("persist topic source")
	}
}

// LoadPersisted recompiles the rule table from previously stored sources.
// Intended for startup; sources that no longer parse are skipped with a log.
func (s *Service) LoadPersisted(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}
	stored, err := s.repo.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("load persisted sources: %w", err)
	}

	var accepted []*TopicSource
	for _, row := range stored {
		var raw map[string]interface{}
		if err := json.Unmarshal(row.Raw, &raw); err != nil {
			s.logger.Warn().Str("source", row.SourceID).Err(err).Msg("skip unreadable stored source")
			continue
		}
		src, err := ParseSource(raw)
		if err != nil {
			s.logger.Warn().Str("source", row.SourceID).Err(err).Msg("skip invalid stored source")
			continue
		}
		accepted = append(accepted, src)
	}

	if len(accepted) == 0 {
		return 0, nil
	}
	table := s.store.Publish(accepted)
	s.logger.Info().
		Int("sources", len(accepted)).
		Int("codes", table.CodeCount()).
		Msg("rule table restored from storage")
	return len(accepted), nil
}

// RetireSource removes a source's contribution from the table and storage.
func (s *Service) RetireSource(ctx context.Context, sourceID string) (bool, error) {
	_, ok := s.store.Retire(sourceID)
	if s.repo != nil {
		if err := s.repo.Delete(ctx, sourceID); err != nil {
			return ok, fmt.Errorf("delete stored source %s: %w", sourceID, err)
		}
	}
	return ok, nil
}

// GetSource fetches one stored source by its identifier.
func (s *Service) GetSource(ctx context.Context, sourceID string) (*StoredSource, error) {
	if s.repo == nil {
		return nil, ErrSourceNotFound
	}
	return s.repo.GetBySourceID(ctx, sourceID)
}

// ListSources pages through stored sources.
func (s *Service) ListSources(ctx context.Context, limit, offset int) ([]*StoredSource, int, error) {
	if s.repo == nil {
		return nil, 0, nil
	}
	return s.repo.List(ctx, limit, offset)
}

// Status summarizes the published table for the status endpoint.
type Status struct {
	Loaded     bool       `json:"loaded"`
	Version    int        `json:"version"`
	CompiledAt *time.Time `json:"compiled_at,omitempty"`
	Epoch      *time.Time `json:"epoch,omitempty"`
	Sources    int        `json:"sources"`
	Codes      int        `json:"codes"`
	Rules      int        `json:"rules"`
}

// Status reports the current snapshot's version, epoch, and sizes.
func (s *Service) Status() Status {
	table := s.store.Current()
	if table == nil {
		return Status{}
	}
	st := Status{
		Loaded:     true,
		Version:    table.Version,
		CompiledAt: &table.CompiledAt,
		Sources:    table.SourceCount(),
		Codes:      table.CodeCount(),
		Rules:      table.RuleCount(),
	}
	if table.HasEpoch {
		epoch := table.Epoch
		st.Epoch = &epoch
	}
	return st
}

// sourceLabel names a source for diagnostics even when it failed to parse.
func sourceLabel(raw map[string]interface{}, index int) string {
	if url, _ := raw["url"].(string); url != "" {
		return url
	}
	if id, _ := raw["id"].(string); id != "" {
		return id
	}
	return fmt.Sprintf("source[%d]", index)
}
