package rules

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSourceNotFound is returned by repository lookups for unknown source ids.
var ErrSourceNotFound = errors.New("topic source not found")

// StoredSource maps to the topic_source table: one accepted topic source as
// submitted, plus compile bookkeeping so the table can be rebuilt at startup.
type StoredSource struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	SourceID      string     `db:"source_id" json:"source_id"`
	URL           *string    `db:"url" json:"url,omitempty"`
	Name          *string    `db:"name" json:"name,omitempty"`
	EffectiveDate *time.Time `db:"effective_date" json:"effective_date,omitempty"`
	FromExpansion bool       `db:"from_expansion" json:"from_expansion"`
	TopicCount    int        `db:"topic_count" json:"topic_count"`
	CodeCount     int        `db:"code_count" json:"code_count"`
	Raw           []byte     `db:"raw" json:"-"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Repository persists accepted topic sources. Persistence is best-effort for
// a compile request: the published snapshot is the source of truth for
// tagging, and the repository exists so rules survive a restart.
type Repository interface {
	Upsert(ctx context.Context, src *StoredSource) error
	GetBySourceID(ctx context.Context, sourceID string) (*StoredSource, error)
	List(ctx context.Context, limit, offset int) ([]*StoredSource, int, error)
	All(ctx context.Context) ([]*StoredSource, error)
	Delete(ctx context.Context, sourceID string) error
}

// NewStoredSource builds the persistence row for an accepted source.
func NewStoredSource(src *TopicSource, raw []byte) *StoredSource {
	stored := &StoredSource{
		SourceID:      src.ID,
		FromExpansion: src.FromExpansion,
		TopicCount:    len(src.Topics),
		CodeCount:     len(src.Codes),
		Raw:           raw,
	}
	if src.URL != "" {
		stored.URL = &src.URL
	}
	if src.Name != "" {
		stored.Name = &src.Name
	}
	if src.HasDate {
		d := src.Date
		stored.EffectiveDate = &d
	}
	return stored
}
