package journal

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"stakefarm/core/events"
	"stakefarm/core/types"
	"stakefarm/observability"
)

var (
	// ErrDSNRequired is returned when the journal is opened without a DSN.
	ErrDSNRequired = errors.New("journal: dsn required")
	// ErrChainBroken reports a row whose hash does not follow from its
	// predecessor.
	ErrChainBroken = errors.New("journal: hash chain broken")
)

// Entry is one persisted ledger event. Hash commits to the previous entry's
// hash so the table is tamper evident.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Seq        uint64    `gorm:"uniqueIndex;not null" json:"seq"`
	Type       string    `gorm:"index;not null" json:"type"`
	Attributes string    `gorm:"type:text;not null" json:"attributes"`
	PrevHash   string    `gorm:"size:64" json:"prevHash"`
	Hash       string    `gorm:"size:64;uniqueIndex;not null" json:"hash"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (Entry) TableName() string { return "farm_events" }

// Journal appends rendered ledger events to SQL. It implements
// events.Emitter.
type Journal struct {
	db      *gorm.DB
	mu      sync.Mutex
	seq     uint64
	head    string
	now     func() time.Time
	metrics *observability.StreamMetrics
}

// Open connects using dsn. postgres:// and postgresql:// DSNs use Postgres;
// anything else is handed to SQLite.
func Open(dsn string) (*Journal, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrDSNRequired
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	return New(db)
}

// New migrates the schema on db and resumes from the last stored entry.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: database required")
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	j := &Journal{db: db, now: time.Now, metrics: observability.Stream()}
	var last Entry
	err := db.Order("seq desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("journal: load head: %w", err)
	}
	if last.Hash != "" {
		j.seq = last.Seq
		j.head = last.Hash
	}
	return j, nil
}

// SetNowFunc overrides the clock used for CreatedAt.
func (j *Journal) SetNowFunc(now func() time.Time) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	j.now = now
}

// Emit implements events.Emitter. Events that cannot be rendered or stored
// are logged and dropped; the ledger state is already committed.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || evt == nil {
		return
	}
	rendered, ok := events.Render(evt)
	if !ok {
		rendered = &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	}
	if _, err := j.Append(context.Background(), rendered); err != nil {
		slog.Error("journal: append event", slog.String("type", rendered.Type), slog.Any("error", err))
	}
}

// Append stores evt as the next entry in the chain.
func (j *Journal) Append(ctx context.Context, evt *types.Event) (Entry, error) {
	if j == nil || j.db == nil {
		return Entry{}, fmt.Errorf("journal: not configured")
	}
	if evt == nil || strings.TrimSpace(evt.Type) == "" {
		return Entry{}, fmt.Errorf("journal: event type required")
	}
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: encode attributes: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	entry := Entry{
		ID:         uuid.New(),
		Seq:        j.seq + 1,
		Type:       evt.Type,
		Attributes: string(encoded),
		PrevHash:   j.head,
		CreatedAt:  j.now().UTC(),
	}
	entry.Hash = chainHash(entry.PrevHash, entry.Seq, entry.Type, entry.Attributes)
	err = j.db.WithContext(ctx).Create(&entry).Error
	j.metrics.JournalWrite(err)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: insert: %w", err)
	}
	j.seq = entry.Seq
	j.head = entry.Hash
	return entry, nil
}

// List returns up to limit entries with Seq greater than after, oldest first.
func (j *Journal) List(ctx context.Context, after uint64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var out []Entry
	err := j.db.WithContext(ctx).Where("seq > ?", after).Order("seq asc").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return out, nil
}

// Head reports the last sequence number and hash.
func (j *Journal) Head() (uint64, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq, j.head
}

// Verify walks the table and recomputes every hash.
func (j *Journal) Verify(ctx context.Context) error {
	var (
		after uint64
		prev  string
	)
	for {
		batch, err := j.List(ctx, after, 500)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		for _, entry := range batch {
			if entry.Seq != after+1 || entry.PrevHash != prev {
				return fmt.Errorf("%w at seq %d", ErrChainBroken, entry.Seq)
			}
			if chainHash(entry.PrevHash, entry.Seq, entry.Type, entry.Attributes) != entry.Hash {
				return fmt.Errorf("%w at seq %d", ErrChainBroken, entry.Seq)
			}
			after = entry.Seq
			prev = entry.Hash
		}
	}
}

// Decode unmarshals the stored attributes.
func (e Entry) Decode() (*types.Event, error) {
	attrs := map[string]string{}
	if err := json.Unmarshal([]byte(e.Attributes), &attrs); err != nil {
		return nil, err
	}
	return &types.Event{Type: e.Type, Attributes: attrs}, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func chainHash(prev string, seq uint64, typ, attrs string) string {
	h := blake3.New(32, nil)
	h.Write([]byte(prev))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])
	h.Write([]byte(typ))
	h.Write([]byte{0})
	h.Write([]byte(attrs))
	return hex.EncodeToString(h.Sum(nil))
}
