package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kailas-cloud/lexdrill/internal/domain"
)

const itemColumns = `i.id, i.word, i.definition, i.part_of_speech, i.frequency, i.priority,
	i.example, i.collocations, i.phrases`

// Catalog reads and seeds learning items.
type Catalog struct {
	db *DB
}

// NewCatalog creates a catalog repository.
func NewCatalog(db *DB) *Catalog {
	return &Catalog{db: db}
}

// NewCandidates returns items the user has no progress for on the track,
// ordered verb > noun > adjective > other, then frequency desc, then shorter words first.
func (c *Catalog) NewCandidates(
	ctx context.Context, userID string, track domain.Track, limit int,
) ([]domain.LearningItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := c.db.Rebind(`SELECT ` + itemColumns + ` FROM items i
		WHERE NOT EXISTS (
			SELECT 1 FROM progress p
			WHERE p.item_id = i.id AND p.user_id = ? AND p.track = ?
		)
		ORDER BY CASE i.part_of_speech
			WHEN 'verb' THEN 0
			WHEN 'noun' THEN 1
			WHEN 'adjective' THEN 2
			ELSE 3 END,
			i.frequency DESC, LENGTH(i.word) ASC, i.id ASC
		LIMIT ?`)

	var rows []itemRow
	if err := c.db.SelectContext(ctx, &rows, q, userID, string(track), limit); err != nil {
		return nil, fmt.Errorf("select new candidates: %w", err)
	}
	return toItems(rows), nil
}

// ItemsByIDs loads items by id. Unknown ids are skipped; order follows the ids argument.
func (c *Catalog) ItemsByIDs(ctx context.Context, ids []int64) ([]domain.LearningItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(`SELECT `+itemColumns+` FROM items i WHERE i.id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}

	var rows []itemRow
	if err := c.db.SelectContext(ctx, &rows, c.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}

	byID := make(map[int64]domain.LearningItem, len(rows))
	for _, r := range rows {
		byID[r.ID] = r.toDomain()
	}
	out := make([]domain.LearningItem, 0, len(rows))
	for _, id := range ids {
		if it, ok := byID[id]; ok {
			out = append(out, it)
			delete(byID, id)
		}
	}
	return out, nil
}

// Get loads a single item.
func (c *Catalog) Get(ctx context.Context, id int64) (*domain.LearningItem, error) {
	items, err := c.ItemsByIDs(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrNotFound
	}
	return &items[0], nil
}

// Upsert inserts or replaces catalog items in one transaction.
func (c *Catalog) Upsert(ctx context.Context, items []domain.LearningItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO items
		(id, word, definition, part_of_speech, frequency, priority, example, collocations, phrases)
		VALUES (:id, :word, :definition, :part_of_speech, :frequency, :priority, :example, :collocations, :phrases)
		ON CONFLICT (id) DO UPDATE SET
			word = excluded.word,
			definition = excluded.definition,
			part_of_speech = excluded.part_of_speech,
			frequency = excluded.frequency,
			priority = excluded.priority,
			example = excluded.example,
			collocations = excluded.collocations,
			phrases = excluded.phrases`

	for _, it := range items {
		if it.ID <= 0 || it.Word == "" {
			return 0, fmt.Errorf("%w: item needs id and word", domain.ErrInvalidRequest)
		}
		if _, err := tx.NamedExecContext(ctx, q, itemRowFrom(it)); err != nil {
			return 0, fmt.Errorf("upsert item %d: %w", it.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(items), nil
}

// Count returns the catalog size.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM items`); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

func toItems(rows []itemRow) []domain.LearningItem {
	out := make([]domain.LearningItem, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out
}
