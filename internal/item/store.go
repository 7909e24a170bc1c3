package item

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an item id does not resolve in the store.
var ErrNotFound = errors.New("item not found")

// ThemeKind selects which theme-media association set an operation touches.
type ThemeKind string

// Theme media kinds.
const (
	ThemeSong  ThemeKind = "song"
	ThemeVideo ThemeKind = "video"
)

const itemColumns = `id, name, sort_name, kind, location_kind, path, parent_id, created_at, updated_at`

// Store provides durable item storage backed by SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates an item store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new item. ID and SortName are filled in when empty.
func (s *Store) Create(ctx context.Context, it *Item) error {
	if it.Name == "" {
		return fmt.Errorf("item name is required")
	}
	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	if it.SortName == "" {
		it.SortName = it.Name
	}
	if it.Kind == "" {
		it.Kind = KindOther
	}
	if it.LocationKind == "" {
		it.LocationKind = LocationVirtual
	}

	now := time.Now().UTC()
	it.CreatedAt = now
	it.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, sort_name, kind, location_kind, path, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		it.ID, it.Name, it.SortName, string(it.Kind), string(it.LocationKind),
		it.Path, nullableString(it.ParentID),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating item: %w", err)
	}
	return nil
}

// GetByID retrieves an item by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting item by id: %w", err)
	}
	return it, nil
}

// GetByPath retrieves an item by filesystem path.
// Returns nil, nil when no item matches.
func (s *Store) GetByPath(ctx context.Context, path string) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE path = ?`, path)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item by path: %w", err)
	}
	return it, nil
}

// Root returns the library root (the folder with no parent). Returns
// ErrNotFound when the library has not been scanned yet.
func (s *Store) Root(ctx context.Context) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE parent_id IS NULL ORDER BY created_at LIMIT 1`)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: library root", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting library root: %w", err)
	}
	return it, nil
}

// List returns one page of items ordered by sort name. take <= 0 means no limit.
func (s *Store) List(ctx context.Context, skip, take int) ([]Item, error) {
	limit := take
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items ORDER BY sort_name, id LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	return collectItems(rows)
}

// Count returns the total number of items.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}
	return n, nil
}

// Children returns the direct children of a folder, ordered by sort name.
func (s *Store) Children(ctx context.Context, parentID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE parent_id = ? ORDER BY sort_name, id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("listing children: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	return collectItems(rows)
}

// RecursiveChildren returns every descendant of the given item.
func (s *Store) RecursiveChildren(ctx context.Context, rootID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM items WHERE parent_id = ?
			UNION ALL
			SELECT i.id FROM items i JOIN subtree st ON i.parent_id = st.id
		)
		SELECT `+itemColumns+` FROM items WHERE id IN (SELECT id FROM subtree)
		ORDER BY sort_name, id
	`, rootID)
	if err != nil {
		return nil, fmt.Errorf("listing recursive children: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	return collectItems(rows)
}

// Counts tallies items by kind. When rootID is non-empty only the subtree
// below that item is counted, otherwise the whole library.
func (s *Store) Counts(ctx context.Context, rootID string) (*Counts, error) {
	query := `SELECT kind, COUNT(*) FROM items GROUP BY kind`
	args := []any{}
	if rootID != "" {
		query = `
			WITH RECURSIVE subtree(id) AS (
				SELECT id FROM items WHERE parent_id = ?
				UNION ALL
				SELECT i.id FROM items i JOIN subtree st ON i.parent_id = st.id
			)
			SELECT kind, COUNT(*) FROM items WHERE id IN (SELECT id FROM subtree) GROUP BY kind`
		args = append(args, rootID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting items by kind: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	counts := &Counts{}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		switch Kind(kind) {
		case KindMovie:
			counts.MovieCount = n
		case KindSeries:
			counts.SeriesCount = n
		case KindEpisode:
			counts.EpisodeCount = n
		case KindAlbum:
			counts.AlbumCount = n
		case KindSong:
			counts.SongCount = n
		case KindMusicVideo:
			counts.MusicVideoCount = n
		case KindTrailer:
			counts.TrailerCount = n
		case KindFolder:
			counts.FolderCount = n
		default:
			counts.OtherCount += n
		}
	}
	return counts, rows.Err()
}

// Remove deletes an item and its entire subtree, including theme-media links
// and critic reviews via cascading foreign keys.
func (s *Store) Remove(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM items WHERE id = ?
			UNION ALL
			SELECT i.id FROM items i JOIN subtree st ON i.parent_id = st.id
		)
		DELETE FROM items WHERE id IN (SELECT id FROM subtree)
	`, id)
	if err != nil {
		return fmt.Errorf("removing item subtree: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// RemoveChild detaches a child from its parent and removes the child's
// subtree from the store.
func (s *Store) RemoveChild(ctx context.Context, parentID, childID string) error {
	var storedParent sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT parent_id FROM items WHERE id = ?`, childID).Scan(&storedParent)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, childID)
	}
	if err != nil {
		return fmt.Errorf("looking up child: %w", err)
	}
	if !storedParent.Valid || storedParent.String != parentID {
		return fmt.Errorf("item %s is not a child of %s", childID, parentID)
	}
	return s.Remove(ctx, childID)
}

// SetLocationKind updates an item's location kind.
func (s *Store) SetLocationKind(ctx context.Context, id string, kind LocationKind) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET location_kind = ?, updated_at = ? WHERE id = ?`,
		string(kind), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating location kind: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ThemeMediaIDs returns the ordered theme-media references of the given kind
// for an item.
func (s *Store) ThemeMediaIDs(ctx context.Context, itemID string, kind ThemeKind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT media_id FROM item_theme_media
		WHERE item_id = ? AND media_kind = ?
		ORDER BY position, media_id
	`, itemID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("listing theme media ids: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning theme media id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetThemeMedia replaces the theme-media references of the given kind for an item.
func (s *Store) SetThemeMedia(ctx context.Context, itemID string, kind ThemeKind, mediaIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM item_theme_media WHERE item_id = ? AND media_kind = ?`,
		itemID, string(kind)); err != nil {
		return fmt.Errorf("clearing theme media: %w", err)
	}

	for i, mediaID := range mediaIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO item_theme_media (item_id, media_id, media_kind, position)
			VALUES (?, ?, ?, ?)
		`, itemID, mediaID, string(kind), i); err != nil {
			return fmt.Errorf("inserting theme media link: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing theme media update: %w", err)
	}
	return nil
}

// AddCriticReview stores a review for an item.
func (s *Store) AddCriticReview(ctx context.Context, review *CriticReview) error {
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO critic_reviews (id, item_id, reviewer, score, summary, url, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, review.ID, review.ItemID, review.Reviewer, review.Score,
		review.Summary, review.URL, review.ReviewedAt)
	if err != nil {
		return fmt.Errorf("adding critic review: %w", err)
	}
	return nil
}

// CriticReviews returns one page of reviews for an item. The total count is
// computed before startIndex/limit are applied; limit <= 0 means no limit.
func (s *Store) CriticReviews(ctx context.Context, itemID string, startIndex, limit int) (*ReviewsResult, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM critic_reviews WHERE item_id = ?`, itemID).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting critic reviews: %w", err)
	}

	take := limit
	if take <= 0 {
		take = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, reviewer, score, summary, url, reviewed_at
		FROM critic_reviews WHERE item_id = ?
		ORDER BY reviewed_at DESC, id
		LIMIT ? OFFSET ?
	`, itemID, take, startIndex)
	if err != nil {
		return nil, fmt.Errorf("listing critic reviews: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	result := &ReviewsResult{TotalRecordCount: total}
	for rows.Next() {
		var r CriticReview
		if err := rows.Scan(&r.ID, &r.ItemID, &r.Reviewer, &r.Score,
			&r.Summary, &r.URL, &r.ReviewedAt); err != nil {
			return nil, fmt.Errorf("scanning critic review: %w", err)
		}
		result.Reviews = append(result.Reviews, r)
	}
	return result, rows.Err()
}

// scanItem scans a database row into an Item struct.
func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var it Item
	var kind, locationKind string
	var parentID sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&it.ID, &it.Name, &it.SortName, &kind, &locationKind,
		&it.Path, &parentID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	it.Kind = Kind(kind)
	it.LocationKind = LocationKind(locationKind)
	if parentID.Valid {
		it.ParentID = parentID.String
	}
	it.CreatedAt = parseTime(createdAt)
	it.UpdatedAt = parseTime(updatedAt)

	return &it, nil
}

func collectItems(rows *sql.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// parseTime parses a time string, handling both RFC3339 and SQLite datetime formats.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
