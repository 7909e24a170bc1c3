package item

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Resolver resolves theme songs and theme videos for library items. Theme
// media is attached to folders; when a folder has none of its own and
// inheritance is requested, the nearest ancestor that does owns the result.
type Resolver struct {
	store  *Store
	logger *slog.Logger
}

// NewResolver creates a theme-media resolver.
func NewResolver(store *Store, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger.With(slog.String("component", "theme-resolver")),
	}
}

// ThemeSongs resolves theme songs for the item. An empty itemID targets the
// library root.
func (r *Resolver) ThemeSongs(ctx context.Context, itemID string, inheritFromParent bool) (*ThemeMediaResult, error) {
	return r.resolve(ctx, itemID, inheritFromParent, ThemeSong)
}

// ThemeVideos resolves theme videos for the item. An empty itemID targets the
// library root.
func (r *Resolver) ThemeVideos(ctx context.Context, itemID string, inheritFromParent bool) (*ThemeMediaResult, error) {
	return r.resolve(ctx, itemID, inheritFromParent, ThemeVideo)
}

// ThemeMedia resolves theme songs and theme videos concurrently. The two
// resolutions touch disjoint id sets and do not influence each other.
func (r *Resolver) ThemeMedia(ctx context.Context, itemID string, inheritFromParent bool) (*AllThemeMediaResult, error) {
	var songs, videos *ThemeMediaResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		songs, err = r.ThemeSongs(gctx, itemID, inheritFromParent)
		return err
	})
	g.Go(func() error {
		var err error
		videos, err = r.ThemeVideos(gctx, itemID, inheritFromParent)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &AllThemeMediaResult{
		ThemeSongs:  *songs,
		ThemeVideos: *videos,
	}, nil
}

// resolve walks the ancestor chain to find the owning item, then retrieves
// and orders the referenced media items.
func (r *Resolver) resolve(ctx context.Context, itemID string, inheritFromParent bool, kind ThemeKind) (*ThemeMediaResult, error) {
	owner, ids, err := r.findOwner(ctx, itemID, inheritFromParent, kind)
	if err != nil {
		return nil, err
	}

	items, err := r.fetchMedia(ctx, ids)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SortName < items[j].SortName
	})

	return &ThemeMediaResult{
		OwnerID:          owner.ID,
		Items:            items,
		TotalRecordCount: len(items),
	}, nil
}

// findOwner locates the nearest item (starting at itemID, walking upward when
// inheritance is on) whose theme-id set of the given kind is non-empty. The
// walk is bounded by the tree root, so it always terminates.
func (r *Resolver) findOwner(ctx context.Context, itemID string, inheritFromParent bool, kind ThemeKind) (*Item, []string, error) {
	var current *Item
	var err error
	if itemID == "" {
		current, err = r.store.Root(ctx)
	} else {
		current, err = r.store.GetByID(ctx, itemID)
	}
	if err != nil {
		return nil, nil, err
	}

	for {
		ids, err := r.store.ThemeMediaIDs(ctx, current.ID, kind)
		if err != nil {
			return nil, nil, err
		}
		if len(ids) > 0 || !inheritFromParent || current.ParentID == "" {
			return current, ids, nil
		}
		current, err = r.store.GetByID(ctx, current.ParentID)
		if err != nil {
			return nil, nil, fmt.Errorf("resolving parent: %w", err)
		}
	}
}

// fetchMedia retrieves the referenced media items concurrently. References
// that no longer resolve are dropped, not reported; callers rely on a missing
// theme reference never failing the whole request.
func (r *Resolver) fetchMedia(ctx context.Context, ids []string) ([]Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	found := make([]*Item, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			it, err := r.store.GetByID(gctx, id)
			if err != nil {
				if isNotFound(err) {
					r.logger.Debug("dropping dangling theme media reference", "media_id", id)
					return nil
				}
				return err
			}
			found[i] = it
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(found))
	for _, it := range found {
		if it != nil {
			items = append(items, *it)
		}
	}
	return items, nil
}
