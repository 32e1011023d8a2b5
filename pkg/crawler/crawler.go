package crawler

import (
	"context"
	"iter"
	"log/slog"

	"golang.org/x/xerrors"

	"github.com/ookla/speedtest-extract/pkg/selector"
	"github.com/ookla/speedtest-extract/pkg/types"
)

// Lister fetches the listing at a path relative to the extracts endpoint.
type Lister interface {
	Listing(ctx context.Context, path string) ([]types.Entry, error)
}

type Crawler struct {
	lister Lister
	logger *slog.Logger
}

func NewCrawler(lister Lister) *Crawler {
	return &Crawler{
		lister: lister,
		logger: slog.Default().With(slog.String("component", "crawler")),
	}
}

// Files returns an iterator over every file in the tree, however deep.
// Header files are skipped. The first listing error is yielded and ends the walk.
func (c *Crawler) Files(ctx context.Context) iter.Seq2[types.Entry, error] {
	return func(yield func(types.Entry, error) bool) {
		var visited int
		if _, err := c.visit(ctx, "", &visited, yield); err != nil {
			yield(types.Entry{}, err)
			return
		}
		c.logger.Debug("Crawl completed", slog.Int("listings", visited))
	}
}

// visit walks one listing. It returns false once the consumer stopped iterating.
func (c *Crawler) visit(ctx context.Context, path string, visited *int, yield func(types.Entry, error) bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	entries, err := c.lister.Listing(ctx, path)
	if err != nil {
		if path == "" {
			return false, err
		}
		return false, xerrors.Errorf("listing %q: %w", path, err)
	}
	*visited++

	groups := types.GroupsFromPath(path)
	for _, e := range entries {
		switch {
		case e.IsDir():
			more, err := c.visit(ctx, e.URL, visited, yield)
			if err != nil || !more {
				return false, err
			}
		case e.IsFile():
			// Header files describe the columns of an extract and are never downloaded.
			if selector.IsHeader(e.Name) {
				continue
			}
			e.Groups = groups
			if !yield(e, nil) {
				return false, nil
			}
		}
	}
	return true, nil
}
