package bigcty

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Release identifies a published cty.dat release.
type Release struct {
	Version string // YYYYMMDD datestamp of the release
	URL     string // where the release archive can be fetched
}

// ReleaseSource discovers and retrieves releases. CountryFilesSource is the
// production implementation.
type ReleaseSource interface {
	// Latest returns the newest published release.
	Latest(ctx context.Context) (Release, error)
	// Fetch returns the plain cty.dat text of a release.
	Fetch(ctx context.Context, rel Release) ([]byte, error)
}

// DefaultUpdateTimeout bounds a single update check including the download.
const DefaultUpdateTimeout = 2 * time.Minute

// UpdaterConfig contains configuration options for an Updater.
type UpdaterConfig struct {
	Logger  *slog.Logger
	Timeout time.Duration
}

// UpdaterOption is a functional option for configuring an Updater.
type UpdaterOption func(*UpdaterConfig)

// WithLogger sets the logger used by an Updater.
func WithLogger(l *slog.Logger) UpdaterOption {
	return func(c *UpdaterConfig) {
		c.Logger = l
	}
}

// WithTimeout bounds how long one update check may run. Values <= 0 keep
// DefaultUpdateTimeout.
func WithTimeout(d time.Duration) UpdaterOption {
	return func(c *UpdaterConfig) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// Updater holds the current Store and replaces it when a newer release is
// published. Store is safe to call at any time; concurrent Update calls are
// coalesced into a single check.
type Updater struct {
	source  ReleaseSource
	log     *slog.Logger
	timeout time.Duration
	current atomic.Pointer[Store]
	group   singleflight.Group
}

// NewUpdater creates an Updater serving initial until the first successful
// update. A nil initial is treated as an empty, unversioned store.
func NewUpdater(src ReleaseSource, initial *Store, opts ...UpdaterOption) *Updater {
	cfg := &UpdaterConfig{Logger: slog.Default(), Timeout: DefaultUpdateTimeout}
	for _, opt := range opts {
		opt(cfg)
	}
	if initial == nil {
		initial = NewStore(nil)
	}
	u := &Updater{
		source:  src,
		log:     cfg.Logger.With("component", "updater"),
		timeout: cfg.Timeout,
	}
	u.current.Store(initial)
	return u
}

// Store returns the current snapshot.
func (u *Updater) Store() *Store {
	return u.current.Load()
}

type updateResult struct {
	updated bool
}

// Update checks the source for a newer release and, if there is one, fetches
// and parses it and swaps it in. It reports false when the published version
// equals the current one. On any error the current store is left as it was.
//
// Concurrent callers share the call already in flight. The flight keeps the
// values of the context that started it but not its cancellation; it is
// bounded by the updater's own timeout instead. A caller whose ctx ends first
// stops waiting and gets a *RetrievalError wrapping ctx.Err() while the
// flight carries on.
func (u *Updater) Update(ctx context.Context) (bool, error) {
	ch := u.group.DoChan("update", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.timeout)
		defer cancel()
		updated, err := u.update(fctx)
		return updateResult{updated: updated}, err
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(updateResult).updated, nil
	case <-ctx.Done():
		return false, &RetrievalError{Op: "wait for update", Err: ctx.Err()}
	}
}

func (u *Updater) update(ctx context.Context) (bool, error) {
	current := u.current.Load()

	rel, err := u.source.Latest(ctx)
	if err != nil {
		u.log.ErrorContext(ctx, "release discovery failed", slog.String("error", err.Error()))
		return false, &RetrievalError{Op: "latest release", Err: err}
	}
	if rel.Version == current.Version() {
		u.log.InfoContext(ctx, "already up to date", slog.String("version", current.Version()))
		return false, nil
	}

	u.log.InfoContext(ctx, "fetching release",
		slog.String("current", current.Version()),
		slog.String("latest", rel.Version),
		slog.String("url", rel.URL),
	)
	data, err := u.source.Fetch(ctx, rel)
	if err != nil {
		u.log.ErrorContext(ctx, "release fetch failed", slog.String("error", err.Error()))
		return false, &RetrievalError{Op: "fetch release", Err: err}
	}

	doc, err := Parse(data)
	if err != nil {
		u.log.ErrorContext(ctx, "release parse failed", slog.String("error", err.Error()))
		return false, err
	}
	if doc.Version == "" {
		// Without a VER marker the next check would refetch forever.
		doc.Version = rel.Version
	}
	u.log.DebugContext(ctx, "release parsed",
		slog.String("version", doc.Version),
		slog.Int("entities", doc.Stats.Entities),
		slog.Int("overrides", doc.Stats.Overrides),
		slog.Int("skipped_tokens", doc.Stats.SkippedTokens),
		slog.Int("duplicates", doc.Stats.Duplicates),
	)

	next := NewStore(doc)
	u.current.Store(next)
	u.log.InfoContext(ctx, "store updated",
		slog.String("version", next.Version()),
		slog.Int("entries", next.Len()),
	)
	return true, nil
}
