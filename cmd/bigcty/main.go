// Command bigcty maintains a local copy of the BigCTY country file.
//
// Usage:
//
//	bigcty update              fetch the newest release if it is newer and save it
//	bigcty import <cty.dat>    parse a local cty.dat and save it
//	bigcty lookup <prefix>...  print the records stored under prefixes or calls
//	bigcty validate            run integrity checks on the saved store
//	bigcty serve               serve lookups over HTTP
//	bigcty export-db           copy the saved store into the SQL database
//
// Settings come from ./bigcty.yaml (or $BIGCTY_CONFIG) and the environment.
// The store is read from and written to store.path (default ./cty.json).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/andreiashu/bigcty"
	"github.com/andreiashu/bigcty/internal/app"
	"github.com/andreiashu/bigcty/internal/config"
	"github.com/andreiashu/bigcty/internal/httpapi"
	"github.com/andreiashu/bigcty/internal/sqlstore"
)

const usage = `usage: bigcty <command> [args]

commands:
  update              fetch the newest release if it is newer and save it
  import <cty.dat>    parse a local cty.dat and save it
  lookup <prefix>...  print the records stored under prefixes or calls
  validate            run integrity checks on the saved store
  serve               serve lookups over HTTP
  export-db           copy the saved store into the SQL database
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "update":
		return cmdUpdate(ctx, cfg, logger, out)
	case "import":
		if len(args) != 1 {
			return errors.New("import: want exactly one cty.dat path")
		}
		return cmdImport(cfg, logger, args[0], out)
	case "lookup":
		if len(args) == 0 {
			return errors.New("lookup: want at least one prefix")
		}
		return cmdLookup(cfg, args, out)
	case "validate":
		return cmdValidate(cfg, out)
	case "serve":
		return cmdServe(ctx, cfg, logger)
	case "export-db":
		return cmdExportDB(ctx, cfg, logger, out)
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

// loadOrEmpty reads the saved store, starting from an empty one when there
// is none yet.
func loadOrEmpty(path string, logger *slog.Logger) (*bigcty.Store, error) {
	s, err := bigcty.LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("no saved store, starting empty", slog.String("path", path))
		return bigcty.NewStore(nil), nil
	}
	return s, err
}

func newSource(cfg config.FeedConfig) *bigcty.CountryFilesSource {
	return bigcty.NewCountryFilesSource(
		bigcty.WithFeedURL(cfg.URL),
		bigcty.WithDownloadURL(cfg.DownloadURL),
		bigcty.WithUserAgent(cfg.UserAgent),
		bigcty.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
}

func cmdUpdate(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	initial, err := loadOrEmpty(cfg.Store.Path, logger)
	if err != nil {
		return err
	}
	u := bigcty.NewUpdater(newSource(cfg.Feed), initial, bigcty.WithLogger(logger))

	updated, err := u.Update(ctx)
	if err != nil {
		return err
	}
	s := u.Store()

	fmt.Fprintln(out, "Updated:", updated)
	fmt.Fprintln(out, "Datestamp:", s.FormattedVersion())
	if rec, err := s.Get("VERSION"); err == nil {
		fmt.Fprintln(out, "Version Entity:", rec.Entity)
	} else {
		fmt.Fprintln(out, "Version Entity: Not present, data possibly corrupted.")
	}

	return s.Dump(cfg.Store.Path)
}

func cmdImport(cfg *config.Config, logger *slog.Logger, path string, out io.Writer) error {
	doc, err := bigcty.ImportFile(path)
	if err != nil {
		return err
	}
	logger.Info("imported",
		slog.String("path", path),
		slog.String("version", doc.Version),
		slog.Int("entities", doc.Stats.Entities),
		slog.Int("overrides", doc.Stats.Overrides),
		slog.Int("skipped_tokens", doc.Stats.SkippedTokens),
		slog.Int("duplicates", doc.Stats.Duplicates),
	)

	s := bigcty.NewStore(doc)
	if err := s.Dump(cfg.Store.Path); err != nil {
		return err
	}
	fmt.Fprintf(out, "Imported %d prefixes (datestamp %s) into %s\n", s.Len(), s.FormattedVersion(), cfg.Store.Path)
	return nil
}

func cmdLookup(cfg *config.Config, prefixes []string, out io.Writer) error {
	s, err := bigcty.LoadFile(cfg.Store.Path)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PREFIX\tENTITY\tCQ\tITU\tCONT\tLAT\tLONG\tTZ\tPRIMARY\tEXACT")
	var missing int
	for _, p := range prefixes {
		rec, err := s.Get(p)
		if err != nil {
			missing++
			hint := ""
			if similar := s.Similar(p, 1); len(similar) > 0 {
				hint = fmt.Sprintf(" (did you mean %s?)", similar[0])
			}
			fmt.Fprintf(tw, "%s\tnot found%s\n", p, hint)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%.2f\t%.2f\t%.1f\t%s\t%v\n",
			p, rec.Entity, rec.CQZone, rec.ITUZone, rec.Continent,
			rec.Latitude, rec.Longitude, rec.UTCOffset, rec.PrimaryPrefix, rec.ExactMatch)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if missing > 0 {
		return fmt.Errorf("%d of %d prefixes not found", missing, len(prefixes))
	}
	return nil
}

func cmdValidate(cfg *config.Config, out io.Writer) error {
	s, err := bigcty.LoadFile(cfg.Store.Path)
	if err != nil {
		return err
	}
	if err := bigcty.Validate(s); err != nil {
		return fmt.Errorf("validating %s: %w", cfg.Store.Path, err)
	}
	fmt.Fprintf(out, "%s: OK (%d prefixes, datestamp %s)\n", cfg.Store.Path, s.Len(), s.FormattedVersion())
	return nil
}

func cmdServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	initial, err := loadOrEmpty(cfg.Store.Path, logger)
	if err != nil {
		return err
	}
	u := bigcty.NewUpdater(newSource(cfg.Feed), initial, bigcty.WithLogger(logger))
	srv := httpapi.New(cfg.Server, u, logger)

	if cfg.Server.UpdateInterval > 0 {
		go updateLoop(ctx, u, cfg.Server.UpdateInterval, cfg.Store.Path, logger)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// updateLoop checks for a new release every interval and saves the store
// whenever it changes.
func updateLoop(ctx context.Context, u *bigcty.Updater, interval time.Duration, path string, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		updated, err := u.Update(ctx)
		if err != nil {
			// Already logged by the updater; keep serving the old store.
			continue
		}
		if updated {
			if err := u.Store().Dump(path); err != nil {
				logger.Error("saving store failed", slog.String("path", path), slog.String("error", err.Error()))
			}
		}
	}
}

func cmdExportDB(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	s, err := bigcty.LoadFile(cfg.Store.Path)
	if err != nil {
		return err
	}
	db, err := sqlstore.Open(cfg.Database.Dialect, cfg.Database.DSN)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	if err := sqlstore.Export(ctx, db, s); err != nil {
		return err
	}
	logger.Info("exported store",
		slog.String("dialect", cfg.Database.Dialect),
		slog.Int("prefixes", s.Len()),
		slog.String("version", s.Version()),
	)
	fmt.Fprintf(out, "Exported %d prefixes to %s\n", s.Len(), cfg.Database.Dialect)
	return nil
}
