package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vigiauto/vigiauto/internal/aix"
	"github.com/vigiauto/vigiauto/internal/export"
	"github.com/vigiauto/vigiauto/internal/extract"
	"github.com/vigiauto/vigiauto/internal/fetch"
	"github.com/vigiauto/vigiauto/internal/fingerprint"
	"github.com/vigiauto/vigiauto/internal/listing"
	"github.com/vigiauto/vigiauto/internal/metrics"
	"github.com/vigiauto/vigiauto/internal/report"
	"github.com/vigiauto/vigiauto/internal/scrape"
	"github.com/vigiauto/vigiauto/internal/search"
	"github.com/vigiauto/vigiauto/internal/sites"
	"github.com/vigiauto/vigiauto/internal/storage"
	"github.com/vigiauto/vigiauto/internal/storage/jsonbackend"
	"github.com/vigiauto/vigiauto/internal/storage/postgres"
	"github.com/vigiauto/vigiauto/internal/storage/sqlite"
	"github.com/vigiauto/vigiauto/pkg/proxy"
	"github.com/vigiauto/vigiauto/pkg/ratelimit"
	"github.com/vigiauto/vigiauto/pkg/useragent"
)

type searchFlags struct {
	brand      string
	model      string
	maxPrice   int
	minPrice   int
	yearMin    int
	yearMax    int
	mileageMax int
	fuel       string
	location   string
	radiusKm   int
	siteNames  []string
	exclude    []string
	format     string
	out        string
	render     bool
	store      bool
}

func newSearchCommand() *cobra.Command {
	var f searchFlags

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run one vehicle search across the configured marketplaces",
		Example: `  vigiauto search --brand peugeot --model 308 --max-price 12000
  vigiauto search --brand renault --model clio --location lyon --radius 50 --format csv --out clio.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVar(&f.brand, "brand", "", "vehicle brand (required)")
	cmd.Flags().StringVar(&f.model, "model", "", "vehicle model")
	cmd.Flags().IntVar(&f.maxPrice, "max-price", 0, "price ceiling in euros")
	cmd.Flags().IntVar(&f.minPrice, "min-price", 0, "price floor in euros")
	cmd.Flags().IntVar(&f.yearMin, "year-min", 0, "earliest first-registration year")
	cmd.Flags().IntVar(&f.yearMax, "year-max", 0, "latest first-registration year")
	cmd.Flags().IntVar(&f.mileageMax, "mileage-max", 0, "mileage ceiling in km")
	cmd.Flags().StringVar(&f.fuel, "fuel", "", "fuel type (essence, diesel, ...)")
	cmd.Flags().StringVar(&f.location, "location", "", "city constraint")
	cmd.Flags().IntVar(&f.radiusKm, "radius", 0, "search radius around --location in km")
	cmd.Flags().StringSliceVar(&f.siteNames, "sites", nil, "sites to search (default all)")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "sites to skip")
	cmd.Flags().StringVar(&f.format, "format", "text", "output format: text, json, html, csv")
	cmd.Flags().StringVar(&f.out, "out", "", "write output to file instead of stdout")
	cmd.Flags().BoolVar(&f.render, "render", viper.GetBool("render.enabled"), "use a headless browser for JS-only sites")
	cmd.Flags().BoolVar(&f.store, "store", false, "persist the run to the configured storage backend")

	if err := cmd.MarkFlagRequired("brand"); err != nil {
		fmt.Fprintf(os.Stderr, "mark brand flag required: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func runSearch(parent context.Context, f searchFlags) error {
	logger := newLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if port := viper.GetInt("metrics.port"); port > 0 {
		srv := metrics.Start(port)
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Stop(shutCtx)
		}()
	}

	fetcher, cleanup, err := buildFetcher(f.render, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := search.New(
		scrape.NewController(scrape.NewScraper(fetcher, buildChain(logger), logger), logger),
		sites.ByName(f.siteNames),
		logger,
	)

	q := listing.Query{
		Brand:         f.brand,
		Model:         f.model,
		MaxPrice:      f.maxPrice,
		MinPrice:      f.minPrice,
		YearMin:       f.yearMin,
		YearMax:       f.yearMax,
		MileageMax:    f.mileageMax,
		Fuel:          f.fuel,
		Location:      f.location,
		RadiusKm:      f.radiusKm,
		ExcludedSites: f.exclude,
	}

	start := time.Now()
	res, err := engine.Search(ctx, q)
	if err != nil {
		return err
	}

	if f.store {
		if err := storeRun(ctx, q, res, time.Since(start)); err != nil {
			logger.Error("store run failed", "error", err)
		}
	}

	w, closeOut, err := outputWriter(f.out)
	if err != nil {
		return err
	}
	defer closeOut()
	return writeOutput(w, f.format, q, res)
}

// buildFetcher assembles the capability router from config: a raw HTTP
// fetcher always, a browser renderer when asked, an AI-less structured
// tier never (no provider integration ships yet).
func buildFetcher(render bool, logger *slog.Logger) (fetch.Fetcher, func(), error) {
	pool := proxy.NewPool(proxy.Config{})
	if path := viper.GetString("proxy.file"); path != "" {
		if err := pool.LoadFile(path); err != nil {
			return nil, nil, fmt.Errorf("load proxy file: %w", err)
		}
	}
	var proxies *proxy.Pool
	if pool.Len() > 0 {
		proxies = pool
	}

	httpFetcher, err := fetch.NewHTTPFetcher(fetch.HTTPConfig{
		Timeout:       viper.GetDuration("fetch.timeout"),
		CookieJar:     true,
		Fingerprint:   fingerprint.Profile(viper.GetString("fetch.fingerprint")),
		UAPool:        useragent.New(viper.GetStringSlice("fetch.user_agents")),
		ProxyPool:     proxies,
		Limiter:       ratelimit.New(viper.GetFloat64("ratelimit.rps"), viper.GetFloat64("ratelimit.jitter")),
		RespectRobots: viper.GetBool("fetch.respect_robots"),
		UserAgent:     "vigiauto",
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build http fetcher: %w", err)
	}

	caps := &fetch.Capability{HTTP: httpFetcher}
	cleanup := func() {}
	if render {
		renderer := fetch.NewRenderer(fetch.RenderConfig{
			Timeout: viper.GetDuration("render.timeout"),
		}, logger)
		caps.Rendered = renderer
		cleanup = renderer.Close
	}
	return caps, cleanup, nil
}

// buildChain enables the AI tier only when an API key is configured.
func buildChain(logger *slog.Logger) *extract.Chain {
	var ai aix.Extractor
	if key := viper.GetString("ai.api_key"); key != "" {
		ai = aix.New(aix.Config{
			BaseURL: viper.GetString("ai.base_url"),
			APIKey:  key,
			Model:   viper.GetString("ai.model"),
		}, logger)
	}
	return extract.NewChain(ai, logger)
}

func storeRun(ctx context.Context, q listing.Query, res *listing.Result, d time.Duration) error {
	backend, err := openBackend(ctx)
	if err != nil {
		return err
	}
	if backend == nil {
		return fmt.Errorf("storage.backend is %q; set sqlite, postgres or json", viper.GetString("storage.backend"))
	}
	defer backend.Close()

	return backend.Save(ctx, &storage.SearchRecord{
		ID:        uuid.NewString(),
		Query:     q,
		Result:    res,
		CreatedAt: time.Now().UTC(),
		Duration:  listing.Millis(d),
	})
}

func openBackend(ctx context.Context) (storage.Backend, error) {
	dsn := viper.GetString("storage.dsn")
	switch viper.GetString("storage.backend") {
	case "sqlite":
		return sqlite.New(dsn)
	case "postgres":
		return postgres.New(ctx, dsn)
	case "json":
		return jsonbackend.New(dsn)
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", viper.GetString("storage.backend"))
	}
}

func outputWriter(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func writeOutput(w io.Writer, format string, q listing.Query, res *listing.Result) error {
	switch format {
	case "json":
		return report.WriteJSON(w, res)
	case "html":
		return report.WriteHTML(w, report.Summarize(q, res))
	case "csv":
		return export.WriteCSV(w, res.Listings)
	case "", "text":
		return report.WriteText(w, report.Summarize(q, res))
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
