package costing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
)

const (
	// DateLayout is the calendar-day format accepted for report bounds.
	DateLayout = "2006-01-02"

	// MaxNameFilterLength caps the ingredient name filter, in characters.
	MaxNameFilterLength = 120
)

// RepositoryPort exposes the read-only master data and sales contracts.
type RepositoryPort interface {
	SalesSource
	Tenant(ctx context.Context, tenantID int64) (Tenant, error)
	Units(ctx context.Context, tenantID int64) ([]Unit, error)
	Products(ctx context.Context, tenantID int64) ([]Product, error)
	StockCategories(ctx context.Context, tenantID int64) ([]StockCategory, error)
	BOMEdges(ctx context.Context, tenantID int64) ([]BOMEdge, error)
}

// Recorder receives per-report instrumentation.
type Recorder interface {
	ObserveReport(cacheHit bool, duration time.Duration, salesRows int, warnings []Warning)
}

// ReportRequest describes one consumption report. Start and End are calendar
// days in the tenant's timezone, both inclusive.
type ReportRequest struct {
	TenantID        int64
	Start           string
	End             string
	NameFilter      string
	ProductIDs      []int64
	SalesCategoryID *int64
}

// Report is the response of GenerateConsumptionReport.
type Report struct {
	ReportID          string           `json:"report_id"`
	TenantID          int64            `json:"tenant_id"`
	Start             string           `json:"start"`
	End               string           `json:"end"`
	Timezone          string           `json:"timezone"`
	GeneratedAt       time.Time        `json:"generated_at"`
	Categories        []CategoryReport `json:"categories"`
	GrandTotalCost    decimal.Decimal  `json:"grand_total_cost"`
	FilteredTotalCost *decimal.Decimal `json:"filtered_total_cost,omitempty"`
	SoldLineItems     int              `json:"sold_line_items"`
	Warnings          []Warning        `json:"warnings"`
}

// MarshalJSON renders totals with two decimal places.
func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	return json.Marshal(struct {
		plain
		GrandTotalCost    string  `json:"grand_total_cost"`
		FilteredTotalCost *string `json:"filtered_total_cost,omitempty"`
	}{plain(r), r.GrandTotalCost.StringFixed(costPlaces), fixedCost(r.FilteredTotalCost)})
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	DefaultLocation *time.Location
	Locale          language.Tag
	SalesPageSize   int
}

// Service generates consumption reports.
type Service struct {
	repo      RepositoryPort
	cache     *CatalogCache
	sales     *SalesExtractor
	assembler *Assembler
	recorder  Recorder
	logger    *slog.Logger
	location  *time.Location
	now       func() time.Time
}

// NewService builds Service. cache and recorder may be nil.
func NewService(repo RepositoryPort, cache *CatalogCache, recorder Recorder, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.DefaultLocation
	if loc == nil {
		loc = time.UTC
	}
	locale := cfg.Locale
	if locale == language.Und {
		locale = language.English
	}
	return &Service{
		repo:      repo,
		cache:     cache,
		sales:     NewSalesExtractor(repo, cfg.SalesPageSize),
		assembler: NewAssembler(locale),
		recorder:  recorder,
		logger:    logger,
		location:  loc,
		now:       time.Now,
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// GenerateConsumptionReport computes ingredient consumption and cost for the
// tenant over the inclusive day range. Only validation and storage failures
// abort; every other problem is returned as a warning.
func (s *Service) GenerateConsumptionReport(ctx context.Context, req ReportRequest) (Report, error) {
	started := s.now()
	startDay, endDay, err := validateRequest(req)
	if err != nil {
		return Report{}, err
	}

	tenant, err := s.repo.Tenant(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return Report{}, &ValidationError{Field: "tenant_id", Reason: "tenant not found", Err: ErrTenantNotFound}
		}
		return Report{}, storageError("load tenant", err)
	}
	loc := s.tenantLocation(tenant)
	from, to := DayBounds(startDay, endDay, loc)

	var (
		catalog  Catalog
		cacheHit bool
		items    []SoldLineItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		catalog, cacheHit, err = s.cache.Fetch(gctx, tenant.ID, func(ctx context.Context) (Catalog, error) {
			return s.loadCatalog(ctx, tenant.ID)
		})
		return err
	})
	g.Go(func() error {
		var err error
		items, err = s.sales.Extract(gctx, SalesQuery{
			TenantID:        tenant.ID,
			From:            from,
			To:              to,
			Statuses:        ConsumingStatuses,
			ProductIDs:      req.ProductIDs,
			SalesCategoryID: req.SalesCategoryID,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, storageError("load report inputs", err)
	}

	indices := BuildIndices(catalog, s.logger)
	agg := NewAggregator(indices.BOM, indices.Units, s.logger).Aggregate(items)
	body := s.assembler.Assemble(agg, indices.BOM, indices.Units, indices.Categories, req.NameFilter)

	report := Report{
		TenantID:          tenant.ID,
		Start:             startDay.Format(DateLayout),
		End:               endDay.Format(DateLayout),
		Timezone:          loc.String(),
		GeneratedAt:       s.now().UTC(),
		Categories:        body.Categories,
		GrandTotalCost:    body.GrandTotalCost,
		FilteredTotalCost: body.FilteredTotalCost,
		SoldLineItems:     agg.LineItems,
		Warnings:          agg.Warnings,
	}
	if report.Warnings == nil {
		report.Warnings = []Warning{}
	}
	if report.ReportID, err = reportID(req, report); err != nil {
		return Report{}, err
	}

	elapsed := s.now().Sub(started)
	if s.recorder != nil {
		s.recorder.ObserveReport(cacheHit, elapsed, len(items), report.Warnings)
	}
	s.logger.Info("consumption report generated",
		slog.Int64("tenant_id", tenant.ID),
		slog.String("start", report.Start),
		slog.String("end", report.End),
		slog.Int("line_items", agg.LineItems),
		slog.Int("ingredients", len(agg.Results)),
		slog.Int("warnings", len(report.Warnings)),
		slog.Bool("cache_hit", cacheHit),
		slog.Duration("duration", elapsed),
	)
	return report, nil
}

// InvalidateCatalog drops the tenant's cached master data.
func (s *Service) InvalidateCatalog(ctx context.Context, tenantID int64) (int64, error) {
	if tenantID <= 0 {
		return 0, &ValidationError{Field: "tenant_id", Reason: "must be positive"}
	}
	ver, err := s.cache.Bump(ctx, tenantID)
	if err != nil {
		return 0, &StorageError{Op: "bump catalog cache", Err: err, Retryable: true}
	}
	s.logger.Info("catalog cache invalidated", slog.Int64("tenant_id", tenantID), slog.Int64("version", ver))
	return ver, nil
}

// loadCatalog issues the four master data reads concurrently.
func (s *Service) loadCatalog(ctx context.Context, tenantID int64) (Catalog, error) {
	catalog := Catalog{TenantID: tenantID}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		catalog.Units, err = s.repo.Units(gctx, tenantID)
		return storageError("load units", err)
	})
	g.Go(func() (err error) {
		catalog.Products, err = s.repo.Products(gctx, tenantID)
		return storageError("load products", err)
	})
	g.Go(func() (err error) {
		catalog.Categories, err = s.repo.StockCategories(gctx, tenantID)
		return storageError("load stock categories", err)
	})
	g.Go(func() (err error) {
		catalog.Edges, err = s.repo.BOMEdges(gctx, tenantID)
		return storageError("load bom edges", err)
	})
	if err := g.Wait(); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}

func (s *Service) tenantLocation(t Tenant) *time.Location {
	tz := strings.TrimSpace(t.Timezone)
	if tz == "" {
		return s.location
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.logger.Warn("tenant timezone invalid, using default",
			slog.Int64("tenant_id", t.ID),
			slog.String("timezone", tz),
			slog.String("default", s.location.String()),
		)
		return s.location
	}
	return loc
}

func validateRequest(req ReportRequest) (time.Time, time.Time, error) {
	if req.TenantID <= 0 {
		return time.Time{}, time.Time{}, &ValidationError{Field: "tenant_id", Reason: "must be positive"}
	}
	start, err := time.Parse(DateLayout, strings.TrimSpace(req.Start))
	if err != nil {
		return time.Time{}, time.Time{}, &ValidationError{Field: "start", Reason: "expected YYYY-MM-DD", Err: err}
	}
	end, err := time.Parse(DateLayout, strings.TrimSpace(req.End))
	if err != nil {
		return time.Time{}, time.Time{}, &ValidationError{Field: "end", Reason: "expected YYYY-MM-DD", Err: err}
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, &ValidationError{Field: "start", Reason: "start date is after end date"}
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.NameFilter)) > MaxNameFilterLength {
		return time.Time{}, time.Time{}, &ValidationError{Field: "q", Reason: "name filter too long"}
	}
	for _, id := range req.ProductIDs {
		if id <= 0 {
			return time.Time{}, time.Time{}, &ValidationError{Field: "product_id", Reason: "must be positive"}
		}
	}
	if req.SalesCategoryID != nil && *req.SalesCategoryID <= 0 {
		return time.Time{}, time.Time{}, &ValidationError{Field: "category_id", Reason: "must be positive"}
	}
	return start, end, nil
}

// DayBounds converts inclusive calendar days into the half-open instant range
// [start 00:00, day after end 00:00) in loc.
func DayBounds(start, end time.Time, loc *time.Location) (time.Time, time.Time) {
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	to := time.Date(end.Year(), end.Month(), end.Day()+1, 0, 0, 0, 0, loc)
	return from, to
}

// reportNamespace scopes report ids.
var reportNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:odyssey:costing:consumption-report"))

// reportID derives a name-based UUID from the request scope and the computed
// body. Identical inputs over an unchanged catalog share an id; generated_at
// is not part of it.
func reportID(req ReportRequest, r Report) (string, error) {
	ids := append([]int64(nil), req.ProductIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	name, err := json.Marshal(struct {
		TenantID        int64            `json:"tenant_id"`
		Start           string           `json:"start"`
		End             string           `json:"end"`
		Timezone        string           `json:"timezone"`
		NameFilter      string           `json:"q"`
		ProductIDs      []int64          `json:"product_ids"`
		SalesCategoryID *int64           `json:"category_id"`
		Categories      []CategoryReport `json:"categories"`
		Grand           string           `json:"grand_total_cost"`
		SoldLineItems   int              `json:"sold_line_items"`
		Warnings        []Warning        `json:"warnings"`
	}{
		TenantID:        r.TenantID,
		Start:           r.Start,
		End:             r.End,
		Timezone:        r.Timezone,
		NameFilter:      strings.TrimSpace(req.NameFilter),
		ProductIDs:      ids,
		SalesCategoryID: req.SalesCategoryID,
		Categories:      r.Categories,
		Grand:           r.GrandTotalCost.StringFixed(costPlaces),
		SoldLineItems:   r.SoldLineItems,
		Warnings:        r.Warnings,
	})
	if err != nil {
		return "", fmt.Errorf("costing: digest report: %w", err)
	}
	return uuid.NewSHA1(reportNamespace, name).String(), nil
}
