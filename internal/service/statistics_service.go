package service

import (
	"context"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/rbac"
	"backoffice/internal/repository"
	"backoffice/internal/tenancy"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// --- DTOs ---

type CompanyTotal struct {
	CompanyID     string `json:"company_id"`
	CompanyName   string `json:"company_name"`
	HomeCurrency  string `json:"home_currency"`
	DocumentCount int64  `json:"document_count"`
	HomeTotal     string `json:"home_total"`
}

type DocumentStatistics struct {
	TimeRangeStartDate time.Time        `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time        `json:"time_range_end_date"`
	TotalDocuments     int64            `json:"total_documents"`
	ByPipelineStatus   map[string]int64 `json:"by_pipeline_status"`
	ByDuplicateStatus  map[string]int64 `json:"by_duplicate_status"`
	ByRevisionStatus   map[string]int64 `json:"by_revision_status"`
	ApprovedTotals     []CompanyTotal   `json:"approved_totals"`
}

// --- Interface ---

type StatisticsService interface {
	GetDocumentStatistics(ctx context.Context, startDate, endDate time.Time) (*DocumentStatistics, error)
}

type statisticsService struct {
	repo repository.StatisticsRepository
}

func NewStatisticsService(repo repository.StatisticsRepository) StatisticsService {
	return &statisticsService{repo: repo}
}

// --- Implementation ---

// GetDocumentStatistics aggregates the caller's readable documents created in
// the range, plus approved home totals by document date
func (s *statisticsService) GetDocumentStatistics(ctx context.Context, startDate, endDate time.Time) (*DocumentStatistics, error) {
	p, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	if !p.Can(rbac.ResourceStatistics, rbac.ActionRead) {
		return nil, apperr.Forbidden("missing permission statistics.read")
	}
	if endDate.Before(startDate) {
		return nil, apperr.Validation("end_date must not be before start_date")
	}

	filter := repository.StatisticsFilter{
		Scopes: []repository.Scope{
			tenancy.Scope(p, "processing_documents.tenant_id"),
			p.Access(rbac.ResourceDocuments, rbac.ActionRead).Scope("processing_documents.company_id"),
		},
		Start: startDate,
		End:   endDate,
	}

	var (
		pipeline, duplicate, revision []repository.StatusCount
		totals                        []repository.CompanyTotalRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pipeline, err = s.repo.CountByPipelineStatus(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		duplicate, err = s.repo.CountByDuplicateStatus(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		revision, err = s.repo.CountByRevisionStatus(gctx, filter)
		return err
	})
	g.Go(func() (err error) {
		totals, err = s.repo.ApprovedTotalsByCompany(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &DocumentStatistics{
		TimeRangeStartDate: startDate,
		TimeRangeEndDate:   endDate,
		ByPipelineStatus:   countMap(pipeline),
		ByDuplicateStatus:  countMap(duplicate),
		ByRevisionStatus:   countMap(revision),
		ApprovedTotals:     make([]CompanyTotal, 0, len(totals)),
	}
	for _, c := range pipeline {
		res.TotalDocuments += c.Count
	}
	for _, t := range totals {
		total, err := decimal.NewFromString(t.HomeTotal)
		if err != nil {
			total = decimal.Zero
		}
		res.ApprovedTotals = append(res.ApprovedTotals, CompanyTotal{
			CompanyID:     t.CompanyID,
			CompanyName:   t.CompanyName,
			HomeCurrency:  t.HomeCurrency,
			DocumentCount: t.DocumentCount,
			HomeTotal:     total.StringFixed(2),
		})
	}
	return res, nil
}

func countMap(rows []repository.StatusCount) map[string]int64 {
	m := make(map[string]int64, len(rows))
	for _, r := range rows {
		m[r.Status] = r.Count
	}
	return m
}
