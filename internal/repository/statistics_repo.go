package repository

import (
	"context"
	"fmt"
	"time"

	"backoffice/internal/model"

	"gorm.io/gorm"
)

// StatusCount is one bucket of a GROUP BY status query
type StatusCount struct {
	Status string
	Count  int64
}

// CompanyTotalRow is the approved home total of one company
type CompanyTotalRow struct {
	CompanyID     string
	CompanyName   string
	HomeCurrency  string
	DocumentCount int64
	HomeTotal     string
}

// StatisticsFilter limits statistics to a tenant/company scope and a date range.
// Scopes must qualify columns with processing_documents.
type StatisticsFilter struct {
	Scopes []Scope
	Start  time.Time
	End    time.Time
}

type StatisticsRepository interface {
	CountByPipelineStatus(ctx context.Context, filter StatisticsFilter) ([]StatusCount, error)
	CountByDuplicateStatus(ctx context.Context, filter StatisticsFilter) ([]StatusCount, error)
	CountByRevisionStatus(ctx context.Context, filter StatisticsFilter) ([]StatusCount, error)
	ApprovedTotalsByCompany(ctx context.Context, filter StatisticsFilter) ([]CompanyTotalRow, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

func (r *statisticsRepository) documents(ctx context.Context, filter StatisticsFilter) *gorm.DB {
	return GetDB(ctx, r.db).Table("processing_documents").
		Scopes(filter.Scopes...).
		Where("processing_documents.deleted_at IS NULL").
		Where("processing_documents.created_at >= ? AND processing_documents.created_at <= ?", filter.Start, filter.End)
}

func (r *statisticsRepository) CountByPipelineStatus(ctx context.Context, filter StatisticsFilter) ([]StatusCount, error) {
	var rows []StatusCount
	if err := r.documents(ctx, filter).
		Select("processing_documents.pipeline_status as status, COUNT(*) as count").
		Group("processing_documents.pipeline_status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count documents by pipeline status: %w", err)
	}
	return rows, nil
}

func (r *statisticsRepository) CountByDuplicateStatus(ctx context.Context, filter StatisticsFilter) ([]StatusCount, error) {
	var rows []StatusCount
	if err := r.documents(ctx, filter).
		Select("processing_documents.duplicate_status as status, COUNT(*) as count").
		Group("processing_documents.duplicate_status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count documents by duplicate status: %w", err)
	}
	return rows, nil
}

func (r *statisticsRepository) CountByRevisionStatus(ctx context.Context, filter StatisticsFilter) ([]StatusCount, error) {
	var rows []StatusCount
	if err := r.documents(ctx, filter).
		Joins("JOIN document_revisions ON document_revisions.document_id = processing_documents.id").
		Select("document_revisions.status as status, COUNT(*) as count").
		Group("document_revisions.status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count revisions by status: %w", err)
	}
	return rows, nil
}

// ApprovedTotalsByCompany sums approved home totals whose document date is in range.
// Confirmed duplicates are left out, matching the export.
func (r *statisticsRepository) ApprovedTotalsByCompany(ctx context.Context, filter StatisticsFilter) ([]CompanyTotalRow, error) {
	var rows []CompanyTotalRow
	if err := GetDB(ctx, r.db).Table("document_revisions").
		Joins("JOIN processing_documents ON processing_documents.id = document_revisions.document_id").
		Joins("JOIN companies ON companies.id = processing_documents.company_id").
		Scopes(filter.Scopes...).
		Where("processing_documents.deleted_at IS NULL").
		Where("document_revisions.status = ?", model.RevisionApproved).
		Where("processing_documents.duplicate_status <> ?", model.DuplicateConfirmed).
		Where("document_revisions.document_date >= ? AND document_revisions.document_date <= ?", filter.Start, filter.End).
		Select(`companies.id as company_id, companies.name as company_name, companies.home_currency as home_currency,
			COUNT(DISTINCT processing_documents.id) as document_count,
			COALESCE(CAST(SUM(document_revisions.home_total) AS TEXT), '0') as home_total`).
		Group("companies.id, companies.name, companies.home_currency").
		Order("companies.name ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to sum approved totals: %w", err)
	}
	return rows, nil
}
