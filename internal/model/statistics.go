package model

import (
	"time"
)

// DocumentStatistics aggregates document counts and approved totals over a time range
type DocumentStatistics struct {
	ByPipelineStatus   map[string]int64 `json:"by_pipeline_status"`
	ByDuplicateStatus  map[string]int64 `json:"by_duplicate_status"`
	ByRevisionStatus   map[string]int64 `json:"by_revision_status"`
	ApprovedTotals     []CompanyTotal   `json:"approved_totals"`
	TimeRangeStartDate time.Time        `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time        `json:"time_range_end_date"`
}

// CompanyTotal is the approved home-currency total of one company
type CompanyTotal struct {
	CompanyID     string `json:"company_id"`
	CompanyName   string `json:"company_name"`
	HomeCurrency  string `json:"home_currency"`
	DocumentCount int64  `json:"document_count"`
	HomeTotal     string `json:"home_total"`
}
