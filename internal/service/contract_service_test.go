package service

import (
	"errors"
	"testing"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/repository"
)

func (f *fixture) contractService() ContractService {
	return NewContractService(repository.NewContractRepository(f.db), f.companies, f.contacts, f.audit, f.tx)
}

func TestStopContractDropsLaterDeadlines(t *testing.T) {
	f := newFixture(t)
	svc := f.contractService()

	created, err := svc.CreateContract(f.ctx, CreateContractRequest{
		CompanyID:    f.company.ID.String(),
		Name:         "Monthly bookkeeping",
		BillingCycle: model.BillingMonthly,
		Amount:       dec("450"),
		StartDate:    "2024-01-01",
	})
	if err != nil {
		t.Fatalf("Expected contract to be created, got %v", err)
	}
	if created.Status != model.ServicePending || created.Currency != "SGD" {
		t.Errorf("Expected PENDING in SGD, got %s %s", created.Status, created.Currency)
	}

	for _, due := range []string{"2024-02-15", "2024-09-15"} {
		if _, err := svc.CreateDeadline(f.ctx, created.ID, DeadlineRequest{Title: "Filing " + due, DueDate: due}); err != nil {
			t.Fatalf("Expected deadline, got %v", err)
		}
	}
	if _, err := svc.ChangeStatus(f.ctx, created.ID, ChangeContractStatusRequest{Status: model.ServiceActive}); err != nil {
		t.Fatalf("Expected activation, got %v", err)
	}

	stopped, err := svc.StopContract(f.ctx, created.ID, StopContractRequest{EndDate: "2024-06-30", Reason: "client moved provider"})
	if err != nil {
		t.Fatalf("Expected stop, got %v", err)
	}
	if stopped.Status != model.ServiceCancelled {
		t.Errorf("Expected CANCELLED, got %s", stopped.Status)
	}
	if stopped.EndDate == nil || *stopped.EndDate != "2024-06-30" {
		t.Errorf("Expected end date 2024-06-30, got %v", stopped.EndDate)
	}
	if stopped.StopReason != "client moved provider" {
		t.Errorf("Expected stop reason, got %q", stopped.StopReason)
	}

	deadlines, err := svc.ListDeadlines(f.ctx, created.ID)
	if err != nil {
		t.Fatalf("Expected deadlines, got %v", err)
	}
	if len(deadlines) != 1 || deadlines[0].DueDate != "2024-02-15" {
		t.Errorf("Expected only the February deadline to remain, got %+v", deadlines)
	}
	if f.auditCount(t, model.ActionServiceStopped) != 1 {
		t.Error("Expected a SERVICE_STOPPED audit row")
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"stop again", func() error {
			_, err := svc.StopContract(f.ctx, created.ID, StopContractRequest{EndDate: "2024-07-01", Reason: "again"})
			return err
		}},
		{"edit cancelled", func() error {
			_, err := svc.UpdateContract(f.ctx, created.ID, UpdateContractRequest{Name: strPtr("Renamed")})
			return err
		}},
		{"deadline on cancelled", func() error {
			_, err := svc.CreateDeadline(f.ctx, created.ID, DeadlineRequest{Title: "late", DueDate: "2024-03-01"})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, apperr.ErrConflict) {
				t.Errorf("Expected conflict, got %v", err)
			}
		})
	}
}

func TestContractDateValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.contractService()

	_, err := svc.CreateContract(f.ctx, CreateContractRequest{
		CompanyID:    f.company.ID.String(),
		Name:         "Audit",
		BillingCycle: model.BillingAnnual,
		StartDate:    "2024-05-01",
		EndDate:      strPtr("2024-04-01"),
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected validation error for end before start, got %v", err)
	}

	created, err := svc.CreateContract(f.ctx, CreateContractRequest{
		CompanyID:    f.company.ID.String(),
		Name:         "Audit",
		BillingCycle: model.BillingAnnual,
		StartDate:    "2024-05-01",
	})
	if err != nil {
		t.Fatalf("Expected contract, got %v", err)
	}
	if _, err := svc.StopContract(f.ctx, created.ID, StopContractRequest{EndDate: "2024-01-01", Reason: "typo"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected validation error for stop before start, got %v", err)
	}
}
