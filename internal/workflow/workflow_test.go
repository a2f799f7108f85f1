package workflow

import (
	"errors"
	"testing"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
)

func TestPipelineTransitions(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{model.PipelineUploaded, model.PipelineQueued, true},
		{model.PipelineUploaded, model.PipelineSplitPending, true},
		{model.PipelineQueued, model.PipelineProcessing, true},
		{model.PipelineProcessing, model.PipelineExtractionDone, true},
		{model.PipelineProcessing, model.PipelineDeadLetter, true},
		{model.PipelineFailedRetryable, model.PipelineQueued, true},
		{model.PipelineExtractionDone, model.PipelineQueued, true},
		{model.PipelineSplitPending, model.PipelineSplitComplete, true},
		{model.PipelineDeadLetter, model.PipelineQueued, true},

		{model.PipelineUploaded, model.PipelineProcessing, false},
		{model.PipelineQueued, model.PipelineExtractionDone, false},
		{model.PipelineFailedPermanent, model.PipelineQueued, false},
		{model.PipelineSplitComplete, model.PipelineQueued, false},
		{model.PipelineExtractionDone, model.PipelineUploaded, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCheckReturnsConflict(t *testing.T) {
	err := Pipeline.Check(model.PipelineFailedPermanent, model.PipelineQueued)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("Expected conflict error, got %v", err)
	}
	if err := Pipeline.Check(model.PipelineUploaded, "BOGUS"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected validation error for unknown status, got %v", err)
	}
	if err := Pipeline.Check(model.PipelineUploaded, model.PipelineQueued); err != nil {
		t.Errorf("Expected allowed transition, got %v", err)
	}
}

func TestRevisionRules(t *testing.T) {
	if !Revision.Can(model.RevisionDraft, model.RevisionApproved) {
		t.Error("Expected DRAFT -> APPROVED to be allowed")
	}
	if !Revision.Can(model.RevisionApproved, model.RevisionSuperseded) {
		t.Error("Expected APPROVED -> SUPERSEDED to be allowed")
	}
	if Revision.Can(model.RevisionSuperseded, model.RevisionDraft) {
		t.Error("Expected SUPERSEDED to be terminal")
	}
	if Revision.Can(model.RevisionApproved, model.RevisionDraft) {
		t.Error("Expected APPROVED -> DRAFT to be rejected")
	}
	if !IsEditable(model.RevisionDraft) || IsEditable(model.RevisionApproved) || IsEditable(model.RevisionSuperseded) {
		t.Error("Expected only DRAFT to be editable")
	}
}

func TestDuplicateDecisions(t *testing.T) {
	if !Duplicate.Can(model.DuplicateSuspected, model.DuplicateConfirmed) {
		t.Error("Expected SUSPECTED -> CONFIRMED")
	}
	if !Duplicate.Can(model.DuplicateSuspected, model.DuplicateRejected) {
		t.Error("Expected SUSPECTED -> REJECTED")
	}
	for _, from := range []string{model.DuplicateNone, model.DuplicateConfirmed, model.DuplicateRejected} {
		if Duplicate.Can(from, model.DuplicateConfirmed) {
			t.Errorf("Did not expect %s -> CONFIRMED", from)
		}
	}
}

func TestTenantAndContractTables(t *testing.T) {
	if !Tenant.Can(model.TenantSuspended, model.TenantActive) {
		t.Error("Expected suspended tenants to be reinstatable")
	}
	if Tenant.Can(model.TenantDeactivated, model.TenantActive) {
		t.Error("Expected DEACTIVATED to be terminal")
	}
	if !ContractService.Can(model.ServiceActive, model.ServiceCancelled) {
		t.Error("Expected ACTIVE -> CANCELLED")
	}
	if ContractService.Can(model.ServiceCompleted, model.ServiceActive) {
		t.Error("Expected COMPLETED to be terminal")
	}
}

func TestTerminalAndExtractable(t *testing.T) {
	if !IsTerminal(model.PipelineFailedPermanent) || !IsTerminal(model.PipelineSplitComplete) {
		t.Error("Expected FAILED_PERMANENT and SPLIT_COMPLETE to be terminal")
	}
	if !CanExtract(model.PipelineDeadLetter) || CanExtract(model.PipelineProcessing) {
		t.Error("Unexpected extractability")
	}
}
