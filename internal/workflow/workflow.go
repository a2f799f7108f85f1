// Package workflow holds the state machines for documents, revisions, duplicates,
// tenants and contract services.
package workflow

import (
	"backoffice/internal/apperr"
	"backoffice/internal/model"
)

// Machine is a transition table keyed by the current state
type Machine struct {
	name        string
	transitions map[string][]string
}

func (m Machine) Can(from, to string) bool {
	for _, next := range m.transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next lists the states reachable from the given one
func (m Machine) Next(from string) []string {
	return m.transitions[from]
}

// IsFinal reports whether no transition leaves the state
func (m Machine) IsFinal(state string) bool {
	return len(m.transitions[state]) == 0
}

// Known reports whether the state appears in the table
func (m Machine) Known(state string) bool {
	if _, ok := m.transitions[state]; ok {
		return true
	}
	for _, targets := range m.transitions {
		for _, t := range targets {
			if t == state {
				return true
			}
		}
	}
	return false
}

// Check returns a CONFLICT error when the transition is not in the table
func (m Machine) Check(from, to string) error {
	if !m.Known(to) {
		return apperr.Validation("unknown %s status %q", m.name, to)
	}
	if !m.Can(from, to) {
		return apperr.Conflict("cannot move %s from %s to %s", m.name, from, to).
			WithDetails(map[string]any{"from": from, "to": to, "allowed": m.Next(from)})
	}
	return nil
}

var Pipeline = Machine{
	name: "document",
	transitions: map[string][]string{
		model.PipelineUploaded:        {model.PipelineQueued, model.PipelineSplitPending},
		model.PipelineQueued:          {model.PipelineProcessing},
		model.PipelineProcessing:      {model.PipelineExtractionDone, model.PipelineFailedRetryable, model.PipelineFailedPermanent, model.PipelineDeadLetter},
		model.PipelineFailedRetryable: {model.PipelineQueued, model.PipelineDeadLetter},
		model.PipelineExtractionDone:  {model.PipelineQueued, model.PipelineSplitPending},
		model.PipelineSplitPending:    {model.PipelineSplitComplete, model.PipelineUploaded},
		model.PipelineDeadLetter:      {model.PipelineQueued},
	},
}

var Revision = Machine{
	name: "revision",
	transitions: map[string][]string{
		model.RevisionDraft:    {model.RevisionApproved, model.RevisionSuperseded},
		model.RevisionApproved: {model.RevisionSuperseded},
	},
}

var Duplicate = Machine{
	name: "duplicate status",
	transitions: map[string][]string{
		model.DuplicateNone:      {model.DuplicateSuspected},
		model.DuplicateSuspected: {model.DuplicateConfirmed, model.DuplicateRejected},
	},
}

var Tenant = Machine{
	name: "tenant",
	transitions: map[string][]string{
		model.TenantPendingSetup: {model.TenantActive},
		model.TenantActive:       {model.TenantSuspended, model.TenantDeactivated},
		model.TenantSuspended:    {model.TenantActive, model.TenantDeactivated},
	},
}

var ContractService = Machine{
	name: "contract service",
	transitions: map[string][]string{
		model.ServicePending: {model.ServiceActive, model.ServiceCancelled},
		model.ServiceActive:  {model.ServiceCompleted, model.ServiceCancelled},
	},
}

// CanTransition reports whether a document may move between pipeline statuses
func CanTransition(from, to string) bool {
	return Pipeline.Can(from, to)
}

// CanExtract reports whether extraction may be (re)queued from the status
func CanExtract(status string) bool {
	return Pipeline.Can(status, model.PipelineQueued)
}

// IsEditable reports whether a revision in the status accepts changes
func IsEditable(revisionStatus string) bool {
	return revisionStatus == model.RevisionDraft
}

// IsTerminal reports whether the pipeline status has no outgoing transitions
func IsTerminal(status string) bool {
	return Pipeline.IsFinal(status)
}
