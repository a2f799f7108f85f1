package service

import (
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
)

// EventDocumentUpdated is pushed whenever a document's status or lock version changes
const EventDocumentUpdated = "document.updated"

// DocumentEvent is the websocket payload for a document change
type DocumentEvent struct {
	Type            string    `json:"type"`
	DocumentID      uuid.UUID `json:"document_id"`
	TenantID        uuid.UUID `json:"tenant_id"`
	CompanyID       uuid.UUID `json:"company_id"`
	PipelineStatus  string    `json:"pipeline_status"`
	DuplicateStatus string    `json:"duplicate_status"`
	LockVersion     int       `json:"lock_version"`
	At              time.Time `json:"at"`
}

// Notifier delivers document events to connected clients of a tenant
type Notifier interface {
	PublishDocument(event DocumentEvent)
}

type noopNotifier struct{}

func (noopNotifier) PublishDocument(DocumentEvent) {}

func orNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

func documentEvent(doc *model.ProcessingDocument) DocumentEvent {
	return DocumentEvent{
		Type:            EventDocumentUpdated,
		DocumentID:      doc.ID,
		TenantID:        doc.TenantID,
		CompanyID:       doc.CompanyID,
		PipelineStatus:  doc.PipelineStatus,
		DuplicateStatus: doc.DuplicateStatus,
		LockVersion:     doc.LockVersion,
		At:              time.Now().UTC(),
	}
}
