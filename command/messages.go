package command

import (
	"github.com/goliatone/go-crmbridge/operations"
)

const (
	TypeCreateRecord       = "crm.command.record.create"
	TypeUpdateRecord       = "crm.command.record.update"
	TypeDeleteRecord       = "crm.command.record.delete"
	TypeBulkCreateRecords  = "crm.command.records.bulk_create"
	TypeCreateLeadFromForm = "crm.command.lead.create_from_form"
	TypeRefreshToken       = "crm.command.token.refresh"
)

// Required fields are enforced by the catalog, which reports them as error
// envelopes. Validate only rejects messages that cannot be sent at all.

type CreateRecordMessage struct {
	Module string
	Record operations.Record
}

func (CreateRecordMessage) Type() string { return TypeCreateRecord }

func (CreateRecordMessage) Validate() error { return nil }

type UpdateRecordMessage struct {
	Module string
	ID     string
	Record operations.Record
}

func (UpdateRecordMessage) Type() string { return TypeUpdateRecord }

func (m UpdateRecordMessage) Validate() error {
	if id, ok := m.Record["id"].(string); ok && m.ID != "" && id != m.ID {
		return commandValidationError("record.id", "does not match id")
	}
	return nil
}

type DeleteRecordMessage struct {
	Module string
	ID     string
}

func (DeleteRecordMessage) Type() string { return TypeDeleteRecord }

func (DeleteRecordMessage) Validate() error { return nil }

type BulkCreateRecordsMessage struct {
	Module  string
	Records []operations.Record
}

func (BulkCreateRecordsMessage) Type() string { return TypeBulkCreateRecords }

func (m BulkCreateRecordsMessage) Validate() error {
	for _, record := range m.Records {
		if record == nil {
			return commandValidationError("records", "must not contain null entries")
		}
	}
	return nil
}

type CreateLeadFromFormMessage struct {
	Form operations.LeadForm
}

func (CreateLeadFromFormMessage) Type() string { return TypeCreateLeadFromForm }

func (CreateLeadFromFormMessage) Validate() error { return nil }

type RefreshTokenMessage struct{}

func (RefreshTokenMessage) Type() string { return TypeRefreshToken }

func (RefreshTokenMessage) Validate() error { return nil }
