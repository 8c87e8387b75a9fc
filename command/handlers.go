package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-crmbridge/core"
	"github.com/goliatone/go-crmbridge/operations"
)

// RecordWriter is the mutating side of the operation catalog.
type RecordWriter interface {
	CreateRecord(ctx context.Context, module string, record operations.Record) core.Envelope
	UpdateRecord(ctx context.Context, module, id string, record operations.Record) core.Envelope
	DeleteRecord(ctx context.Context, module, id string) core.Envelope
	BulkCreateRecords(ctx context.Context, module string, records []operations.Record) core.Envelope
	CreateLeadFromForm(ctx context.Context, form operations.LeadForm) core.Envelope
	RefreshToken(ctx context.Context) core.Envelope
}

// Every command stores its envelope as the result. A failed CRM call is a
// stored error envelope, not a returned error.

type CreateRecordCommand struct {
	writer RecordWriter
}

func NewCreateRecordCommand(writer RecordWriter) *CreateRecordCommand {
	return &CreateRecordCommand{writer: writer}
}

func (c *CreateRecordCommand) Execute(ctx context.Context, msg CreateRecordMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: record writer is required")
	}
	storeResult(ctx, c.writer.CreateRecord(ctx, msg.Module, msg.Record))
	return nil
}

type UpdateRecordCommand struct {
	writer RecordWriter
}

func NewUpdateRecordCommand(writer RecordWriter) *UpdateRecordCommand {
	return &UpdateRecordCommand{writer: writer}
}

func (c *UpdateRecordCommand) Execute(ctx context.Context, msg UpdateRecordMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: record writer is required")
	}
	storeResult(ctx, c.writer.UpdateRecord(ctx, msg.Module, msg.ID, msg.Record))
	return nil
}

type DeleteRecordCommand struct {
	writer RecordWriter
}

func NewDeleteRecordCommand(writer RecordWriter) *DeleteRecordCommand {
	return &DeleteRecordCommand{writer: writer}
}

func (c *DeleteRecordCommand) Execute(ctx context.Context, msg DeleteRecordMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: record writer is required")
	}
	storeResult(ctx, c.writer.DeleteRecord(ctx, msg.Module, msg.ID))
	return nil
}

type BulkCreateRecordsCommand struct {
	writer RecordWriter
}

func NewBulkCreateRecordsCommand(writer RecordWriter) *BulkCreateRecordsCommand {
	return &BulkCreateRecordsCommand{writer: writer}
}

func (c *BulkCreateRecordsCommand) Execute(ctx context.Context, msg BulkCreateRecordsMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: record writer is required")
	}
	storeResult(ctx, c.writer.BulkCreateRecords(ctx, msg.Module, msg.Records))
	return nil
}

type CreateLeadFromFormCommand struct {
	writer RecordWriter
}

func NewCreateLeadFromFormCommand(writer RecordWriter) *CreateLeadFromFormCommand {
	return &CreateLeadFromFormCommand{writer: writer}
}

func (c *CreateLeadFromFormCommand) Execute(ctx context.Context, msg CreateLeadFromFormMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: record writer is required")
	}
	storeResult(ctx, c.writer.CreateLeadFromForm(ctx, msg.Form))
	return nil
}

type RefreshTokenCommand struct {
	writer RecordWriter
}

func NewRefreshTokenCommand(writer RecordWriter) *RefreshTokenCommand {
	return &RefreshTokenCommand{writer: writer}
}

func (c *RefreshTokenCommand) Execute(ctx context.Context, _ RefreshTokenMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: record writer is required")
	}
	storeResult(ctx, c.writer.RefreshToken(ctx))
	return nil
}

func storeResult(ctx context.Context, env core.Envelope) {
	if collector := gocmd.ResultFromContext[core.Envelope](ctx); collector != nil {
		collector.Store(env)
	}
}
