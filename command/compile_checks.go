package command

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-crmbridge/operations"
)

var (
	_ gocmd.Commander[CreateRecordMessage]       = (*CreateRecordCommand)(nil)
	_ gocmd.Commander[UpdateRecordMessage]       = (*UpdateRecordCommand)(nil)
	_ gocmd.Commander[DeleteRecordMessage]       = (*DeleteRecordCommand)(nil)
	_ gocmd.Commander[BulkCreateRecordsMessage]  = (*BulkCreateRecordsCommand)(nil)
	_ gocmd.Commander[CreateLeadFromFormMessage] = (*CreateLeadFromFormCommand)(nil)
	_ gocmd.Commander[RefreshTokenMessage]       = (*RefreshTokenCommand)(nil)

	_ RecordWriter = (*operations.Catalog)(nil)
)
