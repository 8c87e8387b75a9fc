package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-crmbridge/core"
	"github.com/goliatone/go-crmbridge/operations"
)

var (
	_ gocmd.Querier[GetModuleDataMessage, core.Envelope]       = (*GetModuleDataQuery)(nil)
	_ gocmd.Querier[GetAvailableModulesMessage, core.Envelope] = (*GetAvailableModulesQuery)(nil)
	_ gocmd.Querier[SearchRecordsMessage, core.Envelope]       = (*SearchRecordsQuery)(nil)
	_ gocmd.Querier[GetRecordByIDMessage, core.Envelope]       = (*GetRecordByIDQuery)(nil)
	_ gocmd.Querier[GetModuleFieldsMessage, core.Envelope]     = (*GetModuleFieldsQuery)(nil)
	_ gocmd.Querier[ListActivityMessage, core.ActivityPage]    = (*ListActivityQuery)(nil)

	_ RecordReader = (*operations.Catalog)(nil)
)
