package query

import (
	"github.com/goliatone/go-crmbridge/core"
)

const (
	TypeGetModuleData       = "crm.query.module_data.list"
	TypeGetAvailableModules = "crm.query.modules.list"
	TypeSearchRecords       = "crm.query.records.search"
	TypeGetRecordByID       = "crm.query.record.get"
	TypeGetModuleFields     = "crm.query.fields.list"
	TypeListActivity        = "crm.query.activity.list"
)

type GetModuleDataMessage struct {
	Module string
	Limit  int
	Offset *int
	Page   *int
}

func (GetModuleDataMessage) Type() string { return TypeGetModuleData }

func (m GetModuleDataMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "must be >= 0")
	}
	if m.Offset != nil && *m.Offset < 0 {
		return queryValidationError("offset", "must be >= 0")
	}
	if m.Page != nil && *m.Page < 1 {
		return queryValidationError("page", "must be >= 1")
	}
	return nil
}

type GetAvailableModulesMessage struct{}

func (GetAvailableModulesMessage) Type() string { return TypeGetAvailableModules }

func (GetAvailableModulesMessage) Validate() error { return nil }

type SearchRecordsMessage struct {
	Module   string
	Criteria string
	Word     string
	Email    string
	Phone    string
	Limit    int
	Page     *int
}

func (SearchRecordsMessage) Type() string { return TypeSearchRecords }

func (m SearchRecordsMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "must be >= 0")
	}
	if m.Page != nil && *m.Page < 1 {
		return queryValidationError("page", "must be >= 1")
	}
	return nil
}

// GetRecordByIDMessage and GetModuleFieldsMessage leave required fields to
// the catalog so that missing values still produce an envelope.
type GetRecordByIDMessage struct {
	Module string
	ID     string
}

func (GetRecordByIDMessage) Type() string { return TypeGetRecordByID }

func (GetRecordByIDMessage) Validate() error { return nil }

type GetModuleFieldsMessage struct {
	Module string
}

func (GetModuleFieldsMessage) Type() string { return TypeGetModuleFields }

func (GetModuleFieldsMessage) Validate() error { return nil }

type ListActivityMessage struct {
	Filter core.ActivityFilter
}

func (ListActivityMessage) Type() string { return TypeListActivity }

func (m ListActivityMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "must be >= 0")
	}
	switch m.Filter.Status {
	case "", core.ActivityStatusOK, core.ActivityStatusError:
	default:
		return queryValidationError("status", "must be ok or error")
	}
	return nil
}
