package operations

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-crmbridge/core"
)

const (
	OpGetModuleData       = "get_module_data"
	OpGetAvailableModules = "get_available_modules"
	OpSearchRecords       = "search_records"
	OpCreateRecord        = "create_record"
	OpUpdateRecord        = "update_record"
	OpDeleteRecord        = "delete_record"
	OpBulkCreateRecords   = "bulk_create_records"
	OpGetRecordByID       = "get_record_by_id"
	OpGetModuleFields     = "get_module_fields"
	OpCreateLeadFromForm  = "create_lead_from_form"
	OpRefreshToken        = "refresh_token"
)

const (
	MaxBulkRecords    = 100
	LeadsModule       = "Leads"
	NotesModule       = "Notes"
	defaultListLimit  = 200
	defaultSearchSize = 100
)

// OperationSpec declares one upstream call.
type OperationSpec struct {
	Name         string
	Method       string
	PathTemplate string
	Kind         core.OperationKind
	Required     []string
	DefaultLimit int
}

var operationSpecs = map[string]OperationSpec{
	OpGetModuleData: {
		Name: OpGetModuleData, Method: http.MethodGet, PathTemplate: "/{module}",
		Kind: core.KindList, Required: []string{"module"}, DefaultLimit: defaultListLimit,
	},
	OpGetAvailableModules: {
		Name: OpGetAvailableModules, Method: http.MethodGet, PathTemplate: "/settings/modules",
		Kind: core.KindModules,
	},
	OpSearchRecords: {
		Name: OpSearchRecords, Method: http.MethodGet, PathTemplate: "/{module}/search",
		Kind: core.KindSearch, Required: []string{"module"}, DefaultLimit: defaultSearchSize,
	},
	OpCreateRecord: {
		Name: OpCreateRecord, Method: http.MethodPost, PathTemplate: "/{module}",
		Kind: core.KindCreate, Required: []string{"module", "record"},
	},
	OpUpdateRecord: {
		Name: OpUpdateRecord, Method: http.MethodPut, PathTemplate: "/{module}/{id}",
		Kind: core.KindUpdate, Required: []string{"module", "id", "record"},
	},
	OpDeleteRecord: {
		Name: OpDeleteRecord, Method: http.MethodDelete, PathTemplate: "/{module}/{id}",
		Kind: core.KindDelete, Required: []string{"module", "id"},
	},
	OpBulkCreateRecords: {
		Name: OpBulkCreateRecords, Method: http.MethodPost, PathTemplate: "/{module}",
		Kind: core.KindBulkCreate, Required: []string{"module", "records"},
	},
	OpGetRecordByID: {
		Name: OpGetRecordByID, Method: http.MethodGet, PathTemplate: "/{module}/{id}",
		Kind: core.KindGet, Required: []string{"module", "id"},
	},
	OpGetModuleFields: {
		Name: OpGetModuleFields, Method: http.MethodGet, PathTemplate: "/settings/fields",
		Kind: core.KindFieldMetadata, Required: []string{"module"},
	},
}

// Spec returns the declaration for name.
func Spec(name string) (OperationSpec, bool) {
	spec, ok := operationSpecs[name]
	return spec, ok
}

// params carries the parameters a call was made with. Only presence is
// checked against Required; values are typed by the caller.
type params struct {
	module  string
	id      string
	present map[string]bool
}

func (p params) missing(spec OperationSpec) string {
	for _, name := range spec.Required {
		switch name {
		case "module":
			if p.module == "" {
				return name
			}
		case "id":
			if p.id == "" {
				return name
			}
		default:
			if !p.present[name] {
				return name
			}
		}
	}
	return ""
}

func (s OperationSpec) path(p params) string {
	path := strings.ReplaceAll(s.PathTemplate, "{module}", url.PathEscape(p.module))
	return strings.ReplaceAll(path, "{id}", url.PathEscape(p.id))
}
