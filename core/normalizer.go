package core

import (
	"bytes"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

type OperationKind string

const (
	KindList          OperationKind = "list"
	KindSearch        OperationKind = "search"
	KindGet           OperationKind = "get"
	KindCreate        OperationKind = "create"
	KindBulkCreate    OperationKind = "bulk_create"
	KindUpdate        OperationKind = "update"
	KindDelete        OperationKind = "delete"
	KindFieldMetadata OperationKind = "field_metadata"
	KindModules       OperationKind = "modules"
)

const (
	MinPageLimit = 1
	MaxPageLimit = 200
)

type normalizeRule struct {
	success    []int
	emptyOK    bool
	paginated  bool
	dataKey    string
	shape      func(payload map[string]any, key string) (any, int)
	reportSize bool
}

// normalizeRules is the single status table for every operation kind.
var normalizeRules = map[OperationKind]normalizeRule{
	KindList:          {success: []int{http.StatusOK}, emptyOK: true, paginated: true, dataKey: "data", shape: shapeList, reportSize: true},
	KindSearch:        {success: []int{http.StatusOK}, emptyOK: true, paginated: true, dataKey: "data", shape: shapeList, reportSize: true},
	KindGet:           {success: []int{http.StatusOK}, dataKey: "data", shape: shapeFirst, reportSize: true},
	KindCreate:        {success: []int{http.StatusCreated}, dataKey: "data", shape: shapeList},
	KindBulkCreate:    {success: []int{http.StatusCreated}, dataKey: "data", shape: shapeList},
	KindUpdate:        {success: []int{http.StatusOK}, dataKey: "data", shape: shapeList},
	KindDelete:        {success: []int{http.StatusOK}, dataKey: "data", shape: shapeList},
	KindFieldMetadata: {success: []int{http.StatusOK}, dataKey: "fields", shape: shapeFields, reportSize: true},
	KindModules:       {success: []int{http.StatusOK}, dataKey: "modules", shape: shapeModuleNames, reportSize: true},
}

// PageRequest is the caller's addressing for list and search. Limit is
// already clamped; Page is derived from Offset when OffsetBased is set.
type PageRequest struct {
	Limit       int
	Offset      int
	Page        int
	OffsetBased bool
}

// NewPageRequest clamps limit to [1,200] and resolves the page. A non-nil
// offset wins over page: page = offset/limit + 1.
func NewPageRequest(limit int, offset *int, page *int, defaultLimit int) PageRequest {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(max(limit, MinPageLimit), MaxPageLimit)
	req := PageRequest{Limit: limit, Page: 1}
	switch {
	case offset != nil:
		req.OffsetBased = true
		req.Offset = max(*offset, 0)
		req.Page = req.Offset/limit + 1
	case page != nil && *page > 0:
		req.Page = *page
		req.Offset = (req.Page - 1) * limit
	}
	return req
}

// Query renders the upstream page and per_page parameters.
func (p PageRequest) Query() map[string]string {
	return map[string]string{
		"page":     strconv.Itoa(p.Page),
		"per_page": strconv.Itoa(p.Limit),
	}
}

// NormalizeInput carries the per call context the table needs.
type NormalizeInput struct {
	Kind           OperationKind
	Module         string
	RecordID       string
	Page           *PageRequest
	SuccessMessage string
}

// FieldDescriptor is the reduced shape of one module field.
type FieldDescriptor struct {
	APIName         string `json:"api_name"`
	FieldLabel      string `json:"field_label"`
	DataType        string `json:"data_type"`
	SystemMandatory bool   `json:"system_mandatory"`
	PickListValues  []any  `json:"pick_list_values,omitempty"`
}

// Normalize maps one raw CRM response to an envelope using the rule for
// in.Kind. Any status outside the success set becomes an UPSTREAM_ERROR
// envelope carrying the status and the raw body text.
func Normalize(in NormalizeInput, resp RawResponse) Envelope {
	rule, ok := normalizeRules[in.Kind]
	if !ok {
		return FailureFromError(in.Module, in.RecordID,
			NewValidationError("core: unknown operation kind "+string(in.Kind), 0))
	}

	empty := resp.StatusCode == http.StatusNoContent && rule.emptyOK
	if !empty && !slices.Contains(rule.success, resp.StatusCode) {
		return FailureFromError(in.Module, in.RecordID, NewUpstreamError(resp.StatusCode, string(resp.Body)))
	}

	payload := map[string]any{}
	if !empty && len(bytes.TrimSpace(resp.Body)) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(resp.Body))
		decoder.UseNumber()
		if err := decoder.Decode(&payload); err != nil {
			return FailureFromError(in.Module, in.RecordID,
				NewUpstreamError(resp.StatusCode, "core: malformed response body: "+err.Error()))
		}
	}

	data, size := rule.shape(payload, rule.dataKey)
	env := Success(data).WithModule(in.Module).WithRecordID(in.RecordID)
	if rule.reportSize {
		env = env.WithCount(size)
	}
	if in.SuccessMessage != "" {
		env = env.WithMessage(in.SuccessMessage)
	}
	if rule.paginated && in.Page != nil {
		env = env.WithPagination(translatePagination(*in.Page, payload, size))
	}
	return env
}

// FailureFromError builds an error envelope attributed to module and
// record id.
func FailureFromError(module, recordID string, err error) Envelope {
	return Failure(module, err).WithRecordID(recordID)
}

func translatePagination(req PageRequest, payload map[string]any, returned int) *Pagination {
	p := &Pagination{
		Page:          req.Page,
		PerPage:       req.Limit,
		ReturnedCount: returned,
	}
	if info, ok := payload["info"].(map[string]any); ok {
		if page, err := toInt(info["page"]); err == nil && page > 0 {
			p.Page = page
		}
		if perPage, err := toInt(info["per_page"]); err == nil && perPage > 0 {
			p.PerPage = perPage
		}
		if more, ok := info["more_records"].(bool); ok {
			p.MoreRecords = more
		}
	}
	if p.MoreRecords && req.OffsetBased {
		p.NextOffset = intPtr(req.Offset + req.Limit)
	}
	return p
}

// AggregateModules folds per module list envelopes into one success
// envelope. Failed modules go to the errors list in the order given by
// modules; a failure never turns the aggregate into an error.
func AggregateModules(modules []string, results map[string]Envelope) Envelope {
	data := make(map[string]ModuleData, len(results))
	var errs []ModuleError
	total := 0
	for _, module := range modules {
		result, ok := results[module]
		if !ok {
			continue
		}
		if !result.IsSuccess() {
			errs = append(errs, ModuleError{
				Module:    module,
				Code:      result.Code,
				ErrorType: result.ErrorType,
				Message:   result.Message,
			})
			continue
		}
		count := 0
		if result.Count != nil {
			count = *result.Count
		}
		data[module] = ModuleData{
			Count:      count,
			Data:       result.Data,
			Pagination: result.Pagination,
		}
		total += count
	}
	env := Success(data)
	env.ModulesFetched = intPtr(len(data))
	env.TotalRecords = intPtr(total)
	if len(errs) > 0 {
		env.Errors = errs
	}
	return env
}

func shapeList(payload map[string]any, key string) (any, int) {
	items, _ := payload[key].([]any)
	if items == nil {
		items = []any{}
	}
	return items, len(items)
}

func shapeFirst(payload map[string]any, key string) (any, int) {
	items, _ := payload[key].([]any)
	if len(items) == 0 {
		return nil, 0
	}
	return items[0], 1
}

func shapeFields(payload map[string]any, key string) (any, int) {
	items, _ := payload[key].([]any)
	fields := make([]FieldDescriptor, 0, len(items))
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		field := FieldDescriptor{
			APIName:    stringField(raw["api_name"]),
			FieldLabel: stringField(raw["field_label"]),
			DataType:   stringField(raw["data_type"]),
		}
		field.SystemMandatory, _ = raw["system_mandatory"].(bool)
		if values, ok := raw["pick_list_values"].([]any); ok && len(values) > 0 {
			field.PickListValues = values
		}
		fields = append(fields, field)
	}
	return fields, len(fields)
}

func shapeModuleNames(payload map[string]any, key string) (any, int) {
	items, _ := payload[key].([]any)
	names := make([]string, 0, len(items))
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if name := strings.TrimSpace(stringField(raw["api_name"])); name != "" {
			names = append(names, name)
		}
	}
	return names, len(names)
}
