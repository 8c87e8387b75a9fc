package core

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestNewPageRequest_OffsetTranslation(t *testing.T) {
	offset := 40
	req := NewPageRequest(20, &offset, nil, 200)
	if req.Page != 3 {
		t.Fatalf("expected page 3, got %d", req.Page)
	}
	if !req.OffsetBased || req.Offset != 40 || req.Limit != 20 {
		t.Fatalf("unexpected request %+v", req)
	}
	query := req.Query()
	if query["page"] != "3" || query["per_page"] != "20" {
		t.Fatalf("unexpected query %+v", query)
	}
}

func TestNewPageRequest_ClampsLimit(t *testing.T) {
	page := 2
	cases := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{name: "default", limit: 0, wantLimit: 200},
		{name: "negative", limit: -5, wantLimit: 200},
		{name: "too large", limit: 500, wantLimit: 200},
		{name: "in range", limit: 15, wantLimit: 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := NewPageRequest(tc.limit, nil, &page, 200)
			if req.Limit != tc.wantLimit {
				t.Fatalf("expected limit %d, got %d", tc.wantLimit, req.Limit)
			}
			if req.OffsetBased {
				t.Fatalf("expected page addressing")
			}
			if req.Page != 2 {
				t.Fatalf("expected page 2, got %d", req.Page)
			}
		})
	}
}

func TestNormalize_ListPagination(t *testing.T) {
	offset := 40
	req := NewPageRequest(20, &offset, nil, 200)
	cases := []struct {
		name     string
		more     bool
		wantNext *int
	}{
		{name: "more records", more: true, wantNext: intPtr(60)},
		{name: "end of results", more: false, wantNext: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := `{"data":[{"id":"1"},{"id":"2"}],"info":{"page":3,"per_page":20,"more_records":` +
				map[bool]string{true: "true", false: "false"}[tc.more] + `}}`
			env := Normalize(NormalizeInput{Kind: KindList, Module: "Leads", Page: &req}, RawResponse{
				StatusCode: http.StatusOK,
				Body:       []byte(body),
			})
			if !env.IsSuccess() {
				t.Fatalf("expected success, got %+v", env)
			}
			if env.Count == nil || *env.Count != 2 {
				t.Fatalf("expected count 2, got %v", env.Count)
			}
			p := env.Pagination
			if p == nil || p.Page != 3 || p.PerPage != 20 || p.ReturnedCount != 2 || p.MoreRecords != tc.more {
				t.Fatalf("unexpected pagination %+v", p)
			}
			switch {
			case tc.wantNext == nil && p.NextOffset != nil:
				t.Fatalf("expected next_offset absent, got %d", *p.NextOffset)
			case tc.wantNext != nil && (p.NextOffset == nil || *p.NextOffset != *tc.wantNext):
				t.Fatalf("expected next_offset %d, got %v", *tc.wantNext, p.NextOffset)
			}

			raw, err := json.Marshal(env)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if !tc.more && strings.Contains(string(raw), "next_offset") {
				t.Fatalf("next_offset must be absent from %s", raw)
			}
		})
	}
}

func TestNormalize_PageAddressingOmitsNextOffset(t *testing.T) {
	page := 1
	req := NewPageRequest(10, nil, &page, 200)
	env := Normalize(NormalizeInput{Kind: KindSearch, Module: "Contacts", Page: &req}, RawResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"data":[{"id":"1"}],"info":{"more_records":true}}`),
	})
	if env.Pagination == nil || !env.Pagination.MoreRecords {
		t.Fatalf("expected more_records, got %+v", env.Pagination)
	}
	if env.Pagination.NextOffset != nil {
		t.Fatalf("page addressing must not produce next_offset")
	}
}

func TestNormalize_NoContentIsEmptyPage(t *testing.T) {
	page := 1
	req := NewPageRequest(10, nil, &page, 200)
	env := Normalize(NormalizeInput{Kind: KindSearch, Module: "Leads", Page: &req}, RawResponse{
		StatusCode: http.StatusNoContent,
	})
	if !env.IsSuccess() {
		t.Fatalf("expected empty success, got %+v", env)
	}
	items, ok := env.Data.([]any)
	if !ok || len(items) != 0 {
		t.Fatalf("expected empty list, got %#v", env.Data)
	}
	if env.Pagination == nil || env.Pagination.MoreRecords {
		t.Fatalf("unexpected pagination %+v", env.Pagination)
	}
}

func TestNormalize_StatusTable(t *testing.T) {
	cases := []struct {
		name        string
		kind        OperationKind
		status      int
		wantSuccess bool
	}{
		{name: "list ok", kind: KindList, status: 200, wantSuccess: true},
		{name: "create needs 201", kind: KindCreate, status: 200, wantSuccess: false},
		{name: "create 201", kind: KindCreate, status: 201, wantSuccess: true},
		{name: "bulk 201", kind: KindBulkCreate, status: 201, wantSuccess: true},
		{name: "update 200", kind: KindUpdate, status: 200, wantSuccess: true},
		{name: "update 201", kind: KindUpdate, status: 201, wantSuccess: false},
		{name: "delete 200", kind: KindDelete, status: 200, wantSuccess: true},
		{name: "get 204", kind: KindGet, status: 204, wantSuccess: false},
		{name: "fields 500", kind: KindFieldMetadata, status: 500, wantSuccess: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := Normalize(NormalizeInput{Kind: tc.kind, Module: "Leads"}, RawResponse{
				StatusCode: tc.status,
				Body:       []byte(`{"data":[]}`),
			})
			if env.IsSuccess() != tc.wantSuccess {
				t.Fatalf("expected success=%v, got %+v", tc.wantSuccess, env)
			}
			if err := env.Validate(); err != nil {
				t.Fatalf("envelope invariant: %v", err)
			}
			if !tc.wantSuccess {
				if env.Code != tc.status {
					t.Fatalf("expected code %d, got %d", tc.status, env.Code)
				}
				if env.ErrorType != ErrorUpstream {
					t.Fatalf("expected upstream error type, got %q", env.ErrorType)
				}
			}
		})
	}
}

func TestNormalize_UpstreamErrorKeepsRawBody(t *testing.T) {
	body := `{"code":"INVALID_DATA","message":"the id given seems to be invalid"}`
	env := Normalize(NormalizeInput{Kind: KindGet, Module: "Leads", RecordID: "9"}, RawResponse{
		StatusCode: http.StatusBadRequest,
		Body:       []byte(body),
	})
	if env.IsSuccess() {
		t.Fatalf("expected error envelope")
	}
	if env.Message != body {
		t.Fatalf("expected verbatim body, got %q", env.Message)
	}
	if env.RecordID != "9" || env.Module != "Leads" {
		t.Fatalf("expected attribution, got %+v", env)
	}
}

func TestNormalize_GetByIDShapes(t *testing.T) {
	env := Normalize(NormalizeInput{Kind: KindGet, Module: "Leads", RecordID: "1"}, RawResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"data":[{"id":"1","Last_Name":"Doe"},{"id":"2"}]}`),
	})
	record, ok := env.Data.(map[string]any)
	if !ok || record["id"] != "1" {
		t.Fatalf("expected first record, got %#v", env.Data)
	}

	empty := Normalize(NormalizeInput{Kind: KindGet, Module: "Leads", RecordID: "1"}, RawResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"data":[]}`),
	})
	if !empty.IsSuccess() || empty.Data != nil {
		t.Fatalf("expected null data, got %#v", empty.Data)
	}
	raw, err := json.Marshal(empty)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"data":null`) {
		t.Fatalf("expected explicit null data, got %s", raw)
	}
}

func TestNormalize_FieldMetadataReduction(t *testing.T) {
	body := `{"fields":[
		{"api_name":"Last_Name","field_label":"Last Name","data_type":"text","system_mandatory":true,"length":80,"visible":true},
		{"api_name":"Lead_Source","field_label":"Lead Source","data_type":"picklist","system_mandatory":false,
		 "pick_list_values":[{"display_value":"Web","actual_value":"Web"}]}
	]}`
	env := Normalize(NormalizeInput{Kind: KindFieldMetadata, Module: "Leads"}, RawResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(body),
	})
	fields, ok := env.Data.([]FieldDescriptor)
	if !ok || len(fields) != 2 {
		t.Fatalf("expected two descriptors, got %#v", env.Data)
	}
	if fields[0].APIName != "Last_Name" || !fields[0].SystemMandatory || fields[0].PickListValues != nil {
		t.Fatalf("unexpected first field %+v", fields[0])
	}
	if len(fields[1].PickListValues) != 1 {
		t.Fatalf("expected pick list values, got %+v", fields[1])
	}
	raw, _ := json.Marshal(fields[0])
	if strings.Contains(string(raw), "length") || strings.Contains(string(raw), "pick_list_values") {
		t.Fatalf("unexpected keys in %s", raw)
	}
}

func TestNormalize_ModuleNames(t *testing.T) {
	env := Normalize(NormalizeInput{Kind: KindModules}, RawResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"modules":[{"api_name":"Leads"},{"api_name":"Deals"},{"plural_label":"x"}]}`),
	})
	names, ok := env.Data.([]string)
	if !ok || len(names) != 2 || names[0] != "Leads" || names[1] != "Deals" {
		t.Fatalf("unexpected names %#v", env.Data)
	}
	if env.Count == nil || *env.Count != 2 {
		t.Fatalf("expected count 2")
	}
}

func TestAggregateModules_PartialFailure(t *testing.T) {
	leads := Normalize(NormalizeInput{Kind: KindList, Module: "Leads"}, RawResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"data":[{"id":"1"},{"id":"2"},{"id":"3"}]}`),
	})
	deals := Normalize(NormalizeInput{Kind: KindList, Module: "Deals"}, RawResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       []byte(`internal`),
	})
	env := AggregateModules([]string{"Leads", "Deals"}, map[string]Envelope{"Deals": deals, "Leads": leads})

	if !env.IsSuccess() {
		t.Fatalf("partial failure must stay success")
	}
	if *env.ModulesFetched != 1 || *env.TotalRecords != 3 {
		t.Fatalf("unexpected totals %d %d", *env.ModulesFetched, *env.TotalRecords)
	}
	data := env.Data.(map[string]ModuleData)
	if data["Leads"].Count != 3 {
		t.Fatalf("expected Leads count 3, got %+v", data["Leads"])
	}
	if len(env.Errors) != 1 || env.Errors[0].Module != "Deals" || env.Errors[0].Code != 500 {
		t.Fatalf("unexpected errors %+v", env.Errors)
	}
}

func TestAggregateModules_NoErrorsOmitsField(t *testing.T) {
	leads := Success([]any{}).WithCount(0)
	env := AggregateModules([]string{"Leads"}, map[string]Envelope{"Leads": leads})
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), `"errors"`) {
		t.Fatalf("errors must be absent when empty: %s", raw)
	}
}
