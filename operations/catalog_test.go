package operations

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goliatone/go-crmbridge/core"
)

func newTestCatalog(crm *fakeCRM, tokens *fakeTokens, opts ...Option) *Catalog {
	return NewCatalog(tokens, crm, opts...)
}

func assertOneVariant(t *testing.T, env core.Envelope) {
	t.Helper()
	if err := env.Validate(); err != nil {
		t.Fatalf("invalid envelope %+v: %v", env, err)
	}
	wire, err := env.ToMap()
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	_, hasData := wire["data"]
	_, hasCode := wire["code"]
	_, hasType := wire["error_type"]
	if env.IsSuccess() && (hasCode || hasType) {
		t.Fatalf("success envelope leaked error fields: %v", wire)
	}
	if !env.IsSuccess() && hasData {
		t.Fatalf("error envelope leaked data: %v", wire)
	}
}

func TestGetModuleData_OffsetResolvesPage(t *testing.T) {
	crm := newFakeCRM().on(http.MethodGet, "/Leads", http.StatusOK,
		`{"data":[{"id":"1"}],"info":{"more_records":true,"page":3,"per_page":20}}`)
	catalog := newTestCatalog(crm, &fakeTokens{})

	env := catalog.GetModuleData(context.Background(), GetModuleDataInput{
		Module: "Leads",
		Limit:  20,
		Offset: intRef(40),
	})
	assertOneVariant(t, env)
	if !env.IsSuccess() {
		t.Fatalf("expected success, got %+v", env)
	}
	query := crm.request(0).Query
	if query["page"] != "3" || query["per_page"] != "20" {
		t.Fatalf("unexpected upstream query %v", query)
	}
	if env.Pagination == nil || env.Pagination.Page != 3 || !env.Pagination.MoreRecords {
		t.Fatalf("unexpected pagination %+v", env.Pagination)
	}
	if env.Pagination.NextOffset == nil || *env.Pagination.NextOffset != 60 {
		t.Fatalf("expected next offset 60, got %v", env.Pagination.NextOffset)
	}
	if env.Count == nil || *env.Count != 1 {
		t.Fatalf("expected count 1, got %v", env.Count)
	}
}

func TestGetModuleData_LimitIsClamped(t *testing.T) {
	crm := newFakeCRM().on(http.MethodGet, "/Deals", http.StatusOK, records(1))
	catalog := newTestCatalog(crm, &fakeTokens{})

	catalog.GetModuleData(context.Background(), GetModuleDataInput{Module: "Deals", Limit: 5000})
	if got := crm.request(0).Query["per_page"]; got != "200" {
		t.Fatalf("expected per_page 200, got %q", got)
	}
}

func TestGetModuleData_EmptyListOnNoContent(t *testing.T) {
	crm := newFakeCRM().on(http.MethodGet, "/Leads", http.StatusNoContent, "")
	catalog := newTestCatalog(crm, &fakeTokens{})

	env := catalog.GetModuleData(context.Background(), GetModuleDataInput{Module: "Leads"})
	if !env.IsSuccess() || env.Count == nil || *env.Count != 0 {
		t.Fatalf("expected empty success, got %+v", env)
	}
	if env.Pagination == nil || env.Pagination.MoreRecords {
		t.Fatalf("unexpected pagination %+v", env.Pagination)
	}
}

func TestGetModuleData_FanOutCollectsPartialFailures(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		crm := newFakeCRM().
			on(http.MethodGet, "/Leads", http.StatusOK, records(3)).
			on(http.MethodGet, "/Deals", http.StatusInternalServerError, `{"code":"INTERNAL_ERROR"}`)
		catalog := newTestCatalog(crm, &fakeTokens{},
			WithModules([]string{"Leads", "Deals"}),
			WithFanOutConcurrency(concurrency),
		)

		env := catalog.GetModuleData(context.Background(), GetModuleDataInput{})
		assertOneVariant(t, env)
		if !env.IsSuccess() {
			t.Fatalf("fan-out must stay a success, got %+v", env)
		}
		if *env.ModulesFetched != 1 || *env.TotalRecords != 3 {
			t.Fatalf("unexpected totals fetched=%d total=%d", *env.ModulesFetched, *env.TotalRecords)
		}
		data := env.Data.(map[string]core.ModuleData)
		if data["Leads"].Count != 3 {
			t.Fatalf("unexpected Leads data %+v", data["Leads"])
		}
		if _, ok := data["Deals"]; ok {
			t.Fatalf("failed module must not appear in data")
		}
		if len(env.Errors) != 1 || env.Errors[0].Module != "Deals" || env.Errors[0].Code != http.StatusInternalServerError {
			t.Fatalf("unexpected errors %+v", env.Errors)
		}
		if crm.calls() != 2 {
			t.Fatalf("expected one call per module, got %d", crm.calls())
		}
	}
}

type failingExchanger struct {
	calls atomic.Int32
}

func (e *failingExchanger) Exchange(context.Context) (core.IssuedToken, error) {
	e.calls.Add(1)
	return core.IssuedToken{}, errors.New("identity provider unavailable")
}

func TestGetModuleData_FanOutRefreshFailureIsAuthError(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		crm := newFakeCRM().
			on(http.MethodGet, "/Leads", http.StatusOK, records(1)).
			on(http.MethodGet, "/Deals", http.StatusOK, records(1))
		exchanger := &failingExchanger{}
		catalog := NewCatalog(core.NewTokenManager(exchanger), crm,
			WithModules([]string{"Leads", "Accounts", "Contacts", "Deals"}),
			WithFanOutConcurrency(concurrency),
		)

		env := catalog.GetModuleData(context.Background(), GetModuleDataInput{})
		assertOneVariant(t, env)
		if env.IsSuccess() || env.ErrorType != core.ErrorAuth {
			t.Fatalf("concurrency %d: expected auth failure, got %+v", concurrency, env)
		}
		if len(env.Errors) != 0 || env.ModulesFetched != nil {
			t.Fatalf("concurrency %d: auth failure must not be a partial failure: %+v", concurrency, env)
		}
		if got := exchanger.calls.Load(); got != 1 {
			t.Fatalf("concurrency %d: expected one exchange, got %d", concurrency, got)
		}
		if crm.calls() != 0 {
			t.Fatalf("concurrency %d: expected no dispatch, got %d", concurrency, crm.calls())
		}
	}
}

func TestGetModuleData_FanOutChecksTokenOnce(t *testing.T) {
	crm := newFakeCRM().
		on(http.MethodGet, "/Leads", http.StatusOK, records(1)).
		on(http.MethodGet, "/Deals", http.StatusOK, records(2))
	tokens := &fakeTokens{token: "shared"}
	catalog := newTestCatalog(crm, tokens, WithModules([]string{"Leads", "Deals"}))

	env := catalog.GetModuleData(context.Background(), GetModuleDataInput{})
	if !env.IsSuccess() || *env.ModulesFetched != 2 {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if tokens.ensured != 1 {
		t.Fatalf("expected one token check, got %d", tokens.ensured)
	}
	for _, token := range crm.tokens {
		if token != "shared" {
			t.Fatalf("expected shared token on every module call, got %q", token)
		}
	}
}

func TestGetModuleData_FanOutWithoutFailuresOmitsErrors(t *testing.T) {
	crm := newFakeCRM().
		on(http.MethodGet, "/Leads", http.StatusOK, records(2)).
		on(http.MethodGet, "/Contacts", http.StatusOK, records(1))
	catalog := newTestCatalog(crm, &fakeTokens{}, WithModules([]string{"Leads", "Contacts"}))

	env := catalog.GetModuleData(context.Background(), GetModuleDataInput{})
	wire, err := env.ToMap()
	if err != nil {
		t.Fatalf("to map: %v", err)
	}
	if _, ok := wire["errors"]; ok {
		t.Fatalf("errors key must be absent, got %v", wire["errors"])
	}
	if *env.TotalRecords != 3 || *env.ModulesFetched != 2 {
		t.Fatalf("unexpected totals %+v", env)
	}
}

func TestSearchRecords(t *testing.T) {
	crm := newFakeCRM().on(http.MethodGet, "/Contacts/search", http.StatusOK, records(2))
	catalog := newTestCatalog(crm, &fakeTokens{})

	env := catalog.SearchRecords(context.Background(), SearchInput{
		Module:   "Contacts",
		Criteria: "(Last_Name:equals:Doe)",
	})
	if !env.IsSuccess() || *env.Count != 2 {
		t.Fatalf("unexpected envelope %+v", env)
	}
	query := crm.request(0).Query
	if query["criteria"] != "(Last_Name:equals:Doe)" || query["per_page"] != "100" {
		t.Fatalf("unexpected query %v", query)
	}

	env = catalog.SearchRecords(context.Background(), SearchInput{Module: "Contacts"})
	if env.IsSuccess() || env.Code != http.StatusBadRequest || crm.calls() != 1 {
		t.Fatalf("expected local validation failure, got %+v", env)
	}
}

func TestBulkCreateRecords_RejectsOversizedBatchWithoutCalling(t *testing.T) {
	crm := newFakeCRM()
	tokens := &fakeTokens{}
	catalog := newTestCatalog(crm, tokens)

	batch := make([]Record, MaxBulkRecords+1)
	for i := range batch {
		batch[i] = Record{"Last_Name": "Doe"}
	}
	env := catalog.BulkCreateRecords(context.Background(), "Leads", batch)
	assertOneVariant(t, env)
	if env.IsSuccess() || env.Message != "Maximum 100 records allowed per bulk operation" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Code != 0 {
		t.Fatalf("expected no code, got %d", env.Code)
	}
	if crm.calls() != 0 || tokens.ensured != 0 {
		t.Fatalf("expected no calls, got dispatch=%d ensure=%d", crm.calls(), tokens.ensured)
	}
}

func TestBulkCreateRecords_RejectsEmptyBatchWithoutCalling(t *testing.T) {
	crm := newFakeCRM()
	tokens := &fakeTokens{}
	catalog := newTestCatalog(crm, tokens)

	for _, batch := range [][]Record{nil, {}} {
		env := catalog.BulkCreateRecords(context.Background(), "Leads", batch)
		assertOneVariant(t, env)
		if env.IsSuccess() || env.ErrorType != core.ErrorValidation {
			t.Fatalf("expected validation error, got %+v", env)
		}
		if env.Message != "records is required" || env.Code != http.StatusBadRequest {
			t.Fatalf("unexpected envelope %+v", env)
		}
	}
	if crm.calls() != 0 || tokens.ensured != 0 {
		t.Fatalf("expected no calls, got dispatch=%d ensure=%d", crm.calls(), tokens.ensured)
	}
}

func TestBulkCreateRecords_SendsBatch(t *testing.T) {
	crm := newFakeCRM().on(http.MethodPost, "/Leads", http.StatusCreated,
		`{"data":[{"code":"SUCCESS"},{"code":"SUCCESS"}]}`)
	catalog := newTestCatalog(crm, &fakeTokens{})

	env := catalog.BulkCreateRecords(context.Background(), "Leads", []Record{{"Last_Name": "A"}, {"Last_Name": "B"}})
	if !env.IsSuccess() || env.Message != "2 records created successfully" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if got := crm.bodyJSON(0); got != `{"data":[{"Last_Name":"A"},{"Last_Name":"B"}]}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestRecordCRUD(t *testing.T) {
	crm := newFakeCRM().
		on(http.MethodPost, "/Deals", http.StatusCreated, `{"data":[{"code":"SUCCESS","details":{"id":"9"}}]}`).
		on(http.MethodPut, "/Deals/9", http.StatusOK, `{"data":[{"code":"SUCCESS"}]}`).
		on(http.MethodGet, "/Deals/9", http.StatusOK, `{"data":[{"id":"9","Deal_Name":"Big"}]}`).
		on(http.MethodDelete, "/Deals/9", http.StatusOK, `{"data":[{"code":"SUCCESS"}]}`)
	catalog := newTestCatalog(crm, &fakeTokens{})
	ctx := context.Background()

	if env := catalog.CreateRecord(ctx, "Deals", Record{"Deal_Name": "Big"}); env.Message != "Record created successfully" {
		t.Fatalf("create: %+v", env)
	}
	if env := catalog.GetRecordByID(ctx, "Deals", "9"); !env.IsSuccess() || env.RecordID != "9" {
		t.Fatalf("get: %+v", env)
	} else if record := env.Data.(map[string]any); record["Deal_Name"] != "Big" {
		t.Fatalf("get returned %v", record)
	}
	if env := catalog.DeleteRecord(ctx, "Deals", "9"); env.Message != "Record deleted successfully" {
		t.Fatalf("delete: %+v", env)
	}
	if env := catalog.DeleteRecord(ctx, "Deals", ""); env.IsSuccess() || env.Message != "id is required" {
		t.Fatalf("delete without id: %+v", env)
	}
	if crm.calls() != 3 {
		t.Fatalf("expected 3 calls, got %d", crm.calls())
	}
}

func TestUpdateRecord_IsIdempotentAndDoesNotMutateInput(t *testing.T) {
	crm := newFakeCRM().on(http.MethodPut, "/Deals/9", http.StatusOK, `{"data":[{"code":"SUCCESS"}]}`)
	catalog := newTestCatalog(crm, &fakeTokens{})
	record := Record{"Stage": "Won"}

	first := catalog.UpdateRecord(context.Background(), "Deals", "9", record)
	second := catalog.UpdateRecord(context.Background(), "Deals", "9", record)
	if first.Status != second.Status || first.Message != second.Message || first.Message != "Record updated successfully" {
		t.Fatalf("updates differ: %+v vs %+v", first, second)
	}
	if crm.bodyJSON(0) != crm.bodyJSON(1) || crm.bodyJSON(0) != `{"data":[{"Stage":"Won","id":"9"}]}` {
		t.Fatalf("unexpected bodies %s %s", crm.bodyJSON(0), crm.bodyJSON(1))
	}
	if _, ok := record["id"]; ok {
		t.Fatalf("caller record was mutated: %v", record)
	}
}

func TestGetModuleFields_ShapesDescriptors(t *testing.T) {
	crm := newFakeCRM().on(http.MethodGet, "/settings/fields", http.StatusOK,
		`{"fields":[{"api_name":"Last_Name","field_label":"Last Name","data_type":"text","system_mandatory":true,"length":80}]}`)
	catalog := newTestCatalog(crm, &fakeTokens{})

	env := catalog.GetModuleFields(context.Background(), "Leads")
	fields, ok := env.Data.([]core.FieldDescriptor)
	if !ok || len(fields) != 1 || fields[0].APIName != "Last_Name" || !fields[0].SystemMandatory {
		t.Fatalf("unexpected fields %#v", env.Data)
	}
	if crm.request(0).Query["module"] != "Leads" {
		t.Fatalf("module query missing: %v", crm.request(0).Query)
	}
}

func TestGetAvailableModules(t *testing.T) {
	crm := newFakeCRM().on(http.MethodGet, "/settings/modules", http.StatusOK,
		`{"modules":[{"api_name":"Leads"},{"api_name":"Deals"},{"api_name":""}]}`)
	catalog := newTestCatalog(crm, &fakeTokens{})

	env := catalog.GetAvailableModules(context.Background())
	names, _ := env.Data.([]string)
	if strings.Join(names, ",") != "Leads,Deals" || *env.Count != 2 {
		t.Fatalf("unexpected modules %+v", env)
	}
}

func TestCatalog_AuthFailureDispatchesNothing(t *testing.T) {
	crm := newFakeCRM()
	tokens := &fakeTokens{err: core.NewAuthError(errors.New("invalid_code"), http.StatusBadRequest)}
	catalog := newTestCatalog(crm, tokens)

	env := catalog.GetRecordByID(context.Background(), "Leads", "1")
	assertOneVariant(t, env)
	if env.IsSuccess() || env.ErrorType != core.ErrorAuth {
		t.Fatalf("expected auth failure, got %+v", env)
	}
	if crm.calls() != 0 {
		t.Fatalf("expected no dispatch, got %d", crm.calls())
	}
}

func TestCatalog_UnauthorizedInvalidatesToken(t *testing.T) {
	crm := newFakeCRM().on(http.MethodGet, "/Leads/1", http.StatusUnauthorized, `{"code":"INVALID_TOKEN"}`)
	tokens := &fakeTokens{}
	catalog := newTestCatalog(crm, tokens)

	env := catalog.GetRecordByID(context.Background(), "Leads", "1")
	if env.IsSuccess() || env.Code != http.StatusUnauthorized || env.ErrorType != core.ErrorUpstream {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Message != `{"code":"INVALID_TOKEN"}` {
		t.Fatalf("expected verbatim body, got %q", env.Message)
	}
	if tokens.invalidated != 1 {
		t.Fatalf("expected token invalidation, got %d", tokens.invalidated)
	}
	if crm.calls() != 1 {
		t.Fatalf("expected no retry, got %d calls", crm.calls())
	}
}

func TestCatalog_TransportFailureBecomesEnvelope(t *testing.T) {
	crm := newFakeCRM()
	crm.err = core.NewTransportError(errors.New("connection refused"), "transport: request failed", nil).WithCode(http.StatusBadGateway)
	catalog := newTestCatalog(crm, &fakeTokens{})

	env := catalog.GetModuleData(context.Background(), GetModuleDataInput{Module: "Leads"})
	assertOneVariant(t, env)
	if env.ErrorType != core.ErrorTransport || env.Module != "Leads" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestCatalog_NotConfigured(t *testing.T) {
	env := NewCatalog(nil, nil).GetRecordByID(context.Background(), "Leads", "1")
	if env.IsSuccess() || env.ErrorType != core.ErrorInternal {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestCatalog_ObserverRecordsActivity(t *testing.T) {
	crm := newFakeCRM().on(http.MethodGet, "/Leads/1", http.StatusOK, `{"data":[{"id":"1"}]}`)
	sink := &recordingSink{}
	catalog := newTestCatalog(crm, &fakeTokens{}, WithObserver(core.NewObserver(nil, sink)))

	catalog.GetRecordByID(context.Background(), "Leads", "1")
	if len(sink.entries) != 1 {
		t.Fatalf("expected one activity entry, got %d", len(sink.entries))
	}
	entry := sink.entries[0]
	if entry.Operation != OpGetRecordByID || entry.Status != core.ActivityStatusOK || entry.RecordID != "1" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestRefreshToken(t *testing.T) {
	tokens := &fakeTokens{}
	env := newTestCatalog(newFakeCRM(), tokens).RefreshToken(context.Background())
	refresh, ok := env.Data.(TokenRefresh)
	if !ok || refresh.ValiditySeconds != 3600 || env.Message != "Access token refreshed" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if tokens.refreshed != 1 {
		t.Fatalf("expected one refresh, got %d", tokens.refreshed)
	}

	tokens.err = core.NewAuthError(errors.New("invalid_client"), 0)
	env = newTestCatalog(newFakeCRM(), tokens).RefreshToken(context.Background())
	if env.IsSuccess() || env.ErrorType != core.ErrorAuth || env.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected failure envelope %+v", env)
	}
}
