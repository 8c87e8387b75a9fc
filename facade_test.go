package crmbridge

import (
	"context"
	"testing"

	gocmd "github.com/goliatone/go-crmbridge/adapters/gocommand"
	crmcommand "github.com/goliatone/go-crmbridge/command"
	"github.com/goliatone/go-crmbridge/core"
	"github.com/goliatone/go-crmbridge/operations"
	crmquery "github.com/goliatone/go-crmbridge/query"
)

type stubFacadeCatalog struct {
	lastCreateModule string
	lastCreateRecord operations.Record
	lastGetID        string
}

func (s *stubFacadeCatalog) GetModuleData(context.Context, operations.GetModuleDataInput) core.Envelope {
	return core.Success([]any{}).WithCount(0)
}

func (s *stubFacadeCatalog) GetAvailableModules(context.Context) core.Envelope {
	return core.Success([]string{"Leads"}).WithCount(1)
}

func (s *stubFacadeCatalog) SearchRecords(_ context.Context, in operations.SearchInput) core.Envelope {
	return core.Success([]any{}).WithModule(in.Module)
}

func (s *stubFacadeCatalog) GetRecordByID(_ context.Context, module, id string) core.Envelope {
	s.lastGetID = id
	return core.Success(map[string]any{"id": id}).WithModule(module).WithRecordID(id)
}

func (s *stubFacadeCatalog) GetModuleFields(_ context.Context, module string) core.Envelope {
	return core.Success([]any{}).WithModule(module)
}

func (s *stubFacadeCatalog) CreateRecord(_ context.Context, module string, record operations.Record) core.Envelope {
	s.lastCreateModule = module
	s.lastCreateRecord = record
	return core.Success([]any{}).WithModule(module).WithMessage("Record created successfully")
}

func (s *stubFacadeCatalog) UpdateRecord(_ context.Context, module, id string, _ operations.Record) core.Envelope {
	return core.Success([]any{}).WithModule(module).WithRecordID(id)
}

func (s *stubFacadeCatalog) DeleteRecord(_ context.Context, module, id string) core.Envelope {
	return core.Success(nil).WithModule(module).WithRecordID(id)
}

func (s *stubFacadeCatalog) BulkCreateRecords(_ context.Context, module string, records []operations.Record) core.Envelope {
	return core.Success([]any{}).WithModule(module).WithCount(len(records))
}

func (s *stubFacadeCatalog) CreateLeadFromForm(context.Context, operations.LeadForm) core.Envelope {
	return core.Success([]any{}).WithModule("Leads")
}

func (s *stubFacadeCatalog) RefreshToken(context.Context) core.Envelope {
	return core.Success(map[string]any{"validity_seconds": 3600})
}

type stubFacadeActivityReader struct {
	lastFilter core.ActivityFilter
}

func (s *stubFacadeActivityReader) List(_ context.Context, filter core.ActivityFilter) (core.ActivityPage, error) {
	s.lastFilter = filter
	return core.ActivityPage{
		Items: []core.ActivityEntry{{ID: "act_1", Operation: "create_record"}},
		Page:  1,
		Total: 1,
	}, nil
}

type stubCatalogWithActivity struct {
	stubFacadeCatalog
	reader *stubFacadeActivityReader
}

func (s *stubCatalogWithActivity) ActivityReader() core.ActivityReader {
	return s.reader
}

func TestNewFacade_RequiresCatalog(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected error for nil catalog")
	}
}

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(&stubFacadeCatalog{}, WithActivityReader(&stubFacadeActivityReader{}))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.CreateRecord == nil || commands.RefreshToken == nil || commands.CreateLeadFromForm == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.GetModuleData == nil || queries.SearchRecords == nil || queries.ListActivity == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	handlers := facade.ToolHandlers()
	if handlers.Create != commands.CreateRecord || handlers.ModuleData != queries.GetModuleData {
		t.Fatalf("expected tool handlers to share facade handlers")
	}
	if len(facade.handlers()) != 12 {
		t.Fatalf("expected 12 handlers, got %d", len(facade.handlers()))
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	catalog := &stubFacadeCatalog{}
	reader := &stubFacadeActivityReader{}
	facade, err := NewFacade(catalog, WithActivityReader(reader))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	env, err := gocmd.ExecuteEnvelope(context.Background(), facade.Commands().CreateRecord, crmcommand.CreateRecordMessage{
		Module: "Leads",
		Record: operations.Record{"Last_Name": "Lovelace"},
	})
	if err != nil {
		t.Fatalf("execute create command: %v", err)
	}
	if catalog.lastCreateModule != "Leads" || catalog.lastCreateRecord["Last_Name"] != "Lovelace" {
		t.Fatalf("unexpected create delegation payload")
	}
	if env.Message != "Record created successfully" {
		t.Fatalf("unexpected envelope: %#v", env)
	}

	got, err := facade.Queries().GetRecordByID.Query(context.Background(), crmquery.GetRecordByIDMessage{
		Module: "Leads",
		ID:     "42",
	})
	if err != nil {
		t.Fatalf("query record: %v", err)
	}
	if catalog.lastGetID != "42" || got.RecordID != "42" {
		t.Fatalf("unexpected record query result: %#v", got)
	}

	page, err := facade.Queries().ListActivity.Query(context.Background(), crmquery.ListActivityMessage{
		Filter: core.ActivityFilter{Operation: "create_record", Page: 1, PerPage: 10},
	})
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if reader.lastFilter.Operation != "create_record" || len(page.Items) != 1 {
		t.Fatalf("unexpected activity delegation: %#v", page)
	}
}

func TestNewFacade_ResolvesActivityReaderFromCatalog(t *testing.T) {
	reader := &stubFacadeActivityReader{}
	facade, err := NewFacade(&stubCatalogWithActivity{reader: reader})
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if _, err := facade.Queries().ListActivity.Query(context.Background(), crmquery.ListActivityMessage{}); err != nil {
		t.Fatalf("list activity: %v", err)
	}
}

func TestNewFacade_ListActivityWithoutReader(t *testing.T) {
	facade, err := NewFacade(&stubFacadeCatalog{})
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if _, err := facade.Queries().ListActivity.Query(context.Background(), crmquery.ListActivityMessage{}); err == nil {
		t.Fatalf("expected error without activity reader")
	}
}
