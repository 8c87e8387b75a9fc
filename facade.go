package crmbridge

import (
	"fmt"

	crmcommand "github.com/goliatone/go-crmbridge/command"
	"github.com/goliatone/go-crmbridge/core"
	"github.com/goliatone/go-crmbridge/mcp"
	crmquery "github.com/goliatone/go-crmbridge/query"
)

// CatalogService is the operation catalog seen through both handler sides.
type CatalogService interface {
	crmquery.RecordReader
	crmcommand.RecordWriter
}

type Commands struct {
	CreateRecord       *crmcommand.CreateRecordCommand
	UpdateRecord       *crmcommand.UpdateRecordCommand
	DeleteRecord       *crmcommand.DeleteRecordCommand
	BulkCreateRecords  *crmcommand.BulkCreateRecordsCommand
	CreateLeadFromForm *crmcommand.CreateLeadFromFormCommand
	RefreshToken       *crmcommand.RefreshTokenCommand
}

type Queries struct {
	GetModuleData       *crmquery.GetModuleDataQuery
	GetAvailableModules *crmquery.GetAvailableModulesQuery
	SearchRecords       *crmquery.SearchRecordsQuery
	GetRecordByID       *crmquery.GetRecordByIDQuery
	GetModuleFields     *crmquery.GetModuleFieldsQuery
	ListActivity        *crmquery.ListActivityQuery
}

type Facade struct {
	catalog  CatalogService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activityReader core.ActivityReader
}

func WithActivityReader(reader core.ActivityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activityReader = reader
	}
}

func NewFacade(catalog CatalogService, opts ...FacadeOption) (*Facade, error) {
	if catalog == nil {
		return nil, fmt.Errorf("crmbridge: operation catalog is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.activityReader
	if reader == nil {
		reader = resolveActivityReader(catalog)
	}

	facade := &Facade{catalog: catalog}
	facade.commands = Commands{
		CreateRecord:       crmcommand.NewCreateRecordCommand(catalog),
		UpdateRecord:       crmcommand.NewUpdateRecordCommand(catalog),
		DeleteRecord:       crmcommand.NewDeleteRecordCommand(catalog),
		BulkCreateRecords:  crmcommand.NewBulkCreateRecordsCommand(catalog),
		CreateLeadFromForm: crmcommand.NewCreateLeadFromFormCommand(catalog),
		RefreshToken:       crmcommand.NewRefreshTokenCommand(catalog),
	}
	facade.queries = Queries{
		GetModuleData:       crmquery.NewGetModuleDataQuery(catalog),
		GetAvailableModules: crmquery.NewGetAvailableModulesQuery(catalog),
		SearchRecords:       crmquery.NewSearchRecordsQuery(catalog),
		GetRecordByID:       crmquery.NewGetRecordByIDQuery(catalog),
		GetModuleFields:     crmquery.NewGetModuleFieldsQuery(catalog),
		ListActivity:        crmquery.NewListActivityQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Catalog() CatalogService {
	if f == nil {
		return nil
	}
	return f.catalog
}

// ToolHandlers hands the facade's handlers to the tool host.
func (f *Facade) ToolHandlers() mcp.CatalogHandlers {
	if f == nil {
		return mcp.CatalogHandlers{}
	}
	return mcp.CatalogHandlers{
		ModuleData: f.queries.GetModuleData,
		Modules:    f.queries.GetAvailableModules,
		Search:     f.queries.SearchRecords,
		RecordByID: f.queries.GetRecordByID,
		Fields:     f.queries.GetModuleFields,
		Create:     f.commands.CreateRecord,
		Update:     f.commands.UpdateRecord,
		Delete:     f.commands.DeleteRecord,
		BulkCreate: f.commands.BulkCreateRecords,
		LeadForm:   f.commands.CreateLeadFromForm,
		Refresh:    f.commands.RefreshToken,
	}
}

// handlers lists every handler for registry and dispatcher wiring.
func (f *Facade) handlers() []any {
	if f == nil {
		return nil
	}
	return []any{
		f.commands.CreateRecord,
		f.commands.UpdateRecord,
		f.commands.DeleteRecord,
		f.commands.BulkCreateRecords,
		f.commands.CreateLeadFromForm,
		f.commands.RefreshToken,
		f.queries.GetModuleData,
		f.queries.GetAvailableModules,
		f.queries.SearchRecords,
		f.queries.GetRecordByID,
		f.queries.GetModuleFields,
		f.queries.ListActivity,
	}
}

func resolveActivityReader(catalog CatalogService) core.ActivityReader {
	if catalog == nil {
		return nil
	}
	if reader, ok := catalog.(core.ActivityReader); ok {
		return reader
	}
	provider, ok := catalog.(interface {
		ActivityReader() core.ActivityReader
	})
	if !ok {
		return nil
	}
	return provider.ActivityReader()
}
