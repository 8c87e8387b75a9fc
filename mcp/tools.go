package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	gocmd "github.com/goliatone/go-crmbridge/adapters/gocommand"
	"github.com/goliatone/go-crmbridge/command"
	"github.com/goliatone/go-crmbridge/core"
	"github.com/goliatone/go-crmbridge/operations"
	"github.com/goliatone/go-crmbridge/query"
)

// ToolHandler runs one tool invocation. A returned error is reported to the
// agent as an error envelope.
type ToolHandler func(ctx context.Context, args Arguments) (core.Envelope, error)

type toolEntry struct {
	tool    *sdk.Tool
	handler ToolHandler
}

// Toolset is the ordered set of CRM tools and their handlers.
type Toolset struct {
	entries []toolEntry
	byName  map[string]int
}

func NewToolset() *Toolset {
	return &Toolset{byName: map[string]int{}}
}

// Add registers a tool. A later tool with the same name replaces the
// earlier one in place.
func (t *Toolset) Add(tool *sdk.Tool, handler ToolHandler) error {
	if tool == nil {
		return fmt.Errorf("mcp: tool is required")
	}
	name := strings.TrimSpace(tool.Name)
	if name == "" {
		return fmt.Errorf("mcp: tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("mcp: tool %q handler is required", name)
	}
	copied := *tool
	copied.Name = name
	if copied.InputSchema == nil {
		copied.InputSchema = objectSchema(nil)
	}
	entry := toolEntry{tool: &copied, handler: handler}
	if idx, ok := t.byName[name]; ok {
		t.entries[idx] = entry
		return nil
	}
	t.byName[name] = len(t.entries)
	t.entries = append(t.entries, entry)
	return nil
}

// Tools returns the tools in registration order.
func (t *Toolset) Tools() []*sdk.Tool {
	out := make([]*sdk.Tool, 0, len(t.entries))
	for _, entry := range t.entries {
		out = append(out, entry.tool)
	}
	return out
}

func (t *Toolset) Names() []string {
	names := make([]string, 0, len(t.entries))
	for _, entry := range t.entries {
		names = append(names, entry.tool.Name)
	}
	sort.Strings(names)
	return names
}

func (t *Toolset) Has(name string) bool {
	_, ok := t.byName[strings.TrimSpace(name)]
	return ok
}

// Call runs the named tool. ok is false when no such tool exists.
func (t *Toolset) Call(ctx context.Context, name string, args Arguments) (core.Envelope, bool) {
	idx, found := t.byName[strings.TrimSpace(name)]
	if !found {
		return core.Envelope{}, false
	}
	if args == nil {
		args = Arguments{}
	}
	env, err := t.entries[idx].handler(ctx, args)
	if err != nil {
		module, _ := args.String("module", "module_name")
		return core.Failure(module, err), true
	}
	return env, true
}

// CatalogHandlers are the go-command handlers behind the CRM tools.
type CatalogHandlers struct {
	ModuleData *query.GetModuleDataQuery
	Modules    *query.GetAvailableModulesQuery
	Search     *query.SearchRecordsQuery
	RecordByID *query.GetRecordByIDQuery
	Fields     *query.GetModuleFieldsQuery
	Create     *command.CreateRecordCommand
	Update     *command.UpdateRecordCommand
	Delete     *command.DeleteRecordCommand
	BulkCreate *command.BulkCreateRecordsCommand
	LeadForm   *command.CreateLeadFromFormCommand
	Refresh    *command.RefreshTokenCommand
}

func NewCatalogHandlers(reader query.RecordReader, writer command.RecordWriter) CatalogHandlers {
	return CatalogHandlers{
		ModuleData: query.NewGetModuleDataQuery(reader),
		Modules:    query.NewGetAvailableModulesQuery(reader),
		Search:     query.NewSearchRecordsQuery(reader),
		RecordByID: query.NewGetRecordByIDQuery(reader),
		Fields:     query.NewGetModuleFieldsQuery(reader),
		Create:     command.NewCreateRecordCommand(writer),
		Update:     command.NewUpdateRecordCommand(writer),
		Delete:     command.NewDeleteRecordCommand(writer),
		BulkCreate: command.NewBulkCreateRecordsCommand(writer),
		LeadForm:   command.NewCreateLeadFromFormCommand(writer),
		Refresh:    command.NewRefreshTokenCommand(writer),
	}
}

// NewCatalogToolset exposes the CRM operation catalog as tools.
func NewCatalogToolset(h CatalogHandlers) (*Toolset, error) {
	set := NewToolset()
	for _, def := range catalogTools(h) {
		if err := set.Add(def.tool, def.handler); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func catalogTools(h CatalogHandlers) []toolEntry {
	return []toolEntry{
		{
			tool: &sdk.Tool{
				Name:        operations.OpGetModuleData,
				Description: "List records from one CRM module, or from every configured module when module is omitted.",
				InputSchema: objectSchema(map[string]any{
					"module": stringProp("Module API name, for example Leads. Omit to read all configured modules."),
					"limit":  intProp("Records per page (max 200)."),
					"offset": intProp("Zero-based record offset. Converted to a page of size limit."),
					"page":   intProp("One-based page number, used when offset is not given."),
				}),
			},
			handler: func(ctx context.Context, args Arguments) (core.Envelope, error) {
				module, err := args.String("module", "module_name")
				if err != nil {
					return core.Envelope{}, err
				}
				limit, err := args.Int("limit")
				if err != nil {
					return core.Envelope{}, err
				}
				offset, err := args.IntPtr("offset")
				if err != nil {
					return core.Envelope{}, err
				}
				page, err := args.IntPtr("page")
				if err != nil {
					return core.Envelope{}, err
				}
				return gocmd.QueryEnvelope(ctx, h.ModuleData, query.GetModuleDataMessage{
					Module: module, Limit: limit, Offset: offset, Page: page,
				})
			},
		},
		{
			tool: &sdk.Tool{
				Name:        operations.OpGetAvailableModules,
				Description: "List the API names of the modules available in the CRM.",
				InputSchema: objectSchema(nil),
			},
			handler: func(ctx context.Context, _ Arguments) (core.Envelope, error) {
				return gocmd.QueryEnvelope(ctx, h.Modules, query.GetAvailableModulesMessage{})
			},
		},
		{
			tool: &sdk.Tool{
				Name:        operations.OpSearchRecords,
				Description: "Search a module by criteria, for example (Email:equals:jane@example.com), or by word, email or phone.",
				InputSchema: objectSchema(map[string]any{
					"module":   stringProp("Module API name."),
					"criteria": stringProp("CRM search criteria expression."),
					"word":     stringProp("Free text search."),
					"email":    stringProp("Email search."),
					"phone":    stringProp("Phone search."),
					"limit":    intProp("Records per page (max 200)."),
					"page":     intProp("One-based page number."),
				}, "module"),
			},
			handler: func(ctx context.Context, args Arguments) (core.Envelope, error) {
				msg := query.SearchRecordsMessage{}
				var err error
				if msg.Module, err = args.String("module", "module_name"); err != nil {
					return core.Envelope{}, err
				}
				if msg.Criteria, err = args.String("criteria", "search_criteria"); err != nil {
					return core.Envelope{}, err
				}
				if msg.Word, err = args.String("word"); err != nil {
					return core.Envelope{}, err
				}
				if msg.Email, err = args.String("email"); err != nil {
					return core.Envelope{}, err
				}
				if msg.Phone, err = args.String("phone"); err != nil {
					return core.Envelope{}, err
				}
				if msg.Limit, err = args.Int("limit"); err != nil {
					return core.Envelope{}, err
				}
				if msg.Page, err = args.IntPtr("page"); err != nil {
					return core.Envelope{}, err
				}
				return gocmd.QueryEnvelope(ctx, h.Search, msg)
			},
		},
		{
			tool: &sdk.Tool{
				Name:        operations.OpCreateRecord,
				Description: "Create one record in a module.",
				InputSchema: objectSchema(map[string]any{
					"module": stringProp("Module API name."),
					"record": objectProp("Field values keyed by field API name."),
				}, "module", "record"),
			},
			handler: func(ctx context.Context, args Arguments) (core.Envelope, error) {
				module, err := args.String("module", "module_name")
				if err != nil {
					return core.Envelope{}, err
				}
				record, err := args.Object("record", "record_data")
				if err != nil {
					return core.Envelope{}, err
				}
				return gocmd.ExecuteEnvelope(ctx, h.Create, command.CreateRecordMessage{Module: module, Record: record})
			},
		},
		{
			tool: &sdk.Tool{
				Name:        operations.OpUpdateRecord,
				Description: "Update fields of an existing record.",
				InputSchema: objectSchema(map[string]any{
					"module": stringProp("Module API name."),
					"id":     stringProp("Record id."),
					"record": objectProp("Field values to change."),
				}, "module", "id", "record"),
			},
			handler: func(ctx context.Context, args Arguments) (core.Envelope, error) {
				module, err := args.String("module", "module_name")
				if err != nil {
					return core.Envelope{}, err
				}
				id, err := args.String("id", "record_id")
				if err != nil {
					return core.Envelope{}, err
				}
				record, err := args.Object("record", "record_data")
				if err != nil {
					return core.Envelope{}, err
				}
				return gocmd.ExecuteEnvelope(ctx, h.Update, command.UpdateRecordMessage{Module: module, ID: id, Record: record})
			},
		},
		{
			tool: &sdk.Tool{
				Name:        operations.OpDeleteRecord,
				Description: "Delete a record.",
				InputSchema: objectSchema(map[string]any{
					"module": stringProp("Module API name."),
					"id":     stringProp("Record id."),
				}, "module", "id"),
			},
			handler: func(ctx context.Context, args Arguments) (core.Envelope, error) {
				module, err := args.String("module", "module_name")
				if err != nil {
					return core.Envelope{}, err
				}
				id, err := args.String("id", "record_id")
				if err != nil {
					return core.Envelope{}, err
				}
				return gocmd.ExecuteEnvelope(ctx, h.Delete, command.DeleteRecordMessage{Module: module, ID: id})
			},
		},
		{
			tool: &sdk.Tool{
				Name:        operations.OpBulkCreateRecords,
				Description: "Create up to 100 records in one module with a single request.",
				InputSchema: objectSchema(map[string]any{
					"module": stringProp("Module API name."),
					"records": map[string]any{
						"type":        "array",
						"description": "Records to create (1 to 100).",
						"items":       map[string]any{"type": "object"},
					},
				}, "module", "records"),
			},
			handler: func(ctx context.Context, args Arguments) (core.Envelope, error) {
				module, err := args.String("module", "module_name")
				if err != nil {
					return core.Envelope{}, err
				}
				records, err := args.Objects("records", "records_data")
				if err != nil {
					return core.Envelope{}, err
				}
				return gocmd.ExecuteEnvelope(ctx, h.BulkCreate, command.BulkCreateRecordsMessage{Module: module, Records: records})
			},
		},
		{
			tool: &sdk.Tool{
				Name:        operations.OpGetRecordByID,
				Description: "Fetch one record by id.",
				InputSchema: objectSchema(map[string]any{
					"module": stringProp("Module API name."),
					"id":     stringProp("Record id."),
				}, "module", "id"),
			},
			handler: func(ctx context.Context, args Arguments) (core.Envelope, error) {
				module, err := args.String("module", "module_name")
				if err != nil {
					return core.Envelope{}, err
				}
				id, err := args.String("id", "record_id")
				if err != nil {
					return core.Envelope{}, err
				}
				return gocmd.QueryEnvelope(ctx, h.RecordByID, query.GetRecordByIDMessage{Module: module, ID: id})
			},
		},
		{
			tool: &sdk.Tool{
				Name:        operations.OpGetModuleFields,
				Description: "Describe the fields of a module.",
				InputSchema: objectSchema(map[string]any{
					"module": stringProp("Module API name."),
				}, "module"),
			},
			handler: func(ctx context.Context, args Arguments) (core.Envelope, error) {
				module, err := args.String("module", "module_name")
				if err != nil {
					return core.Envelope{}, err
				}
				return gocmd.QueryEnvelope(ctx, h.Fields, query.GetModuleFieldsMessage{Module: module})
			},
		},
		{
			tool: &sdk.Tool{
				Name:        operations.OpCreateLeadFromForm,
				Description: "Create a lead from contact form fields and attach the form message as a note.",
				InputSchema: objectSchema(map[string]any{
					"first_name":  stringProp("First name."),
					"last_name":   stringProp("Last name."),
					"email":       stringProp("Email address."),
					"phone":       stringProp("Phone number."),
					"company":     stringProp("Company name."),
					"message":     stringProp("Form message, stored as a note on the lead."),
					"lead_source": stringProp("Lead source."),
					"note_title":  stringProp("Note title. Defaults to Form message."),
					"extra":       objectProp("Additional lead fields keyed by field API name."),
				}, "last_name"),
			},
			handler: func(ctx context.Context, args Arguments) (core.Envelope, error) {
				form, err := leadFormFromArguments(args)
				if err != nil {
					return core.Envelope{}, err
				}
				return gocmd.ExecuteEnvelope(ctx, h.LeadForm, command.CreateLeadFromFormMessage{Form: form})
			},
		},
		{
			tool: &sdk.Tool{
				Name:        operations.OpRefreshToken,
				Description: "Force a refresh of the CRM access token.",
				InputSchema: objectSchema(nil),
			},
			handler: func(ctx context.Context, _ Arguments) (core.Envelope, error) {
				return gocmd.ExecuteEnvelope(ctx, h.Refresh, command.RefreshTokenMessage{})
			},
		},
	}
}

func leadFormFromArguments(args Arguments) (operations.LeadForm, error) {
	form := operations.LeadForm{}
	fields := []struct {
		target *string
		keys   []string
	}{
		{&form.FirstName, []string{"first_name"}},
		{&form.LastName, []string{"last_name"}},
		{&form.Email, []string{"email"}},
		{&form.Phone, []string{"phone"}},
		{&form.Company, []string{"company"}},
		{&form.Message, []string{"message"}},
		{&form.LeadSource, []string{"lead_source"}},
		{&form.NoteTitle, []string{"note_title"}},
	}
	for _, field := range fields {
		value, err := args.String(field.keys...)
		if err != nil {
			return operations.LeadForm{}, err
		}
		*field.target = value
	}
	extra, err := args.Object("extra", "extra_fields")
	if err != nil {
		return operations.LeadForm{}, err
	}
	form.Extra = extra
	return form, nil
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func objectProp(description string) map[string]any {
	return map[string]any{"type": "object", "description": description}
}
