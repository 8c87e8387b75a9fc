package operations

import (
	"context"
	"maps"
	"strings"

	"github.com/goliatone/go-crmbridge/core"
)

const defaultNoteTitle = "Form message"

// LeadForm is a web form submission turned into a Lead and an optional
// Note. Extra fields are copied onto the lead before the named fields.
type LeadForm struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Company    string
	Message    string
	LeadSource string
	NoteTitle  string
	Extra      map[string]any
}

func (f LeadForm) record() Record {
	record := Record{}
	maps.Copy(record, f.Extra)
	for field, value := range map[string]string{
		"First_Name":  f.FirstName,
		"Last_Name":   f.LastName,
		"Email":       f.Email,
		"Phone":       f.Phone,
		"Company":     f.Company,
		"Lead_Source": f.LeadSource,
	} {
		if value = strings.TrimSpace(value); value != "" {
			record[field] = value
		}
	}
	return record
}

// CreateLeadFromForm creates a Lead and then attaches the form message as a
// Note. The note outcome is reported under note and never turns a created
// lead into an error.
func (c *Catalog) CreateLeadFromForm(ctx context.Context, form LeadForm) core.Envelope {
	return c.observe(ctx, OpCreateLeadFromForm, func() core.Envelope {
		if strings.TrimSpace(form.LastName) == "" {
			return core.FailureFromError(LeadsModule, "", requiredError("last_name"))
		}
		lead := c.invoke(ctx, call{
			spec:    operationSpecs[OpCreateRecord],
			params:  params{module: LeadsModule, present: map[string]bool{"record": true}},
			body:    map[string]any{"data": []any{form.record()}},
			message: "Lead created successfully",
		})
		if !lead.IsSuccess() {
			return lead
		}

		leadID := createdID(lead.Data)
		lead = lead.WithRecordID(leadID)
		lead.Note = c.attachNote(ctx, leadID, form)
		return lead
	})
}

func (c *Catalog) attachNote(ctx context.Context, leadID string, form LeadForm) *core.NoteOutcome {
	message := strings.TrimSpace(form.Message)
	if message == "" {
		return &core.NoteOutcome{Status: core.NoteSkipped}
	}
	if leadID == "" {
		return &core.NoteOutcome{Status: core.NoteFailed, Message: "lead id missing from create response"}
	}
	title := strings.TrimSpace(form.NoteTitle)
	if title == "" {
		title = defaultNoteTitle
	}
	note := c.invoke(ctx, call{
		spec:   operationSpecs[OpCreateRecord],
		params: params{module: NotesModule, present: map[string]bool{"record": true}},
		body: map[string]any{"data": []any{Record{
			"Note_Title":   title,
			"Note_Content": message,
			"Parent_Id":    leadID,
			"se_module":    LeadsModule,
		}}},
	})
	if !note.IsSuccess() {
		return &core.NoteOutcome{Status: core.NoteFailed, Code: note.Code, Message: note.Message}
	}
	return &core.NoteOutcome{Status: core.NoteCreated, ID: createdID(note.Data)}
}

// createdID reads data[0].details.id from a create response.
func createdID(data any) string {
	items, ok := data.([]any)
	if !ok || len(items) == 0 {
		return ""
	}
	first, ok := items[0].(map[string]any)
	if !ok {
		return ""
	}
	details, ok := first["details"].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := details["id"].(string)
	return strings.TrimSpace(id)
}
