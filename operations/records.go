package operations

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/goliatone/go-crmbridge/core"
)

// Record is one CRM record payload keyed by field API name.
type Record = map[string]any

func (c *Catalog) GetAvailableModules(ctx context.Context) core.Envelope {
	return c.observe(ctx, OpGetAvailableModules, func() core.Envelope {
		return c.invoke(ctx, call{spec: operationSpecs[OpGetAvailableModules]})
	})
}

// SearchInput selects records by criteria or by one of the word, email or
// phone shortcuts. At least one selector is required.
type SearchInput struct {
	Module   string
	Criteria string
	Word     string
	Email    string
	Phone    string
	Limit    int
	Page     *int
}

func (c *Catalog) SearchRecords(ctx context.Context, in SearchInput) core.Envelope {
	module := strings.TrimSpace(in.Module)
	return c.observe(ctx, OpSearchRecords, func() core.Envelope {
		spec := operationSpecs[OpSearchRecords]
		query := map[string]string{}
		for key, value := range map[string]string{
			"criteria": in.Criteria,
			"word":     in.Word,
			"email":    in.Email,
			"phone":    in.Phone,
		} {
			if value = strings.TrimSpace(value); value != "" {
				query[key] = value
			}
		}
		if module != "" && len(query) == 0 {
			return core.FailureFromError(module, "", requiredError("criteria"))
		}
		page := core.NewPageRequest(in.Limit, nil, in.Page, spec.DefaultLimit)
		maps.Copy(query, page.Query())
		return c.invoke(ctx, call{
			spec:   spec,
			params: params{module: module},
			query:  query,
			page:   &page,
		})
	})
}

func (c *Catalog) CreateRecord(ctx context.Context, module string, record Record) core.Envelope {
	module = strings.TrimSpace(module)
	return c.observe(ctx, OpCreateRecord, func() core.Envelope {
		return c.invoke(ctx, call{
			spec:    operationSpecs[OpCreateRecord],
			params:  params{module: module, present: map[string]bool{"record": record != nil}},
			body:    map[string]any{"data": []any{record}},
			message: "Record created successfully",
		})
	})
}

// UpdateRecord sends a copy of record with id injected; the caller's map is
// left untouched.
func (c *Catalog) UpdateRecord(ctx context.Context, module, id string, record Record) core.Envelope {
	module, id = strings.TrimSpace(module), strings.TrimSpace(id)
	return c.observe(ctx, OpUpdateRecord, func() core.Envelope {
		payload := Record{}
		maps.Copy(payload, record)
		payload["id"] = id
		return c.invoke(ctx, call{
			spec:    operationSpecs[OpUpdateRecord],
			params:  params{module: module, id: id, present: map[string]bool{"record": record != nil}},
			body:    map[string]any{"data": []any{payload}},
			message: "Record updated successfully",
		})
	})
}

func (c *Catalog) DeleteRecord(ctx context.Context, module, id string) core.Envelope {
	module, id = strings.TrimSpace(module), strings.TrimSpace(id)
	return c.observe(ctx, OpDeleteRecord, func() core.Envelope {
		return c.invoke(ctx, call{
			spec:    operationSpecs[OpDeleteRecord],
			params:  params{module: module, id: id},
			message: "Record deleted successfully",
		})
	})
}

// BulkCreateRecords creates up to MaxBulkRecords records in one call. Larger
// batches are rejected locally with no code and no network call.
func (c *Catalog) BulkCreateRecords(ctx context.Context, module string, records []Record) core.Envelope {
	module = strings.TrimSpace(module)
	return c.observe(ctx, OpBulkCreateRecords, func() core.Envelope {
		if len(records) > MaxBulkRecords {
			return core.FailureFromError(module, "", core.NewValidationError(
				fmt.Sprintf("Maximum %d records allowed per bulk operation", MaxBulkRecords), 0))
		}
		data := make([]any, 0, len(records))
		for _, record := range records {
			data = append(data, record)
		}
		return c.invoke(ctx, call{
			spec:    operationSpecs[OpBulkCreateRecords],
			params:  params{module: module, present: map[string]bool{"records": len(records) > 0}},
			body:    map[string]any{"data": data},
			message: fmt.Sprintf("%d records created successfully", len(records)),
		})
	})
}

func (c *Catalog) GetRecordByID(ctx context.Context, module, id string) core.Envelope {
	module, id = strings.TrimSpace(module), strings.TrimSpace(id)
	return c.observe(ctx, OpGetRecordByID, func() core.Envelope {
		return c.invoke(ctx, call{
			spec:   operationSpecs[OpGetRecordByID],
			params: params{module: module, id: id},
		})
	})
}

func (c *Catalog) GetModuleFields(ctx context.Context, module string) core.Envelope {
	module = strings.TrimSpace(module)
	return c.observe(ctx, OpGetModuleFields, func() core.Envelope {
		return c.invoke(ctx, call{
			spec:   operationSpecs[OpGetModuleFields],
			params: params{module: module},
			query:  map[string]string{"module": module},
		})
	})
}
