package query

import (
	"context"

	"github.com/goliatone/go-crmbridge/core"
	"github.com/goliatone/go-crmbridge/operations"
)

// RecordReader is the read side of the operation catalog.
type RecordReader interface {
	GetModuleData(ctx context.Context, in operations.GetModuleDataInput) core.Envelope
	GetAvailableModules(ctx context.Context) core.Envelope
	SearchRecords(ctx context.Context, in operations.SearchInput) core.Envelope
	GetRecordByID(ctx context.Context, module, id string) core.Envelope
	GetModuleFields(ctx context.Context, module string) core.Envelope
}

type GetModuleDataQuery struct {
	reader RecordReader
}

func NewGetModuleDataQuery(reader RecordReader) *GetModuleDataQuery {
	return &GetModuleDataQuery{reader: reader}
}

func (q *GetModuleDataQuery) Query(ctx context.Context, msg GetModuleDataMessage) (core.Envelope, error) {
	if q == nil || q.reader == nil {
		return core.Envelope{}, queryDependencyError("query: record reader is required")
	}
	return q.reader.GetModuleData(ctx, operations.GetModuleDataInput{
		Module: msg.Module,
		Limit:  msg.Limit,
		Offset: msg.Offset,
		Page:   msg.Page,
	}), nil
}

type GetAvailableModulesQuery struct {
	reader RecordReader
}

func NewGetAvailableModulesQuery(reader RecordReader) *GetAvailableModulesQuery {
	return &GetAvailableModulesQuery{reader: reader}
}

func (q *GetAvailableModulesQuery) Query(ctx context.Context, _ GetAvailableModulesMessage) (core.Envelope, error) {
	if q == nil || q.reader == nil {
		return core.Envelope{}, queryDependencyError("query: record reader is required")
	}
	return q.reader.GetAvailableModules(ctx), nil
}

type SearchRecordsQuery struct {
	reader RecordReader
}

func NewSearchRecordsQuery(reader RecordReader) *SearchRecordsQuery {
	return &SearchRecordsQuery{reader: reader}
}

func (q *SearchRecordsQuery) Query(ctx context.Context, msg SearchRecordsMessage) (core.Envelope, error) {
	if q == nil || q.reader == nil {
		return core.Envelope{}, queryDependencyError("query: record reader is required")
	}
	return q.reader.SearchRecords(ctx, operations.SearchInput{
		Module:   msg.Module,
		Criteria: msg.Criteria,
		Word:     msg.Word,
		Email:    msg.Email,
		Phone:    msg.Phone,
		Limit:    msg.Limit,
		Page:     msg.Page,
	}), nil
}

type GetRecordByIDQuery struct {
	reader RecordReader
}

func NewGetRecordByIDQuery(reader RecordReader) *GetRecordByIDQuery {
	return &GetRecordByIDQuery{reader: reader}
}

func (q *GetRecordByIDQuery) Query(ctx context.Context, msg GetRecordByIDMessage) (core.Envelope, error) {
	if q == nil || q.reader == nil {
		return core.Envelope{}, queryDependencyError("query: record reader is required")
	}
	return q.reader.GetRecordByID(ctx, msg.Module, msg.ID), nil
}

type GetModuleFieldsQuery struct {
	reader RecordReader
}

func NewGetModuleFieldsQuery(reader RecordReader) *GetModuleFieldsQuery {
	return &GetModuleFieldsQuery{reader: reader}
}

func (q *GetModuleFieldsQuery) Query(ctx context.Context, msg GetModuleFieldsMessage) (core.Envelope, error) {
	if q == nil || q.reader == nil {
		return core.Envelope{}, queryDependencyError("query: record reader is required")
	}
	return q.reader.GetModuleFields(ctx, msg.Module), nil
}

type ListActivityQuery struct {
	reader core.ActivityReader
}

func NewListActivityQuery(reader core.ActivityReader) *ListActivityQuery {
	return &ListActivityQuery{reader: reader}
}

func (q *ListActivityQuery) Query(ctx context.Context, msg ListActivityMessage) (core.ActivityPage, error) {
	if q == nil || q.reader == nil {
		return core.ActivityPage{}, queryDependencyError("query: activity reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}
