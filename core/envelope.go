package core

import (
	"encoding/json"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

type EnvelopeStatus string

const (
	StatusSuccess EnvelopeStatus = "success"
	StatusError   EnvelopeStatus = "error"
)

// Pagination describes the page an envelope carries. NextOffset is set only
// when more records exist and the caller addressed the list by offset.
type Pagination struct {
	Page          int  `json:"page"`
	PerPage       int  `json:"per_page"`
	MoreRecords   bool `json:"more_records"`
	ReturnedCount int  `json:"returned_count"`
	NextOffset    *int `json:"next_offset,omitempty"`
}

// ModuleData is one module's slice of a fan-out result.
type ModuleData struct {
	Count      int         `json:"count"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// ModuleError is one module's failure inside a fan-out result.
type ModuleError struct {
	Module    string `json:"module"`
	Code      int    `json:"code,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	Message   string `json:"message"`
}

type NoteStatus string

const (
	NoteCreated NoteStatus = "created"
	NoteFailed  NoteStatus = "failed"
	NoteSkipped NoteStatus = "skipped"
)

// NoteOutcome reports the best-effort note attached after a lead is created.
type NoteOutcome struct {
	Status  NoteStatus `json:"status"`
	ID      string     `json:"id,omitempty"`
	Code    int        `json:"code,omitempty"`
	Message string     `json:"message,omitempty"`
}

// Envelope is the uniform result of every catalog operation. It is either a
// success (data, optional count and pagination) or an error (message, code),
// never both; MarshalJSON only emits the fields of the active variant.
type Envelope struct {
	Status         EnvelopeStatus `json:"status"`
	Module         string         `json:"module,omitempty"`
	RecordID       string         `json:"record_id,omitempty"`
	Message        string         `json:"message,omitempty"`
	Count          *int           `json:"count,omitempty"`
	ModulesFetched *int           `json:"modules_fetched,omitempty"`
	TotalRecords   *int           `json:"total_records,omitempty"`
	Data           any            `json:"data,omitempty"`
	Pagination     *Pagination    `json:"pagination,omitempty"`
	Errors         []ModuleError  `json:"errors,omitempty"`
	Note           *NoteOutcome   `json:"note,omitempty"`
	Code           int            `json:"code,omitempty"`
	ErrorType      string         `json:"error_type,omitempty"`
}

// Success builds a success envelope around data.
func Success(data any) Envelope {
	return Envelope{Status: StatusSuccess, Data: data}
}

// Failure builds an error envelope from err. Rich errors keep their code and
// text code; upstream errors keep the raw response text as the message.
func Failure(module string, err error) Envelope {
	env := Envelope{
		Status: StatusError,
		Module: strings.TrimSpace(module),
	}
	rich := MapError(err)
	if rich == nil {
		env.Message = "unknown error"
		env.ErrorType = ErrorInternal
		return env
	}
	env.Message = rich.Message
	env.Code = rich.Code
	env.ErrorType = rich.TextCode
	if rich.TextCode == ErrorConfig && len(rich.ValidationErrors) > 0 {
		env.Message = rich.Message + ": " + rich.ValidationErrors.Error()
	}
	if rich.Source != nil && rich.TextCode != ErrorUpstream {
		if source := rich.Source.Error(); !strings.Contains(env.Message, source) {
			env.Message = env.Message + ": " + source
		}
	}
	return env
}

func (e Envelope) WithModule(module string) Envelope {
	e.Module = strings.TrimSpace(module)
	return e
}

func (e Envelope) WithRecordID(id string) Envelope {
	e.RecordID = strings.TrimSpace(id)
	return e
}

func (e Envelope) WithMessage(message string) Envelope {
	e.Message = message
	return e
}

func (e Envelope) WithCount(count int) Envelope {
	if e.Status != StatusSuccess {
		return e
	}
	e.Count = &count
	return e
}

func (e Envelope) WithPagination(p *Pagination) Envelope {
	if e.Status != StatusSuccess {
		return e
	}
	e.Pagination = p
	return e
}

func (e Envelope) IsSuccess() bool {
	return e.Status == StatusSuccess
}

// Err returns the envelope as an error, nil for success envelopes.
func (e Envelope) Err() error {
	if e.IsSuccess() {
		return nil
	}
	category := goerrors.CategoryInternal
	switch e.ErrorType {
	case ErrorValidation, ErrorConfig:
		category = goerrors.CategoryBadInput
	case ErrorAuth:
		category = goerrors.CategoryAuth
	case ErrorUpstream, ErrorTransport:
		category = goerrors.CategoryExternal
	}
	err := goerrors.New(e.Message, category).WithTextCode(e.ErrorType)
	if e.Code > 0 {
		err = err.WithCode(e.Code)
	}
	return err
}

// Validate checks the tagged union invariant.
func (e Envelope) Validate() error {
	switch e.Status {
	case StatusSuccess:
		if e.Code != 0 || e.ErrorType != "" {
			return NewValidationError(fmt.Sprintf("core: success envelope carries error code %d %q", e.Code, e.ErrorType), 0)
		}
	case StatusError:
		if e.Data != nil || e.Count != nil || e.Pagination != nil {
			return NewValidationError("core: error envelope carries data", 0)
		}
		if strings.TrimSpace(e.Message) == "" {
			return NewValidationError("core: error envelope message is required", 0)
		}
	default:
		return NewValidationError(fmt.Sprintf("core: invalid envelope status %q", e.Status), 0)
	}
	return nil
}

type successWire struct {
	Status         EnvelopeStatus `json:"status"`
	Module         string         `json:"module,omitempty"`
	RecordID       string         `json:"record_id,omitempty"`
	Message        string         `json:"message,omitempty"`
	Count          *int           `json:"count,omitempty"`
	ModulesFetched *int           `json:"modules_fetched,omitempty"`
	TotalRecords   *int           `json:"total_records,omitempty"`
	Data           any            `json:"data"`
	Pagination     *Pagination    `json:"pagination,omitempty"`
	Errors         []ModuleError  `json:"errors,omitempty"`
	Note           *NoteOutcome   `json:"note,omitempty"`
}

type errorWire struct {
	Status    EnvelopeStatus `json:"status"`
	Module    string         `json:"module,omitempty"`
	RecordID  string         `json:"record_id,omitempty"`
	Message   string         `json:"message"`
	Code      int            `json:"code,omitempty"`
	ErrorType string         `json:"error_type,omitempty"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Status == StatusError {
		return json.Marshal(errorWire{
			Status:    e.Status,
			Module:    e.Module,
			RecordID:  e.RecordID,
			Message:   e.Message,
			Code:      e.Code,
			ErrorType: e.ErrorType,
		})
	}
	status := e.Status
	if status == "" {
		status = StatusSuccess
	}
	var errs []ModuleError
	if len(e.Errors) > 0 {
		errs = e.Errors
	}
	return json.Marshal(successWire{
		Status:         status,
		Module:         e.Module,
		RecordID:       e.RecordID,
		Message:        e.Message,
		Count:          e.Count,
		ModulesFetched: e.ModulesFetched,
		TotalRecords:   e.TotalRecords,
		Data:           e.Data,
		Pagination:     e.Pagination,
		Errors:         errs,
		Note:           e.Note,
	})
}

// ToMap renders the envelope as a generic JSON object.
func (e Envelope) ToMap() (map[string]any, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func intPtr(v int) *int {
	return &v
}
