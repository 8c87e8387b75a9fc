package crmbridge

import (
	"context"

	"github.com/goliatone/go-crmbridge/core"
	"github.com/goliatone/go-crmbridge/operations"
)

type Config = core.Config

type LogConfig = core.LogConfig

type Envelope = core.Envelope

type Pagination = core.Pagination

type ModuleError = core.ModuleError

type NoteOutcome = core.NoteOutcome

type ActivityEntry = core.ActivityEntry
type ActivityFilter = core.ActivityFilter
type ActivityPage = core.ActivityPage

type Record = operations.Record
type LeadForm = operations.LeadForm
type GetModuleDataInput = operations.GetModuleDataInput
type SearchInput = operations.SearchInput

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// LoadConfig layers the optional YAML file, dotenv and the process
// environment under runtime overrides.
func LoadConfig(ctx context.Context, file string, runtime Config) (Config, error) {
	return core.LoadConfig(ctx, file, runtime)
}
