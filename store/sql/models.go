package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type activityEntryRecord struct {
	bun.BaseModel `bun:"table:crm_activity_entries,alias:cae"`

	ID         string    `bun:"id,pk"`
	Operation  string    `bun:"operation,notnull"`
	Module     string    `bun:"module,notnull"`
	RecordID   string    `bun:"record_id,notnull"`
	Status     string    `bun:"status,notnull"`
	Code       int       `bun:"code,notnull"`
	ErrorType  string    `bun:"error_type,notnull"`
	Message    string    `bun:"message,notnull"`
	DurationMS int64     `bun:"duration_ms,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:crm_rate_limit_states,alias:crls"`

	ID                string     `bun:"id,pk"`
	Bucket            string     `bun:"bucket,notnull"`
	Limit             int        `bun:"limit,notnull"`
	Remaining         int        `bun:"remaining,notnull"`
	ResetAt           *time.Time `bun:"reset_at"`
	RetryAfterSeconds *int       `bun:"retry_after_seconds"`
	ThrottledUntil    *time.Time `bun:"throttled_until"`
	LastStatus        int        `bun:"last_status,notnull"`
	Attempts          int        `bun:"attempts,notnull"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
