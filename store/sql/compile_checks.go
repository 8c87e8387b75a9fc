package sqlstore

import (
	"github.com/goliatone/go-crmbridge/core"
	"github.com/goliatone/go-crmbridge/ratelimit"
)

var (
	_ core.ActivitySink            = (*ActivityStore)(nil)
	_ core.ActivityReader          = (*ActivityStore)(nil)
	_ core.ActivityStore           = (*ActivityStore)(nil)
	_ core.ActivityRetentionPruner = (*ActivityStore)(nil)
	_ ratelimit.StateStore         = (*RateLimitStateStore)(nil)
	_ ratelimit.StateStore         = (*CachedRateLimitStateStore)(nil)
)
