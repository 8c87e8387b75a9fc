package operations

import "github.com/goliatone/go-crmbridge/core"

var _ Tokens = (*core.TokenManager)(nil)
