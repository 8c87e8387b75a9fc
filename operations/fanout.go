package operations

import (
	"context"
	"maps"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-crmbridge/core"
)

// GetModuleDataInput addresses a list page. Offset, when set, wins over Page.
type GetModuleDataInput struct {
	Module string
	Limit  int
	Offset *int
	Page   *int
}

// GetModuleData lists one module, or every configured module when Module is
// empty. In the fan-out case the page resolved from the input is applied
// to every module, and each module reports its own pagination.
func (c *Catalog) GetModuleData(ctx context.Context, in GetModuleDataInput) core.Envelope {
	module := strings.TrimSpace(in.Module)
	return c.observe(ctx, OpGetModuleData, func() core.Envelope {
		spec := operationSpecs[OpGetModuleData]
		page := core.NewPageRequest(in.Limit, in.Offset, in.Page, spec.DefaultLimit)
		if module != "" {
			return c.invoke(ctx, listCall(spec, module, page))
		}
		token, err := c.accessToken(ctx)
		if err != nil {
			return core.FailureFromError("", "", err)
		}
		return c.fanOut(ctx, spec, page, token)
	})
}

func listCall(spec OperationSpec, module string, page core.PageRequest) call {
	return call{
		spec:   spec,
		params: params{module: module},
		query:  maps.Clone(page.Query()),
		page:   &page,
	}
}

// fanOut lists every configured module with one token. Only CRM-side module
// failures become per-module errors.
func (c *Catalog) fanOut(ctx context.Context, spec OperationSpec, page core.PageRequest, token string) core.Envelope {
	modules := c.Modules()
	results := make(map[string]core.Envelope, len(modules))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(max(c.concurrency, 1))
	for _, module := range modules {
		group.Go(func() error {
			env := c.dispatch(groupCtx, listCall(spec, module, page), token)
			mu.Lock()
			results[module] = env
			mu.Unlock()
			// Module failures live in the envelope; the group never aborts.
			return nil
		})
	}
	_ = group.Wait()
	return core.AggregateModules(modules, results)
}
