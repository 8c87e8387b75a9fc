package operations

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-crmbridge/core"
)

var errCatalogNotConfigured = goerrors.New("operations: catalog requires a token manager and a dispatcher", goerrors.CategoryInternal).
	WithCode(http.StatusInternalServerError).
	WithTextCode(core.ErrorInternal)

func requiredError(field string) error {
	return core.NewValidationError(field+" is required", http.StatusBadRequest)
}
