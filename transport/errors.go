package transport

import (
	"github.com/goliatone/go-crmbridge/core"
)

func transportError(message string, code int, metadata map[string]any) error {
	err := core.NewTransportError(nil, message, metadata)
	if code > 0 {
		err = err.WithCode(code)
	}
	return err
}

func transportWrapError(source error, message string, code int, metadata map[string]any) error {
	if source == nil {
		return transportError(message, code, metadata)
	}
	err := core.NewTransportError(source, message, metadata)
	if code > 0 {
		err = err.WithCode(code)
	}
	return err
}
