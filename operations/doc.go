// Package operations is the CRM operation catalog. Every operation is a row
// in a declarative table (method, path template, required parameters,
// normalizer kind) and is executed by composing the token manager, the
// dispatcher and the response normalizer from core. Operations never return
// Go errors: every path ends in a core.Envelope.
package operations
