// Package core contains the credential lifecycle, result envelope, and
// response normalization contracts shared by the dispatcher, the operation
// catalog, and the tool host. Core must not depend on transport or
// vendor-specific adapters.
package core
