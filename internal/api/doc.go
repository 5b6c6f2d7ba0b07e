// Package api serves the HTTP interface: uploads, analysis, review,
// approval, exports, and signed downloads.
package api
