// Package mcpadapter exposes document upload, retrieval and enrichment results
// as Model Context Protocol tools.
package mcpadapter

import "errors"

var (
	ErrMissingUploader     = errors.New("mcp: document uploader is required")
	ErrMissingQueryService = errors.New("mcp: query service is required")
)
