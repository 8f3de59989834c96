package mcpadapter

import (
	"context"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const (
	serverName = "legal-lens"
	Version    = "0.1.0"
)

// Ports aggregates the inbound services the MCP server calls. Uploader and
// Query are required; tools for the other services are registered only when set.
type Ports struct {
	Uploader  ports.DocumentUploader
	Query     ports.DocumentQueryService
	Explainer ports.ClauseExplainer
	Summaries ports.SummaryReader
	Risk      ports.RiskAnalyzer
}

func (p *Ports) Validate() error {
	if p.Uploader == nil {
		return ErrMissingUploader
	}
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}

type Server struct {
	ports  *Ports
	server *server.MCPServer
}

func NewServer(p *Ports) (*Server, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	s := &Server{
		ports:  p,
		server: server.NewMCPServer(serverName, Version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s, nil
}

// Serve runs the server over the given stdio pair until ctx is cancelled or input ends.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.server).Listen(ctx, in, out)
}
