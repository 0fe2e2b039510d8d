package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultCallTimeout = 30 * time.Second

// MCPClient adapts an MCP client session to the TargetClient interface.
type MCPClient struct {
	session     *mcp.ClientSession
	callTimeout time.Duration
}

// Dial connects to an MCP server over SSE and returns a ready client.
func Dial(ctx context.Context, endpoint string, callTimeout time.Duration) (*MCPClient, error) {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "mcpsentry", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.SSEClientTransport{Endpoint: endpoint}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to target %s: %w", endpoint, err)
	}

	return &MCPClient{session: session, callTimeout: callTimeout}, nil
}

func (c *MCPClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	res, err := c.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	tools := make([]ToolInfo, 0, len(res.Tools))
	for _, t := range res.Tools {
		info := ToolInfo{Name: t.Name, Description: t.Description}
		if t.InputSchema != nil {
			if raw, err := json.Marshal(t.InputSchema); err == nil {
				info.InputSchema = raw
			}
		}
		tools = append(tools, info)
	}
	return tools, nil
}

func (c *MCPClient) ListPrompts(ctx context.Context) ([]PromptInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	res, err := c.session.ListPrompts(ctx, &mcp.ListPromptsParams{})
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}

	prompts := make([]PromptInfo, 0, len(res.Prompts))
	for _, p := range res.Prompts {
		info := PromptInfo{Name: p.Name, Description: p.Description}
		for _, arg := range p.Arguments {
			info.Arguments = append(info.Arguments, arg.Name)
		}
		prompts = append(prompts, info)
	}
	return prompts, nil
}

func (c *MCPClient) ListResources(ctx context.Context) ([]ResourceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	res, err := c.session.ListResources(ctx, &mcp.ListResourcesParams{})
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}

	resources := make([]ResourceInfo, 0, len(res.Resources))
	for _, r := range res.Resources {
		resources = append(resources, ResourceInfo{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MimeType:    r.MIMEType,
		})
	}
	return resources, nil
}

func (c *MCPClient) CallTool(ctx context.Context, name string, args map[string]any) (*CallOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal %s args: %w", name, err)
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: json.RawMessage(payload)})
	if err != nil {
		return nil, err
	}

	outcome := &CallOutcome{IsError: result.IsError, Text: extractText(result)}
	if raw, err := json.Marshal(result); err == nil {
		outcome.Raw = raw
	}
	return outcome, nil
}

func (c *MCPClient) ReadResource(ctx context.Context, uri string) (*CallOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	res, err := c.session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, err
	}

	outcome := &CallOutcome{}
	if len(res.Contents) > 0 {
		outcome.Text = res.Contents[0].Text
	}
	if raw, err := json.Marshal(res); err == nil {
		outcome.Raw = raw
	}
	return outcome, nil
}

func (c *MCPClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*CallOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	res, err := c.session.GetPrompt(ctx, &mcp.GetPromptParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}

	outcome := &CallOutcome{}
	if raw, err := json.Marshal(res); err == nil {
		outcome.Raw = raw
		outcome.Text = string(raw)
	}
	return outcome, nil
}

func (c *MCPClient) Close() error {
	return c.session.Close()
}

func extractText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	if tc, ok := result.Content[0].(*mcp.TextContent); ok {
		return tc.Text
	}
	return fmt.Sprintf("%T", result.Content[0])
}
