package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	tools        []ToolInfo
	prompts      []PromptInfo
	resources    []ResourceInfo
	toolsErr     error
	promptsErr   error
	resourcesErr error
}

func (s *stubClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	return s.tools, s.toolsErr
}
func (s *stubClient) ListPrompts(ctx context.Context) ([]PromptInfo, error) {
	return s.prompts, s.promptsErr
}
func (s *stubClient) ListResources(ctx context.Context) ([]ResourceInfo, error) {
	return s.resources, s.resourcesErr
}
func (s *stubClient) CallTool(ctx context.Context, name string, args map[string]any) (*CallOutcome, error) {
	return &CallOutcome{Text: "ok"}, nil
}
func (s *stubClient) ReadResource(ctx context.Context, uri string) (*CallOutcome, error) {
	return &CallOutcome{Text: "ok"}, nil
}
func (s *stubClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*CallOutcome, error) {
	return &CallOutcome{Text: "ok"}, nil
}
func (s *stubClient) Close() error { return nil }

func TestDiscoverFailsWhenToolsUnavailable(t *testing.T) {
	client := &stubClient{toolsErr: errors.New("connection refused")}

	_, err := Discover(context.Background(), client, "http://target:8080")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery failed")
}

func TestDiscoverToleratesMissingOptionalFeatures(t *testing.T) {
	client := &stubClient{
		tools:        []ToolInfo{{Name: "query_db"}},
		promptsErr:   errors.New("method not found"),
		resourcesErr: errors.New("method not found"),
	}

	snapshot, err := Discover(context.Background(), client, "http://target:8080")
	require.NoError(t, err)
	assert.Len(t, snapshot.Tools, 1)
	assert.Empty(t, snapshot.Prompts)
	assert.Empty(t, snapshot.Resources)
}

func TestFingerprintIsOrderInsensitive(t *testing.T) {
	a := &Snapshot{
		Tools: []ToolInfo{
			{Name: "alpha", InputSchema: []byte(`{"type":"object"}`)},
			{Name: "beta"},
		},
		Prompts:   []PromptInfo{{Name: "greet"}},
		Resources: []ResourceInfo{{URI: "file:///etc/config"}},
	}
	b := &Snapshot{
		Tools: []ToolInfo{
			{Name: "beta"},
			{Name: "alpha", InputSchema: []byte(`{"type":"object"}`)},
		},
		Prompts:   []PromptInfo{{Name: "greet"}},
		Resources: []ResourceInfo{{URI: "file:///etc/config"}},
	}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintChangesWithSurface(t *testing.T) {
	base := &Snapshot{Tools: []ToolInfo{{Name: "alpha"}}}
	extraTool := &Snapshot{Tools: []ToolInfo{{Name: "alpha"}, {Name: "beta"}}}
	changedSchema := &Snapshot{Tools: []ToolInfo{{Name: "alpha", InputSchema: []byte(`{}`)}}}

	assert.NotEqual(t, base.Fingerprint(), extraTool.Fingerprint())
	assert.NotEqual(t, base.Fingerprint(), changedSchema.Fingerprint())
}

func TestContains(t *testing.T) {
	snapshot := &Snapshot{
		Tools:     []ToolInfo{{Name: "alpha"}},
		Prompts:   []PromptInfo{{Name: "greet"}},
		Resources: []ResourceInfo{{URI: "file:///data"}},
	}

	assert.True(t, snapshot.Contains(TargetRef{Kind: KindTool, Name: "alpha"}))
	assert.True(t, snapshot.Contains(TargetRef{Kind: KindPrompt, Name: "greet"}))
	assert.True(t, snapshot.Contains(TargetRef{Kind: KindResource, Name: "file:///data"}))
	assert.False(t, snapshot.Contains(TargetRef{Kind: KindTool, Name: "greet"}))
	assert.False(t, snapshot.Contains(TargetRef{Kind: KindTool, Name: "missing"}))
}

func TestTargetsOfKindSorted(t *testing.T) {
	snapshot := &Snapshot{
		Tools: []ToolInfo{{Name: "zeta"}, {Name: "alpha"}, {Name: "mid"}},
	}

	refs := snapshot.TargetsOfKind(KindTool)
	require.Len(t, refs, 3)
	assert.Equal(t, "alpha", refs[0].Name)
	assert.Equal(t, "mid", refs[1].Name)
	assert.Equal(t, "zeta", refs[2].Name)
}
