package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/marktree"
	"github.com/aretw0/marktree/pkg/adapters/memory"
	"github.com/aretw0/marktree/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := memory.NewFromNodes([]*domain.Node{
		{ID: "F", Title: "F", Children: []*domain.Node{
			{ID: "A", Title: "A", URL: "https://a"},
			{ID: "B", Title: "B", URL: "https://b"},
		}},
		{ID: "G", Title: "G"},
	})
	require.NoError(t, err)
	return NewServer(marktree.New(store, nil), WithVersion("test"))
}

func call(t *testing.T, s *Server, tool string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	st := s.MCPServer().GetTool(tool)
	require.NotNil(t, st, "tool %s registered", tool)
	var req mcp.CallToolRequest
	req.Params.Name = tool
	req.Params.Arguments = args
	res, err := st.Handler(context.Background(), req)
	require.NoError(t, err)
	return res
}

func TestTools_GetTree(t *testing.T) {
	s := newTestServer(t)

	res := call(t, s, "get_tree", nil)
	require.False(t, res.IsError)
	tree, ok := res.StructuredContent.(TreeResponse)
	require.True(t, ok)
	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, domain.RootID, tree.Nodes[0].ID)

	res = call(t, s, "get_tree", map[string]any{"folder_id": "F"})
	tree = res.StructuredContent.(TreeResponse)
	require.Len(t, tree.Nodes, 1)
	assert.Len(t, tree.Nodes[0].Children, 2)

	res = call(t, s, "get_tree", map[string]any{"folder_id": "nope"})
	assert.True(t, res.IsError)
}

func TestTools_MoveAndDrop(t *testing.T) {
	s := newTestServer(t)

	res := call(t, s, "move_bookmark", map[string]any{"id": "B", "parent_id": "F", "index": 0})
	require.False(t, res.IsError)
	moved := res.StructuredContent.(MoveResponse)
	assert.Equal(t, "moved", moved.Outcome)
	assert.Equal(t, 0, moved.Node.Index)

	// F is now [B, A]; dropping A on the gap before it is a no-op.
	res = call(t, s, "drop_bookmark", map[string]any{
		"item_id": "A", "source_parent_id": "F", "source_index": 1,
		"target_kind": "insertionPoint", "parent_id": "F", "insertion_index": 1,
	})
	require.False(t, res.IsError)
	assert.Equal(t, MoveResponse{Outcome: "no_op"}, res.StructuredContent)

	res = call(t, s, "drop_bookmark", map[string]any{
		"item_id": "A", "source_parent_id": "F", "source_index": 1,
		"target_kind": "folder", "folder_id": "G", "at_header": true,
	})
	require.False(t, res.IsError)
	moved = res.StructuredContent.(MoveResponse)
	assert.Equal(t, "G", moved.Node.ParentID)

	res = call(t, s, "drop_bookmark", map[string]any{"item_id": "A", "source_parent_id": "G", "target_kind": "sideways"})
	assert.True(t, res.IsError)

	res = call(t, s, "move_bookmark", map[string]any{"id": "nope", "parent_id": "F"})
	assert.True(t, res.IsError)
}

func TestResource_Tree(t *testing.T) {
	s := newTestServer(t)
	contents, err := s.readTree(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, TreeURI, text.URI)

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal([]byte(text.Text), &snap))
	require.Len(t, snap.Roots, 1)
	assert.Len(t, snap.Roots[0].Children, 2)
}
