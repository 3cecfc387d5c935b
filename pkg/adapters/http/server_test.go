package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/marktree"
	httpadapter "github.com/aretw0/marktree/pkg/adapters/http"
	"github.com/aretw0/marktree/pkg/adapters/memory"
	"github.com/aretw0/marktree/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *marktree.Engine {
	t.Helper()
	store, err := memory.NewFromNodes([]*domain.Node{
		{ID: "F", Title: "F", Children: []*domain.Node{
			{ID: "A", Title: "A", URL: "https://a"},
			{ID: "B", Title: "B", URL: "https://b"},
			{ID: "C", Title: "C", URL: "https://c"},
		}},
		{ID: "G", Title: "G"},
	})
	require.NoError(t, err)
	return marktree.New(store, nil)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func childIDs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var nodes []*domain.Node
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&nodes))
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func TestServer_Reads(t *testing.T) {
	h := httpadapter.NewHandler(newEngine(t), httpadapter.WithVersion("1.2.3\n"))

	rec := do(t, h, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, "GET", "/info", nil)
	assert.JSONEq(t, `{"app":"marktree-http","version":"1.2.3"}`, rec.Body.String())

	rec = do(t, h, "GET", "/tree", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap domain.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	require.Len(t, snap.Roots, 1)
	assert.Len(t, snap.Roots[0].Children, 2)

	assert.Equal(t, []string{"A", "B", "C"}, childIDs(t, do(t, h, "GET", "/nodes/F/children", nil)))
	assert.Equal(t, []string{}, childIDs(t, do(t, h, "GET", "/nodes/G/children", nil)))
	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/nodes/nope/children", nil).Code)
}

func TestServer_Moves(t *testing.T) {
	h := httpadapter.NewHandler(newEngine(t))

	one := 1
	rec := do(t, h, "POST", "/moves", httpadapter.MoveRequest{ID: "C", ParentID: "F", Index: &one})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"A", "C", "B"}, childIDs(t, do(t, h, "GET", "/nodes/F/children", nil)))

	rec = do(t, h, "POST", "/moves", httpadapter.MoveRequest{ID: "A", ParentID: "G"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"A"}, childIDs(t, do(t, h, "GET", "/nodes/G/children", nil)))

	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "Missing Item", body: httpadapter.MoveRequest{ID: "nope", ParentID: "F"}, want: http.StatusNotFound},
		{name: "Index Past End", body: map[string]any{"id": "B", "parentId": "F", "index": 9}, want: http.StatusBadRequest},
		{name: "Empty Id", body: httpadapter.MoveRequest{ParentID: "F"}, want: http.StatusBadRequest},
		{name: "Garbage", body: "not an object", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(t, h, "POST", "/moves", tt.body).Code)
		})
	}
}

func TestServer_Drops(t *testing.T) {
	h := httpadapter.NewHandler(newEngine(t))
	cand := domain.DragCandidate{ItemID: "A", SourceParentID: "F", SourceIndex: 0}

	rec := do(t, h, "POST", "/drops", httpadapter.DropRequest{Candidate: cand, Target: domain.InsertionPoint("F", 1)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"outcome":"no_op"}`, rec.Body.String())

	rec = do(t, h, "POST", "/drops", httpadapter.DropRequest{Candidate: cand, Target: domain.InsertionPoint("F", 2)})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp httpadapter.DropResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "moved", resp.Outcome)
	require.NotNil(t, resp.Node)
	assert.Equal(t, 1, resp.Node.Index)

	rec = do(t, h, "POST", "/drops", httpadapter.DropRequest{Candidate: cand, Target: domain.InsertionPoint("F", -1)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "marktree_moves_total 0\n")
	})
	rec := do(t, httpadapter.NewHandler(newEngine(t), httpadapter.WithMetrics(metrics)), "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marktree_moves_total")

	rec = do(t, httpadapter.NewHandler(newEngine(t)), "GET", "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_SubscribeEvents(t *testing.T) {
	eng := newEngine(t)
	srv, detach := httpadapter.NewServer(eng)
	defer detach()
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/events?watch=moved", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())
	require.Eventually(t, func() bool { return srv.Streams.Len(httpadapter.EventMoved) == 1 }, time.Second, 5*time.Millisecond)

	_, err = eng.Tree(ctx)
	require.NoError(t, err)
	_, err = eng.Move(ctx, "A", domain.Append("G"))
	require.NoError(t, err)

	var got []string
	for lines.Scan() {
		got = append(got, lines.Text())
		if strings.HasPrefix(lines.Text(), "data: {") {
			break
		}
	}
	require.Contains(t, got, "event: moved")
	var n domain.MovedNotification
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(got[len(got)-1], "data: ")), &n))
	assert.Equal(t, domain.MovedNotification{FromID: "A", FromParentID: "F", ToParentID: "G", ToIndex: 0}, n)

	rec := do(t, srv.Routes(), "GET", "/events?watch=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// refreshEngine captures the refresh hook and can fail tree reads.
type refreshEngine struct {
	*marktree.Engine
	treeErr error
	refresh func()
}

func (e *refreshEngine) Tree(ctx context.Context) (*domain.Snapshot, error) {
	if e.treeErr != nil {
		return nil, e.treeErr
	}
	return e.Engine.Tree(ctx)
}

func (e *refreshEngine) OnRefresh(fn func()) func() {
	e.refresh = fn
	return func() {}
}

func TestServer_RefreshPayload(t *testing.T) {
	tests := []struct {
		name    string
		treeErr error
		want    string
	}{
		{name: "With Version", want: `{"version":1}`},
		{name: "Tree Unavailable", treeErr: domain.ErrFetchFailed, want: `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &refreshEngine{Engine: newEngine(t), treeErr: tt.treeErr}
			srv, detach := httpadapter.NewServer(eng)
			defer detach()
			require.NotNil(t, eng.refresh)

			ch, unsubscribe := srv.Streams.Subscribe(httpadapter.EventRefresh)
			defer unsubscribe()

			eng.refresh()
			select {
			case msg := <-ch:
				assert.Equal(t, httpadapter.EventRefresh, msg.Event)
				assert.JSONEq(t, tt.want, msg.Data)
			case <-time.After(time.Second):
				t.Fatal("no refresh broadcast")
			}
		})
	}
}

func TestStreamManager(t *testing.T) {
	sm := httpadapter.NewStreamManager(slogDiscard())
	ch, unsubscribe := sm.Subscribe(httpadapter.EventMoved, httpadapter.EventRefresh)
	assert.Equal(t, 1, sm.Len(httpadapter.EventMoved))

	for i := 0; i < 15; i++ {
		sm.Broadcast(httpadapter.Message{Event: httpadapter.EventRefresh, Data: "{}"})
	}
	assert.Len(t, ch, 10, "slow client drops instead of blocking")

	unsubscribe()
	assert.Zero(t, sm.Len(httpadapter.EventMoved))
	assert.Zero(t, sm.Len(httpadapter.EventRefresh))
	sm.Broadcast(httpadapter.Message{Event: httpadapter.EventMoved})
}
