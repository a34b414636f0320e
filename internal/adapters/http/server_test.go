package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cybersentinel/internal/adapters/memory"
	"cybersentinel/internal/domain"
	"cybersentinel/internal/logging"
	"cybersentinel/internal/progress"
	"cybersentinel/internal/seed"
	"cybersentinel/internal/services/discovery"
	"cybersentinel/internal/services/summary"
	"cybersentinel/internal/workers/scanrunner"
)

type testEnv struct {
	srv   *httptest.Server
	store *memory.Store
	hub   *progress.Hub
	run   scanrunner.Runner
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	store := memory.New()
	disc, err := discovery.New(store, store, nil, 16, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, disc.Import(context.Background(), seed.Default()))

	hub := progress.NewHub()
	run := scanrunner.Runner{
		Repo:      store,
		Processor: scanrunner.SimulatedProcessor{Jobs: store, Scans: store, Subdomains: store, Hub: hub, Step: time.Millisecond, Steps: 2},
		Hub:       hub,
		Log:       logging.Discard(),
	}
	srv := httptest.NewServer(New(disc, summary.New(store, store), run, hub, logging.Discard()).Routes())
	t.Cleanup(srv.Close)
	return testEnv{srv: srv, store: store, hub: hub, run: run}
}

func (e testEnv) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func names(rows []treeRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Name)
	}
	return out
}

func TestGetTreeDefaultRender(t *testing.T) {
	env := newTestEnv(t)

	var tree treeResponse
	code := env.do(t, http.MethodGet, "/api/v1/asm/domains/company.com/tree", "", &tree)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "company.com", tree.Root)
	assert.NotEmpty(t, tree.ViewID)
	require.Len(t, tree.Rows, 9)

	root := tree.Rows[0]
	assert.Equal(t, "company.com", root.Name)
	assert.Equal(t, 0, root.Indent)
	assert.True(t, root.HasChildren)
	assert.True(t, root.Expanded)

	v1 := tree.Rows[2]
	assert.Equal(t, "v1.api.company.com", v1.Name)
	assert.Equal(t, 2, v1.Depth)
	assert.Equal(t, 56, v1.Indent)
	assert.False(t, v1.HasChildren)
	assert.True(t, v1.Expanded)
}

func TestGetTreeQueryParameters(t *testing.T) {
	env := newTestEnv(t)

	var tree treeResponse
	code := env.do(t, http.MethodGet, "/api/v1/asm/domains/company.com/tree?q=staging&indent=10", "", &tree)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"company.com", "app.company.com", "staging.app.company.com"}, names(tree.Rows))
	assert.Equal(t, 20, tree.Rows[2].Indent)

	var errResp errorResponse
	code = env.do(t, http.MethodGet, "/api/v1/asm/domains/company.com/tree?expand_all=maybe", "", &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, errResp.Error, "expand_all")

	code = env.do(t, http.MethodGet, "/api/v1/asm/domains/nowhere.org/tree", "", &errResp)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestToggleCollapsesForView(t *testing.T) {
	env := newTestEnv(t)

	var toggled toggleResponse
	code := env.do(t, http.MethodPost, "/api/v1/asm/domains/company.com/tree/toggle", `{"view":"tab-1","node_id":"2"}`, &toggled)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, toggled.Expanded)

	var tree treeResponse
	env.do(t, http.MethodGet, "/api/v1/asm/domains/company.com/tree?view=tab-1", "", &tree)
	assert.NotContains(t, names(tree.Rows), "v1.api.company.com")
	assert.Equal(t, "tab-1", tree.ViewID)

	env.do(t, http.MethodGet, "/api/v1/asm/domains/company.com/tree?view=tab-2", "", &tree)
	assert.Contains(t, names(tree.Rows), "v1.api.company.com")

	var errResp errorResponse
	code = env.do(t, http.MethodPost, "/api/v1/asm/domains/company.com/tree/toggle", `{"view":"tab-1","node":"2"}`, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAddSubdomain(t *testing.T) {
	env := newTestEnv(t)

	var created subdomainResponse
	code := env.do(t, http.MethodPost, "/api/v1/asm/subdomains", `{"name":"beta.app.company.com","risk":"high","dns":"A"}`, &created)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "beta.app.company.com", created.Name)
	assert.Equal(t, "5", created.ParentID)
	assert.Equal(t, "high", created.Risk)
	assert.Equal(t, "active", created.Status)

	var errResp errorResponse
	code = env.do(t, http.MethodPost, "/api/v1/asm/subdomains", `{"name":"beta.app.company.com"}`, &errResp)
	assert.Equal(t, http.StatusConflict, code)
	code = env.do(t, http.MethodPost, "/api/v1/asm/subdomains", `{"name":"x.company.com","risk":"severe"}`, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	code = env.do(t, http.MethodPost, "/api/v1/asm/subdomains", `{"name":"-bad-.company.com"}`, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestDeleteFlow(t *testing.T) {
	env := newTestEnv(t)

	var intent deleteIntentResponse
	code := env.do(t, http.MethodPost, "/api/v1/asm/subdomains/5/delete-intent", "", &intent)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "app.company.com", intent.Name)
	assert.Equal(t, []string{"6"}, intent.Descendants)
	assert.Equal(t, 1, intent.DescendantCount)

	var leaf deleteIntentResponse
	env.do(t, http.MethodPost, "/api/v1/asm/subdomains/9/delete-intent", "", &leaf)
	assert.NotNil(t, leaf.Descendants)
	assert.Empty(t, leaf.Descendants)

	var errResp errorResponse
	code = env.do(t, http.MethodDelete, "/api/v1/asm/subdomains/5", "", &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	code = env.do(t, http.MethodDelete, "/api/v1/asm/subdomains/5?confirm=api.company.com", "", &errResp)
	assert.Equal(t, http.StatusConflict, code)

	var removed deleteResponse
	code = env.do(t, http.MethodDelete, "/api/v1/asm/subdomains/5?confirm=app.company.com", "", &removed)
	require.Equal(t, http.StatusOK, code)
	assert.ElementsMatch(t, []string{"5", "6"}, removed.Removed)

	var tree treeResponse
	env.do(t, http.MethodGet, "/api/v1/asm/domains/company.com/tree", "", &tree)
	assert.Len(t, tree.Rows, 7)

	code = env.do(t, http.MethodDelete, "/api/v1/asm/subdomains/5?confirm=app.company.com", "", &errResp)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRescanAcceptedAndWait(t *testing.T) {
	env := newTestEnv(t)

	var accepted scanAcceptedResponse
	code := env.do(t, http.MethodPost, "/api/v1/asm/subdomains/7/rescan", "", &accepted)
	require.Equal(t, http.StatusAccepted, code)
	require.NotEmpty(t, accepted.ScanID)

	var scan scanResponse
	code = env.do(t, http.MethodGet, "/api/v1/asm/scans/"+accepted.ScanID, "", &scan)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "queued", scan.Status)
	assert.Equal(t, "mail.company.com", scan.Target)

	code = env.do(t, http.MethodPost, "/api/v1/asm/subdomains/3/rescan?wait=true", "", &scan)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", scan.Status)
	assert.Equal(t, 1.0, scan.Progress)

	var tree treeResponse
	env.do(t, http.MethodGet, "/api/v1/asm/domains/company.com/tree", "", &tree)
	for _, r := range tree.Rows {
		if r.ID == "3" {
			assert.NotNil(t, r.LastScannedAt)
		}
	}

	var errResp errorResponse
	code = env.do(t, http.MethodPost, "/api/v1/asm/subdomains/missing/rescan", "", &errResp)
	assert.Equal(t, http.StatusNotFound, code)
	code = env.do(t, http.MethodGet, "/api/v1/asm/scans/missing", "", &errResp)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDiscoverAndSummary(t *testing.T) {
	env := newTestEnv(t)

	var scan scanResponse
	code := env.do(t, http.MethodPost, "/api/v1/asm/domains/company.com/discover?wait=true", "", &scan)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "discover", scan.Kind)
	assert.Equal(t, "completed", scan.Status)

	var sum summaryResponse
	code = env.do(t, http.MethodGet, "/api/v1/asm/domains/company.com/summary", "", &sum)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 9, sum.Total)
	assert.Equal(t, map[string]int{"critical": 2, "high": 2, "medium": 3, "low": 2}, sum.ByRisk)
	assert.NotNil(t, sum.LastScannedAt)
	require.NotNil(t, sum.LatestScan)
	assert.Equal(t, scan.ID, sum.LatestScan.ID)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	var body map[string]string
	code := env.do(t, http.MethodGet, "/healthz", "", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func wsURL(env testEnv, scanID string) string {
	return "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/v1/asm/scans/" + scanID + "/ws"
}

func TestWatchScanStreamsUntilTerminal(t *testing.T) {
	env := newTestEnv(t)

	var accepted scanAcceptedResponse
	env.do(t, http.MethodPost, "/api/v1/asm/subdomains/2/rescan", "", &accepted)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env, accepted.ScanID), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Subscribers(accepted.ScanID) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, env.run.ProcessInline(context.Background(), accepted.ScanID))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var last progress.Event
	for {
		var ev progress.Event
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
		last = ev
	}
	assert.Equal(t, domain.ScanCompleted, last.Status)
	assert.Equal(t, accepted.ScanID, last.ScanID)
}

func TestWatchFinishedScanSendsFinalState(t *testing.T) {
	env := newTestEnv(t)

	var scan scanResponse
	env.do(t, http.MethodPost, "/api/v1/asm/subdomains/4/rescan?wait=true", "", &scan)
	require.Equal(t, "completed", scan.Status)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env, scan.ID), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev progress.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, domain.ScanCompleted, ev.Status)
	assert.Equal(t, 1.0, ev.Progress)
}

func TestWatchUnknownScan(t *testing.T) {
	env := newTestEnv(t)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(env, "missing"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
