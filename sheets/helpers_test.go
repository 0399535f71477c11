package sheets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/easeware/snippetd/executor"
	"github.com/easeware/snippetd/logger"
	"github.com/easeware/snippetd/testing/mocks"
	"github.com/easeware/snippetd/tokenstore"
)

const account = "acct-1"

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// apiServer records the Authorization header of every request it serves.
type apiServer struct {
	*httptest.Server
	mu    sync.Mutex
	auths []string
	reqs  []*http.Request
}

func newAPIServer(t *testing.T, handler http.HandlerFunc) *apiServer {
	t.Helper()
	s := &apiServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.auths = append(s.auths, r.Header.Get("Authorization"))
		s.reqs = append(s.reqs, r.Clone(context.Background()))
		s.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *apiServer) authorizations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auths...)
}

func (s *apiServer) hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.auths)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newTestExecutor() *executor.Executor {
	return executor.NewBuilder(logger.Nop()).
		WithSleeper(func(context.Context, time.Duration) error { return nil }).
		Build()
}

func validRecord(access string) tokenstore.Record {
	return tokenstore.Record{AccessToken: access, RefreshToken: "R1", ExpireTime: testNow.Add(time.Hour)}
}

func newTestClient(t *testing.T, srv *apiServer, store tokenstore.Store, refresher TokenRefresher) *Client {
	t.Helper()
	if refresher == nil {
		refresher = &mocks.MockRefresher{}
	}
	c, err := NewClient(newTestExecutor(), store, refresher, Config{
		BaseURL:  srv.URL + "/v4",
		DriveURL: srv.URL + "/drive/v3",
		Skew:     time.Minute,
	}, logger.Nop())
	require.NoError(t, err)
	c.now = func() time.Time { return testNow }
	return c
}

func seededStore(t *testing.T, rec tokenstore.Record) *tokenstore.Memory {
	t.Helper()
	store := tokenstore.NewMemory()
	require.NoError(t, store.Write(context.Background(), account, rec))
	return store
}

func (s *apiServer) request(i int) *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqs[i]
}
