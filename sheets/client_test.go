package sheets

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/easeware/snippetd/config"
	"github.com/easeware/snippetd/executor"
	"github.com/easeware/snippetd/logger"
	"github.com/easeware/snippetd/oauth"
	obtest "github.com/easeware/snippetd/observability/testing"
	"github.com/easeware/snippetd/testing/mocks"
	"github.com/easeware/snippetd/tokenstore"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, `{}`)
}

func getBuilder(base string) BuildFunc {
	return func(token string) *executor.Descriptor {
		return executor.NewDescriptor(http.MethodGet, base+"/v4/ping", token)
	}
}

func TestNewClientRequiresCollaborators(t *testing.T) {
	_, err := NewClient(nil, tokenstore.NewMemory(), &mocks.MockRefresher{}, Config{}, nil)
	assert.Error(t, err)
	_, err = NewClient(newTestExecutor(), nil, &mocks.MockRefresher{}, Config{}, nil)
	assert.Error(t, err)
	_, err = NewClient(newTestExecutor(), tokenstore.NewMemory(), nil, Config{}, nil)
	assert.Error(t, err)
}

func TestConfigFrom(t *testing.T) {
	cfg := &config.Config{
		Sheets: config.SheetsConfig{BaseURL: "https://s", DriveURL: "https://d"},
		OAuth:  config.OAuthConfig{Token: config.OAuthTokenConfig{Skew: 90 * time.Second}},
	}
	assert.Equal(t, Config{BaseURL: "https://s", DriveURL: "https://d", Skew: 90 * time.Second}, ConfigFrom(cfg))
}

func TestDoUsesStoredToken(t *testing.T) {
	srv := newAPIServer(t, okHandler)
	refresher := &mocks.MockRefresher{}
	c := newTestClient(t, srv, seededStore(t, validRecord("A1")), refresher)

	res, err := c.Do(context.Background(), account, getBuilder(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []string{"OAuth A1"}, srv.authorizations())
	refresher.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
}

func TestDoRefreshesExpiredToken(t *testing.T) {
	srv := newAPIServer(t, okHandler)
	store := seededStore(t, tokenstore.Record{AccessToken: "A1", RefreshToken: "R1", ExpireTime: testNow.Add(30 * time.Second)})
	refresher := &mocks.MockRefresher{}
	refresher.ExpectRefresh("R1", oauth.Token{AccessToken: "A2", RefreshToken: "R1", Expiry: testNow.Add(time.Hour)}).Once()
	c := newTestClient(t, srv, store, refresher)

	_, err := c.Do(context.Background(), account, getBuilder(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, []string{"OAuth A2"}, srv.authorizations())

	rec, err := store.Read(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "A2", rec.AccessToken)
	assert.Equal(t, "R1", rec.RefreshToken)
	assert.Equal(t, testNow.Add(time.Hour), rec.ExpireTime)
	refresher.AssertExpectations(t)
}

func TestDoRefreshesUnknownExpiry(t *testing.T) {
	srv := newAPIServer(t, okHandler)
	store := seededStore(t, tokenstore.Record{AccessToken: "A1", RefreshToken: "R1"})
	refresher := &mocks.MockRefresher{}
	refresher.ExpectRefresh("R1", oauth.Token{AccessToken: "A2", Expiry: testNow.Add(time.Hour)}).Once()
	c := newTestClient(t, srv, store, refresher)

	_, err := c.Do(context.Background(), account, getBuilder(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, []string{"OAuth A2"}, srv.authorizations())

	rec, _ := store.Read(context.Background(), account)
	assert.Equal(t, "R1", rec.RefreshToken, "refresh token kept when the endpoint omits it")
}

func TestDoRetriesOnceAfterUnauthorized(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "OAuth A1" {
			writeJSON(w, http.StatusUnauthorized, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
			return
		}
		writeJSON(w, http.StatusOK, `{}`)
	})
	refresher := &mocks.MockRefresher{}
	refresher.ExpectRefresh("R1", oauth.Token{AccessToken: "A2", RefreshToken: "R1", Expiry: testNow.Add(time.Hour)}).Once()
	c := newTestClient(t, srv, seededStore(t, validRecord("A1")), refresher)

	var built []*executor.Descriptor
	res, err := c.Do(context.Background(), account, func(token string) *executor.Descriptor {
		d := executor.NewDescriptor(http.MethodGet, srv.URL+"/v4/ping", token)
		built = append(built, d)
		return d
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []string{"OAuth A1", "OAuth A2"}, srv.authorizations())

	require.Len(t, built, 2)
	assert.NotSame(t, built[0], built[1], "second execution uses a new descriptor")
	refresher.AssertExpectations(t)
}

func TestDoGivesUpAfterSecondUnauthorized(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
	})
	refresher := &mocks.MockRefresher{}
	refresher.ExpectRefresh("R1", oauth.Token{AccessToken: "A2", Expiry: testNow.Add(time.Hour)}).Once()
	c := newTestClient(t, srv, seededStore(t, validRecord("A1")), refresher)

	res, err := c.Do(context.Background(), account, getBuilder(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, 2, srv.hits())

	err = CheckResult(res)
	assert.ErrorIs(t, err, ErrUnauthorized)
	refresher.AssertExpectations(t)
}

func TestDoRevokedGrantDeletesToken(t *testing.T) {
	srv := newAPIServer(t, okHandler)
	store := seededStore(t, tokenstore.Record{AccessToken: "A1", RefreshToken: "R1", ExpireTime: testNow.Add(-time.Minute)})
	refresher := &mocks.MockRefresher{}
	refresher.ExpectRevoked("R1").Once()
	c := newTestClient(t, srv, store, refresher)

	_, err := c.Do(context.Background(), account, getBuilder(srv.URL))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, oauth.IsRevoked(err))
	assert.Zero(t, srv.hits())

	_, err = store.Read(context.Background(), account)
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)
}

func TestDoRefreshFailureKeepsToken(t *testing.T) {
	srv := newAPIServer(t, okHandler)
	store := seededStore(t, tokenstore.Record{AccessToken: "A1", RefreshToken: "R1", ExpireTime: testNow.Add(-time.Minute)})
	refresher := &mocks.MockRefresher{}
	refresher.On("Refresh", mock.Anything, "R1").Return(oauth.Token{}, &oauth.AuthError{StatusCode: 503})
	c := newTestClient(t, srv, store, refresher)

	_, err := c.Do(context.Background(), account, getBuilder(srv.URL))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
	var ae *oauth.AuthError
	assert.ErrorAs(t, err, &ae)

	rec, err := store.Read(context.Background(), account)
	require.NoError(t, err)
	assert.Equal(t, "A1", rec.AccessToken)
}

func TestDoWithoutToken(t *testing.T) {
	srv := newAPIServer(t, okHandler)
	c := newTestClient(t, srv, tokenstore.NewMemory(), nil)

	_, err := c.Do(context.Background(), account, getBuilder(srv.URL))
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Zero(t, srv.hits())
}

func TestDoStoreFailures(t *testing.T) {
	srv := newAPIServer(t, okHandler)

	t.Run("read", func(t *testing.T) {
		store := &mocks.MockTokenStore{}
		store.On("Read", mock.Anything, account).Return(tokenstore.Record{}, errors.New("db down"))
		c := newTestClient(t, srv, store, nil)

		_, err := c.Do(context.Background(), account, getBuilder(srv.URL))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db down")
	})

	t.Run("write after refresh", func(t *testing.T) {
		store := &mocks.MockTokenStore{}
		store.ExpectRecord(account, tokenstore.Record{AccessToken: "A1", RefreshToken: "R1"})
		store.On("Write", mock.Anything, account, mock.Anything).Return(errors.New("read-only"))
		refresher := &mocks.MockRefresher{}
		refresher.ExpectRefresh("R1", oauth.Token{AccessToken: "A2", Expiry: testNow.Add(time.Hour)})
		c := newTestClient(t, srv, store, refresher)

		_, err := c.Do(context.Background(), account, getBuilder(srv.URL))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store refreshed token")
		assert.Zero(t, srv.hits())
	})
}

func TestDoPropagatesExecutorErrors(t *testing.T) {
	exec := &mocks.MockExecutor{}
	exhausted := executor.NewExhaustedError(6, executor.NewNetworkError("refused", errors.New("dial")))
	exec.On("Execute", mock.Anything, mock.Anything).Return(&executor.Result{Attempts: 6}, exhausted)

	c, err := NewClient(exec, seededStore(t, validRecord("A1")), &mocks.MockRefresher{}, Config{BaseURL: "https://x"}, logger.Nop())
	require.NoError(t, err)
	c.now = func() time.Time { return testNow }

	res, err := c.Do(context.Background(), account, getBuilder("https://x"))
	assert.True(t, executor.IsErrorType(err, executor.ExhaustedError))
	require.NotNil(t, res)
	assert.Equal(t, 6, res.Attempts)
}

func TestConcurrentRefreshesCollapse(t *testing.T) {
	srv := newAPIServer(t, okHandler)
	store := seededStore(t, tokenstore.Record{AccessToken: "A1", RefreshToken: "R1", ExpireTime: testNow.Add(-time.Minute)})
	refresher := &mocks.MockRefresher{}
	refresher.ExpectRefresh("R1", oauth.Token{AccessToken: "A2", RefreshToken: "R1", Expiry: testNow.Add(time.Hour)}).
		Run(func(mock.Arguments) { time.Sleep(50 * time.Millisecond) })
	c := newTestClient(t, srv, store, refresher)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Do(context.Background(), account, getBuilder(srv.URL))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	refresher.AssertNumberOfCalls(t, "Refresh", 1)
	for _, auth := range srv.authorizations() {
		assert.Equal(t, "OAuth A2", auth)
	}
}

func TestRefreshCounter(t *testing.T) {
	mp := obtest.InstallMeterProvider(t, nil)
	srv := newAPIServer(t, okHandler)
	store := seededStore(t, tokenstore.Record{AccessToken: "A1", RefreshToken: "R1"})
	refresher := &mocks.MockRefresher{}
	refresher.ExpectRefresh("R1", oauth.Token{AccessToken: "A2", Expiry: testNow.Add(time.Hour)})
	c := newTestClient(t, srv, store, refresher)

	_, err := c.Do(context.Background(), account, getBuilder(srv.URL))
	require.NoError(t, err)

	rm := mp.Collect(t)
	assert.EqualValues(t, 1, obtest.CounterValue(t, rm, "snippetd.token.refreshes", attribute.String("outcome", "refreshed")))
}
