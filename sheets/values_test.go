package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/easeware/snippetd/executor"
	"github.com/easeware/snippetd/oauth"
	"github.com/easeware/snippetd/testing/mocks"
)

func TestGetValues(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v4/spreadsheets/S1/values/Hits!A1:B2", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		writeJSON(w, http.StatusOK, `{"range":"Hits!A1:B2","majorDimension":"ROWS","values":[["page","count"],["/home","3"]]}`)
	})
	c := newTestClient(t, srv, seededStore(t, validRecord("A1")), nil)

	vr, err := c.GetValues(context.Background(), account, "S1", "Hits!A1:B2")
	require.NoError(t, err)
	assert.Equal(t, "Hits!A1:B2", vr.Range)
	assert.Equal(t, "ROWS", vr.MajorDimension)
	require.Len(t, vr.Values, 2)
	assert.Equal(t, []any{"/home", "3"}, vr.Values[1])
}

func TestGetValuesStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
		attempts int
	}{
		{name: "forbidden", status: http.StatusForbidden, sentinel: ErrForbidden, attempts: 1},
		{name: "not found", status: http.StatusNotFound, sentinel: ErrNotFound, attempts: 1},
		{name: "rate limited", status: http.StatusTooManyRequests, sentinel: ErrRateLimited, attempts: 6},
		{name: "bad request", status: http.StatusBadRequest, attempts: 1},
		{name: "server error", status: http.StatusInternalServerError, attempts: 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newAPIServer(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, `{"error":{"code":`+strconv.Itoa(tt.status)+`,"message":"nope"}}`)
			})
			c := newTestClient(t, srv, seededStore(t, validRecord("A1")), nil)

			_, err := c.GetValues(context.Background(), account, "S1", "A1:B2")

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, tt.attempts, se.Attempts)
			assert.Equal(t, tt.attempts, srv.hits())
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}

			var gerr *googleapi.Error
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, "nope", gerr.Message)
			assert.Contains(t, se.Error(), "nope")
		})
	}
}

func TestGetValuesDecodeError(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `not json`)
	})
	c := newTestClient(t, srv, seededStore(t, validRecord("A1")), nil)

	_, err := c.GetValues(context.Background(), account, "S1", "A1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode values")
}

func TestAppendValues(t *testing.T) {
	var payload sheetsapi.ValueRange
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v4/spreadsheets/S1/values/Hits!A:C:append", r.URL.Path)
		assert.Equal(t, "USER_ENTERED", r.URL.Query().Get("valueInputOption"))
		assert.Equal(t, "INSERT_ROWS", r.URL.Query().Get("insertDataOption"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &payload))

		writeJSON(w, http.StatusOK, `{"spreadsheetId":"S1","tableRange":"Hits!A1:C9","updates":{"updatedRows":1,"updatedRange":"Hits!A10:C10"}}`)
	})
	c := newTestClient(t, srv, seededStore(t, validRecord("A1")), nil)

	resp, err := c.AppendValues(context.Background(), account, "S1", "Hits!A:C", [][]any{{"/home", "Mozilla", 1}})
	require.NoError(t, err)
	assert.Equal(t, "S1", resp.SpreadsheetId)
	require.NotNil(t, resp.Updates)
	assert.EqualValues(t, 1, resp.Updates.UpdatedRows)
	assert.Equal(t, "Hits!A10:C10", resp.Updates.UpdatedRange)

	assert.Equal(t, "ROWS", payload.MajorDimension)
	assert.Equal(t, "Hits!A:C", payload.Range)
	assert.Equal(t, [][]any{{"/home", "Mozilla", float64(1)}}, payload.Values)
}

func TestAppendValuesResendsBodyAfterRefresh(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		if r.Header.Get("Authorization") == "OAuth A1" {
			writeJSON(w, http.StatusUnauthorized, `{}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"spreadsheetId":"S1"}`)
	})
	store := seededStore(t, validRecord("A1"))
	refresher := &mocks.MockRefresher{}
	refresher.ExpectRefresh("R1", oauth.Token{AccessToken: "A2", Expiry: testNow.Add(time.Hour)}).Once()
	c := newTestClient(t, srv, store, refresher)

	_, err := c.AppendValues(context.Background(), account, "S1", "A:A", [][]any{{"x"}})
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1])
	assert.NotEmpty(t, bodies[1])
}

func TestListSpreadsheetsFollowsPages(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/drive/v3/files", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "mimeType='application/vnd.google-apps.spreadsheet' and trashed=false", q.Get("q"))
		assert.Equal(t, "100", q.Get("pageSize"))

		if q.Get("pageToken") == "" {
			writeJSON(w, http.StatusOK, `{"nextPageToken":"p2","files":[{"id":"S1","name":"Hits"}]}`)
			return
		}
		assert.Equal(t, "p2", q.Get("pageToken"))
		writeJSON(w, http.StatusOK, `{"files":[{"id":"S2","name":"Snippets"}]}`)
	})
	c := newTestClient(t, srv, seededStore(t, validRecord("A1")), nil)

	list, err := c.ListSpreadsheets(context.Background(), account)
	require.NoError(t, err)
	require.Len(t, list.Files, 2)
	assert.Equal(t, "S1", list.Files[0].Id)
	assert.Equal(t, "Snippets", list.Files[1].Name)
	assert.Equal(t, 2, srv.hits())
	assert.Equal(t, http.MethodGet, srv.request(1).Method)
}

func TestListSpreadsheetsError(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"error":{"code":403,"message":"Drive API disabled"}}`)
	})
	c := newTestClient(t, srv, seededStore(t, validRecord("A1")), nil)

	_, err := c.ListSpreadsheets(context.Background(), account)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCheckResult(t *testing.T) {
	assert.NoError(t, CheckResult(&executor.Result{StatusCode: 204}))
	assert.Error(t, CheckResult(nil))

	err := CheckResult(&executor.Result{StatusCode: 418, Attempts: 6, Body: []byte("teapot")})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "sheets: status 418 after 6 attempt(s)", se.Error())
	assert.NotErrorIs(t, err, ErrNotFound)
}
