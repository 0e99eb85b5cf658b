package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/testutil"
	"github.com/sheetflow/backend/internal/upload"
)

// testEnv wires a full server against in-memory storage so handler tests
// exercise the real routes, including the wildcard object endpoint.
type testEnv struct {
	srv   *httptest.Server
	store *testutil.MockStore
	hub   *ProjectHub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := testutil.NewMockStore()

	e := echo.New()
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	hub := NewProjectHub(store, t.TempDir(), logger)
	deps := &Dependencies{
		Store:     store,
		UploadMgr: upload.NewManager(store, srv.URL, logger),
		Projects:  hub,
		Logger:    logger,
		Version:   "test",
	}
	SetupMiddleware(e, nil, nil)
	RegisterRoutes(e, NewHandlers(deps), nil)

	return &testEnv{srv: srv, store: store, hub: hub}
}

// do issues a JSON request against the test server and decodes the body.
func (env *testEnv) do(t *testing.T, method, path string, body, out interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, env.srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, out), "body: %s", data)
	}
	return resp
}

// apiErrorBody decodes a structured error response.
func (env *testEnv) doExpectError(t *testing.T, method, path string, body interface{}, wantStatus int) *APIError {
	t.Helper()

	var apiErr APIError
	resp := env.do(t, method, path, body, &apiErr)
	require.Equal(t, wantStatus, resp.StatusCode, "error code: %s message: %s", apiErr.Code, apiErr.Message)
	return &apiErr
}

// uploadWorkbook drives the full three-step upload over HTTP and waits for
// ingestion to finish, returning the completed file record.
func (env *testEnv) uploadWorkbook(t *testing.T, projectID, fileName string, headers []string, rows [][]interface{}) *models.UploadedFile {
	t.Helper()

	content := testutil.WorkbookBytes(t, headers, rows)

	var slot struct {
		WriteURL  string `json:"writeUrl"`
		UploadID  string `json:"uploadId"`
		ObjectKey string `json:"objectKey"`
		SessionID string `json:"sessionId"`
	}
	resp := env.do(t, http.MethodPost, "/api/projects/"+projectID+"/upload/presigned-url",
		map[string]interface{}{"fileName": fileName, "fileSize": len(content)}, &slot)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, slot.WriteURL)

	req, err := http.NewRequest(http.MethodPut, slot.WriteURL, bytes.NewReader(content))
	require.NoError(t, err)
	putResp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	putResp.Body.Close()
	require.Equal(t, http.StatusOK, putResp.StatusCode)

	var file models.UploadedFile
	resp = env.do(t, http.MethodPost, "/api/projects/"+projectID+"/upload/files",
		map[string]interface{}{
			"uploadId":  slot.UploadID,
			"sessionId": slot.SessionID,
			"fileName":  fileName,
			"fileSize":  len(content),
			"objectKey": slot.ObjectKey,
		}, &file)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var status models.UploadStatus
		resp = env.do(t, http.MethodGet, "/api/projects/"+projectID+"/upload/status/"+slot.UploadID, nil, &status)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		if status.Status == models.FileStatusCompleted {
			current, ok := env.hub.Get(projectID).Files.Get(file.FileID)
			require.True(t, ok)
			return current
		}
		require.NotEqual(t, models.FileStatusFailed, status.Status, "ingestion failed: %s", status.Error)
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ingestion of %s did not finish", fileName)
	return nil
}

// waitForTerminalStatus polls the status endpoint until the ingestion job
// completes or fails.
func waitForTerminalStatus(t *testing.T, env *testEnv, projectID, uploadID string) *models.UploadStatus {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var status models.UploadStatus
		resp := env.do(t, http.MethodGet, "/api/projects/"+projectID+"/upload/status/"+uploadID, nil, &status)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		if status.Status == models.FileStatusCompleted || status.Status == models.FileStatusFailed {
			return &status
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", uploadID)
	return nil
}

// assignColumns sets the account and amount columns over the API.
func (env *testEnv) assignColumns(t *testing.T, projectID, fileID, accountCol, amountCol string) *models.UploadedFile {
	t.Helper()

	body := map[string]interface{}{}
	if accountCol != "" {
		body["accountColumnName"] = accountCol
	}
	if amountCol != "" {
		body["amountColumnName"] = amountCol
	}

	var file models.UploadedFile
	resp := env.do(t, http.MethodPut, "/api/projects/"+projectID+"/upload/files/"+fileID+"/columns", body, &file)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return &file
}
