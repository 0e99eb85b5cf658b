package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/sheetflow/backend/internal/models"
	"github.com/sheetflow/backend/internal/probe"
)

// ProgressFunc receives transfer progress for a single file as a
// percentage in [0, 100].
type ProgressFunc func(fileName string, percent float64)

// BatchResult is the outcome of one file in a batch upload. Err is set
// when the file failed; the rest of the batch still proceeds.
type BatchResult struct {
	FileName  string
	UploadID  string
	SessionID string
	File      *models.UploadedFile
	Probe     *probe.Result
	Err       error
}

type slotRequest struct {
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
	SessionID string `json:"sessionId,omitempty"`
}

// UploadSlot is the server-allocated upload slot from the first step.
type UploadSlot struct {
	WriteURL  string `json:"writeUrl"`
	UploadID  string `json:"uploadId"`
	ObjectKey string `json:"objectKey"`
	SessionID string `json:"sessionId"`
}

type finalizeRequest struct {
	UploadID  string `json:"uploadId"`
	SessionID string `json:"sessionId"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
	ObjectKey string `json:"objectKey"`
}

// UploadFile runs the three-step upload for a single spreadsheet: slot
// request, byte transfer to the returned write URL, then finalize. The
// sessionHint is forwarded on the slot request; the server's returned
// session id is authoritative and is the one used for finalize.
//
// The file is probed locally first, so unsupported or unreadable files
// are rejected without touching the network.
func (c *Client) UploadFile(ctx context.Context, projectID, path, sessionHint string, onProgress ProgressFunc) (*models.UploadedFile, *UploadSlot, error) {
	file, slot, _, err := c.uploadFile(ctx, projectID, path, sessionHint, onProgress)
	return file, slot, err
}

// uploadFile also returns the local probe result so batch callers can
// report it without parsing the workbook a second time.
func (c *Client) uploadFile(ctx context.Context, projectID, path, sessionHint string, onProgress ProgressFunc) (*models.UploadedFile, *UploadSlot, *probe.Result, error) {
	fileName := filepath.Base(path)

	if !probe.IsSupportedType(fileName) {
		return nil, nil, nil, &ValidationError{Message: fmt.Sprintf("unsupported file type: %s", fileName)}
	}
	probed, err := probe.Probe(path)
	if err != nil {
		return nil, nil, nil, &ValidationError{Message: fmt.Sprintf("%s is not a readable workbook: %v", fileName, err)}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, nil, &ValidationError{Message: fmt.Sprintf("cannot stat %s: %v", path, err)}
	}

	slot, err := c.requestSlot(ctx, projectID, fileName, info.Size(), sessionHint)
	if err != nil {
		return nil, nil, probed, err
	}

	if err := c.transfer(ctx, path, info.Size(), slot.WriteURL, fileName, onProgress); err != nil {
		return nil, slot, probed, err
	}

	file, err := c.finalize(ctx, projectID, slot, fileName, info.Size())
	if err != nil {
		return nil, slot, probed, err
	}
	return file, slot, probed, nil
}

// UploadBatch uploads the given files sequentially. The first slot
// response establishes the shared session id, which is carried into the
// remaining uploads so all files land in the same ingestion session.
// A failed file is reported in its BatchResult and does not stop the rest.
func (c *Client) UploadBatch(ctx context.Context, projectID string, paths []string, sessionHint string, onProgress ProgressFunc) []BatchResult {
	results := make([]BatchResult, len(paths))
	sessionID := sessionHint

	for i, path := range paths {
		results[i] = c.uploadOne(ctx, projectID, path, sessionID, onProgress)
		if s := results[i].SessionID; s != "" {
			sessionID = s
		}
	}
	return results
}

// UploadBatchConcurrent uploads with up to concurrency transfers in
// flight. The first file runs alone so the server-assigned session id can
// be shared by the rest; results keep input order.
func (c *Client) UploadBatchConcurrent(ctx context.Context, projectID string, paths []string, sessionHint string, concurrency int, onProgress ProgressFunc) []BatchResult {
	if concurrency <= 1 || len(paths) <= 1 {
		return c.UploadBatch(ctx, projectID, paths, sessionHint, onProgress)
	}

	results := make([]BatchResult, len(paths))
	sessionID := sessionHint

	results[0] = c.uploadOne(ctx, projectID, paths[0], sessionID, onProgress)
	if s := results[0].SessionID; s != "" {
		sessionID = s
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i := 1; i < len(paths); i++ {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = c.uploadOne(ctx, projectID, path, sessionID, onProgress)
		}(i, paths[i])
	}
	wg.Wait()
	return results
}

func (c *Client) uploadOne(ctx context.Context, projectID, path, sessionID string, onProgress ProgressFunc) BatchResult {
	fileName := filepath.Base(path)

	file, slot, probed, err := c.uploadFile(ctx, projectID, path, sessionID, onProgress)

	result := BatchResult{FileName: fileName, File: file, Err: err}
	if slot != nil {
		result.UploadID = slot.UploadID
		result.SessionID = slot.SessionID
	}
	if err == nil {
		result.Probe = probed
	}
	return result
}

func (c *Client) requestSlot(ctx context.Context, projectID, fileName string, fileSize int64, sessionHint string) (*UploadSlot, error) {
	req := slotRequest{FileName: fileName, FileSize: fileSize, SessionID: sessionHint}

	var slot UploadSlot
	path := fmt.Sprintf("/api/projects/%s/upload/presigned-url", projectID)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &slot); err != nil {
		return nil, fmt.Errorf("requesting upload slot for %s: %w", fileName, err)
	}
	return &slot, nil
}

func (c *Client) transfer(ctx context.Context, path string, size int64, writeURL, fileName string, onProgress ProgressFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	body := &progressReader{reader: f, total: size, fileName: fileName, onProgress: onProgress}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, writeURL, body)
	if err != nil {
		return fmt.Errorf("building transfer request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transferring %s: %w", fileName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if onProgress != nil {
		onProgress(fileName, 100)
	}
	return nil
}

func (c *Client) finalize(ctx context.Context, projectID string, slot *UploadSlot, fileName string, fileSize int64) (*models.UploadedFile, error) {
	req := finalizeRequest{
		UploadID:  slot.UploadID,
		SessionID: slot.SessionID,
		FileName:  fileName,
		FileSize:  fileSize,
		ObjectKey: slot.ObjectKey,
	}

	var file models.UploadedFile
	path := fmt.Sprintf("/api/projects/%s/upload/files", projectID)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &file); err != nil {
		return nil, fmt.Errorf("finalizing %s: %w", fileName, err)
	}
	return &file, nil
}

// progressReader reports how much of the transfer body has been read.
type progressReader struct {
	reader     io.Reader
	total      int64
	read       int64
	fileName   string
	onProgress ProgressFunc
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read += int64(n)
	if r.onProgress != nil && r.total > 0 && n > 0 {
		percent := float64(r.read) / float64(r.total) * 100
		if percent > 100 {
			percent = 100
		}
		r.onProgress(r.fileName, percent)
	}
	return n, err
}
