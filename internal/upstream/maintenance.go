package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Maintenance actions relayed to the backend.
const (
	ActionBackup  = "backup"
	ActionMigrate = "migrate"
)

// UploadPackage streams an update package to the backend as the multipart
// field "file". The body is not buffered, so the call is never retried.
func (c *Client) UploadPackage(ctx context.Context, filename string, content io.Reader) (json.RawMessage, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, content)
		}
		if err == nil {
			err = form.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/maintenance/upload", nil, pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return c.doLong(req)
}

// TriggerMaintenance starts a backup or a migration on the backend.
func (c *Client) TriggerMaintenance(ctx context.Context, action string) (json.RawMessage, error) {
	switch action {
	case ActionBackup, ActionMigrate:
	default:
		return nil, fmt.Errorf("upstream: unknown maintenance action %q", action)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/maintenance/"+action, nil, http.NoBody)
	if err != nil {
		return nil, err
	}
	return c.doLong(req)
}

func (c *Client) doLong(req *http.Request) (json.RawMessage, error) {
	op := req.Method + " " + req.URL.Path
	start := time.Now()
	resp, err := c.long.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Dur("duration", time.Since(start)).Msg("maintenance request failed")
		return nil, unavailable(op, err)
	}
	defer resp.Body.Close()
	body, err := c.readResponse(op, start, resp)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 || !json.Valid(body) {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(body), nil
}
