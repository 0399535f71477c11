package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"google.golang.org/api/drive/v3"

	"github.com/easeware/snippetd/executor"
)

const (
	spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"
	drivePageSize       = "100"
)

// ListSpreadsheets lists every non-trashed spreadsheet visible to the account,
// following Drive's page tokens.
func (c *Client) ListSpreadsheets(ctx context.Context, accountID string) (*drive.FileList, error) {
	all := &drive.FileList{Kind: "drive#fileList"}
	pageToken := ""
	for {
		page, err := c.listSpreadsheetsPage(ctx, accountID, pageToken)
		if err != nil {
			return nil, err
		}
		all.Files = append(all.Files, page.Files...)
		all.IncompleteSearch = all.IncompleteSearch || page.IncompleteSearch
		if page.NextPageToken == "" {
			return all, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Client) listSpreadsheetsPage(ctx context.Context, accountID, pageToken string) (*drive.FileList, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("mimeType='%s' and trashed=false", spreadsheetMimeType))
	q.Set("fields", "nextPageToken,incompleteSearch,files(id,name,modifiedTime,webViewLink)")
	q.Set("orderBy", "modifiedTime desc")
	q.Set("pageSize", drivePageSize)
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	path := "files?" + q.Encode()

	res, err := c.Do(ctx, accountID, func(token string) *executor.Descriptor {
		d := executor.NewDescriptor(http.MethodGet, c.cfg.DriveURL, token)
		d.Path = path
		d.Headers.Set(headerAccept, mimeJSON)
		return d
	})
	if err != nil {
		return nil, fmt.Errorf("sheets: list spreadsheets: %w", err)
	}
	if err := CheckResult(res); err != nil {
		return nil, err
	}

	var page drive.FileList
	if err := json.Unmarshal(res.Body, &page); err != nil {
		return nil, fmt.Errorf("sheets: decode file list: %w", err)
	}
	return &page, nil
}
