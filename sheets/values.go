package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/easeware/snippetd/executor"
)

const (
	headerAccept      = "Accept"
	headerContentType = "Content-Type"
	mimeJSON          = "application/json"
)

// GetValues reads a1Range from the spreadsheet.
func (c *Client) GetValues(ctx context.Context, accountID, spreadsheetID, a1Range string) (*sheetsapi.ValueRange, error) {
	path := valuesPath(spreadsheetID, a1Range)

	res, err := c.Do(ctx, accountID, func(token string) *executor.Descriptor {
		d := executor.NewDescriptor(http.MethodGet, c.cfg.BaseURL, token)
		d.Path = path
		d.Headers.Set(headerAccept, mimeJSON)
		return d
	})
	if err != nil {
		return nil, fmt.Errorf("sheets: get values: %w", err)
	}
	if err := CheckResult(res); err != nil {
		return nil, err
	}

	var out sheetsapi.ValueRange
	if err := json.Unmarshal(res.Body, &out); err != nil {
		return nil, fmt.Errorf("sheets: decode values: %w", err)
	}
	return &out, nil
}

// AppendValues appends rows after the last row of the table found in a1Range.
// Values are parsed as if typed by a user.
func (c *Client) AppendValues(ctx context.Context, accountID, spreadsheetID, a1Range string, rows [][]any) (*sheetsapi.AppendValuesResponse, error) {
	body, err := json.Marshal(&sheetsapi.ValueRange{
		Range:          a1Range,
		MajorDimension: "ROWS",
		Values:         rows,
	})
	if err != nil {
		return nil, fmt.Errorf("sheets: encode rows: %w", err)
	}

	q := url.Values{}
	q.Set("valueInputOption", "USER_ENTERED")
	q.Set("insertDataOption", "INSERT_ROWS")
	path := valuesPath(spreadsheetID, a1Range) + ":append?" + q.Encode()

	res, err := c.Do(ctx, accountID, func(token string) *executor.Descriptor {
		d := executor.NewDescriptor(http.MethodPost, c.cfg.BaseURL, token)
		d.Path = path
		d.Headers.Set(headerAccept, mimeJSON)
		d.Headers.Set(headerContentType, mimeJSON)
		d.Body = body
		return d
	})
	if err != nil {
		return nil, fmt.Errorf("sheets: append values: %w", err)
	}
	if err := CheckResult(res); err != nil {
		return nil, err
	}

	var out sheetsapi.AppendValuesResponse
	if err := json.Unmarshal(res.Body, &out); err != nil {
		return nil, fmt.Errorf("sheets: decode append response: %w", err)
	}
	return &out, nil
}

func valuesPath(spreadsheetID, a1Range string) string {
	return "spreadsheets/" + url.PathEscape(spreadsheetID) + "/values/" + url.PathEscape(a1Range)
}
