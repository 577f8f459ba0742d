package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
)

// getBody issues a GET and classifies the outcome: transport failures are recoverable, statuses are
// classified by statusError, and caller cancellation is returned as is.
func getBody(ctx context.Context, c *resty.Client, op, endpoint string, params map[string]string) ([]byte, error) {
	resp, err := c.R().SetContext(ctx).SetQueryParams(params).Get(endpoint)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		return nil, recoverable(op, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, statusError(op, resp.StatusCode(), resp.Body())
	}
	return resp.Body(), nil
}

// getJSON is getBody followed by a decode into out. An empty body counts as an empty result.
func getJSON(ctx context.Context, c *resty.Client, op, endpoint string, params map[string]string, out any) error {
	body, err := getBody(ctx, c, op, endpoint, params)
	if err != nil {
		return err
	}
	return decodeJSON(op, body, out)
}

func decodeJSON(op string, body []byte, out any) error {
	if len(body) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyResult)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s decode: %w", op, err)
	}
	return nil
}

// recordsFrame flattens keyed JSON records onto the given columns.
func recordsFrame(records []map[string]any, columns []string) Frame {
	f := Frame{Columns: columns, Rows: make([][]string, 0, len(records))}
	for _, rec := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = cellString(rec[col])
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
