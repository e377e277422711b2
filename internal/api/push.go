package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// PushEntity uploads one entity to the server. Deletions are pushed as
// tombstones (Deleted = true), not as a separate endpoint.
//
// The server performs its own staleness check as defense in depth: a 409
// means the push was stale and is reported via PushOutcome.Rejected together
// with the server's current copy, so the caller can feed it back into
// conflict detection. A 422 means the payload was rejected outright and is
// returned as ErrValidation.
func (c *Client) PushEntity(ctx context.Context, workspaceID string, e *Entity) (*PushOutcome, error) {
	c.logger.Debug("pushing entity",
		slog.String("workspace", workspaceID),
		slog.String("id", e.ID),
		slog.Int64("revision", e.Revision),
		slog.Bool("deleted", e.Deleted),
	)

	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("api: encoding entity %s: %w", e.ID, err)
	}

	path := "/v1/" + url.PathEscape(workspaceID) + "/entities/" + url.PathEscape(e.ID)

	resp, err := c.do(ctx, http.MethodPut, path, body)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return c.rejectedOutcome(err, e.ID)
		}

		return nil, fmt.Errorf("api: pushing entity %s: %w", e.ID, err)
	}
	defer resp.Body.Close()

	var accepted pushAccepted
	if decodeErr := json.NewDecoder(resp.Body).Decode(&accepted); decodeErr != nil {
		return nil, fmt.Errorf("api: decoding push response for %s: %w", e.ID, decodeErr)
	}

	return &PushOutcome{AcceptedRevision: accepted.AcceptedRevision}, nil
}

// rejectedOutcome extracts the server's current copy from a 409 response
// body. The copy rides inside the APIError message because do() drains
// error bodies before classification.
func (c *Client) rejectedOutcome(err error, id string) (*PushOutcome, error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return nil, fmt.Errorf("api: push conflict for %s without response body: %w", id, err)
	}

	var rejected pushRejected
	if decodeErr := json.Unmarshal([]byte(apiErr.Message), &rejected); decodeErr != nil {
		return nil, fmt.Errorf("api: decoding push conflict body for %s: %w", id, decodeErr)
	}

	c.logger.Info("push rejected as stale",
		slog.String("id", id),
		slog.Int64("server_revision", rejected.Current.Revision),
	)

	return &PushOutcome{
		Rejected:     true,
		ServerEntity: &rejected.Current,
	}, nil
}
