package twitter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/user/userlookup"
	"github.com/michimani/gotwi/user/userlookup/types"
)

// Verify returns the handle of the account the credentials act for.
func (c *Client) Verify(ctx context.Context) (string, error) {
	res, err := userlookup.GetMe(ctx, c.api, &types.GetMeInput{})
	if err != nil {
		return "", fmt.Errorf("verify credentials: %w", unwrapGotwiError(err))
	}

	username := gotwi.StringValue(res.Data.Username)
	if username == "" {
		return "", fmt.Errorf("verify credentials: empty username")
	}
	return "@" + username, nil
}

func unwrapGotwiError(err error) error {
	var gwErr *gotwi.GotwiError
	if errors.As(err, &gwErr) && gwErr != nil {
		return fmt.Errorf("%s", summarizeGotwiError(gwErr))
	}
	return err
}

func summarizeGotwiError(err *gotwi.GotwiError) string {
	parts := make([]string, 0, 4)
	if err.Title != "" {
		parts = append(parts, err.Title)
	}
	if err.Detail != "" {
		parts = append(parts, err.Detail)
	}
	for _, apiErr := range err.APIErrors {
		if apiErr.Message != "" {
			parts = append(parts, apiErr.Message)
		}
	}
	if len(parts) == 0 {
		if msg := err.Error(); msg != "" {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "X API request failed")
	}

	return strings.Join(parts, "; ")
}
