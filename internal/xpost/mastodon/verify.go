package mastodon

import (
	"context"
	"fmt"

	mastodonapi "github.com/mattn/go-mastodon"
)

// Verify returns the handle of the account that owns the token.
func (c *Client) Verify(ctx context.Context) (string, error) {
	client := mastodonapi.NewClient(&mastodonapi.Config{
		Server:      c.server,
		AccessToken: c.token,
	})
	client.Timeout = c.timeout

	account, err := client.GetAccountCurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("verify credentials: %w", err)
	}
	return "@" + account.Acct, nil
}
