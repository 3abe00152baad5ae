package webhooks

import (
	"context"
	"strings"

	"gamevault/internal/catalog"
	"gamevault/internal/services"
)

// Registrar registers a webhook with the catalog.
type Registrar interface {
	RegisterWebhook(ctx context.Context, endpoint, hookURL, method, secret string) error
}

// HookURL is the public address the catalog calls for method.
func HookURL(publicURL string, method Method) string {
	return strings.TrimRight(publicURL, "/") + "/webhooks/games/" + string(method)
}

// Register subscribes publicURL to every game method. It stops at the first
// failure.
func Register(ctx context.Context, registrar Registrar, publicURL, secret string) error {
	if strings.TrimSpace(publicURL) == "" {
		return services.Wrap(services.ErrConfiguration, "webhooks", "register", "webhooks.public_url is required", nil)
	}
	for _, method := range Methods() {
		if err := registrar.RegisterWebhook(ctx, catalog.EndpointGames, HookURL(publicURL, method), string(method), secret); err != nil {
			return err
		}
	}
	return nil
}
