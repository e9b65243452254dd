package ports

import "context"

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string
	Version   string
	Metadata  map[string]string
	CreatedAt string
}

// SecretManager defines the port for retrieving secrets (gateway API key,
// webhook HMAC secret). Implementations are responsible for authentication
// with the backend and for caching with a sensible TTL.
type SecretManager interface {
	// GetSecret retrieves a secret by its path/name.
	// Path format depends on the backend:
	//   - AWS: "payment-engine/gateway/api-key"
	//   - local: relative file path under the configured base directory
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
