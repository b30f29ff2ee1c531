package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/dvloznov/mailledger/internal/logger"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// SecretManagerStore keeps the token as a GCP Secret Manager secret.
// Each save adds a version and disables the older ones.
type SecretManagerStore struct {
	client    *secretmanager.Client
	projectID string
	secretID  string
}

// NewSecretManagerStore creates a store for projects/<projectID>/secrets/<secretID>.
func NewSecretManagerStore(ctx context.Context, projectID, secretID string, opts ...option.ClientOption) (*SecretManagerStore, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewSecretManagerStore: create client: %w", err)
	}
	return &SecretManagerStore{client: client, projectID: projectID, secretID: secretID}, nil
}

// Close closes the underlying client.
func (s *SecretManagerStore) Close() error {
	return s.client.Close()
}

func (s *SecretManagerStore) parent() string {
	return fmt.Sprintf("projects/%s/secrets/%s", s.projectID, s.secretID)
}

// Load implements Store by reading the latest version.
func (s *SecretManagerStore) Load(ctx context.Context) (*StoredToken, error) {
	name := s.parent() + "/versions/latest"
	log := logger.FromContext(ctx)
	log.Info().Str("secret", name).Msg("Retrieving secret")

	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return nil, fmt.Errorf("SecretManagerStore.Load: access %s: %w", name, err)
	}
	var tok StoredToken
	if err := json.Unmarshal(resp.GetPayload().GetData(), &tok); err != nil {
		return nil, fmt.Errorf("SecretManagerStore.Load: parse %s: %w", name, err)
	}
	return &tok, nil
}

// Save implements Store.
func (s *SecretManagerStore) Save(ctx context.Context, tok *StoredToken) error {
	log := logger.FromContext(ctx)

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("SecretManagerStore.Save: encode: %w", err)
	}

	added, err := s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  s.parent(),
		Payload: &secretmanagerpb.SecretPayload{Data: data},
	})
	if err != nil {
		return fmt.Errorf("SecretManagerStore.Save: add version: %w", err)
	}

	it := s.client.ListSecretVersions(ctx, &secretmanagerpb.ListSecretVersionsRequest{Parent: s.parent()})
	for {
		v, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("SecretManagerStore.Save: list versions: %w", err)
		}
		if v.GetName() == added.GetName() || v.GetState() != secretmanagerpb.SecretVersion_ENABLED {
			continue
		}
		if _, err := s.client.DisableSecretVersion(ctx, &secretmanagerpb.DisableSecretVersionRequest{Name: v.GetName()}); err != nil {
			return fmt.Errorf("SecretManagerStore.Save: disable %s: %w", v.GetName(), err)
		}
		log.Debug().Str("version", v.GetName()).Msg("Disabled old secret version")
	}

	log.Info().Str("version", added.GetName()).Msg("Stored new secret version")
	return nil
}

var _ Store = (*SecretManagerStore)(nil)
