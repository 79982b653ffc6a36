package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SecretSource looks up a secret by name. A missing secret returns "" and
// no error.
type SecretSource interface {
	Secret(ctx context.Context, name string) (string, error)
	Close() error
}

type SecretManagerSource struct {
	client  *secretmanager.Client
	project string
}

func NewSecretManagerSource(ctx context.Context, project string) (*SecretManagerSource, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &SecretManagerSource{client: client, project: project}, nil
}

func (s *SecretManagerSource) Secret(ctx context.Context, name string) (string, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.project, name),
	})
	if status.Code(err) == codes.NotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	return strings.TrimSpace(string(resp.GetPayload().GetData())), nil
}

func (s *SecretManagerSource) Close() error {
	return s.client.Close()
}

func resolveSecrets(ctx context.Context, creds *Credentials, src SecretSource) error {
	fields := []struct {
		name  string
		value *string
	}{
		{EnvYouTubeClientID, &creds.YouTubeClientID},
		{EnvYouTubeClientSecret, &creds.YouTubeClientSecret},
		{EnvYouTubeRefreshToken, &creds.YouTubeRefreshToken},
		{EnvGistToken, &creds.GistToken},
	}

	for _, f := range fields {
		if *f.value != "" {
			continue
		}
		value, err := src.Secret(ctx, f.name)
		if err != nil {
			return err
		}
		if value == "" {
			slog.Debug("Secret not found", "name", f.name)
			continue
		}
		*f.value = value
	}
	return nil
}
