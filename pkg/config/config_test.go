package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeSecrets struct {
	values map[string]string
	asked  []string
	err    error
	closed bool
}

func (f *fakeSecrets) Secret(_ context.Context, name string) (string, error) {
	f.asked = append(f.asked, name)
	if f.err != nil {
		return "", f.err
	}
	return f.values[name], nil
}

func (f *fakeSecrets) Close() error {
	f.closed = true
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvYouTubeClientID, EnvYouTubeClientSecret, EnvYouTubeRefreshToken,
		EnvGistToken, EnvGistID, EnvGCSBucket, EnvGCPProject, EnvStoreBackend,
	} {
		t.Setenv(key, "")
	}
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	orig, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(orig) })
	_ = os.Chdir(tmp)
	return tmp
}

func noSecrets(t *testing.T) func(context.Context, string) (SecretSource, error) {
	return func(context.Context, string) (SecretSource, error) {
		t.Fatal("secret manager should not be opened")
		return nil, nil
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearEnv(t)
	tmp := chdirTemp(t)

	yaml := `
upload:
  chunk_size: 524288
  retry:
    max_attempts: 3
    initial_delay: 2s
store:
  backend: local
  local_dir: ./out
  retention: 12h
notify:
  timeout: 5s
`
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte(yaml), 0644)

	cfg, err := load(context.Background(), "config.yaml", noSecrets(t))
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}

	if cfg.Upload.ChunkSize != 512<<10 {
		t.Errorf("Upload.ChunkSize = %d, want %d", cfg.Upload.ChunkSize, 512<<10)
	}
	if cfg.Upload.Retry.MaxAttempts != 3 {
		t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Upload.Retry.MaxAttempts)
	}
	if cfg.Upload.Retry.InitialDelay != 2*time.Second {
		t.Errorf("Retry.InitialDelay = %v, want 2s", cfg.Upload.Retry.InitialDelay)
	}
	if cfg.Upload.Retry.MaxDelay != defaultMaxDelay {
		t.Errorf("Retry.MaxDelay = %v, want default %v", cfg.Upload.Retry.MaxDelay, defaultMaxDelay)
	}
	if cfg.Store.Backend != BackendLocal || cfg.Store.LocalDir != "./out" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Store.Retention != 12*time.Hour {
		t.Errorf("Store.Retention = %v, want 12h", cfg.Store.Retention)
	}
	if cfg.Notify.Timeout != 5*time.Second {
		t.Errorf("Notify.Timeout = %v, want 5s", cfg.Notify.Timeout)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	tmp := chdirTemp(t)
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("store:\n  gist_id: from-yaml\n"), 0644)

	t.Setenv(EnvYouTubeClientID, "id")
	t.Setenv(EnvYouTubeClientSecret, "secret")
	t.Setenv(EnvYouTubeRefreshToken, "refresh")
	t.Setenv(EnvGistToken, "gist-token")
	t.Setenv(EnvGistID, "from-env")

	cfg, err := load(context.Background(), "config.yaml", noSecrets(t))
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}

	want := Credentials{
		YouTubeClientID:     "id",
		YouTubeClientSecret: "secret",
		YouTubeRefreshToken: "refresh",
		GistToken:           "gist-token",
	}
	if cfg.Credentials != want {
		t.Errorf("Credentials = %+v, want %+v", cfg.Credentials, want)
	}
	if cfg.Store.GistID != "from-env" {
		t.Errorf("Store.GistID = %q, want from-env", cfg.Store.GistID)
	}
}

func TestLoadMissingConfigFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	chdirTemp(t)

	cfg, err := load(context.Background(), "config.yaml", noSecrets(t))
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}

	if cfg.Upload.ChunkSize != defaultChunkSize {
		t.Errorf("Upload.ChunkSize = %d, want %d", cfg.Upload.ChunkSize, defaultChunkSize)
	}
	if cfg.Upload.Retry.MaxAttempts != 5 || cfg.Upload.Retry.Jitter != 0.1 {
		t.Errorf("Upload.Retry = %+v", cfg.Upload.Retry)
	}
	if cfg.Fetch.Timeout != 30*time.Minute {
		t.Errorf("Fetch.Timeout = %v, want 30m", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.ScratchDir != os.TempDir() {
		t.Errorf("Fetch.ScratchDir = %q, want %q", cfg.Fetch.ScratchDir, os.TempDir())
	}
	if cfg.Store.Backend != BackendGist || cfg.Store.Retention != 24*time.Hour {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Store.GCSPrefix != "results/" || cfg.Store.LocalDir != "./results" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Notify.Timeout != 10*time.Second {
		t.Errorf("Notify.Timeout = %v, want 10s", cfg.Notify.Timeout)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	tmp := chdirTemp(t)
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("upload: [not, a, map"), 0644)

	if _, err := load(context.Background(), "config.yaml", noSecrets(t)); err == nil {
		t.Error("load() should fail on invalid YAML")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unalignedChunk", yaml: "upload:\n  chunk_size: 1000\n"},
		{name: "unknownBackend", yaml: "store:\n  backend: redis\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			tmp := chdirTemp(t)
			_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte(tt.yaml), 0644)

			if _, err := load(context.Background(), "config.yaml", noSecrets(t)); err == nil {
				t.Error("load() should reject the config")
			}
		})
	}
}

func TestLoadResolvesMissingCredentialsFromSecrets(t *testing.T) {
	clearEnv(t)
	chdirTemp(t)
	t.Setenv(EnvGCPProject, "test-project")
	t.Setenv(EnvYouTubeClientID, "env-id")

	src := &fakeSecrets{values: map[string]string{
		EnvYouTubeClientID:     "secret-id",
		EnvYouTubeClientSecret: "secret-secret",
		EnvYouTubeRefreshToken: "secret-refresh",
	}}
	var project string
	open := func(_ context.Context, p string) (SecretSource, error) {
		project = p
		return src, nil
	}

	cfg, err := load(context.Background(), "config.yaml", open)
	if err != nil {
		t.Fatalf("load() error: %v", err)
	}

	if project != "test-project" {
		t.Errorf("project = %q, want test-project", project)
	}
	if cfg.Credentials.YouTubeClientID != "env-id" {
		t.Errorf("YouTubeClientID = %q, env value must win", cfg.Credentials.YouTubeClientID)
	}
	if cfg.Credentials.YouTubeRefreshToken != "secret-refresh" {
		t.Errorf("YouTubeRefreshToken = %q, want secret-refresh", cfg.Credentials.YouTubeRefreshToken)
	}
	if cfg.Credentials.GistToken != "" {
		t.Errorf("GistToken = %q, want empty for a missing secret", cfg.Credentials.GistToken)
	}
	for _, name := range src.asked {
		if name == EnvYouTubeClientID {
			t.Error("secret manager was asked for a credential already set")
		}
	}
	if !src.closed {
		t.Error("secret source was not closed")
	}
}

func TestResolveSecretsPropagatesErrors(t *testing.T) {
	src := &fakeSecrets{err: errors.New("permission denied")}
	creds := Credentials{}

	if err := resolveSecrets(context.Background(), &creds, src); err == nil {
		t.Error("resolveSecrets() should return the source error")
	}
}

func TestRetryConfigPolicy(t *testing.T) {
	r := RetryConfig{MaxAttempts: 4, InitialDelay: time.Second, MaxDelay: 8 * time.Second, Multiplier: 2, Jitter: 0.2}
	p := r.Policy()

	if p.MaxAttempts != 4 || p.InitialDelay != time.Second || p.MaxDelay != 8*time.Second {
		t.Errorf("Policy() = %+v", p)
	}
	if p.Multiplier != 2 || p.Jitter != 0.2 {
		t.Errorf("Policy() = %+v", p)
	}
}
