package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"vidrelay/internal/distribution/youtube"
	"vidrelay/pkg/config"
)

const (
	callbackAddr = "localhost:8085"
	callbackPath = "/callback"
	consentWait  = 5 * time.Minute
)

var (
	authInfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	authSuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	authErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	authTokenStyle   = lipgloss.NewStyle().Bold(true)
)

var authCheck bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage upload credentials",
	Long:  `Mint a YouTube refresh token or check which credentials are configured.`,
}

var authYouTubeCmd = &cobra.Command{
	Use:   "youtube",
	Short: "Obtain a YouTube refresh token (OAuth)",
	Long: `Run the OAuth consent flow with YOUTUBE_CLIENT_ID and YOUTUBE_CLIENT_SECRET and
print the refresh token to store as YOUTUBE_REFRESH_TOKEN.`,
	RunE: runAuthYouTube,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check which credentials are configured",
	Long:  `Report the configured credentials. With --check, exchange the refresh token to prove it still works.`,
	RunE:  runAuthStatus,
}

func init() {
	authStatusCmd.Flags().BoolVar(&authCheck, "check", false, "Exchange the refresh token for an access token")
	authCmd.AddCommand(authYouTubeCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	creds := cfg.Credentials

	fmt.Println(authInfoStyle.Render("\nCredential Status:\n"))

	switch {
	case creds.YouTubeClientID == "" || creds.YouTubeClientSecret == "":
		fmt.Println(authErrorStyle.Render("✗ YouTube: missing YOUTUBE_CLIENT_ID or YOUTUBE_CLIENT_SECRET"))
	case creds.YouTubeRefreshToken == "":
		fmt.Println(authErrorStyle.Render("✗ YouTube: client configured, but no YOUTUBE_REFRESH_TOKEN"))
		fmt.Println(authInfoStyle.Render("  Run: vidrelay auth youtube"))
	case authCheck:
		printTokenCheck(ctx, creds)
	default:
		fmt.Println(authSuccessStyle.Render("✓ YouTube: client and refresh token configured"))
	}

	switch cfg.Store.Backend {
	case config.BackendGist:
		if creds.GistToken != "" && cfg.Store.GistID != "" {
			fmt.Println(authSuccessStyle.Render("✓ Result store: gist " + cfg.Store.GistID))
		} else {
			fmt.Println(authErrorStyle.Render("✗ Result store: gist needs GIST_ID and GIST_TOKEN"))
		}
	case config.BackendGCS:
		if cfg.Store.GCSBucket != "" {
			fmt.Println(authSuccessStyle.Render("✓ Result store: gs://" + cfg.Store.GCSBucket + "/" + cfg.Store.GCSPrefix))
		} else {
			fmt.Println(authErrorStyle.Render("✗ Result store: gcs needs GCS_BUCKET"))
		}
	default:
		fmt.Println(authSuccessStyle.Render("✓ Result store: local directory " + cfg.Store.LocalDir))
	}

	if cfg.GCPProject != "" {
		fmt.Println(authSuccessStyle.Render("✓ Secret Manager: project " + cfg.GCPProject))
	} else {
		fmt.Println(authInfoStyle.Render("○ Secret Manager: not configured (optional)"))
	}

	fmt.Println()
	return nil
}

func printTokenCheck(ctx context.Context, creds config.Credentials) {
	auth := youtube.NewAuth(youtube.Credentials{
		ClientID:     creds.YouTubeClientID,
		ClientSecret: creds.YouTubeClientSecret,
		RefreshToken: creds.YouTubeRefreshToken,
	})

	_, err := auth.Token(ctx, nil)
	if err == nil {
		fmt.Println(authSuccessStyle.Render("✓ YouTube: refresh token accepted"))
		return
	}

	var authErr *youtube.AuthError
	if errors.As(err, &authErr) && authErr.Reason == youtube.ReasonCredentialExpired {
		fmt.Println(authErrorStyle.Render("✗ YouTube: refresh token expired or revoked"))
		fmt.Println(authInfoStyle.Render("  Run: vidrelay auth youtube"))
		return
	}
	fmt.Println(authErrorStyle.Render("✗ YouTube: " + err.Error()))
}

func runAuthYouTube(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	creds := cfg.Credentials
	if creds.YouTubeClientID == "" || creds.YouTubeClientSecret == "" {
		return errors.New("YOUTUBE_CLIENT_ID and YOUTUBE_CLIENT_SECRET must be set in .env")
	}

	token, err := runYouTubeConsent(ctx, creds.YouTubeClientID, creds.YouTubeClientSecret)
	if err != nil {
		return err
	}

	fmt.Println(authSuccessStyle.Render("✓ YouTube authorization complete"))
	fmt.Println(authInfoStyle.Render("  Store this value as YOUTUBE_REFRESH_TOKEN:"))
	fmt.Println(authTokenStyle.Render(token))
	return nil
}

// runYouTubeConsent runs the installed-app flow on a local callback and
// returns the refresh token.
func runYouTubeConsent(ctx context.Context, clientID, clientSecret string) (string, error) {
	auth := youtube.NewAuth(youtube.Credentials{ClientID: clientID, ClientSecret: clientSecret})
	redirectURL := "http://" + callbackAddr + callbackPath
	state := uuid.NewString()

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	listener, err := net.Listen("tcp", callbackAddr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server: %w", err)
	}

	server := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
	}

	server.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != callbackPath {
			http.NotFound(w, r)
			return
		}

		query := r.URL.Query()
		if query.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}

		code := query.Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no code in callback: %s", query.Get("error"))
			_, _ = fmt.Fprintf(w, "<html><body><h1>Error</h1><p>No authorization code received.</p></body></html>")
			return
		}

		codeChan <- code
		_, _ = fmt.Fprintf(w, "<html><body><h1>Success!</h1><p>You can close this window and return to the terminal.</p></body></html>")
	})

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	consentURL := auth.ConsentURL(redirectURL, state)
	fmt.Println(authInfoStyle.Render("\nOpening browser for YouTube authorization..."))
	fmt.Println(authInfoStyle.Render("If browser doesn't open, visit:\n" + consentURL))

	_ = browser.OpenURL(consentURL)

	fmt.Println(authInfoStyle.Render("\nWaiting for authorization..."))

	select {
	case code := <-codeChan:
		token, err := auth.Exchange(ctx, redirectURL, code)
		if err != nil {
			return "", err
		}
		return token.RefreshToken, nil

	case err := <-errChan:
		return "", err

	case <-ctx.Done():
		return "", ctx.Err()

	case <-time.After(consentWait):
		return "", errors.New("authorization timed out")
	}
}
