package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"vidrelay/internal/storage"
	"vidrelay/pkg/config"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).MarginBottom(1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// envOrder is the key order of the generated .env file.
var envOrder = []string{
	config.EnvGCPProject,
	config.EnvYouTubeClientID,
	config.EnvYouTubeClientSecret,
	config.EnvYouTubeRefreshToken,
	config.EnvStoreBackend,
	config.EnvGistID,
	config.EnvGistToken,
	config.EnvGCSBucket,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard for Vidrelay",
	Long:  `Configure YouTube credentials and the result store, and write them to .env.`,
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	fmt.Println(titleStyle.Render("📼 Vidrelay Setup"))

	if _, err := os.Stat(".env"); err == nil {
		var overwrite bool
		if err := huh.NewConfirm().
			Title("Found existing .env file").
			Description("Overwrite?").
			Value(&overwrite).
			Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println(infoStyle.Render("Kept existing .env"))
			return nil
		}
	}

	env := make(map[string]string)

	steps := []struct {
		name string
		fn   func(context.Context, map[string]string) error
	}{
		{"Configuring Google Cloud", configureGCP},
		{"Configuring YouTube", configureYouTube},
		{"Configuring result store", configureStore},
	}

	for _, step := range steps {
		if err := step.fn(cmd.Context(), env); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	return writeEnvFile(env)
}

func configureGCP(_ context.Context, env map[string]string) error {
	var setupGCP bool
	if err := huh.NewConfirm().
		Title("Setup Google Cloud?").
		Description("Enables the YouTube Data API and Secret Manager for credentials").
		Value(&setupGCP).
		Run(); err != nil {
		return err
	}

	if !setupGCP {
		return nil
	}

	if !commandExists("gcloud") {
		fmt.Println(warnStyle.Render("gcloud CLI not found - install from https://cloud.google.com/sdk/docs/install"))
		return nil
	}

	project, err := chooseGCPProject()
	if err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("GCP setup skipped: %v", err)))
		return nil
	}
	if project == "" {
		return nil
	}

	env[config.EnvGCPProject] = project

	if err := enableGCPAPIs(project); err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("API enablement failed: %v", err)))
	}
	return nil
}

func chooseGCPProject() (string, error) {
	existing := getActiveProject()

	var choice string
	options := []huh.Option[string]{
		huh.NewOption("Enter project ID manually", "manual"),
	}

	if existing != "" {
		options = append([]huh.Option[string]{
			huh.NewOption(fmt.Sprintf("Use current: %s", existing), existing),
		}, options...)
	}

	if err := huh.NewSelect[string]().
		Title("Google Cloud Project").
		Options(options...).
		Value(&choice).
		Run(); err != nil {
		return "", err
	}

	if choice != "manual" {
		return choice, nil
	}

	var projectID string
	if err := huh.NewInput().
		Title("Project ID").
		Value(&projectID).
		Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(projectID), nil
}

func getActiveProject() string {
	out, err := exec.Command("gcloud", "config", "get-value", "project").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func enableGCPAPIs(project string) error {
	apis := []string{
		"youtube.googleapis.com",
		"secretmanager.googleapis.com",
	}

	return runWithSpinner("Enabling APIs", func() error {
		args := append([]string{"services", "enable"}, apis...)
		args = append(args, "--project", project)
		return runSetupCmd("gcloud", args...)
	})
}

func configureYouTube(ctx context.Context, env map[string]string) error {
	fmt.Println(infoStyle.Render(`
To create OAuth credentials:
1. Go to https://console.cloud.google.com/apis/credentials
2. Click "Create Credentials" → "OAuth client ID"
3. Choose "Desktop app" as application type
4. Copy the Client ID and Client Secret
`))

	var clientID, clientSecret string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("YouTube Client ID").
				Value(&clientID).
				Validate(required("YouTube Client ID")),
			huh.NewInput().
				Title("YouTube Client Secret").
				EchoMode(huh.EchoModePassword).
				Value(&clientSecret).
				Validate(required("YouTube Client Secret")),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)
	env[config.EnvYouTubeClientID] = clientID
	env[config.EnvYouTubeClientSecret] = clientSecret

	var authenticate bool
	if err := huh.NewConfirm().
		Title("Authenticate with YouTube now?").
		Description("Opens browser to mint a refresh token").
		Value(&authenticate).
		Run(); err != nil {
		return err
	}

	if !authenticate {
		fmt.Println(infoStyle.Render("Mint a token later with: vidrelay auth youtube"))
		return nil
	}

	token, err := runYouTubeConsent(ctx, clientID, clientSecret)
	if err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("OAuth flow failed: %v", err)))
		fmt.Println(infoStyle.Render("You can retry later with: vidrelay auth youtube"))
		return nil
	}

	env[config.EnvYouTubeRefreshToken] = token
	fmt.Println(successStyle.Render("✓ YouTube refresh token saved"))
	return nil
}

func configureStore(ctx context.Context, env map[string]string) error {
	backend := config.BackendGist
	if err := huh.NewSelect[string]().
		Title("Result store").
		Description("Where upload outcomes are kept for polling callers").
		Options(
			huh.NewOption("GitHub gist", config.BackendGist),
			huh.NewOption("Cloud Storage bucket", config.BackendGCS),
			huh.NewOption("Local directory", config.BackendLocal),
		).
		Value(&backend).
		Run(); err != nil {
		return err
	}

	env[config.EnvStoreBackend] = backend

	switch backend {
	case config.BackendGist:
		return configureGist(ctx, env)
	case config.BackendGCS:
		return configureBucket(env)
	}
	return nil
}

func configureGist(ctx context.Context, env map[string]string) error {
	fmt.Println(infoStyle.Render(`
To prepare a result gist:
1. Create a secret gist at https://gist.github.com with a README.md file
2. Copy the gist ID from its URL
3. Create a token with the "gist" scope at https://github.com/settings/tokens
`))

	var gistID, token string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Gist ID").
				Value(&gistID).
				Validate(required("Gist ID")),
			huh.NewInput().
				Title("GitHub token").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(required("GitHub token")),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	gistID = strings.TrimSpace(gistID)
	token = strings.TrimSpace(token)
	env[config.EnvGistID] = gistID
	env[config.EnvGistToken] = token

	err := runWithSpinner("Checking gist access", func() error {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		_, err := storage.NewGistStore(gistID, token).ListAges(ctx)
		return err
	})
	if err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("Gist check failed: %v", err)))
	}
	return nil
}

func configureBucket(env map[string]string) error {
	var bucket string
	if err := huh.NewInput().
		Title("Bucket name").
		Description("Results are written under the results/ prefix").
		Value(&bucket).
		Validate(required("Bucket name")).
		Run(); err != nil {
		return err
	}

	env[config.EnvGCSBucket] = strings.TrimSpace(bucket)
	return nil
}

func writeEnvFile(env map[string]string) error {
	f, err := os.Create(".env")
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	for _, key := range envOrder {
		if val, ok := env[key]; ok && val != "" {
			_, _ = fmt.Fprintf(f, "%s=%s\n", key, val)
		}
	}

	fmt.Println(successStyle.Render("✓ Created .env file"))
	printNextSteps()
	return nil
}

func printNextSteps() {
	fmt.Println()
	fmt.Println(titleStyle.Render("Next steps:"))
	fmt.Println("  1. Check credentials: vidrelay auth status --check")
	fmt.Println("  2. Run: vidrelay upload --video-url <url> --title \"your title\" --unique-id <id>")
	fmt.Println("  3. Poll: vidrelay result --id <id>")
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func runSetupCmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %s", err, stderr.String())
	}
	return nil
}

func runWithSpinner(title string, fn func() error) error {
	var err error
	_ = spinner.New().
		Title(title).
		Action(func() { err = fn() }).
		Run()
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ " + title))
	return nil
}
