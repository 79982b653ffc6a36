package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"vidrelay/internal/app"
	"vidrelay/internal/app/model"
	"vidrelay/pkg/config"
)

var (
	uploadSuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	uploadErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	uploadWarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var errUploadFailed = errors.New("upload failed")

var (
	uploadPayload string
	uploadTrigger model.Trigger
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Fetch a video and upload it to YouTube",
	Long: `Fetch a video from a URL and upload it to YouTube. The outcome is written to the
result store under --unique-id and posted to --callback-url when given.

A trigger payload can be read with --payload (a file, or - for stdin). Flags
override the matching payload fields.`,
	Example: `  vidrelay upload --video-url https://example.com/a.mp4 --title "Launch" --unique-id abc-123
  vidrelay upload --payload trigger.json
  echo '{"video_url":"https://example.com/a.mp4","title":"T"}' | vidrelay upload --payload -`,
	RunE: runUpload,
}

func init() {
	flags := uploadCmd.Flags()
	flags.StringVarP(&uploadPayload, "payload", "p", "", "Trigger payload JSON file, or - for stdin")
	flags.StringVar(&uploadTrigger.VideoURL, "video-url", "", "URL of the source video")
	flags.StringVarP(&uploadTrigger.Title, "title", "t", "", "Video title")
	flags.StringVarP(&uploadTrigger.Description, "description", "d", "", "Video description")
	flags.StringVar(&uploadTrigger.Tags, "tags", "", "Comma-separated tags")
	flags.StringVar(&uploadTrigger.CategoryID, "category-id", "", "YouTube category id (default 22)")
	flags.StringVar(&uploadTrigger.Privacy, "privacy", "", "private, public or unlisted (default private)")
	flags.StringVar(&uploadTrigger.UniqueID, "unique-id", "", "Correlation id used as the result store key")
	flags.StringVar(&uploadTrigger.CallbackURL, "callback-url", "", "URL that receives the outcome as a JSON POST")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	trigger, err := loadTrigger(cmd.InOrStdin(), uploadPayload, uploadTrigger, cmd.Flags())
	if err != nil {
		return err
	}

	req, err := model.ParseRequest(trigger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	service, err := app.BuildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = service.Close() }()

	report := app.NewPipeline(service).Run(ctx, req)
	printReport(cmd.OutOrStdout(), report)

	if !report.Outcome.Success {
		return errUploadFailed
	}
	return nil
}

// loadTrigger reads the payload, if any, and lays the changed flags over it.
func loadTrigger(stdin io.Reader, payload string, fromFlags model.Trigger, flags *pflag.FlagSet) (model.Trigger, error) {
	var trigger model.Trigger

	if payload != "" {
		data, err := readPayload(stdin, payload)
		if err != nil {
			return model.Trigger{}, err
		}
		if trigger, err = model.ParseTrigger(data); err != nil {
			return model.Trigger{}, err
		}
	}

	overrides := []struct {
		flag string
		dst  *string
		src  string
	}{
		{"video-url", &trigger.VideoURL, fromFlags.VideoURL},
		{"title", &trigger.Title, fromFlags.Title},
		{"description", &trigger.Description, fromFlags.Description},
		{"tags", &trigger.Tags, fromFlags.Tags},
		{"category-id", &trigger.CategoryID, fromFlags.CategoryID},
		{"privacy", &trigger.Privacy, fromFlags.Privacy},
		{"unique-id", &trigger.UniqueID, fromFlags.UniqueID},
		{"callback-url", &trigger.CallbackURL, fromFlags.CallbackURL},
	}
	for _, o := range overrides {
		if flags.Changed(o.flag) {
			*o.dst = o.src
		}
	}

	return trigger, nil
}

func readPayload(stdin io.Reader, payload string) ([]byte, error) {
	if payload == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return data, nil
}

func printReport(w io.Writer, report *app.Report) {
	outcome := report.Outcome
	if outcome.Success {
		_, _ = fmt.Fprintln(w, uploadSuccessStyle.Render("✓ Uploaded: "+outcome.VideoURL))
	} else {
		_, _ = fmt.Fprintln(w, uploadErrorStyle.Render("✗ Upload failed: "+outcome.Error))
	}

	if report.StoreErr != nil {
		_, _ = fmt.Fprintln(w, uploadWarnStyle.Render("! Result not recorded: "+report.StoreErr.Error()))
	}
	if report.NotifyErr != nil {
		_, _ = fmt.Fprintln(w, uploadWarnStyle.Render("! Callback not delivered: "+report.NotifyErr.Error()))
	}
	if report.SweepErr != nil {
		_, _ = fmt.Fprintln(w, uploadWarnStyle.Render("! Sweep failed: "+report.SweepErr.Error()))
	}

	data, err := json.MarshalIndent(outcome, "", "  ")
	if err == nil {
		_, _ = fmt.Fprintln(w, string(data))
	}
}
