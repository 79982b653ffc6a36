package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Privacy string

const (
	PrivacyPrivate  Privacy = "private"
	PrivacyPublic   Privacy = "public"
	PrivacyUnlisted Privacy = "unlisted"
)

const DefaultCategoryID = "22"

// Categories lists the assignable YouTube video category codes.
var Categories = map[string]string{
	"1":  "Film & Animation",
	"2":  "Autos & Vehicles",
	"10": "Music",
	"15": "Pets & Animals",
	"17": "Sports",
	"19": "Travel & Events",
	"20": "Gaming",
	"22": "People & Blogs",
	"23": "Comedy",
	"24": "Entertainment",
	"25": "News & Politics",
	"26": "Howto & Style",
	"27": "Education",
	"28": "Science & Technology",
	"29": "Nonprofits & Activism",
}

var ErrInvalidRequest = errors.New("invalid upload request")

// Trigger is the inbound payload as delivered by the workflow engine.
type Trigger struct {
	VideoURL    string `json:"video_url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
	CategoryID  string `json:"category_id"`
	Privacy     string `json:"privacy"`
	UniqueID    string `json:"unique_id,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// UploadRequest is a validated Trigger. It is built once per run and not
// modified afterwards.
type UploadRequest struct {
	SourceURL     string
	Title         string
	Description   string
	Tags          []string
	CategoryID    string
	Privacy       Privacy
	CorrelationID string
	CallbackURL   string
}

type UploadOutcome struct {
	Success   bool   `json:"success"`
	VideoID   string `json:"video_id,omitempty"`
	VideoURL  string `json:"video_url,omitempty"`
	Error     string `json:"error,omitempty"`
	Title     string `json:"title"`
	UniqueID  string `json:"unique_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

func ParseTrigger(data []byte) (Trigger, error) {
	var t Trigger
	if err := json.Unmarshal(data, &t); err != nil {
		return Trigger{}, fmt.Errorf("%w: parse payload: %v", ErrInvalidRequest, err)
	}
	return t, nil
}

func ParseRequest(t Trigger) (UploadRequest, error) {
	sourceURL := strings.TrimSpace(t.VideoURL)
	if sourceURL == "" {
		return UploadRequest{}, fmt.Errorf("%w: video_url is required", ErrInvalidRequest)
	}
	if err := validateHTTPURL(sourceURL); err != nil {
		return UploadRequest{}, fmt.Errorf("%w: video_url: %v", ErrInvalidRequest, err)
	}

	title := strings.TrimSpace(t.Title)
	if title == "" {
		return UploadRequest{}, fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}

	category := strings.TrimSpace(t.CategoryID)
	if category == "" {
		category = DefaultCategoryID
	}
	if _, ok := Categories[category]; !ok {
		return UploadRequest{}, fmt.Errorf("%w: unknown category_id %q", ErrInvalidRequest, category)
	}

	privacy, err := ParsePrivacy(t.Privacy)
	if err != nil {
		return UploadRequest{}, err
	}

	// The id is used verbatim as the store key.
	uniqueID := t.UniqueID
	if uniqueID != strings.TrimSpace(uniqueID) {
		return UploadRequest{}, fmt.Errorf("%w: unique_id must not have leading or trailing whitespace", ErrInvalidRequest)
	}
	if strings.ContainsAny(uniqueID, "/\\") {
		return UploadRequest{}, fmt.Errorf("%w: unique_id must not contain path separators", ErrInvalidRequest)
	}

	callback := strings.TrimSpace(t.CallbackURL)
	if callback != "" {
		if err := validateHTTPURL(callback); err != nil {
			return UploadRequest{}, fmt.Errorf("%w: callback_url: %v", ErrInvalidRequest, err)
		}
	}

	return UploadRequest{
		SourceURL:     sourceURL,
		Title:         title,
		Description:   t.Description,
		Tags:          ParseTags(t.Tags),
		CategoryID:    category,
		Privacy:       privacy,
		CorrelationID: uniqueID,
		CallbackURL:   callback,
	}, nil
}

func ParsePrivacy(s string) (Privacy, error) {
	switch p := Privacy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PrivacyPrivate, nil
	case PrivacyPrivate, PrivacyPublic, PrivacyUnlisted:
		return p, nil
	default:
		return "", fmt.Errorf("%w: privacy must be private, public or unlisted, got %q", ErrInvalidRequest, s)
	}
}

// ParseTags splits a comma-separated list, trimming each element and
// dropping empty ones.
func ParseTags(s string) []string {
	var tags []string
	for _, part := range strings.Split(s, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func Succeeded(req UploadRequest, videoID, videoURL string, now time.Time) *UploadOutcome {
	return &UploadOutcome{
		Success:   true,
		VideoID:   videoID,
		VideoURL:  videoURL,
		Title:     req.Title,
		UniqueID:  req.CorrelationID,
		Timestamp: formatTimestamp(now),
	}
}

func Failed(req UploadRequest, err error, now time.Time) *UploadOutcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &UploadOutcome{
		Success:   false,
		Error:     msg,
		Title:     req.Title,
		UniqueID:  req.CorrelationID,
		Timestamp: formatTimestamp(now),
	}
}

func (o *UploadOutcome) CreatedAt() (time.Time, error) {
	return time.Parse(time.RFC3339, o.Timestamp)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
