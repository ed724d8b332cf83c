package gtranslate

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v3"

	"github.com/openvoices/insights-backend/internal/platform/logger"
)

const requestTimeout = 30 * time.Second

// Client wraps the Cloud Translation API as a translation backend.
type Client struct {
	log     *logger.Logger
	service *translate.Service
	parent  string
}

func New(ctx context.Context, log *logger.Logger, projectID string, opts ...option.ClientOption) (*Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("gtranslate: project id is empty")
	}
	service, err := translate.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gtranslate: create translate service: %w", err)
	}
	return &Client{
		log:     log.With("service", "TranslateClient"),
		service: service,
		parent:  "projects/" + projectID,
	}, nil
}

func (c *Client) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	resp, err := c.service.Projects.TranslateText(c.parent, &translate.TranslateTextRequest{
		Contents:           []string{text},
		TargetLanguageCode: targetLanguage,
		MimeType:           "text/plain",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gtranslate: translate to %q: %w", targetLanguage, err)
	}
	if len(resp.Translations) == 0 {
		return "", fmt.Errorf("gtranslate: empty response for target %q", targetLanguage)
	}
	return resp.Translations[0].TranslatedText, nil
}

func (c *Client) SupportedLanguages(ctx context.Context) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	resp, err := c.service.Projects.GetSupportedLanguages(c.parent).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gtranslate: supported languages: %w", err)
	}
	languages := make(map[string]struct{}, len(resp.Languages))
	for _, lang := range resp.Languages {
		if lang.SupportTarget {
			languages[lang.LanguageCode] = struct{}{}
		}
	}
	return languages, nil
}
