// Package prompt turns short user descriptions into richer prompts for the
// image-to-video back-ends.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Enhancer rewrites a short prompt into a detailed cinematic description.
type Enhancer interface {
	Enhance(ctx context.Context, original string) (string, error)
}

// StaticEnhancer is the offline fallback used when no LLM credentials are
// configured. It decorates the prompt deterministically instead of calling
// out.
type StaticEnhancer struct{}

// NewStaticEnhancer creates the fallback enhancer.
func NewStaticEnhancer() *StaticEnhancer {
	return &StaticEnhancer{}
}

// Enhance wraps the original prompt in a fixed cinematic frame.
func (s *StaticEnhancer) Enhance(ctx context.Context, original string) (string, error) {
	trimmed := strings.TrimSpace(original)
	if trimmed == "" {
		return "", fmt.Errorf("prompt is empty")
	}
	c := cases.Title(language.Und)
	subject := c.String(trimmed)
	return fmt.Sprintf(
		"%s. Soft golden-hour lighting, shallow depth of field, slow dolly-in camera movement, rich natural textures, calm atmosphere.",
		strings.TrimSuffix(subject, "."),
	), nil
}

var _ Enhancer = (*StaticEnhancer)(nil)
