package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/doctor-voice-api/internal/models"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
)

// NormalizeLanguages lowercases, splits comma lists, drops duplicates while
// keeping first-seen order, and checks each code against the catalog.
func NormalizeLanguages(raw []string, max int) ([]string, error) {
	seen := make(map[string]bool)
	out := make([]string, 0, len(raw))
	var unknown []string
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			code := strings.ToLower(strings.TrimSpace(part))
			if code == "" || seen[code] {
				continue
			}
			seen[code] = true
			if _, ok := models.LookupLanguage(code); !ok {
				unknown = append(unknown, code)
				continue
			}
			out = append(out, code)
		}
	}
	if len(unknown) > 0 {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported language codes: %s", strings.Join(unknown, ", "))),
			map[string]interface{}{"unsupported_languages": unknown},
		)
	}
	if len(out) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one language is required")
	}
	if max > 0 && len(out) > max {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d languages may be selected", max))
	}
	return out, nil
}
