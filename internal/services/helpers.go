package services

import (
	"context"
	"strings"
)

// ensureContext guards against nil contexts reaching gorm.
func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// normaliseEmail lowercases and trims an email address for comparisons.
func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
