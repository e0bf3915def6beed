package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr string
	}{
		{"https://93.184.216.34/api/webhooks/1/abc", ""},
		{"http://93.184.216.34/hook", "https"},
		{"https://localhost/hook", "not allowed"},
		{"https://127.0.0.1/hook", "loopback"},
		{"https://10.0.0.5/hook", "private"},
		{"https://169.254.169.254/latest", "link-local"},
		{"https://0.0.0.0/hook", "unspecified"},
		{"https:///nohost", "host"},
		{"://bad", "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateWebhookURL(context.Background(), tt.url)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
