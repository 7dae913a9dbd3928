package store

import (
	"bytes"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/voxwork/voxwork/internal/infrastructure/logging"
	"github.com/voxwork/voxwork/internal/shared/types"
)

// Beacon delivers tab saves on the page-hide/unload path. Nobody waits on
// the result; the retryable client keeps trying briefly in the background so
// delivery can complete even as the caller tears down.
type Beacon struct {
	http *retryablehttp.Client
	base string
	log  *logging.Logger
}

// NewBeacon creates a beacon client for the given store base URL.
func NewBeacon(baseURL string, log *logging.Logger) *Beacon {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 500 * time.Millisecond
	client.HTTPClient.Timeout = 3 * time.Second
	client.Logger = nil

	return &Beacon{
		http: client,
		base: baseURL,
		log:  log.Named("beacon"),
	}
}

// SendTabs fires a tab save and returns immediately.
func (b *Beacon) SendTabs(projectID string, tabs []types.Tab) {
	payload, err := sonic.Marshal(map[string]interface{}{"tabs": tabs})
	if err != nil {
		b.log.Error("beacon encode failed", zap.Error(err))
		return
	}

	url := fmt.Sprintf("%s/projects/%s/tabs", b.base, projectID)
	go func() {
		req, err := retryablehttp.NewRequest("PATCH", url, bytes.NewReader(payload))
		if err != nil {
			b.log.Error("beacon request build failed", zap.Error(err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := b.http.Do(req)
		if err != nil {
			b.log.Warn("beacon delivery failed", zap.String("project_id", projectID), zap.Error(err))
			return
		}
		resp.Body.Close()
	}()
}
