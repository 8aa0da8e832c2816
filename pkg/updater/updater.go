// Package updater asks the Spicord API whether a newer version exists.
package updater

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lunemec/spicord/pkg/scheduler"
)

// Version of the request headers understood by the API.
const protocolVersion = "1.0"

const timeout = 10 * time.Second

// Notifier checks the update URL and logs the messages it returns.
type Notifier struct {
	url      string
	log      *zap.Logger
	logError bool
	client   *http.Client
}

// New returns a Notifier querying url. A %version% placeholder in url is
// replaced by the checked version. Check errors are logged only when
// logError is set.
func New(log *zap.Logger, url string, logError bool) *Notifier {
	client := httpcache.NewMemoryCacheTransport().Client()
	client.Timeout = timeout
	return &Notifier{
		url:      url,
		log:      log,
		logError: logError,
		client:   client,
	}
}

type response struct {
	Message json.RawMessage `json:"message"`
}

// Check queries the update URL for version and logs every returned message.
// It returns the messages.
func (n *Notifier) Check(ctx context.Context, version string, extra map[string]string) ([]string, error) {
	url := strings.ReplaceAll(n.url, "%version%", version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create request for %s", url)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("X-Updater-Version", protocolVersion)
	req.Header.Set("X-Plugin-Version", version)
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "unable to check for updates")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "unable to decode update response")
	}
	messages, err := decodeMessages(body.Message)
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		n.log.Info(m)
	}
	return messages, nil
}

// decodeMessages accepts a single string or an array of strings.
func decodeMessages(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, errors.Wrapf(err, "unexpected update message: %s", raw)
	}
	return many, nil
}

// CheckAsync runs Check on s. The returned task holds the messages.
func (n *Notifier) CheckAsync(s scheduler.Scheduler, version string, extra map[string]string) *scheduler.Task {
	return s.RunAsync(func() (interface{}, error) {
		messages, err := n.Check(context.Background(), version, extra)
		if err != nil && n.logError {
			n.log.Error("Update check failed", zap.Error(err))
		}
		return messages, err
	})
}
