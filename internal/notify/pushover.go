package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shouni/go-http-kit/pkg/httpkit"
)

// PushoverEndpoint is the Pushover messages API.
const PushoverEndpoint = "https://api.pushover.net/1/messages.json"

const pushoverTitle = "✨ Shiny Pokémon Alert! ✨"

// Pushover sends shiny alerts to a phone via Pushover. Other event kinds are ignored.
type Pushover struct {
	userKey  string
	apiToken string
	endpoint string
	client   *httpkit.Client
}

// NewPushover builds a Pushover channel with retrying HTTP.
func NewPushover(userKey, apiToken string, timeout time.Duration) *Pushover {
	return &Pushover{
		userKey:  strings.TrimSpace(userKey),
		apiToken: strings.TrimSpace(apiToken),
		endpoint: PushoverEndpoint,
		client:   httpkit.New(timeout),
	}
}

// Configured reports whether real credentials are present.
// Placeholder values from the sample config (YOUR_...) count as missing.
func (p *Pushover) Configured() bool {
	return PushoverConfigured(p.userKey, p.apiToken)
}

// PushoverConfigured applies the credential check to raw values.
func PushoverConfigured(userKey, apiToken string) bool {
	userKey = strings.TrimSpace(userKey)
	apiToken = strings.TrimSpace(apiToken)
	if userKey == "" || apiToken == "" {
		return false
	}
	return !strings.Contains(userKey, "YOUR_") && !strings.Contains(apiToken, "YOUR_")
}

type pushoverReply struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

func (p *Pushover) Notify(ctx context.Context, event Event) error {
	if event.Kind != KindShiny {
		return nil
	}
	if !p.Configured() {
		return fmt.Errorf("pushover credentials not configured")
	}

	form := url.Values{}
	form.Set("token", p.apiToken)
	form.Set("user", p.userKey)
	form.Set("title", pushoverTitle)
	form.Set("message", event.Message())
	form.Set("timestamp", fmt.Sprintf("%d", event.At.Unix()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build pushover request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := p.client.DoRequest(req)
	if err != nil {
		return fmt.Errorf("pushover request: %w", err)
	}

	var reply pushoverReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("decode pushover reply: %w", err)
	}
	if reply.Status != 1 {
		return fmt.Errorf("pushover rejected message: %s", strings.Join(reply.Errors, "; "))
	}
	return nil
}
