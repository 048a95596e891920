package equation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haptable/haptable/internal/httputil"
)

// RemoteParser defers free-form language ("a wave across the table")
// to an external service that answers with an explicit formula, which
// is then compiled locally so the loop never runs remote code.
type RemoteParser struct {
	url      string
	client   httputil.HTTPClient
	compiler *ExpressionParser
}

// NewRemoteParser returns a parser posting to the given endpoint.
func NewRemoteParser(url string) *RemoteParser {
	return &RemoteParser{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		compiler: NewExpressionParser(),
	}
}

type remoteRequest struct {
	Text string `json:"text"`
}

type remoteResponse struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Display    string `json:"display,omitempty"`
}

// Parse implements Parser.
func (p *RemoteParser) Parse(ctx context.Context, text string) (Result, error) {
	body, err := json.Marshal(remoteRequest{Text: text})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("equation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("%w: equation service returned %d: %s",
			ErrUnparsable, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var rr remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return Result{}, fmt.Errorf("%w: bad equation service response: %v", ErrUnparsable, err)
	}
	if rr.Expression == "" {
		return Result{}, fmt.Errorf("%w: equation service returned no expression", ErrUnparsable)
	}

	res, err := p.compiler.Parse(ctx, rr.Expression)
	if err != nil {
		return Result{}, fmt.Errorf("equation service expression %q: %w", rr.Expression, err)
	}
	if rr.Name != "" {
		res.Name = rr.Name
	}
	if rr.Display != "" {
		res.Display = rr.Display
	}
	return res, nil
}
