package equation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haptable/haptable/internal/httputil"
)

func TestRemoteParser(t *testing.T) {
	t.Parallel()

	var gotReq remoteRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(remoteResponse{
			Name:       "wave",
			Expression: "100*sin(x/50)",
			Display:    "y = 100 sin(x/50)",
		})
	}))
	defer ts.Close()

	p := NewRemoteParser(ts.URL)
	res, err := p.Parse(context.Background(), "draw a wave across the table")
	require.NoError(t, err)

	assert.Equal(t, "draw a wave across the table", gotReq.Text)
	assert.Equal(t, "wave", res.Name)
	assert.Equal(t, "y = 100 sin(x/50)", res.Display)
	assert.InDelta(t, 0, evalAt(t, res, 0), 1e-12)
}

func TestRemoteParserErrorStatus(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cannot interpret input", http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	_, err := NewRemoteParser(ts.URL).Parse(context.Background(), "???")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnparsable)
	assert.Contains(t, err.Error(), "cannot interpret input")
}

func TestRemoteParserBadJSON(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer ts.Close()

	_, err := NewRemoteParser(ts.URL).Parse(context.Background(), "wave")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnparsable)
}

func TestRemoteParserEmptyExpression(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(remoteResponse{Name: "nothing"})
	}))
	defer ts.Close()

	_, err := NewRemoteParser(ts.URL).Parse(context.Background(), "wave")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnparsable)
}

func TestRemoteParserUncompilableExpression(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(remoteResponse{Expression: "2x"})
	}))
	defer ts.Close()

	_, err := NewRemoteParser(ts.URL).Parse(context.Background(), "a line")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnparsable)
}

func TestRemoteParserUnreachable(t *testing.T) {
	t.Parallel()
	p := NewRemoteParser("http://127.0.0.1:1/parse")

	_, err := p.Parse(context.Background(), "wave")
	require.Error(t, err)
	// Network failure is not an unparsable-input condition.
	assert.NotErrorIs(t, err, ErrUnparsable)
}

func TestRemoteParserRequestShape(t *testing.T) {
	t.Parallel()
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"name":"line","expression":"x/2"}`)

	p := NewRemoteParser("http://parser.internal/parse")
	p.client = mock

	res, err := p.Parse(context.Background(), "a gentle slope")
	require.NoError(t, err)
	assert.Equal(t, "line", res.Name)

	require.Equal(t, 1, mock.RequestCount())
	req := mock.GetRequest(0)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "http://parser.internal/parse", req.URL.String())
}

func TestRemoteParserTransportError(t *testing.T) {
	t.Parallel()
	mock := httputil.NewMockHTTPClient()
	mock.AddErrorResponse(errors.New("connection reset"))

	p := NewRemoteParser("http://parser.internal/parse")
	p.client = mock

	_, err := p.Parse(context.Background(), "wave")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NotErrorIs(t, err, ErrUnparsable)
}
