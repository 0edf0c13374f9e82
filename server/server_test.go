package server

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callscribe/callscribe/config"
	"github.com/callscribe/callscribe/llm"
)

type stubAnalyzer struct {
	analysis *llm.Analysis
	err      error
	gotInput string
}

func (a *stubAnalyzer) Extract(_ context.Context, transcript string) (*llm.Analysis, error) {
	a.gotInput = transcript
	if a.err != nil {
		return nil, a.err
	}
	return a.analysis, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Port:             "3000",
		AssemblyAIURL:    "ws://127.0.0.1:1/v3/ws",
		AssemblyAIAPIKey: "aai-key",
		OpenAIAPIKey:     "oai-key",
		OpenAIModel:      "gpt-4o-mini",
	}
}

func newTestServer(analyzer Analyzer) *Server {
	return New(testConfig(), analyzer, log.New(io.Discard))
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&stubAnalyzer{})

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestMetricsExposed(t *testing.T) {
	srv := newTestServer(&stubAnalyzer{})

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestStreamRequiresWebSocketUpgrade(t *testing.T) {
	srv := newTestServer(&stubAnalyzer{})

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/stream", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 426, resp.StatusCode)
}

func TestAnalyzeSuccess(t *testing.T) {
	analyzer := &stubAnalyzer{
		analysis: &llm.Analysis{
			Transcript:  "we talked about Acme",
			Competitors: []string{"Acme"},
			Objections: []llm.Objection{
				{Type: "pricing", Description: "Too expensive", Address: "Highlight ROI"},
			},
		},
	}
	srv := newTestServer(analyzer)

	req := httptest.NewRequest("POST", "/analyze",
		strings.NewReader(`{"transcript":"we talked about Acme"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"transcript": "we talked about Acme",
		"competitors": ["Acme"],
		"objections": [
			{"type": "pricing", "description": "Too expensive", "address": "Highlight ROI"}
		]
	}`, string(body))
	assert.Equal(t, "we talked about Acme", analyzer.gotInput)
}

func TestAnalyzeMissingTranscript(t *testing.T) {
	srv := newTestServer(&stubAnalyzer{})

	for _, body := range []string{`{}`, `{"transcript":""}`, `{"transcript":"   "}`} {
		req := httptest.NewRequest("POST", "/analyze", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := srv.App().Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, 400, resp.StatusCode, "body %q", body)
	}
}

func TestAnalyzeInvalidJSON(t *testing.T) {
	srv := newTestServer(&stubAnalyzer{})

	req := httptest.NewRequest("POST", "/analyze", strings.NewReader(`not json`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 400, resp.StatusCode)
}

func TestAnalyzeUpstreamFailure(t *testing.T) {
	srv := newTestServer(&stubAnalyzer{err: errors.New("model output failed validation")})

	req := httptest.NewRequest("POST", "/analyze",
		strings.NewReader(`{"transcript":"hello"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 502, resp.StatusCode)
}
