package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	resp Response
	err  error
	got  Request
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req Request) (Response, error) {
	f.got = req
	return f.resp, f.err
}

func TestAnalyzer_FakeRoundTrip(t *testing.T) {
	raw := []byte(`{"verdicts": [{"signature": "sig1"}, {"signature": "sig2"}]}`)
	fake := &fakeAnalyzer{resp: Response{Raw: raw}}

	req := Request{
		Items:         []PayloadItem{{Signature: "sig1"}, {Signature: "sig2"}},
		PromptVersion: "prompt-v1",
	}
	resp, err := fake.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req, fake.got)

	verdicts, err := ParseVerdicts(resp.Raw)
	require.NoError(t, err)
	require.Len(t, verdicts, 2)
}

func TestParseVerdicts_MalformedEnvelope(t *testing.T) {
	_, err := ParseVerdicts([]byte(`not json`))
	assert.Error(t, err)
}
