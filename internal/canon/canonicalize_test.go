package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCanonicalizer(t *testing.T) *Canonicalizer {
	t.Helper()
	c, err := New(writeTestPSL(t), DefaultConfig())
	require.NoError(t, err)
	return c
}

func TestCanonicalize_StripsTrackingParamsKeepsRest(t *testing.T) {
	c := newTestCanonicalizer(t)

	res, err := c.Canonicalize("https://Example.com/a?utm_source=x&b=2&a=1")
	require.NoError(t, err)

	assert.Equal(t, "example.com", res.NormalizedHost)
	assert.Equal(t, "a=1&b=2", res.NormalizedQuery)
	assert.Equal(t, 2, res.ParamCount)
}

func TestCanonicalize_StripsDefaultPorts(t *testing.T) {
	c := newTestCanonicalizer(t)

	res, err := c.Canonicalize("https://example.com:443/x")
	require.NoError(t, err)
	assert.Equal(t, "example.com", res.NormalizedHost)

	res, err = c.Canonicalize("https://example.com:8443/x")
	require.NoError(t, err)
	assert.Equal(t, "example.com:8443", res.NormalizedHost)
}

func TestCanonicalize_AbstractsUUIDPathSegment(t *testing.T) {
	c := newTestCanonicalizer(t)

	res, err := c.Canonicalize("https://example.com/users/550e8400-e29b-41d4-a716-446655440000/profile")
	require.NoError(t, err)

	assert.Equal(t, "/users/:uuid/profile", res.NormalizedPath)
	require.Len(t, res.PII, 1)
	assert.Equal(t, "path", res.PII[0].FieldSource)
}

func TestCanonicalize_AbstractsEmailQueryValue(t *testing.T) {
	c := newTestCanonicalizer(t)

	res, err := c.Canonicalize("https://example.com/?email=user@example.com")
	require.NoError(t, err)

	assert.Equal(t, "email=:email", res.NormalizedQuery)
	require.Len(t, res.PII, 1)
	assert.Equal(t, "query:email", res.PII[0].FieldSource)
	assert.Equal(t, "user@example.com", res.PII[0].Original)
}

func TestCanonicalize_CollapsesRepeatedSlashesAndDotSegments(t *testing.T) {
	c := newTestCanonicalizer(t)

	res, err := c.Canonicalize("https://example.com/a//b/../c/")
	require.NoError(t, err)
	assert.Equal(t, "/a/c", res.NormalizedPath)
}

func TestCanonicalize_EmptyURLIsError(t *testing.T) {
	c := newTestCanonicalizer(t)
	_, err := c.Canonicalize("   ")
	assert.Error(t, err)
}

func TestCanonicalize_DropsEmptyValueQueryKeys(t *testing.T) {
	c := newTestCanonicalizer(t)
	res, err := c.Canonicalize("https://example.com/?a=1&empty=")
	require.NoError(t, err)
	assert.Equal(t, "a=1", res.NormalizedQuery)
}

func TestCanonicalize_AbstractsBase64LikePathSegment(t *testing.T) {
	c := newTestCanonicalizer(t)

	res, err := c.Canonicalize("https://example.com/sessions/QWxhZGRpbjpvcGVuU2VzYW1lMTIzNDU2Nzg5/status")
	require.NoError(t, err)

	assert.Equal(t, "/sessions/:tok/status", res.NormalizedPath)
	require.Len(t, res.PII, 1)
	assert.Equal(t, "path", res.PII[0].FieldSource)
}

func TestCanonicalize_AbstractsIPv4QueryValue(t *testing.T) {
	c := newTestCanonicalizer(t)

	res, err := c.Canonicalize("https://example.com/?client_ip=203.0.113.42")
	require.NoError(t, err)

	assert.Equal(t, "client_ip=:ip", res.NormalizedQuery)
	require.Len(t, res.PII, 1)
	assert.Equal(t, "query:client_ip", res.PII[0].FieldSource)
	assert.Equal(t, "203.0.113.42", res.PII[0].Original)
}
