package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Hour)

	token, expiresAt, err := signer.Generate("job-42", "reports/gateways.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.True(t, expiresAt.After(time.Now()))

	jobID, relPath, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "job-42", jobID)
	require.Equal(t, "reports/gateways.pdf", relPath)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Hour)
	token, _, err := signer.Generate("job-42", "reports/gateways.pdf")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 4)
	parts[0] = "job-43"
	_, _, _, err = signer.Parse(strings.Join(parts, "."), false)
	require.ErrorContains(t, err, "signature mismatch")

	otherSigner := NewSignedURLSigner("different-secret", time.Hour)
	_, _, _, err = otherSigner.Parse(token, false)
	require.ErrorContains(t, err, "signature mismatch")

	_, _, _, err = signer.Parse("not-a-token", false)
	require.ErrorContains(t, err, "malformed")
}

func TestSignedURLSignerExpiry(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", 10*time.Millisecond)
	token, _, err := signer.Generate("job-42", "reports/issues.csv")
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	_, _, _, err = signer.Parse(token, false)
	require.ErrorContains(t, err, "expired")

	// Cleanup still needs the path out of an expired token.
	jobID, relPath, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "job-42", jobID)
	require.Equal(t, "reports/issues.csv", relPath)
}

func TestSignedURLSignerRequiresInputs(t *testing.T) {
	signer := NewSignedURLSigner("test-secret", time.Hour)
	_, _, err := signer.Generate("", "reports/issues.csv")
	require.Error(t, err)
	_, _, err = signer.Generate("job-42", "")
	require.Error(t, err)

	empty := NewSignedURLSigner("", time.Hour)
	_, _, err = empty.Generate("job-42", "reports/issues.csv")
	require.ErrorContains(t, err, "secret")
}
