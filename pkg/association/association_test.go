package association

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocalVariant(t *testing.T) {
	a, err := Parse("solana-wallet://localhost:1234/v1?association=abc123")
	require.NoError(t, err)
	assert.Equal(t, VariantLocal, a.Variant)
	assert.Equal(t, "abc123", a.AssociationToken)
}

func TestParseRemoteVariant(t *testing.T) {
	a, err := Parse("solana-wallet-remote://relay.example.com/v1?association=xyz")
	require.NoError(t, err)
	assert.Equal(t, VariantRemote, a.Variant)
	assert.Equal(t, "xyz", a.AssociationToken)
}

func TestParseRejectsMissingAssociationToken(t *testing.T) {
	_, err := Parse("solana-wallet://localhost:1234/v1")
	require.Error(t, err)
}

func TestParseRejectsEmptyAssociationToken(t *testing.T) {
	_, err := Parse("solana-wallet://localhost:1234/v1?association=")
	require.Error(t, err)
}

func TestParseRejectsUnknownScheme(t *testing.T) {
	_, err := Parse("https://example.com/v1?association=abc")
	require.Error(t, err)
}

func TestParseRejectsNonHierarchicalUri(t *testing.T) {
	_, err := Parse("solana-wallet:abc?association=xyz")
	require.Error(t, err)
}

func TestParseRejectsMalformedUri(t *testing.T) {
	_, err := Parse("://not a uri")
	require.Error(t, err)
}
