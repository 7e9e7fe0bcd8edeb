package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewEntitlementConfigHolder_DefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	holder, err := NewEntitlementConfigHolder(Config{}, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, DefaultAllowedSlugs, cfg.AllowedSlugs)
	assert.Equal(t, SubscriptionTerm{Years: 1}, cfg.Subscription)
}

func TestNewEntitlementConfigHolder_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entitlements.yml")
	content := []byte(`entitlements:
  allowedSlugs:
    - " CSV_Exports "
    - messages
    - messages
  subscription:
    years: 0
    months: 6
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewEntitlementConfigHolder(Config{EntitlementsConfig: path}, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, []string{"csv_exports", "messages"}, holder.AllowedSlugs())
	assert.Equal(t, SubscriptionTerm{Months: 6}, cfg.Subscription)
}

func TestNewEntitlementConfigHolder_RejectsEmptyTerm(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entitlements.yml")
	content := []byte(`entitlements:
  subscription:
    years: 0
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, err := NewEntitlementConfigHolder(Config{EntitlementsConfig: path}, zap.NewNop())
	assert.Error(t, err)
}
