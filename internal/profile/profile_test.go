package profile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaultsMode(t *testing.T) {
	dir := t.TempDir()
	p := &Profile{Mode: "bogus", Data: dir, Driver: "sqlite"}

	err := p.Validate()
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Mode)
}

func TestValidateSQLiteDSN(t *testing.T) {
	dir := t.TempDir()
	p := &Profile{Mode: "dev", Data: dir, Driver: "sqlite"}

	err := p.Validate()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "refound_dev.db"), p.DSN)
}

func TestValidateKeepsExplicitDSN(t *testing.T) {
	dir := t.TempDir()
	p := &Profile{Mode: "dev", Data: dir, Driver: "postgres", DSN: "postgres://localhost/refound"}

	err := p.Validate()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/refound", p.DSN)
}

func TestValidateMissingDataDir(t *testing.T) {
	p := &Profile{Mode: "dev", Data: "/nonexistent/refound-data", Driver: "sqlite"}

	err := p.Validate()
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("REFOUND_VISION_ENABLED", "true")
	t.Setenv("REFOUND_VISION_BASE_URL", "http://clip:9000")
	t.Setenv("REFOUND_SECRET", "s3cret")

	p := &Profile{}
	p.FromEnv()

	assert.True(t, p.VisionEnabled)
	assert.Equal(t, "http://clip:9000", p.VisionBaseURL)
	assert.Equal(t, "s3cret", p.Secret)
	assert.True(t, p.IsVisionEnabled())
}

func TestIsVisionEnabledRequiresBaseURL(t *testing.T) {
	p := &Profile{VisionEnabled: true}
	assert.False(t, p.IsVisionEnabled())
}
