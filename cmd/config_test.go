package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaults()

	cfg, err := newPassConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "visingers", cfg.Topic)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, 0, cfg.WipeGuard)

	require.NotNil(t, cfg.Censor)
	assert.NotContains(t, cfg.Censor.CensorText("what the fuck"), "fuck")
	assert.Equal(t, "well darn it", cfg.Censor.CensorText("well darn it"))
}

func TestPassConfigCensorWordsExtendDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaults()
	viper.Set("censor.words", []string{"darn"})

	cfg, err := newPassConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "well **** it", cfg.Censor.CensorText("well darn it"))
	assert.NotContains(t, cfg.Censor.CensorText("what the fuck"), "fuck")
}

func TestPassConfigRejectsZeroConcurrency(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	setDefaults()
	viper.Set("sync.concurrency", 0)

	_, err := newPassConfig(nil)
	assert.Error(t, err)
}
