package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigCmd_ValidatesShippedDefaults(t *testing.T) {
	configValidatePath = "../engineconfig/defaults.yaml"
	require.NoError(t, configCmd.RunE(configCmd, nil))
}

func TestConfigCmd_RejectsMissingFile(t *testing.T) {
	configValidatePath = "../engineconfig/does-not-exist.yaml"
	require.Error(t, configCmd.RunE(configCmd, nil))
}
