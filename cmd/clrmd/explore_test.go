package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func testCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.SetOut(&bytes.Buffer{})
	return cmd
}

func TestRunExploreCommandQuit(t *testing.T) {
	cmd := testCmd()
	err := runExploreCommand(cmd, &flatReader{}, []string{"quit"})
	assert.Equal(t, errQuit, err)
}

func TestRunExploreCommandUnknown(t *testing.T) {
	cmd := testCmd()
	err := runExploreCommand(cmd, &flatReader{}, []string{"frobnicate"})
	assert.Error(t, err)
}

func TestRunExploreCommandHelp(t *testing.T) {
	cmd := testCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	err := runExploreCommand(cmd, &flatReader{}, []string{"help"})
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "commands:")
}

func TestRunExploreCommandReadBadAddress(t *testing.T) {
	cmd := testCmd()
	err := runExploreCommand(cmd, &flatReader{}, []string{"read", "notHex"})
	assert.Error(t, err)
}

func TestRunExploreCommandReadDispatchesToDumpMemory(t *testing.T) {
	cmd := testCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	reader := &flatReader{base: 0x1000, data: make([]byte, 16)}
	err := runExploreCommand(cmd, reader, []string{"read", "1000", "16"})
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "0x1000:")
}

func TestRunExploreCommandModuleRequiresArgs(t *testing.T) {
	cmd := testCmd()
	err := runExploreCommand(cmd, &flatReader{}, []string{"module", "1000"})
	assert.Error(t, err)
}
