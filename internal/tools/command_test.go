package tools

import (
	"context"
	"testing"
	"time"

	"github.com/lgulliver/docdesk/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRunner_Success(t *testing.T) {
	out, err := NewCommandRunner().Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestCommandRunner_FailureUsesStderr(t *testing.T) {
	_, err := NewCommandRunner().Run(context.Background(), "sh", "-c", "echo 'warning: x' >&2; echo 'Error: cannot open /tmp/secret/in.pdf' >&2; exit 3")

	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindToolExecution))
	assert.Equal(t, "sh failed (exit code 3): Error: cannot open in.pdf", common.PublicMessage(err))
}

func TestCommandRunner_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewCommandRunner().Run(ctx, "sleep", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestCommandRunner_NotInstalled(t *testing.T) {
	_, err := NewCommandRunner().Run(context.Background(), "docdesk-no-such-binary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not installed")
}
