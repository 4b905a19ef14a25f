package dialogue

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/paneltalk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecutor_Execute_AppendsOnSuccess(t *testing.T) {
	t.Parallel()
	tr := NewTranscript("topic", testRoster(t))
	gen := newScriptedGenerator().Script("Host", "welcome everyone")
	ex := NewExecutor(tr, gen, time.Second, zap.NewNop())

	u, err := ex.Execute(context.Background(), speaker("Host", types.RoleModerator))
	require.NoError(t, err)
	assert.Equal(t, "Host", u.Speaker)
	assert.Equal(t, "welcome everyone", u.Content)
	assert.Equal(t, 1, u.Seq)
	assert.Equal(t, 2, tr.Len())
}

func TestExecutor_Execute_GeneratorError(t *testing.T) {
	t.Parallel()
	tr := NewTranscript("topic", testRoster(t))
	gen := newScriptedGenerator().FailFirst("Engineer", 1)
	ex := NewExecutor(tr, gen, time.Second, zap.NewNop())

	_, err := ex.Execute(context.Background(), speaker("Engineer", types.RoleParticipant))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrGenerationFailure))
	assert.True(t, types.IsRetryable(err))
	assert.Equal(t, "Engineer", types.AsError(err).Speaker)
	// 失败轮次零次追加
	assert.Equal(t, 1, tr.Len())
}

func TestExecutor_Execute_EmptyContent(t *testing.T) {
	t.Parallel()
	tr := NewTranscript("topic", testRoster(t))
	gen := newScriptedGenerator().Script("Host", "   \n\t ")
	ex := NewExecutor(tr, gen, time.Second, zap.NewNop())

	_, err := ex.Execute(context.Background(), speaker("Host", types.RoleModerator))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrGenerationFailure))
	assert.Equal(t, 1, tr.Len())
}

func TestExecutor_Execute_Timeout(t *testing.T) {
	t.Parallel()
	tr := NewTranscript("topic", testRoster(t))
	ex := NewExecutor(tr, blockingGenerator{}, 20*time.Millisecond, zap.NewNop())

	ctx := context.Background()
	_, err := ex.Execute(ctx, speaker("Host", types.RoleModerator))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrGenerationFailure))
	// 超时只作用于单轮，父 ctx 不受影响
	assert.NoError(t, ctx.Err())
	assert.Equal(t, 1, tr.Len())
}

func TestExecutor_Execute_UnknownSpeakerIsFatal(t *testing.T) {
	t.Parallel()
	tr := NewTranscript("topic", testRoster(t))
	gen := newScriptedGenerator().Script("Intruder", "hello")
	ex := NewExecutor(tr, gen, time.Second, zap.NewNop())

	_, err := ex.Execute(context.Background(), speaker("Intruder", types.RoleParticipant))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidSequence))
	assert.Equal(t, 1, tr.Len())
}
