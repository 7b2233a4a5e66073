package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/EvianLUO/bertopic-analysis-tool/internal/apperr"
)

func ok(name, value string) Provider[string] {
	return Provider[string]{Name: name, Load: func(context.Context) (string, error) { return value, nil }}
}

func failing(name string, err error) Provider[string] {
	return Provider[string]{Name: name, Load: func(context.Context) (string, error) { return "", err }}
}

func TestChain_FirstSuccessWins(t *testing.T) {
	calls := 0
	second := Provider[string]{Name: "b", Load: func(context.Context) (string, error) {
		calls++
		return "B", nil
	}}
	c := New("test", nil, ok("a", "A"), second)

	v, name, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A", v)
	assert.Equal(t, "a", name)
	assert.Zero(t, calls)
}

func TestChain_FallsBackAndLogsWarn(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := New("segmenter", zap.New(core), failing("jieba", errors.New("dictionary missing")), ok("default", "D"))

	v, name, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "D", v)
	assert.Equal(t, "default", name)

	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Equal(t, "jieba", warns[0].ContextMap()["provider"])
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestChain_ExhaustionCollectsEveryAttempt(t *testing.T) {
	c := New("embedding", nil, failing("local", errors.New("no file")), failing("remote", errors.New("timeout")))

	_, _, err := c.Resolve(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)

	var re *apperr.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Contains(t, err.Error(), "no file")
	assert.Contains(t, err.Error(), "timeout")
}

func TestChain_RecoversProviderPanic(t *testing.T) {
	boom := Provider[string]{Name: "boom", Load: func(context.Context) (string, error) { panic("bad dictionary") }}
	c := New("segmenter", nil, boom, ok("default", "D"))

	v, _, err := c.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "D", v)
}

func TestChain_AppendSkipsDuplicates(t *testing.T) {
	c := New("x", nil, ok("lsa", "1"))
	c.Append(ok("lsa", "2"))
	c.Append(ok("remote", "3"))
	assert.Equal(t, []string{"lsa", "remote"}, c.Names())
}

func TestChain_Empty(t *testing.T) {
	_, _, err := New[string]("x", nil).Resolve(context.Background())
	assert.ErrorIs(t, err, ErrExhausted)
}
