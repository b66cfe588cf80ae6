package log

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsValidate(t *testing.T) {
	t.Run("Name is required", func(t *testing.T) {
		opts := Options{}
		assert.Error(t, opts.Validate())
	})

	t.Run("Negative rotation values rejected", func(t *testing.T) {
		opts := Options{Name: "test", MaxAge: -1}
		assert.Error(t, opts.Validate())

		opts = Options{Name: "test", MaxSizeMB: -1}
		assert.Error(t, opts.Validate())

		opts = Options{Name: "test", MaxBackups: -1}
		assert.Error(t, opts.Validate())
	})

	t.Run("Valid options pass", func(t *testing.T) {
		opts := Options{Name: "test", MaxAge: 7}
		assert.NoError(t, opts.Validate())
	})
}

func TestHookRouting(t *testing.T) {
	newEntry := func(level Level, msg string) *Entry {
		logger := logrus.New()
		entry := logrus.NewEntry(logger)
		entry.Level = level
		entry.Message = msg
		return entry
	}

	t.Run("Error goes to critical and main", func(t *testing.T) {
		var mainBuf, criticalBuf bytes.Buffer
		h := &hook{
			mainWriter:     &mainBuf,
			criticalWriter: &criticalBuf,
			formatter:      &logrus.TextFormatter{DisableTimestamp: true},
		}

		require.NoError(t, h.Fire(newEntry(ErrorLevel, "delivery failed")))
		assert.Contains(t, mainBuf.String(), "delivery failed")
		assert.Contains(t, criticalBuf.String(), "delivery failed")
	})

	t.Run("Info skips critical writer", func(t *testing.T) {
		var mainBuf, criticalBuf bytes.Buffer
		h := &hook{
			mainWriter:     &mainBuf,
			criticalWriter: &criticalBuf,
			formatter:      &logrus.TextFormatter{DisableTimestamp: true},
		}

		require.NoError(t, h.Fire(newEntry(InfoLevel, "run finished")))
		assert.Contains(t, mainBuf.String(), "run finished")
		assert.Empty(t, criticalBuf.String())
	})

	t.Run("Closed hook drops entries", func(t *testing.T) {
		var mainBuf bytes.Buffer
		h := &hook{
			mainWriter: &mainBuf,
			formatter:  &logrus.TextFormatter{DisableTimestamp: true},
		}
		require.NoError(t, h.Close())

		require.NoError(t, h.Fire(newEntry(InfoLevel, "after close")))
		assert.Empty(t, mainBuf.String())
	})
}

func TestWithComponent(t *testing.T) {
	entry := WithComponent("state.store")
	assert.Equal(t, "state.store", entry.Data["component"])

	entry = WithComponentAndFields("dispatcher", Fields{"target_id": "hook-1"})
	assert.Equal(t, "dispatcher", entry.Data["component"])
	assert.Equal(t, "hook-1", entry.Data["target_id"])
}

func TestCloserIdempotency(t *testing.T) {
	c := &closer{hook: &hook{}}

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close()) // 중복 호출에도 안전해야 함
}
