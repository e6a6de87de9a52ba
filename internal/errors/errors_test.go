package errors

import (
	"errors"
	"fmt"
	"testing"

	"glyphscore/domain/core"

	"github.com/stretchr/testify/assert"
)

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		code string
		exit int
	}{
		{core.NewConfigError("kind", "bad"), CodeConfigInvalid, 2},
		{core.NewMissingColumnError("t.tsv", "section"), CodeMissingColumn, 3},
		{fmt.Errorf("step: %w", core.NewInsufficientDataError("empty")), CodeInsufficientData, 4},
		{core.NewDegenerateStatisticError("sd=0"), CodeDegenerateStatistic, 5},
		{IOError("write", errors.New("disk full")), CodeIOError, 6},
		{errors.New("boom"), CodeInternalError, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, CodeFor(tt.err), tt.err.Error())
		assert.Equal(t, tt.exit, ExitCode(tt.err), tt.err.Error())
	}
	assert.Equal(t, 0, ExitCode(nil))
}

func TestWrap_PreservesSentinel(t *testing.T) {
	err := Wrap(core.NewMissingColumnError("rules.csv", "kind"), "failed to load rules")
	assert.Equal(t, CodeMissingColumn, GetCode(err))
	assert.True(t, core.IsMissingColumnError(err))
	assert.Contains(t, err.Error(), "failed to load rules")

	assert.Nil(t, Wrap(nil, "nothing"))
	assert.True(t, core.IsConfigError(ConfigInvalid("seed must be set")))
}
