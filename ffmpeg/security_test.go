package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitArgs(t *testing.T) {
	args, err := SplitArgs(`-ar 44100 -af "loudnorm=I=-14" -ac 2`)
	require.NoError(t, err)
	assert.Equal(t, []string{"-ar", "44100", "-af", "loudnorm=I=-14", "-ac", "2"}, args)

	_, err = SplitArgs(`-af "unterminated`)
	assert.Error(t, err)
}

func TestSanitizeArgs(t *testing.T) {
	t.Run("valid args", func(t *testing.T) {
		args, _ := SplitArgs(`-ar 48000 -ac 2`)
		assert.NoError(t, SanitizeArgs(args))
	})

	t.Run("empty is fine", func(t *testing.T) {
		assert.NoError(t, SanitizeArgs(nil))
	})

	t.Run("managed flag", func(t *testing.T) {
		args, _ := SplitArgs(`-i other.wav`)
		err := SanitizeArgs(args)
		assert.ErrorContains(t, err, "flag -i is managed by the runner")
	})

	t.Run("disallowed character (semicolon)", func(t *testing.T) {
		args, _ := SplitArgs(`-ar 48000; ls`)
		err := SanitizeArgs(args)
		assert.ErrorContains(t, err, "disallowed character found in argument: 48000;")
	})

	t.Run("disallowed character (dollar)", func(t *testing.T) {
		args, _ := SplitArgs(`-af "volume=$(($RANDOM))"`)
		err := SanitizeArgs(args)
		assert.ErrorContains(t, err, "disallowed character found in argument: volume=$(($RANDOM))")
	})
}
