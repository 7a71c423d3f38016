package apperrors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Messages(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "unknown top-level",
			err:  UnknownArtifact("ghost", ""),
			want: "unknown artifact for 'ghost': not found in registry",
		},
		{
			name: "unknown transitive",
			err:  UnknownArtifact("ghost", "tool"),
			want: "unknown artifact for 'ghost': not found in registry (required by 'tool')",
		},
		{
			name: "cycle",
			err:  CyclicDependency([]string{"a", "b", "a"}),
			want: "cyclic dependency: a -> b -> a",
		},
		{
			name: "conflict against latest",
			err:  VersionConflict("lib", "", "v2"),
			want: "version conflict for 'lib': resolved latest, requested v2",
		},
		{
			name: "build with cause",
			err:  BuildFailed("tool", "make: *** [all] Error 2", errors.New("exit status 2")),
			want: "build failed for 'tool' (script): make: *** [all] Error 2: exit status 2",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestError_MatchesKindAndCause(t *testing.T) {
	err := fmt.Errorf("installation failed: %w", DirectorySyncFailed("/env", fs.ErrPermission))

	assert.True(t, errors.Is(err, ErrDirectorySyncFailed))
	assert.True(t, errors.Is(err, fs.ErrPermission))
	assert.False(t, errors.Is(err, ErrBuildFailed))

	var appErr *Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "/env", appErr.Message)
}

func TestArtifactOf(t *testing.T) {
	assert.Equal(t, "lib", ArtifactOf(fmt.Errorf("wrapped: %w", FetchFailed("lib", errors.New("404")))))
	assert.Empty(t, ArtifactOf(errors.New("plain")))
	assert.Equal(t, []string{"a", "b", "a"}, CyclicDependency([]string{"a", "b", "a"}).(*Error).Members)
}
