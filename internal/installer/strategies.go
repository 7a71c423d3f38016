package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/moveboot/internal/apperrors"
	"github.com/vk/moveboot/internal/artifact"
	"github.com/vk/moveboot/internal/ctxlog"
	"github.com/vk/moveboot/internal/fetch"
	"github.com/vk/moveboot/internal/script"
)

// maxFailureOutput bounds how much procedure output a BuildFailed carries.
const maxFailureOutput = 2 << 10

// installRelease downloads the release asset to bin/<name><suffix>. The
// binary appears under its final name only once fully written.
func (in *Installer) installRelease(ctx context.Context, t target, a artifact.Artifact, r artifact.BinaryRelease) (string, error) {
	logger := ctxlog.FromContext(ctx)
	if in.Fetcher == nil {
		return "", apperrors.FetchFailed(a.Name, errors.New("no release fetcher configured"))
	}

	body, err := in.Fetcher.Fetch(ctx, fetch.Request{Release: r, Platform: t.platform, Version: a.Version})
	if err != nil {
		if errors.Is(err, fetch.ErrPlatformUnsupported) {
			return "", apperrors.UnsupportedPlatform(a.Name, err.Error())
		}
		return "", apperrors.FetchFailed(a.Name, err)
	}
	defer body.Close()

	rel := filepath.Join("bin", a.Name+r.Suffix)
	dest := filepath.Join(t.dir.Root(), rel)

	tmp, err := os.CreateTemp(t.dir.Bin(), "."+a.Name+"-*.part")
	if err != nil {
		return "", apperrors.FetchFailed(a.Name, fmt.Errorf("failed to create file: %w", err))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	written, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		return "", apperrors.FetchFailed(a.Name, fmt.Errorf("failed to write file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return "", apperrors.FetchFailed(a.Name, fmt.Errorf("failed to write file: %w", err))
	}
	if err := os.Chmod(tmpName, 0o755); err != nil {
		return "", apperrors.FetchFailed(a.Name, fmt.Errorf("failed to make file executable: %w", err))
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return "", apperrors.FetchFailed(a.Name, fmt.Errorf("failed to move file into place: %w", err))
	}

	logger.Debug("Downloaded release asset.", "bytes", written, "path", dest)
	return filepath.ToSlash(rel), nil
}

// runScript runs the build procedure with the environment root as working
// directory and verifies that it produced every declared output.
func (in *Installer) runScript(ctx context.Context, t target, a artifact.Artifact, s artifact.Script) (string, error) {
	if in.Runner == nil {
		return "", apperrors.BuildFailed(a.Name, "no procedure runner configured", nil)
	}

	res, err := in.Runner.Run(ctx, script.Procedure{
		Name: a.Name,
		Body: s.Body,
		Dir:  t.dir.Root(),
		Env:  s.Env,
	})
	if err != nil {
		return "", apperrors.BuildFailed(a.Name, outputTail(res.Output), err)
	}

	for _, out := range s.Outputs {
		p, err := t.dir.Resolve(out)
		if err != nil {
			return "", apperrors.BuildFailed(a.Name, "invalid declared output", err)
		}
		if _, err := os.Stat(p); err != nil {
			return "", apperrors.BuildFailed(a.Name, fmt.Sprintf("declared output '%s' was not produced", out), err)
		}
	}

	if len(s.Outputs) > 0 {
		return filepath.ToSlash(s.Outputs[0]), nil
	}
	return "", nil
}

func outputTail(out []byte) string {
	text := strings.TrimSpace(string(out))
	if len(text) > maxFailureOutput {
		text = "..." + text[len(text)-maxFailureOutput:]
	}
	return text
}
