package localexecutor

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Verifier fingerprints materialised artifacts.
type Verifier struct {
	Root string
}

// Fingerprint returns the content fingerprint of path (relative to Root):
// the SHA-256 of a regular file, the checked out commit of a git work tree,
// and the empty string for any other directory.
func (v *Verifier) Fingerprint(ctx context.Context, path string) (string, error) {
	full := filepath.Join(v.Root, path)
	info, err := os.Stat(full)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return hashFile(ctx, full)
	}
	gitDir := filepath.Join(full, ".git")
	if _, err := os.Stat(gitDir); err == nil {
		return gitHead(gitDir)
	}
	return "", nil
}

func hashFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, &ctxReader{ctx: ctx, r: f}); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

// ctxReader stops a long copy once ctx is done; disk images run to gigabytes.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// gitHead resolves HEAD without shelling out to git: a detached HEAD holds
// the commit, otherwise the ref is looked up loose and then in packed-refs.
func gitHead(gitDir string) (string, error) {
	head, err := os.ReadFile(filepath.Join(gitDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("reading git HEAD: %w", err)
	}
	line := strings.TrimSpace(string(head))
	ref, ok := strings.CutPrefix(line, "ref: ")
	if !ok {
		return "git:" + line, nil
	}

	if loose, err := os.ReadFile(filepath.Join(gitDir, filepath.FromSlash(ref))); err == nil {
		return "git:" + strings.TrimSpace(string(loose)), nil
	}

	packed, err := os.Open(filepath.Join(gitDir, "packed-refs"))
	if err != nil {
		return "", fmt.Errorf("resolving git ref %s: %w", ref, err)
	}
	defer packed.Close()
	sc := bufio.NewScanner(packed)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 2 && fields[1] == ref {
			return "git:" + fields[0], nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("resolving git ref %s: not found", ref)
}
