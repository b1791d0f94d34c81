// Package loader acquires a program image's raw bytes before internal/elf
// ever parses them: a local filesystem path, or a "user@host:/remote/path"
// reference fetched over SSH/SFTP. When more than one module must be
// loaded together (the primary executable plus one or more MIPS overlay
// modules), images are fetched concurrently — this is pure I/O ahead of
// the single-threaded STABS pipeline, so it introduces no parallelism
// into parsing, dedup, or refinement.
package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/melbahja/goph"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"mdebug.dev/ccc/internal/ccerr"
	"mdebug.dev/ccc/internal/elf"
	"mdebug.dev/ccc/internal/xdebug"
)

// Image is one acquired, parsed program module plus the load session id it
// was assigned. The id is surfaced in Acquire's xdebug trace line so
// repeated loads of the same ref during one debugging session are
// distinguishable; cmd/ccc does not print it.
type Image struct {
	LoadID uuid.UUID
	Ref    string
	File   *elf.File
}

// Acquire reads ref's bytes — locally, or over SSH/SFTP if ref has the
// form user@host:/path — and parses them as an ELF image.
func Acquire(ctx context.Context, ref string) (*Image, error) {
	raw, err := read(ctx, ref)
	if err != nil {
		return nil, ccerr.Wrap(ccerr.BadInput, "loader.Acquire", err)
	}

	f, err := elf.Parse(raw)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	xdebug.Log(nil, "loader.Acquire", "loaded %s as %s (%d bytes)", ref, id, len(raw))
	return &Image{LoadID: id, Ref: ref, File: f}, nil
}

// AcquireAll fetches every ref concurrently via golang.org/x/sync/errgroup,
// returning images ordered to match refs regardless of completion order.
// The first error encountered is returned once every fetch has finished;
// fetches already under way are not interrupted by it.
func AcquireAll(ctx context.Context, refs []string) ([]*Image, error) {
	images := make([]*Image, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			img, err := Acquire(gctx, ref)
			if err != nil {
				return fmt.Errorf("loader: %s: %w", ref, err)
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// read dispatches to a local file read or a remote SFTP read, based on
// whether ref parses as user@host:/path.
func read(ctx context.Context, ref string) ([]byte, error) {
	remoteUser, hostPath, isRemote := strings.Cut(ref, "@")
	host, path, hasPath := strings.Cut(hostPath, ":")
	if !isRemote || !hasPath {
		return os.ReadFile(ref)
	}
	return readRemote(ctx, remoteUser, host, path)
}

func readRemote(_ context.Context, remoteUser, host, path string) ([]byte, error) {
	auth, err := goph.UseAgent()
	if err != nil {
		return nil, fmt.Errorf("loader: ssh agent: %w", err)
	}
	auth = append(auth, ssh.KeyboardInteractive(promptPassphrase))

	client, err := goph.NewUnknown(remoteUser, host, auth)
	if err != nil {
		return nil, fmt.Errorf("loader: dial ssh://%s@%s: %w", remoteUser, host, err)
	}
	defer client.Close()

	sftp, err := client.NewSftp()
	if err != nil {
		return nil, fmt.Errorf("loader: open sftp session: %w", err)
	}
	defer sftp.Close()

	remote, err := sftp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %s: %w", path, err)
	}
	defer remote.Close()

	raw, err := io.ReadAll(remote)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	return raw, nil
}

// promptPassphrase answers an SSH keyboard-interactive challenge by
// reading each prompt from the controlling terminal, echoing only
// questions marked as visible.
func promptPassphrase(name, instruction string, questions []string, echos []bool) ([]string, error) {
	if name != "" && len(questions) == 0 {
		fmt.Fprintf(os.Stderr, "%s: %s\n", name, instruction)
	}

	answers := make([]string, len(questions))
	for i, q := range questions {
		fmt.Fprintf(os.Stderr, "%s ", q)
		if echos[i] {
			if _, err := fmt.Scanln(&answers[i]); err != nil {
				return nil, err
			}
			continue
		}

		answer, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, err
		}
		answers[i] = string(answer)
	}
	return answers, nil
}
