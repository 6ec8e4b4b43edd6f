// Package docker hands sealed artifacts to a Docker daemon.
package docker

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.ImageLoader = (*Loader)(nil)

// ImageAPI is the part of the Docker client used to load images.
type ImageAPI interface {
	ImageLoad(ctx context.Context, input io.Reader, opts ...client.ImageLoadOption) (image.LoadResponse, error)
}

// ClientFactory connects to a daemon.
type ClientFactory func() (ImageAPI, error)

// Loader implements ports.ImageLoader by streaming the OCI layout to the daemon's load endpoint.
type Loader struct {
	connect ClientFactory
}

// NewLoader creates a new Loader. A nil factory connects using the DOCKER_* environment.
func NewLoader(connect ClientFactory) *Loader {
	if connect == nil {
		connect = func() (ImageAPI, error) {
			return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		}
	}
	return &Loader{connect: connect}
}

type loadMessage struct {
	Stream      string `json:"stream"`
	Error       string `json:"error"`
	ErrorDetail *struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// Load sends the layout at artifactPath to the daemon and waits for it to be imported.
func (l *Loader) Load(ctx context.Context, artifactPath string) error {
	if err := l.load(ctx, artifactPath); err != nil {
		return errors.Join(domain.Tagged(domain.ErrArtifactLoadFailed, "artifact", artifactPath), err)
	}
	return nil
}

func (l *Loader) load(ctx context.Context, artifactPath string) error {
	cli, err := l.connect()
	if err != nil {
		return zerr.Wrap(err, "failed to create docker client")
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := TarLayout(pw, artifactPath)
		_ = pw.CloseWithError(err)
		done <- err
	}()

	resp, err := cli.ImageLoad(ctx, pr, client.ImageLoadWithQuiet(true))
	_ = pr.CloseWithError(io.ErrClosedPipe)
	tarErr := <-done
	if err != nil {
		return err
	}
	if tarErr != nil {
		return tarErr
	}
	defer func() { _ = resp.Body.Close() }()

	if !resp.JSON {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	dec := json.NewDecoder(resp.Body)
	for {
		var msg loadMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return zerr.Wrap(err, "failed to decode daemon response")
		}
		if msg.ErrorDetail != nil && msg.ErrorDetail.Message != "" {
			return errors.New(msg.ErrorDetail.Message)
		}
		if msg.Error != "" {
			return errors.New(msg.Error)
		}
	}
}

// TarLayout writes the directory dir as an uncompressed tar stream in lexical order.
func TarLayout(w io.Writer, dir string) error {
	tw := tar.NewWriter(w)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "", ""
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to archive artifact"), "path", dir)
	}
	return tw.Close()
}
