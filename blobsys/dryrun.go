package blobsys

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/bobg/chunky/snapshot"
)

// DryRun is a Writer and Remover that reports what it would change without changing anything.
// Queries pass through to the underlying Writer.
type DryRun struct {
	W      Writer
	Logger *logrus.Logger
}

var (
	_ Writer  = DryRun{}
	_ Remover = DryRun{}
)

func (d DryRun) BlobExists(ctx context.Context, name string) (bool, error) {
	return d.W.BlobExists(ctx, name)
}

func (d DryRun) GetBlob(ctx context.Context, name string) (snapshot.Blob, bool, error) {
	return d.W.GetBlob(ctx, name)
}

func (d DryRun) OpenWrite(_ context.Context, blob snapshot.Blob) (io.WriteCloser, error) {
	d.logger().WithField("blob", blob.Name).Info("would write")
	return nopWriteCloser{Writer: io.Discard}, nil
}

func (d DryRun) RemoveBlob(_ context.Context, name string) error {
	d.logger().WithField("blob", name).Info("would remove")
	return nil
}

func (d DryRun) logger() *logrus.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return logrus.StandardLogger()
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
