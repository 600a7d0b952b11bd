package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/bobg/chunky"
	"github.com/bobg/chunky/store/mem"
	"github.com/bobg/chunky/testutil"
)

func newLogger(buf *bytes.Buffer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetLevel(logrus.TraceLevel)
	return logger
}

func TestStore(t *testing.T) {
	buf := new(bytes.Buffer)
	s := New(mem.New(), newLogger(buf))
	testutil.ReadWrite(context.Background(), t, s, testutil.RandomData(t, 1, 256*1024))
	if !strings.Contains(buf.String(), "PutChunk") {
		t.Error("no PutChunk calls logged")
	}
}

func TestChunks(t *testing.T) {
	testutil.AllChunks(context.Background(), t, func() chunky.Store {
		return New(mem.New(), newLogger(new(bytes.Buffer)))
	})
}

func TestLog(t *testing.T) {
	buf := new(bytes.Buffer)
	testutil.Log(context.Background(), t, New(mem.New(), newLogger(buf)))
	for _, want := range []string{"PutRef", "GetRef", "DeleteRef", "level=error"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log output lacks %q", want)
		}
	}
}
