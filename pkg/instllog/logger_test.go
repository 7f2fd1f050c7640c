package instllog

import (
	"bytes"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetLevelParsesKnownName(t *testing.T) {
	defer L().SetLevel(logrus.InfoLevel)
	SetLevel("debug")
	assert.Equal(t, logrus.DebugLevel, L().GetLevel())
}

func TestSetLevelIgnoresUnknownName(t *testing.T) {
	L().SetLevel(logrus.InfoLevel)
	SetLevel("not-a-level")
	assert.Equal(t, logrus.InfoLevel, L().GetLevel())
}

func TestWithStageTagsStageField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	L().SetFormatter(&logrus.JSONFormatter{})
	defer L().SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	WithStage("copy").Info("cloning tree")
	assert.Contains(t, buf.String(), `"stage":"copy"`)
}
