package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const (
	textInfoString  = `^time="[^"]+" severity=INFO message="TestLogs: www\.infoExample\.com"`
	textWarnString  = `^time="[^"]+" severity=WARN message="TestLogs: www\.warningExample\.com"`
	textErrorString = `^time="[^"]+" severity=ERROR message="TestLogs: www\.errorExample\.com"`

	jsonInfoString  = `^\{"timestamp":\{"seconds":\d+,"nanos":\d+\},"severity":"INFO","message":"TestLogs: www\.infoExample\.com"\}`
	jsonErrorString = `^\{"timestamp":\{"seconds":\d+,"nanos":\d+\},"severity":"ERROR","message":"TestLogs: www\.errorExample\.com"\}`
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func redirectLogsToBuffer(buf *bytes.Buffer, format string, severity string) {
	v := new(slog.LevelVar)
	setLoggingLevel(severity, v)
	f := &loggerFactory{format: format}
	defaultLogger = slog.New(f.createJsonOrTextHandler(buf, v, "TestLogs: "))
}

func (t *LoggerTest) TestTextFormatInfoLevelSuppressesDebug() {
	var buf bytes.Buffer
	redirectLogsToBuffer(&buf, "text", "INFO")

	Debugf("www.debugExample.com")
	t.Empty(buf.String())

	Infof("www.infoExample.com")
	t.Regexp(regexp.MustCompile(textInfoString), buf.String())
}

func (t *LoggerTest) TestTextFormatWarnAndError() {
	var buf bytes.Buffer
	redirectLogsToBuffer(&buf, "text", "WARN")

	buf.Reset()
	Warnf("www.warningExample.com")
	t.Regexp(regexp.MustCompile(textWarnString), buf.String())

	buf.Reset()
	Errorf("www.errorExample.com")
	t.Regexp(regexp.MustCompile(textErrorString), buf.String())
}

func (t *LoggerTest) TestJSONFormatInfoAndError() {
	var buf bytes.Buffer
	redirectLogsToBuffer(&buf, "json", "TRACE")

	Infof("www.infoExample.com")
	t.Regexp(regexp.MustCompile(jsonInfoString), buf.String())

	buf.Reset()
	Errorf("www.errorExample.com")
	t.Regexp(regexp.MustCompile(jsonErrorString), buf.String())
}

func (t *LoggerTest) TestOffLevelSuppressesEverything() {
	var buf bytes.Buffer
	redirectLogsToBuffer(&buf, "json", "OFF")

	Errorf("www.errorExample.com")
	t.Empty(buf.String())
}

func (t *LoggerTest) TestSetLoggingLevel() {
	testData := []struct {
		severity string
		expected slog.Level
	}{
		{"TRACE", LevelTrace},
		{"DEBUG", LevelDebug},
		{"INFO", LevelInfo},
		{"WARN", LevelWarn},
		{"ERROR", LevelError},
		{"OFF", LevelOff},
		{"bogus", LevelInfo},
	}

	for _, td := range testData {
		v := new(slog.LevelVar)
		setLoggingLevel(td.severity, v)
		assert.Equal(t.T(), td.expected, v.Level())
	}
}

func (t *LoggerTest) TestSetLogFormatTogglesHandler() {
	defaultLoggerFactory = &loggerFactory{format: "json", level: "INFO"}
	defaultLoggerFactory.sysWriter = new(bytes.Buffer)
	defaultLoggerFactory.rebuild()

	SetLogFormat("text")
	t.Equal("text", defaultLoggerFactory.format)

	SetLogFormat("garbage")
	t.Equal("json", defaultLoggerFactory.format)
}

func (t *LoggerTest) TestForTagsComponent() {
	var buf bytes.Buffer
	redirectLogsToBuffer(&buf, "json", "INFO")

	l := For("scheduler")
	l.Info("hello")
	t.Contains(buf.String(), "component=scheduler")
}
