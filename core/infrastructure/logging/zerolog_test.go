package logging

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldLogTag(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		tag    string
		want   bool
	}{
		{name: "no filter", filter: "", tag: "dispatcher", want: true},
		{name: "included", filter: "dispatcher", tag: "dispatcher", want: true},
		{name: "included child", filter: "connector", tag: "connector:prod", want: true},
		{name: "not in allow list", filter: "dispatcher", tag: "registry", want: false},
		{name: "excluded", filter: "-registry", tag: "registry", want: false},
		{name: "excluded child", filter: "-connector", tag: "connector:prod", want: false},
		{name: "exclusion only keeps others", filter: "-registry", tag: "merger", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetTagFilter(tt.filter)
			defer SetTagFilter("")
			assert.Equal(t, tt.want, shouldLogTag(tt.tag))
		})
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(&bytes.Buffer{})

	SetLogLevel(LogLevelWarn)
	defer SetLogLevel(LogLevelInfo)

	log := New("test")
	log.Infof("hidden")
	log.Warnf("visible %d", 1)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible 1")
	assert.Contains(t, out, `"tag":"test"`)
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(&bytes.Buffer{})

	log := New("dispatcher").With("dispatch_id", "d-1")
	log.Infof("started")

	out := buf.String()
	assert.Contains(t, out, `"dispatch_id":"d-1"`)
	assert.Contains(t, out, `"tag":"dispatcher"`)

	SetTagFilter("-dispatcher")
	defer SetTagFilter("")
	buf.Reset()
	New("dispatcher").With("dispatch_id", "d-2").Infof("filtered")
	assert.Empty(t, buf.String())
}

func TestErrorTag(t *testing.T) {
	base := errors.New("boom")
	tagged := WithTag("registry", base)

	assert.Nil(t, WithTag("x", nil))
	assert.Equal(t, "registry", ErrorTag(tagged, "cli"))
	assert.Equal(t, "registry", ErrorTag(fmt.Errorf("wrapped: %w", tagged), "cli"))
	assert.Equal(t, "cli", ErrorTag(base, "cli"))
	assert.ErrorIs(t, tagged, base)
}
