package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeForTerminal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"ansi escape", "\x1b[31mred\x1b[0m", "[31mred[0m"},
		{"bell and backspace", "a\x07b\x08c", "abc"},
		{"newlines fold", "one\ntwo\r\nthree", "one two  three"},
		{"tab kept", "a\tb", "a\tb"},
		{"bidi override", "abc\u202edef", "abcdef"},
		{"c1 control", "x\u009By", "xy"},
		{"zwj emoji", "\U0001F468\u200d\U0001F469", "\U0001F468\U0001F469"},
		{"invalid utf8", "a\xffb", "a\uFFFDb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeForTerminal(tt.in))
		})
	}
}

func TestParseCommand(t *testing.T) {
	cmd, ok := parseCommand("  /Open 2 ")
	assert.True(t, ok)
	assert.Equal(t, command{Name: "open", Args: "2"}, cmd)

	cmd, ok = parseCommand("/new Support Team @bo")
	assert.True(t, ok)
	assert.Equal(t, "Support Team @bo", cmd.Args)

	_, ok = parseCommand("hello /there")
	assert.False(t, ok)
	_, ok = parseCommand("/")
	assert.False(t, ok)
}

func TestParseAddUser(t *testing.T) {
	cases := []struct {
		in                 string
		email, name, phone string
	}{
		{"bo@example.com", "bo@example.com", "", ""},
		{"bo@example.com Bo Lima", "bo@example.com", "Bo Lima", ""},
		{"bo@example.com Bo Lima +1555-0100", "bo@example.com", "Bo Lima", "+1555-0100"},
		{"bo@example.com 5550100", "bo@example.com", "", "5550100"},
		{"bo@example.com Agent 47", "bo@example.com", "Agent 47", ""},
		{"", "", "", ""},
	}
	for _, tc := range cases {
		email, name, phone := parseAddUser(tc.in)
		assert.Equal(t, tc.email, email, tc.in)
		assert.Equal(t, tc.name, name, tc.in)
		assert.Equal(t, tc.phone, phone, tc.in)
	}
}
