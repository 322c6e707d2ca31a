package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestExitErrHandler_NilError(t *testing.T) {
	exitErrHandler(nil, nil)
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"success no message", cli.Exit("", 0), 0, ""},
		{"callback error", cli.Exit("callback failed", 1), 1, "callback failed"},
		{"transport error", cli.Exit("dial ws://x: refused", 2), 2, "dial ws://x: refused"},
		{"contract violation silent", cli.Exit("", 3), 3, ""},
		{"wrapped exit coder", fmt.Errorf("context: %w", cli.Exit("inner", 42)), 42, "inner"},
		{"joined exit coder", errors.Join(errors.New("context"), cli.Exit("inner", 7)), 7, "inner"},
		{"regular error", errors.New("boom"), 1, "Error: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := exitStatus(tt.err)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if msg != tt.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}
