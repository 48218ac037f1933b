// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package watch

import (
	"fmt"
	"syscall"
	"testing"
)

func TestIsFatalFsnotifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"watch limit", syscall.ENOSPC, true},
		{"process descriptors", syscall.EMFILE, true},
		{"system descriptors", syscall.ENFILE, true},
		{"wrapped", fmt.Errorf("inotify_add_watch: %w", syscall.ENOSPC), true},
		{"permission", syscall.EACCES, false},
		{"other", fmt.Errorf("queue overflow"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isFatalFsnotifyError(tt.err); got != tt.want {
				t.Errorf("isFatalFsnotifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
