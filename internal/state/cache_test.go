// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

package state

import (
	"bytes"
	"testing"
)

func TestMailboxSetGetReturnsCopy(t *testing.T) {
	var mb secretMailbox
	orig := []byte("s3cret")
	mb.Set(orig)

	got := mb.Get()
	if !bytes.Equal(got, orig) {
		t.Fatalf("expected %q, got %q", orig, got)
	}

	// Wiping the returned copy must not affect the cached value.
	for i := range got {
		got[i] = 0
	}
	if again := mb.Get(); !bytes.Equal(again, []byte("s3cret")) {
		t.Fatalf("cache was mutated through a returned copy: %q", again)
	}
}

func TestMailboxClear(t *testing.T) {
	var mb secretMailbox
	mb.Set([]byte("hunter2"))
	mb.Clear()
	if got := mb.Get(); got != nil {
		t.Fatalf("expected nil after Clear, got %q", got)
	}
}

func TestMailboxSetNil(t *testing.T) {
	var mb secretMailbox
	mb.Set([]byte("x"))
	mb.Set(nil)
	if got := mb.Get(); got != nil {
		t.Fatalf("expected nil after Set(nil), got %q", got)
	}
}
