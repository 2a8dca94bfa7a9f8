// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	if err := Probe(context.Background(), srv.URL+"/api/health"); err != nil {
		t.Errorf("healthy endpoint: %v", err)
	}
	if err := Probe(context.Background(), srv.URL+"/nope"); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestWaitRecovers(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if err := Wait(context.Background(), srv.URL, 5, time.Millisecond); err != nil {
		t.Errorf("expected recovery within 5 attempts: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 probes, got %d", got)
	}
}

func TestWaitGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := Wait(context.Background(), srv.URL, 2, time.Millisecond); err == nil {
		t.Error("expected error after exhausting attempts")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Wait(ctx, srv.URL, 100, time.Second); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
