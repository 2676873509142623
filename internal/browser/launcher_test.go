package browser

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"testing"
	"time"
)

func TestBuildArgsKeepsBackgroundTabsRendering(t *testing.T) {
	args := buildArgs(Config{CDPAddress: "127.0.0.1", CDPPort: 9220, ProfileDir: "/tmp/p", WindowSize: "800,600", StartURL: "about:blank"})
	for _, want := range []string{
		"--remote-debugging-port=9220",
		"--remote-debugging-address=127.0.0.1",
		"--user-data-dir=/tmp/p",
		"--disable-renderer-backgrounding",
		"--disable-backgrounding-occluded-windows",
		"--window-size=800,600",
	} {
		if !slices.Contains(args, want) {
			t.Errorf("args missing %s", want)
		}
	}
	if slices.Contains(args, "--headless=new") {
		t.Error("headless flag set without Headless")
	}
	if args[len(args)-1] != "about:blank" {
		t.Errorf("start URL must be last, got %q", args[len(args)-1])
	}
}

func TestBuildArgsHeadless(t *testing.T) {
	args := buildArgs(Config{Headless: true, StartURL: "about:blank"})
	if !slices.Contains(args, "--headless=new") {
		t.Fatal("headless flag missing")
	}
}

func TestNewLauncherDefaults(t *testing.T) {
	l := NewLauncher(Config{})
	if l.cfg.WindowSize != "1440,900" || l.cfg.ReadyTimeout != 15*time.Second || l.cfg.StartURL != "about:blank" {
		t.Fatalf("defaults = %+v", l.cfg)
	}
}

func TestLaunchSkipsWhenPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port

	l := NewLauncher(Config{Binary: "definitely-not-a-browser", CDPAddress: "127.0.0.1", CDPPort: port})
	if err := l.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if l.Running() {
		t.Fatal("Launch() started a process while the port was in use")
	}
}

func TestWaitForCDP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"Chrome"}`))
	}))
	defer srv.Close()

	l := NewLauncher(Config{ReadyTimeout: 2 * time.Second})
	if err := l.waitForCDP(context.Background(), srv.URL+"/json/version"); err != nil {
		t.Fatalf("waitForCDP() error = %v", err)
	}
}

func TestWaitForCDPTimesOut(t *testing.T) {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	addr := ln.Addr().(*net.TCPAddr)
	_ = ln.Close()

	l := NewLauncher(Config{ReadyTimeout: 300 * time.Millisecond})
	err := l.waitForCDP(context.Background(), "http://127.0.0.1:"+strconv.Itoa(addr.Port)+"/json/version")
	if err == nil {
		t.Fatal("waitForCDP() succeeded against a closed port")
	}
}
