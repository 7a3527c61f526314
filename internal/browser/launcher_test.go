package browser

import (
	"context"
	"net"
	"reflect"
	"testing"
)

func TestLauncherArgs(t *testing.T) {
	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: 9333, ProfileDir: "/tmp/profile"})
	want := []string{
		"--remote-debugging-port=9333",
		"--remote-debugging-address=127.0.0.1",
		"--user-data-dir=/tmp/profile",
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-dev-shm-usage",
		"about:blank",
	}
	if got := l.args(); !reflect.DeepEqual(got, want) {
		t.Fatalf("args() = %v, want %v", got, want)
	}
}

func TestLaunchSkipsWhenPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	l := NewLauncher(Config{
		CDPAddress:  "127.0.0.1",
		CDPPort:     ln.Addr().(*net.TCPAddr).Port,
		BrowserPath: "definitely-not-a-browser",
		ProfileDir:  t.TempDir(),
	})
	if err := l.Launch(context.Background()); err != nil {
		t.Fatalf("Launch() error = %v, want nil when port already answers", err)
	}
	if l.Running() {
		t.Fatal("Running() = true, want false when launch was skipped")
	}
}

func TestDetectBrowserOverrideMissing(t *testing.T) {
	if _, err := detectBrowser("definitely-not-a-browser"); err == nil {
		t.Fatal("detectBrowser() error = nil, want not found")
	}
}
