package platform

import (
	"context"
	"runtime"
	"testing"
)

func TestRealDetector_Detect(t *testing.T) {
	if runtime.GOARCH != "amd64" && runtime.GOARCH != "arm64" {
		t.Skipf("unsupported test architecture %s", runtime.GOARCH)
	}

	info, err := NewDetector().Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.OS != runtime.GOOS {
		t.Errorf("OS = %v, want %v", info.OS, runtime.GOOS)
	}
	if info.ArchRaw != runtime.GOARCH {
		t.Errorf("ArchRaw = %v, want %v", info.ArchRaw, runtime.GOARCH)
	}
	if info.Platform != "" && info.Family == "" {
		t.Error("Family should be set when Platform is set")
	}
	if runtime.GOOS != "linux" && info.Platform != "" {
		t.Errorf("Platform should be empty on non-Linux, got %v", info.Platform)
	}
}

func TestDetect_NonLinux(t *testing.T) {
	info, err := detect(context.Background(), "darwin", "arm64")
	if err != nil {
		t.Fatalf("detect() error = %v", err)
	}
	if info.Key() != "darwin-arm64" {
		t.Errorf("Key() = %q, want darwin-arm64", info.Key())
	}
	if info.Platform != "" || info.Family != "" {
		t.Errorf("distro fields should be empty: %+v", info)
	}
}

func TestDetect_UnsupportedArch(t *testing.T) {
	if _, err := detect(context.Background(), "linux", "mips"); err == nil {
		t.Error("expected error for unsupported architecture")
	}
}

func TestInfo_ExecutableSuffix(t *testing.T) {
	tests := []struct {
		os   string
		want string
	}{
		{"windows", ".exe"},
		{"linux", ""},
		{"darwin", ""},
	}

	for _, tt := range tests {
		t.Run(tt.os, func(t *testing.T) {
			info := &Info{OS: tt.os, Arch: "amd64"}
			if got := info.ExecutableSuffix(); got != tt.want {
				t.Errorf("ExecutableSuffix() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStaticDetector(t *testing.T) {
	want := &Info{OS: "linux", Arch: "amd64"}
	got, err := StaticDetector{Info: want}.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if got != want {
		t.Errorf("Detect() = %+v, want %+v", got, want)
	}
}
