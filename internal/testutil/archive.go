package testutil

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// File is an archive member.
type File struct {
	Content string
	Mode    int64
}

// WriteTarGz writes a tar.gz archive at path containing files, in sorted
// name order, and returns path.
func WriteTarGz(t *testing.T, path string, files map[string]File) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create archive dir: %v", err)
	}

	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer func() { _ = out.Close() }()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := files[name]
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		header := &tar.Header{
			Name:     name,
			Mode:     mode,
			Size:     int64(len(f.Content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("failed to write header for %s: %v", name, err)
		}
		if _, err := tw.Write([]byte(f.Content)); err != nil {
			t.Fatalf("failed to write content for %s: %v", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("failed to close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("failed to close gzip writer: %v", err)
	}
	return path
}

// WriteChecksum writes "<sha256>  <name>" to path+".sha256".
func WriteChecksum(t *testing.T, path string) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	sum := sha256.Sum256(data)
	line := hex.EncodeToString(sum[:]) + "  " + filepath.Base(path) + "\n"
	if err := os.WriteFile(path+".sha256", []byte(line), 0o644); err != nil {
		t.Fatalf("failed to write checksum: %v", err)
	}
}

// ServerArchive is a small distribution whose executable is a shell script
// printing script to stdout.
func ServerArchive(script string) map[string]File {
	return map[string]File{
		"bin/server":         {Content: "#!/bin/sh\n" + script, Mode: 0o755},
		"lib/libserver.so.1": {Content: "elf"},
		"share/errmsg.sys":   {Content: "messages"},
		"etc/server.cnf":     {Content: "[server]\nport=3306\n"},
		"docs/README":        {Content: "readme"},
	}
}
