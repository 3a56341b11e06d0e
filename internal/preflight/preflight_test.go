package preflight

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"streamkeep/internal/config"
	"streamkeep/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func listenerPort(t *testing.T, ln net.Listener) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	return port
}

func TestCheckTCP_Reachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	result := CheckTCP(context.Background(), "FTP target", "127.0.0.1", listenerPort(t, ln), 2)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckTCP_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listenerPort(t, ln)
	ln.Close()

	if result := CheckTCP(context.Background(), "SMB target", "127.0.0.1", port, 2); result.Passed {
		t.Fatal("expected failure for closed port")
	}
}

func TestCheckTCP_MissingHost(t *testing.T) {
	if result := CheckTCP(context.Background(), "FTP target", "", 21, 2); result.Passed || result.Detail != "missing host" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())

	results := RunAll(context.Background(), cfg)
	// Three directories plus the two binaries.
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_IncludesEnabledTargets(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Replication.FTP = config.FTP{Enabled: true, Host: "127.0.0.1", Port: 1, Timeout: 1}

	results := RunAll(context.Background(), cfg)
	found := false
	for _, r := range results {
		if r.Name == "FTP target" {
			found = true
		}
		if r.Name == "SMB target" {
			t.Fatal("disabled SMB target should be skipped")
		}
	}
	if !found {
		t.Fatal("expected FTP target check in results")
	}
}

func TestEndpointHostPort(t *testing.T) {
	tests := []struct {
		endpoint string
		host     string
		port     int
	}{
		{"https://s3.eu-central-003.backblazeb2.com", "s3.eu-central-003.backblazeb2.com", 443},
		{"http://minio.local", "minio.local", 80},
		{"http://127.0.0.1:9000", "127.0.0.1", 9000},
		{"minio.local:9000", "minio.local", 9000},
		{"storage.example.test", "storage.example.test", 443},
	}
	for _, tt := range tests {
		host, port := endpointHostPort(tt.endpoint)
		if host != tt.host || port != tt.port {
			t.Fatalf("%s: got %s:%d, want %s:%d", tt.endpoint, host, port, tt.host, tt.port)
		}
	}
}
