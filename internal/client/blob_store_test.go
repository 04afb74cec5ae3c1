package client

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pesio-ai/be-procurement/internal/repository"
	"github.com/pesio-ai/be-procurement/internal/service"
)

func TestObjectKey(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		filename   string
		wantPrefix string
		wantSuffix string
	}{
		{"Quote March.PDF", "procurement/quotations/20261016-093000-", "-quote-march.pdf"},
		{`C:\scans\receipt.png`, "procurement/quotations/20261016-093000-", "-receipt.png"},
		{"../../etc/passwd", "procurement/quotations/20261016-093000-", "-passwd"},
		{".pdf", "procurement/quotations/20261016-093000-", "-document.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got := objectKey(service.QuotationFolder, tt.filename, now)
			if !strings.HasPrefix(got, tt.wantPrefix) || !strings.HasSuffix(got, tt.wantSuffix) {
				t.Errorf("objectKey(%q) = %q", tt.filename, got)
			}
			if strings.Contains(got, "..") {
				t.Errorf("objectKey(%q) = %q contains traversal", tt.filename, got)
			}
		})
	}
}

func TestObjectKeyLongFilename(t *testing.T) {
	got := objectKey(service.ReceiptFolder, strings.Repeat("very long receipt name ", 40)+".pdf", time.Now())
	if len(got) > repository.MaxBlobIDLen {
		t.Errorf("len(objectKey) = %d, want <= %d", len(got), repository.MaxBlobIDLen)
	}
	if !strings.HasSuffix(got, ".pdf") {
		t.Errorf("objectKey = %q, want .pdf suffix", got)
	}
}

func TestLocalBlobStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalBlobStore(dir, "https://files.test/uploads/")
	if err != nil {
		t.Fatalf("NewLocalBlobStore() error = %v", err)
	}

	stored, err := store.Upload(ctx, service.ReceiptFolder, service.FileUpload{
		Filename:    "receipt.pdf",
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.4"),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasPrefix(stored.URL, "https://files.test/uploads/procurement/receipts/") {
		t.Errorf("URL = %q", stored.URL)
	}

	p, err := store.resolve(stored.ID)
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	if !strings.HasPrefix(p, dir) {
		t.Errorf("resolve() = %q, want under %q", p, dir)
	}
	data, err := os.ReadFile(p)
	if err != nil || string(data) != "%PDF-1.4" {
		t.Fatalf("ReadFile() = %q, %v", data, err)
	}

	if err := store.Delete(ctx, stored.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Errorf("file still present after Delete(): %v", err)
	}
	if err := store.Delete(ctx, stored.ID); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestLocalBlobStoreConfinesPaths(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalBlobStore(dir, "")
	if err != nil {
		t.Fatalf("NewLocalBlobStore() error = %v", err)
	}

	p, err := store.resolve("../../outside.txt")
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	if !strings.HasPrefix(p, dir) {
		t.Errorf("resolve() = %q escapes %q", p, dir)
	}
	if _, err := store.resolve("/"); err == nil {
		t.Error("resolve(/) error = nil, want error")
	}
}

func TestLocalBlobStoreCanceledContext(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalBlobStore() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Upload(ctx, service.QuotationFolder, service.FileUpload{Filename: "q.pdf"}); err == nil {
		t.Error("Upload() error = nil, want context error")
	}
}
