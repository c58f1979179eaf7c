package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "valid.json")
	if err := os.WriteFile(validFile, []byte("{}"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name        string
		filePath    string
		expectError bool
	}{
		{name: "valid file", filePath: validFile, expectError: false},
		{name: "empty path", filePath: "", expectError: true},
		{name: "non-existent file", filePath: "/non/existent/file.json", expectError: true},
		{name: "directory instead of file", filePath: tmpDir, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "test file")
			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func resetReconcileViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestValidateReconcileFlags(t *testing.T) {
	tmpDir := t.TempDir()
	ocrPath := filepath.Join(tmpDir, "statement.json")
	invoicePath := filepath.Join(tmpDir, "invoices.json")

	if err := os.WriteFile(ocrPath, []byte(`{"FilePath":"statement.pdf","TotalPages":1,"Pages":[]}`), 0644); err != nil {
		t.Fatalf("failed to create OCR file: %v", err)
	}
	if err := os.WriteFile(invoicePath, []byte(`[]`), 0644); err != nil {
		t.Fatalf("failed to create invoice file: %v", err)
	}

	tests := []struct {
		name        string
		setupFlags  func()
		expectError bool
	}{
		{
			name: "valid flags",
			setupFlags: func() {
				viper.Set("ocr-file", ocrPath)
				viper.Set("invoice-file", invoicePath)
				viper.Set("output-format", "console")
			},
			expectError: false,
		},
		{
			name: "missing ocr file",
			setupFlags: func() {
				viper.Set("ocr-file", "")
				viper.Set("invoice-file", invoicePath)
				viper.Set("output-format", "console")
			},
			expectError: true,
		},
		{
			name: "missing invoice file",
			setupFlags: func() {
				viper.Set("ocr-file", ocrPath)
				viper.Set("invoice-file", "")
				viper.Set("output-format", "console")
			},
			expectError: true,
		},
		{
			name: "invalid output format",
			setupFlags: func() {
				viper.Set("ocr-file", ocrPath)
				viper.Set("invoice-file", invoicePath)
				viper.Set("output-format", "xml")
			},
			expectError: true,
		},
		{
			name: "non-existent output directory",
			setupFlags: func() {
				viper.Set("ocr-file", ocrPath)
				viper.Set("invoice-file", invoicePath)
				viper.Set("output-format", "console")
				viper.Set("output-file", filepath.Join(tmpDir, "missing-dir", "out.txt"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetReconcileViper(t)
			tt.setupFlags()
			err := validateReconcileFlags(reconcileCmd, nil)
			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadOcrDocumentAndInvoices(t *testing.T) {
	tmpDir := t.TempDir()
	ocrPath := filepath.Join(tmpDir, "statement.json")
	invoicePath := filepath.Join(tmpDir, "invoices.json")

	if err := os.WriteFile(ocrPath, []byte(`{"FilePath":"statement.pdf","TotalPages":2,"Pages":[]}`), 0644); err != nil {
		t.Fatalf("failed to create OCR file: %v", err)
	}
	if err := os.WriteFile(invoicePath, []byte(`[{"DocumentID":"INV-1","Method":0}]`), 0644); err != nil {
		t.Fatalf("failed to create invoice file: %v", err)
	}

	doc, err := loadOcrDocument(ocrPath)
	if err != nil {
		t.Fatalf("loadOcrDocument: %v", err)
	}
	if doc.FilePath != "statement.pdf" || doc.TotalPages != 2 {
		t.Errorf("unexpected document: %+v", doc)
	}

	invoices, err := loadInvoices(invoicePath)
	if err != nil {
		t.Fatalf("loadInvoices: %v", err)
	}
	if len(invoices) != 1 || invoices[0].DocumentID != "INV-1" {
		t.Errorf("unexpected invoices: %+v", invoices)
	}
}

func TestLoadOcrDocumentRejectsMalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "bad.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	if _, err := loadOcrDocument(path); err == nil {
		t.Error("expected an error for malformed OCR JSON")
	}
}
