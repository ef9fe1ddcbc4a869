package genx_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Abraxas-365/examforge/pkg/errx"
	"github.com/Abraxas-365/examforge/pkg/fsx"
	"github.com/Abraxas-365/examforge/pkg/genx"
)

// fakeDocs is an in-memory fsx.PathReader.
type fakeDocs map[string]string

func (d fakeDocs) ReadFile(ctx context.Context, path string) ([]byte, error) {
	content, ok := d[path]
	if !ok {
		return nil, errors.New("file not found: " + path)
	}
	return []byte(content), nil
}

func (d fakeDocs) ReadFileStream(ctx context.Context, path string) (io.ReadCloser, error) {
	data, err := d.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (d fakeDocs) Stat(ctx context.Context, path string) (fsx.FileInfo, error) {
	if _, ok := d[path]; !ok {
		return fsx.FileInfo{}, errors.New("file not found: " + path)
	}
	return fsx.FileInfo{Name: path}, nil
}

func (d fakeDocs) List(ctx context.Context, path string) ([]fsx.FileInfo, error) {
	return nil, nil
}

func (d fakeDocs) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := d[path]
	return ok, nil
}

func (d fakeDocs) Join(elem ...string) string {
	return strings.Join(elem, "/")
}

func TestResolveConcatenatesSourceDocuments(t *testing.T) {
	docs := fakeDocs{
		"bolum1.txt": "Kalp yetmezliği patofizyolojisi.",
		"bolum2.txt": "Aritmilerin sınıflandırılması.",
	}
	resolver := genx.NewFileResolver(docs)

	ev, err := resolver.Resolve(context.Background(), &genx.Request{
		SourcePDFs: []string{"bolum1.txt", "bolum2.txt"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ev.FromDocument {
		t.Error("evidence from attached documents must be marked FromDocument")
	}
	if !strings.Contains(ev.Text, "patofizyolojisi") || !strings.Contains(ev.Text, "sınıflandırılması") {
		t.Errorf("evidence text missing a document: %q", ev.Text)
	}
}

func TestResolvePrependsPrimaryDocument(t *testing.T) {
	docs := fakeDocs{
		"ana.txt": "Ana kaynak.",
		"ek.txt":  "Ek kaynak.",
	}
	resolver := genx.NewFileResolver(docs)

	ev, err := resolver.Resolve(context.Background(), &genx.Request{
		SourceDocPath: "ana.txt",
		SourcePDFs:    []string{"ek.txt"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.HasPrefix(ev.Text, "Ana kaynak.") {
		t.Errorf("primary document must come first: %q", ev.Text)
	}
}

func TestResolveMissingDocumentIsNotRetryable(t *testing.T) {
	resolver := genx.NewFileResolver(fakeDocs{})

	_, err := resolver.Resolve(context.Background(), &genx.Request{
		SourceDocPath: "kayip.pdf",
	})
	if err == nil {
		t.Fatal("expected error for missing document")
	}
	if errx.IsRetryable(err) {
		t.Errorf("missing document classified retryable: %v", err)
	}
	if !strings.Contains(err.Error(), "EVIDENCE_UNAVAILABLE") {
		t.Errorf("err = %v, want evidence-unavailable code", err)
	}
}
