package engine

import (
	"bytes"
	"testing"
)

func TestParamsPreserveOrderAndDuplicates(t *testing.T) {
	var params Params
	params = params.Append("indent", "yes")
	params = params.Append("lang", "en")
	params = params.Append("indent", "no")

	want := []Param{
		{Key: "indent", Value: "yes"},
		{Key: "lang", Value: "en"},
		{Key: "indent", Value: "no"},
	}
	if len(params) != len(want) {
		t.Fatalf("expected %d params, got %d", len(want), len(params))
	}
	for i, p := range params {
		if p != want[i] {
			t.Errorf("param %d: got %+v, want %+v", i, p, want[i])
		}
	}
}

func TestIOVecVariantAccess(t *testing.T) {
	text := NewTextVec([]byte("content"))
	opaque := NewOpaqueVec(struct{ cached bool }{true})

	if !bytes.Equal(text.Buffer(), []byte("content")) {
		t.Errorf("text vector buffer: got %q", text.Buffer())
	}
	if text.OpaqueData() != nil {
		t.Error("text vector must not expose an opaque payload")
	}
	if opaque.Buffer() != nil {
		t.Error("opaque vector must not expose a text buffer")
	}
	if opaque.OpaqueData() == nil {
		t.Error("opaque vector lost its payload")
	}
}

func TestDocumentAccessorsNilSafe(t *testing.T) {
	tests := []struct {
		name     string
		doc      *InputDocument
		wantBuf  bool
		wantSize int
	}{
		{
			name:     "buffer document",
			doc:      BufferDocument([]byte("<a/>")),
			wantBuf:  true,
			wantSize: 4,
		},
		{
			name:     "nil document",
			doc:      nil,
			wantBuf:  false,
			wantSize: -1,
		},
		{
			name:     "document without vector",
			doc:      &InputDocument{Type: BufferInput},
			wantBuf:  false,
			wantSize: -1,
		},
		{
			name:     "non-text vector",
			doc:      &InputDocument{Type: BufferInput, Vec: NewOpaqueVec(1)},
			wantBuf:  false,
			wantSize: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := tt.doc.Buffer()
			if tt.wantBuf && buf == nil {
				t.Error("expected a buffer, got nil")
			}
			if !tt.wantBuf && buf != nil {
				t.Errorf("expected nil buffer, got %q", buf)
			}
			if got := tt.doc.Size(); got != tt.wantSize {
				t.Errorf("size: got %d, want %d", got, tt.wantSize)
			}
		})
	}
}

func TestFileDocumentCarriesURI(t *testing.T) {
	doc := FileDocument("/var/data/in.xml")
	if doc.Type != FileInput {
		t.Errorf("expected FileInput, got %v", doc.Type)
	}
	if string(doc.Buffer()) != "/var/data/in.xml" {
		t.Errorf("expected URI payload, got %q", doc.Buffer())
	}
}

func TestStateStrings(t *testing.T) {
	if got := LibraryNotFound.String(); got != "library_not_found" {
		t.Errorf("DriverState string: got %q", got)
	}
	if got := XSLCompileError.String(); got != "xsl_compile_error" {
		t.Errorf("EngineState string: got %q", got)
	}
	if got := DriverState(99).String(); got != "unknown" {
		t.Errorf("out of range DriverState: got %q", got)
	}
}
