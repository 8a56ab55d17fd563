package extract

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"unicode/utf16"
)

const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Intro to </w:t></w:r><w:r><w:t>Go</w:t></w:r></w:p>
    <w:p></w:p>
    <w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell text</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
    <w:p><w:r><w:t>Goroutines</w:t><w:tab/><w:t>channels</w:t><w:br/><w:t>select</w:t></w:r></w:p>
    <w:sectPr/>
  </w:body>
</w:document>`

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestExtractDocx(t *testing.T) {
	data := buildZip(t, map[string]string{"word/document.xml": documentXML})

	got, err := New().Extract(data, "lectures/intro.docx")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "Intro to Go\n\nGoroutines\tchannels\nselect"
	if got != want {
		t.Errorf("Extract() = %q, want %q", got, want)
	}
}

func TestExtractUnsupported(t *testing.T) {
	docx := buildZip(t, map[string]string{"word/document.xml": documentXML})

	tests := []struct {
		name string
		path string
		data []byte
	}{
		{"csv", "lectures/grades.csv", []byte("a,b,c\n1,2,3\n")},
		{"csv with docx bytes", "lectures/grades.csv", docx},
		{"uppercase suffix", "lectures/intro.PDF", []byte("%PDF-1.4")},
		{"no extension", "lectures/intro", docx},
		{"empty path", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Extract(tt.data, tt.path)
			var ufe *UnsupportedFormatError
			if !errors.As(err, &ufe) {
				t.Fatalf("expected UnsupportedFormatError, got %v", err)
			}
			if ufe.Path != tt.path {
				t.Errorf("error path = %q, want %q", ufe.Path, tt.path)
			}
		})
	}
}

func TestExtractMalformed(t *testing.T) {
	tests := []struct {
		name string
		path string
		data []byte
	}{
		{"pdf garbage", "x.pdf", []byte("definitely not a pdf")},
		{"pdf empty", "x.pdf", nil},
		{"doc garbage", "x.doc", []byte("not a compound file at all, just text")},
		{"docx garbage", "x.docx", []byte("PK but not really")},
		{"docx without document part", "x.docx", buildZip(t, map[string]string{"word/styles.xml": "<styles/>"})},
		{"docx broken xml", "x.docx", buildZip(t, map[string]string{"word/document.xml": "<w:document><w:body><w:p>"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := New().Extract(tt.data, tt.path)
			var ee *ExtractionError
			if !errors.As(err, &ee) {
				t.Fatalf("expected ExtractionError, got %v (text %q)", err, text)
			}
			if ee.Path != tt.path {
				t.Errorf("error path = %q, want %q", ee.Path, tt.path)
			}
			if ee.Unwrap() == nil {
				t.Error("ExtractionError should wrap the cause")
			}
			if text != "" {
				t.Errorf("expected no text on failure, got %q", text)
			}
		})
	}
}

func TestParseClxAndDecode(t *testing.T) {
	word := make([]byte, 0x400)
	copy(word[0x200:], "Hello\r")
	for i, u := range utf16.Encode([]rune("Мир")) {
		binary.LittleEndian.PutUint16(word[0x300+i*2:], u)
	}

	var clx bytes.Buffer
	// One Prc record with a two byte grpprl.
	clx.WriteByte(clxPrc)
	_ = binary.Write(&clx, binary.LittleEndian, uint16(2))
	clx.Write([]byte{0xAA, 0xBB})

	clx.WriteByte(clxPcdt)
	_ = binary.Write(&clx, binary.LittleEndian, uint32(3*4+2*pcdSize))
	for _, cp := range []uint32{0, 6, 9} {
		_ = binary.Write(&clx, binary.LittleEndian, cp)
	}
	for _, fc := range []uint32{(0x200 * 2) | 0x40000000, 0x300} {
		_ = binary.Write(&clx, binary.LittleEndian, uint16(0))
		_ = binary.Write(&clx, binary.LittleEndian, fc)
		_ = binary.Write(&clx, binary.LittleEndian, uint16(0))
	}

	pieces, err := parseClx(clx.Bytes())
	if err != nil {
		t.Fatalf("parseClx: %v", err)
	}
	if len(pieces) != 2 {
		t.Fatalf("expected 2 pieces, got %d", len(pieces))
	}
	if !pieces[0].compressed || pieces[1].compressed {
		t.Errorf("unexpected compression flags: %+v", pieces)
	}

	var text string
	for _, p := range pieces {
		s, err := p.decode(word)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		text += s
	}
	if got := cleanDocText(text); got != "Hello\nМир" {
		t.Errorf("decoded text = %q, want %q", got, "Hello\nМир")
	}
}

func TestParseClxMalformed(t *testing.T) {
	tests := []struct {
		name string
		clx  []byte
	}{
		{"empty", nil},
		{"truncated prc", []byte{clxPrc, 0x10}},
		{"no pcdt", []byte{0x05, 0, 0, 0, 0}},
		{"bad lcb", []byte{clxPcdt, 7, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseClx(tt.clx); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCleanDocText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"paragraph marks", "one\rtwo\r", "one\ntwo\n"},
		{"field keeps result", "A\x13 HYPERLINK \"x\" \x14link\x15 B", "Alink B"},
		{"field without result", "A\x13 PAGE \x15B", "AB"},
		{"cell marks", "a\x07b\x07", "a\tb\t"},
		{"control chars dropped", "x\x01y\x08z", "xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanDocText(tt.in); got != tt.want {
				t.Errorf("cleanDocText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
