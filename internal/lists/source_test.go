package lists

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseBlobPlainText(t *testing.T) {
	blob := []byte(`# OFAC SDN extract
0x7F367cC41522cE07553e823bf3be79A889DEbe1B
0x8589427373D6D84E98730D7795D8f6f8731FDA16, 0x722122dF12D4e14e13Ac3b6895a86e84145b6967

not-an-address
0xshort
`)
	entries, err := ParseBlob(blob)
	if err != nil {
		t.Fatalf("ParseBlob: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3: %v", len(entries), entries)
	}
	// Entries are normalized to lowercase.
	if _, ok := entries["0x7f367cc41522ce07553e823bf3be79a889debe1b"]; !ok {
		t.Error("mixed-case entry not normalized")
	}
}

func TestParseBlobBareHexGetsPrefix(t *testing.T) {
	// Some feeds publish addresses without the 0x prefix; they must
	// still match lookups, which always normalize to the prefixed form.
	blob := []byte("7F367cC41522cE07553e823bf3be79A889DEbe1B\n0x7f367cc41522ce07553e823bf3be79a889debe1b\n")
	entries, err := ParseBlob(blob)
	if err != nil {
		t.Fatalf("ParseBlob: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 (bare and prefixed forms collapse): %v", len(entries), entries)
	}
	if _, ok := entries["0x7f367cc41522ce07553e823bf3be79a889debe1b"]; !ok {
		t.Error("bare-hex entry not normalized to the prefixed form")
	}
}

func TestParseBlobJSON(t *testing.T) {
	blob := []byte(`["0x7F367cC41522cE07553e823bf3be79A889DEbe1B", "0x7f367cc41522ce07553e823bf3be79a889debe1b", "junk"]`)
	entries, err := ParseBlob(blob)
	if err != nil {
		t.Fatalf("ParseBlob: %v", err)
	}
	// Case variants of the same address collapse, junk is dropped.
	if len(entries) != 1 {
		t.Errorf("got %d entries, want 1: %v", len(entries), entries)
	}
}

func TestParseBlobEmptyAndBroken(t *testing.T) {
	if entries, err := ParseBlob(nil); err != nil || len(entries) != 0 {
		t.Errorf("empty blob: entries=%v err=%v", entries, err)
	}
	if _, err := ParseBlob([]byte(`["unterminated`)); err == nil {
		t.Error("broken JSON accepted")
	}
}

func TestHTTPSourceRejectsUnsafeURL(t *testing.T) {
	for _, u := range []string{
		"http://169.254.169.254/lists",
		"ftp://example.com/lists",
		"http://localhost/lists",
	} {
		if _, err := NewHTTPSource(u, nil); err == nil {
			t.Errorf("NewHTTPSource(%q) accepted unsafe URL", u)
		}
	}
}

func TestHTTPSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sanctioned))
	}))
	defer srv.Close()

	// httptest binds to 127.0.0.1 which the SSRF guard rejects, so
	// build the source directly; the guard has its own tests.
	src := &HTTPSource{url: srv.URL, client: srv.Client()}
	data, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != sanctioned {
		t.Errorf("body = %q", data)
	}
}

func TestHTTPSourceFetchNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	src := &HTTPSource{url: srv.URL, client: srv.Client()}
	if _, err := src.Fetch(context.Background()); err == nil {
		t.Error("expected error on non-200 response")
	}
}
