package lists

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mbd888/walletscope/internal/security"
	"github.com/mbd888/walletscope/internal/validation"
)

// maxBlobSize caps how much a single list source may return.
const maxBlobSize = 8 << 20 // 8 MiB

// Source supplies the raw bytes of one list.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	Describe() string
}

// FileSource reads a list from a local file.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read list file: %w", err)
	}
	if len(data) > maxBlobSize {
		return nil, fmt.Errorf("list file %s exceeds %d bytes", s.Path, maxBlobSize)
	}
	return data, nil
}

func (s FileSource) Describe() string {
	return "file:" + s.Path
}

// HTTPSource fetches a list over HTTP(S). Construct via NewHTTPSource,
// which rejects SSRF-prone URLs up front.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource validates the URL and returns an HTTP-backed source.
// A nil client gets a 30s-timeout default.
func NewHTTPSource(rawURL string, client *http.Client) (*HTTPSource, error) {
	if err := security.ValidateEndpointURL(rawURL); err != nil {
		return nil, fmt.Errorf("list source %s: %w", rawURL, err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSource{url: rawURL, client: client}, nil
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch list: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobSize+1))
	if err != nil {
		return nil, fmt.Errorf("read list body: %w", err)
	}
	if len(data) > maxBlobSize {
		return nil, fmt.Errorf("list body exceeds %d bytes", maxBlobSize)
	}
	return data, nil
}

func (s *HTTPSource) Describe() string {
	return s.url
}

// StaticSource serves a fixed set of addresses. Used in tests and for
// bootstrapping a deployment before real feeds are wired up.
type StaticSource struct {
	Addresses []string
}

func (s StaticSource) Fetch(ctx context.Context) ([]byte, error) {
	return []byte(strings.Join(s.Addresses, "\n")), nil
}

func (s StaticSource) Describe() string {
	return "static"
}

// ParseBlob extracts normalized addresses from a list payload. Two
// formats are accepted: a JSON array of strings, or plain text with
// one address per line (commas and whitespace also separate; lines
// starting with # are comments). Entries that do not look like
// addresses are dropped, not fatal; duplicates collapse.
func ParseBlob(data []byte) (map[string]struct{}, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return map[string]struct{}{}, nil
	}

	var raw []string
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return nil, fmt.Errorf("parse JSON list: %w", err)
		}
	} else {
		for _, line := range strings.Split(trimmed, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			raw = append(raw, strings.FieldsFunc(line, func(r rune) bool {
				return r == ',' || r == ' ' || r == '\t'
			})...)
		}
	}

	entries := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		// Feeds publish addresses with and without the 0x prefix;
		// normalize the same way lookups do so both forms match.
		item = validation.NormalizeAddress(item)
		// Lists may carry non-Ethereum chains, so accept any 0x hex
		// string above the minimum length rather than exactly 40 chars.
		if len(item) < validation.MinAddressLength || !isHex(item[2:]) {
			continue
		}
		entries[item] = struct{}{}
	}
	return entries, nil
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
