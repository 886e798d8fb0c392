package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// cookieRecord is the persisted slice of a cookie. The jar only hands
// back name/value pairs, so that is all a bundle can carry.
type cookieRecord struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// bundle is the credential blob written to session.json. It is restored
// as a whole or not at all.
type bundle struct {
	Phase     string                    `json:"phase"`
	ExpiresAt time.Time                 `json:"expires_at"`
	SavedAt   time.Time                 `json:"saved_at"`
	Cookies   map[string][]cookieRecord `json:"cookies"` // Keyed by origin URL
}

// records converts jar cookies for one origin into persistable form
func records(cookies []*http.Cookie) []cookieRecord {
	out := make([]cookieRecord, 0, len(cookies))
	for _, ck := range cookies {
		out = append(out, cookieRecord{Name: ck.Name, Value: ck.Value})
	}
	return out
}

// cookies converts persisted records back into jar-settable cookies
func (b *bundle) cookies(origin string) []*http.Cookie {
	recs := b.Cookies[origin]
	out := make([]*http.Cookie, 0, len(recs))
	for _, r := range recs {
		out = append(out, &http.Cookie{Name: r.Name, Value: r.Value, Path: "/"})
	}
	return out
}

// saveBundle writes the blob to path atomically. The file holds live
// credentials, so it is created private to the owner.
func saveBundle(path string, b *bundle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open tmp: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode session: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename tmp: %w", err)
	}
	return nil
}

// loadBundle reads the blob back. A missing file returns (nil, nil).
func loadBundle(path string) (*bundle, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &b, nil
}

// discardBundle removes the persisted blob if present
func discardBundle(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
