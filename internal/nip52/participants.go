package nip52

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/florrin/calagenda/internal/models"
)

// NIP05Resolver looks up the pubkey behind a user@domain identifier.
type NIP05Resolver interface {
	Resolve(ctx context.Context, name, domain string) (string, error)
}

// HTTPNIP05Resolver resolves identifiers against the domain's
// /.well-known/nostr.json document.
type HTTPNIP05Resolver struct {
	Client *http.Client
}

// NewHTTPNIP05Resolver returns a resolver with a bounded request timeout.
func NewHTTPNIP05Resolver() *HTTPNIP05Resolver {
	return &HTTPNIP05Resolver{Client: &http.Client{Timeout: 10 * time.Second}}
}

func (r *HTTPNIP05Resolver) Resolve(ctx context.Context, name, domain string) (string, error) {
	endpoint := fmt.Sprintf("https://%s/.well-known/nostr.json?name=%s", domain, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", domain, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("query %s: unexpected status %d", domain, resp.StatusCode)
	}

	var doc struct {
		Names map[string]string `json:"names"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode response from %s: %w", domain, err)
	}
	pubkey, ok := doc.Names[name]
	if !ok || !models.IsHexPubkey(pubkey) {
		return "", fmt.Errorf("%s@%s has no published pubkey", name, domain)
	}
	return strings.ToLower(pubkey), nil
}

// NormalizeParticipant resolves a single participant identifier to a hex
// pubkey. Accepted forms are 64-char hex, npub, nprofile, and user@domain.
func NormalizeParticipant(ctx context.Context, raw string, resolver NIP05Resolver) (string, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return "", fmt.Errorf("empty participant")
	case models.IsHexPubkey(trimmed):
		return strings.ToLower(trimmed), nil
	case strings.HasPrefix(trimmed, "npub1"):
		return decodeNpub(trimmed)
	case strings.HasPrefix(trimmed, "nprofile1"):
		return decodeNprofile(trimmed)
	case strings.Contains(trimmed, "@"):
		parts := strings.SplitN(trimmed, "@", 2)
		name, domain := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if name == "" || domain == "" {
			return "", fmt.Errorf("%q is not a valid user@domain identifier", trimmed)
		}
		if resolver == nil {
			return "", fmt.Errorf("no resolver configured for %q", trimmed)
		}
		return resolver.Resolve(ctx, name, domain)
	default:
		return "", fmt.Errorf("%q is not a recognized participant identifier", trimmed)
	}
}

// ParseParticipantLines normalizes one participant identifier per line,
// skipping blank lines. An entry of the form "identifier; role" carries the
// role through. A bad line is reported with its line number but does not
// stop the remaining lines from parsing; every failure ends up in the
// returned error, alongside whatever entries were valid.
func ParseParticipantLines(ctx context.Context, input string, resolver NIP05Resolver) ([]models.Participant, error) {
	var out []models.Participant
	var errs []error
	for i, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		identifier, role := trimmed, ""
		if idx := strings.Index(trimmed, ";"); idx >= 0 {
			identifier = strings.TrimSpace(trimmed[:idx])
			role = strings.TrimSpace(trimmed[idx+1:])
		}

		pubkey, err := NormalizeParticipant(ctx, identifier, resolver)
		if err != nil {
			errs = append(errs, fmt.Errorf("participant on line %d: %w", i+1, err))
			continue
		}
		out = append(out, models.Participant{Pubkey: pubkey, Role: role})
	}
	if len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}

func decodeNpub(encoded string) (string, error) {
	hrp, data, err := bech32.DecodeNoLimit(strings.ToLower(encoded))
	if err != nil {
		return "", fmt.Errorf("decode npub: %w", err)
	}
	if hrp != "npub" {
		return "", fmt.Errorf("decode npub: unexpected prefix %q", hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("decode npub: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("decode npub: expected 32 bytes, got %d", len(raw))
	}
	return hex.EncodeToString(raw), nil
}

func decodeNprofile(encoded string) (string, error) {
	hrp, data, err := bech32.DecodeNoLimit(strings.ToLower(encoded))
	if err != nil {
		return "", fmt.Errorf("decode nprofile: %w", err)
	}
	if hrp != "nprofile" {
		return "", fmt.Errorf("decode nprofile: unexpected prefix %q", hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("decode nprofile: %w", err)
	}

	// TLV scan for the special (type 0) entry holding the pubkey.
	for offset := 0; offset+2 <= len(raw); {
		typ, length := raw[offset], int(raw[offset+1])
		offset += 2
		if offset+length > len(raw) {
			return "", fmt.Errorf("decode nprofile: truncated TLV entry")
		}
		if typ == 0 {
			if length != 32 {
				return "", fmt.Errorf("decode nprofile: expected 32-byte pubkey, got %d", length)
			}
			return hex.EncodeToString(raw[offset : offset+length]), nil
		}
		offset += length
	}
	return "", fmt.Errorf("decode nprofile: no pubkey entry")
}
