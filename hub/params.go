package hub

import (
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"strings"
	"time"
)

// DefaultRevision is used when a download names no revision.
const DefaultRevision = "main"

// RepoType selects which family of repositories a repo id lives in.
type RepoType string

const (
	RepoTypeModel   RepoType = "model"
	RepoTypeDataset RepoType = "dataset"
	RepoTypeSpace   RepoType = "space"
)

// urlPrefix is prepended to the repo id in resolve URLs. Models have none.
func (rt RepoType) urlPrefix() string {
	switch rt {
	case RepoTypeDataset:
		return "datasets/"
	case RepoTypeSpace:
		return "spaces/"
	default:
		return ""
	}
}

// Params are the arguments of [Hub.Download].
type Params struct {
	RepoID         string   `validate:"required,repoid"`
	Filename       string   `validate:"required,cachepath"`
	Revision       string   `validate:"required,cachepath"`
	RepoType       RepoType `validate:"required,oneof=model dataset space"`
	LibraryName    string
	LibraryVersion string

	// CacheDir overrides the configured cache directory.
	CacheDir string `validate:"required"`

	// ForceFilename, when set, places a copy of the file directly under the
	// cache directory with this name and returns that path.
	ForceFilename string `validate:"omitempty,cachepath"`

	// ResumeDownload is accepted for compatibility only; interrupted
	// downloads always restart from a fresh temp file.
	ResumeDownload *bool

	// Proxies maps a URL scheme ("http", "https" or "all") to a proxy URL.
	Proxies map[string]string

	// EtagTimeout bounds the metadata request. Zero uses the configured default.
	EtagTimeout time.Duration `validate:"gte=0"`

	Token          Token
	UserAgent      UserAgent
	ForceDownload  bool
	LocalFilesOnly bool
}

// withDefaults fills the zero-valued fields the hub knows a default for.
func (p Params) withDefaults(cfg Config) Params {
	if p.Revision == "" {
		p.Revision = DefaultRevision
	}
	if p.RepoType == "" {
		p.RepoType = RepoTypeModel
	}
	if p.CacheDir == "" {
		p.CacheDir = cfg.CacheDir
	}
	if p.EtagTimeout == 0 {
		p.EtagTimeout = cfg.EtagTimeout
	}
	return p
}

// /////////////////////////////////////////////////////////////////

type tokenMode uint8

const (
	tokenUnset tokenMode = iota
	tokenValue
	tokenEnabled
	tokenDisabled
)

// Token selects the credential sent with hub requests. The zero value is
// "unset": the configured token is used when one exists.
type Token struct {
	mode  tokenMode
	value string
}

// TokenValue sends v as the bearer token. An empty v is the same as unset.
func TokenValue(v string) Token {
	if v == "" {
		return Token{}
	}
	return Token{mode: tokenValue, value: v}
}

// TokenEnabled requires the configured token; downloads fail with
// [ErrTokenNotFound] when there is none.
func TokenEnabled() Token { return Token{mode: tokenEnabled} }

// TokenDisabled sends no credentials even when a token is configured.
func TokenDisabled() Token { return Token{mode: tokenDisabled} }

// IsSet reports whether the token was chosen explicitly.
func (t Token) IsSet() bool { return t.mode != tokenUnset }

// String never reveals the token value.
func (t Token) String() string {
	switch t.mode {
	case tokenValue:
		return "<redacted>"
	case tokenEnabled:
		return "<enabled>"
	case tokenDisabled:
		return "<disabled>"
	default:
		return "<unset>"
	}
}

// LogValue implements slog.LogValuer.
func (t Token) LogValue() slog.Value { return slog.StringValue(t.String()) }

// resolve returns the bearer token to send, empty for none.
func (t Token) resolve(configured string) (string, error) {
	switch t.mode {
	case tokenValue:
		return t.value, nil
	case tokenDisabled:
		return "", nil
	case tokenEnabled:
		if configured == "" {
			return "", ErrTokenNotFound
		}
		return configured, nil
	default:
		return configured, nil
	}
}

// /////////////////////////////////////////////////////////////////

// UserAgent is appended to the User-Agent header the hub sends. It is
// either a raw string or a set of name/version fields.
type UserAgent struct {
	raw    string
	fields map[string]string
}

// UserAgentString appends s verbatim.
func UserAgentString(s string) UserAgent { return UserAgent{raw: s} }

// UserAgentFields appends each entry as "key/value", sorted by key.
func UserAgentFields(fields map[string]string) UserAgent {
	return UserAgent{fields: maps.Clone(fields)}
}

// IsSet reports whether anything will be appended.
func (ua UserAgent) IsSet() bool { return ua.raw != "" || len(ua.fields) > 0 }

func (ua UserAgent) String() string {
	if ua.raw != "" {
		return ua.raw
	}

	parts := make([]string, 0, len(ua.fields))
	for _, k := range slices.Sorted(maps.Keys(ua.fields)) {
		parts = append(parts, k+"/"+ua.fields[k])
	}
	return strings.Join(parts, "; ")
}

// buildUserAgent composes the User-Agent header for a download.
func buildUserAgent(libraryName, libraryVersion string, ua UserAgent) string {
	if libraryName == "" {
		libraryName = "unknown"
	}
	if libraryVersion == "" {
		libraryVersion = "None"
	}

	header := fmt.Sprintf("%s/%s; hubshim/%s; go/%s", libraryName, libraryVersion, Version, strings.TrimPrefix(runtime.Version(), "go"))
	if ua.IsSet() {
		header += "; " + ua.String()
	}
	return header
}
