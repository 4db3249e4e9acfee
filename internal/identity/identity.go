// Package identity derives canonical paths and deterministic document ids.
//
// All functions are pure. DocId is an RFC 4122 version 5 UUID over a fixed
// namespace and the string "{NormalizedRepoUrl}|{CanonicalPath}", rendered as
// 32 lowercase hex characters. Other tools reproduce the same value, so the
// namespace and the input format must never change.
package identity

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/nuvos/nuvos-index/pkg/types"
)

// DocNamespace is the UUIDv5 namespace for document ids
var DocNamespace = uuid.MustParse("8c3e2b4f-61d9-4a7e-b0f5-2d9c7a41e6b3")

// DocumentIdentity ties a repository file to its stable DocId
type DocumentIdentity struct {
	RepoURL       string // Normalized
	ProjectID     string
	PathInRepo    string
	CanonicalPath string
	BlobURI       string
	DocID         string
}

// BuildCanonicalPath returns "{projectId}/{path}" lowercased, with forward
// slashes and no repeated, leading or trailing slashes.
func BuildCanonicalPath(projectID, pathInRepo string) (string, error) {
	project := cleanSegments(projectID)
	if project == "" {
		return "", fmt.Errorf("%w: project id is empty", types.ErrInvalidArgument)
	}

	p := cleanSegments(pathInRepo)
	if p == "" {
		return "", fmt.Errorf("%w: path in repo is empty", types.ErrInvalidArgument)
	}

	return strings.ToLower(project + "/" + p), nil
}

// NormalizePath applies the canonical slash and case rules to a path.
// It is idempotent, and every canonical path is a fixed point of it.
func NormalizePath(p string) string {
	return strings.ToLower(cleanSegments(p))
}

// NormalizeRepoURL lowercases the url, strips credentials, trailing slashes
// and a ".git" suffix, and rewrites scp-style "git@host:org/repo" to https.
func NormalizeRepoURL(raw string) (string, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "\\", "/"))
	if s == "" {
		return "", fmt.Errorf("%w: repo url is empty", types.ErrInvalidArgument)
	}

	// git@github.com:org/repo.git
	if !strings.Contains(s, "://") {
		if at := strings.Index(s, "@"); at >= 0 {
			if colon := strings.Index(s[at:], ":"); colon > 0 {
				host := s[at+1 : at+colon]
				s = "https://" + host + "/" + s[at+colon+1:]
			}
		}
	}

	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		u.User = nil
		u.RawQuery = ""
		u.Fragment = ""
		s = u.Scheme + "://" + u.Host + u.Path
	}

	s = strings.ToLower(s)
	for {
		trimmed := strings.TrimSuffix(strings.TrimSuffix(s, "/"), ".git")
		if trimmed == s {
			break
		}
		s = trimmed
	}

	if s == "" || strings.HasSuffix(s, "://") {
		return "", fmt.Errorf("%w: repo url %q has no host", types.ErrInvalidArgument, raw)
	}
	return s, nil
}

// ComputeDocID returns the UUIDv5 DocId for a repository file as 32 hex characters.
// The repo url is normalized first; the canonical path is used as given.
func ComputeDocID(repoURL, canonicalPath string) (string, error) {
	normalized, err := NormalizeRepoURL(repoURL)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(canonicalPath) == "" {
		return "", fmt.Errorf("%w: canonical path is empty", types.ErrInvalidArgument)
	}

	id := uuid.NewSHA1(DocNamespace, []byte(normalized+"|"+canonicalPath))
	return formatCompact(id), nil
}

// NewPointID returns a fresh random id for one stored chunk vector
func NewPointID() string {
	return uuid.New().String()
}

// Build derives the full identity for a file of a project
func Build(repoURL, projectID, ref, pathInRepo string) (DocumentIdentity, error) {
	normalized, err := NormalizeRepoURL(repoURL)
	if err != nil {
		return DocumentIdentity{}, err
	}

	canonical, err := BuildCanonicalPath(projectID, pathInRepo)
	if err != nil {
		return DocumentIdentity{}, err
	}

	docID, err := ComputeDocID(normalized, canonical)
	if err != nil {
		return DocumentIdentity{}, err
	}

	if ref == "" {
		ref = "main"
	}
	repoPath := cleanSegments(pathInRepo)

	return DocumentIdentity{
		RepoURL:       normalized,
		ProjectID:     strings.ToLower(cleanSegments(projectID)),
		PathInRepo:    repoPath,
		CanonicalPath: canonical,
		BlobURI:       normalized + "/blob/" + ref + "/" + repoPath,
		DocID:         docID,
	}, nil
}

// cleanSegments converts backslashes, drops empty and "." segments and
// trims surrounding slashes. Case is preserved.
func cleanSegments(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return ""
	}

	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		kept = append(kept, part)
	}
	return path.Join(kept...)
}

func formatCompact(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}
