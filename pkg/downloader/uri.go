package downloader

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mudler/xlog"
)

const (
	HuggingFaceHost = "huggingface.co"
	HTTPPrefix      = "http://"
	HTTPSPrefix     = "https://"
	LocalPrefix     = "file://"

	DefaultRevision = "main"
)

// Candidate is one remote location a file can be fetched from. Either URL is
// set, or the (Source, Repository, Path) triple resolves to a hub-style
// "resolve" URL.
type Candidate struct {
	Source     string `yaml:"source,omitempty" json:"source,omitempty"`
	Repository string `yaml:"repository,omitempty" json:"repository,omitempty"`
	Path       string `yaml:"path,omitempty" json:"path,omitempty"`
	Revision   string `yaml:"revision,omitempty" json:"revision,omitempty"`
	URL        string `yaml:"url,omitempty" json:"url,omitempty"`
	SHA256     string `yaml:"sha256,omitempty" json:"sha256,omitempty"`
}

// ResolveURL returns the URL the candidate is downloaded from.
// e.g. {huggingface.co, Comfy-Org/z_image_turbo, vae/ae.safetensors} ->
// https://huggingface.co/Comfy-Org/z_image_turbo/resolve/main/vae/ae.safetensors
func (c Candidate) ResolveURL() string {
	if c.URL != "" {
		return c.URL
	}

	host := c.Source
	if host == "" {
		host = HuggingFaceHost
	}
	if !strings.HasPrefix(host, HTTPPrefix) && !strings.HasPrefix(host, HTTPSPrefix) {
		host = HTTPSPrefix + host
	}

	revision := c.Revision
	if revision == "" {
		revision = DefaultRevision
	}

	return strings.TrimSuffix(host, "/") + "/" + path.Join(
		strings.Trim(c.Repository, "/"),
		"resolve",
		revision,
		strings.TrimPrefix(c.Path, "/"),
	)
}

// String identifies the candidate in logs and error messages.
func (c Candidate) String() string {
	if c.URL != "" {
		return c.URL
	}
	source := c.Source
	if source == "" {
		source = HuggingFaceHost
	}
	return fmt.Sprintf("%s/%s (%s)", source, c.Repository, c.Path)
}

func (c Candidate) FilenameFromUrl() (string, error) {
	return filenameFromUrl(c.ResolveURL())
}

func filenameFromUrl(urlstr string) (string, error) {
	u, err := url.Parse(urlstr)
	if err != nil {
		return "", fmt.Errorf("error due to parsing url: %w", err)
	}
	x, err := url.QueryUnescape(u.EscapedPath())
	if err != nil {
		return "", fmt.Errorf("error due to escaping: %w", err)
	}
	return filepath.Base(x), nil
}

func (c Candidate) LooksLikeURL() bool {
	u := c.ResolveURL()
	return strings.HasPrefix(u, HTTPPrefix) || strings.HasPrefix(u, HTTPSPrefix) || c.IsLocal()
}

// IsLocal reports whether the candidate is a file:// mirror on a local or
// mounted filesystem.
func (c Candidate) IsLocal() bool {
	return strings.HasPrefix(c.URL, LocalPrefix)
}

func (c Candidate) LocalPath() string {
	return strings.TrimPrefix(c.URL, LocalPrefix)
}

func removePartialFile(tmpFilePath string) error {
	_, err := os.Stat(tmpFilePath)
	if err == nil {
		xlog.Debug("Removing temporary file", "file", tmpFilePath)
		err = os.Remove(tmpFilePath)
		if err != nil {
			err1 := fmt.Errorf("failed to remove temporary download file %s: %v", tmpFilePath, err)
			xlog.Warn(err1.Error())
			return err1
		}
	}
	return nil
}

func calculateSHA(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
