package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/mudler/xlog"
	cp "github.com/otiai10/copy"
)

const (
	DefaultTransferTimeout  = 300 * time.Second
	DefaultCandidateTimeout = 320 * time.Second
	DefaultRetries          = 3
	DefaultRetryDelay       = time.Second
	DefaultMinValidSize     = 1000000
)

var (
	ErrNoCandidates = errors.New("no download candidates configured")
	ErrTooSmall     = errors.New("downloaded file is smaller than the minimum valid size")
	ErrSHAMismatch  = errors.New("SHA mismatch")
)

// FetchRequest describes one logical file and the ordered places it can be
// fetched from.
type FetchRequest struct {
	Candidates   []Candidate
	Destination  string
	MinValidSize int64
	// ManualSource is the authoritative page a human can download the file
	// from when every candidate fails.
	ManualSource string
}

// StatusError is returned when a candidate answers with an HTTP error.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to download url %q, invalid status code %d", e.URL, e.StatusCode)
}

// Temporary reports whether the status is worth retrying against the same
// candidate.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Temporary()
}

type CandidateError struct {
	Candidate Candidate
	Err       error
}

func (e CandidateError) Error() string {
	return fmt.Sprintf("%s: %v", e.Candidate, e.Err)
}

func (e CandidateError) Unwrap() error { return e.Err }

// ExhaustedError is returned when no candidate produced a valid file. Its
// message tells a human how to finish the step by hand.
type ExhaustedError struct {
	ManualSource string
	Destination  string
	Failures     []CandidateError
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("all download candidates failed")
	for i, f := range e.Failures {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, f.Error())
	}
	b.WriteString("\nDownload the file manually:")
	if e.ManualSource != "" {
		fmt.Fprintf(&b, "\n  1. Visit %s", e.ManualSource)
	} else {
		b.WriteString("\n  1. Visit the upstream model repository")
	}
	fmt.Fprintf(&b, "\n  2. Download %s", filepath.Base(e.Destination))
	fmt.Fprintf(&b, "\n  3. Place it at %s", e.Destination)
	return b.String()
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

type Fetcher struct {
	client           *http.Client
	transferTimeout  time.Duration
	candidateTimeout time.Duration
	retries          int
	retryDelay       time.Duration
	force            bool
	scan             bool
	downloadStatus   StatusFunc
	candidateStart   func(Candidate)
}

type FetcherOption func(*Fetcher)

func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithTransferTimeout bounds a single transfer attempt.
func WithTransferTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.transferTimeout = d
	}
}

// WithCandidateTimeout bounds all attempts against one candidate, retries
// included.
func WithCandidateTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.candidateTimeout = d
	}
}

func WithRetries(n int) FetcherOption {
	return func(f *Fetcher) {
		f.retries = n
	}
}

func WithRetryDelay(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.retryDelay = d
	}
}

// WithForce downloads even if the destination already holds a valid file.
func WithForce(b bool) FetcherOption {
	return func(f *Fetcher) {
		f.force = b
	}
}

// WithPredownloadScan skips hub candidates whose repository is flagged by
// the hub's security scanner.
func WithPredownloadScan(b bool) FetcherOption {
	return func(f *Fetcher) {
		f.scan = b
	}
}

func WithDownloadStatus(fn StatusFunc) FetcherOption {
	return func(f *Fetcher) {
		f.downloadStatus = fn
	}
}

// WithCandidateStart is called before the first attempt against each
// candidate.
func WithCandidateStart(fn func(Candidate)) FetcherOption {
	return func(f *Fetcher) {
		f.candidateStart = fn
	}
}

func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:           &http.Client{},
		transferTimeout:  DefaultTransferTimeout,
		candidateTimeout: DefaultCandidateTimeout,
		retries:          DefaultRetries,
		retryDelay:       DefaultRetryDelay,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch tries the candidates in order and returns the destination path of
// the first one that passes Validate. Later candidates are never contacted
// once one succeeds.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) (string, error) {
	if len(req.Candidates) == 0 {
		return "", ErrNoCandidates
	}
	if req.Destination == "" {
		return "", errors.New("destination path is required")
	}

	dest, err := filepath.Abs(req.Destination)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return "", fmt.Errorf("failed to create parent directory for file %q: %w", dest, err)
	}

	fileLock := flock.New(dest + ".lock")
	locked, err := fileLock.TryLockContext(ctx, 500*time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("failed to lock %q: %w", dest, err)
	}
	if !locked {
		return "", fmt.Errorf("failed to lock %q", dest)
	}
	defer fileLock.Unlock()

	if !f.force {
		if err := Validate(dest, req.MinValidSize, ""); err == nil {
			xlog.Info("File already present, skipping download", "file", dest)
			return dest, nil
		}
	}

	exhausted := &ExhaustedError{ManualSource: req.ManualSource, Destination: dest}
	for i, c := range req.Candidates {
		xlog.Info("Trying download candidate", "candidate", c.String(), "position", fmt.Sprintf("%d/%d", i+1, len(req.Candidates)))
		if f.candidateStart != nil {
			f.candidateStart(c)
		}

		err := f.fetchCandidate(ctx, c, dest, req.MinValidSize)
		if err == nil {
			xlog.Info("File downloaded and verified", "file", dest, "candidate", c.String())
			return dest, nil
		}

		xlog.Warn("Download candidate failed", "candidate", c.String(), "error", err)
		exhausted.Failures = append(exhausted.Failures, CandidateError{Candidate: c, Err: err})

		if ctx.Err() != nil {
			return "", fmt.Errorf("download interrupted: %w", ctx.Err())
		}
	}

	return "", exhausted
}

func (f *Fetcher) fetchCandidate(ctx context.Context, c Candidate, dest string, minSize int64) error {
	if !c.LooksLikeURL() {
		return fmt.Errorf("unsupported candidate url %q", c.ResolveURL())
	}

	ctx, cancel := context.WithTimeout(ctx, f.candidateTimeout)
	defer cancel()

	if f.scan {
		scanResults, err := HuggingFaceScan(ctx, f.client, c)
		if errors.Is(err, ErrUnsafeFilesFound) {
			xlog.Error("! WARNING ! A known-vulnerable file is included in this repo!", "candidate", c.String(),
				"clamAV", scanResults.ClamAVInfectedFiles, "pickles", scanResults.DangerousPickles)
			return err
		}
		if err != nil && !errors.Is(err, ErrNonHuggingFaceFile) {
			xlog.Debug("Security scan unavailable, continuing", "candidate", c.String(), "error", err)
		}
	}

	var err error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			xlog.Debug("Retrying download", "candidate", c.String(), "retry", attempt, "error", err)
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
			case <-time.After(f.retryDelay):
			}
		}

		err = f.transfer(ctx, c, dest)
		if err == nil || !isTransient(err) || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return err
	}

	return Validate(dest, minSize, c.SHA256)
}

func (f *Fetcher) transfer(ctx context.Context, c Candidate, dest string) error {
	if c.IsLocal() {
		return copyLocal(c.LocalPath(), dest)
	}

	url := c.ResolveURL()

	ctx, cancel := context.WithTimeout(ctx, f.transferTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	xlog.Info("Downloading", "url", url)
	resp, err := f.client.Do(req)
	if err != nil {
		return &transientError{fmt.Errorf("failed to download %q: %w", url, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	// save partial download to dedicated file
	tmpFilePath := dest + ".partial"
	if err := removePartialFile(tmpFilePath); err != nil {
		return err
	}

	outFile, err := os.Create(tmpFilePath)
	if err != nil {
		return fmt.Errorf("failed to create file %q: %w", tmpFilePath, err)
	}

	progress := &progressWriter{
		ctx:      ctx,
		fileName: dest,
		total:    resp.ContentLength,
		report:   f.downloadStatus,
	}
	_, err = io.Copy(io.MultiWriter(outFile, progress), resp.Body)
	closeErr := outFile.Close()
	if err != nil {
		return &transientError{fmt.Errorf("failed to write file %q: %w", dest, err)}
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close file %q: %w", tmpFilePath, closeErr)
	}

	if err := os.Rename(tmpFilePath, dest); err != nil {
		return fmt.Errorf("failed to rename temporary file %s -> %s: %v", tmpFilePath, dest, err)
	}

	return nil
}

func copyLocal(src, dest string) error {
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return fmt.Errorf("local mirror %q: %w", src, err)
	}

	tmpFilePath := dest + ".partial"
	if err := removePartialFile(tmpFilePath); err != nil {
		return err
	}

	xlog.Info("Copying from local mirror", "file", resolved)
	if err := cp.Copy(resolved, tmpFilePath); err != nil {
		return fmt.Errorf("failed copying %q: %w", resolved, err)
	}
	if err := os.Rename(tmpFilePath, dest); err != nil {
		return fmt.Errorf("failed to rename temporary file %s -> %s: %v", tmpFilePath, dest, err)
	}
	return nil
}

// Validate is the acceptance predicate for a fetched file: it must exist, be
// strictly larger than minSize and match sha when one is given. Transfer
// success alone never makes a file valid.
func Validate(filePath string, minSize int64, sha string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%q is a directory", filePath)
	}
	if info.Size() <= minSize {
		return fmt.Errorf("%w: %q is %s, expected more than %s", ErrTooSmall, filePath, formatBytes(info.Size()), formatBytes(minSize))
	}

	if sha == "" {
		xlog.Debug("SHA missing, skipping validation", "file", filePath)
		return nil
	}

	calculatedSHA, err := calculateSHA(filePath)
	if err != nil {
		return fmt.Errorf("failed to calculate SHA for file %q: %v", filePath, err)
	}
	if !strings.EqualFold(calculatedSHA, sha) {
		return fmt.Errorf("%w for file %q ( calculated: %s != metadata: %s )", ErrSHAMismatch, filePath, calculatedSHA, sha)
	}
	return nil
}
