package downloader_test

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/aether-sd/aether/pkg/downloader"
	"github.com/gofrs/flock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type mockSource struct {
	server *httptest.Server
	hits   atomic.Int32
}

func newMockSource(handler func(hit int32, w http.ResponseWriter)) *mockSource {
	m := &mockSource{}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(m.hits.Add(1), w)
	}))
	return m
}

func (m *mockSource) candidate() Candidate {
	return Candidate{URL: m.server.URL + "/ae.safetensors"}
}

func serving(data []byte) func(int32, http.ResponseWriter) {
	return func(_ int32, w http.ResponseWriter) {
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func failingWith(code int) func(int32, http.ResponseWriter) {
	return func(_ int32, w http.ResponseWriter) {
		w.WriteHeader(code)
	}
}

// rewriteHost sends every request to a test server, keeping the path.
type rewriteHost struct {
	target string
}

func (r rewriteHost) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = strings.TrimPrefix(r.target, "http://")
	return http.DefaultTransport.RoundTrip(req)
}

var _ = Describe("Fetcher", func() {
	const minSize = 1000

	var (
		tempDir  string
		dest     string
		mockData []byte
		sources  []*mockSource
		fetcher  *Fetcher
	)

	newSource := func(handler func(int32, http.ResponseWriter)) *mockSource {
		s := newMockSource(handler)
		sources = append(sources, s)
		return s
	}

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "aether-fetch")
		Expect(err).ToNot(HaveOccurred())
		dest = filepath.Join(tempDir, "ae.safetensors")

		mockData = make([]byte, 20000)
		_, err = rand.Read(mockData)
		Expect(err).ToNot(HaveOccurred())

		sources = nil
		fetcher = NewFetcher(WithRetryDelay(0))
	})

	AfterEach(func() {
		for _, s := range sources {
			s.server.Close()
		}
		os.RemoveAll(tempDir)
	})

	It("stops at the first candidate that validates", func() {
		first := newSource(serving(mockData))
		second := newSource(serving(mockData))

		path, err := fetcher.Fetch(context.Background(), FetchRequest{
			Candidates:   []Candidate{first.candidate(), second.candidate()},
			Destination:  dest,
			MinValidSize: minSize,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(path).To(Equal(dest))
		Expect(first.hits.Load()).To(BeEquivalentTo(1))
		Expect(second.hits.Load()).To(BeZero())

		content, err := os.ReadFile(dest)
		Expect(err).ToNot(HaveOccurred())
		Expect(content).To(Equal(mockData))
		Expect(dest + ".partial").ToNot(BeAnExistingFile())
	})

	It("falls back in order and never contacts candidates after a success", func() {
		missing := newSource(failingWith(http.StatusNotFound))
		good := newSource(serving(mockData))
		never := newSource(serving(mockData))

		path, err := fetcher.Fetch(context.Background(), FetchRequest{
			Candidates:   []Candidate{missing.candidate(), good.candidate(), never.candidate()},
			Destination:  dest,
			MinValidSize: minSize,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(path).To(Equal(dest))
		Expect(missing.hits.Load()).To(BeEquivalentTo(1), "a 404 is not retried")
		Expect(good.hits.Load()).To(BeEquivalentTo(1))
		Expect(never.hits.Load()).To(BeZero())
	})

	It("announces each candidate before trying it", func() {
		missing := newSource(failingWith(http.StatusNotFound))
		good := newSource(serving(mockData))
		never := newSource(serving(mockData))

		var started []string
		_, err := NewFetcher(WithRetryDelay(0), WithCandidateStart(func(c Candidate) {
			started = append(started, c.String())
		})).Fetch(context.Background(), FetchRequest{
			Candidates:   []Candidate{missing.candidate(), good.candidate(), never.candidate()},
			Destination:  dest,
			MinValidSize: minSize,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(started).To(Equal([]string{missing.candidate().String(), good.candidate().String()}))
	})

	It("never accepts a file at or below the minimum size", func() {
		tiny := newSource(serving([]byte("<html>rate limited</html>")))
		exact := newSource(serving(make([]byte, minSize)))

		_, err := fetcher.Fetch(context.Background(), FetchRequest{
			Candidates:   []Candidate{tiny.candidate(), exact.candidate()},
			Destination:  dest,
			MinValidSize: minSize,
			ManualSource: "https://huggingface.co/black-forest-labs/FLUX.1-dev",
		})
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, ErrTooSmall)).To(BeTrue())

		var exhausted *ExhaustedError
		Expect(errors.As(err, &exhausted)).To(BeTrue())
		Expect(exhausted.Failures).To(HaveLen(2))
		Expect(tiny.hits.Load()).To(BeEquivalentTo(1), "validation failures are not retried")
	})

	It("overwrites an invalid file left by a previous attempt", func() {
		Expect(os.WriteFile(dest, []byte("truncated"), 0644)).To(Succeed())
		src := newSource(serving(mockData))

		_, err := fetcher.Fetch(context.Background(), FetchRequest{
			Candidates:   []Candidate{src.candidate()},
			Destination:  dest,
			MinValidSize: minSize,
		})
		Expect(err).ToNot(HaveOccurred())

		content, err := os.ReadFile(dest)
		Expect(err).ToNot(HaveOccurred())
		Expect(content).To(Equal(mockData))
	})

	It("retries transient failures within one candidate", func() {
		flaky := newSource(func(hit int32, w http.ResponseWriter) {
			if hit < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			w.Write(mockData)
		})

		_, err := fetcher.Fetch(context.Background(), FetchRequest{
			Candidates:   []Candidate{flaky.candidate()},
			Destination:  dest,
			MinValidSize: minSize,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(flaky.hits.Load()).To(BeEquivalentTo(3))
	})

	It("gives up on a candidate after the retry bound and moves on", func() {
		down := newSource(failingWith(http.StatusBadGateway))
		good := newSource(serving(mockData))

		_, err := NewFetcher(WithRetryDelay(0), WithRetries(2)).Fetch(context.Background(), FetchRequest{
			Candidates:   []Candidate{down.candidate(), good.candidate()},
			Destination:  dest,
			MinValidSize: minSize,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(down.hits.Load()).To(BeEquivalentTo(3))
		Expect(good.hits.Load()).To(BeEquivalentTo(1))
	})

	It("reports manual recovery steps when every candidate fails", func() {
		a := newSource(failingWith(http.StatusNotFound))
		b := newSource(failingWith(http.StatusForbidden))

		path, err := fetcher.Fetch(context.Background(), FetchRequest{
			Candidates:   []Candidate{a.candidate(), b.candidate()},
			Destination:  dest,
			MinValidSize: minSize,
			ManualSource: "https://huggingface.co/black-forest-labs/FLUX.1-dev",
		})
		Expect(path).To(BeEmpty())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("https://huggingface.co/black-forest-labs/FLUX.1-dev"))
		Expect(err.Error()).To(ContainSubstring(dest))
		Expect(err.Error()).To(ContainSubstring("ae.safetensors"))

		var statusErr *StatusError
		Expect(errors.As(err, &statusErr)).To(BeTrue())
		Expect(statusErr.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("skips the network when a valid file is already present", func() {
		Expect(os.WriteFile(dest, mockData, 0644)).To(Succeed())
		src := newSource(serving(mockData))

		path, err := fetcher.Fetch(context.Background(), FetchRequest{
			Candidates:   []Candidate{src.candidate()},
			Destination:  dest,
			MinValidSize: minSize,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(path).To(Equal(dest))
		Expect(src.hits.Load()).To(BeZero())
	})

	It("downloads again when forced", func() {
		Expect(os.WriteFile(dest, make([]byte, 5000), 0644)).To(Succeed())
		src := newSource(serving(mockData))

		_, err := NewFetcher(WithRetryDelay(0), WithForce(true)).Fetch(context.Background(), FetchRequest{
			Candidates:   []Candidate{src.candidate()},
			Destination:  dest,
			MinValidSize: minSize,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(src.hits.Load()).To(BeEquivalentTo(1))
	})

	It("verifies the SHA-256 when the candidate carries one", func() {
		sum := sha256.Sum256(mockData)
		src := newSource(serving(mockData))
		bad := src.candidate()
		bad.SHA256 = "deadbeef"
		good := src.candidate()
		good.SHA256 = fmt.Sprintf("%x", sum)

		_, err := fetcher.Fetch(context.Background(), FetchRequest{
			Candidates:   []Candidate{bad},
			Destination:  dest,
			MinValidSize: minSize,
		})
		Expect(errors.Is(err, ErrSHAMismatch)).To(BeTrue())

		_, err = NewFetcher(WithRetryDelay(0), WithForce(true)).Fetch(context.Background(), FetchRequest{
			Candidates:   []Candidate{good},
			Destination:  dest,
			MinValidSize: minSize,
		})
		Expect(err).ToNot(HaveOccurred())
	})

	It("reports progress while writing", func() {
		src := newSource(serving(mockData))
		var lastPercentage float64

		_, err := NewFetcher(WithDownloadStatus(func(fileName, current, total string, percentage float64) {
			lastPercentage = percentage
		})).Fetch(context.Background(), FetchRequest{
			Candidates:   []Candidate{src.candidate()},
			Destination:  dest,
			MinValidSize: minSize,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(lastPercentage).To(BeNumerically("==", 100))
	})

	It("copies from a file:// mirror", func() {
		mirror := filepath.Join(tempDir, "mirror.safetensors")
		Expect(os.WriteFile(mirror, mockData, 0644)).To(Succeed())
		remote := newSource(serving(mockData))

		_, err := fetcher.Fetch(context.Background(), FetchRequest{
			Candidates:   []Candidate{{URL: "file://" + mirror}, remote.candidate()},
			Destination:  dest,
			MinValidSize: minSize,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(remote.hits.Load()).To(BeZero())

		content, err := os.ReadFile(dest)
		Expect(err).ToNot(HaveOccurred())
		Expect(content).To(Equal(mockData))
	})

	It("skips hub candidates whose repository is flagged by the scan", func() {
		var (
			mu        sync.Mutex
			requested []string
		)
		hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			requested = append(requested, r.URL.Path)
			mu.Unlock()
			switch {
			case r.URL.Path == "/api/models/evil/repo/scan":
				fmt.Fprint(w, `{"hasUnsafeFile": true, "dangerousPickles": ["ae.safetensors"]}`)
			case strings.HasSuffix(r.URL.Path, "/scan"):
				fmt.Fprint(w, `{"hasUnsafeFile": false}`)
			default:
				w.Header().Set("Content-Length", strconv.Itoa(len(mockData)))
				w.Write(mockData)
			}
		}))
		defer hub.Close()

		fetcher = NewFetcher(
			WithRetryDelay(0),
			WithPredownloadScan(true),
			WithHTTPClient(&http.Client{Transport: rewriteHost{hub.URL}}),
		)
		_, err := fetcher.Fetch(context.Background(), FetchRequest{
			Candidates: []Candidate{
				{Repository: "evil/repo", Path: "ae.safetensors"},
				{Repository: "good/repo", Path: "ae.safetensors"},
			},
			Destination:  dest,
			MinValidSize: minSize,
		})
		Expect(err).ToNot(HaveOccurred())
		mu.Lock()
		defer mu.Unlock()
		Expect(requested).ToNot(ContainElement("/evil/repo/resolve/main/ae.safetensors"))
		Expect(requested).To(ContainElement("/good/repo/resolve/main/ae.safetensors"))
	})

	It("does not write while another fetcher holds the destination", func() {
		lock := flock.New(dest + ".lock")
		Expect(lock.Lock()).To(Succeed())
		defer lock.Unlock()
		remote := newSource(serving(mockData))

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()
		_, err := fetcher.Fetch(ctx, FetchRequest{
			Candidates:   []Candidate{remote.candidate()},
			Destination:  dest,
			MinValidSize: minSize,
		})
		Expect(err).To(MatchError(ContainSubstring("failed to lock")))
		Expect(remote.hits.Load()).To(BeZero())
	})

	It("rejects an empty candidate list", func() {
		_, err := fetcher.Fetch(context.Background(), FetchRequest{Destination: dest})
		Expect(err).To(MatchError(ErrNoCandidates))
	})
})

var _ = Describe("Validate", func() {
	It("requires strictly more bytes than the minimum", func() {
		f, err := os.CreateTemp("", "aether-validate")
		Expect(err).ToNot(HaveOccurred())
		defer os.Remove(f.Name())
		_, err = f.Write(make([]byte, 10))
		Expect(err).ToNot(HaveOccurred())
		f.Close()

		Expect(Validate(f.Name(), 10, "")).To(MatchError(ErrTooSmall))
		Expect(Validate(f.Name(), 9, "")).To(Succeed())
	})
})
