package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type HuggingFaceScanResult struct {
	RepositoryId        string   `json:"repositoryId"`
	Revision            string   `json:"revision"`
	HasUnsafeFiles      bool     `json:"hasUnsafeFile"`
	ClamAVInfectedFiles []string `json:"clamAVInfectedFiles"`
	DangerousPickles    []string `json:"dangerousPickles"`
	ScansDone           bool     `json:"scansDone"`
}

var ErrNonHuggingFaceFile = errors.New("not a huggingface repo")
var ErrUnsafeFilesFound = errors.New("unsafe files found")

// HuggingFaceScanEndpoint is the base of the hub's repository scan API.
var HuggingFaceScanEndpoint = "https://huggingface.co/api/models"

// HuggingFaceScan asks the hub for the security scan of the repository the
// candidate lives in. Candidates hosted elsewhere return ErrNonHuggingFaceFile.
func HuggingFaceScan(ctx context.Context, client *http.Client, c Candidate) (*HuggingFaceScanResult, error) {
	cleanParts := strings.Split(c.ResolveURL(), "/")
	if len(cleanParts) <= 4 || cleanParts[2] != HuggingFaceHost {
		return nil, ErrNonHuggingFaceFile
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s/%s/scan", HuggingFaceScanEndpoint, cleanParts[3], cleanParts[4]), nil)
	if err != nil {
		return nil, err
	}
	results, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer results.Body.Close()

	if results.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code during HuggingFaceScan: %d", results.StatusCode)
	}
	scanResult := &HuggingFaceScanResult{}
	bodyBytes, err := io.ReadAll(results.Body)
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(bodyBytes, scanResult)
	if err != nil {
		return nil, err
	}
	if scanResult.HasUnsafeFiles {
		return scanResult, ErrUnsafeFilesFound
	}
	return scanResult, nil
}
