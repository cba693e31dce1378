package file_fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/prebid/stored-responses/stored_requests"
)

// NewFileFetcher _immediately_ loads stored response data from local files.
// These are stored in memory for low-latency reads.
//
// This expects each file in the directory to be named "{response_id}.json".
// For example, when asked to fetch the response with ID == "23", it will return the data from "directory/23.json".
func NewFileFetcher(directory string) (stored_requests.Fetcher, error) {
	storedData, err := collectStoredData(directory)
	if err != nil {
		return nil, err
	}
	glog.Infof("Loaded %d stored responses from %s", len(storedData), directory)
	return &eagerFetcher{storedData}, nil
}

type eagerFetcher struct {
	storedData map[string]json.RawMessage
}

func (fetcher *eagerFetcher) FetchResponses(ctx context.Context, ids []string) (data map[string]json.RawMessage, errs []error) {
	data = make(map[string]json.RawMessage, len(ids))
	for _, id := range ids {
		if payload, ok := fetcher.storedData[id]; ok {
			data[id] = payload
		}
	}
	return data, stored_requests.NewNotFoundErrors(ids, data)
}

func collectStoredData(directory string) (map[string]json.RawMessage, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, err
	}
	data := make(map[string]json.RawMessage, len(entries))
	for _, entry := range entries {
		// Skip the .gitignore and anything that isn't a payload file
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		fileData, err := os.ReadFile(filepath.Join(directory, entry.Name()))
		if err != nil {
			return nil, err
		}
		if !json.Valid(fileData) {
			return nil, fmt.Errorf("stored response file %s does not contain valid JSON", entry.Name())
		}
		data[strings.TrimSuffix(entry.Name(), ".json")] = json.RawMessage(fileData)
	}
	return data, nil
}
