// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"grimm.is/flowshape/internal/engine"
	"grimm.is/flowshape/internal/errors"
	"grimm.is/flowshape/internal/qos"
)

// RemoteBackend implements Backend using the HTTP API
type RemoteBackend struct {
	BaseURL string
	Client  *http.Client
}

// NewRemoteBackend creates a new remote backend
func NewRemoteBackend(baseURL string) *RemoteBackend {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &RemoteBackend{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *RemoteBackend) do(method, path string) (*http.Response, error) {
	req, err := http.NewRequest(method, b.BaseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, errors.Attr(errors.Wrap(err, errors.KindUnavailable, "api unreachable"), "url", b.BaseURL)
	}
	return resp, nil
}

// getJSON decodes a 200 response into dest. found is false on 404.
func (b *RemoteBackend) getJSON(method, path string, dest any) (found bool, err error) {
	resp, err := b.do(method, path)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, errors.Attr(errors.Errorf(errors.KindUnavailable, "api error: %s", resp.Status), "path", path)
	}
	if dest == nil {
		return true, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return false, errors.Wrapf(err, errors.KindInternal, "decode %s", path)
	}
	return true, nil
}

func (b *RemoteBackend) GetCurrent() (*Current, error) {
	var cur Current
	found, err := b.getJSON(http.MethodGet, "/api/metrics/current", &cur)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New(errors.KindNotFound, "metrics endpoint missing")
	}
	return &cur, nil
}

// GetSnapshot returns nil, nil before the first cycle.
func (b *RemoteBackend) GetSnapshot() (*engine.Snapshot, error) {
	var snap engine.Snapshot
	found, err := b.getJSON(http.MethodGet, "/api/snapshot", &snap)
	if err != nil || !found {
		return nil, err
	}
	return &snap, nil
}

func (b *RemoteBackend) GetRules() ([]qos.Policy, error) {
	var data struct {
		Rules []qos.Policy `json:"rules"`
	}
	if _, err := b.getJSON(http.MethodGet, "/api/qos/rules", &data); err != nil {
		return nil, err
	}
	return data.Rules, nil
}

func (b *RemoteBackend) RemoveRule(protocol string) error {
	_, err := b.getJSON(http.MethodDelete, "/api/qos/rules/"+url.PathEscape(protocol), nil)
	return err
}

func (b *RemoteBackend) ClearMetrics() error {
	_, err := b.getJSON(http.MethodPost, "/api/metrics/clear", nil)
	return err
}
