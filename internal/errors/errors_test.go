// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestError(t *testing.T) {
	err := New(KindValidation, "protocol is required")
	if err.Error() != "protocol is required" {
		t.Errorf("expected 'protocol is required', got '%s'", err.Error())
	}

	wrapped := Wrap(err, KindInternal, "failed to set policy")
	if wrapped.Error() != "failed to set policy: protocol is required" {
		t.Errorf("unexpected message '%s'", wrapped.Error())
	}

	if Wrap(nil, KindInternal, "nothing") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestGetKind(t *testing.T) {
	err := Errorf(KindNotFound, "policy %q not found", "TCP")
	if GetKind(err) != KindNotFound {
		t.Errorf("expected KindNotFound, got %v", GetKind(err))
	}
	if !IsKind(Wrap(err, KindUnavailable, "store"), KindUnavailable) {
		t.Error("expected outer kind to win")
	}
	if GetKind(errors.New("std error")) != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", GetKind(errors.New("std error")))
	}
}

func TestAttributes(t *testing.T) {
	err := New(KindValidation, "negative priority")
	err = Attr(err, "field", "priority")
	err = Attr(err, "value", -1)

	wrapped := Attr(Wrap(err, KindInternal, "apply failed"), "protocol", "UDP")

	attrs := GetAttributes(wrapped)
	if attrs["field"] != "priority" || attrs["value"] != -1 || attrs["protocol"] != "UDP" {
		t.Errorf("missing attributes: %v", attrs)
	}

	plain := Attr(errors.New("boom"), "stage", "cluster")
	if GetKind(plain) != KindInternal {
		t.Errorf("plain errors should be promoted to KindInternal, got %v", GetKind(plain))
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{New(KindValidation, "bad"), http.StatusBadRequest},
		{New(KindNotFound, "missing"), http.StatusNotFound},
		{New(KindUnavailable, "down"), http.StatusServiceUnavailable},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d; want %d", tt.err, got, tt.want)
		}
	}
}
