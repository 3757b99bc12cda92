package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeTaskNotFound, "task not found")
	wrapped := fmt.Errorf("handling request: %w", err)

	if !stderrors.Is(wrapped, New(CodeTaskNotFound, "other message")) {
		t.Fatal("expected errors with the same code to match")
	}
	if stderrors.Is(wrapped, New(CodeChatNotFound, "task not found")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeStorageFailure, "write task", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeTaskSelfAccept, http.StatusBadRequest},
		{CodeTaskUnavailable, http.StatusBadRequest},
		{CodeMessageTooLong, http.StatusBadRequest},
		{CodeTaskActorNotAllowed, http.StatusForbidden},
		{CodeChatSenderNotMember, http.StatusForbidden},
		{CodeTaskNotFound, http.StatusNotFound},
		{CodeStorageFailure, http.StatusInternalServerError},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.code, got, tc.want)
		}
	}
}
