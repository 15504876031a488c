package errs_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/adamwoolhether/fetcher/web/errs"
	"github.com/google/go-cmp/cmp"
)

func TestNew(t *testing.T) {
	err := errs.New(http.StatusBadRequest, fmt.Errorf("bad input"))

	if err.Code != http.StatusBadRequest {
		t.Fatalf("Code = %d, want %d", err.Code, http.StatusBadRequest)
	}
	if err.Message != "bad input" {
		t.Fatalf("Message = %q, want %q", err.Message, "bad input")
	}
	if err.IsInternal() {
		t.Fatal("New should not be internal")
	}
	if !strings.Contains(err.FileName, "errors_test.go") {
		t.Fatalf("FileName = %q, want the caller's file", err.FileName)
	}
	if !strings.Contains(err.FuncName, "TestNew") {
		t.Fatalf("FuncName = %q, want the caller's func", err.FuncName)
	}
}

func TestNewInternal(t *testing.T) {
	err := errs.NewInternal(fmt.Errorf("storage failure"))

	if err.Code != http.StatusInternalServerError {
		t.Fatalf("Code = %d, want %d", err.Code, http.StatusInternalServerError)
	}
	if !err.IsInternal() {
		t.Fatal("NewInternal should be internal")
	}
	if !strings.Contains(err.FileName, "errors_test.go") {
		t.Fatalf("FileName = %q, want the caller's file", err.FileName)
	}
}

func TestNotFound(t *testing.T) {
	err := errs.NotFound("run %q not found", "abc")

	if err.Code != http.StatusNotFound {
		t.Fatalf("Code = %d, want %d", err.Code, http.StatusNotFound)
	}
	if err.Error() != `run "abc" not found` {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestError_JSON(t *testing.T) {
	data, err := json.Marshal(errs.New(http.StatusConflict, fmt.Errorf("run finished")))
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}

	if want := `{"code":409,"message":"run finished"}`; string(data) != want {
		t.Fatalf("json = %s, want %s", data, want)
	}
}

func TestFieldErrors(t *testing.T) {
	err := errs.NewFieldsError("urls", fmt.Errorf("at least one url is required"))

	fe := errs.GetFieldErrors(fmt.Errorf("wrapped: %w", err))
	if fe == nil {
		t.Fatal("expected FieldErrors in chain")
	}

	want := map[string]string{"urls": "at least one url is required"}
	if diff := cmp.Diff(want, fe.Fields()); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	if !strings.Contains(err.Error(), `"field":"urls"`) {
		t.Errorf("Error() = %s, want json", err.Error())
	}

	if errs.GetFieldErrors(fmt.Errorf("plain")) != nil {
		t.Error("expected nil for plain error")
	}
}
