package validators

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type samplePayload struct {
	Token string `json:"token" validate:"required"`
	Qty   int    `json:"qty" validate:"min=1"`
}

func multipartRequest(t *testing.T, payload string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if payload != "" {
		if err := writer.WriteField("payload", payload); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if file != nil {
		part, err := writer.CreateFormFile("proof", "receipt.png")
		if err != nil {
			t.Fatalf("create file: %v", err)
		}
		if _, err := part.Write(file); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestMultipartPayloadAndFile(t *testing.T) {
	req := multipartRequest(t, `{"token":"tok-1","qty":2}`, []byte("proof-bytes"))
	if err := ParseMultipart(httptest.NewRecorder(), req, 1024); err != nil {
		t.Fatalf("parse: %v", err)
	}

	var payload samplePayload
	if err := DecodeFormJSON(req, "payload", &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Token != "tok-1" || payload.Qty != 2 {
		t.Fatalf("unexpected payload %+v", payload)
	}

	file, err := FormFile(req, "proof")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if file == nil || file.Filename != "receipt.png" || file.Size != int64(len("proof-bytes")) {
		t.Fatalf("unexpected file %+v", file)
	}
}

func TestMultipartMissingFileIsNil(t *testing.T) {
	req := multipartRequest(t, `{"token":"tok-1","qty":1}`, nil)
	if err := ParseMultipart(httptest.NewRecorder(), req, 1024); err != nil {
		t.Fatalf("parse: %v", err)
	}
	file, err := FormFile(req, "proof")
	if err != nil || file != nil {
		t.Fatalf("expected no file, got %+v err=%v", file, err)
	}
}

func TestDecodeFormJSONValidates(t *testing.T) {
	req := multipartRequest(t, `{"token":"","qty":0}`, nil)
	if err := ParseMultipart(httptest.NewRecorder(), req, 1024); err != nil {
		t.Fatalf("parse: %v", err)
	}
	var payload samplePayload
	err := DecodeFormJSON(req, "payload", &payload)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok || details["token"] != "is required" || !strings.HasPrefix(details["qty"], "must be at least") {
		t.Fatalf("unexpected details %v", typed.Details())
	}
}

func TestParseMultipartRejectsOversizedBody(t *testing.T) {
	req := multipartRequest(t, `{"token":"tok-1","qty":1}`, bytes.Repeat([]byte("a"), 3<<20))
	err := ParseMultipart(httptest.NewRecorder(), req, 1024)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := ParseUUIDParam(req, "orderId")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s err=%v", id, got, err)
	}

	rctx.URLParams = chi.RouteParams{}
	rctx.URLParams.Add("orderId", "nope")
	if _, err := ParseUUIDParam(req, "orderId"); err == nil {
		t.Fatalf("expected error for invalid uuid")
	}
}

func TestDecodeJSONBodyRejectsTrailingDocument(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"a","qty":1}{"token":"b","qty":1}`))
	var payload samplePayload
	if err := DecodeJSONBody(req, &payload); err == nil {
		t.Fatalf("expected trailing document to be rejected")
	}
}

func TestSanitizeString(t *testing.T) {
	cases := map[string]struct {
		in   string
		max  int
		want string
	}{
		"trims":            {in: "  Ana  ", max: 10, want: "Ana"},
		"drops controls":   {in: "Ana\x00\tLopez", max: 0, want: "AnaLopez"},
		"caps by rune":     {in: "ñandú-ñandú", max: 5, want: "ñandú"},
		"no cap when zero": {in: "abcdef", max: 0, want: "abcdef"},
	}
	for name, tc := range cases {
		if got := SanitizeString(tc.in, tc.max); got != tc.want {
			t.Fatalf("%s: expected %q got %q", name, tc.want, got)
		}
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20", nil)
	if got, err := ParseQueryInt(req, "limit", 50, 1, 500); err != nil || got != 20 {
		t.Fatalf("expected 20, got %d err=%v", got, err)
	}
	if got, _ := ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 50, 1, 500); got != 50 {
		t.Fatalf("expected default 50, got %d", got)
	}
	if _, err := ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=0", nil), "limit", 50, 1, 500); err == nil {
		t.Fatalf("expected out of range error")
	}
}
