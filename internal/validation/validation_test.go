package validation

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 100, "hello"},
		{"  hello  ", 100, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 100, "helloworld"},
		{"", 100, ""},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("object_id", ""),
		Required("domain", "app.example"),
		SuiID("package_id", "0xzz"),
		SuiID("optional", ""),
		SuiID("ok", "0x2"),
	)

	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].Field != "object_id" || errs[1].Field != "package_id" {
		t.Errorf("unexpected fields: %v", errs)
	}
	if errs.Error() != "object_id: is required" {
		t.Errorf("Error() = %q", errs.Error())
	}
	if (ValidationErrors{}).Error() != "validation failed" {
		t.Error("empty errors should have a generic message")
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestSizeMiddleware(8))
	router.POST("/", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if IsBodyTooLarge(err) {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	small := httptest.NewRecorder()
	router.ServeHTTP(small, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny")))
	if small.Code != http.StatusOK {
		t.Errorf("small body: got %d", small.Code)
	}

	big := httptest.NewRecorder()
	router.ServeHTTP(big, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(make([]byte, 64))))
	if big.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("big body: got %d", big.Code)
	}
}

func TestPackageIDParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/reports/:packageId", PackageIDParamMiddleware("packageId"), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(PackageIDKey))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports/0xABC", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("valid id: got %d", w.Code)
	}
	want := "0x" + strings.Repeat("0", 61) + "abc"
	if w.Body.String() != want {
		t.Errorf("normalized id = %q, want %q", w.Body.String(), want)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reports/abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid id: got %d", w.Code)
	}
}
