package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  Params
	}{
		{"defaults", "", Params{Limit: DefaultLimit, Offset: 0}},
		{"fhir spelling", "_count=10&_offset=30", Params{Limit: 10, Offset: 30}},
		{"plain spelling", "limit=10&offset=30", Params{Limit: 10, Offset: 30}},
		{"fhir wins", "_count=5&limit=10", Params{Limit: 5, Offset: 0}},
		{"limit capped", "_count=500", Params{Limit: MaxLimit, Offset: 0}},
		{"negative ignored", "_count=-1&_offset=-5", Params{Limit: DefaultLimit, Offset: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := paramsFor(tc.query); got != tc.want {
				t.Errorf("params = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestNewResponseHasMore(t *testing.T) {
	if r := NewResponse(nil, 50, 20, 0); !r.HasMore {
		t.Error("expected more pages at offset 0 of 50")
	}
	if r := NewResponse(nil, 50, 20, 40); r.HasMore {
		t.Error("expected last page at offset 40 of 50")
	}
}
