package common_test

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/noah-isme/backend-pasar/internal/common"
)

func TestParsePagination(t *testing.T) {
	cases := []struct {
		name    string
		target  string
		page    int
		perPage int
	}{
		{"defaults", "/orders", 1, 20},
		{"explicit", "/orders?page=3&limit=50", 3, 50},
		{"capped", "/orders?limit=500", 1, 100},
		{"garbage", "/orders?page=abc&limit=-1", 1, 20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tc.target, nil)
			page, perPage := common.ParsePagination(r, 20, 100)
			if page != tc.page || perPage != tc.perPage {
				t.Fatalf("got page=%d perPage=%d, want %d/%d", page, perPage, tc.page, tc.perPage)
			}
		})
	}
}

func TestUUIDRoundtrip(t *testing.T) {
	id := common.NewUUID()
	s := common.UUIDString(id)
	parsed, err := common.ToUUID(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !common.UUIDEqual(id, parsed) {
		t.Fatal("roundtrip lost identity")
	}
	if common.UUIDString(parsed) != s {
		t.Fatal("string form changed")
	}
}

func TestToUUIDRejectsGarbage(t *testing.T) {
	if _, err := common.ToUUID("not-a-uuid"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRetryable(t *testing.T) {
	if common.Retryable(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	wrapped := common.Retryable(errors.New("db down"))
	if !errors.Is(wrapped, common.ErrRetryable) {
		t.Fatal("wrapped error must match ErrRetryable")
	}
}
