package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  Pagination
	}{
		{"defaults", "", Pagination{Page: 1, Limit: 20, Offset: 0}},
		{"second page", "?page=2&limit=10", Pagination{Page: 2, Limit: 10, Offset: 10}},
		{"negative page falls back", "?page=-3", Pagination{Page: 1, Limit: 20, Offset: 0}},
		{"zero limit falls back", "?limit=0", Pagination{Page: 1, Limit: 20, Offset: 0}},
		{"limit is capped", "?limit=5000", Pagination{Page: 1, Limit: 100, Offset: 0}},
		{"garbage falls back", "?page=abc&limit=xyz", Pagination{Page: 1, Limit: 20, Offset: 0}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got Pagination
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				got = ParsePagination(c)
				return nil
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/"+tc.query, nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.want, got)
		})
	}
}
