package httpx

import (
	"net/http"
	"strconv"

	"github.com/mbolis/prom-tracker/store"
)

// Paging reads the 1-based "page" query parameter. Missing, unreadable or
// non-positive values mean the first page.
func Paging(r *http.Request, size int) store.Paging {
	number, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if number < 1 {
		number = 1
	}
	return store.Paging{Number: number, Size: size}
}
