package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	domain "github.com/vendorhub/marketplace/internal/domain"
)

const (
	// DefaultPageSize is used when the client omits page_size.
	DefaultPageSize = 20
	// MaxPageSize caps page_size to keep queries bounded.
	MaxPageSize = 100
)

var ErrInvalidPageSize = errors.New("pagination: invalid page_size")

// Parse reads page_size and page_token from query values. The token is
// validated but left encoded for the repository to decode.
func Parse(values url.Values) (domain.Pagination, error) {
	size := DefaultPageSize
	if raw := strings.TrimSpace(values.Get("page_size")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return domain.Pagination{}, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
		}
		if value <= 0 {
			return domain.Pagination{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
		}
		size = min(value, MaxPageSize)
	}

	token := strings.TrimSpace(values.Get("page_token"))
	if _, err := DecodeToken(token); err != nil {
		return domain.Pagination{}, err
	}
	return domain.Pagination{PageSize: size, PageToken: token}, nil
}
