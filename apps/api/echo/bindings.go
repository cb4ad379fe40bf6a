package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/alumni/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=field,-other`: a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// PageResponse is the envelope of every paginated list.
type PageResponse struct {
	Count    int         `json:"count"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Results  interface{} `json:"results"`
}

// bindListQuery binds the filter, the ordering and the page window of a GET list request.
func bindListQuery(ctx echo.Context, filter interface{}) (*Ordering, *core.Pagination, error) {
	if err := ctx.Bind(filter); err != nil {
		return nil, nil, errors.Wrap(errInvalidRequest, err.Error())
	}
	page := new(core.Pagination)
	if err := ctx.Bind(page); err != nil {
		return nil, nil, errors.Wrap(errInvalidRequest, err.Error())
	}
	page.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)
	return ordering, page, nil
}

// ActionResponse answers mutations triggered from the UI.
type ActionResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func actionResponse(ctx echo.Context, messages core.Localizer, key string, data interface{}) ActionResponse {
	return ActionResponse{Success: true, Message: messages.T(requestLocale(ctx), key, nil), Data: data}
}

// bindBody binds the request body, reporting malformed payloads as invalid requests.
func bindBody(ctx echo.Context, dst interface{}) error {
	if err := ctx.Bind(dst); err != nil {
		return errors.Wrap(errInvalidRequest, err.Error())
	}
	return nil
}
