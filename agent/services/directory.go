package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	contractx "github.com/sjin4861/deepcatch-agent/agent/contract"
)

type businessRow struct {
	bun.BaseModel `bun:"table:businesses,alias:b"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Name     string `bun:"name,notnull"`
	Phone    string `bun:"phone,notnull"`
	Location string `bun:"location"`
}

// ListBusinesses returns directory entries matching the filter. Name and
// location match case-insensitively on substrings.
func (f *Facade) ListBusinesses(ctx context.Context, filter contractx.BusinessFilter) ([]contractx.Business, error) {
	if err := f.requireDB(); err != nil {
		return nil, fmt.Errorf("%w: business directory: %v", contractx.ErrExternalService, err)
	}

	var rows []businessRow
	q := f.db.NewSelect().Model(&rows).Order("name ASC")
	if name := strings.TrimSpace(filter.Name); name != "" {
		q = q.Where("name ILIKE ?", "%"+name+"%")
	}
	if location := strings.TrimSpace(filter.Location); location != "" {
		q = q.Where("location ILIKE ?", "%"+location+"%")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: select businesses: %v", contractx.ErrExternalService, err)
	}

	out := make([]contractx.Business, 0, len(rows))
	for _, row := range rows {
		out = append(out, contractx.Business{
			ID:       row.ID,
			Name:     row.Name,
			Phone:    row.Phone,
			Location: row.Location,
		})
	}
	return out, nil
}
