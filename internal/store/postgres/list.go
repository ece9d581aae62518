package postgres

import (
	"fmt"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// appendListOpts adds the time window, newest-first ordering and paging of
// opts to base, numbering placeholders after args.
func appendListOpts(base string, args []any, timeColumn string, opts domain.ListOpts) (string, []any) {
	query := base
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND %s >= $%d", timeColumn, len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND %s <= $%d", timeColumn, len(args))
	}

	query += " ORDER BY " + timeColumn + " DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
