package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var requiredColumns = []struct {
	table  string
	column string
}{
	{table: "poll_sessions", column: "kind"},
	{table: "poll_sessions", column: "final_option_id"},
	{table: "poll_options", column: "description"},
	{table: "poll_votes", column: "option_id"},
	{table: "event_deadlines", column: "deadline"},
	{table: "poll_responses", column: "is_late"},
	{table: "restaurant_conditions", column: "genre_codes"},
	{table: "restaurant_votes", column: "restaurant_id"},
	{table: "users", column: "calendar_connected"},
	{table: "calendar_events", column: "google_event_id"},
}

func ValidateRuntimeSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("database pool is nil")
	}

	for _, item := range requiredColumns {
		ok, err := columnExists(ctx, pool, item.table, item.column)
		if err != nil {
			return fmt.Errorf(
				"failed checking schema for %s.%s: %w",
				item.table,
				item.column,
				err,
			)
		}
		if !ok {
			return fmt.Errorf(
				"required column %s.%s is missing; start with AUTO_MIGRATE=true",
				item.table,
				item.column,
			)
		}
	}

	return nil
}

func columnExists(ctx context.Context, q Querier, tableName, columnName string) (bool, error) {
	table := strings.TrimSpace(tableName)
	column := strings.TrimSpace(columnName)
	if table == "" || column == "" {
		return false, fmt.Errorf("table/column must not be empty")
	}
	var exists bool
	err := q.QueryRow(
		ctx,
		`SELECT EXISTS (
		   SELECT 1
		   FROM information_schema.columns
		   WHERE table_schema = current_schema()
		     AND lower(table_name) = lower($1)
		     AND lower(column_name) = lower($2)
		 )`,
		table,
		column,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
