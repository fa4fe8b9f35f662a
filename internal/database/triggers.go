package database

import (
	"context"
	"fmt"
	"strings"
)

// ChangeChannel is the Postgres NOTIFY channel the feed listener subscribes to.
const ChangeChannel = "feed_changes"

// NotifiedTables are the tables whose row changes are broadcast.
var NotifiedTables = []string{"posts", "comments", "reactions", "stories", "story_reactions"}

// NotifiedColumns are the only row columns carried in a change payload.
// NOTIFY rejects payloads of 8000 bytes or more, so free text such as
// captions and comments never travels with the event.
var NotifiedColumns = []string{"id", "post_id", "story_id", "guest_id", "reaction_type"}

var notifyFunction = `
CREATE OR REPLACE FUNCTION notify_feed_change() RETURNS trigger AS $$
DECLARE
	rec record;
	doc jsonb;
BEGIN
	IF TG_OP = 'DELETE' THEN
		rec := OLD;
	ELSE
		rec := NEW;
	END IF;
	doc := to_jsonb(rec);
	PERFORM pg_notify('` + ChangeChannel + `', json_build_object(
		'table', TG_TABLE_NAME,
		'op', TG_OP,
		'record', jsonb_strip_nulls(jsonb_build_object(` + recordColumns() + `))
	)::text);
	RETURN rec;
END;
$$ LANGUAGE plpgsql`

func recordColumns() string {
	pairs := make([]string, 0, len(NotifiedColumns))
	for _, col := range NotifiedColumns {
		pairs = append(pairs, fmt.Sprintf("'%s', doc->'%s'", col, col))
	}
	return strings.Join(pairs, ", ")
}

// InstallChangeTriggers creates the row-level triggers that publish feed
// changes on ChangeChannel. Postgres only.
func (s *Store) InstallChangeTriggers(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.Exec(notifyFunction).Error; err != nil {
		return fmt.Errorf("failed to create notify function: %w", err)
	}

	for _, table := range NotifiedTables {
		trigger := table + "_feed_change"
		stmts := []string{
			fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, trigger, table),
			fmt.Sprintf(`CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s
				FOR EACH ROW EXECUTE FUNCTION notify_feed_change()`, trigger, table),
		}
		for _, stmt := range stmts {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to install trigger on %s: %w", table, err)
			}
		}
	}
	return nil
}
