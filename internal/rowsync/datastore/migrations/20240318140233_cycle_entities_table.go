package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &migrate.Migration{
		Id: "20240318140233_cycle_entities_table",
		Up: []string{
			`CREATE TABLE rowsync_cycle_entities (
				cycle_id VARCHAR(36) NOT NULL REFERENCES rowsync_cycles (id) ON DELETE CASCADE,
				entity VARCHAR(255) NOT NULL,
				loaded INTEGER NOT NULL,
				synced INTEGER NOT NULL,
				skipped INTEGER NOT NULL,
				error_count INTEGER NOT NULL,
				PRIMARY KEY (cycle_id, entity)
			)`,
		},
		Down: []string{
			`DROP TABLE rowsync_cycle_entities`,
		},
	}

	allMigrations = append(allMigrations, m)
}
