package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &migrate.Migration{
		Id: "20240311094512_cycles_table",
		Up: []string{
			`CREATE TABLE rowsync_cycles (
				id VARCHAR(36) NOT NULL PRIMARY KEY,
				started_at TIMESTAMP NOT NULL,
				finished_at TIMESTAMP NOT NULL,
				loaded INTEGER NOT NULL,
				synced INTEGER NOT NULL,
				error_count INTEGER NOT NULL,
				last_error TEXT
			)`,
			`CREATE INDEX rowsync_cycles_started_at_idx ON rowsync_cycles (started_at)`,
		},
		Down: []string{
			`DROP TABLE rowsync_cycles`,
		},
	}

	allMigrations = append(allMigrations, m)
}
