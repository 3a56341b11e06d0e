// Package database opens the streamkeep SQLite database and owns its schema.
//
// Both the source registry and the segment queue live in one file under the
// state directory. Writes go through ExecContext, which retries briefly when
// SQLite reports the database as busy. Schema changes bump schemaVersion;
// users delete the database to adopt a new schema.
package database
