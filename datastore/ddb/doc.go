/*
Package ddb backs kvstore stores up to a DynamoDB table.

Table layout (single-table design):

	PK               SK          attributes
	STORE#<token>    KEY#<key>   Key (S), Attributes (M of S/N/BOOL), Types (M of S)
	STORE#<token>    META        SnapshotID, SavedAt, Keys, Autosave

DynamoDB normalizes N values, so "9.0" is stored as "9". Each key item
therefore records the tag of every attribute in Types ("integer", "float",
"string" or "boolean") and Restore parses N by that tag. Items without Types
fall back to reading a decimal point or exponent as a float. Restore replays
items in key order so the rebuilt type history is deterministic.

Usage:

	client, err := ddb.NewDynamoDBClient(ctx, accessKey, secretKey, "us-east-1", "")
	snapshots := ddb.NewSnapshotStore(client, "kvstore-snapshots", ddb.WithLogger(logger))

	info, err := snapshots.Backup(ctx, "tenant-a", store)
	info, err = snapshots.Restore(ctx, "tenant-a", store)

Writes that fail with throttling errors are retried with linear backoff
(WithRetry). Any *dynamodb.Client, or mock.DynamoDB in tests, satisfies API.
*/
package ddb
