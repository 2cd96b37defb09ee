// shortctl is the operator CLI for the link shortener.
//
// Usage:
//
//	# Apply the storage schema
//	shortctl migrate --config config.yaml
//
//	# Convert between numeric ids and base62 keys
//	shortctl encode 125
//	shortctl decode cb
//
//	# Show the latest clicks for a key
//	shortctl clicks aZ3kQ9 --limit 20
//
//	# Repair drifted click counters once
//	shortctl reconcile
package main

func main() {
	Execute()
}
