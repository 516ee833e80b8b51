// Repoctl is a developer tool for baserepo.
//
// It compiles list queries to SQL for a chosen dialect, encodes and decodes
// cursor tokens, and checks database connectivity.
//
// Usage:
//
//	# Show the SQL of a keyset page
//	repoctl explain --table users --columns id:int:pk:auto,name:string \
//	    --where name=Alice,Bob --order -id --cursor '{"id":120}' --limit 20
//
//	# Encode a cursor token
//	repoctl cursor encode '{"created_at":"2024-01-01T00:00:00Z","id":7}'
//
//	# Ping the database configured through REPO_* variables
//	REPO_TYPE=sqlite REPO_FILE_PATH=app.db repoctl ping
package main

func main() {
	Execute()
}
