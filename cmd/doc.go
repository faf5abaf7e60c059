// Package cmd contains the veilpost service binaries.
//
// # Binaries
//
//   - server: runs the intake service and group registry in one process
//   - submit: command-line submitter for joining the group and delivering
//     an encrypted report
//
// # Quick start
//
//	go run ./cmd/server --addr=:8080 --recipient-key=<hex>
//	go run ./cmd/submit --server=http://localhost:8080 --message="..."
package cmd
