// Command decrypt reads stored reports from a veilpost server and decrypts
// them with the recipient's private key. Intended for the designated report
// recipient; anyone without the key sees only ciphertext.
//
// # Usage
//
//	go run ./cmd/decrypt --server=http://localhost:8080 --key=<hex P-256 private key>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/veilpost/veilpost/cmd/common"
	"github.com/veilpost/veilpost/crypto"
	"github.com/veilpost/veilpost/protocol"
)

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "veilpost server URL")
		keyHex    = flag.String("key", "", "hex P-256 recipient private key")
	)
	flag.Parse()

	if *keyHex == "" {
		fmt.Println("Error: --key is required")
		os.Exit(1)
	}

	privKey, err := common.LoadOrGenerateRecipientKey(*keyHex)
	if err != nil {
		fmt.Printf("Key error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *serverURL+"/api/v1/reports", nil)
	if err != nil {
		fmt.Printf("Request error: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Printf("Fetch error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var reports []*protocol.StoredReport
	if err := json.NewDecoder(resp.Body).Decode(&reports); err != nil {
		fmt.Printf("Decode error: %v\n", err)
		os.Exit(1)
	}

	for _, report := range reports {
		env, err := report.Envelope()
		if err != nil {
			fmt.Printf("%s: malformed envelope\n", report.ID)
			continue
		}
		plaintext, err := crypto.Decrypt(privKey, env)
		if err != nil {
			fmt.Printf("%s: decryption failed\n", report.ID)
			continue
		}
		fmt.Printf("%s [%s] %s: %s\n", report.ID, report.Status,
			report.Timestamp.Format(time.RFC3339), plaintext)
	}
}
