// Viewer prints the message store as a table, decrypting content with
// the server's key file. Read-only: safe to run next to a live server.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"lanshare/internal"
	"lanshare/security"
)

type storedMessage struct {
	ID          uint64    `json:"id"`
	Sender      string    `json:"sender"`
	Destination string    `json:"destination"`
	Content     string    `json:"content,omitempty"`
	At          time.Time `json:"at"`
	Status      string    `json:"status"`
}

func main() {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	key, err := security.LoadOrCreateKey(config.CipherKeyPath)
	if err != nil {
		log.Fatalf("Cipher key: %v", err)
	}
	cipher, err := security.NewCipher(key)
	if err != nil {
		log.Fatalf("Cipher init: %v", err)
	}

	// BypassLockGuard allows opening while the server holds the lock.
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "At", "Sender", "Destination", "Status", "Content"})
	table.SetAutoWrapText(false)

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("msg:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m storedMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			content := cipher.Decrypt(m.Content)
			table.Append([]string{
				fmt.Sprintf("%d", m.ID),
				m.At.Format("2006-01-02 15:04:05"),
				m.Sender,
				m.Destination,
				m.Status,
				content,
			})
			count++
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}

	color.Cyan.Printf("Message store at %s\n", config.BadgerFilepath)
	table.Render()
	color.Green.Printf("%d messages\n", count)
}
