package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"market-chat/domain"
	"market-chat/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// Dumps the stored messages as a table, optionally only those involving one user.
//
//	go run ./tools -db ./data -user seller-42
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	user := flag.String("user", "", "Only show messages sent or received by this user")
	width := flag.Int("width", 60, "Truncate content to this many characters")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	messages, err := repositories.ReadMessages(db, domain.UserID(*user))
	if err != nil {
		log.Fatal(err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Seq", "Created At", "Sender", "Receiver", "Content", "ID"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, message := range messages {
		table.Append([]string{
			fmt.Sprintf("%d", message.Seq),
			message.CreatedAt.Format("2006-01-02 15:04:05.000"),
			string(message.Sender),
			string(message.Receiver),
			truncate(message.Content, *width),
			message.ID.String()[:8],
		})
	}
	table.Render()
	fmt.Printf("\n%d message(s)\n", len(messages))
}

func truncate(content string, width int) string {
	content = strings.ReplaceAll(content, "\n", " ")
	runes := []rune(content)
	if width <= 0 || len(runes) <= width {
		return content
	}
	return string(runes[:width-1]) + "…"
}

// openDB opens read-only so a running server keeps its lock.
func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
