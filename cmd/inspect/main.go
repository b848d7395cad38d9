// Command inspect prints the chats, messages or users of a chat-core store.
// It opens the database read-only and can run next to a live server.
package main

import (
	"chat-core/domain"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type view struct {
	prefix  string
	headers []string
	row     func(value []byte) ([]string, error)
}

var views = map[string]view{
	"chats": {
		prefix:  "chat:",
		headers: []string{"ID", "Name", "Group", "Admin", "Participants", "Last message", "Updated"},
		row: func(value []byte) ([]string, error) {
			var c domain.Chat
			if err := json.Unmarshal(value, &c); err != nil {
				return nil, err
			}
			last := ""
			if c.LastMessage != nil {
				last = short(*c.LastMessage)
			}
			return []string{c.ID, c.Name, strconv.FormatBool(c.IsGroupChat), short(c.Admin),
				strings.Join(shortAll(c.Participants), ","), last, c.UpdatedAt.Format("2006-01-02 15:04:05")}, nil
		},
	},
	"messages": {
		prefix:  "msg:",
		headers: []string{"ID", "Chat", "Sender", "Content", "Attachments", "Created"},
		row: func(value []byte) ([]string, error) {
			var m domain.Message
			if err := json.Unmarshal(value, &m); err != nil {
				return nil, err
			}
			return []string{short(m.ID), short(m.Chat), short(m.Sender), m.Content,
				strconv.Itoa(len(m.Attachments)), m.CreatedAt.Format("2006-01-02 15:04:05")}, nil
		},
	},
	"users": {
		prefix:  "user:id:",
		headers: []string{"ID", "Username", "Email", "Full name", "Created"},
		row: func(value []byte) ([]string, error) {
			var u domain.User
			if err := json.Unmarshal(value, &u); err != nil {
				return nil, err
			}
			return []string{u.ID, u.Username, u.Email, u.FullName, u.CreatedAt.Format("2006-01-02 15:04:05")}, nil
		},
	},
}

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	what := flag.String("what", "chats", "One of chats, messages, users")
	chatID := flag.String("chat", "", "Only the messages of this chat")
	flag.Parse()

	v, ok := views[*what]
	if !ok {
		log.Fatalf("unknown view %q", *what)
	}
	prefix := v.prefix
	if *what == "messages" && *chatID != "" {
		prefix += *chatID + ":"
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(v.headers)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetCenterSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			err := item.Value(func(value []byte) error {
				row, err := v.row(value)
				if err != nil {
					color.Warn.Printf("Skipping key %s: %v\n", item.Key(), err)
					return nil
				}
				table.Append(row)
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	color.New(color.BgBlack, color.FgGreen).Printf("  ====== %d %s ======  \n", count, *what)
	table.Render()
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortAll(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = short(id)
	}
	return out
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open %s read-only: %w", path, err)
	}
	return db, nil
}
