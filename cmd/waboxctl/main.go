package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wabox/wabox/internal/broadcast"
	"github.com/wabox/wabox/internal/config"
	"github.com/wabox/wabox/internal/session"
	"github.com/wabox/wabox/internal/store"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	db := openArchive(sessionName)
	defer func() { _ = db.Close() }()

	switch args[0] {
	case "groups":
		cmdGroups(db, *jsonFlag)
	case "send":
		cmdSend(db, args[1:])
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: waboxctl search <query> [chat-jid]")
			os.Exit(1)
		}
		chatJID := ""
		if len(args) >= 3 {
			chatJID = args[2]
		}
		cmdSearch(db, args[1], chatJID, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: waboxctl messages <chat-jid>")
			os.Exit(1)
		}
		cmdMessages(db, args[1], *jsonFlag)
	case "latest-status":
		cmdLatestStatus(db)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: waboxctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  groups                       List selectable recipient groups")
	fmt.Fprintln(os.Stderr, "  send [flags] <text>          Queue a broadcast for the daemon to send")
	fmt.Fprintln(os.Stderr, "    --groups 1,3               Send to groups by list index")
	fmt.Fprintln(os.Stderr, "    --jids a@s.whatsapp.net,b  Send to explicit JIDs")
	fmt.Fprintln(os.Stderr, "  search <query> [chat-jid]    Full-text search over archived messages")
	fmt.Fprintln(os.Stderr, "  messages <chat-jid>          Show recent messages in a chat")
	fmt.Fprintln(os.Stderr, "  latest-status                Show the newest own status text")
}

// openArchive opens the session's archive database, applying any pending
// migrations. Safe alongside a running daemon: the archive is opened in WAL
// mode.
func openArchive(sessionName string) *store.DB {
	if err := session.EnsureDir(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	db, err := store.Open(session.ArchiveDBPath(sessionName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if _, err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return db
}

func loadBuiltins() broadcast.GroupList {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		cfg = &config.Config{}
	}
	builtins := make(broadcast.GroupList, 0, len(cfg.Broadcast.Groups))
	for _, g := range cfg.Broadcast.Groups {
		builtins = append(builtins, broadcast.RecipientGroup{Name: g.Name, JIDs: g.JIDs})
	}
	if len(builtins) == 0 {
		for _, name := range broadcast.DefaultBuiltins {
			builtins = append(builtins, broadcast.RecipientGroup{Name: name})
		}
	}
	return builtins
}

func cmdGroups(db *store.DB, jsonOut bool) {
	groups, err := broadcast.LoadGroups(db, loadBuiltins())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(groups)
		return
	}
	for i, g := range groups {
		fmt.Printf("%3d  %s (%d recipients)\n", i+1, g.Name, len(g.JIDs))
	}
}

func cmdSend(db *store.DB, args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	groupsFlag := fs.String("groups", "", "comma-separated group indices (1-based)")
	jidsFlag := fs.String("jids", "", "comma-separated destination JIDs")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: waboxctl send [--groups 1,3 | --jids a,b] <text>")
		os.Exit(1)
	}
	text := strings.Join(fs.Args(), " ")

	selector, err := buildSelector(*groupsFlag, *jidsFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	clientID := uuid.NewString()
	if err := db.QueueBroadcast(clientID, text, selector); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("queued broadcast %s\n", clientID)

	// Poll briefly so interactive use reports the final outcome when the
	// daemon is running.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
		job, err := db.GetBroadcast(clientID)
		if err != nil || job == nil {
			continue
		}
		switch job.Status {
		case "sent":
			fmt.Println("sent")
			return
		case "failed":
			fmt.Fprintf(os.Stderr, "failed: %s\n", job.ErrorMessage)
			os.Exit(1)
		}
	}
	fmt.Println("still queued (is the daemon running?)")
}

// buildSelector encodes the send flags as a stored recipient selector.
// Empty flags leave the selector empty, routing to the configured defaults.
func buildSelector(groupsFlag, jidsFlag string) (string, error) {
	if groupsFlag != "" && jidsFlag != "" {
		return "", fmt.Errorf("use either --groups or --jids, not both")
	}
	if groupsFlag != "" {
		var indices []int
		for _, part := range strings.Split(groupsFlag, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return "", fmt.Errorf("invalid group index %q", part)
			}
			indices = append(indices, n)
		}
		raw, err := json.Marshal(indices)
		return string(raw), err
	}
	if jidsFlag != "" {
		var jids []string
		for _, part := range strings.Split(jidsFlag, ",") {
			if part = strings.TrimSpace(part); part != "" {
				jids = append(jids, part)
			}
		}
		raw, err := json.Marshal(jids)
		return string(raw), err
	}
	return "", nil
}

func cmdSearch(db *store.DB, query, chatJID string, jsonOut bool) {
	results, err := db.SearchMessages(query, chatJID, 50)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(results)
		return
	}
	for _, r := range results {
		ts := time.Unix(r.Message.Timestamp, 0).Format("2006-01-02 15:04")
		fmt.Printf("[%s] %s %s: %s\n", ts, r.Message.ChatJID, r.Message.SenderJID, r.Snippet)
	}
}

func cmdMessages(db *store.DB, chatJID string, jsonOut bool) {
	msgs, err := db.ListMessages(chatJID, 0, 50)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		ts := time.Unix(m.Timestamp, 0).Format("2006-01-02 15:04")
		sender := m.SenderJID
		if m.FromMe {
			sender = "me"
		}
		fmt.Printf("[%s] %s: %s\n", ts, sender, m.Text)
	}
}

func cmdLatestStatus(db *store.DB) {
	text, err := db.LatestStatusText()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if text == "" {
		fmt.Println("(no status found)")
		return
	}
	fmt.Println(text)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
