package demo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/tgrady18/EchoedSDK/cmd/echoed/internal"
	"github.com/tgrady18/EchoedSDK/pkg/api"
	"github.com/tgrady18/EchoedSDK/pkg/bus"
	"github.com/tgrady18/EchoedSDK/pkg/echoed"
	"github.com/tgrady18/EchoedSDK/pkg/logger"
	"github.com/tgrady18/EchoedSDK/pkg/tags"
)

// promptWait is how long the demo waits for the pipeline to hand over the
// next prompt before returning to its command loop.
const promptWait = 2 * time.Second

func demoCmd(anchor string, debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if !cfg.Configured() {
		return fmt.Errorf("backend not configured: run `echoed onboard` or set ECHOED_API_KEY / ECHOED_COMPANY_ID")
	}

	sdk, err := echoed.New(cfg)
	if err != nil {
		return fmt.Errorf("error starting SDK: %w", err)
	}
	defer sdk.Close()

	sdk.OnForeground()
	defer sdk.OnBackground()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s echoed> ", internal.Logo),
		HistoryFile:     filepath.Join(os.TempDir(), ".echoed_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("%s Interactive surface (device %s). Type `help` for commands.\n\n",
		internal.Logo, sdk.DeviceID())

	if anchor != "" {
		sdk.HitAnchor(anchor)
		drainPrompts(sdk, rl)
	}

	commandLoop(sdk, rl)
	return nil
}

func commandLoop(sdk *echoed.SDK, rl *readline.Instance) {
	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "exit", "quit":
			fmt.Println("Goodbye!")
			return
		case "help":
			printHelp()
		case "hit":
			if len(fields) != 2 {
				fmt.Println("usage: hit <anchor_id>")
				continue
			}
			sdk.HitAnchor(fields[1])
			drainPrompts(sdk, rl)
		case "tag":
			handleTag(sdk, fields[1:])
		case "tags":
			for _, t := range sdk.GetAllUserTags() {
				fmt.Printf("  %-28s %-10s %-9s %v\n", t.Key, t.Value.Type(), t.Category, t.Value.Raw())
			}
		case "rm":
			if len(fields) != 2 {
				fmt.Println("usage: rm <key>")
				continue
			}
			sdk.RemoveUserTag(fields[1])
		case "clear":
			sdk.ClearAllUserTags()
		case "customer":
			id, name, email := "", "", ""
			if len(fields) > 1 {
				id = fields[1]
			}
			if len(fields) > 2 {
				name = fields[2]
			}
			if len(fields) > 3 {
				email = fields[3]
			}
			sdk.SetCustomer(id, name, email)
		case "logout":
			sdk.ResetCustomer()
		case "sync":
			sdk.SyncTags()
		case "fg":
			sdk.OnForeground()
		case "bg":
			sdk.OnBackground()
		case "anchors":
			for _, id := range sdk.AnchorHits() {
				fmt.Printf("  %s\n", id)
			}
		default:
			fmt.Printf("unknown command %q, try `help`\n", fields[0])
		}
	}
}

func printHelp() {
	fmt.Print(`  hit <anchor>                fire an anchor and answer its prompts
  tag <key> <type> <value>    set a user tag (number|string|boolean|timestamp)
  tags                        list all local tags
  rm <key>                    remove a user tag
  clear                       remove all user tags
  customer <id> [name] [email]  set customer identity
  logout                      reset customer identity
  sync                        push tags to the backend
  fg / bg                     simulate foreground/background transitions
  anchors                     list anchors hit on this install
  exit                        quit
`)
}

func handleTag(sdk *echoed.SDK, args []string) {
	if len(args) != 3 {
		fmt.Println("usage: tag <key> <type> <value>")
		return
	}
	key, typ, raw := args[0], tags.Type(args[1]), args[2]

	switch typ {
	case tags.TypeString:
		sdk.SetUserTag(key, tags.String(raw))
	case tags.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			fmt.Printf("not a boolean: %q\n", raw)
			return
		}
		sdk.SetUserTag(key, tags.Boolean(b))
	case tags.TypeNumber, tags.TypeTimestamp:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			// timestamps also accept RFC 3339 via the raw path
			sdk.SetUserTagRaw(key, raw, typ)
			return
		}
		sdk.SetUserTagRaw(key, f, typ)
	default:
		fmt.Printf("unknown type %q (number|string|boolean|timestamp)\n", typ)
	}
}

// drainPrompts renders every prompt the pipeline produces until it has been
// idle for promptWait, answering each through readline.
func drainPrompts(sdk *echoed.SDK, rl *readline.Instance) {
	surface := sdk.Surface()
	for {
		ctx, cancel := context.WithTimeout(context.Background(), promptWait)
		prompt, ok := surface.ConsumePrompt(ctx)
		cancel()
		if !ok {
			return
		}

		answer := askOne(prompt.Message, rl)
		if err := surface.PublishResponse(context.Background(), bus.Response{
			MessageID: prompt.Message.ID,
			Text:      answer,
		}); err != nil {
			fmt.Printf("Error sending response: %v\n", err)
			return
		}
	}
}

func askOne(msg api.Message, rl *readline.Instance) string {
	fmt.Printf("\n━━ %s ━━\n%s\n", msg.Title, msg.Content)

	switch msg.Type {
	case api.MessageMultiChoice:
		for i, opt := range msg.Options {
			fmt.Printf("  %d) %s\n", i+1, opt)
		}
	case api.MessageYesNo:
		fmt.Println("  (yes/no)")
	case api.MessageThumbsUpDown:
		fmt.Println("  (up/down)")
	}

	rl.SetPrompt("  answer> ")
	defer rl.SetPrompt(fmt.Sprintf("%s echoed> ", internal.Logo))

	line, err := rl.Readline()
	if err != nil {
		// dismissal: the pipeline still needs a response to advance
		return ""
	}
	answer := strings.TrimSpace(line)

	// resolve a numeric pick to its option text
	if msg.Type == api.MessageMultiChoice {
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(msg.Options) {
			return msg.Options[n-1]
		}
	}
	return answer
}
